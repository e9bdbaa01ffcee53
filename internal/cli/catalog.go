package cli

import "test-session-service/internal/domain"

// sampleTests provides the built-in catalog; point postgres.url at a real
// catalog in production.
func sampleTests() map[string]domain.TestInfo {
	return map[string]domain.TestInfo{
		"belbin_9_individual": {
			ID:               "belbin_9_individual",
			Title:            "بلبین (Belbin)",
			Description:      "تست بلبین برای شناخت نقش‌های تیمی طراحی شده است و به شما کمک می‌کند الگوی رفتاری‌تان در کار گروهی را بهتر بشناسید.",
			Price:            200000,
			DefinitionSource: domain.SourceRemote,
		},
		"mbti_sample": {
			ID:               "mbti_sample",
			Title:            "MBTI (نمونه)",
			Description:      "نسخه نمونه تست تیپ شخصیتی.",
			DefinitionSource: domain.SourceLocal,
			Questions: []domain.LegacyQuestion{
				{
					ID:   "q1",
					Text: "در یک مهمانی معمولاً",
					Type: domain.QuestionSingle,
					Options: []domain.Option{
						{ID: "e", Text: "با افراد زیادی صحبت می‌کنم"},
						{ID: "i", Text: "با چند نفر آشنا صحبت می‌کنم"},
					},
				},
				{
					ID:   "q2",
					Text: "هنگام تصمیم‌گیری بیشتر به چه تکیه می‌کنید؟",
					Type: domain.QuestionSingle,
					Options: []domain.Option{
						{ID: "t", Text: "منطق و تحلیل"},
						{ID: "f", Text: "ارزش‌ها و احساسات"},
					},
				},
				{
					ID:   "q3",
					Text: "کدام موارد درباره شما صدق می‌کند؟",
					Type: domain.QuestionMulti,
					Options: []domain.Option{
						{ID: "plan", Text: "برنامه‌ریزی از قبل"},
						{ID: "flex", Text: "انعطاف در لحظه"},
						{ID: "detail", Text: "توجه به جزئیات"},
					},
				},
			},
		},
	}
}
