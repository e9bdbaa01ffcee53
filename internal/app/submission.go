package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"test-session-service/internal/domain"
)

// DefaultNextURL is the hand-off to the payment stage; it takes the test id and token.
const DefaultNextURL = "/test/%s/prepay?token=%s"

const (
	submitFailedMessage  = "ارسال پاسخ‌ها با خطا مواجه شد. لطفاً دوباره تلاش کنید."
	networkFailedMessage = "مشکلی در ارتباط با سرور پیش آمد. لطفاً دوباره تلاش کنید."
)

// SubmissionPayload is posted to the answer sink.
type SubmissionPayload struct {
	TestID  string `json:"testId"`
	Token   string `json:"token"`
	Answers any    `json:"answers"`
}

// SubmissionMeta is the timing block of a structured submission.
type SubmissionMeta struct {
	StartedAt    time.Time `json:"startedAt"`
	SubmittedAt  time.Time `json:"submittedAt"`
	WallTimeMs   int64     `json:"wallTimeMs"`
	ActiveTimeMs int64     `json:"activeTimeMs"`
}

// AnswerSink accepts a completed attempt. It returns *domain.ApplicationError
// when the server declined and *domain.TransportError when nothing came back.
type AnswerSink interface {
	SubmitAnswers(ctx context.Context, payload SubmissionPayload) error
}

// SubmitResult is the outcome of a confirmed submission.
type SubmitResult struct {
	NextURL string `json:"nextUrl"`
}

// SubmitError is a submission failure that leaves the session intact for retry.
type SubmitError struct {
	// Message is the user-facing text.
	Message string
	Err     error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit answers: %v", e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// SubmissionPipeline turns a session into a payload and delivers it.
type SubmissionPipeline struct {
	sink    AnswerSink
	nextURL string
}

func NewSubmissionPipeline(sink AnswerSink, nextURL string) *SubmissionPipeline {
	if nextURL == "" {
		nextURL = DefaultNextURL
	}
	return &SubmissionPipeline{sink: sink, nextURL: nextURL}
}

// BuildPayload assembles the submission body. Structured sessions report
// every allocation score under the test's group key; legacy sessions send the
// flat answer map.
func (p *SubmissionPipeline) BuildPayload(test domain.TestInfo, token string, sess *domain.Session, timing TimerSnapshot, submittedAt time.Time) SubmissionPayload {
	payload := SubmissionPayload{TestID: test.ID, Token: token}
	if sess.Version == domain.SessionV1 {
		answers := make(map[string]domain.Answer, len(sess.Answers))
		for k, v := range sess.Answers {
			answers[k] = v
		}
		payload.Answers = answers
		return payload
	}

	groups := make(map[string]map[string]int, len(sess.Belbin))
	for blockID, st := range sess.Belbin {
		scores := make(map[string]int, len(st.Scores))
		for itemID, score := range st.Scores {
			scores[itemID] = score
		}
		groups[blockID] = scores
	}
	profile := make(map[string]string, len(sess.Profile))
	for k, v := range sess.Profile {
		profile[k] = v
	}
	responses := make(map[string]any, len(sess.Responses))
	for k, v := range sess.Responses {
		responses[k] = v
	}
	payload.Answers = map[string]any{
		"version":       domain.SessionV2,
		"profile":       profile,
		test.GroupKey(): groups,
		"responses":     responses,
		"meta": SubmissionMeta{
			StartedAt:    timing.StartedAt,
			SubmittedAt:  submittedAt,
			WallTimeMs:   timing.WallTimeMs,
			ActiveTimeMs: timing.ActiveTimeMs,
		},
	}
	return payload
}

// NextURL is the payment stage address for the attempt.
func (p *SubmissionPipeline) NextURL(testID, token string) string {
	return fmt.Sprintf(p.nextURL, url.PathEscape(testID), url.QueryEscape(token))
}

// Deliver posts the payload and maps failures to a SubmitError.
func (p *SubmissionPipeline) Deliver(ctx context.Context, payload SubmissionPayload) error {
	err := p.sink.SubmitAnswers(ctx, payload)
	if err == nil {
		return nil
	}
	msg := networkFailedMessage
	var appErr *domain.ApplicationError
	if errors.As(err, &appErr) {
		msg = submitFailedMessage
		if strings.TrimSpace(appErr.Message) != "" {
			msg = appErr.Message
		}
	}
	return &SubmitError{Message: msg, Err: err}
}

// Submit re-validates every step in order and stops at the first failure,
// moving the navigator there. Otherwise it delivers the payload; the sink is
// called without holding the attempt lock and a concurrent Submit returns
// domain.ErrSubmissionInFlight. On success the persisted session is cleared.
// On failure the session stays as it was.
func (a *Attempt) Submit(ctx context.Context) (SubmitResult, error) {
	a.mu.Lock()
	if err := a.mutableLocked(0); err != nil {
		a.mu.Unlock()
		return SubmitResult{}, err
	}
	for i, step := range a.nav.Steps() {
		if err := ValidateStep(i, step, a.sess); err != nil {
			a.nav.Flag(i)
			a.persistLocked(ctx)
			a.mu.Unlock()
			return SubmitResult{}, err
		}
	}
	submittedAt := a.now()
	payload := a.pipeline.BuildPayload(a.test, a.key.Token, a.sess, a.timer.Snapshot(), submittedAt)
	a.submitting = true
	a.mu.Unlock()

	err := a.pipeline.Deliver(ctx, payload)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.submitting = false
	if err != nil {
		log.Printf("attempt %s: submit failed: %v", a.id, err)
		return SubmitResult{}, err
	}
	a.sess.Meta.SubmittedAt = &submittedAt
	a.submitted = true
	a.timer.Stop()
	if err := a.store.Clear(ctx, a.key); err != nil {
		log.Printf("attempt %s: clear session failed: %v", a.id, err)
	}
	return SubmitResult{NextURL: a.pipeline.NextURL(a.test.ID, a.key.Token)}, nil
}
