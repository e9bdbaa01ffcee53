package app

import (
	"fmt"
	"strconv"
	"strings"

	"test-session-service/internal/domain"
)

// ValidateStep checks the completion rules of one step against the session.
// It returns a *domain.ValidationError, or nil when the step is complete.
func ValidateStep(index int, step Step, sess *domain.Session) error {
	switch s := step.(type) {
	case ProfileStep:
		for _, f := range s.Section.Fields {
			if !f.Required {
				continue
			}
			if strings.TrimSpace(sess.Profile[f.ID]) == "" {
				return &domain.ValidationError{StepIndex: index, Kind: domain.InvalidProfile, Target: f.ID}
			}
		}
		return nil
	case AllocationStep:
		st := sess.Belbin[s.Block.ID]
		limits := s.Rules.Resolve()
		if limits.RequireSelection && !st.AnySelected() {
			return &domain.ValidationError{StepIndex: index, Kind: domain.InvalidSelection, Target: s.Block.ID}
		}
		for _, it := range s.Block.Items {
			if !st.Selected[it.ID] {
				continue
			}
			if score := st.Scores[it.ID]; score < limits.Min || score > limits.Max {
				return &domain.ValidationError{StepIndex: index, Kind: domain.InvalidRange, Target: it.ID}
			}
		}
		if st.Sum() != limits.Sum {
			return &domain.ValidationError{StepIndex: index, Kind: domain.InvalidSum, Target: s.Block.ID}
		}
		return nil
	case LegacyStep:
		for _, q := range s.Questions {
			if !q.IsRequired() {
				continue
			}
			if sess.Answers[q.ID].Empty() {
				return &domain.ValidationError{StepIndex: index, Kind: domain.InvalidUnanswered, Target: q.ID}
			}
		}
		return nil
	default:
		panic(fmt.Sprintf("app: unhandled step type %T", step))
	}
}

// checkFieldValue enforces per-type value rules when a profile field is edited.
// Empty values are always accepted; requiredness is a step-level rule.
func checkFieldValue(f domain.Field, value string) (string, error) {
	switch f.Type {
	case domain.FieldSelect:
		if value == "" || len(f.Options) == 0 {
			return value, nil
		}
		for _, o := range f.Options {
			if o.ID == value {
				return value, nil
			}
		}
		return "", fmt.Errorf("%w: %q is not an option of %s", domain.ErrInvalidFieldValue, value, f.ID)
	case domain.FieldJalaliDate:
		normalized := normalizeDigits(strings.TrimSpace(value))
		if normalized == "" {
			return "", nil
		}
		if !validJalaliDate(normalized) {
			return "", fmt.Errorf("%w: %q is not a YYYY/MM/DD date", domain.ErrInvalidFieldValue, value)
		}
		return normalized, nil
	default:
		return value, nil
	}
}

// normalizeDigits maps Persian and Arabic-Indic digits to ASCII.
func normalizeDigits(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '۰' && r <= '۹':
			return '0' + (r - '۰')
		case r >= '٠' && r <= '٩':
			return '0' + (r - '٠')
		}
		return r
	}, s)
}

func validJalaliDate(s string) bool {
	parts := strings.Split(s, "/")
	if len(parts) != 3 || len(parts[0]) != 4 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return false
	}
	for _, p := range parts {
		if !allDigits(p) {
			return false
		}
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil || year < 1 {
		return false
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return false
	}
	day, err := strconv.Atoi(parts[2])
	if err != nil || day < 1 {
		return false
	}
	switch {
	case month <= 6:
		return day <= 31
	case month <= 11:
		return day <= 30
	default:
		// Esfand has 30 days only in leap years; the date picker accepts 30 unconditionally.
		return day <= 30
	}
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
