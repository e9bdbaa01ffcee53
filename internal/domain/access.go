package domain

import (
	"errors"
	"net/http"
)

// AccessState is the finite set of views a token attempt can resolve to.
type AccessState string

const (
	AccessNoToken  AccessState = "no-token"
	AccessLoading  AccessState = "loading"
	AccessValid    AccessState = "valid"
	AccessInvalid  AccessState = "invalid"
	AccessUsed     AccessState = "used"
	AccessExpired  AccessState = "expired"
	AccessNotFound AccessState = "not-found"
	AccessError    AccessState = "error"
)

// Terminal reports whether the state ends the attempt for this token.
func (s AccessState) Terminal() bool {
	switch s {
	case AccessValid, AccessLoading:
		return false
	default:
		return true
	}
}

// Message is the remedial text shown for a terminal state.
func (s AccessState) Message() string {
	switch s {
	case AccessNoToken:
		return "لینک آزمون ناقص است. لطفاً از طریق ربات وارد شوید."
	case AccessInvalid:
		return "لینک آزمون نامعتبر است. لطفاً لینک جدید دریافت کنید."
	case AccessUsed:
		return "این لینک قبلاً استفاده شده است."
	case AccessExpired:
		return "مهلت استفاده از این لینک به پایان رسیده است."
	case AccessNotFound:
		return "آزمون مورد نظر یافت نشد."
	case AccessError:
		return "اشکالی در سیستم به‌وجود آمده است. لطفاً کمی بعد دوباره تلاش کنید."
	default:
		return ""
	}
}

// ClassifyAccess maps a remote failure to an access state. 404 maps to
// not-found only when the endpoint defines it; every unclassified failure is error.
func ClassifyAccess(err error, notFoundDefined bool) AccessState {
	if err == nil {
		return AccessValid
	}
	var accessErr *AccessDeniedError
	if errors.As(err, &accessErr) {
		return accessErr.State
	}
	var status *StatusError
	if !errors.As(err, &status) {
		return AccessError
	}
	switch status.Code {
	case http.StatusUnauthorized:
		return AccessInvalid
	case http.StatusConflict:
		return AccessUsed
	case http.StatusGone:
		return AccessExpired
	case http.StatusNotFound:
		if notFoundDefined {
			return AccessNotFound
		}
	}
	return AccessError
}
