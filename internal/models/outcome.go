package models

import "time"

// VerifyStatus classifies the outcome of a verification attempt.
// These are expected, user-actionable results; infrastructure faults
// travel separately as errors.
type VerifyStatus string

const (
	VerifyOK          VerifyStatus = "ok"
	VerifyNotFound    VerifyStatus = "not_found"
	VerifyExpired     VerifyStatus = "expired"
	VerifyLocked      VerifyStatus = "locked"
	VerifyInvalidCode VerifyStatus = "invalid_code"
	VerifyRateLimited VerifyStatus = "rate_limited"
)

// VerifyResult is the typed outcome of a code verification attempt.
// RetryAt is set only when Status is VerifyLocked.
type VerifyResult struct {
	Status  VerifyStatus
	RetryAt *time.Time
}

// OK reports whether the verification succeeded.
func (r VerifyResult) OK() bool {
	return r.Status == VerifyOK
}
