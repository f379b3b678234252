// Package errors defines the error taxonomy every component discriminates
// on when deciding whether to retry, alert, skip, or abort.
package errors

import "errors"

// Sentinel errors for the taxonomy every component discriminates on.
// Wrap with fmt.Errorf("...: %w", ErrX) and unwrap with errors.Is.
var (
	// ErrTransientExternal covers 5xx, timeouts, and rate-limit responses
	// from the ATS, LLM, mail provider, or file drop. Callers retry with
	// backoff; on exhaustion they log and skip the unit.
	ErrTransientExternal = errors.New("transient external error")

	// ErrAuth covers repeated 401s after a refresh attempt. Callers alert
	// once per hour and abort the cycle.
	ErrAuth = errors.New("authentication error")

	// ErrData covers malformed payloads or missing required fields.
	// Callers skip the unit and record the error on the vetting run.
	ErrData = errors.New("data error")

	// ErrPolicyBlock covers a tripped safeguard, such as the zero-job
	// feed safety check or an operator-set freeze switch. Callers do
	// not proceed, emit a single alert, and report success to the
	// scheduler.
	ErrPolicyBlock = errors.New("policy block")

	// ErrDedupBlock covers a ledger hit. Callers treat this as success
	// and record status dedup_skipped.
	ErrDedupBlock = errors.New("dedup block")

	// ErrFatalInternal covers a violated programming invariant. The
	// process keeps running; it counts toward healthy=false.
	ErrFatalInternal = errors.New("fatal internal error")

	ErrNotFound = errors.New("not found")
)

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientExternal)
}
