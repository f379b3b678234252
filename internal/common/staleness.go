// Package common provides shared utilities across the application.
package common

import (
	"fmt"
	"time"
)

// StalenessResult contains the result of a staleness check.
type StalenessResult struct {
	// IsStale indicates whether the item should be treated as abandoned and reclaimed.
	IsStale bool
	// Reason provides a human-readable explanation for the staleness decision.
	Reason string
}

// CheckRunStaleness determines whether a running vetting/publish cycle has exceeded
// its deadline and should be treated as orphaned (e.g. owner process crashed mid-run).
//
// startedAt is when the run began, now is the current time, and deadline is the
// configured cycle deadline for that run kind.
func CheckRunStaleness(startedAt time.Time, now time.Time, deadline time.Duration) StalenessResult {
	if startedAt.IsZero() {
		return StalenessResult{IsStale: false, Reason: "no start time recorded"}
	}

	elapsed := now.Sub(startedAt)
	if elapsed > deadline {
		return StalenessResult{
			IsStale: true,
			Reason: fmt.Sprintf(
				"run started at %s has been active for %s, exceeding the %s deadline",
				startedAt.Format(time.RFC3339), elapsed.Round(time.Second), deadline,
			),
		}
	}

	return StalenessResult{
		IsStale: false,
		Reason:  fmt.Sprintf("run active for %s, within %s deadline", elapsed.Round(time.Second), deadline),
	}
}

// CheckLockStaleness determines whether a scheduler lock has outlived its TTL and
// may be forcibly reclaimed by another replica.
func CheckLockStaleness(expiresAt time.Time, now time.Time) StalenessResult {
	if now.After(expiresAt) {
		return StalenessResult{
			IsStale: true,
			Reason:  fmt.Sprintf("lock expired at %s, now %s", expiresAt.Format(time.RFC3339), now.Format(time.RFC3339)),
		}
	}
	return StalenessResult{
		IsStale: false,
		Reason:  fmt.Sprintf("lock valid until %s", expiresAt.Format(time.RFC3339)),
	}
}
