package txn

import (
	"math/rand"
	"time"

	"github.com/stratadb/strata/pkg/strataerr"
)

// RetryBudget bounds how many times a conflicting commit is retried
// and the backoff between attempts. High-contention paths (event
// append, which serializes on a per-branch metadata key) want a
// larger budget than per-cell paths (state CAS); callers pick the
// budget that matches their contention profile rather than txn
// imposing one policy on everyone.
type RetryBudget struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// StateCasBudget is the default retry budget for low-contention,
// per-cell paths: a handful of attempts is enough because two writers
// racing on the same state cell is the exception, not the norm.
var StateCasBudget = RetryBudget{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 20 * time.Millisecond}

// EventAppendBudget is the default retry budget for event append,
// which every writer to a branch's event log serializes against via a
// shared per-branch sequence key — contention there is expected under
// concurrent load, so it gets more attempts and a longer ceiling.
var EventAppendBudget = RetryBudget{MaxAttempts: 20, BaseDelay: time.Millisecond, MaxDelay: 100 * time.Millisecond}

// Retry runs attempt up to budget.MaxAttempts times, retrying only on
// Conflict errors with exponential backoff plus jitter.
// Non-conflict errors (I/O, internal, invalid input) return
// immediately without consuming the retry budget's intent of
// absorbing contention, not masking failures.
func Retry(budget RetryBudget, attempt func() error) error {
	delay := budget.BaseDelay
	var lastErr error
	for i := 0; i < budget.MaxAttempts; i++ {
		err := attempt()
		if err == nil {
			return nil
		}
		if !strataerr.Is(err, strataerr.Conflict) {
			return err
		}
		lastErr = err
		if i == budget.MaxAttempts-1 {
			break
		}
		jitter := time.Duration(rand.Int63n(int64(delay) + 1))
		time.Sleep(delay + jitter)
		delay *= 2
		if delay > budget.MaxDelay {
			delay = budget.MaxDelay
		}
	}
	return lastErr
}
