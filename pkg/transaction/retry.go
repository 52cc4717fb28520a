package transaction

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/commontoolsinc/loom/pkg/metrics"
	"github.com/commontoolsinc/loom/pkg/replica"
)

// DefaultMaxRetries bounds the re-runs EditWithRetry performs after
// conflicts. The numeric value is not load-bearing.
const DefaultMaxRetries = 5

// Body is the user function EditWithRetry drives. Returning an error
// skips the commit and surfaces the error; calling tx.Abort inside the
// body requests a re-run.
type Body func(tx *Transaction) error

// EditWithRetry runs body inside a fresh transaction and commits. On
// a commit conflict or an explicit abort it opens another transaction
// and re-runs the body, backing off between attempts, for at most
// maxRetries+1 attempts. It reports whether a commit succeeded.
func EditWithRetry(open func() *Transaction, body Body, maxRetries int) (bool, error) {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond

	attempt := 0
	operation := func() error {
		if attempt > 0 {
			metrics.TransactionRetries.Inc()
		}
		attempt++
		tx := open()
		if err := body(tx); err != nil {
			tx.Abort(err)
			return backoff.Permanent(err)
		}
		if tx.Status().Status == StatusAborted {
			// The body asked for a re-run.
			return errAbortedBody
		}
		_, err := tx.Commit()
		if err == nil {
			return nil
		}
		var conflict *replica.ConflictError
		if errors.As(err, &conflict) {
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(operation, backoff.WithMaxRetries(policy, uint64(maxRetries)))
	if err == nil {
		return true, nil
	}
	// Retry hands back permanent errors already unwrapped.
	var conflict *replica.ConflictError
	if !errors.Is(err, errAbortedBody) && !errors.As(err, &conflict) {
		return false, err
	}
	// Retries exhausted on recoverable failures.
	return false, nil
}

var errAbortedBody = errors.New("transaction aborted by body")
