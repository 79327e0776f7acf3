// Package asyncx holds the small set of generic concurrency helpers the
// runner shares between packages.
//
// # Settle
//
// [AllSettled] fans out independent calls and reports every outcome, which
// suits health checks where one failing dependency must not hide the others:
//
//	results := asyncx.AllSettled(ctx, pingDB, pingRedis)
//	for _, r := range results {
//	    if !r.OK() { ... }
//	}
//
// # Retry
//
// [RetryWithBackoff] retries a short operation with doubling delays:
//
//	_, err := asyncx.RetryWithBackoff(ctx, 3, 100*time.Millisecond,
//	    func(ctx context.Context) (struct{}, error) {
//	        return struct{}{}, queue.Ack(ctx, token)
//	    })
//
// # Timeout
//
// [WithTimeout] bounds a call that may not honour its context promptly.
package asyncx
