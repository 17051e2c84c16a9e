// Package retry runs an operation in an explicit loop until it succeeds,
// fails with a non-retryable error, exhausts its attempts or its context
// is cancelled.
//
// Media downloads use a fixed delay between attempts:
//
//	err := retry.Do(func() error {
//		return fetch(ctx, url)
//	}, retry.FixedConfig(ctx, 3, time.Second))
//
// Callers that talk to flaky infrastructure (the AMQP broker, for one) use
// ExponentialBackoff with jitter instead. Typed errors from pkg/errors are
// retried only when errors.IsRetryable says so.
package retry
