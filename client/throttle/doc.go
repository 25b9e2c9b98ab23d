// Package throttle rate-limits outbound requests using a token-bucket
// algorithm from [golang.org/x/time/rate].
//
// # Usage
//
// Create a [Limiter] with [New] and call [Limiter.Wait] before each
// request:
//
//	l, err := throttle.New(
//		10, // requests per second
//		5,  // burst capacity
//		func() *slog.Logger { return slog.Default() },
//	)
//	if err := l.Wait(ctx, "/v1/resource"); err != nil { ... }
//
// When the rate limit is exceeded, Wait blocks until a token becomes
// available or the context is cancelled. Most callers enable it through
// client.WithThrottle instead.
package throttle
