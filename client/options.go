package client

import (
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/asynchttp/client/throttle"
	"github.com/adamwoolhether/asynchttp/native"
)

// Option is a functional option for configuring a [Client] via [Build].
type Option func(*options) error
type options struct {
	transport native.Transport
	userAgent *string
	timeouts  *native.Timeouts
	plainHTTP bool
	throttle  *throttle.Config
	logger    *slog.Logger
	tracer    trace.Tracer
}

// WithTransport replaces the default nettransport engine used by the [Client].
func WithTransport(t native.Transport) Option {
	return func(c *options) error {
		if t == nil {
			return errors.New("transport must not be nil")
		}
		c.transport = t
		return nil
	}
}

// WithUserAgent sets the user agent the session is opened with.
func WithUserAgent(ua string) Option {
	return func(c *options) error {
		if ua == "" {
			return errors.New("user agent must not be empty")
		}
		c.userAgent = &ua
		return nil
	}
}

// WithTimeouts sets the resolve, connect, send and receive timeouts applied
// to every session. A zero value disables that timeout.
func WithTimeouts(t native.Timeouts) Option {
	return func(c *options) error {
		if t.Resolve < 0 || t.Connect < 0 || t.Send < 0 || t.Receive < 0 {
			return errors.New("timeouts must not be negative")
		}
		c.timeouts = &t
		return nil
	}
}

// WithPlainHTTP opens requests without TLS.
func WithPlainHTTP() Option {
	return func(c *options) error {
		c.plainHTTP = true
		return nil
	}
}

// WithThrottle enables token-bucket rate limiting with the given requests per second and burst capacity.
func WithThrottle(rps, burst int) Option {
	return func(c *options) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, throttle.ErrMustNotBeZero)
		}
		c.throttle = &throttle.Config{RPS: rps, Burst: burst}
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Client].
func WithLogger(logger *slog.Logger) Option {
	return func(c *options) error {
		c.logger = logger
		return nil
	}
}

// WithTracer records a span per [Client.Execute] on tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		c.tracer = tracer
		return nil
	}
}
