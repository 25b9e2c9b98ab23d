package nettransport

import (
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
)

// Option is a functional option for configuring a [Transport] via [New].
type Option func(*options) error
type options struct {
	tlsConfig *tls.Config
	logger    *slog.Logger
	readSize  *int
	resolver  *net.Resolver
}

// WithTLSConfig sets the TLS configuration used for secure requests. The
// server name is filled in per connection when empty.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("tls config must not be nil")
		}
		o.tlsConfig = cfg
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Transport].
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// WithReadSize caps how many body bytes a single availability query
// reports. Defaults to 8 KiB.
func WithReadSize(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return errors.New("read size must be positive")
		}
		o.readSize = &n
		return nil
	}
}

// WithResolver replaces [net.DefaultResolver] for host lookups.
func WithResolver(r *net.Resolver) Option {
	return func(o *options) error {
		if r == nil {
			return errors.New("resolver must not be nil")
		}
		o.resolver = r
		return nil
	}
}
