package nettransport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"time"

	"github.com/adamwoolhether/asynchttp/native"
)

// handshake upgrades nc to TLS. Certificate problems are reported as a
// secure failure followed by a request error.
func (r *request) handshake(nc net.Conn, timeout time.Duration) (net.Conn, error) {
	cfg := r.t.tlsConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = r.conn.host
	}

	ctx, cancel := withTimeout(r.ctx, timeout)
	defer cancel()

	tc := tls.Client(nc, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		if flags, ok := secureFlags(err); ok {
			r.logger.Debug("tls handshake rejected", "flags", uint32(flags), "error", err)
			r.emit(native.StatusSecureFailure, native.StatusInfo{Secure: flags}, 0)
			r.fail(native.APISendRequest, native.ErrSecureFailure, err)
			return nil, err
		}
		r.fail(native.APISendRequest, classify(err, native.ErrCannotConnect), err)
		return nil, err
	}

	return tc, nil
}

// secureFlags maps a handshake error to the engine's security flags. It
// reports false for errors that are not about the peer's certificate or
// the TLS channel itself, such as a dropped connection.
func secureFlags(err error) (native.SecureFlag, bool) {
	var (
		unknownAuthority x509.UnknownAuthorityError
		noRoots          x509.SystemRootsError
		hostname         x509.HostnameError
		invalid          x509.CertificateInvalidError
		alert            tls.AlertError
		record           tls.RecordHeaderError
	)

	switch {
	case errors.As(err, &unknownAuthority), errors.As(err, &noRoots):
		return native.SecureInvalidCA, true
	case errors.As(err, &hostname):
		return native.SecureCertCNInvalid, true
	case errors.As(err, &invalid):
		if invalid.Reason == x509.Expired {
			return native.SecureCertDateInvalid, true
		}
		return native.SecureInvalidCert, true
	case errors.As(err, &alert), errors.As(err, &record):
		return native.SecureChannelError, true
	default:
		return 0, false
	}
}

// classify maps a Go network error to the engine's error codes, falling
// back to fallback for anything unrecognised.
func classify(err error, fallback native.Errno) native.Errno {
	var (
		ne  net.Error
		dns *net.DNSError
	)

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, net.ErrClosed):
		return native.ErrOperationCancelled
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return native.ErrTimeout
	case errors.As(err, &dns):
		return native.ErrNameNotResolved
	case errors.Is(err, errMalformed):
		return native.ErrInvalidServerResponse
	default:
		return fallback
	}
}
