package client

import (
	"errors"
	"fmt"

	"github.com/adamwoolhether/asynchttp/native"
)

var (
	// ErrCallbackExists is returned when the request handle already had a
	// status callback installed.
	ErrCallbackExists = errors.New("callback already exists")
	// ErrNoBuffer is returned when a read completes with no outstanding
	// buffer or with zero bytes.
	ErrNoBuffer = errors.New("response buffer is null")
	// ErrInvalidState is returned when an event arrives in a state that
	// cannot accept it.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrUnknownSecurity is wrapped by [SecureFailureError] for flags
	// outside the known table.
	ErrUnknownSecurity = errors.New("unknown security error")
)

// Security failure categories reported through [SecureFailureError].
var (
	ErrCertRevocationFailed = errors.New("certificate revocation check failed")
	ErrInvalidCert          = errors.New("ssl certificate is invalid")
	ErrCertRevoked          = errors.New("ssl certificate was revoked")
	ErrInvalidCA            = errors.New("invalid certificate authority")
	ErrCertCommonName       = errors.New("ssl certificate common name is incorrect")
	ErrCertExpired          = errors.New("ssl certificate is expired")
	ErrSecureChannel        = errors.New("internal error while loading the ssl libraries")
)

var securityFailures = map[native.SecureFlag]error{
	native.SecureCertRevocationFailed: ErrCertRevocationFailed,
	native.SecureInvalidCert:          ErrInvalidCert,
	native.SecureCertRevoked:          ErrCertRevoked,
	native.SecureInvalidCA:            ErrInvalidCA,
	native.SecureCertCNInvalid:        ErrCertCommonName,
	native.SecureCertDateInvalid:      ErrCertExpired,
	native.SecureChannelError:         ErrSecureChannel,
}

// StepError reports which step of the exchange failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// RequestError is a failure reported asynchronously by the transport.
type RequestError struct {
	API  native.AsyncAPI
	Code native.Errno
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("received error %d in %v: %v", uint32(e.Code), e.API, e.Code)
}

func (e *RequestError) Unwrap() error {
	return e.Code
}

// SecureFailureError is a TLS failure reported by the transport.
type SecureFailureError struct {
	Flags native.SecureFlag
}

func newSecureFailure(flags native.SecureFlag) *SecureFailureError {
	return &SecureFailureError{Flags: flags}
}

func (e *SecureFailureError) Error() string {
	if err, ok := securityFailures[e.Flags]; ok {
		return err.Error()
	}
	return fmt.Sprintf("%v 0x%x", ErrUnknownSecurity, uint32(e.Flags))
}

// Unwrap returns the category sentinel, or ErrUnknownSecurity.
func (e *SecureFailureError) Unwrap() error {
	if err, ok := securityFailures[e.Flags]; ok {
		return err
	}
	return ErrUnknownSecurity
}
