package native

import (
	"errors"
	"fmt"
)

// Errno is a platform error code. The values match the Win32 and WinHTTP
// error codes so they read the same in logs from either engine.
type Errno uint32

const (
	ErrInvalidHandle         Errno = 6
	ErrInvalidParameter      Errno = 87
	ErrInsufficientBuffer    Errno = 122
	ErrTimeout               Errno = 12002
	ErrInternal              Errno = 12004
	ErrInvalidURL            Errno = 12005
	ErrNameNotResolved       Errno = 12007
	ErrOperationCancelled    Errno = 12017
	ErrIncorrectHandleType   Errno = 12018
	ErrIncorrectHandleState  Errno = 12019
	ErrCannotConnect         Errno = 12029
	ErrConnectionError       Errno = 12030
	ErrHeaderNotFound        Errno = 12150
	ErrInvalidServerResponse Errno = 12152
	ErrSecureFailure         Errno = 12175
)

var errnoNames = map[Errno]string{
	ErrInvalidHandle:         "invalid handle",
	ErrInvalidParameter:      "invalid parameter",
	ErrInsufficientBuffer:    "insufficient buffer",
	ErrTimeout:               "timeout",
	ErrInternal:              "internal error",
	ErrInvalidURL:            "invalid url",
	ErrNameNotResolved:       "name not resolved",
	ErrOperationCancelled:    "operation cancelled",
	ErrIncorrectHandleType:   "incorrect handle type",
	ErrIncorrectHandleState:  "incorrect handle state",
	ErrCannotConnect:         "cannot connect",
	ErrConnectionError:       "connection error",
	ErrHeaderNotFound:        "header not found",
	ErrInvalidServerResponse: "invalid server response",
	ErrSecureFailure:         "secure failure",
}

func (e Errno) Error() string {
	if name, ok := errnoNames[e]; ok {
		return fmt.Sprintf("errno %d (%s)", uint32(e), name)
	}
	return fmt.Sprintf("errno %d", uint32(e))
}

// Error is returned by every failing [Transport] call.
type Error struct {
	Op   string
	Code Errno
	Err  error
}

// NewError builds an *Error for op. err may be nil.
func NewError(op string, code Errno, err error) *Error {
	return &Error{Op: op, Code: code, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Code)
}

// Unwrap exposes both the Errno and the underlying cause, so
// errors.Is(err, native.ErrTimeout) works through wrapping.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Code}
	}
	return []error{e.Code, e.Err}
}

// Code extracts the Errno from err, or 0 if err carries none.
func Code(err error) Errno {
	var code Errno
	if errors.As(err, &code) {
		return code
	}
	return 0
}
