package save

import (
	"errors"
	"fmt"
)

var (
	ErrSizeMismatch     = errors.New("size mismatch")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrCancelled        = errors.New("save cancelled")
	ErrBatchShutdown    = errors.New("batch is shut down")
	ErrNoPath           = errors.New("destination path must not be empty")
)

type Error struct {
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}
