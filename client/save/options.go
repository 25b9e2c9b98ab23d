package save

import (
	"errors"
	"hash"
	"io/fs"
)

// Option defines optional settings for saving files.
// WithChecksum verifies the written bytes against expected, the
// hex-encoded digest produced by h (e.g. sha256.New()).
//
// WithProgress logs write progress through the logger given to File.
//
// WithSkipExisting makes File return nil without writing when the
// destination already exists.
//
// WithMode sets the permission bits of the final file.
type Option func(*options) error

type options struct {
	checksum     *checksumVerifier
	progress     bool
	skipExisting bool
	mode         *fs.FileMode
}

func WithChecksum(h hash.Hash, expected string) Option {
	return func(opts *options) error {
		if h == nil {
			return errors.New("hash must not be nil")
		}

		if expected == "" {
			return errors.New("expected checksum must not be empty")
		}

		opts.checksum = &checksumVerifier{hash: h, expected: expected}
		return nil
	}
}

func WithProgress() Option {
	return func(opts *options) error {
		opts.progress = true
		return nil
	}
}

func WithSkipExisting() Option {
	return func(opts *options) error {
		opts.skipExisting = true
		return nil
	}
}

func WithMode(mode fs.FileMode) Option {
	return func(opts *options) error {
		if mode&^fs.ModePerm != 0 {
			return errors.New("mode must only contain permission bits")
		}

		opts.mode = &mode
		return nil
	}
}
