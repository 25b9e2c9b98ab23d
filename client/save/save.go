package save

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// DefaultMode is the permission set on saved files unless [WithMode] is
// given.
const DefaultMode fs.FileMode = 0o644

// File streams r into a temp file in the same directory as destPath and
// renames it to destPath on success. On any error the temp file is
// removed and destPath is left untouched. A size of -1 skips the length
// check.
func File(ctx context.Context, destPath string, r io.Reader, size int64, logger *slog.Logger, optFns ...Option) error {
	if destPath == "" {
		return ErrNoPath
	}

	if logger == nil {
		logger = slog.Default()
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return fmt.Errorf("applying option: %w", err)
		}
	}

	if opts.skipExisting {
		if _, err := os.Stat(destPath); err == nil {
			logger.Info("skipping existing file", "path", destPath)
			return nil
		}
	}

	mode := DefaultMode
	if opts.mode != nil {
		mode = *opts.mode
	}

	file, err := os.CreateTemp(filepath.Dir(destPath), ".asynchttp-save-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	var successful bool
	defer func() {
		if err := file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			logger.Error("defer closing temp file", "error", err)
		}
		if !successful {
			if err := os.Remove(file.Name()); err != nil {
				logger.Error("failed to remove temp file", "error", err)
			}
		}
	}()

	var w io.Writer = file
	if opts.checksum != nil {
		w = io.MultiWriter(w, opts.checksum)
	}

	if opts.progress {
		w = &progressWriter{
			w:         w,
			logger:    logger,
			path:      destPath,
			total:     size,
			startTime: time.Now(),
		}
	}

	n, err := io.Copy(w, &contextReader{ctx: ctx, r: r})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", ErrCancelled, err)
		}

		return fmt.Errorf("copying data: %w", err)
	}

	if size >= 0 && n != size {
		return &Error{
			Err:    ErrSizeMismatch,
			Detail: fmt.Sprintf("expected %d bytes, got %d", size, n),
		}
	}

	if err := opts.checksum.Verify(); err != nil {
		return err
	}

	if err := file.Chmod(mode); err != nil {
		return fmt.Errorf("setting mode: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(file.Name(), destPath); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	successful = true
	logger.Debug("file saved", "path", destPath, "bytes", n)

	return nil
}

// contextReader stops reading once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
