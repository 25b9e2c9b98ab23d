package save

import (
	"fmt"
	"io"
	"log/slog"
	"time"
)

// progressWriter logs write progress at most once per second.
type progressWriter struct {
	w         io.Writer
	logger    *slog.Logger
	path      string
	written   int64
	total     int64
	startTime time.Time
	lastLog   time.Time
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.written += int64(n)

	if time.Since(pw.lastLog) >= time.Second {
		pw.lastLog = time.Now()
		pw.log("saving")
	}

	return n, err
}

func (pw *progressWriter) log(msg string) {
	attrs := []any{
		"path", pw.path,
		"elapsed", time.Since(pw.startTime).Round(time.Millisecond),
		"written", pw.written,
	}
	if pw.total > 0 {
		attrs = append(attrs,
			"total", pw.total,
			"progress", fmt.Sprintf("%.1f%%", float64(pw.written)/float64(pw.total)*100),
		)
	}
	pw.logger.Info(msg, attrs...)
}
