// Command nativefetch issues a single request through the asynchronous
// transport and writes the response to headers.txt and body.txt.
//
//	nativefetch -host www.jetbrains.com -path / -out ./out
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/adamwoolhether/asynchttp/client"
	"github.com/adamwoolhether/asynchttp/client/save"
	"github.com/adamwoolhether/asynchttp/native"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "nativefetch:", err)
		os.Exit(1)
	}
}

type config struct {
	method  string
	host    string
	port    uint
	path    string
	headers []string
	data    string
	plain   bool
	timeout time.Duration
	out     string
	debug   bool
}

func parseFlags(args []string, stderr io.Writer) (config, error) {
	var cfg config

	fs := flag.NewFlagSet("nativefetch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.method, "method", "GET", "request method")
	fs.StringVar(&cfg.host, "host", "www.jetbrains.com", "server host name")
	fs.UintVar(&cfg.port, "port", 0, "server port, 0 selects the scheme default")
	fs.StringVar(&cfg.path, "path", "/", "request path")
	fs.Func("header", "raw header line, may be repeated", func(s string) error {
		if !strings.Contains(s, ":") {
			return fmt.Errorf("header %q must be of the form Name: value", s)
		}
		cfg.headers = append(cfg.headers, s)
		return nil
	})
	fs.StringVar(&cfg.data, "data", "", "request body")
	fs.BoolVar(&cfg.plain, "plain", false, "use plain HTTP instead of TLS")
	fs.DurationVar(&cfg.timeout, "timeout", 0, "overall request timeout, 0 disables it")
	fs.StringVar(&cfg.out, "out", ".", "directory for headers.txt and body.txt")
	fs.BoolVar(&cfg.debug, "debug", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if fs.NArg() > 0 {
		return config{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if cfg.port > 65535 {
		return config{}, fmt.Errorf("port %d out of range", cfg.port)
	}

	return cfg, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	opts := []client.Option{client.WithLogger(logger)}
	if cfg.plain {
		opts = append(opts, client.WithPlainHTTP())
	}

	c, err := client.Build(opts...)
	if err != nil {
		return fmt.Errorf("building client: %w", err)
	}

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	req := client.Request{
		Method:  cfg.method,
		Host:    cfg.host,
		Port:    uint16(cfg.port),
		Path:    cfg.path,
		Headers: cfg.headers,
	}
	if cfg.data != "" {
		req.Body = []byte(cfg.data)
	}

	resp, err := c.Execute(ctx, req)
	if err != nil {
		logger.Error("request failed", "error", err, "code", native.Code(err))
		return err
	}

	var headerLen int
	for _, h := range resp.Headers {
		headerLen += len(h)
	}
	fmt.Fprintf(stdout, "Request was completed with status code %d. Headers length: %d, body: %d\n",
		resp.StatusCode, headerLen, len(resp.Body))

	headers := strings.Join(resp.Headers, "\n")

	b := save.NewBatch(2)
	b.Go(ctx, func(ctx context.Context) error {
		return save.File(ctx, filepath.Join(cfg.out, "headers.txt"), strings.NewReader(headers), int64(len(headers)), logger)
	})
	b.Go(ctx, func(ctx context.Context) error {
		return save.File(ctx, filepath.Join(cfg.out, "body.txt"), bytes.NewReader(resp.Body), int64(len(resp.Body)), logger)
	})

	if err := b.Wait(); err != nil {
		return fmt.Errorf("saving response: %w", err)
	}

	return nil
}
