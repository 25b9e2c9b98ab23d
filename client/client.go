package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/asynchttp/client/throttle"
	"github.com/adamwoolhether/asynchttp/native"
	"github.com/adamwoolhether/asynchttp/native/nettransport"
)

// DefaultUserAgent is the user agent sessions are opened with unless
// [WithUserAgent] is given.
const DefaultUserAgent = "WinHTTP Example/1.0"

// DefaultTimeouts are applied to every session unless [WithTimeouts] is
// given.
var DefaultTimeouts = native.Timeouts{
	Resolve: 1 * time.Minute,
	Connect: 2 * time.Minute,
	Send:    2 * time.Minute,
	Receive: 2 * time.Minute,
}

// Client issues single-shot requests over a [native.Transport]. Each call
// to [Client.Execute] opens and closes its own session, connection and
// request handles; nothing is pooled.
type Client struct {
	transport native.Transport
	userAgent string
	timeouts  native.Timeouts
	flags     native.RequestFlag
	throttle  *throttle.Limiter
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Build instantiates a *Client with the provided options.
// If not specified, a [nettransport.Transport] over TLS is used.
func Build(optFns ...Option) (*Client, error) {
	client := &Client{
		userAgent: DefaultUserAgent,
		timeouts:  DefaultTimeouts,
		flags:     native.FlagSecure,
		logger:    slog.Default(),
		tracer:    noop.NewTracerProvider().Tracer(""),
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	if opts.logger != nil {
		client.logger = opts.logger
	}

	if opts.tracer != nil {
		client.tracer = opts.tracer
	}

	if opts.userAgent != nil {
		client.userAgent = *opts.userAgent
	}

	if opts.timeouts != nil {
		client.timeouts = *opts.timeouts
	}

	if opts.plainHTTP {
		client.flags &^= native.FlagSecure
	}

	switch {
	case opts.transport != nil:
		client.transport = opts.transport
	default:
		t, err := nettransport.New(nettransport.WithLogger(client.logger))
		if err != nil {
			return nil, fmt.Errorf("configuring transport: %w", err)
		}
		client.transport = t
	}

	if opts.throttle != nil {
		l, err := throttle.New(opts.throttle.RPS, opts.throttle.Burst, func() *slog.Logger { return client.logger })
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		client.throttle = l
	}

	return client, nil
}

// Execute issues req and blocks until it completes, fails, or ctx ends.
//
// Exactly one of the Response or the error is meaningful. When ctx ends
// first, every native resource is released and ctx.Err() is returned; no
// partial Response is ever surfaced.
func (c *Client) Execute(ctx context.Context, req Request) (Response, error) {
	if err := Validate(req); err != nil {
		return Response{}, fmt.Errorf("validating request: %w", err)
	}

	if c.throttle != nil {
		if err := c.throttle.Wait(ctx, req.Path); err != nil {
			return Response{}, fmt.Errorf("throttle: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	ctx, span := c.tracer.Start(ctx, "asynchttp.execute", trace.WithAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("net.peer.name", req.Host),
		attribute.Int("net.peer.port", int(req.Port)),
		attribute.String("http.target", req.Path),
	))
	defer span.End()

	requestID := span.SpanContext().TraceID().String()
	if !span.SpanContext().TraceID().IsValid() {
		requestID = uuid.New().String()
	}
	logger := c.logger.With("request_id", requestID)

	res := newResult()
	x := newExchange(c.transport, logger, span,
		func(resp Response) { res.resolve(resp) },
		func(err error) { res.fail(err) },
	)

	stop := context.AfterFunc(ctx, x.dispose)
	defer stop()

	x.createSession(c.userAgent)
	x.setTimeouts(c.timeouts)
	x.createConnection(req.Host, req.Port)
	x.openRequest(req.Method, req.Path, c.flags)
	x.appendHeaders(req.Headers)
	x.attachBody(req.Body)
	x.send()

	logger.Debug("request sent", "method", req.Method, "host", req.Host, "path", req.Path)

	select {
	case o := <-res.done():
		return o.resp, o.err
	case <-ctx.Done():
		x.dispose()
		select {
		case o := <-res.done():
			return o.resp, o.err
		default:
		}
		logger.Info("request cancelled", "error", ctx.Err())
		return Response{}, ctx.Err()
	}
}
