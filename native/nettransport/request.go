package nettransport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adamwoolhether/asynchttp/native"
)

type phase int

const (
	phaseOpen phase = iota
	phaseSending
	phaseSent
	phaseReceiving
	phaseHeaders
)

// request is the state behind a request handle. Fields under mu are shared
// with the API methods; the rest belong to the worker goroutine.
type request struct {
	t      *Transport
	conn   *connection
	handle native.Handle
	method string
	path   string
	secure bool
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan func()

	mu         sync.Mutex
	phase      phase
	cb         native.Callback
	token      native.Token
	headers    []string
	total      int
	written    int
	rawHeaders string
	statusCode int
	nc         net.Conn

	br      *bufio.Reader
	body    io.Reader
	stage   []byte
	pending []byte
	eof     bool
	readErr error
}

func newRequest(t *Transport, c *connection, method, path string, secure bool) *request {
	ctx, cancel := context.WithCancel(context.Background())

	return &request{
		t:      t,
		conn:   c,
		method: method,
		path:   path,
		secure: secure,
		logger: t.logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(chan func(), 4),
	}
}

// enqueue hands job to the worker. It never blocks.
func (r *request) enqueue(op string, job func()) error {
	if r.ctx.Err() != nil {
		return native.NewError(op, native.ErrInvalidHandle, nil)
	}

	select {
	case r.jobs <- job:
		return nil
	default:
		return native.NewError(op, native.ErrIncorrectHandleState, errors.New("too many pending operations"))
	}
}

func (r *request) run() {
	defer r.shutdown()

	for {
		select {
		case <-r.ctx.Done():
			return
		case job := <-r.jobs:
			if r.ctx.Err() != nil {
				return
			}
			job()
		}
	}
}

// close abandons the request. Blocked I/O is interrupted by closing the
// socket; the worker exits on its own.
func (r *request) close() {
	r.cancel()

	r.mu.Lock()
	nc := r.nc
	r.mu.Unlock()

	if nc != nil {
		nc.Close()
	}
}

func (r *request) shutdown() {
	r.mu.Lock()
	nc := r.nc
	r.nc = nil
	cb, token := r.cb, r.token
	r.mu.Unlock()

	if nc != nil {
		nc.Close()
	}
	if cb != nil {
		cb(r.handle, token, native.StatusHandleClosing, native.StatusInfo{}, 0)
	}

	r.logger.Debug("request worker stopped")
}

// emit delivers a notification unless the handle has been closed.
func (r *request) emit(status native.Status, info native.StatusInfo, length uint32) {
	if r.ctx.Err() != nil {
		return
	}

	r.mu.Lock()
	cb, token := r.cb, r.token
	r.mu.Unlock()

	if cb != nil {
		cb(r.handle, token, status, info, length)
	}
}

func (r *request) fail(api native.AsyncAPI, code native.Errno, err error) {
	r.logger.Debug("async operation failed", "api", api, "code", code, "error", err)
	r.emit(native.StatusRequestError, native.StatusInfo{Result: native.AsyncResult{API: api, Error: code}}, 0)
}

func (r *request) hasHeaders() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase == phaseHeaders
}

func (r *request) timeouts() native.Timeouts {
	return r.conn.session.limits()
}

func (r *request) port() uint16 {
	switch {
	case r.conn.port != native.DefaultPort:
		return r.conn.port
	case r.secure:
		return 443
	default:
		return 80
	}
}

// send dials, writes the request head and reports send complete.
func (r *request) send() {
	limits := r.timeouts()

	if err := r.dial(limits); err != nil {
		return
	}

	r.mu.Lock()
	head := writeRequestHead(r.method, r.path, r.authority(), r.conn.session.userAgent, r.total, r.headers)
	r.mu.Unlock()

	r.emit(native.StatusSendingRequest, native.StatusInfo{}, 0)
	if err := r.writeFull(head, limits.Send); err != nil {
		r.fail(native.APISendRequest, classify(err, native.ErrConnectionError), err)
		return
	}
	r.emit(native.StatusRequestSent, native.StatusInfo{}, uint32(len(head)))

	r.mu.Lock()
	r.phase = phaseSent
	r.mu.Unlock()

	r.logger.Debug("request head sent", "bytes", len(head), "body", r.total)
	r.emit(native.StatusSendRequestComplete, native.StatusInfo{}, 0)
}

// dial resolves the host and opens the socket, reporting any failure to
// the callback itself.
func (r *request) dial(limits native.Timeouts) error {
	r.emit(native.StatusResolvingName, native.StatusInfo{}, 0)

	rctx, cancel := withTimeout(r.ctx, limits.Resolve)
	addrs, err := r.t.resolver.LookupHost(rctx, r.conn.host)
	cancel()
	if err != nil {
		r.fail(native.APISendRequest, classify(err, native.ErrNameNotResolved), err)
		return err
	}
	r.emit(native.StatusNameResolved, native.StatusInfo{}, 0)

	r.emit(native.StatusConnectingToServer, native.StatusInfo{}, 0)
	d := net.Dialer{Timeout: limits.Connect}
	port := strconv.Itoa(int(r.port()))

	var nc net.Conn
	for _, addr := range addrs {
		nc, err = d.DialContext(r.ctx, "tcp", net.JoinHostPort(addr, port))
		if err == nil {
			break
		}
		r.logger.Debug("dial failed", "addr", addr, "error", err)
	}
	if err != nil {
		r.fail(native.APISendRequest, classify(err, native.ErrCannotConnect), err)
		return err
	}
	r.emit(native.StatusConnectedToServer, native.StatusInfo{}, 0)

	if r.secure {
		tc, err := r.handshake(nc, limits.Connect)
		if err != nil {
			nc.Close()
			return err
		}
		nc = tc
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ctx.Err(); err != nil {
		nc.Close()
		return err
	}
	r.nc = nc
	r.br = bufio.NewReader(nc)

	return nil
}

// authority is the Host header value. The port is omitted when it is the
// scheme default.
func (r *request) authority() string {
	host, port := r.conn.host, r.port()
	if (r.secure && port == 443) || (!r.secure && port == 80) {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}

func (r *request) writeFull(buf []byte, timeout time.Duration) error {
	if err := r.nc.SetWriteDeadline(deadline(timeout)); err != nil {
		return err
	}
	_, err := r.nc.Write(buf)
	return err
}

func (r *request) write(buf []byte) {
	if err := r.writeFull(buf, r.timeouts().Send); err != nil {
		r.fail(native.APIWriteData, classify(err, native.ErrConnectionError), err)
		return
	}
	r.emit(native.StatusWriteComplete, native.StatusInfo{}, uint32(len(buf)))
}

func (r *request) receive() {
	r.emit(native.StatusReceivingResponse, native.StatusInfo{}, 0)

	if err := r.nc.SetReadDeadline(deadline(r.timeouts().Receive)); err != nil {
		r.fail(native.APIReceiveResponse, classify(err, native.ErrConnectionError), err)
		return
	}

	head, err := readResponseHead(r.br, r.method)
	if err != nil {
		r.fail(native.APIReceiveResponse, classify(err, native.ErrInvalidServerResponse), err)
		return
	}
	r.emit(native.StatusResponseReceived, native.StatusInfo{}, uint32(len(head.raw)))

	r.mu.Lock()
	r.rawHeaders = head.raw
	r.statusCode = head.code
	r.phase = phaseHeaders
	r.mu.Unlock()
	r.body = head.body

	r.logger.Debug("response head received", "status", head.code, "bytes", len(head.raw))
	r.emit(native.StatusHeadersAvailable, native.StatusInfo{}, 0)
}

// available stages up to readSize body bytes and reports how many are
// ready. Zero means the body is exhausted.
func (r *request) available() {
	if len(r.pending) == 0 && !r.eof && r.readErr == nil {
		if r.stage == nil {
			r.stage = make([]byte, r.t.readSize)
		}
		if err := r.nc.SetReadDeadline(deadline(r.timeouts().Receive)); err != nil {
			r.fail(native.APIQueryDataAvailable, classify(err, native.ErrConnectionError), err)
			return
		}

		for {
			n, err := r.body.Read(r.stage)
			r.pending = r.stage[:n]
			r.record(err)
			if n > 0 || err != nil {
				break
			}
		}
	}

	if len(r.pending) == 0 && r.readErr != nil {
		r.fail(native.APIQueryDataAvailable, classify(r.readErr, native.ErrConnectionError), r.readErr)
		return
	}

	r.emit(native.StatusDataAvailable, native.StatusInfo{Available: uint32(len(r.pending))}, 0)
}

// read copies staged bytes into buf, reading from the socket only when
// nothing is staged.
func (r *request) read(buf []byte) {
	var n int
	switch {
	case len(r.pending) > 0:
		n = copy(buf, r.pending)
		r.pending = r.pending[n:]

	case !r.eof && r.readErr == nil:
		if err := r.nc.SetReadDeadline(deadline(r.timeouts().Receive)); err != nil {
			r.fail(native.APIReadData, classify(err, native.ErrConnectionError), err)
			return
		}
		var err error
		n, err = r.body.Read(buf)
		r.record(err)
		if n == 0 && r.readErr != nil {
			r.fail(native.APIReadData, classify(r.readErr, native.ErrConnectionError), r.readErr)
			return
		}

	case r.readErr != nil:
		r.fail(native.APIReadData, classify(r.readErr, native.ErrConnectionError), r.readErr)
		return
	}

	r.emit(native.StatusReadComplete, native.StatusInfo{}, uint32(n))
}

// record keeps a body read error for after the staged bytes are drained.
func (r *request) record(err error) {
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		r.eof = true
	default:
		r.readErr = err
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// deadline maps a zero timeout to no deadline.
func deadline(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}
