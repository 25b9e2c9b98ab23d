package client

import (
	"bytes"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/asynchttp/native"
)

// exchange owns every native resource of one request and advances through
// the lifecycle as completion events arrive. All methods are safe to call
// from the caller's goroutine and the transport's callback goroutines;
// once disposed they do nothing.
//
// The continuations run with the exchange locked and must not block.
type exchange struct {
	transport  native.Transport
	logger     *slog.Logger
	span       trace.Span
	token      native.Token
	onComplete func(Response)
	onError    func(error)

	mu         sync.Mutex
	state      State
	disposed   bool
	registered bool
	session    native.Handle
	conn       native.Handle
	request    native.Handle
	buffer     *native.Buffer
	body       *pinnedBody
	respBody   bytes.Buffer
	headers    []string
	statusCode int
}

func newExchange(t native.Transport, logger *slog.Logger, span trace.Span, onComplete func(Response), onError func(error)) *exchange {
	return &exchange{
		transport:  t,
		logger:     logger,
		span:       span,
		token:      routes.reserve(),
		onComplete: onComplete,
		onError:    onError,
	}
}

// pinnedBody keeps the outbound body at a fixed address while the
// transport writes it.
type pinnedBody struct {
	data   []byte
	pinner runtime.Pinner
}

func pin(data []byte) *pinnedBody {
	p := &pinnedBody{data: data}
	p.pinner.Pin(&data[0])
	return p
}

func (p *pinnedBody) unpin() {
	p.pinner.Unpin()
}

func (x *exchange) createSession(userAgent string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.disposed {
		return
	}

	h, err := x.transport.OpenSession(userAgent)
	if err = opened(h, err, "OpenSession"); err != nil {
		x.rejectLocked(&StepError{Step: "create session", Err: err})
		return
	}

	x.session = h
	x.enterLocked(StateSessionOpen)
}

func (x *exchange) setTimeouts(t native.Timeouts) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.disposed || !x.expectLocked("set timeouts", StateSessionOpen) {
		return
	}

	if err := x.transport.SetTimeouts(x.session, t); err != nil {
		x.rejectLocked(&StepError{Step: "set timeouts", Err: err})
	}
}

func (x *exchange) createConnection(host string, port uint16) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.disposed {
		return
	}

	h, err := x.transport.Connect(x.session, host, port)
	if err = opened(h, err, "Connect"); err != nil {
		x.rejectLocked(&StepError{Step: "create connection", Err: err})
		return
	}

	x.conn = h
	x.enterLocked(StateConnectionOpen)
}

func (x *exchange) openRequest(method, path string, flags native.RequestFlag) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.disposed {
		return
	}

	h, err := x.transport.OpenRequest(x.conn, method, path, flags)
	if err = opened(h, err, "OpenRequest"); err != nil {
		x.rejectLocked(&StepError{Step: "open request", Err: err})
		return
	}

	x.request = h
	x.enterLocked(StateRequestOpen)
}

func (x *exchange) appendHeaders(lines []string) {
	if len(lines) == 0 {
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.disposed || !x.expectLocked("append headers", StateRequestOpen) {
		return
	}

	if err := x.transport.AddHeaders(x.request, strings.Join(lines, "\r\n")); err != nil {
		x.rejectLocked(&StepError{Step: "append headers", Err: err})
	}
}

func (x *exchange) attachBody(data []byte) {
	if len(data) == 0 {
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.disposed || !x.expectLocked("attach body", StateRequestOpen) {
		return
	}

	x.body = pin(data)
}

// send installs the dispatcher on the request handle, registers the
// token and issues the asynchronous send.
func (x *exchange) send() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.disposed || !x.enterLocked(StateSending) {
		return
	}

	prev, err := x.transport.SetStatusCallback(x.request, dispatch)
	if err != nil {
		x.rejectLocked(&StepError{Step: "register callback", Err: err})
		return
	}
	if prev != nil {
		x.rejectLocked(&StepError{Step: "register callback", Err: ErrCallbackExists})
		return
	}

	routes.add(x.token, x)
	x.registered = true

	var total int
	if x.body != nil {
		total = len(x.body.data)
	}

	if err := x.transport.SendRequest(x.request, total, x.token); err != nil {
		x.rejectLocked(&StepError{Step: "send request", Err: err})
		return
	}

	x.enterLocked(StateAwaitingSendComplete)
}

// onSendComplete writes the pinned body if there is one, otherwise it asks
// for the response straight away.
func (x *exchange) onSendComplete() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.disposed || !x.expectLocked("send complete", StateAwaitingSendComplete) {
		return
	}

	if x.body == nil {
		x.receiveResponseLocked()
		return
	}

	if !x.enterLocked(StateWritingBody) {
		return
	}
	if err := x.transport.WriteData(x.request, x.body.data); err != nil {
		x.rejectLocked(&StepError{Step: "write data", Err: err})
	}
}

func (x *exchange) onWriteComplete() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.disposed || !x.expectLocked("write complete", StateWritingBody) {
		return
	}

	x.body.unpin()
	x.body = nil

	x.receiveResponseLocked()
}

func (x *exchange) receiveResponseLocked() {
	if !x.enterLocked(StateAwaitingResponse) {
		return
	}
	if err := x.transport.ReceiveResponse(x.request); err != nil {
		x.rejectLocked(&StepError{Step: "receive response", Err: err})
	}
}

// readHeaders stores the raw header block and the status code, then asks
// how much body data is available.
func (x *exchange) readHeaders() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.disposed || !x.enterLocked(StateHeadersAvailable) {
		return
	}

	raw, err := x.queryLocked(native.QueryRawHeadersCRLF, "query headers length", "query headers")
	if err != nil {
		x.rejectLocked(err)
		return
	}

	x.headers = splitHeaderBlock(raw)
	x.logger.Debug("received headers", "lines", len(x.headers), "chars", len(raw))

	status, err := x.queryLocked(native.QueryStatusCode, "query status code length", "query status code")
	if err != nil {
		x.rejectLocked(err)
		return
	}

	code, err := strconv.Atoi(strings.TrimSpace(status))
	if err != nil {
		x.rejectLocked(&StepError{Step: "parse status code", Err: err})
		return
	}
	x.statusCode = code

	x.queryDataLocked()
}

// queryLocked runs the two-phase header query: a size probe that is
// expected to fail with ErrInsufficientBuffer, then the fetch.
func (x *exchange) queryLocked(q native.Query, probeStep, fetchStep string) (string, error) {
	size, err := x.transport.QueryHeaders(x.request, q, nil)
	if err == nil {
		return "", nil
	}
	if native.Code(err) != native.ErrInsufficientBuffer {
		return "", &StepError{Step: probeStep, Err: err}
	}

	buf := make([]byte, size)
	n, err := x.transport.QueryHeaders(x.request, q, buf)
	if err != nil {
		return "", &StepError{Step: fetchStep, Err: err}
	}

	return string(buf[:n]), nil
}

// readResponseData reads size bytes into a fresh buffer. A size of zero
// means the body is exhausted.
func (x *exchange) readResponseData(size uint32) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.disposed {
		return
	}

	if size == 0 {
		x.completeLocked()
		return
	}

	if !x.enterLocked(StateReadingBody) {
		return
	}

	x.logger.Debug("allocating read buffer", "bytes", size)
	buf := native.NewBuffer(int(size) + 1)
	if old := x.buffer; old != nil {
		old.Release()
	}
	x.buffer = buf

	if err := x.transport.ReadData(x.request, buf.Bytes()[:size]); err != nil {
		x.rejectLocked(&StepError{Step: "read data", Err: err})
	}
}

// onReadComplete appends the n bytes that landed in the current buffer.
func (x *exchange) onReadComplete(n uint32) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.disposed || !x.expectLocked("read complete", StateReadingBody) {
		return
	}

	buf := x.buffer
	x.buffer = nil
	if buf == nil || n == 0 {
		if buf != nil {
			buf.Release()
		}
		x.rejectLocked(&StepError{Step: "read complete", Err: ErrNoBuffer})
		return
	}
	if size := buf.Len() - 1; int(n) > size {
		buf.Release()
		x.rejectLocked(&StepError{Step: "read complete", Err: fmt.Errorf("%w: read %d bytes into a %d byte buffer", ErrInvalidState, n, size)})
		return
	}

	x.respBody.Write(buf.Bytes()[:n])
	buf.Release()

	x.queryDataLocked()
}

func (x *exchange) queryDataLocked() {
	if err := x.transport.QueryDataAvailable(x.request); err != nil {
		x.rejectLocked(&StepError{Step: "query data available", Err: err})
	}
}

func (x *exchange) complete() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.disposed {
		return
	}
	x.completeLocked()
}

func (x *exchange) completeLocked() {
	if !x.enterLocked(StateComplete) {
		return
	}

	resp := Response{
		StatusCode: x.statusCode,
		Headers:    x.headers,
		Body:       x.respBody.Bytes(),
	}
	x.disposeLocked()

	x.logger.Info("request complete", "status", resp.StatusCode, "headers", len(resp.Headers), "body", len(resp.Body))
	x.span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode), attribute.Int("http.response_size", len(resp.Body)))

	x.onComplete(resp)
}

func (x *exchange) reject(err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.rejectLocked(err)
}

func (x *exchange) rejectLocked(err error) {
	if x.disposed {
		return
	}

	x.logger.Error("request failed", "state", x.state, "error", err)
	x.span.RecordError(err)
	x.span.SetStatus(codes.Error, err.Error())

	x.state = StateRejected
	x.disposeLocked()

	x.onError(err)
}

// dispose releases every resource the exchange holds. It runs at most once
// and leaves the caller's result unsettled, so it doubles as cancellation.
func (x *exchange) dispose() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if !x.disposed {
		x.logger.Debug("exchange disposed before completion", "state", x.state)
	}
	x.disposeLocked()
}

func (x *exchange) disposeLocked() {
	if x.disposed {
		return
	}
	x.disposed = true

	if x.request != 0 {
		if _, err := x.transport.SetStatusCallback(x.request, nil); err != nil {
			x.logger.Warn("clearing status callback", "error", err)
		}
		x.closeLocked(x.request, "request")
		x.request = 0
	}
	if x.conn != 0 {
		x.closeLocked(x.conn, "connection")
		x.conn = 0
	}
	if x.session != 0 {
		x.closeLocked(x.session, "session")
		x.session = 0
	}

	// An outstanding read may still land in the buffer after the handle
	// is closed, so its memory is left to the garbage collector.
	if x.buffer != nil {
		x.buffer.Abandon()
		x.buffer = nil
	}
	if x.body != nil {
		x.body.unpin()
		x.body = nil
	}

	if x.registered {
		routes.remove(x.token)
		x.registered = false
	}
}

func (x *exchange) closeLocked(h native.Handle, kind string) {
	if err := x.transport.CloseHandle(h); err != nil {
		x.logger.Warn("closing handle", "kind", kind, "handle", h, "error", err)
	}
}

// active reports whether the exchange still accepts events.
func (x *exchange) active() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return !x.disposed
}

// enterLocked moves to state to, rejecting the exchange if to cannot
// follow the current state.
func (x *exchange) enterLocked(to State) bool {
	if !canEnter(x.state, to) {
		x.rejectLocked(&StepError{
			Step: "enter " + to.String(),
			Err:  fmt.Errorf("%w: %v to %v", ErrInvalidState, x.state, to),
		})
		return false
	}

	x.logger.Debug("exchange state", "from", x.state, "to", to)
	x.span.AddEvent(to.String())
	x.state = to

	return true
}

// expectLocked rejects the exchange unless it is in one of states.
func (x *exchange) expectLocked(step string, states ...State) bool {
	if slices.Contains(states, x.state) {
		return true
	}

	x.rejectLocked(&StepError{
		Step: step,
		Err:  fmt.Errorf("%w: %s in state %v", ErrInvalidState, step, x.state),
	})

	return false
}

// opened turns a nil handle with no error into an error.
func opened(h native.Handle, err error, op string) error {
	if err != nil {
		return err
	}
	if h == 0 {
		return native.NewError(op, native.ErrInternal, nil)
	}
	return nil
}
