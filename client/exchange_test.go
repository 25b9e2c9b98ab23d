package client

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/asynchttp/native"
	"github.com/adamwoolhether/asynchttp/native/nativetest"
)

type harness struct {
	t  *testing.T
	ft *nativetest.Transport
	x  *exchange
	r  *result
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ft := nativetest.New()
	r := newResult()
	x := newExchange(ft, slog.New(slog.DiscardHandler), trace.SpanFromContext(context.Background()),
		func(resp Response) { r.resolve(resp) },
		func(err error) { r.fail(err) },
	)

	return &harness{t: t, ft: ft, x: x, r: r}
}

// start drives the exchange the way Client.Execute does, up to the send.
func (h *harness) start(req Request) {
	h.x.createSession(DefaultUserAgent)
	h.x.setTimeouts(DefaultTimeouts)
	h.x.createConnection(req.Host, req.Port)
	h.x.openRequest(req.Method, req.Path, native.FlagSecure)
	h.x.appendHeaders(req.Headers)
	h.x.attachBody(req.Body)
	h.x.send()
}

func (h *harness) emit(status native.Status, info native.StatusInfo, length uint32) {
	h.t.Helper()
	if !h.ft.Emit(status, info, length) {
		h.t.Fatalf("no callback installed for %v", status)
	}
}

// toBody runs the exchange from send complete to the first data available.
func (h *harness) toBody() {
	h.t.Helper()
	h.emit(native.StatusSendRequestComplete, native.StatusInfo{}, 0)
	h.emit(native.StatusHeadersAvailable, native.StatusInfo{}, 0)
}

// chunk delivers one data available / read complete pair.
func (h *harness) chunk(data []byte) {
	h.t.Helper()
	h.emit(native.StatusDataAvailable, native.StatusInfo{Available: uint32(len(data))}, 0)
	if n := h.ft.Fill(data); n != len(data) {
		h.t.Fatalf("expected to fill %d bytes, filled %d", len(data), n)
	}
	h.emit(native.StatusReadComplete, native.StatusInfo{}, uint32(len(data)))
}

func (h *harness) outcome() (outcome, bool) {
	select {
	case o := <-h.r.done():
		return o, true
	default:
		return outcome{}, false
	}
}

func (h *harness) mustFail(step string, target error) {
	h.t.Helper()

	o, ok := h.outcome()
	if !ok {
		h.t.Fatal("expected the exchange to be rejected")
	}

	var se *StepError
	if step != "" {
		if !errors.As(o.err, &se) {
			h.t.Fatalf("expected *StepError, got %T: %v", o.err, o.err)
		}
		if se.Step != step {
			h.t.Errorf("expected step %q, got %q", step, se.Step)
		}
	}
	if !errors.Is(o.err, target) {
		h.t.Errorf("expected %v, got %v", target, o.err)
	}
}

// mustBeReleased checks every opened handle was closed exactly once.
func (h *harness) mustBeReleased() {
	h.t.Helper()

	opened := h.ft.Opened()
	if len(opened) == 0 {
		h.t.Fatal("expected at least one handle to be opened")
	}
	for _, hd := range opened {
		if n := h.ft.Closes(hd); n != 1 {
			h.t.Errorf("expected handle %v closed once, got %d", hd, n)
		}
	}
	if _, ok := routes.lookup(h.x.token); ok {
		h.t.Error("expected token to be removed from the registry")
	}
	if h.x.buffer != nil || h.x.body != nil {
		h.t.Error("expected buffer and body to be released")
	}
}

var getRoot = Request{Method: "GET", Host: "www.example.com", Port: 443, Path: "/"}

func TestExchange_EmptyBodySkipsWrite(t *testing.T) {
	h := newHarness(t)
	h.start(getRoot)

	h.emit(native.StatusSendRequestComplete, native.StatusInfo{}, 0)

	if n := h.ft.Count("WriteData"); n != 0 {
		t.Errorf("expected no body write, got %d", n)
	}
	if n := h.ft.Count("ReceiveResponse"); n != 1 {
		t.Errorf("expected one ReceiveResponse, got %d", n)
	}
	if h.x.state != StateAwaitingResponse {
		t.Errorf("expected state %v, got %v", StateAwaitingResponse, h.x.state)
	}

	calls := h.ft.Calls()
	send := calls[slices.IndexFunc(calls, func(c nativetest.Call) bool { return c.Op == "SendRequest" })]
	if send.Size != 0 {
		t.Errorf("expected zero total length, got %d", send.Size)
	}
}

func TestExchange_BodyWrittenOnce(t *testing.T) {
	body := []byte(`{"name":"alice"}`)

	h := newHarness(t)
	req := getRoot
	req.Method = "POST"
	req.Body = body
	h.start(req)

	h.emit(native.StatusSendRequestComplete, native.StatusInfo{}, 0)

	if n := h.ft.Count("ReceiveResponse"); n != 0 {
		t.Fatalf("expected response reception to wait for the write, got %d calls", n)
	}
	if h.x.state != StateWritingBody {
		t.Errorf("expected state %v, got %v", StateWritingBody, h.x.state)
	}

	h.emit(native.StatusWriteComplete, native.StatusInfo{}, uint32(len(body)))

	if n := h.ft.Count("WriteData"); n != 1 {
		t.Errorf("expected exactly one write, got %d", n)
	}
	if diff := cmp.Diff(body, h.ft.Written()); diff != "" {
		t.Errorf("written body mismatch (-want +got):\n%s", diff)
	}
	if h.x.body != nil {
		t.Error("expected the body to be unpinned after the write")
	}

	var sendSize, writeSize int
	for _, c := range h.ft.Calls() {
		switch c.Op {
		case "SendRequest":
			sendSize = c.Size
		case "WriteData":
			writeSize = c.Size
		}
	}
	if sendSize != len(body) || writeSize != len(body) {
		t.Errorf("expected send and write sized %d, got %d and %d", len(body), sendSize, writeSize)
	}

	ops := h.ft.Ops()
	if slices.Index(ops, "WriteData") > slices.Index(ops, "ReceiveResponse") {
		t.Errorf("expected write before receive, got %v", ops)
	}
}

func TestExchange_SingleChunkScenario(t *testing.T) {
	chunk := bytes.Repeat([]byte("x"), 50)

	h := newHarness(t)
	req := getRoot
	req.Headers = []string{"Accept: */*"}
	h.start(req)

	calls := h.ft.Calls()
	add := calls[slices.IndexFunc(calls, func(c nativetest.Call) bool { return c.Op == "AddHeaders" })]
	if add.Arg != "Accept: */*" {
		t.Errorf("unexpected header text %q", add.Arg)
	}

	h.toBody()

	h.emit(native.StatusDataAvailable, native.StatusInfo{Available: 50}, 0)
	if h.x.buffer == nil || h.x.buffer.Len() != 51 {
		t.Fatalf("expected a 51 byte buffer, got %v", h.x.buffer)
	}
	buf := h.x.buffer

	h.ft.Fill(chunk)
	h.emit(native.StatusReadComplete, native.StatusInfo{}, 50)
	if !buf.Released() {
		t.Error("expected the read buffer to be released after the read")
	}

	h.emit(native.StatusDataAvailable, native.StatusInfo{Available: 0}, 0)

	o, ok := h.outcome()
	if !ok {
		t.Fatal("expected the exchange to complete")
	}
	if o.err != nil {
		t.Fatalf("unexpected error: %v", o.err)
	}
	if diff := cmp.Diff(chunk, o.resp.Body); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
	if o.resp.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", o.resp.StatusCode)
	}
	if n := h.ft.Count("ReadData"); n != 1 {
		t.Errorf("expected one read, got %d", n)
	}
	if h.x.state != StateComplete {
		t.Errorf("expected state %v, got %v", StateComplete, h.x.state)
	}

	h.mustBeReleased()
}

func TestExchange_BodyConcatenation(t *testing.T) {
	testCases := map[string][][]byte{
		"no chunks":     nil,
		"one chunk":     {[]byte("hello")},
		"three chunks":  {[]byte("a"), []byte("bc"), []byte("def")},
		"binary chunks": {{0x00, 0xff}, {0x00}, {0x7f, 0x80, 0x00}},
		"large chunk":   {bytes.Repeat([]byte("z"), 9000), []byte("tail")},
	}

	for name, chunks := range testCases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.start(getRoot)
			h.toBody()

			for _, c := range chunks {
				h.chunk(c)
			}
			h.emit(native.StatusDataAvailable, native.StatusInfo{}, 0)

			o, ok := h.outcome()
			if !ok || o.err != nil {
				t.Fatalf("expected completion, got %v (settled %t)", o.err, ok)
			}

			want := bytes.Join(chunks, nil)
			if !bytes.Equal(want, o.resp.Body) {
				t.Errorf("expected body %q, got %q", want, o.resp.Body)
			}
			h.mustBeReleased()
		})
	}
}

func TestExchange_ReadHeaders(t *testing.T) {
	testCases := map[string]struct {
		raw       string
		status    string
		expLines  []string
		expStatus int
	}{
		"status and headers": {
			raw:       "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nX-Trace: abc\r\n\r\n",
			status:    "200",
			expLines:  []string{"HTTP/1.1 200 OK", "Content-Type: text/plain", "X-Trace: abc"},
			expStatus: 200,
		},
		"not found": {
			raw:       "HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n",
			status:    "404",
			expLines:  []string{"HTTP/1.1 404 Not Found", "Content-Length: 0"},
			expStatus: 404,
		},
		"bare newlines": {
			raw:       "HTTP/1.0 204 No Content\nServer: x\n",
			status:    "204",
			expLines:  []string{"HTTP/1.0 204 No Content", "Server: x"},
			expStatus: 204,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.ft.RawHeaders = tc.raw
			h.ft.StatusText = tc.status
			h.start(getRoot)
			h.toBody()

			var sizes []int
			for _, c := range h.ft.Calls() {
				if c.Op == "QueryHeaders" {
					sizes = append(sizes, c.Size)
				}
			}
			expSizes := []int{0, len(tc.raw), 0, len(tc.status)}
			if diff := cmp.Diff(expSizes, sizes); diff != "" {
				t.Errorf("query buffer sizes mismatch (-want +got):\n%s", diff)
			}

			if diff := cmp.Diff(tc.expLines, h.x.headers); diff != "" {
				t.Errorf("header lines mismatch (-want +got):\n%s", diff)
			}
			if h.x.state != StateHeadersAvailable {
				t.Errorf("expected state %v, got %v", StateHeadersAvailable, h.x.state)
			}
			if n := h.ft.Count("QueryDataAvailable"); n != 1 {
				t.Errorf("expected an availability query, got %d", n)
			}

			h.emit(native.StatusDataAvailable, native.StatusInfo{}, 0)
			o, _ := h.outcome()
			if o.resp.StatusCode != tc.expStatus {
				t.Errorf("expected status %d, got %d", tc.expStatus, o.resp.StatusCode)
			}
		})
	}
}

func TestExchange_OpenFailures(t *testing.T) {
	testCases := map[string]struct {
		op       string
		step     string
		expOpen  int
		notAfter string
	}{
		"session":    {op: "OpenSession", step: "create session", expOpen: 0, notAfter: "Connect"},
		"timeouts":   {op: "SetTimeouts", step: "set timeouts", expOpen: 1, notAfter: "Connect"},
		"connection": {op: "Connect", step: "create connection", expOpen: 1, notAfter: "OpenRequest"},
		"request":    {op: "OpenRequest", step: "open request", expOpen: 2, notAfter: "AddHeaders"},
		"headers":    {op: "AddHeaders", step: "append headers", expOpen: 3, notAfter: "SendRequest"},
		"callback":   {op: "SetStatusCallback", step: "register callback", expOpen: 3, notAfter: "SendRequest"},
		"send":       {op: "SendRequest", step: "send request", expOpen: 3, notAfter: "ReceiveResponse"},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.ft.FailOn(tc.op, native.ErrCannotConnect)

			req := getRoot
			req.Headers = []string{"Accept: */*"}
			h.start(req)

			h.mustFail(tc.step, native.ErrCannotConnect)

			if n := len(h.ft.Opened()); n != tc.expOpen {
				t.Errorf("expected %d handles opened, got %d", tc.expOpen, n)
			}
			for _, hd := range h.ft.Opened() {
				if n := h.ft.Closes(hd); n != 1 {
					t.Errorf("expected handle %v closed once, got %d", hd, n)
				}
			}
			if n := h.ft.Count(tc.notAfter); n != 0 {
				t.Errorf("expected no %s after the failure, got %d", tc.notAfter, n)
			}
			if h.x.state != StateRejected {
				t.Errorf("expected state %v, got %v", StateRejected, h.x.state)
			}
		})
	}
}

func TestExchange_AsyncStepFailures(t *testing.T) {
	testCases := map[string]struct {
		op   string
		body []byte
		run  func(h *harness)
		step string
	}{
		"write data": {
			op:   "WriteData",
			body: []byte("payload"),
			run: func(h *harness) {
				h.emit(native.StatusSendRequestComplete, native.StatusInfo{}, 0)
			},
			step: "write data",
		},
		"receive response": {
			op: "ReceiveResponse",
			run: func(h *harness) {
				h.emit(native.StatusSendRequestComplete, native.StatusInfo{}, 0)
			},
			step: "receive response",
		},
		"query headers length": {
			op:   "QueryHeaders",
			run:  (*harness).toBody,
			step: "query headers length",
		},
		"query data available": {
			op:   "QueryDataAvailable",
			run:  (*harness).toBody,
			step: "query data available",
		},
		"read data": {
			op: "ReadData",
			run: func(h *harness) {
				h.toBody()
				h.emit(native.StatusDataAvailable, native.StatusInfo{Available: 10}, 0)
			},
			step: "read data",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.ft.FailOn(tc.op, native.ErrConnectionError)

			req := getRoot
			req.Body = tc.body
			h.start(req)
			tc.run(h)

			h.mustFail(tc.step, native.ErrConnectionError)
			h.mustBeReleased()
		})
	}
}

func TestExchange_PriorCallback(t *testing.T) {
	h := newHarness(t)
	h.ft.PriorCallback = true
	h.start(getRoot)

	h.mustFail("register callback", ErrCallbackExists)
	if n := h.ft.Count("SendRequest"); n != 0 {
		t.Errorf("expected no send, got %d", n)
	}
	h.mustBeReleased()
}

func TestExchange_ReadCompleteWithoutBuffer(t *testing.T) {
	h := newHarness(t)
	h.start(getRoot)
	h.toBody()
	h.emit(native.StatusDataAvailable, native.StatusInfo{Available: 8}, 0)

	h.x.onReadComplete(0)

	h.mustFail("read complete", ErrNoBuffer)
	h.mustBeReleased()
}

func TestExchange_ZeroLengthReadCompleteIgnored(t *testing.T) {
	h := newHarness(t)
	h.start(getRoot)
	h.toBody()
	h.emit(native.StatusDataAvailable, native.StatusInfo{Available: 8}, 0)

	before := len(h.ft.Calls())
	h.emit(native.StatusReadComplete, native.StatusInfo{}, 0)

	if _, ok := h.outcome(); ok {
		t.Fatal("expected a zero-length read complete to be ignored")
	}
	if n := len(h.ft.Calls()); n != before {
		t.Errorf("expected no native calls, got %d new", n-before)
	}
	if h.x.buffer == nil {
		t.Error("expected the outstanding buffer to be kept")
	}
}

func TestExchange_OutOfOrderEvents(t *testing.T) {
	testCases := map[string]struct {
		prepare func(h *harness)
		status  native.Status
		length  uint32
	}{
		"headers before send complete": {
			prepare: func(*harness) {},
			status:  native.StatusHeadersAvailable,
		},
		"write complete without body": {
			prepare: func(*harness) {},
			status:  native.StatusWriteComplete,
		},
		"read complete before data available": {
			prepare: (*harness).toBody,
			status:  native.StatusReadComplete,
			length:  4,
		},
		"send complete twice": {
			prepare: func(h *harness) {
				h.emit(native.StatusSendRequestComplete, native.StatusInfo{}, 0)
			},
			status: native.StatusSendRequestComplete,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.start(getRoot)
			tc.prepare(h)

			h.emit(tc.status, native.StatusInfo{}, tc.length)

			h.mustFail("", ErrInvalidState)
			h.mustBeReleased()
		})
	}
}

func TestExchange_DisposeIdempotent(t *testing.T) {
	h := newHarness(t)
	h.start(getRoot)
	h.toBody()
	h.emit(native.StatusDataAvailable, native.StatusInfo{Available: 16}, 0)
	buf := h.x.buffer

	h.x.dispose()
	h.x.dispose()
	h.x.reject(errors.New("late failure"))
	h.x.complete()

	if _, ok := h.outcome(); ok {
		t.Error("expected disposal to leave the result unsettled")
	}
	if !buf.Released() {
		t.Error("expected the outstanding buffer to be released")
	}
	if n := h.ft.Count("CloseHandle"); n != 3 {
		t.Errorf("expected three closes, got %d", n)
	}
	h.mustBeReleased()
}

func TestExchange_DisposeDuringRead(t *testing.T) {
	h := newHarness(t)
	h.start(getRoot)
	h.toBody()
	h.emit(native.StatusDataAvailable, native.StatusInfo{Available: 32}, 0)
	mem := h.x.buffer.Bytes()

	h.x.dispose()

	// The transport finishes the abandoned read after the handle is closed.
	if n := h.ft.Fill([]byte("written after close")); n == 0 {
		t.Fatal("expected the pending read to land in the old buffer")
	}

	for range 4 {
		nb := native.NewBuffer(len(mem))
		if &nb.Bytes()[0] == &mem[0] {
			t.Fatal("expected the buffer of an outstanding read not to be reused")
		}
		if nb.Bytes()[0] != 0 {
			t.Fatal("expected a fresh buffer to be zeroed")
		}
		nb.Release()
	}
	h.mustBeReleased()
}

func TestExchange_EventsAfterDisposal(t *testing.T) {
	h := newHarness(t)
	h.start(getRoot)
	h.toBody()
	h.chunk([]byte("done"))
	h.emit(native.StatusDataAvailable, native.StatusInfo{}, 0)

	if _, ok := h.outcome(); !ok {
		t.Fatal("expected completion")
	}

	before := len(h.ft.Calls())
	req, token := h.ft.Request(), h.ft.Token()

	if h.ft.Emit(native.StatusDataAvailable, native.StatusInfo{Available: 4}, 0) {
		t.Error("expected the callback to be cleared on disposal")
	}

	for _, ev := range []struct {
		status native.Status
		info   native.StatusInfo
		length uint32
	}{
		{status: native.StatusSendRequestComplete},
		{status: native.StatusHeadersAvailable},
		{status: native.StatusDataAvailable, info: native.StatusInfo{Available: 4}},
		{status: native.StatusReadComplete, length: 4},
		{status: native.StatusWriteComplete},
		{status: native.StatusRequestError, info: native.StatusInfo{Result: native.AsyncResult{API: native.APIReadData, Error: native.ErrTimeout}}},
		{status: native.StatusSecureFailure, info: native.StatusInfo{Secure: native.SecureInvalidCA}},
	} {
		dispatch(req, token, ev.status, ev.info, ev.length)
	}

	if n := len(h.ft.Calls()); n != before {
		t.Errorf("expected no native calls after disposal, got %d new: %v", n-before, h.ft.Ops()[before:])
	}
	if _, ok := h.outcome(); ok {
		t.Error("expected no second outcome")
	}
	if h.x.state != StateComplete {
		t.Errorf("expected state to stay %v, got %v", StateComplete, h.x.state)
	}
}

func TestExchange_RequestError(t *testing.T) {
	h := newHarness(t)
	h.start(getRoot)

	h.emit(native.StatusRequestError, native.StatusInfo{
		Result: native.AsyncResult{API: native.APISendRequest, Error: native.ErrNameNotResolved},
	}, 0)

	h.mustFail("", native.ErrNameNotResolved)
	h.mustBeReleased()
}
