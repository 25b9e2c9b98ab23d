// Package nativetest provides a scripted [native.Transport] for tests.
//
// The fake records every call and never produces notifications on its own.
// Tests play the engine's part by calling [Transport.Emit] (and
// [Transport.Fill] to land bytes in the last read buffer) from the test
// goroutine.
package nativetest

import (
	"slices"
	"sync"

	"github.com/adamwoolhether/asynchttp/native"
)

// Call is one recorded method invocation.
type Call struct {
	Op     string
	Handle native.Handle
	// Arg is the textual argument, if any: user agent, host, method and
	// path, or the header text.
	Arg string
	// Size is the buffer length or announced body length.
	Size int
}

// Transport is a recording fake. The zero value is not usable; call [New].
type Transport struct {
	// RawHeaders is returned for native.QueryRawHeadersCRLF.
	RawHeaders string
	// StatusText is returned for native.QueryStatusCode.
	StatusText string
	// PriorCallback makes SetStatusCallback report an already installed
	// callback.
	PriorCallback bool

	mu       sync.Mutex
	next     native.Handle
	kinds    map[native.Handle]string
	closes   map[native.Handle]int
	calls    []Call
	fail     map[string]native.Errno
	cb       native.Callback
	token    native.Token
	request  native.Handle
	readBuf  []byte
	written  []byte
	sent     chan struct{}
	sentOnce sync.Once
}

// New returns a fake answering "HTTP/1.1 200 OK" with no headers.
func New() *Transport {
	return &Transport{
		RawHeaders: "HTTP/1.1 200 OK\r\n\r\n",
		StatusText: "200",
		next:       0x100,
		kinds:      make(map[native.Handle]string),
		closes:     make(map[native.Handle]int),
		fail:       make(map[string]native.Errno),
		sent:       make(chan struct{}),
	}
}

// FailOn makes every later call to op fail with code.
func (t *Transport) FailOn(op string, code native.Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fail[op] = code
}

// Sent is closed once SendRequest has been called successfully.
func (t *Transport) Sent() <-chan struct{} {
	return t.sent
}

// Calls returns a copy of the recorded calls.
func (t *Transport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.calls)
}

// Ops returns the recorded operation names in order.
func (t *Transport) Ops() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ops := make([]string, len(t.calls))
	for i, c := range t.calls {
		ops[i] = c.Op
	}
	return ops
}

// Count returns how many times op was called.
func (t *Transport) Count(op string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var n int
	for _, c := range t.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Opened returns every handle handed out, in creation order.
func (t *Transport) Opened() []native.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	var hs []native.Handle
	for h := range t.kinds {
		hs = append(hs, h)
	}
	slices.Sort(hs)
	return hs
}

// Closes returns how many times h was passed to CloseHandle.
func (t *Transport) Closes(h native.Handle) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes[h]
}

// Token returns the token passed to SendRequest.
func (t *Transport) Token() native.Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token
}

// Request returns the last request handle opened.
func (t *Transport) Request() native.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.request
}

// Written returns the bytes passed to the last WriteData.
func (t *Transport) Written() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.written)
}

// Emit delivers a notification to the installed callback as the engine
// would, echoing the send token. It reports false if no callback is
// installed.
func (t *Transport) Emit(status native.Status, info native.StatusInfo, length uint32) bool {
	t.mu.Lock()
	cb, h, token := t.cb, t.request, t.token
	t.mu.Unlock()

	if cb == nil {
		return false
	}
	cb(h, token, status, info, length)
	return true
}

// Fill copies data into the buffer passed to the last ReadData and
// returns the number of bytes copied.
func (t *Transport) Fill(data []byte) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copy(t.readBuf, data)
}

func (t *Transport) record(op string, h native.Handle, arg string, size int) error {
	t.calls = append(t.calls, Call{Op: op, Handle: h, Arg: arg, Size: size})
	if code, ok := t.fail[op]; ok {
		return native.NewError(op, code, nil)
	}
	return nil
}

func (t *Transport) open(kind string) native.Handle {
	t.next++
	h := t.next
	t.kinds[h] = kind
	return h
}

// live checks that h is open and of kind.
func (t *Transport) live(op string, h native.Handle, kind string) error {
	k, ok := t.kinds[h]
	if !ok || t.closes[h] > 0 {
		return native.NewError(op, native.ErrInvalidHandle, nil)
	}
	if k != kind {
		return native.NewError(op, native.ErrIncorrectHandleType, nil)
	}
	return nil
}

func (t *Transport) OpenSession(userAgent string) (native.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record("OpenSession", 0, userAgent, 0); err != nil {
		return 0, err
	}
	return t.open("session"), nil
}

func (t *Transport) SetTimeouts(session native.Handle, _ native.Timeouts) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record("SetTimeouts", session, "", 0); err != nil {
		return err
	}
	return t.live("SetTimeouts", session, "session")
}

func (t *Transport) Connect(session native.Handle, host string, _ uint16) (native.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record("Connect", session, host, 0); err != nil {
		return 0, err
	}
	if err := t.live("Connect", session, "session"); err != nil {
		return 0, err
	}
	return t.open("connection"), nil
}

func (t *Transport) OpenRequest(conn native.Handle, method, path string, _ native.RequestFlag) (native.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record("OpenRequest", conn, method+" "+path, 0); err != nil {
		return 0, err
	}
	if err := t.live("OpenRequest", conn, "connection"); err != nil {
		return 0, err
	}
	t.request = t.open("request")
	return t.request, nil
}

func (t *Transport) AddHeaders(req native.Handle, headers string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record("AddHeaders", req, headers, 0); err != nil {
		return err
	}
	return t.live("AddHeaders", req, "request")
}

func (t *Transport) SetStatusCallback(req native.Handle, cb native.Callback) (native.Callback, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record("SetStatusCallback", req, "", 0); err != nil {
		return nil, err
	}
	if err := t.live("SetStatusCallback", req, "request"); err != nil {
		return nil, err
	}

	prev := t.cb
	if prev == nil && t.PriorCallback {
		prev = func(native.Handle, native.Token, native.Status, native.StatusInfo, uint32) {}
	}
	t.cb = cb

	return prev, nil
}

func (t *Transport) SendRequest(req native.Handle, totalLength int, token native.Token) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record("SendRequest", req, "", totalLength); err != nil {
		return err
	}
	if err := t.live("SendRequest", req, "request"); err != nil {
		return err
	}

	t.token = token
	t.sentOnce.Do(func() { close(t.sent) })

	return nil
}

func (t *Transport) WriteData(req native.Handle, buf []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record("WriteData", req, "", len(buf)); err != nil {
		return err
	}
	t.written = slices.Clone(buf)
	return t.live("WriteData", req, "request")
}

func (t *Transport) ReceiveResponse(req native.Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record("ReceiveResponse", req, "", 0); err != nil {
		return err
	}
	return t.live("ReceiveResponse", req, "request")
}

func (t *Transport) QueryHeaders(req native.Handle, q native.Query, buf []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record("QueryHeaders", req, "", len(buf)); err != nil {
		return 0, err
	}
	if err := t.live("QueryHeaders", req, "request"); err != nil {
		return 0, err
	}

	var data string
	switch q {
	case native.QueryRawHeadersCRLF:
		data = t.RawHeaders
	case native.QueryStatusCode:
		data = t.StatusText
	default:
		return 0, native.NewError("QueryHeaders", native.ErrHeaderNotFound, nil)
	}

	if len(buf) < len(data) {
		return len(data), native.NewError("QueryHeaders", native.ErrInsufficientBuffer, nil)
	}

	return copy(buf, data), nil
}

func (t *Transport) QueryDataAvailable(req native.Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record("QueryDataAvailable", req, "", 0); err != nil {
		return err
	}
	return t.live("QueryDataAvailable", req, "request")
}

func (t *Transport) ReadData(req native.Handle, buf []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record("ReadData", req, "", len(buf)); err != nil {
		return err
	}
	t.readBuf = buf
	return t.live("ReadData", req, "request")
}

func (t *Transport) CloseHandle(h native.Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record("CloseHandle", h, t.kinds[h], 0); err != nil {
		return err
	}

	_, ok := t.kinds[h]
	t.closes[h]++
	if !ok || t.closes[h] > 1 {
		return native.NewError("CloseHandle", native.ErrInvalidHandle, nil)
	}

	if h == t.request {
		t.readBuf = nil
	}

	return nil
}
