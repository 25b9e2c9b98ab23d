// Package nettransport implements [native.Transport] over TCP and TLS with
// an HTTP/1.1 wire codec.
//
// Every request handle owns a worker goroutine that runs its asynchronous
// operations in order and delivers notifications, so the status callback
// never runs inside the call that queued the work.
package nettransport

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/net/http/httpguts"
	"golang.org/x/net/idna"

	"github.com/adamwoolhether/asynchttp/native"
)

const defaultReadSize = 8 << 10

// Transport is a [native.Transport] backed by the net package.
type Transport struct {
	tlsConfig *tls.Config
	logger    *slog.Logger
	readSize  int
	resolver  *net.Resolver

	mu      sync.Mutex
	next    native.Handle
	handles map[native.Handle]any
}

var _ native.Transport = (*Transport)(nil)

// New instantiates a *Transport with the provided options.
func New(optFns ...Option) (*Transport, error) {
	t := &Transport{
		tlsConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		logger:    slog.Default(),
		readSize:  defaultReadSize,
		resolver:  net.DefaultResolver,
		handles:   make(map[native.Handle]any),
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying transport option: %w", err)
		}
	}

	if opts.tlsConfig != nil {
		t.tlsConfig = opts.tlsConfig
	}

	if opts.logger != nil {
		t.logger = opts.logger
	}

	if opts.readSize != nil {
		t.readSize = *opts.readSize
	}

	if opts.resolver != nil {
		t.resolver = opts.resolver
	}

	return t, nil
}

type session struct {
	userAgent string

	mu       sync.Mutex
	timeouts native.Timeouts
}

func (s *session) limits() native.Timeouts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeouts
}

type connection struct {
	session *session
	host    string
	port    uint16
}

func (t *Transport) add(v any) native.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.handles[t.next] = v
	return t.next
}

// lookup returns the live handle h as a T.
func lookup[T any](t *Transport, op string, h native.Handle) (T, error) {
	t.mu.Lock()
	v, ok := t.handles[h]
	t.mu.Unlock()

	var zero T
	if !ok {
		return zero, native.NewError(op, native.ErrInvalidHandle, nil)
	}
	typed, ok := v.(T)
	if !ok {
		return zero, native.NewError(op, native.ErrIncorrectHandleType, nil)
	}

	return typed, nil
}

func (t *Transport) OpenSession(userAgent string) (native.Handle, error) {
	h := t.add(&session{userAgent: userAgent})
	t.logger.Debug("session opened", "handle", h, "user_agent", userAgent)
	return h, nil
}

func (t *Transport) SetTimeouts(sh native.Handle, timeouts native.Timeouts) error {
	s, err := lookup[*session](t, "SetTimeouts", sh)
	if err != nil {
		return err
	}
	if timeouts.Resolve < 0 || timeouts.Connect < 0 || timeouts.Send < 0 || timeouts.Receive < 0 {
		return native.NewError("SetTimeouts", native.ErrInvalidParameter, nil)
	}

	s.mu.Lock()
	s.timeouts = timeouts
	s.mu.Unlock()

	return nil
}

func (t *Transport) Connect(sh native.Handle, host string, port uint16) (native.Handle, error) {
	s, err := lookup[*session](t, "Connect", sh)
	if err != nil {
		return 0, err
	}

	ascii := strings.Trim(host, "[]")
	if net.ParseIP(ascii) == nil {
		ascii, err = idna.Lookup.ToASCII(strings.TrimSuffix(host, "."))
		if err != nil || ascii == "" {
			return 0, native.NewError("Connect", native.ErrInvalidURL, err)
		}
	}

	h := t.add(&connection{session: s, host: ascii, port: port})
	t.logger.Debug("connection opened", "handle", h, "host", ascii, "port", port)

	return h, nil
}

func (t *Transport) OpenRequest(ch native.Handle, method, path string, flags native.RequestFlag) (native.Handle, error) {
	c, err := lookup[*connection](t, "OpenRequest", ch)
	if err != nil {
		return 0, err
	}
	if !httpguts.ValidHeaderFieldName(method) {
		return 0, native.NewError("OpenRequest", native.ErrInvalidParameter, fmt.Errorf("invalid method %q", method))
	}
	if path == "" {
		path = "/"
	}
	if strings.ContainsFunc(path, func(r rune) bool { return r <= ' ' || r == 0x7f }) {
		return 0, native.NewError("OpenRequest", native.ErrInvalidURL, fmt.Errorf("invalid path %q", path))
	}

	r := newRequest(t, c, method, path, flags&native.FlagSecure != 0)
	h := t.add(r)
	r.handle = h
	r.logger = t.logger.With("handle", h)
	go r.run()

	t.logger.Debug("request opened", "handle", h, "method", method, "path", path, "secure", r.secure)

	return h, nil
}

func (t *Transport) AddHeaders(rh native.Handle, headers string) error {
	r, err := lookup[*request](t, "AddHeaders", rh)
	if err != nil {
		return err
	}

	var lines []string
	for line := range strings.SplitSeq(headers, "\r\n") {
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		value = strings.TrimSpace(value)
		if !ok || !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
			return native.NewError("AddHeaders", native.ErrInvalidParameter, fmt.Errorf("malformed header line %q", line))
		}
		lines = append(lines, name+": "+value)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != phaseOpen {
		return native.NewError("AddHeaders", native.ErrIncorrectHandleState, nil)
	}
	r.headers = append(r.headers, lines...)

	return nil
}

func (t *Transport) SetStatusCallback(rh native.Handle, cb native.Callback) (native.Callback, error) {
	r, err := lookup[*request](t, "SetStatusCallback", rh)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.cb
	r.cb = cb

	return prev, nil
}

func (t *Transport) SendRequest(rh native.Handle, totalLength int, token native.Token) error {
	r, err := lookup[*request](t, "SendRequest", rh)
	if err != nil {
		return err
	}
	if totalLength < 0 {
		return native.NewError("SendRequest", native.ErrInvalidParameter, nil)
	}

	r.mu.Lock()
	if r.phase != phaseOpen {
		r.mu.Unlock()
		return native.NewError("SendRequest", native.ErrIncorrectHandleState, nil)
	}
	r.phase = phaseSending
	r.token = token
	r.total = totalLength
	r.mu.Unlock()

	return r.enqueue("SendRequest", r.send)
}

func (t *Transport) WriteData(rh native.Handle, buf []byte) error {
	r, err := lookup[*request](t, "WriteData", rh)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.phase != phaseSent || r.written+len(buf) > r.total {
		r.mu.Unlock()
		return native.NewError("WriteData", native.ErrIncorrectHandleState, nil)
	}
	r.written += len(buf)
	r.mu.Unlock()

	return r.enqueue("WriteData", func() { r.write(buf) })
}

func (t *Transport) ReceiveResponse(rh native.Handle) error {
	r, err := lookup[*request](t, "ReceiveResponse", rh)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.phase != phaseSent || r.written != r.total {
		r.mu.Unlock()
		return native.NewError("ReceiveResponse", native.ErrIncorrectHandleState, nil)
	}
	r.phase = phaseReceiving
	r.mu.Unlock()

	return r.enqueue("ReceiveResponse", r.receive)
}

func (t *Transport) QueryHeaders(rh native.Handle, q native.Query, buf []byte) (int, error) {
	r, err := lookup[*request](t, "QueryHeaders", rh)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	phase, raw, code := r.phase, r.rawHeaders, r.statusCode
	r.mu.Unlock()

	if phase < phaseHeaders {
		return 0, native.NewError("QueryHeaders", native.ErrIncorrectHandleState, nil)
	}

	var data string
	switch q {
	case native.QueryRawHeadersCRLF:
		data = raw
	case native.QueryStatusCode:
		data = strconv.Itoa(code)
	default:
		return 0, native.NewError("QueryHeaders", native.ErrHeaderNotFound, fmt.Errorf("unsupported query %d", q))
	}

	if len(buf) < len(data) {
		return len(data), native.NewError("QueryHeaders", native.ErrInsufficientBuffer, nil)
	}

	return copy(buf, data), nil
}

func (t *Transport) QueryDataAvailable(rh native.Handle) error {
	r, err := lookup[*request](t, "QueryDataAvailable", rh)
	if err != nil {
		return err
	}
	if !r.hasHeaders() {
		return native.NewError("QueryDataAvailable", native.ErrIncorrectHandleState, nil)
	}

	return r.enqueue("QueryDataAvailable", r.available)
}

func (t *Transport) ReadData(rh native.Handle, buf []byte) error {
	r, err := lookup[*request](t, "ReadData", rh)
	if err != nil {
		return err
	}
	if !r.hasHeaders() {
		return native.NewError("ReadData", native.ErrIncorrectHandleState, nil)
	}

	return r.enqueue("ReadData", func() { r.read(buf) })
}

// CloseHandle releases h. Closing a request abandons its outstanding work
// without waiting for it.
func (t *Transport) CloseHandle(h native.Handle) error {
	t.mu.Lock()
	v, ok := t.handles[h]
	delete(t.handles, h)
	t.mu.Unlock()

	if !ok {
		return native.NewError("CloseHandle", native.ErrInvalidHandle, nil)
	}

	if r, ok := v.(*request); ok {
		r.close()
	}
	t.logger.Debug("handle closed", "handle", h)

	return nil
}
