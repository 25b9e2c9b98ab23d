package native

import (
	"fmt"
	"time"
)

// Handle identifies a session, connection or request opened on a [Transport].
// The zero Handle is never valid.
type Handle uintptr

func (h Handle) String() string {
	return fmt.Sprintf("0x%x", uintptr(h))
}

// Token is the opaque correlation value passed to [Transport.SendRequest]
// and echoed back on every notification for that request.
type Token uintptr

// Callback receives every lifecycle notification for a request handle.
// length carries the number of bytes for ReadComplete and WriteComplete.
type Callback func(h Handle, token Token, status Status, info StatusInfo, length uint32)

// RequestFlag modifies how a request handle is opened.
type RequestFlag uint32

const (
	// FlagSecure requests TLS for the connection.
	FlagSecure RequestFlag = 0x00800000
)

// Query selects the information returned by [Transport.QueryHeaders].
type Query uint32

const (
	// QueryStatusCode returns the numeric status code as decimal text.
	QueryStatusCode Query = 19
	// QueryRawHeadersCRLF returns the status line and headers, each
	// terminated by CRLF, followed by an empty CRLF line.
	QueryRawHeadersCRLF Query = 22
)

// DefaultPort selects 443 for secure requests and 80 otherwise.
const DefaultPort uint16 = 0

// Timeouts configures a session. A zero duration disables that timeout.
type Timeouts struct {
	Resolve time.Duration
	Connect time.Duration
	Send    time.Duration
	Receive time.Duration
}

// Transport is the asynchronous HTTP engine. Methods documented as async
// return once the operation is queued; completion is reported through the
// request's [Callback]. Implementations must not invoke the callback from
// within the call that queued the operation.
type Transport interface {
	// OpenSession creates a session handle.
	OpenSession(userAgent string) (Handle, error)
	// SetTimeouts applies timeouts to every request opened under session.
	SetTimeouts(session Handle, t Timeouts) error
	// Connect creates a connection handle for host and port. No network
	// activity happens until a request on it is sent.
	Connect(session Handle, host string, port uint16) (Handle, error)
	// OpenRequest creates a request handle.
	OpenRequest(conn Handle, method, path string, flags RequestFlag) (Handle, error)
	// AddHeaders appends CRLF separated header lines to the request.
	AddHeaders(req Handle, headers string) error
	// SetStatusCallback installs cb for req and returns the previously
	// installed callback, if any. A nil cb clears it.
	SetStatusCallback(req Handle, cb Callback) (Callback, error)
	// SendRequest sends the request line and headers (async). totalLength
	// announces the number of body bytes that will follow via WriteData.
	SendRequest(req Handle, totalLength int, token Token) error
	// WriteData writes body bytes (async). buf must stay untouched until
	// WriteComplete is reported.
	WriteData(req Handle, buf []byte) error
	// ReceiveResponse waits for the response headers (async).
	ReceiveResponse(req Handle) error
	// QueryHeaders copies the requested header information into buf and
	// returns the number of bytes written. When buf is too small it returns
	// the required size together with ErrInsufficientBuffer.
	QueryHeaders(req Handle, q Query, buf []byte) (int, error)
	// QueryDataAvailable reports how many body bytes can be read without
	// blocking (async). Zero means the body is exhausted.
	QueryDataAvailable(req Handle) error
	// ReadData reads up to len(buf) body bytes into buf (async). buf must
	// stay untouched until ReadComplete is reported.
	ReadData(req Handle, buf []byte) error
	// CloseHandle releases h. Outstanding operations on a request handle
	// are abandoned and report nothing further.
	CloseHandle(h Handle) error
}
