// Package native describes the asynchronous HTTP transport that the
// [github.com/adamwoolhether/asynchttp/client] package drives.
//
// The contract mirrors an OS-level engine such as WinHTTP: the caller opens
// session, connection and request handles, issues asynchronous operations on
// the request handle, and is notified of their completion through a single
// [Callback] installed with [Transport.SetStatusCallback]. The callback runs
// on a goroutine owned by the transport, never on the caller's.
//
// # Correlation
//
// [Transport.SendRequest] takes an opaque [Token]. The transport echoes it on
// every notification for that request so the receiver can find its own state
// again without the transport holding a typed reference to it.
//
// # Errors
//
// Every failing operation returns an [*Error] carrying the operation name and
// a platform [Errno]. A size probe through [Transport.QueryHeaders] reports
// [ErrInsufficientBuffer], which callers are expected to handle.
//
// Implementations live in [github.com/adamwoolhether/asynchttp/native/nettransport]
// and, for tests, [github.com/adamwoolhether/asynchttp/native/nativetest].
package native
