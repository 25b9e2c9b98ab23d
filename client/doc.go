// Package client issues single-shot HTTP requests over an asynchronous,
// callback-driven [native.Transport].
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithUserAgent("myapp/1.0"),
//		client.WithTimeouts(native.Timeouts{Connect: 10 * time.Second}),
//	)
//
// # Making Requests
//
// Describe the request with a [Request] and execute it with
// [Client.Execute]. The call blocks once, until the exchange completes,
// fails, or the context ends:
//
//	resp, err := c.Execute(ctx, client.Request{
//		Method:  "GET",
//		Host:    "www.example.com",
//		Port:    443,
//		Path:    "/",
//		Headers: []string{"Accept: */*"},
//	})
//
// # Lifecycle
//
// Every call opens a session, a connection and a request handle, sends the
// request and then advances as the transport reports completions: send
// complete, optional body write, headers available, and a loop of data
// available and read complete until the transport reports zero bytes
// available. All handles are closed on every exit path, including
// cancellation.
//
// # Errors
//
// Failures of a specific step are reported as [*StepError], which wraps
// the transport's [*native.Error]. Asynchronous failures arrive as
// [*RequestError] or, for TLS problems, [*SecureFailureError], which
// unwraps to one of the category sentinels such as [ErrInvalidCA].
// Invalid requests are rejected up front with [FieldErrors].
package client
