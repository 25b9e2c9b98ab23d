// Package asynchttp exposes the client builder.
package asynchttp

import (
	"github.com/adamwoolhether/asynchttp/client"
)

// NewClient instantiates a new *Client with the provided options.
// If not specified, a TLS [nettransport.Transport] is used.
//
// [nettransport.Transport]: https://pkg.go.dev/github.com/adamwoolhether/asynchttp/native/nettransport#Transport
func NewClient(opts ...client.Option) (*client.Client, error) {
	return client.Build(opts...)
}
