package client

import (
	"strings"
)

// Request describes one outbound request. It is read-only once handed to
// [Client.Execute].
type Request struct {
	Method string `validate:"required"`
	Host   string `validate:"required,hostname_rfc1123|ip"`
	// Port 0 selects the scheme default.
	Port uint16
	Path string `validate:"required,startswith=/"`
	// Headers are raw header lines such as "Accept: */*", in send order.
	Headers []string `validate:"dive,required"`
	Body    []byte
}

// Response is the completed result of a [Request].
type Response struct {
	StatusCode int
	// Headers holds the status line followed by one entry per header line.
	Headers []string
	Body    []byte
}

// splitHeaderBlock splits a raw CRLF header block into lines. Trailing
// empty lines produced by the block terminator are dropped.
func splitHeaderBlock(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")

	lines := strings.Split(raw, "\n")
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return lines
}
