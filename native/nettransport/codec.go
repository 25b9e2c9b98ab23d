package nettransport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http/httputil"
	"net/textproto"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

var errMalformed = errors.New("malformed HTTP response")

// writeRequestHead renders the request line and headers of an HTTP/1.1
// request, e.g.:
//
//	GET / HTTP/1.1\r\n
//	Host: www.example.com\r\n
//	User-Agent: WinHTTP Example/1.0\r\n
//	Connection: close\r\n
//	\r\n
//
// Host, User-Agent, Content-Length and Connection are only added when the
// caller did not supply them.
func writeRequestHead(method, path, authority, userAgent string, contentLength int, headers []string) []byte {
	supplied := make(map[string]bool, len(headers))
	for _, line := range headers {
		name, _, _ := strings.Cut(line, ":")
		supplied[textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name))] = true
	}

	var b bytes.Buffer
	b.WriteString(method)
	b.WriteByte(' ')
	b.WriteString(path)
	b.WriteString(" HTTP/1.1\r\n")

	add := func(name, value string) {
		if supplied[name] {
			return
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\r\n")
	}

	add("Host", authority)
	if userAgent != "" {
		add("User-Agent", userAgent)
	}
	if contentLength > 0 || expectsBody(method) {
		add("Content-Length", strconv.Itoa(contentLength))
	}
	add("Connection", "close")

	for _, line := range headers {
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")

	return b.Bytes()
}

func expectsBody(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH":
		return true
	default:
		return false
	}
}

type responseHead struct {
	// raw is the status line and header lines, each CRLF terminated,
	// followed by an empty CRLF line.
	raw  string
	code int
	body io.Reader
}

// readResponseHead reads the status line and headers of the final response,
// skipping interim 1xx responses, and frames the body that follows.
func readResponseHead(br *bufio.Reader, method string) (responseHead, error) {
	tp := textproto.NewReader(br)

	for {
		line, err := tp.ReadLine()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return responseHead{}, err
		}

		code, err := parseStatusLine(line)
		if err != nil {
			return responseHead{}, err
		}

		lines := []string{line}
		var lengths, encodings []string
		for {
			l, err := tp.ReadLine()
			if err != nil {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return responseHead{}, err
			}
			if l == "" {
				break
			}

			name, value, ok := strings.Cut(l, ":")
			if !ok || !httpguts.ValidHeaderFieldName(name) {
				return responseHead{}, fmt.Errorf("%w: header line %q", errMalformed, l)
			}
			value = textproto.TrimString(value)

			switch textproto.CanonicalMIMEHeaderKey(name) {
			case "Content-Length":
				lengths = append(lengths, value)
			case "Transfer-Encoding":
				encodings = append(encodings, value)
			}
			lines = append(lines, l)
		}

		if code >= 100 && code < 200 && code != 101 {
			continue
		}

		body, err := frameBody(br, method, code, lengths, encodings)
		if err != nil {
			return responseHead{}, err
		}

		return responseHead{
			raw:  strings.Join(lines, "\r\n") + "\r\n\r\n",
			code: code,
			body: body,
		}, nil
	}
}

// parseStatusLine extracts the status code from e.g. "HTTP/1.1 200 OK".
func parseStatusLine(line string) (int, error) {
	proto, status, ok := strings.Cut(line, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/") {
		return 0, fmt.Errorf("%w: status line %q", errMalformed, line)
	}

	codeText, _, _ := strings.Cut(strings.TrimLeft(status, " "), " ")
	if len(codeText) != 3 {
		return 0, fmt.Errorf("%w: status code %q", errMalformed, codeText)
	}
	code, err := strconv.Atoi(codeText)
	if err != nil || code < 100 {
		return 0, fmt.Errorf("%w: status code %q", errMalformed, codeText)
	}

	return code, nil
}

// frameBody picks the reader for the response body.
func frameBody(br *bufio.Reader, method string, code int, lengths, encodings []string) (io.Reader, error) {
	switch {
	case method == "HEAD" || code == 204 || code == 304:
		return strings.NewReader(""), nil

	case httpguts.HeaderValuesContainsToken(encodings, "chunked"):
		return httputil.NewChunkedReader(br), nil

	case len(lengths) > 0:
		first := lengths[0]
		for _, v := range lengths[1:] {
			if v != first {
				return nil, fmt.Errorf("%w: conflicting Content-Length values %q", errMalformed, lengths)
			}
		}
		n, err := strconv.ParseInt(first, 10, 63)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: Content-Length %q", errMalformed, first)
		}
		return &fixedReader{r: br, n: n}, nil

	default:
		return br, nil
	}
}

// fixedReader reads exactly n bytes and reports io.ErrUnexpectedEOF if the
// stream ends early.
type fixedReader struct {
	r io.Reader
	n int64
}

func (f *fixedReader) Read(p []byte) (int, error) {
	if f.n <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > f.n {
		p = p[:f.n]
	}

	n, err := f.r.Read(p)
	f.n -= int64(n)

	switch {
	case f.n == 0:
		return n, io.EOF
	case errors.Is(err, io.EOF):
		return n, io.ErrUnexpectedEOF
	default:
		return n, err
	}
}
