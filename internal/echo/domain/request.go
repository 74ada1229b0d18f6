package domain

import (
	"bytes"
	"strings"
)

// DefaultPath is served when a request carries no usable path token.
const DefaultPath = "/"

// RequestLine is the parsed first line of an HTTP request. Only the method
// and path are retained; the protocol version and everything after the
// request line are ignored by the server.
type RequestLine struct {
	Method string
	Path   string
}

// ParseRequestLine parses the bytes of a request line (without the CRLF)
// into a RequestLine. Parsing is deliberately permissive:
//   - tokens are split on single spaces
//   - any method other than "GET" forces the path to "/" (not an error)
//   - a missing path token defaults to "/"
//   - invalid UTF-8 in the path is replaced, never rejected
func ParseRequestLine(line []byte) RequestLine {
	parts := bytes.Split(line, []byte{' '})

	method := string(parts[0])
	if method != "GET" {
		return RequestLine{Method: method, Path: DefaultPath}
	}

	path := DefaultPath
	if len(parts) > 1 && len(parts[1]) > 0 {
		path = strings.ToValidUTF8(string(parts[1]), "�")
	}
	return RequestLine{Method: method, Path: path}
}
