package domain

import "fmt"

// HitMarker is appended (after a space) to the echoed path when the
// request was served from the hit counter instead of doing the work.
const HitMarker = "🙂"

// Response status codes used by the server.
const (
	StatusOK         = 200
	StatusBadRequest = 400
	StatusForbidden  = 403
)

var statusText = map[int]string{
	StatusOK:         "OK",
	StatusBadRequest: "Bad Request",
	StatusForbidden:  "Forbidden",
}

// Response is a minimal connection-per-request HTTP response. The server
// never keeps a connection alive, so every response carries
// "Connection: close" and a Content-Length for the full body.
type Response struct {
	Status int
	Body   []byte
}

// OKResponse builds a 200 response echoing the given body.
func OKResponse(body string) Response {
	return Response{Status: StatusOK, Body: []byte(body)}
}

// Encode renders the response into wire bytes. Bodied responses carry a
// text/plain content type; empty-body responses (400, 403) carry only the
// status line, Connection and Content-Length headers.
func (r Response) Encode() []byte {
	text, ok := statusText[r.Status]
	if !ok {
		text = "Unknown"
	}
	if len(r.Body) == 0 {
		return []byte(fmt.Sprintf("HTTP/1.1 %d %s\r\nConnection: close\r\nContent-Length: 0\r\n\r\n", r.Status, text))
	}
	header := fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nContent-Type: text/plain; charset=utf-8\r\nContent-Length: %d\r\nConnection: close\r\n\r\n",
		r.Status, text, len(r.Body),
	)
	return append([]byte(header), r.Body...)
}
