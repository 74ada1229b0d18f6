// Package echoer implements the per-connection request handling service:
// read one request line, consult the hit counter, simulate the expensive
// operation on a miss, and write exactly one minimal HTTP response.
package echoer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/haukened/wp-echo/internal/echo/common/clock"
	"github.com/haukened/wp-echo/internal/echo/common/log"
	"github.com/haukened/wp-echo/internal/echo/domain"
)

// maxRequestLine bounds how many bytes are read while looking for the end
// of the request line. Filling it without a CRLF is a 400.
const maxRequestLine = 8192

// Echoer handles one connection per call. It holds the cache lock only
// for the metadata touch itself; the simulated delay and all socket I/O
// happen unlocked.
type Echoer struct {
	cache     HitCounter
	blocklist Blocklist
	clock     clock.Clock
	logger    log.Logger
	delay     time.Duration
}

// Options carries the dependencies for NewEchoer.
type Options struct {
	Cache     HitCounter
	Blocklist Blocklist
	Clock     clock.Clock
	Logger    log.Logger
	Delay     time.Duration
}

// NewEchoer constructs the connection handler service.
func NewEchoer(opts Options) *Echoer {
	return &Echoer{
		cache:     opts.Cache,
		blocklist: opts.Blocklist,
		clock:     opts.Clock,
		logger:    opts.Logger,
		delay:     opts.Delay,
	}
}

// Handle reads a single request from conn, writes a single response, and
// closes the connection. A peer that closes before sending a full
// request line gets no response and no error. Read or write failures are
// returned for the caller to log; they never affect other connections.
func (e *Echoer) Handle(conn net.Conn) error {
	defer conn.Close()

	buf := make([]byte, maxRequestLine)
	n := 0

	for n < len(buf) {
		readn, err := conn.Read(buf[n:])
		if readn > 0 {
			n += readn
			if i := bytes.Index(buf[:n], []byte("\r\n")); i >= 0 {
				return e.serve(conn, buf[:i])
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				// peer closed before a full request line arrived
				return nil
			}
			return fmt.Errorf("reading request: %w", err)
		}
	}

	// Buffer filled without a line terminator.
	return e.respond(conn, domain.Response{Status: domain.StatusBadRequest})
}

// serve runs the parsed-request path: blocklist, hit fast path, or the
// miss path with its simulated expensive operation.
func (e *Echoer) serve(conn net.Conn, line []byte) error {
	req := domain.ParseRequestLine(line)

	if e.blocklist.Blocked(req.Path) {
		e.logger.Debug(map[string]any{"path": req.Path}, "request blocked")
		return e.respond(conn, domain.Response{Status: domain.StatusForbidden})
	}

	if count, ok := e.cache.Hit(req.Path); ok {
		e.logger.Debug(map[string]any{
			"path":  req.Path,
			"count": count,
		}, "cache hit")
		return e.respond(conn, domain.OKResponse(req.Path+" "+domain.HitMarker))
	}

	// Miss: pay for the expensive operation with no lock held, then
	// reconcile the insert (a racing miss may have landed first).
	e.clock.Sleep(e.delay)
	count := e.cache.Insert(req.Path)

	e.logger.Debug(map[string]any{
		"path":  req.Path,
		"count": count,
	}, "cache miss")
	return e.respond(conn, domain.OKResponse(req.Path))
}

func (e *Echoer) respond(conn net.Conn, resp domain.Response) error {
	if _, err := conn.Write(resp.Encode()); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	return nil
}

var _ ConnHandler = (*Echoer)(nil)
