// Package transport provides the TCP acceptor for the echo server. It
// owns the listener, dispatches accepted connections to the worker pool,
// and coordinates graceful shutdown: a one-way flag is polled every
// accept iteration, so a stop request is observed within one poll
// interval and no accepted connection is ever dropped.
package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/haukened/wp-echo/internal/echo/common/log"
	"github.com/haukened/wp-echo/internal/echo/services/echoer"
	"github.com/haukened/wp-echo/internal/echo/services/pool"
)

const (
	// acceptPollInterval is both the accept deadline and the bound on how
	// long a shutdown request can go unobserved.
	acceptPollInterval = 50 * time.Millisecond

	// acceptErrorBackoff is slept after an unexpected accept error before
	// retrying. Accept errors are transient, never fatal.
	acceptErrorBackoff = 100 * time.Millisecond
)

// Dispatcher is the slice of the worker pool the transport needs.
type Dispatcher interface {
	Submit(job pool.Job)
}

// TCPTransport accepts connections on one TCP endpoint and hands each to
// the dispatcher wrapped as a unit of work.
type TCPTransport struct {
	addr       string
	dispatcher Dispatcher
	logger     log.Logger

	// Synchronization for graceful shutdown
	mu       sync.Mutex
	running  bool
	listener *net.TCPListener
	stopping atomic.Bool
	done     chan struct{}

	// Throttles transient accept-error log spam.
	errLog rate.Sometimes
}

// NewTCPTransport creates a new TCP transport instance.
func NewTCPTransport(addr string, dispatcher Dispatcher, logger log.Logger) *TCPTransport {
	return &TCPTransport{
		addr:       addr,
		dispatcher: dispatcher,
		logger:     logger,
		done:       make(chan struct{}),
		errLog:     rate.Sometimes{First: 3, Interval: time.Second},
	}
}

// Start binds the listener and begins accepting connections, handing each
// to the dispatcher. A bind failure is returned to the caller and is
// fatal to the process; there is no retry.
func (t *TCPTransport) Start(handler echoer.ConnHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("TCP transport already running")
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve TCP address %s: %w", t.addr, err)
	}

	listener, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("failed to bind TCP listener on %s: %w", t.addr, err)
	}

	t.listener = listener
	t.running = true

	t.logger.Info(map[string]any{
		"transport": "tcp",
		"address":   listener.Addr().String(),
	}, "transport started")

	go t.acceptLoop(handler)

	return nil
}

// Stop sets the shutdown flag, waits for the accept loop to observe it
// and exit, then closes the listener. No new connection is accepted after
// the flag is observed; connections already handed to the dispatcher are
// unaffected.
func (t *TCPTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}

	t.stopping.Store(true)
	<-t.done

	var closeErr error
	if t.listener != nil {
		closeErr = t.listener.Close()
		if closeErr != nil {
			t.logger.Warn(map[string]any{
				"error": closeErr.Error(),
			}, "error closing TCP listener")
		}
	}

	t.running = false

	t.logger.Info(map[string]any{
		"transport": "tcp",
		"address":   t.addr,
	}, "transport stopped")

	return closeErr
}

// Address returns the bound listener address, or the configured address
// if the transport has not started.
func (t *TCPTransport) Address() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.addr
}

// acceptLoop polls the shutdown flag and accepts with a short deadline so
// the flag is observed within one interval. Deadline expiry is the
// expected "no connection ready" case; other accept errors are logged
// (throttled) and retried after a longer backoff.
func (t *TCPTransport) acceptLoop(handler echoer.ConnHandler) {
	defer close(t.done)

	for {
		if t.stopping.Load() {
			t.logger.Debug(nil, "accept loop stopping")
			return
		}

		if err := t.listener.SetDeadline(time.Now().Add(acceptPollInterval)); err != nil {
			t.logger.Warn(map[string]any{"error": err.Error()}, "failed to set accept deadline")
		}

		conn, err := t.listener.Accept()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if t.stopping.Load() {
				return
			}
			t.errLog.Do(func() {
				t.logger.Warn(map[string]any{"error": err.Error()}, "accept error")
			})
			time.Sleep(acceptErrorBackoff)
			continue
		}

		t.logger.Debug(map[string]any{
			"client": conn.RemoteAddr().String(),
		}, "connection accepted")

		t.dispatcher.Submit(func() {
			if err := handler.Handle(conn); err != nil {
				t.logger.Error(map[string]any{
					"client": conn.RemoteAddr().String(),
					"error":  err.Error(),
				}, "connection error")
			}
		})
	}
}
