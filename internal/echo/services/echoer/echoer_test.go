package echoer

import (
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/wp-echo/internal/echo/common/clock"
	"github.com/haukened/wp-echo/internal/echo/common/log"
	"github.com/haukened/wp-echo/internal/echo/domain"
	"github.com/haukened/wp-echo/internal/echo/repos/blocklist"
	"github.com/haukened/wp-echo/internal/echo/repos/hitcount"
)

const testDelay = 1 * time.Second

func newTestEchoer(t *testing.T) (*Echoer, *hitcount.Counter, *clock.MockClock) {
	t.Helper()
	cache := hitcount.New()
	clk := &clock.MockClock{}
	e := NewEchoer(Options{
		Cache:     cache,
		Blocklist: blocklist.NoopBlocklist{},
		Clock:     clk,
		Logger:    log.NewNoopLogger(),
		Delay:     testDelay,
	})
	return e, cache, clk
}

// roundTrip drives Handle over an in-memory pipe: writes request bytes,
// returns everything the handler wrote back, and the Handle error.
func roundTrip(t *testing.T, e *Echoer, request []byte) (string, error) {
	t.Helper()
	client, server := net.Pipe()

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Handle(server)
	}()

	if len(request) > 0 {
		_, err := client.Write(request)
		require.NoError(t, err)
	}

	resp, err := io.ReadAll(client)
	require.NoError(t, err)
	client.Close()

	return string(resp), <-errCh
}

func TestHandle_Miss_EchoesPathAfterDelay(t *testing.T) {
	e, cache, clk := newTestEchoer(t)

	resp, err := roundTrip(t, e, []byte("GET /hello HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	assert.Equal(t,
		"HTTP/1.1 200 OK\r\nContent-Type: text/plain; charset=utf-8\r\nContent-Length: 6\r\nConnection: close\r\n\r\n/hello",
		resp)

	// The miss path pays the simulated delay exactly once.
	require.Len(t, clk.Slept(), 1)
	assert.Equal(t, testDelay, clk.Slept()[0])

	snap := cache.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, domain.PathCount{Path: "/hello", Count: 1}, snap[0])
}

func TestHandle_Hit_AddsMarkerAndSkipsDelay(t *testing.T) {
	e, cache, clk := newTestEchoer(t)
	cache.Insert("/hello")

	resp, err := roundTrip(t, e, []byte("GET /hello HTTP/1.1\r\n"))
	require.NoError(t, err)

	wantBody := "/hello " + domain.HitMarker
	assert.True(t, strings.HasSuffix(resp, wantBody))
	assert.Contains(t, resp, "HTTP/1.1 200 OK\r\n")

	// Hits never pay the delay.
	assert.Empty(t, clk.Slept())

	snap := cache.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, uint64(2), snap[0].Count)
}

func TestHandle_SequentialRequests_CountsAccumulate(t *testing.T) {
	e, cache, clk := newTestEchoer(t)

	resp1, err := roundTrip(t, e, []byte("GET /a HTTP/1.1\r\n"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(resp1, "\r\n\r\n/a"))

	resp2, err := roundTrip(t, e, []byte("GET /a HTTP/1.1\r\n"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(resp2, "/a "+domain.HitMarker))

	resp3, err := roundTrip(t, e, []byte("GET /a HTTP/1.1\r\n"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(resp3, "/a "+domain.HitMarker))

	// Only the first request paid the delay.
	assert.Len(t, clk.Slept(), 1)

	snap := cache.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, domain.PathCount{Path: "/a", Count: 3}, snap[0])
}

func TestHandle_NonGET_ServesRoot(t *testing.T) {
	e, cache, _ := newTestEchoer(t)

	resp, err := roundTrip(t, e, []byte("POST /upload HTTP/1.1\r\n"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(resp, "\r\n\r\n/"))

	snap := cache.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "/", snap[0].Path)
}

func TestHandle_PeerClosesBeforeData_SilentClose(t *testing.T) {
	e, cache, _ := newTestEchoer(t)

	client, server := net.Pipe()
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Handle(server)
	}()
	require.NoError(t, client.Close())

	assert.NoError(t, <-errCh)
	assert.Equal(t, 0, cache.Len())
}

func TestHandle_PeerClosesMidLine_SilentClose(t *testing.T) {
	e, cache, _ := newTestEchoer(t)

	client, server := net.Pipe()
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Handle(server)
	}()

	_, err := client.Write([]byte("GET /partial"))
	require.NoError(t, err)
	require.NoError(t, client.Close())

	assert.NoError(t, <-errCh)
	assert.Equal(t, 0, cache.Len())
}

func TestHandle_NoCRLFWithinLimit_BadRequest(t *testing.T) {
	e, cache, clk := newTestEchoer(t)

	client, server := net.Pipe()
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Handle(server)
	}()

	// Exactly fill the 8 KiB buffer with no line terminator.
	junk := make([]byte, 8192)
	for i := range junk {
		junk[i] = 'a'
	}
	_, err := client.Write(junk)
	require.NoError(t, err)

	resp, err := io.ReadAll(client)
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	assert.Equal(t,
		"HTTP/1.1 400 Bad Request\r\nConnection: close\r\nContent-Length: 0\r\n\r\n",
		string(resp))
	assert.Equal(t, 0, cache.Len())
	assert.Empty(t, clk.Slept())
}

func TestHandle_CRLFAtBufferBoundary(t *testing.T) {
	e, _, _ := newTestEchoer(t)

	// Request line whose CRLF lands exactly on the 8 KiB boundary.
	path := "/" + strings.Repeat("x", 8192-len("GET ")-1-len(" HTTP/1.1\r\n"))
	request := "GET " + path + " HTTP/1.1\r\n"
	require.Len(t, request, 8192)

	resp, err := roundTrip(t, e, []byte(request))
	require.NoError(t, err)
	assert.Contains(t, resp, "HTTP/1.1 200 OK\r\n")
	assert.True(t, strings.HasSuffix(resp, path))
}

func TestHandle_BlockedPath_Forbidden(t *testing.T) {
	cache := hitcount.New()
	clk := &clock.MockClock{}
	bl, err := blocklist.New([]blocklist.Rule{{Kind: blocklist.RulePrefix, Path: "/admin"}})
	require.NoError(t, err)

	e := NewEchoer(Options{
		Cache:     cache,
		Blocklist: bl,
		Clock:     clk,
		Logger:    log.NewNoopLogger(),
		Delay:     testDelay,
	})

	resp, rtErr := roundTrip(t, e, []byte("GET /admin/panel HTTP/1.1\r\n"))
	require.NoError(t, rtErr)

	assert.Equal(t,
		"HTTP/1.1 403 Forbidden\r\nConnection: close\r\nContent-Length: 0\r\n\r\n",
		string(resp))

	// Blocked requests touch neither the cache nor the delay.
	assert.Equal(t, 0, cache.Len())
	assert.Empty(t, clk.Slept())
}

func TestHandle_RequestLineSplitAcrossReads(t *testing.T) {
	e, _, _ := newTestEchoer(t)

	client, server := net.Pipe()
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Handle(server)
	}()

	_, err := client.Write([]byte("GET /sp"))
	require.NoError(t, err)
	_, err = client.Write([]byte("lit HTTP/1.1\r\n"))
	require.NoError(t, err)

	resp, err := io.ReadAll(client)
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	assert.True(t, strings.HasSuffix(string(resp), "/split"))
}
