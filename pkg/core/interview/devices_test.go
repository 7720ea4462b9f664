package interview

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedCapture serves a fixed list of reads, then blocks until closed.
type scriptedCapture struct {
	mu     sync.Mutex
	chunks [][]byte
	idx    int

	closed    chan struct{}
	closeOnce sync.Once
}

func newScriptedCapture(chunks ...[]byte) *scriptedCapture {
	return &scriptedCapture{chunks: chunks, closed: make(chan struct{})}
}

func (c *scriptedCapture) Open(ctx context.Context) error { return nil }

func (c *scriptedCapture) Read(p []byte) (int, error) {
	c.mu.Lock()
	if c.idx < len(c.chunks) {
		chunk := c.chunks[c.idx]
		c.idx++
		c.mu.Unlock()
		return copy(p, chunk), nil
	}
	c.mu.Unlock()
	<-c.closed
	return 0, io.EOF
}

func (c *scriptedCapture) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// flakyCapture records normally until its first take is failed on demand via
// failNow, then serves the second script cleanly after being reopened.
type flakyCapture struct {
	mu     sync.Mutex
	opens  int
	idx    int
	first  [][]byte
	second [][]byte
	fail   chan struct{}
	closed chan struct{}
}

func newFlakyCapture(first, second [][]byte) *flakyCapture {
	return &flakyCapture{first: first, second: second, fail: make(chan struct{})}
}

func (c *flakyCapture) failNow() { close(c.fail) }

func (c *flakyCapture) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opens++
	c.idx = 0
	c.closed = make(chan struct{})
	return nil
}

func (c *flakyCapture) Read(p []byte) (int, error) {
	c.mu.Lock()
	script, firstOpen := c.second, false
	if c.opens <= 1 {
		script, firstOpen = c.first, true
	}
	if c.idx < len(script) {
		chunk := script[c.idx]
		c.idx++
		c.mu.Unlock()
		return copy(p, chunk), nil
	}
	closed := c.closed
	c.mu.Unlock()
	if firstOpen {
		select {
		case <-c.fail:
			return 0, errors.New("input stream wedged")
		case <-closed:
			return 0, io.EOF
		}
	}
	<-closed
	return 0, io.EOF
}

func (c *flakyCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed != nil {
		select {
		case <-c.closed:
		default:
			close(c.closed)
		}
	}
	return nil
}

// fakePlayback records writes. With blockDrain set, Drain parks until Close.
type fakePlayback struct {
	mu      sync.Mutex
	written []byte
	opens   int

	blockDrain bool
	drainCh    chan struct{}
	closeOnce  sync.Once
}

func newFakePlayback(blockDrain bool) *fakePlayback {
	return &fakePlayback{blockDrain: blockDrain, drainCh: make(chan struct{})}
}

func (p *fakePlayback) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opens++
	return nil
}

func (p *fakePlayback) Write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, data...)
	return nil
}

func (p *fakePlayback) Drain() error {
	if p.blockDrain {
		<-p.drainCh
	}
	return nil
}

func (p *fakePlayback) Close() error {
	p.closeOnce.Do(func() { close(p.drainCh) })
	return nil
}

func (p *fakePlayback) writtenBytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.written...)
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t interface {
	Helper()
	Fatalf(format string, args ...any)
}, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
