// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var (
	errPortClosed = errors.New("serial port closed")
	errNoPort     = errors.New("no such device")
)

// mockPort is a serial port whose reads block until data is fed or it is closed.
type mockPort struct {
	mu       sync.Mutex
	cond     *sync.Cond
	readBuf  bytes.Buffer
	writes   [][]byte
	readErr  error
	writeErr error
	closed   bool
}

func newMockPort() *mockPort {
	p := &mockPort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *mockPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed && p.readErr == nil && p.readBuf.Len() == 0 {
		p.cond.Wait()
	}
	if p.readErr != nil {
		return 0, p.readErr
	}
	if p.closed {
		return 0, errPortClosed
	}
	return p.readBuf.Read(b)
}

func (p *mockPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errPortClosed
	}
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.writes = append(p.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (p *mockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}

// Feed makes data available to subsequent reads
func (p *mockPort) Feed(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readBuf.Write(data)
	p.cond.Broadcast()
}

// FailReads makes every following read return err
func (p *mockPort) FailReads(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
	p.cond.Broadcast()
}

// FailWrites makes every following write return err
func (p *mockPort) FailWrites(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// Drained reports whether all fed data has been read
func (p *mockPort) Drained() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readBuf.Len() == 0
}

func (p *mockPort) Writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.writes))
	copy(out, p.writes)
	return out
}

func (p *mockPort) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// mockOpener hands out queued ports and records Open calls
type mockOpener struct {
	mu    sync.Mutex
	ports []*mockPort
	names []string
}

func newMockOpener(ports ...*mockPort) *mockOpener {
	return &mockOpener{ports: ports}
}

func (o *mockOpener) Open(name string, opts PortOptions) (Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.names = append(o.names, name)
	if len(o.ports) == 0 {
		return nil, errNoPort
	}
	p := o.ports[0]
	o.ports = o.ports[1:]
	return p, nil
}

func (o *mockOpener) Add(p *mockPort) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ports = append(o.ports, p)
}

func (o *mockOpener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.names)
}

// recordingSink collects forwarded chunks
type recordingSink struct {
	mu     sync.Mutex
	chunks [][]byte
}

func (s *recordingSink) Send(ctx context.Context, p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, append([]byte(nil), p...))
	return nil
}

func (s *recordingSink) Chunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// testConfig returns a normalized config with fast reopen and quiet logging
func testConfig(t *testing.T, opener *mockOpener) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ReopenDelay = 10 * time.Millisecond
	cfg.Logger = NewDiscardLogger()
	if opener != nil {
		cfg.Opener = opener.Open
	}
	cfg, err := cfg.Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return cfg
}

// runInBackground starts fn and stops it when the test ends
func runInBackground(t *testing.T, fn func(context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("background loop did not stop after cancel")
		}
	})
}
