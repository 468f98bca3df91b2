// Package iox provides I/O helpers shared by the runtime, worker and session.
package iox

import (
	"bytes"
	"io"
	"sync"
)

// DiscardClose closes c and discards the error.
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
//
//	t.Cleanup(iox.CloseFunc(client))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and discards the returned error.
func DiscardErr(fn func() error) { _ = fn() }

// SyncWriter serializes writes to an underlying writer so that concurrent
// producers never interleave partial messages.
type SyncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewSyncWriter wraps w.
func NewSyncWriter(w io.Writer) *SyncWriter {
	return &SyncWriter{w: w}
}

// Write writes p as one unit.
func (s *SyncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// WriteLine writes p followed by a newline as one unit.
func (s *SyncWriter) WriteLine(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, 0, len(p)+1)
	buf = append(buf, p...)
	buf = append(buf, '\n')
	_, err := s.w.Write(buf)
	return err
}

// TailBuffer keeps at most the last Max bytes written to it.
// Safe for concurrent use.
type TailBuffer struct {
	Max int

	mu        sync.Mutex
	buf       bytes.Buffer
	truncated bool
}

// Write appends p, dropping the oldest bytes beyond Max.
func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if t.Max > 0 && t.buf.Len() > t.Max {
		excess := t.buf.Len() - t.Max
		t.buf.Next(excess)
		t.truncated = true
	}
	return len(p), nil
}

// String returns the retained bytes.
func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// Truncated reports whether bytes were dropped.
func (t *TailBuffer) Truncated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.truncated
}
