// Package linktest provides an in-memory Transport for tests and dry runs.
package linktest

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrInjected is the default error returned by programmed failures.
var ErrInjected = errors.New("injected transport failure")

// Recorder is a Transport that keeps every written line in memory.
type Recorder struct {
	// Echo, when set, receives a copy of every write.
	Echo io.Writer

	mu        sync.Mutex
	open      bool
	port      string
	baud      int
	writes    []string
	attempts  int
	openErr   error
	closeErr  error
	failAt    int
	failErr   error
	afterFail bool
	onWrite   func(n int)
}

// NewRecorder returns a closed recorder with no programmed failures.
func NewRecorder() *Recorder {
	return &Recorder{failAt: -1}
}

// FailOpen makes the next Open calls return err.
func (r *Recorder) FailOpen(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openErr = orInjected(err)
}

// FailClose makes the next Close calls return err.
func (r *Recorder) FailClose(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeErr = orInjected(err)
}

// FailWriteAt makes the write attempt with 0-based index n fail with err.
// Later writes fail as well when sticky is set.
func (r *Recorder) FailWriteAt(n int, err error, sticky bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAt = n
	r.failErr = orInjected(err)
	r.afterFail = sticky
}

// OnWrite registers a hook run after each successful write with the number
// of lines recorded so far. It runs without the recorder lock held.
func (r *Recorder) OnWrite(fn func(n int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onWrite = fn
}

func (r *Recorder) Open(port string, baud int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.openErr != nil {
		return r.openErr
	}
	if r.open {
		return errors.New("recorder already open")
	}
	r.open = true
	r.port = port
	r.baud = baud
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr != nil {
		return r.closeErr
	}
	r.open = false
	return nil
}

func (r *Recorder) Write(p []byte) error {
	r.mu.Lock()
	if !r.open {
		r.mu.Unlock()
		return errors.New("recorder not open")
	}
	n := r.attempts
	r.attempts++
	if r.failAt >= 0 && (n == r.failAt || (r.afterFail && n > r.failAt)) {
		err := r.failErr
		r.mu.Unlock()
		return fmt.Errorf("write %d: %w", n, err)
	}
	r.writes = append(r.writes, string(p))
	count := len(r.writes)
	echo, hook := r.Echo, r.onWrite
	r.mu.Unlock()

	if echo != nil {
		if _, err := echo.Write(p); err != nil {
			return err
		}
	}
	if hook != nil {
		hook(count)
	}
	return nil
}

// Writes returns every successfully written chunk, newlines included.
func (r *Recorder) Writes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.writes))
	copy(out, r.writes)
	return out
}

// Lines returns the written lines without their trailing newline.
func (r *Recorder) Lines() []string {
	writes := r.Writes()
	out := make([]string, len(writes))
	for i, w := range writes {
		out[i] = strings.TrimSuffix(w, "\n")
	}
	return out
}

// Attempts returns the number of Write calls made while open, including failed ones.
func (r *Recorder) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// IsOpen reports whether Open succeeded and Close has not been called since.
func (r *Recorder) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// Port returns the port name of the last successful Open.
func (r *Recorder) Port() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.port
}

// Baud returns the baud rate of the last successful Open.
func (r *Recorder) Baud() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.baud
}

func orInjected(err error) error {
	if err == nil {
		return ErrInjected
	}
	return err
}
