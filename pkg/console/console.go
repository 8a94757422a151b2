// Package console is the operator-facing facade. It turns operator actions
// into commands and sessions, and reports every outcome as one entry in an
// ordered event log.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gwillem/armctl/pkg/link"
	"github.com/gwillem/armctl/pkg/motion"
)

// Level classifies an entry for display.
type Level int

const (
	Info Level = iota
	Error
)

func (l Level) String() string {
	if l == Error {
		return "error"
	}
	return "info"
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "error":
		*l = Error
	case "info", "":
		*l = Info
	default:
		return fmt.Errorf("unknown level %q", b)
	}
	return nil
}

// Entry is one line of the event log.
type Entry struct {
	Time  time.Time `json:"time"`
	Level Level     `json:"level"`
	Text  string    `json:"text"`
}

func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s", e.Time.Format("15:04:05"), e.Text)
}

// Config holds configuration for the console. Speed and StepDelay are used
// as given, zero included; config.Defaults holds the usual values.
type Config struct {
	Speed     int           // initial default speed
	StepDelay time.Duration // delay between ramp steps, none when <= 0
	RampSteps int           // steps used when a ramp does not say
	Logger    logrus.FieldLogger
}

// Console wires the connection, the session manager and the event log.
type Console struct {
	conn      *link.Conn
	motion    *motion.Manager
	log       logrus.FieldLogger
	rampSteps int

	mu         sync.Mutex
	history    []Entry
	subs       []func(Entry)
	progSubs   []func(motion.Progress)
	entryCh    chan Entry
	progressCh chan motion.Progress
	ramps      sync.WaitGroup
}

// New creates a console over transport t. The connection starts closed.
func New(t link.Transport, cfg Config) (*Console, error) {
	if cfg.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.Logger = l
	}
	if cfg.RampSteps <= 0 {
		cfg.RampSteps = motion.DefaultRampSteps
	}

	conn := link.NewConn(t)
	conn.SetLogger(cfg.Logger.WithField("component", "link"))

	c := &Console{
		conn:       conn,
		log:        cfg.Logger.WithField("component", "console"),
		rampSteps:  cfg.RampSteps,
		entryCh:    make(chan Entry, 64),
		progressCh: make(chan motion.Progress, 16),
	}

	m, err := motion.NewManager(conn, motion.Config{
		Speed:      cfg.Speed,
		StepDelay:  cfg.StepDelay,
		OnProgress: c.publishProgress,
		Logger:     cfg.Logger.WithField("component", "motion"),
	})
	if err != nil {
		return nil, fmt.Errorf("create session manager: %w", err)
	}
	c.motion = m
	return c, nil
}

// Events returns a channel that receives log entries. Old entries are
// dropped when the reader falls behind; History keeps all of them.
func (c *Console) Events() <-chan Entry {
	return c.entryCh
}

// Progress returns a channel that receives ramp progress updates.
func (c *Console) Progress() <-chan motion.Progress {
	return c.progressCh
}

// Subscribe registers fn to be called with every new entry, in order.
// fn must not call back into the console.
func (c *Console) Subscribe(fn func(Entry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

// SubscribeProgress registers fn to be called after every ramp step.
func (c *Console) SubscribeProgress(fn func(motion.Progress)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progSubs = append(c.progSubs, fn)
}

// History returns a copy of every entry logged so far.
func (c *Console) History() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.history))
	copy(out, c.history)
	return out
}

// Speed returns the current default speed.
func (c *Console) Speed() int {
	return c.motion.Speed()
}

// State returns the session state.
func (c *Console) State() motion.State {
	return c.motion.State()
}

// IsOpen reports whether the connection is open.
func (c *Console) IsOpen() bool {
	return c.conn.IsOpen()
}

// Port returns the open port, or "" when closed.
func (c *Console) Port() string {
	return c.conn.Port()
}

// Wait blocks until background ramps have reported their outcome.
func (c *Console) Wait() {
	c.ramps.Wait()
}

// Shutdown cancels a running ramp, waits for it and closes the connection.
func (c *Console) Shutdown(ctx context.Context) error {
	c.motion.CancelRamp()

	done := make(chan struct{})
	go func() {
		c.ramps.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if c.conn.IsOpen() {
		return c.conn.Close()
	}
	return nil
}

func (c *Console) infof(format string, args ...any) {
	c.emit(Info, fmt.Sprintf(format, args...))
}

func (c *Console) errorf(format string, args ...any) {
	c.emit(Error, fmt.Sprintf(format, args...))
}

func (c *Console) emit(level Level, text string) {
	e := Entry{Time: time.Now(), Level: level, Text: text}

	c.mu.Lock()
	c.history = append(c.history, e)
	// Subscribers and the channel see entries in history order.
	for _, fn := range c.subs {
		fn(e)
	}
	select {
	case c.entryCh <- e:
	default:
		// Drop the oldest entry to make room
		select {
		case <-c.entryCh:
		default:
		}
		c.entryCh <- e
	}
	c.mu.Unlock()

	fields := logrus.Fields{"entry": text}
	if level == Error {
		c.log.WithFields(fields).Warn("operator event")
	} else {
		c.log.WithFields(fields).Info("operator event")
	}
}

func (c *Console) publishProgress(p motion.Progress) {
	c.mu.Lock()
	subs := c.progSubs
	c.mu.Unlock()
	for _, fn := range subs {
		fn(p)
	}

	select {
	case c.progressCh <- p:
	default:
		select {
		case <-c.progressCh:
		default:
		}
		select {
		case c.progressCh <- p:
		default:
		}
	}
}
