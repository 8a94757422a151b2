// Package motion arbitrates jog and ramp sessions over a single connection.
//
// A Manager is in one of three states. Idle accepts anything. Jogging holds
// exactly one active jog; starting another jog stops the current one first.
// Ramping runs a multi-step move and rejects new sessions until it ends or
// is cancelled.
package motion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gwillem/armctl/pkg/protocol"
)

// DefaultStepDelay separates ramp steps so the arm can finish each
// micro-move. Callers pick it up through the config defaults.
const DefaultStepDelay = 100 * time.Millisecond

// DefaultSpeed is the usual speed before the operator sets one.
const DefaultSpeed = 100

var (
	ErrSessionBusy = errors.New("session busy")
	ErrCancelled   = errors.New("cancelled")
)

// StepError reports the ramp step whose write failed.
type StepError struct {
	Step  int // 0-indexed
	Total int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("ramp step %d/%d: %v", e.Step, e.Total, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// CancelError reports how far a cancelled ramp got.
type CancelError struct {
	Sent  int
	Total int
}

func (e *CancelError) Error() string {
	return fmt.Sprintf("ramp cancelled after %d/%d steps", e.Sent, e.Total)
}

func (e *CancelError) Unwrap() error {
	return ErrCancelled
}

// Sender writes encoded lines. *link.Conn implements it.
type Sender interface {
	Send(l protocol.Line) error
}

// State of the session machine.
type State int

const (
	Idle State = iota
	Jogging
	Ramping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Jogging:
		return "jogging"
	case Ramping:
		return "ramping"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Jog is a continuous single-axis motion.
type Jog struct {
	Space     protocol.AxisSpace
	Axis      int
	Direction protocol.Direction
}

func (j Jog) String() string {
	return fmt.Sprintf("%s axis %d %s", j.Space, j.Axis, j.Direction)
}

// Progress is emitted after each ramp step is written.
type Progress struct {
	Step  int     `json:"step"` // 0-indexed
	Total int     `json:"total"`
	Speed float64 `json:"speed"`
}

// Config holds configuration for the manager. Values are used as given:
// a zero Speed is speed 0 and a StepDelay <= 0 runs ramp steps back to back.
type Config struct {
	Speed      int           // initial default speed
	StepDelay  time.Duration // delay between ramp steps
	OnProgress func(Progress)
	Logger     logrus.FieldLogger
}

// Manager owns the speed setting and the active session.
type Manager struct {
	out        Sender
	stepDelay  time.Duration
	onProgress func(Progress)
	log        logrus.FieldLogger

	// mu is the session lock. Every write made on behalf of a session is
	// done while holding it.
	mu     sync.Mutex
	speed  int
	state  State
	jog    Jog
	active *ramp
}

// NewManager creates a manager that writes through out.
func NewManager(out Sender, cfg Config) (*Manager, error) {
	if out == nil {
		return nil, errors.New("motion: nil sender")
	}
	if cfg.Speed < 0 {
		return nil, fmt.Errorf("%w: speed %d is negative", protocol.ErrInvalidParameter, cfg.Speed)
	}
	if cfg.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.Logger = l
	}
	return &Manager{
		out:        out,
		stepDelay:  cfg.StepDelay,
		onProgress: cfg.OnProgress,
		log:        cfg.Logger,
		speed:      cfg.Speed,
	}, nil
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ActiveJog returns the running jog, if any.
func (m *Manager) ActiveJog() (Jog, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jog, m.state == Jogging
}

// Speed returns the default speed for commands without an explicit one.
func (m *Manager) Speed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speed
}

// SetSpeed validates and stores the default speed, then tells the arm.
// The setting is kept even if the write fails.
func (m *Manager) SetSpeed(speed int) (protocol.Line, error) {
	l, err := protocol.SpeedSet(speed)
	if err != nil {
		return protocol.Line{}, err
	}
	m.mu.Lock()
	m.speed = speed
	m.mu.Unlock()
	return l, m.out.Send(l)
}

// Send writes a single command outside of any session.
func (m *Manager) Send(l protocol.Line) error {
	return m.out.Send(l)
}

// StartJog begins a jog. An active jog is stopped first, and its stop is
// written before the new start.
func (m *Manager) StartJog(j Jog) error {
	start, err := protocol.JogStart(j.Space, j.Axis, j.Direction)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Ramping:
		return fmt.Errorf("%w: ramp in progress", ErrSessionBusy)
	case Jogging:
		prev := m.jog
		m.state, m.jog = Idle, Jog{}
		if err := m.out.Send(protocol.JogStop()); err != nil {
			return fmt.Errorf("stop previous jog: %w", err)
		}
		m.log.WithField("jog", prev.String()).Debug("jog superseded")
	}

	if err := m.out.Send(start); err != nil {
		return err
	}
	m.state, m.jog = Jogging, j
	m.log.WithField("jog", j.String()).Debug("jog started")
	return nil
}

// StopJog ends the active jog. Without one it does nothing.
func (m *Manager) StopJog() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Jogging {
		return false, nil
	}
	m.state, m.jog = Idle, Jog{}
	if err := m.out.Send(protocol.JogStop()); err != nil {
		return true, err
	}
	m.log.Debug("jog stopped")
	return true, nil
}

// StartRamp writes every step of p and blocks until the ramp completes,
// fails or is cancelled through ctx or CancelRamp.
func (m *Manager) StartRamp(ctx context.Context, p RampPlan) error {
	r, err := m.beginRamp(ctx, p)
	if err != nil {
		return err
	}
	return r.run()
}

// StartRampAsync validates p and claims the session like StartRamp, then
// runs the steps in the background. The returned channel receives the
// ramp's outcome once.
func (m *Manager) StartRampAsync(ctx context.Context, p RampPlan) (<-chan error, error) {
	r, err := m.beginRamp(ctx, p)
	if err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() {
		done <- r.run()
	}()
	return done, nil
}

type ramp struct {
	m      *Manager
	ctx    context.Context
	cancel context.CancelFunc
	plan   RampPlan
	lines  []protocol.Line
}

func (m *Manager) beginRamp(ctx context.Context, p RampPlan) (*ramp, error) {
	lines, err := p.Lines()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Idle {
		return nil, fmt.Errorf("%w: %s", ErrSessionBusy, m.state)
	}
	ctx, cancel := context.WithCancel(ctx)
	r := &ramp{m: m, ctx: ctx, cancel: cancel, plan: p, lines: lines}
	m.state, m.active = Ramping, r
	return r, nil
}

func (r *ramp) run() error {
	m := r.m
	defer func() {
		m.mu.Lock()
		m.release(r)
		m.mu.Unlock()
		r.cancel()
	}()

	total := len(r.lines)
	m.log.WithFields(logrus.Fields{
		"steps":       total,
		"start_speed": r.plan.StartSpeed,
		"end_speed":   r.plan.EndSpeed,
	}).Debug("ramp started")

	for i, l := range r.lines {
		if err := r.step(i, l); err != nil {
			return err
		}
		if m.onProgress != nil {
			_, speed := r.plan.Step(i)
			m.onProgress(Progress{Step: i, Total: total, Speed: speed})
		}
		if i == total-1 {
			break
		}
		if !m.wait(r.ctx) {
			return &CancelError{Sent: i + 1, Total: total}
		}
	}
	m.log.WithField("steps", total).Debug("ramp complete")
	return nil
}

// step writes line i unless the ramp was cancelled. The check and the
// write happen under the session lock, so no step follows a Stop.
func (r *ramp) step(i int, l protocol.Line) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ctx.Err() != nil {
		return &CancelError{Sent: i, Total: len(r.lines)}
	}
	if err := m.out.Send(l); err != nil {
		return &StepError{Step: i, Total: len(r.lines), Err: err}
	}
	return nil
}

// release frees the session held by r. A ramp that was already cancelled
// may finish after a new session started; it must not clear that one.
func (m *Manager) release(r *ramp) {
	if m.active == r {
		m.state, m.active = Idle, nil
	}
}

// cancelLocked cancels the running ramp and frees the session at once.
func (m *Manager) cancelLocked() bool {
	r := m.active
	if r == nil {
		return false
	}
	r.cancel()
	m.release(r)
	return true
}

// Stop is the emergency stop. It cancels a running ramp, forgets the active
// jog and writes Stop without releasing the session lock in between, so no
// ramp step lands after the Stop line. The session is Idle on return, even
// when the write fails.
func (m *Manager) Stop() (cancelled, jogCleared bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cancelled = m.cancelLocked()
	if m.state == Jogging {
		m.state, m.jog = Idle, Jog{}
		jogCleared = true
	}
	return cancelled, jogCleared, m.out.Send(protocol.Stop())
}

// CancelRamp stops the running ramp before its next step and frees the
// session right away. It reports whether a ramp was running.
func (m *Manager) CancelRamp() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelLocked()
}

// wait sleeps for the step delay. It returns false if ctx ends first.
func (m *Manager) wait(ctx context.Context) bool {
	if m.stepDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(m.stepDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
