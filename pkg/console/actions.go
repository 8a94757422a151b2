package console

import (
	"context"
	"errors"

	"github.com/gwillem/armctl/pkg/link"
	"github.com/gwillem/armctl/pkg/motion"
	"github.com/gwillem/armctl/pkg/protocol"
)

// OpenConnection opens the serial channel.
func (c *Console) OpenConnection(port string, baud int) error {
	err := c.conn.Open(port, baud)
	switch {
	case err == nil:
		c.infof("port opened: %s @ %d", port, baud)
	case errors.Is(err, link.ErrAlreadyOpen):
		c.infof("port already open: %s", c.conn.Port())
	case errors.Is(err, protocol.ErrInvalidParameter):
		c.errorf("%v", err)
	default:
		c.errorf("open failed: %v", err)
	}
	return err
}

// CloseConnection closes the serial channel.
func (c *Console) CloseConnection() error {
	err := c.conn.Close()
	switch {
	case err == nil:
		c.infof("port closed")
	case errors.Is(err, link.ErrAlreadyClosed):
		c.infof("port already closed")
	default:
		c.errorf("close failed: %v", err)
	}
	return err
}

// SendRaw sends operator free text as a single line.
func (c *Console) SendRaw(text string) error {
	return c.send(protocol.Raw(text))
}

// Reset homes the arm at the current speed.
func (c *Console) Reset() error {
	return c.send(protocol.Reset(c.motion.Speed()))
}

// Stop sends the emergency stop. A running ramp is cancelled and the active
// jog forgotten, since the arm halts everything on Stop. New sessions can
// start as soon as it returns.
func (c *Console) Stop() error {
	cancelled, cleared, err := c.motion.Stop()
	if cancelled || cleared {
		c.log.WithField("ramp_cancelled", cancelled).WithField("jog_cleared", cleared).Debug("sessions aborted by stop")
	}
	c.reportSend(protocol.Stop(), err)
	return err
}

// JointMove moves to absolute joint angles at the current speed.
func (c *Console) JointMove(x, y, z float64) error {
	return c.send(protocol.JointMove(x, y, z, c.motion.Speed()))
}

// JointOffset moves the joints relative to their current angles.
func (c *Console) JointOffset(x, y, z float64) error {
	return c.send(protocol.JointOffset(x, y, z, c.motion.Speed()))
}

// WorldMove moves to an absolute cartesian point.
func (c *Console) WorldMove(x, y, z float64) error {
	return c.send(protocol.WorldMove(x, y, z, c.motion.Speed()))
}

// WorldOffset moves relative to the current cartesian point.
func (c *Console) WorldOffset(x, y, z float64) error {
	return c.send(protocol.WorldOffset(x, y, z, c.motion.Speed()))
}

// LineMove moves along a straight line to an absolute point.
func (c *Console) LineMove(x, y, z float64) error {
	return c.send(protocol.LineMove(x, y, z, c.motion.Speed()))
}

// LineOffset moves along a straight line relative to the current point.
func (c *Console) LineOffset(x, y, z float64) error {
	return c.send(protocol.LineOffset(x, y, z, c.motion.Speed()))
}

// Suction switches the suction cup.
func (c *Console) Suction(on bool) error {
	return c.send(protocol.Suction(on), nil)
}

// SetSpeed changes the default speed and sends it to the arm.
func (c *Console) SetSpeed(speed int) error {
	l, err := c.motion.SetSpeed(speed)
	if l.IsZero() {
		c.report(err)
		return err
	}
	c.reportSend(l, err)
	return err
}

// StartJog begins a continuous jog, stopping any active one first.
func (c *Console) StartJog(space protocol.AxisSpace, axis int, dir protocol.Direction) error {
	j := motion.Jog{Space: space, Axis: axis, Direction: dir}
	err := c.motion.StartJog(j)
	if err != nil {
		c.report(err)
		return err
	}
	c.infof("jog started: %s", j)
	return nil
}

// StopJog ends the active jog. Without one nothing is sent.
func (c *Console) StopJog() error {
	stopped, err := c.motion.StopJog()
	switch {
	case err != nil:
		c.report(err)
	case stopped:
		c.infof("jog stopped")
	default:
		c.infof("no active jog")
	}
	return err
}

// StartRamp validates the ramp and runs it in the background. Rejections are
// returned and logged right away; the ramp's own outcome is logged when it
// ends. steps <= 0 uses the configured step count.
func (c *Console) StartRamp(target motion.Vector, startSpeed, endSpeed float64, steps int) error {
	if steps <= 0 {
		steps = c.rampSteps
	}
	plan, err := motion.NewRampPlan(target, startSpeed, endSpeed, steps)
	if err != nil {
		c.report(err)
		return err
	}

	c.ramps.Add(1)
	done, err := c.motion.StartRampAsync(context.Background(), plan)
	if err != nil {
		c.ramps.Done()
		c.report(err)
		return err
	}

	go func() {
		defer c.ramps.Done()
		c.reportRamp(plan, <-done)
	}()
	return nil
}

// CancelRamp asks the running ramp to stop before its next step.
func (c *Console) CancelRamp() bool {
	if c.motion.CancelRamp() {
		return true
	}
	c.infof("no ramp running")
	return false
}

func (c *Console) send(l protocol.Line, err error) error {
	if err != nil {
		c.report(err)
		return err
	}
	err = c.motion.Send(l)
	c.reportSend(l, err)
	return err
}

func (c *Console) reportSend(l protocol.Line, err error) {
	if err == nil {
		c.infof("sent: %s", l)
		return
	}
	c.errorf("send failed: %s: %v", l, err)
}

func (c *Console) reportRamp(p motion.RampPlan, err error) {
	var (
		stepErr   *motion.StepError
		cancelErr *motion.CancelError
	)
	switch {
	case err == nil:
		c.infof("ramp complete: %d steps", p.Steps)
	case errors.As(err, &cancelErr):
		c.infof("ramp cancelled after %d/%d steps", cancelErr.Sent, cancelErr.Total)
	case errors.As(err, &stepErr):
		c.errorf("ramp failed at step %d: %v", stepErr.Step, stepErr.Err)
	default:
		c.report(err)
	}
}

// report logs an error that happened before anything was sent.
func (c *Console) report(err error) {
	switch {
	case errors.Is(err, protocol.ErrInvalidParameter):
		c.errorf("%v", err)
	case errors.Is(err, motion.ErrSessionBusy):
		c.errorf("%v", err)
	case errors.Is(err, link.ErrNotConnected):
		c.errorf("not connected: open a port first")
	case errors.Is(err, motion.ErrCancelled):
		c.infof("%v", err)
	default:
		c.errorf("%v", err)
	}
}
