package console

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gwillem/armctl/pkg/motion"
	"github.com/gwillem/armctl/pkg/protocol"
)

// DefaultBaud is used by "open" when no baud rate is given.
const DefaultBaud = 115200

// Usage lists the commands understood by Exec.
const Usage = `open <port> [baud]         open the serial port
close                      close the serial port
speed <n>                  set the default speed
reset                      home the arm
stop                       emergency stop, cancels ramps and jogs
joint <x> <y> <z>          absolute joint move      (joint+ for offset)
world <x> <y> <z>          absolute world move      (world+ for offset)
line <x> <y> <z>           absolute linear move     (line+ for offset)
suction on|off             switch the suction cup
jog <joint|world> <1-3> <+|->   start a continuous jog
jog stop                   stop the jog
ramp <dx> <dy> <dz> <start> <end> [steps]   ramped relative world move
cancel                     cancel the running ramp
raw <text>                 send text as typed`

// Exec parses one operator command line and runs it. Malformed input is
// logged as an invalid parameter and returned; nothing is sent.
func (c *Console) Exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	verb, args := strings.ToLower(fields[0]), fields[1:]

	switch verb {
	case "open":
		return c.execOpen(args)
	case "close":
		return c.CloseConnection()
	case "speed":
		if len(args) != 1 {
			return c.usage("speed <n>")
		}
		v, err := protocol.ParseSpeed(args[0])
		if err != nil {
			c.report(err)
			return err
		}
		return c.SetSpeed(v)
	case "reset", "home":
		return c.Reset()
	case "stop", "estop":
		return c.Stop()
	case "joint", "joint+", "world", "world+", "line", "line+":
		return c.execMove(verb, args)
	case "suction":
		if len(args) != 1 {
			return c.usage("suction on|off")
		}
		switch strings.ToLower(args[0]) {
		case "on", "1":
			return c.Suction(true)
		case "off", "0":
			return c.Suction(false)
		}
		return c.usage("suction on|off")
	case "jog":
		return c.execJog(args)
	case "ramp":
		return c.execRamp(args)
	case "cancel":
		c.CancelRamp()
		return nil
	case "raw", "send":
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
		return c.SendRaw(text)
	}

	err := fmt.Errorf("%w: unknown command %q", protocol.ErrInvalidParameter, fields[0])
	c.report(err)
	return err
}

func (c *Console) execOpen(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return c.usage("open <port> [baud]")
	}
	baud := DefaultBaud
	if len(args) == 2 {
		b, err := protocol.ParseBaud(args[1])
		if err != nil {
			c.report(err)
			return err
		}
		baud = b
	}
	return c.OpenConnection(args[0], baud)
}

func (c *Console) execMove(verb string, args []string) error {
	if len(args) != 3 {
		return c.usage(verb + " <x> <y> <z>")
	}
	x, y, z, err := protocol.ParseVector(args[0], args[1], args[2])
	if err != nil {
		c.report(err)
		return err
	}
	switch verb {
	case "joint":
		return c.JointMove(x, y, z)
	case "joint+":
		return c.JointOffset(x, y, z)
	case "world":
		return c.WorldMove(x, y, z)
	case "world+":
		return c.WorldOffset(x, y, z)
	case "line":
		return c.LineMove(x, y, z)
	default:
		return c.LineOffset(x, y, z)
	}
}

func (c *Console) execJog(args []string) error {
	if len(args) == 1 && strings.EqualFold(args[0], "stop") {
		return c.StopJog()
	}
	if len(args) != 3 {
		return c.usage("jog <joint|world> <1-3> <+|-> or jog stop")
	}
	space, err := protocol.ParseAxisSpace(args[0])
	if err != nil {
		c.report(err)
		return err
	}
	axis, err := protocol.ParseAxis(args[1])
	if err != nil {
		c.report(err)
		return err
	}
	dir, err := protocol.ParseDirection(args[2])
	if err != nil {
		c.report(err)
		return err
	}
	return c.StartJog(space, axis, dir)
}

func (c *Console) execRamp(args []string) error {
	if len(args) != 5 && len(args) != 6 {
		return c.usage("ramp <dx> <dy> <dz> <start> <end> [steps]")
	}
	x, y, z, err := protocol.ParseVector(args[0], args[1], args[2])
	if err != nil {
		c.report(err)
		return err
	}
	start, err := protocol.ParseFloat("start speed", args[3])
	if err != nil {
		c.report(err)
		return err
	}
	end, err := protocol.ParseFloat("end speed", args[4])
	if err != nil {
		c.report(err)
		return err
	}
	steps := 0
	if len(args) == 6 {
		steps, err = strconv.Atoi(args[5])
		if err != nil || steps < 1 {
			err = fmt.Errorf("%w: steps %q", protocol.ErrInvalidParameter, args[5])
			c.report(err)
			return err
		}
	}
	return c.StartRamp(motion.Vector{X: x, Y: y, Z: z}, start, end, steps)
}

func (c *Console) usage(form string) error {
	err := fmt.Errorf("%w: usage: %s", protocol.ErrInvalidParameter, form)
	c.report(err)
	return err
}
