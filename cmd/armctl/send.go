package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gwillem/armctl/pkg/console"
	"github.com/gwillem/armctl/pkg/link"
	"github.com/gwillem/armctl/pkg/link/linktest"
)

type SendCommand struct {
	Port   string `short:"p" long:"port" description:"Serial port (overrides config)"`
	Baud   int    `short:"b" long:"baud" description:"Baud rate (overrides config)"`
	DryRun bool   `short:"n" long:"dry-run" description:"Print the wire lines instead of opening the port"`

	Args struct {
		Commands []string `positional-arg-name:"command" required:"1" description:"Console commands, separated by ';'"`
	} `positional-args:"yes"`
}

func (c *SendCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.Port, c.Baud)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	var transport link.Transport = link.NewSerialTransport()
	if c.DryRun {
		rec := linktest.NewRecorder()
		rec.Echo = os.Stdout
		transport = rec
	}

	con, err := console.New(transport, console.Config{
		Speed:     cfg.Speed,
		StepDelay: cfg.StepDelay(),
		RampSteps: cfg.RampSteps,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	con.Subscribe(func(e console.Entry) {
		if e.Level == console.Error {
			fmt.Fprintln(os.Stderr, e)
		} else if !c.DryRun {
			fmt.Println(e)
		}
	})

	if err := con.OpenConnection(cfg.Port, cfg.Baud); err != nil {
		return err
	}

	var failed error
	for _, line := range splitCommands(c.Args.Commands) {
		if err := con.Exec(line); err != nil {
			failed = err
			break
		}
		// Ramps run in the background; finish each before the next command.
		con.Wait()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := con.Shutdown(ctx); err != nil && failed == nil {
		failed = err
	}
	return failed
}

// splitCommands joins the positional arguments and splits them on ';'.
func splitCommands(args []string) []string {
	var out []string
	for _, part := range strings.Split(strings.Join(args, " "), ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
