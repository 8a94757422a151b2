package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/gwillem/armctl/pkg/config"
)

type Options struct {
	ConfigFile string `short:"c" long:"config" default:"armctl.json" description:"Config file (.json, .yaml or .yml)"`

	Setup   SetupCommand   `command:"setup" description:"Pick the serial port and default speed"`
	Ports   PortsCommand   `command:"ports" alias:"ls" description:"List serial ports"`
	Send    SendCommand    `command:"send" description:"Run console commands once and exit"`
	Console ConsoleCommand `command:"console" alias:"ui" description:"Start the interactive operator console"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "armctl - operator console for serial robot arms"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// loadConfig reads the config file named by --config and applies the
// per-command port and baud overrides.
func loadConfig(port string, baud int) (*config.Config, error) {
	if hint := configHint(opts.ConfigFile); hint != "" {
		fmt.Fprintln(os.Stderr, hint)
	}
	cfg, err := config.LoadFrom(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	if port != "" {
		cfg.Port = port
	}
	if baud > 0 {
		cfg.Baud = baud
	}
	return cfg, nil
}

// configHint suggests running setup when path does not exist yet.
func configHint(path string) string {
	if config.Exists(path) {
		return ""
	}
	return fmt.Sprintf("No configuration at %s, using defaults. Run 'armctl setup' to create one.", path)
}
