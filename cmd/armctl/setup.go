package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/gwillem/armctl/pkg/config"
	"github.com/gwillem/armctl/pkg/link"
	"github.com/gwillem/armctl/pkg/protocol"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type SetupCommand struct{}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("armctl Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := config.LoadFrom(opts.ConfigFile)
	if err != nil {
		fmt.Println(dimStyle.Render(fmt.Sprintf("Ignoring %s: %v", opts.ConfigFile, err)))
		cfg = config.Defaults()
	}

	ports, err := link.ListPorts()
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}

	port := cfg.Port
	baud := strconv.Itoa(cfg.Baud)
	speed := strconv.Itoa(cfg.Speed)
	save := true

	var portField huh.Field
	if len(ports) > 0 {
		options := make([]huh.Option[string], 0, len(ports))
		for _, p := range ports {
			options = append(options, huh.NewOption(p, p))
		}
		portField = huh.NewSelect[string]().
			Title("Which serial port is the arm on?").
			Options(options...).
			Value(&port)
	} else {
		portField = huh.NewInput().
			Title("Serial port").
			Description("No ports detected, type the device path").
			Value(&port).
			Validate(func(s string) error {
				if s == "" {
					return errors.New("port is required")
				}
				return nil
			})
	}

	form := huh.NewForm(
		huh.NewGroup(
			portField,
			huh.NewInput().
				Title("Baud rate").
				Value(&baud).
				Validate(func(s string) error {
					_, err := protocol.ParseBaud(s)
					return err
				}),
			huh.NewInput().
				Title("Default speed").
				Value(&speed).
				Validate(func(s string) error {
					_, err := protocol.ParseSpeed(s)
					return err
				}),
			huh.NewConfirm().
				Title(fmt.Sprintf("Save to %s?", opts.ConfigFile)).
				Value(&save),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		return nil
	}
	if !save {
		fmt.Println("Nothing saved.")
		return nil
	}

	cfg.Port = port
	cfg.Baud, _ = protocol.ParseBaud(baud)
	cfg.Speed, _ = protocol.ParseSpeed(speed)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.SaveTo(opts.ConfigFile); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.ConfigFile)
	fmt.Println()
	fmt.Println("Start the console with: " + headerStyle.Render("armctl console"))
	return nil
}
