package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/armctl/pkg/config"
	"github.com/gwillem/armctl/pkg/link"
)

type PortsCommand struct{}

func (c *PortsCommand) Execute(args []string) error {
	ports, err := link.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		return nil
	}

	configured := ""
	if cfg, err := config.LoadFrom(opts.ConfigFile); err == nil {
		configured = cfg.Port
	}
	fmt.Println(renderPorts(ports, configured))
	return nil
}

func renderPorts(ports []string, configured string) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	activeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)

	rows := make([][]string, 0, len(ports))
	for i, p := range ports {
		mark := ""
		if p == configured {
			mark = "configured"
		}
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), p, mark})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("#", "Port", "").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row >= 0 && row < len(ports) && ports[row] == configured {
				return activeStyle
			}
			return cellStyle
		}).
		Render()
}
