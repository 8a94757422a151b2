package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/armctl/pkg/console"
	"github.com/gwillem/armctl/pkg/link"
	"github.com/gwillem/armctl/pkg/monitor"
	"github.com/gwillem/armctl/pkg/motion"
)

type ConsoleCommand struct {
	Port     string `short:"p" long:"port" description:"Serial port (overrides config)"`
	Baud     int    `short:"b" long:"baud" description:"Baud rate (overrides config)"`
	Monitor  string `short:"m" long:"monitor" description:"Serve the event log over websocket on this address, e.g. :8765"`
	NoOpen   bool   `long:"no-open" description:"Do not open the port on start"`
	MaxSpeed int    `long:"max-speed" default:"200" description:"Upper bound of the speed chart"`
}

const (
	headerHeight = 2 // title + blank line
	inputHeight  = 2 // prompt + blank
	footerHeight = 9 // log box height
	maxLogs      = 7 // number of log messages to show
	borderSize   = 2 // chart border
	maxCommands  = 50
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	openStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	speedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
)

type consoleModel struct {
	con      *console.Console
	input    textinput.Model
	chart    *streamlinechart.Model
	width    int
	height   int
	logs     []console.Entry // last N entries
	commands []string        // typed command history, newest last
	recall   int             // index into commands while browsing
	quitting bool
}

// Messages from the console
type entryMsg console.Entry
type progressMsg motion.Progress

func waitForEntry(c *console.Console) tea.Cmd {
	return func() tea.Msg {
		return entryMsg(<-c.Events())
	}
}

func waitForProgress(c *console.Console) tea.Cmd {
	return func() tea.Msg {
		return progressMsg(<-c.Progress())
	}
}

func initialConsoleModel(c *console.Console, maxSpeed int) consoleModel {
	ti := textinput.New()
	ti.Placeholder = "type a command, 'help' for the list"
	ti.Prompt = "> "
	ti.CharLimit = 256
	ti.Focus()

	chart := streamlinechart.New(80, 10,
		streamlinechart.WithYRange(0, float64(maxSpeed)),
	)
	chart.SetDataSetStyles("speed", runes.ThinLineStyle, speedStyle)

	return consoleModel{
		con:   c,
		input: ti,
		chart: &chart,
	}
}

func (m *consoleModel) addLog(e console.Entry) {
	m.logs = append(m.logs, e)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

func (m *consoleModel) remember(cmd string) {
	m.commands = append(m.commands, cmd)
	if len(m.commands) > maxCommands {
		m.commands = m.commands[len(m.commands)-maxCommands:]
	}
	m.recall = len(m.commands)
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *consoleModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 10
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - inputHeight - footerHeight - borderSize
	if height < 5 {
		height = 5
	}
	return width, height
}

func (m consoleModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		waitForEntry(m.con),
		waitForProgress(m.con),
	)
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(m.chartSize())
		m.input.Width = msg.Width - 4
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "esc":
			// Emergency stop, whatever is typed.
			_ = m.con.Stop()
			return m, nil
		case "ctrl+x":
			m.con.CancelRamp()
			return m, nil
		case "up":
			if m.recall > 0 {
				m.recall--
				m.input.SetValue(m.commands[m.recall])
				m.input.CursorEnd()
			}
			return m, nil
		case "down":
			if m.recall < len(m.commands)-1 {
				m.recall++
				m.input.SetValue(m.commands[m.recall])
			} else {
				m.recall = len(m.commands)
				m.input.SetValue("")
			}
			m.input.CursorEnd()
			return m, nil
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				return m, nil
			}
			m.remember(line)
			switch line {
			case "quit", "exit":
				m.quitting = true
				return m, tea.Quit
			case "help", "?":
				for _, l := range strings.Split(console.Usage, "\n") {
					m.addLog(console.Entry{Time: time.Now(), Text: l})
				}
				return m, nil
			}
			_ = m.con.Exec(line)
			return m, nil
		}

	case entryMsg:
		m.addLog(console.Entry(msg))
		return m, waitForEntry(m.con)

	case progressMsg:
		m.chart.PushDataSet("speed", msg.Speed)
		m.chart.DrawAll()
		return m, waitForProgress(m.con)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m consoleModel) View() string {
	if m.quitting {
		return "Console closed.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("armctl"))
	if m.con.IsOpen() {
		sb.WriteString(" " + openStyle.Render("● "+m.con.Port()))
	} else {
		sb.WriteString(" " + errorStyle.Render("○ closed"))
	}
	sb.WriteString(statusStyle.Render(fmt.Sprintf("  speed %d  %s", m.con.Speed(), m.con.State())))
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Prompt
	sb.WriteString(m.input.View())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20))

	var lines []string
	for _, e := range m.logs {
		if e.Level == console.Error {
			lines = append(lines, errorStyle.Render(e.String()))
		} else {
			lines = append(lines, e.String())
		}
	}
	if len(lines) == 0 {
		lines = append(lines, statusStyle.Render("esc: emergency stop  ctrl+x: cancel ramp  ctrl+c: quit"))
	}
	sb.WriteString(logStyle.Render(strings.Join(lines, "\n")))
	sb.WriteString("\n")

	return sb.String()
}

func (c *ConsoleCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.Port, c.Baud)
	if err != nil {
		return err
	}
	if c.Monitor != "" {
		cfg.MonitorAddr = c.Monitor
	}

	// The TUI owns the terminal, so diagnostics go to the log file or nowhere.
	if cfg.LogFile == "" {
		cfg.LogLevel = "off"
	}
	logger, closeLog, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	con, err := console.New(link.NewSerialTransport(), console.Config{
		Speed:     cfg.Speed,
		StepDelay: cfg.StepDelay(),
		RampSteps: cfg.RampSteps,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MonitorAddr != "" {
		hub := monitor.NewHub(logger.WithField("component", "monitor"))
		hub.Attach(ctx, con)
		go func() {
			if err := hub.ListenAndServe(ctx, cfg.MonitorAddr, con); err != nil {
				logger.WithError(err).Error("monitor stopped")
			}
		}()
	}

	if !c.NoOpen {
		// Failures are shown in the log box.
		_ = con.OpenConnection(cfg.Port, cfg.Baud)
	}

	p := tea.NewProgram(initialConsoleModel(con, c.MaxSpeed), tea.WithAltScreen())
	_, runErr := p.Run()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := con.Shutdown(shutdownCtx); err != nil && !errors.Is(err, link.ErrAlreadyClosed) {
		logger.WithError(err).Warn("shutdown")
	}

	if runErr != nil {
		return fmt.Errorf("run console: %w", runErr)
	}
	return nil
}
