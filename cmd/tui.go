// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/moteprobe/pkg/bridge"
	"github.com/Thermoquad/moteprobe/pkg/moteframe"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// Event log entry
type eventEntry struct {
	timestamp time.Time
	device    string
	message   string
	isError   bool // true for errors, false for info
}

// TUI model
type model struct {
	bridges   []*bridge.Bridge
	spinner   spinner.Model
	events    []eventEntry
	maxEvents int
	width     int
	height    int
	quitting  bool
	err       error
}

// Messages
type tickMsg time.Time
type frameEventMsg bridge.FrameEvent
type logEntryMsg struct {
	timestamp time.Time
	level     logrus.Level
	device    string
	message   string
}
type bridgeErrMsg struct {
	err error
}

// programRef lets bridge goroutines reach the program once it exists
type programRef struct {
	mu sync.Mutex
	p  *tea.Program
}

func (r *programRef) set(p *tea.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p = p
}

func (r *programRef) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.p
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// sendFrame is an OnFrame callback feeding the event log
func (r *programRef) sendFrame(ev bridge.FrameEvent) error {
	r.send(frameEventMsg(ev))
	return nil
}

// tuiLogHook moves log output into the event log while the TUI owns the screen
type tuiLogHook struct {
	prog *programRef
}

func (h *tuiLogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *tuiLogHook) Fire(entry *logrus.Entry) error {
	device, _ := entry.Data["device"].(string)
	if device == "" {
		device, _ = entry.Data["listen"].(string)
	}
	message := entry.Message
	if err, ok := entry.Data[logrus.ErrorKey].(error); ok {
		message += ": " + err.Error()
	}
	h.prog.send(logEntryMsg{
		timestamp: entry.Time,
		level:     entry.Level,
		device:    device,
		message:   message,
	})
	return nil
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func initialModel(bridges []*bridge.Bridge) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	return model{
		bridges:   bridges,
		spinner:   s,
		events:    make([]eventEntry, 0),
		maxEvents: 100,
		width:     80,
		height:    24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.spinner.Tick,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		// Redraw statistics
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case frameEventMsg:
		m.addEvent(eventEntry{
			timestamp: msg.Timestamp,
			device:    msg.Device,
			message:   describeFrame(bridge.FrameEvent(msg)),
		})

	case logEntryMsg:
		m.addEvent(eventEntry{
			timestamp: msg.timestamp,
			device:    msg.device,
			message:   msg.message,
			isError:   msg.level <= logrus.WarnLevel,
		})

	case bridgeErrMsg:
		m.err = msg.err
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *model) addEvent(entry eventEntry) {
	m.events = append(m.events, entry)

	// Keep only last N entries
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}
}

// describeFrame summarizes a decoded frame for the event log
func describeFrame(ev bridge.FrameEvent) string {
	if ev.Credit {
		if ev.Flush {
			return fmt.Sprintf("credit request, capacity %d (flush)", ev.Capacity)
		}
		return fmt.Sprintf("credit request, capacity %d", ev.Capacity)
	}
	return fmt.Sprintf("%s frame, %d bytes", moteframe.FormatFrameType(ev.Type), ev.Length)
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("MOTEPROBE - SERIAL BRIDGE"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%d bridge(s) | Press 'q' to quit", len(m.bridges))))
	s.WriteString("\n\n")

	for _, b := range m.bridges {
		stats := b.Stats()

		content := strings.Builder{}
		content.WriteString(fmt.Sprintf("%s %s -> %s   ",
			statsLabelStyle.Render("Device:"), statsValueStyle.Render(b.Device()), statsValueStyle.Render(b.Listen()),
		))
		if stats.Connected {
			content.WriteString(statsValueStyle.Render("✓ Client connected"))
		} else {
			content.WriteString(m.spinner.View() + warningStyle.Render(" Waiting for client..."))
		}
		content.WriteString("\n")

		content.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f/s)", stats.FramesForwarded, stats.FrameRate())),
			statsLabelStyle.Render("Credit:"), statsValueStyle.Render(fmt.Sprintf("%d/%d", stats.CreditGrants, stats.CreditRequests)),
			statsLabelStyle.Render("Flushed:"), statsValueStyle.Render(fmt.Sprintf("%d bytes", stats.BytesFlushed)),
		))

		buffered := statsValueStyle.Render(fmt.Sprintf("%d bytes", stats.Buffered))
		if stats.Buffered > moteframe.DefaultWatermark {
			buffered = warningStyle.Render(fmt.Sprintf("%d bytes", stats.Buffered))
		}
		content.WriteString(fmt.Sprintf("%s %s   %s %s",
			statsLabelStyle.Render("Buffered:"), buffered,
			statsLabelStyle.Render("Client:"), statsValueStyle.Render(fmt.Sprintf("%d in, %d out", stats.BytesFromClient, stats.BytesToClient)),
		))

		if stats.MalformedFrames > 0 || stats.DeviceErrors > 0 {
			content.WriteString(fmt.Sprintf("\n%s %s   %s %s",
				statsLabelStyle.Render("Malformed:"), errorStyle.Render(fmt.Sprintf("%d", stats.MalformedFrames)),
				statsLabelStyle.Render("Device Errors:"), errorStyle.Render(fmt.Sprintf("%d", stats.DeviceErrors)),
			))
		}

		s.WriteString(boxStyle.Render(content.String()))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Reserve space for header and bridge boxes
	logHeight := m.height - 6 - 5*len(m.bridges)
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.events) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.events) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.events); i++ {
			entry := m.events[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			line := entry.message
			if entry.device != "" {
				line = entry.device + ": " + line
			}
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+line),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+line),
				))
			}
		}
	}

	width := m.width - 4
	if width < 20 {
		width = 20
	}
	s.WriteString(boxStyle.Width(width).Render(logContent.String()))

	return s.String()
}

// runTUI runs the bridges behind the terminal UI until the user quits or ctx is done
func runTUI(ctx context.Context, bridges []*bridge.Bridge, prog *programRef) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(initialModel(bridges), tea.WithAltScreen(), tea.WithContext(ctx), tea.WithoutSignalHandler())
	prog.set(p)

	done := make(chan error, 1)
	go func() {
		err := runAll(ctx, bridges)
		if err != nil {
			p.Send(bridgeErrMsg{err: err})
		}
		done <- err
	}()

	final, err := p.Run()
	cancel()
	bridgeErr := <-done

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	if m, ok := final.(model); ok && m.err != nil {
		return m.err
	}
	return bridgeErr
}
