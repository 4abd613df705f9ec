package main

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cbegin/cvseq-go"
)

const (
	refreshInterval = 33 * time.Millisecond
	meterWidth      = 32
	// meterVolts is the level drawn as a full voltage meter.
	meterVolts = 10.0
	shiftStep  = 0.05
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Width(5)
	gateOn     = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")).Bold(true)
	gateOff    = lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))
	meterFill  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

// controller is the part of *cvseq.Player the model drives.
type controller interface {
	Snapshot() cvseq.Snapshot
	Toggle()
	Restart()
	RestartAt(label string) error
	SetShift(shift float64)
	Labels() []string
}

type tickMsg time.Time

type eventMsg cvseq.PlaybackEvent

type model struct {
	player  controller
	events  <-chan cvseq.PlaybackEvent
	patch   string
	labels  []string
	snap    cvseq.Snapshot
	shift   float64
	loops   int
	message string
}

func newModel(player controller, events <-chan cvseq.PlaybackEvent, patch string) model {
	labels := player.Labels()
	sort.Strings(labels)
	return model{
		player: player,
		events: events,
		patch:  patch,
		labels: labels,
		snap:   player.Snapshot(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func listen(events <-chan cvseq.PlaybackEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tick(), listen(m.events))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch key := msg.String(); key {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.player.Toggle()
		case "r":
			m.player.Restart()
			m.message = "restarted"
		case "left", "h":
			m.setShift(m.shift - shiftStep)
		case "right", "l":
			m.setShift(m.shift + shiftStep)
		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			idx := int(key[0] - '1')
			if idx < len(m.labels) {
				if err := m.player.RestartAt(m.labels[idx]); err != nil {
					m.message = err.Error()
				} else {
					m.message = "jumped to " + m.labels[idx]
				}
			}
		}
		m.snap = m.player.Snapshot()

	case tickMsg:
		m.snap = m.player.Snapshot()
		return m, tick()

	case eventMsg:
		switch msg.Kind {
		case cvseq.EventLoopCompleted:
			m.loops++
		case cvseq.EventPlaybackEnded:
			m.message = "phrase ended"
		}
		return m, listen(m.events)
	}
	return m, nil
}

func (m *model) setShift(v float64) {
	m.shift = math.Max(0, math.Min(1, v))
	m.player.SetShift(m.shift)
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("cvseq monitor") + "\n\n")
	state := "running"
	switch {
	case m.snap.Halted:
		state = "halted"
	case !m.snap.Running:
		state = "stopped"
	}
	fmt.Fprintf(&b, "patch %s  %s  t=%.0fms  loops=%d  shift=%.2f\n", m.patch, state, m.snap.TimeMs, m.loops, m.shift)
	audio := "paused"
	if m.snap.Playing {
		audio = "playing"
	}
	fmt.Fprintf(&b, "action %d (%s)  audio %s  heard=%d rendered=%d samples\n\n",
		m.snap.Action, m.snap.Status, audio, m.snap.Position, m.snap.Rendered)

	for i, g := range m.snap.Gates {
		b.WriteString(labelStyle.Render(fmt.Sprintf("G%d", i+1)))
		if g > 0 {
			b.WriteString(gateOn.Render("●"))
		} else {
			b.WriteString(gateOff.Render("·"))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	for i, v := range m.snap.Voltages {
		b.WriteString(labelStyle.Render(fmt.Sprintf("V%d", i+1)))
		b.WriteString(meterFill.Render(meter(v, meterWidth)))
		fmt.Fprintf(&b, " %6.3fV\n", v)
	}
	if len(m.labels) > 0 {
		b.WriteString("\ncheckpoints:")
		for i, l := range m.labels {
			if i < 9 {
				fmt.Fprintf(&b, " [%d]%s", i+1, l)
			}
		}
		b.WriteString("\n")
	}
	if m.message != "" {
		b.WriteString("\n" + m.message + "\n")
	}
	b.WriteString(helpStyle.Render("\nspace toggle · r restart · ←/→ shift · 1-9 checkpoint · q quit"))
	return b.String()
}

// meter draws v as a bar of width cells, clamped to [0, meterVolts].
func meter(v float64, width int) string {
	filled := int(math.Round(v / meterVolts * float64(width)))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
