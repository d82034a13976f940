// Package tui — терминальный интерфейс живого режима: клавиши запускают пэды,
// на экране текущий банк и звучащие экземпляры.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Roman77St/padboard"
	"github.com/Roman77St/padboard/board"
	"github.com/Roman77St/padboard/dispatch"
)

const refreshInterval = 100 * time.Millisecond

// Engine — то, что интерфейс показывает и чем управляет напрямую.
type Engine interface {
	Instances() []padboard.Instance
	StopAll(fadeOut float64)
	Now() float64
	Voices() int
}

type Model struct {
	Board    *board.Board
	Resolver *dispatch.Resolver
	Engine   Engine
	Handle   func(ctx context.Context, ev dispatch.Event) error
	StopFade float64

	ctx      context.Context
	status   string
	quitting bool
}

type tickMsg time.Time

type handledMsg struct {
	key string
	err error
}

func NewModel(ctx context.Context, b *board.Board, r *dispatch.Resolver, e Engine, handle func(context.Context, dispatch.Event) error) Model {
	return Model{Board: b, Resolver: r, Engine: e, Handle: handle, StopFade: 0.05, ctx: ctx}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			m.Engine.StopAll(m.StopFade)
			return m, tea.Quit
		case "esc":
			m.Engine.StopAll(m.StopFade)
			m.status = "stopped all"
			return m, nil
		}
		key := keyLabel(msg)
		ev := dispatch.Event{Source: dispatch.SourceKeyboard, Key: key, Action: dispatch.Press}
		return m, func() tea.Msg {
			return handledMsg{key: key, err: m.Handle(m.ctx, ev)}
		}

	case handledMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s: %v", msg.key, msg.err)
		} else {
			m.status = ""
		}

	case tickMsg:
		return m, tick()
	}
	return m, nil
}

// keyLabel приводит клавишу к меткам, которые хранятся в пэдах: "A", "7", "PageUp".
func keyLabel(msg tea.KeyMsg) string {
	switch msg.Type {
	case tea.KeyPgUp:
		return "PageUp"
	case tea.KeyPgDown:
		return "PageDown"
	case tea.KeySpace:
		return "Space"
	case tea.KeyRunes:
		if len(msg.Runes) == 1 {
			return strings.ToUpper(string(msg.Runes))
		}
	}
	return msg.String()
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	playingStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	bank := m.Resolver.Bank()
	instances := m.Engine.Instances()
	playing := make(map[string]int, len(instances))
	for _, inst := range instances {
		playing[inst.PadID]++
	}

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(headerStyle.Render(fmt.Sprintf("padboard  bank %d/%d  playing:%d voices:%d  %.1fs",
		bank, m.Board.Banks(), len(instances), m.Engine.Voices(), m.Engine.Now())))
	out.WriteString("\n\n")

	pads := m.Board.Bank(bank)
	shown := 0
	for _, p := range pads {
		if p.Sound.Empty() && p.Key == "" {
			continue
		}
		shown++
		key := p.Key
		if key == "" {
			key = "-"
		}
		name := p.Name
		if name == "" {
			name = p.ID()
		}
		line := fmt.Sprintf("%s %-24s %s", keyStyle.Render(fmt.Sprintf("[%s]", key)), name, dimStyle.Render(string(p.EffectiveMode())))
		if n := playing[p.ID()]; n > 0 {
			line += " " + playingStyle.Render(fmt.Sprintf("playing x%d", n))
		}
		out.WriteString(line)
		out.WriteString("\n")
	}
	if shown == 0 {
		out.WriteString(dimStyle.Render("no pads assigned in this bank"))
		out.WriteString("\n")
	}

	if m.status != "" {
		out.WriteString("\n")
		out.WriteString(errStyle.Render(m.status))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	out.WriteString(dimStyle.Render("keys:trigger  pgup/pgdown:bank  esc:stop all  ctrl+c:quit"))
	return out.String()
}
