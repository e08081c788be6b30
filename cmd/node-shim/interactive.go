package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/node-shim/config"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	srcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// maxHistory bounds the runs kept on screen.
const maxHistory = 8

// runRecord is one evaluated snippet.
type runRecord struct {
	err    error
	src    string
	stdout string
	stderr string
	code   int
}

type interactiveModel struct {
	cfg     *config.Config
	dir     string
	input   textinput.Model
	history []runRecord
	running bool
}

type runResultMsg runRecord

func newInteractiveModel(cfg *config.Config, dir string) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = `console.log(require("path").join("a", "b"))`
	ti.Prompt = "> "
	ti.Width = 72
	ti.Focus()
	return &interactiveModel{cfg: cfg, dir: dir, input: ti}
}

func (m *interactiveModel) Init() tea.Cmd {
	return textinput.Blink
}

// evaluate runs src as a complete guest program in a fresh session.
func (m *interactiveModel) evaluate(src string) tea.Cmd {
	cfg := *m.cfg
	cfg.Kernel.Stdin = config.StdinNull
	return func() tea.Msg {
		rec := runRecord{src: src}
		path := filepath.Join(m.dir, "repl.js")
		if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
			rec.err = err
			return runResultMsg(rec)
		}
		var stdout, stderr bytes.Buffer
		rec.code, rec.err = runSession(context.Background(), &cfg, []string{"node", path},
			stdio{out: &stdout, err: &stderr})
		rec.stdout = stdout.String()
		rec.stderr = stderr.String()
		return runResultMsg(rec)
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "ctrl+l":
			m.history = nil
			return m, nil

		case "enter":
			src := strings.TrimSpace(m.input.Value())
			if src == "" || m.running {
				return m, nil
			}
			m.running = true
			m.input.Reset()
			return m, m.evaluate(src)
		}

	case runResultMsg:
		m.running = false
		m.history = append(m.history, runRecord(msg))
		if len(m.history) > maxHistory {
			m.history = m.history[len(m.history)-maxHistory:]
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("node-shim"))
	b.WriteString(" engine=")
	b.WriteString(m.cfg.Engine.Kind)
	b.WriteString("\n\n")

	for _, r := range m.history {
		b.WriteString(srcStyle.Render("> " + r.src))
		b.WriteString("\n")
		if r.stdout != "" {
			b.WriteString(resultStyle.Render(strings.TrimRight(r.stdout, "\n")))
			b.WriteString("\n")
		}
		if r.stderr != "" {
			b.WriteString(errorStyle.Render(strings.TrimRight(r.stderr, "\n")))
			b.WriteString("\n")
		}
		if r.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", r.err)))
			b.WriteString("\n")
		}
		b.WriteString(helpStyle.Render(fmt.Sprintf("exit %d", r.code)))
		b.WriteString("\n\n")
	}

	if m.running {
		b.WriteString(helpStyle.Render("running..."))
	} else {
		b.WriteString(m.input.View())
	}
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter run • ctrl+l clear • esc quit"))
	return b.String()
}

func runInteractive(cfg *config.Config) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal")
	}
	dir, err := os.MkdirTemp("", "node-shim-repl-")
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	p := tea.NewProgram(newInteractiveModel(cfg, dir), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
