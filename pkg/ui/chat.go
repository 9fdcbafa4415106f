package ui

import (
	"context"
	"strings"

	"github.com/atotto/clipboard"
	bspinner "github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/houser/pkg/assembler"
	"github.com/go-go-golems/houser/pkg/render"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	CommandNew  = "/new"
	CommandCopy = "/copy"
	CommandQuit = "/quit"

	Greeting = "Hi! Ask me about properties for sale or rent in the UAE."
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Asker is the conversation the model talks to.
type Asker interface {
	Ask(ctx context.Context, message string, onSnapshot func(assembler.Snapshot)) (assembler.Outcome, error)
	NewChat(ctx context.Context) error
	Cancel()
}

type snapshotMsg struct {
	snap assembler.Snapshot
}

type answerDoneMsg struct {
	outcome assembler.Outcome
	err     error
}

type newChatMsg struct {
	err error
}

type clipboardMsg struct {
	err error
}

type entry struct {
	role string
	text string
}

// ChatModel is the interactive chat screen: transcript viewport, status line
// and input box.
type ChatModel struct {
	ctx      context.Context
	conv     Asker
	renderer *render.Renderer
	copyFn   func(string) error

	spinner  bspinner.Model
	viewport viewport.Model
	input    textarea.Model

	msgs chan tea.Msg

	transcript []entry
	current    *assembler.Snapshot
	lastAnswer string
	busy       bool
	notice     string
	width      int
}

type ChatOption func(*ChatModel)

// WithClipboard replaces the clipboard writer used by /copy.
func WithClipboard(f func(string) error) ChatOption {
	return func(m *ChatModel) { m.copyFn = f }
}

// NewChatModel builds the model. ctx bounds every request started from the
// UI.
func NewChatModel(ctx context.Context, conv Asker, renderer *render.Renderer, opts ...ChatOption) ChatModel {
	sp := bspinner.New()
	sp.Spinner = bspinner.Line
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)

	ta := textarea.New()
	ta.Placeholder = "Ask about properties... (/new, /copy, /quit)"
	ta.ShowLineNumbers = false
	ta.SetHeight(2)
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	vp := viewport.New(80, 16)
	vp.Style = lipgloss.NewStyle()

	m := ChatModel{
		ctx:        ctx,
		conv:       conv,
		renderer:   renderer,
		copyFn:     clipboard.WriteAll,
		spinner:    sp,
		viewport:   vp,
		input:      ta,
		msgs:       make(chan tea.Msg, 64),
		transcript: []entry{{role: "assistant", text: Greeting}},
		width:      80,
	}
	for _, o := range opts {
		o(&m)
	}
	m.refresh()
	return m
}

func waitForMsg(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, waitForMsg(m.msgs))
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch ev := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = ev.Width
		m.viewport.Width = ev.Width
		m.viewport.Height = max(ev.Height-m.input.Height()-3, 3)
		m.input.SetWidth(ev.Width)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch ev.Type {
		case tea.KeyCtrlC:
			m.conv.Cancel()
			return m, tea.Quit
		case tea.KeyEsc:
			if m.busy {
				m.conv.Cancel()
				m.notice = "Canceling..."
			}
			return m, nil
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case snapshotMsg:
		s := ev.snap
		m.current = &s
		m.refresh()
		return m, waitForMsg(m.msgs)

	case answerDoneMsg:
		m.finish(ev.outcome, ev.err)
		return m, waitForMsg(m.msgs)

	case newChatMsg:
		m.busy = false
		if ev.err != nil {
			m.notice = ev.err.Error()
		} else {
			m.notice = ""
			m.transcript = []entry{{role: "assistant", text: Greeting}}
			m.current = nil
			m.lastAnswer = ""
		}
		m.refresh()
		return m, waitForMsg(m.msgs)

	case clipboardMsg:
		if ev.err != nil {
			m.notice = "Copy failed: " + ev.err.Error()
		} else {
			m.notice = "Copied last answer."
		}
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	if m.busy {
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m ChatModel) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}

	switch text {
	case CommandQuit:
		m.conv.Cancel()
		return m, tea.Quit
	case CommandCopy:
		m.input.Reset()
		answer, copyFn := m.lastAnswer, m.copyFn
		if answer == "" {
			m.notice = "Nothing to copy yet."
			return m, nil
		}
		return m, func() tea.Msg { return clipboardMsg{err: copyFn(answer)} }
	}

	if m.busy {
		m.notice = "Still answering. Press Esc to cancel."
		return m, nil
	}
	m.input.Reset()
	m.notice = ""
	m.busy = true

	if text == CommandNew {
		go m.startNewChat()
		return m, tea.Batch(m.spinner.Tick, waitForMsg(m.msgs))
	}

	m.transcript = append(m.transcript, entry{role: "user", text: text})
	m.current = nil
	m.refresh()
	go m.startAsk(text)
	return m, tea.Batch(m.spinner.Tick, waitForMsg(m.msgs))
}

func (m ChatModel) send(msg tea.Msg) {
	select {
	case m.msgs <- msg:
	case <-m.ctx.Done():
	}
}

func (m ChatModel) startAsk(text string) {
	outcome, err := m.conv.Ask(m.ctx, text, func(s assembler.Snapshot) {
		m.send(snapshotMsg{snap: s})
	})
	m.send(answerDoneMsg{outcome: outcome, err: err})
}

func (m ChatModel) startNewChat() {
	m.send(newChatMsg{err: m.conv.NewChat(m.ctx)})
}

func (m *ChatModel) finish(o assembler.Outcome, err error) {
	m.busy = false
	m.current = nil

	switch {
	case errors.Is(err, assembler.ErrAbandoned):
		m.notice = "Request canceled."
	case err != nil:
		m.notice = err.Error()
		log.Warn().Err(err).Msg("chat request failed")
	}

	if o.Done() {
		md := render.Markdown(o.Snapshot)
		if strings.TrimSpace(md) != "" {
			m.transcript = append(m.transcript, entry{role: "assistant", text: md})
			m.lastAnswer = strings.TrimSpace(md)
		}
	}
	m.refresh()
}

func (m *ChatModel) renderMarkdown(md string) string {
	out, err := m.renderer.Markdown(md)
	if err != nil {
		log.Debug().Err(err).Msg("markdown rendering failed")
		return md
	}
	return out
}

func (m *ChatModel) refresh() {
	var b strings.Builder
	for _, e := range m.transcript {
		if e.role == "user" {
			b.WriteString(render.UserStyle.Render("You: ") + e.text + "\n\n")
			continue
		}
		b.WriteString(render.AssistantStyle.Render("Houser:") + "\n")
		b.WriteString(m.renderMarkdown(e.text) + "\n")
	}
	if m.current != nil {
		b.WriteString(render.AssistantStyle.Render("Houser:") + "\n")
		if md := render.Markdown(*m.current); strings.TrimSpace(md) != "" {
			b.WriteString(m.renderMarkdown(md))
		}
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m ChatModel) View() string {
	header := headerStyle.Render("Houser")
	switch {
	case m.busy:
		status := "Thinking..."
		if m.notice != "" {
			status = m.notice
		} else if m.current != nil && m.current.Status != "" {
			status = m.current.Status
		}
		header += " " + m.spinner.View() + " " + render.StatusStyle.Render(status)
	case m.notice != "":
		header += " " + helpStyle.Render(m.notice)
	}
	return header + "\n" + m.viewport.View() + "\n" + m.input.View()
}
