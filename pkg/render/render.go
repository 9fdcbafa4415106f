package render

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/houser/pkg/assembler"
	"github.com/pkg/errors"
)

var (
	StatusStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("63"))
	ErrorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	UserStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	AssistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("118"))
	DimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
)

const (
	StyleDark  = "dark"
	StyleLight = "light"
	// StylePlain skips glamour and returns markdown as is.
	StylePlain = "plain"
)

// Renderer turns snapshots into terminal text.
type Renderer struct {
	term *glamour.TermRenderer
}

type Option func(*rendererConfig)

type rendererConfig struct {
	style string
	width int
}

func WithStyle(style string) Option {
	return func(c *rendererConfig) { c.style = style }
}

func WithWidth(width int) Option {
	return func(c *rendererConfig) { c.width = width }
}

func NewRenderer(opts ...Option) (*Renderer, error) {
	cfg := rendererConfig{style: StyleDark, width: 100}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.style == StylePlain {
		return &Renderer{}, nil
	}
	term, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(cfg.style),
		glamour.WithWordWrap(cfg.width),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create markdown renderer")
	}
	return &Renderer{term: term}, nil
}

// Markdown styles md, or returns it unchanged for plain renderers.
func (r *Renderer) Markdown(md string) (string, error) {
	if r == nil || r.term == nil {
		return md, nil
	}
	out, err := r.term.Render(md)
	if err != nil {
		return "", errors.Wrap(err, "render markdown")
	}
	return out, nil
}

// Snapshot renders the full answer held by s.
func (r *Renderer) Snapshot(s assembler.Snapshot) (string, error) {
	return r.Markdown(Markdown(s))
}

// Status renders the progress line of a non-terminal snapshot, or "".
func Status(s assembler.Snapshot) string {
	if strings.TrimSpace(s.Status) == "" {
		return ""
	}
	if s.Failure != nil {
		return ErrorStyle.Render(s.Status)
	}
	return StatusStyle.Render(s.Status)
}
