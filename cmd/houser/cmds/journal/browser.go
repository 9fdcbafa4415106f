package journal

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	persist "github.com/go-go-golems/houser/pkg/persistence/journal"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const listWidth = 60

var (
	titleStyle       = lipgloss.NewStyle().MarginLeft(2).Bold(true).Foreground(lipgloss.Color("#FFFDF5"))
	normalTitleStyle = lipgloss.NewStyle().Width(listWidth - 4).Foreground(lipgloss.Color("#FFFDF5"))
	normalDescStyle  = lipgloss.NewStyle().Width(listWidth - 4).Foreground(lipgloss.Color("#AFAFAF"))
	infoTitleStyle   = lipgloss.NewStyle().Bold(true).Underline(true).MarginBottom(1).Foreground(lipgloss.Color("#FFFDF5"))
	infoKeyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#AFAFAF"))
	infoValueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFDF5"))

	listPane = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62"))
	infoPane = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62"))
	modalStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("170")).
			Padding(0, 1)
	modalTitleStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 1)
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

const (
	normalMode = iota
	modalMode
)

// entryItem adapts a journal entry to list.Item.
type entryItem struct {
	persist.Entry
}

func (e entryItem) Title() string {
	t := fmt.Sprintf("%s #%d %s", shortID(e.RequestID), e.Seq, e.Trigger)
	if e.Outcome != "" {
		t += " [" + e.Outcome + "]"
	}
	return t
}

func (e entryItem) Description() string {
	return formatMs(e.CreatedAtMs) + "  " + shortID(e.ConvID)
}

func (e entryItem) FilterValue() string {
	return e.ConvID + " " + e.RequestID + " " + e.Trigger + " " + e.Outcome
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (e entryItem) summary() string {
	var sb strings.Builder
	sb.WriteString(infoTitleStyle.Render("Snapshot"))
	sb.WriteString("\n\n")
	row := func(k, v string) {
		sb.WriteString(infoKeyStyle.Render(k + ": "))
		sb.WriteString(infoValueStyle.Render(v))
		sb.WriteString("\n")
	}
	row("Conversation", e.ConvID)
	row("Request", e.RequestID)
	row("Seq", fmt.Sprint(e.Seq))
	row("Trigger", e.Trigger)
	if e.Outcome != "" {
		row("Outcome", e.Outcome)
	}
	row("Terminal", fmt.Sprint(e.Terminal))
	row("Recorded", formatMs(e.CreatedAtMs))
	row("Hash", e.ContentHash)
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render("Press Enter for the full payload"))
	return sb.String()
}

type browserModel struct {
	list          list.Model
	viewport      viewport.Model
	modalViewport viewport.Model
	selected      *entryItem
	ready         bool
	width         int
	height        int
	mode          int
}

func newBrowserModel(entries []persist.Entry) browserModel {
	items := make([]list.Item, 0, len(entries))
	for _, e := range entries {
		items = append(items, entryItem{Entry: e})
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.NormalTitle = normalTitleStyle
	delegate.Styles.NormalDesc = normalDescStyle
	delegate.Styles.SelectedTitle = normalTitleStyle.Background(lipgloss.Color("62"))
	delegate.Styles.SelectedDesc = normalDescStyle.Background(lipgloss.Color("62"))

	l := list.New(items, delegate, 0, 0)
	l.Title = "Snapshot Journal"
	l.Styles.Title = titleStyle
	l.SetShowStatusBar(false)
	l.SetShowHelp(true)

	m := browserModel{list: l, mode: normalMode}
	m.selectCurrent()
	return m
}

func (m *browserModel) selectCurrent() {
	item, ok := m.list.SelectedItem().(entryItem)
	if !ok {
		m.selected = nil
		return
	}
	if m.selected != nil && m.selected.Entry == item.Entry {
		return
	}
	m.selected = &item
	m.viewport.SetContent(item.summary())
	m.viewport.GotoTop()
}

func (m browserModel) Init() tea.Cmd { return nil }

func (m browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch m.mode {
		case normalMode:
			switch msg.String() {
			case "q", "ctrl+c":
				if m.list.FilterState() != list.Filtering {
					return m, tea.Quit
				}
			case "enter":
				if m.selected != nil && m.list.FilterState() != list.Filtering {
					m.mode = modalMode
					m.modalViewport.SetContent(m.selected.Payload)
					m.modalViewport.GotoTop()
					return m, nil
				}
			}
			var cmd tea.Cmd
			m.list, cmd = m.list.Update(msg)
			m.selectCurrent()
			cmds = append(cmds, cmd)

		case modalMode:
			switch msg.String() {
			case "q", "ctrl+c":
				return m, tea.Quit
			case "esc", "enter", "backspace":
				m.mode = normalMode
				return m, nil
			}
			var cmd tea.Cmd
			m.modalViewport, cmd = m.modalViewport.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		infoWidth := max(m.width-listWidth-6, 10)
		m.list.SetSize(listWidth, max(m.height-4, 5))
		if !m.ready {
			m.viewport = viewport.New(infoWidth, max(m.height-4, 3))
			m.viewport.Style = lipgloss.NewStyle().Padding(0, 1)
			m.modalViewport = viewport.New(max(m.width-24, 10), max(m.height-12, 3))
			m.ready = true
			if m.selected != nil {
				m.viewport.SetContent(m.selected.summary())
			}
		} else {
			m.viewport.Width = infoWidth
			m.viewport.Height = max(m.height-4, 3)
			m.modalViewport.Width = max(m.width-24, 10)
			m.modalViewport.Height = max(m.height-12, 3)
		}

	default:
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m browserModel) baseView() string {
	left := listPane.Width(listWidth).Render(m.list.View())
	content := helpStyle.Render("No snapshot selected")
	if m.selected != nil {
		content = m.viewport.View()
	}
	right := infoPane.Width(max(m.width-listWidth-5, 10)).Height(max(m.height-4, 3)).Render(content)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

func (m browserModel) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.mode != modalMode {
		return m.baseView()
	}
	modal := modalStyle.Render(lipgloss.JoinVertical(
		lipgloss.Left,
		modalTitleStyle.Render(" Snapshot Payload "),
		m.modalViewport.View(),
		helpStyle.Render("Press ESC or Enter to close"),
	))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal)
}

func loadRecent(ctx context.Context, store persist.Store, convID string, limit int) ([]persist.Entry, error) {
	q := persist.Query{ConvID: convID, Limit: limit}
	if convID == "" {
		q.Recent = true
	}
	entries, err := store.List(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.New("the journal has no snapshots yet")
	}
	return entries, nil
}

func newBrowseCommand(open Opener) *cobra.Command {
	var (
		path   string
		convID string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse recorded snapshots in a terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := journalPath(path)
			if err != nil {
				return err
			}
			store, err := open(p)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := loadRecent(cmd.Context(), store, convID, limit)
			if err != nil {
				return err
			}
			prog := tea.NewProgram(newBrowserModel(entries), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			_, err = prog.Run()
			return errors.Wrap(err, "journal browser")
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "Journal file (defaults to the journal setting)")
	cmd.Flags().StringVar(&convID, "conv", "", "Only show this conversation")
	cmd.Flags().IntVar(&limit, "limit", 500, "Maximum number of snapshots to load")
	return cmd
}
