// Package picker is an interactive terminal list for choosing the article to refresh.
package picker

import (
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/TobiSchelling/refresher/internal/articles"
)

// ErrAborted is returned when the user quits without choosing.
var ErrAborted = errors.New("selection aborted")

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	badgeOriginal = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	badgeUpdated  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// Model is the bubbletea model for the article list.
type Model struct {
	Articles []articles.Article
	Cursor   int
	Height   int

	chosen  *articles.Article
	aborted bool
}

// New creates a model over list, which is shown in the given order.
func New(list []articles.Article) Model {
	return Model{Articles: list, Height: 15}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case tea.WindowSizeMsg:
		if msg.Height > 4 {
			m.Height = msg.Height - 4
		}
	}
	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		m.aborted = true
		return m, tea.Quit
	case "up", "k":
		if m.Cursor > 0 {
			m.Cursor--
		}
	case "down", "j":
		if m.Cursor < len(m.Articles)-1 {
			m.Cursor++
		}
	case "enter":
		if len(m.Articles) == 0 {
			return m, nil
		}
		a := m.Articles[m.Cursor]
		m.chosen = &a
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Choose an article to refresh"))
	b.WriteString("\n\n")

	if len(m.Articles) == 0 {
		b.WriteString(dimStyle.Render("No articles found. Run `refresher seed` first."))
		b.WriteString("\n")
		return b.String()
	}

	start, end := m.window()
	for i := start; i < end; i++ {
		a := m.Articles[i]
		prefix := "  "
		line := fmt.Sprintf("%s %s", badge(a.Source), a.Title)
		if i == m.Cursor {
			prefix = cursorStyle.Render("> ")
			line = cursorStyle.Render(a.Title)
			line = badge(a.Source) + " " + line
		}
		b.WriteString(prefix + line + "\n")
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("↑/↓ or k/j to move, enter to select, q to quit"))
	b.WriteString("\n")
	return b.String()
}

// window returns the visible slice bounds keeping the cursor on screen.
func (m Model) window() (int, int) {
	h := m.Height
	if h <= 0 || h >= len(m.Articles) {
		return 0, len(m.Articles)
	}
	start := 0
	if m.Cursor >= h {
		start = m.Cursor - h + 1
	}
	return start, start + h
}

// Chosen returns the selected article, or nil.
func (m Model) Chosen() *articles.Article { return m.chosen }

// Aborted reports whether the user quit without choosing.
func (m Model) Aborted() bool { return m.aborted }

func badge(source string) string {
	if source == articles.SourceUpdated {
		return badgeUpdated.Render("[updated] ")
	}
	return badgeOriginal.Render("[original]")
}

// Pick runs the picker on the given terminal streams.
func Pick(list []articles.Article, in io.Reader, out io.Writer) (*articles.Article, error) {
	if len(list) == 0 {
		return nil, errors.New("no articles to choose from")
	}
	final, err := tea.NewProgram(New(list), tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return nil, fmt.Errorf("running picker: %w", err)
	}
	m, ok := final.(Model)
	if !ok || m.Chosen() == nil {
		return nil, ErrAborted
	}
	return m.Chosen(), nil
}
