package picker

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/TobiSchelling/refresher/internal/articles"
)

func sample() []articles.Article {
	return []articles.Article{
		{ID: "a", Title: "Chatbots in 2024", Source: articles.SourceOriginal},
		{ID: "b", Title: "Updated: Lead generation", Source: articles.SourceUpdated},
		{ID: "c", Title: "Customer support bots", Source: articles.SourceOriginal},
	}
}

func press(t *testing.T, m Model, keys ...tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(k)
		m = next.(Model)
	}
	return m, cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestCursorMovesWithinBounds(t *testing.T) {
	m, _ := press(t, New(sample()), key("up"))
	if m.Cursor != 0 {
		t.Fatalf("cursor moved above the first row: %d", m.Cursor)
	}
	m, _ = press(t, m, key("down"), key("j"), key("j"), key("down"))
	if m.Cursor != 2 {
		t.Fatalf("cursor should stop at the last row, got %d", m.Cursor)
	}
	m, _ = press(t, m, key("k"))
	if m.Cursor != 1 {
		t.Fatalf("expected cursor 1 after k, got %d", m.Cursor)
	}
}

func TestEnterChoosesArticle(t *testing.T) {
	m, cmd := press(t, New(sample()), key("down"), key("down"), key("enter"))
	if m.Chosen() == nil || m.Chosen().ID != "c" {
		t.Fatalf("expected article c, got %+v", m.Chosen())
	}
	if cmd == nil {
		t.Fatal("enter should quit the program")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
}

func TestQuitAborts(t *testing.T) {
	for _, k := range []string{"q", "esc"} {
		m, cmd := press(t, New(sample()), key(k))
		if !m.Aborted() || m.Chosen() != nil {
			t.Errorf("%s: expected abort without a choice", k)
		}
		if cmd == nil {
			t.Errorf("%s: expected quit command", k)
		}
	}
}

func TestEnterOnEmptyListDoesNothing(t *testing.T) {
	m, cmd := press(t, New(nil), key("enter"))
	if m.Chosen() != nil || cmd != nil {
		t.Fatal("enter on an empty list should be ignored")
	}
	if !strings.Contains(m.View(), "No articles found") {
		t.Error("expected empty-state hint")
	}
}

func TestViewMarksCursorAndSource(t *testing.T) {
	m, _ := press(t, New(sample()), key("down"))
	view := m.View()
	for _, want := range []string{"Chatbots in 2024", "[updated]", "[original]", "> "} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestWindowKeepsCursorVisible(t *testing.T) {
	list := make([]articles.Article, 30)
	for i := range list {
		list[i] = articles.Article{ID: string(rune('a' + i)), Title: "post"}
	}
	m := New(list)
	m.Height = 5
	m.Cursor = 12
	start, end := m.window()
	if start != 8 || end != 13 {
		t.Fatalf("window = [%d,%d), want [8,13)", start, end)
	}
}
