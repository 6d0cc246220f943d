package tui

import (
	"errors"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/smctune/internal/optim"
)

func TestModelRecordsIterations(t *testing.T) {
	var m tea.Model = newModel("classical", 10, nil)
	for i := 0; i < 3; i++ {
		m, _ = m.Update(iterationMsg(optim.IterationRecord{Iteration: i, Best: float64(10 - i), Mean: 20}))
	}
	got := m.(model)
	if got.seen != 3 {
		t.Errorf("expected 3 iterations, got %d", got.seen)
	}
	if got.last.Best != 8 {
		t.Errorf("expected last best 8, got %g", got.last.Best)
	}
	view := got.View()
	if !strings.Contains(view, "classical") || !strings.Contains(view, "3/10") {
		t.Errorf("view misses title or progress:\n%s", view)
	}
}

func TestModelCancelKey(t *testing.T) {
	calls := 0
	var m tea.Model = newModel("hybrid", 5, func() { calls++ })

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd != nil {
		t.Error("cancel must wait for the run to finish before quitting")
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if calls != 1 {
		t.Errorf("expected cancel once, got %d", calls)
	}
	if !m.(model).canceling {
		t.Error("expected canceling state")
	}
}

func TestModelDoneQuits(t *testing.T) {
	var m tea.Model = newModel("adaptive", 5, nil)
	m, cmd := m.Update(doneMsg{err: errors.New("boom")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if !strings.Contains(m.View(), "stopped") {
		t.Error("expected stopped status")
	}
}

func TestSparkline(t *testing.T) {
	if sparkline(nil, 10) != "" {
		t.Error("expected empty sparkline")
	}
	s := sparkline([]float64{math.Inf(1), 4, 3, 2, 1}, 10)
	if utf8.RuneCountInString(s) != 5 {
		t.Errorf("expected 5 glyphs, got %q", s)
	}
	r := []rune(s)
	if r[0] != '█' || r[4] != '▁' {
		t.Errorf("unexpected glyphs %q", s)
	}
	if n := utf8.RuneCountInString(sparkline(make([]float64, 100), 20)); n != 20 {
		t.Errorf("expected 20 glyphs, got %d", n)
	}
}
