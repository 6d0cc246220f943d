package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/smctune/internal/optim"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

const (
	barWidth   = 36
	sparkWidth = 40
)

type iterationMsg optim.IterationRecord

type doneMsg struct{ err error }

// model is the live view of one tuning run.
type model struct {
	title  string
	total  int
	cancel context.CancelFunc

	start     time.Time
	last      optim.IterationRecord
	seen      int
	best      []float64
	canceling bool
	done      bool
	err       error
}

func newModel(title string, total int, cancel context.CancelFunc) model {
	return model{
		title:  title,
		total:  total,
		cancel: cancel,
		start:  time.Now(),
		best:   make([]float64, 0, total),
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.canceling && m.cancel != nil {
				m.cancel()
			}
			m.canceling = true
		}
		return m, nil
	case iterationMsg:
		m.last = optim.IterationRecord(msg)
		m.seen++
		m.best = append(m.best, m.last.Best)
		return m, nil
	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	statusIcon, statusText := green.Render("●"), green.Render("searching")
	switch {
	case m.done && m.err != nil:
		statusIcon, statusText = red.Render("●"), red.Render("stopped")
	case m.done:
		statusIcon, statusText = green.Render("✓"), green.Render("done")
	case m.canceling:
		statusIcon, statusText = yellow.Render("○"), yellow.Render("canceling at next iteration")
	}
	b.WriteString(fmt.Sprintf("\n   %s %s  %s\n", statusIcon, cyan.Render(m.title), statusText))

	progress := 0.0
	if m.total > 0 {
		progress = math.Min(float64(m.seen)/float64(m.total), 1)
	}
	filled := int(progress * barWidth)
	bar := cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", barWidth-filled))
	elapsed := time.Since(m.start).Round(100 * time.Millisecond)
	b.WriteString(fmt.Sprintf("   %s %s  %s\n\n", bar, dim.Render(fmt.Sprintf("%d/%d", m.seen, m.total)), dim.Render(elapsed.String())))

	if m.seen > 0 {
		b.WriteString(fmt.Sprintf("   %s %s  %s %s  %s %s\n",
			dim.Render("best"), white.Render(formatCost(m.last.Best)),
			dim.Render("mean"), white.Render(formatCost(m.last.Mean)),
			dim.Render("diversity"), white.Render(fmt.Sprintf("%.3g", m.last.Diversity))))
	}
	if len(m.best) > 1 {
		b.WriteString(fmt.Sprintf("   %s %s\n", dim.Render("best"), cyan.Render(sparkline(m.best, sparkWidth))))
	}

	b.WriteString("\n" + dim.Render("   q cancel") + "\n")
	return b.String()
}

func formatCost(v float64) string {
	if math.IsInf(v, 1) {
		return "∞"
	}
	return fmt.Sprintf("%.6g", v)
}

// sparkline samples data down to width glyphs. Non-finite values render
// as the top glyph.
func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	minVal, maxVal := math.Inf(1), math.Inf(-1)
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	rang := maxVal - minVal
	if !(rang > 0) {
		rang = 1
	}
	step := len(data) / width
	if step < 1 {
		step = 1
	}
	var sb strings.Builder
	for i := 0; i < width && i*step < len(data); i++ {
		v := data[i*step]
		idx := 7
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			idx = int((v - minVal) / rang * 7)
		}
		idx = max(0, min(idx, 7))
		sb.WriteRune(chars[idx])
	}
	return sb.String()
}

// RunLive shows a progress view while run executes. run receives a
// context that is canceled when the user presses q and an observer that
// feeds the view. The view closes once run returns; its error is
// returned.
func RunLive(ctx context.Context, title string, total int, run func(context.Context, optim.Observer) error, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newModel(title, total, cancel), opts...)
	obs := optim.ObserverFunc(func(rec optim.IterationRecord) {
		p.Send(iterationMsg(rec))
	})

	result := make(chan error, 1)
	go func() {
		err := run(ctx, obs)
		result <- err
		p.Send(doneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-result
		return err
	}
	return <-result
}
