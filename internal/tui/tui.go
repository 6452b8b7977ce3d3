// Package tui previews the chart in a terminal. It shares filtering, scales
// and number formatting with the SVG renderer; one terminal column stands in
// for CellWidth pixels of container width.
package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/user/voterchart/internal/chart"
	"github.com/user/voterchart/internal/debounce"
	"github.com/user/voterchart/internal/models"
)

// CellWidth is the number of container pixels one terminal column represents.
const CellWidth = 8

const (
	nameWidth  = 24
	labelWidth = 10
	minBarCols = 10
)

type keyMap struct {
	Next key.Binding
	Prev key.Binding
	Help key.Binding
	Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Prev, k.Next, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Prev, k.Next}, {k.Help, k.Quit}}
}

var keys = keyMap{
	Next: key.NewBinding(key.WithKeys("right", "l", "tab", "n"), key.WithHelp("→/l", "next province")),
	Prev: key.NewBinding(key.WithKeys("left", "h", "shift+tab", "p"), key.WithHelp("←/h", "previous province")),
	Help: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
	Quit: key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

// Styles holds the preview's lipgloss styles.
type Styles struct {
	Title    lipgloss.Style
	Subtle   lipgloss.Style
	Positive lipgloss.Style
	Negative lipgloss.Style
	Error    lipgloss.Style
}

// DefaultStyles colours bars like the SVG chart.
func DefaultStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true),
		Subtle:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Positive: lipgloss.NewStyle().Foreground(lipgloss.Color(chart.PositiveFill)),
		Negative: lipgloss.NewStyle().Foreground(lipgloss.Color(chart.NegativeFill)),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

// resizeMsg fires when the terminal size has been stable for the debounce
// window. Only the message carrying the latest sequence number redraws.
type resizeMsg struct {
	seq  int
	cols int
}

// Model is the Bubble Tea model for the preview.
type Model struct {
	rows       []models.Row
	categories []string
	index      int

	width  int
	height int
	seq    int
	delay  time.Duration

	scene  *chart.Scene
	err    error
	styles Styles
	help   help.Model
}

// Compile-time interface compliance check
var _ tea.Model = (*Model)(nil)

// NewModel returns a preview of ds starting at category, or at the first
// province when category is empty or unknown.
func NewModel(ds *models.Dataset, category string) *Model {
	m := &Model{
		rows:       ds.Rows,
		categories: ds.Categories,
		delay:      debounce.DefaultDelay,
		styles:     DefaultStyles(),
		help:       help.New(),
	}
	for i, c := range ds.Categories {
		if c == category {
			m.index = i
		}
	}
	return m
}

// Category returns the selected province.
func (m *Model) Category() string {
	if len(m.categories) == 0 {
		return ""
	}
	return m.categories[m.index]
}

// Scene returns the last rendered scene, or nil before the first size is known.
func (m *Model) Scene() *chart.Scene {
	return m.scene
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.seq++
		if m.scene == nil {
			m.render()
			return m, nil
		}
		seq, cols := m.seq, msg.Width
		return m, tea.Tick(m.delay, func(time.Time) tea.Msg {
			return resizeMsg{seq: seq, cols: cols}
		})

	case resizeMsg:
		if msg.seq == m.seq {
			m.render()
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, keys.Next):
			m.step(1)
		case key.Matches(msg, keys.Prev):
			m.step(-1)
		}
	}
	return m, nil
}

func (m *Model) step(delta int) {
	n := len(m.categories)
	if n == 0 {
		return
	}
	m.index = (m.index + delta + n) % n
	if m.width > 0 {
		m.render()
	}
}

func (m *Model) render() {
	scene, err := chart.Render(m.rows, m.Category(), float64(m.width*CellWidth))
	if err != nil {
		m.err = err
		return
	}
	m.scene, m.err = scene, nil
}

func (m *Model) View() string {
	var b strings.Builder

	title := fmt.Sprintf("%s (%d/%d)", m.Category(), m.index+1, len(m.categories))
	b.WriteString(m.styles.Title.Render(title))
	if m.scene != nil && m.scene.Layout.IsMobile {
		b.WriteString(m.styles.Subtle.Render("  compact"))
	}
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(m.styles.Error.Render(m.err.Error()))
		b.WriteString("\n")
	}
	if m.scene != nil {
		b.WriteString(m.chartView())
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(keys))
	return b.String()
}

func (m *Model) barCols() int {
	return max(minBarCols, m.width-nameWidth-labelWidth-2)
}

// column maps a plot x position to a bar column.
func (m *Model) column(x float64, cols int) int {
	if m.scene.PlotWidth <= 0 || math.IsNaN(x) {
		return 0
	}
	c := int(math.Round(x / m.scene.PlotWidth * float64(cols)))
	return min(max(c, 0), cols)
}

func (m *Model) chartView() string {
	s := m.scene
	cols := m.barCols()
	var b strings.Builder

	axis := []rune(strings.Repeat(" ", cols+labelWidth))
	for _, t := range s.XTicks {
		start := m.column(t.Position, cols) - len(t.Label)/2
		for i, r := range t.Label {
			if p := start + i; p >= 0 && p < len(axis) {
				axis[p] = r
			}
		}
	}
	b.WriteString(strings.Repeat(" ", nameWidth+1))
	b.WriteString(m.styles.Subtle.Render(strings.TrimRight(string(axis), " ")))
	b.WriteString("\n")

	zero := m.column(s.X(0), cols)
	for i, bar := range s.Bars {
		name := truncate(bar.Municipality, nameWidth)
		b.WriteString(name)
		b.WriteString(strings.Repeat(" ", nameWidth-lipgloss.Width(name)+1))

		start, end := zero, zero
		if !math.IsNaN(bar.Width) {
			start = m.column(bar.X, cols)
			end = m.column(bar.X+bar.Width, cols)
		}
		style := m.styles.Negative
		if bar.Fill == chart.PositiveFill {
			style = m.styles.Positive
		}

		var line strings.Builder
		line.WriteString(strings.Repeat(" ", start))
		line.WriteString(style.Render(strings.Repeat("█", end-start)))
		if end == start && zero == start {
			line.WriteString(m.styles.Subtle.Render("│"))
			end++
		}
		b.WriteString(line.String())
		b.WriteString(strings.Repeat(" ", max(0, cols-end)+1))
		b.WriteString(s.Labels[i].Text)
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Run starts the preview on the alternate screen and blocks until the user
// quits.
func Run(ds *models.Dataset, category string) error {
	_, err := tea.NewProgram(NewModel(ds, category), tea.WithAltScreen()).Run()
	return err
}
