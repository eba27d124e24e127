// Package browse is an interactive terminal browser over a generated proto
// schema: a list of retained packages, and on enter a full-screen,
// syntax-highlighted preview of the selected package's rendered .proto
// source.
package browse

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kestrelgs/pb2proto/internal/proto"
	"github.com/kestrelgs/pb2proto/internal/ui/colorize"
)

var (
	detailStyle = lipgloss.NewStyle().Padding(1, 2)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
)

type packageItem struct {
	namespace string
	messages  int
	enums     int
	services  int
	source    string
}

func (i packageItem) Title() string { return i.namespace }

func (i packageItem) Description() string {
	return fmt.Sprintf("%d messages · %d enums · %d services", i.messages, i.enums, i.services)
}

func (i packageItem) FilterValue() string { return i.namespace }

type model struct {
	list    list.Model
	preview bool
	width   int
	height  int
}

func newModel(units []proto.GenUnit) model {
	sort.Slice(units, func(i, j int) bool { return units[i].Namespace < units[j].Namespace })

	items := make([]list.Item, 0, len(units))
	for _, u := range units {
		file := u.Render()
		items = append(items, packageItem{
			namespace: u.Namespace,
			messages:  len(u.Messages),
			enums:     len(u.Enums),
			services:  len(u.Services),
			source:    file.SourceCode,
		})
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Recovered packages"
	l.SetShowStatusBar(true)

	return model{list: l}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.preview {
				m.preview = false
				return m, nil
			}
			return m, tea.Quit
		case "enter":
			m.preview = true
			return m, nil
		case "esc":
			m.preview = false
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if m.preview {
		item, ok := m.list.SelectedItem().(packageItem)
		if !ok {
			return "no package selected"
		}
		body := headerStyle.Render(item.namespace+".proto") + "\n\n" + colorize.Proto(item.source)
		body += "\n" + lipgloss.NewStyle().Faint(true).Render("esc/q: back to list")
		return detailStyle.Render(body)
	}
	return m.list.View()
}

// Run launches the interactive browser over the retained packages in units.
// It blocks until the user quits.
func Run(units []proto.GenUnit) error {
	if len(units) == 0 {
		return fmt.Errorf("browse: no packages to browse")
	}
	p := tea.NewProgram(newModel(units), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
