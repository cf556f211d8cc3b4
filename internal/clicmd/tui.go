package clicmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/list"
	"github.com/spf13/cobra"

	"github.com/arkanvault/corevault/internal/taskindex"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive terminal views",
}

func init() {
	tuiCmd.AddCommand(tuiTasksCmd)
}

var tuiTasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Browse open tasks in a live list",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		records := a.Tasks.Query(taskindex.Query{Status: taskindex.StatusTodo})
		items := make([]list.Item, len(records))
		for i, r := range records {
			items[i] = taskItem{r}
		}

		m := taskListModel{list: list.New(items, list.NewDefaultDelegate(), 0, 0)}
		m.list.Title = "Open tasks"

		p := tea.NewProgram(m, tea.WithAltScreen())
		_, err = p.Run()
		return err
	},
}

type taskItem struct {
	record taskindex.Record
}

func (t taskItem) Title() string { return t.record.Text }
func (t taskItem) Description() string {
	due := ""
	if t.record.Due != nil {
		due = " due " + t.record.Due.Format("2006-01-02")
	}
	return fmt.Sprintf("%s%s — %s", t.record.Path, due, t.record.Priority.String())
}
func (t taskItem) FilterValue() string { return t.record.Text }

type taskListModel struct {
	list list.Model
}

func (m taskListModel) Init() tea.Cmd { return nil }

func (m taskListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m taskListModel) View() string {
	return m.list.View()
}
