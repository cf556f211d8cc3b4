package clicmd

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arkanvault/corevault/internal/noteid"
	"github.com/arkanvault/corevault/internal/taskindex"
	"github.com/arkanvault/corevault/internal/taskparser"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Query and migrate tasks across the vault",
}

var (
	taskListStatus   string
	taskListProject  string
	taskListPriority string
	taskOutJSON      bool
	taskOutCSV       bool
	taskOutYAML      bool
	taskOutTSV       bool

	migrateApply      bool
	migrateProperties bool
)

func init() {
	taskListCmd.Flags().StringVar(&taskListStatus, "status", "", "filter by status (todo|done)")
	taskListCmd.Flags().StringVar(&taskListProject, "project", "", "filter by project")
	taskListCmd.Flags().StringVar(&taskListPriority, "priority", "", "filter by priority (high|medium|low)")
	taskListCmd.Flags().BoolVar(&taskOutJSON, "json", false, "output JSON")
	taskListCmd.Flags().BoolVar(&taskOutCSV, "csv", false, "output CSV")
	taskListCmd.Flags().BoolVar(&taskOutYAML, "yaml", false, "output YAML")
	taskListCmd.Flags().BoolVar(&taskOutTSV, "tsv", false, "output TSV")

	taskMigrateCmd.Flags().BoolVar(&migrateApply, "apply", false, "write changes (default is a dry run)")
	taskMigrateCmd.Flags().BoolVar(&migrateProperties, "properties", false, "also record task properties in front-matter")

	taskCmd.AddCommand(taskListCmd, taskMigrateCmd, taskAddCmd, taskDoneCmd)
}

// taskAddCmd and taskDoneCmd replace the teacher's cmdTasksAdd/cmdTasksDone
// with thin wrappers over the host API: a checkbox is just a line in a
// vault file, so mutation goes through VaultAPI.Append/Write and the
// running watcher picks up the index update, rather than this command
// maintaining its own copy of the index.
var taskAddCmd = &cobra.Command{
	Use:   "add <path> <text>",
	Short: "Append a new open checkbox to a note",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Vault.Append(cliPluginID, args[0], "- [ ] "+args[1]+"\n")
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <path> <line>",
	Short: "Mark the checkbox at a 1-based line number done",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lineNum, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid line number %q: %w", args[1], err)
		}

		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		text, err := a.Vault.Read(cliPluginID, args[0])
		if err != nil {
			return err
		}
		lines := strings.Split(text, "\n")
		if lineNum < 1 || lineNum > len(lines) {
			return fmt.Errorf("%s has no line %d", args[0], lineNum)
		}
		marked, ok := markCheckboxDone(lines[lineNum-1])
		if !ok {
			return fmt.Errorf("%s:%d is not a checkbox line", args[0], lineNum)
		}
		lines[lineNum-1] = marked
		return a.Vault.Write(cliPluginID, args[0], strings.Join(lines, "\n"))
	},
}

var checkboxPattern = regexp.MustCompile(`^(\s*[-*]\s\[)( |x|X)(\].*)$`)

func markCheckboxDone(line string) (string, bool) {
	m := checkboxPattern.FindStringSubmatch(line)
	if m == nil {
		return line, false
	}
	return m[1] + "x" + m[3], true
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks matching a filter",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		q := taskindex.Query{
			Status:   taskindex.Status(taskListStatus),
			Project:  taskListProject,
			Priority: parsePriority(taskListPriority),
		}
		records := a.Tasks.Query(q)

		fields := []string{"status", "priority", "project", "due", "path", "text"}
		rows := make([]map[string]string, 0, len(records))
		for _, r := range records {
			due := ""
			if r.Due != nil {
				due = r.Due.Format("2006-01-02")
			}
			rows = append(rows, map[string]string{
				"status":   string(r.Status),
				"priority": r.Priority.String(),
				"project":  r.Project,
				"due":      due,
				"path":     r.Path,
				"text":     r.Text,
			})
		}
		renderTable(rows, fields, outputFormat(cmdFlags{json: taskOutJSON, csvOut: taskOutCSV, yamlOut: taskOutYAML, tsv: taskOutTSV}))
		return nil
	},
}

var taskMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Backfill task identifiers onto legacy checkboxes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := taskindex.Migrate(context.Background(), a.Config.VaultPath, a.Tasks, noteid.NewGenerator(), taskindex.MigrationConfig{
			DryRun:            !migrateApply,
			IncludeProperties: migrateProperties,
		})
		if err != nil {
			return err
		}
		fmt.Printf("%d files scanned, %d tasks migrated across %d files", report.TotalFiles, report.TasksMigrated, report.FilesModified)
		if report.IsDryRun {
			fmt.Print(" (dry run, pass --apply to write)")
		}
		fmt.Println()
		for _, e := range report.Errors {
			fmt.Println("error:", e)
		}
		return nil
	},
}

func parsePriority(s string) taskparser.Priority {
	switch s {
	case "high":
		return taskparser.PriorityHigh
	case "medium":
		return taskparser.PriorityMedium
	case "low":
		return taskparser.PriorityLow
	default:
		return taskparser.NoPriority
	}
}
