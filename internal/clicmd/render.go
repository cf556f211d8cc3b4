package clicmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// outputFormat mirrors the teacher's format.go flag set: "json", "csv",
// "yaml", "tsv", or "" for the default lipgloss-styled table.
func outputFormat(cmd cmdFlags) string {
	switch {
	case cmd.json:
		return "json"
	case cmd.csvOut:
		return "csv"
	case cmd.yamlOut:
		return "yaml"
	case cmd.tsv:
		return "tsv"
	default:
		return ""
	}
}

type cmdFlags struct {
	json    bool
	csvOut  bool
	yamlOut bool
	tsv     bool
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	rowStyle    = lipgloss.NewStyle()
)

// renderTable prints rows in the requested format; fields controls
// column order everywhere except plain JSON/YAML, which keep map keys.
func renderTable(rows []map[string]string, fields []string, format string) {
	switch format {
	case "json":
		data, _ := json.MarshalIndent(rows, "", "  ")
		fmt.Println(string(data))
	case "yaml":
		data, _ := yaml.Marshal(rows)
		fmt.Print(string(data))
	case "csv":
		w := csv.NewWriter(os.Stdout)
		w.Write(fields)
		for _, row := range rows {
			record := make([]string, len(fields))
			for i, f := range fields {
				record[i] = row[f]
			}
			w.Write(record)
		}
		w.Flush()
	case "tsv":
		fmt.Println(strings.Join(fields, "\t"))
		for _, row := range rows {
			vals := make([]string, len(fields))
			for i, f := range fields {
				vals[i] = row[f]
			}
			fmt.Println(strings.Join(vals, "\t"))
		}
	default:
		renderStyledTable(rows, fields)
	}
}

// renderStyledTable is the terminal default: lipgloss-aligned columns
// with a bold header row, replacing the teacher's plain
// fmt.Printf-padded table in format.go.
func renderStyledTable(rows []map[string]string, fields []string) {
	widths := make([]int, len(fields))
	for i, f := range fields {
		widths[i] = len(f)
	}
	for _, row := range rows {
		for i, f := range fields {
			if l := len(row[f]); l > widths[i] {
				widths[i] = l
			}
		}
	}

	var header strings.Builder
	for i, f := range fields {
		header.WriteString(padRight(f, widths[i]))
		if i < len(fields)-1 {
			header.WriteString("  ")
		}
	}
	fmt.Println(headerStyle.Render(header.String()))

	for _, row := range rows {
		var line strings.Builder
		for i, f := range fields {
			line.WriteString(padRight(row[f], widths[i]))
			if i < len(fields)-1 {
				line.WriteString("  ")
			}
		}
		fmt.Println(rowStyle.Render(line.String()))
	}
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "vaultd: "+format+"\n", args...)
	os.Exit(1)
}
