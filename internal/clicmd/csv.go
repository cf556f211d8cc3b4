package clicmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var csvCmd = &cobra.Command{
	Use:   "csv",
	Short: "Read CSV files and inspect their inferred schema",
}

var csvMaxRows int

func init() {
	csvReadCmd.Flags().IntVar(&csvMaxRows, "max-rows", 0, "cap the number of rows read (0: use the account's default)")
	csvCmd.AddCommand(csvReadCmd, csvSchemaCmd)
	RootCmd.AddCommand(csvCmd)
}

var csvReadCmd = &cobra.Command{
	Use:   "read <path>",
	Short: "Print a vault CSV file as a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		var maxRows *int
		if csvMaxRows > 0 {
			maxRows = &csvMaxRows
		}
		data, err := a.Csv.Read(cliPluginID, args[0], maxRows)
		if err != nil {
			return err
		}

		rows := make([]map[string]string, len(data.Rows))
		for i, row := range data.Rows {
			m := make(map[string]string, len(data.Headers))
			for j, h := range data.Headers {
				if j < len(row) {
					m[h] = row[j]
				}
			}
			rows[i] = m
		}
		renderTable(rows, data.Headers, "")
		if data.TotalRows > len(data.Rows) {
			fmt.Printf("(%d of %d rows shown)\n", len(data.Rows), data.TotalRows)
		}
		return nil
	},
}

var csvSchemaCmd = &cobra.Command{
	Use:   "schema <path>",
	Short: "Print a CSV file's inferred or saved schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		schema, err := a.Csv.GetSchema(cliPluginID, args[0], true)
		if err != nil {
			return err
		}
		data, _ := json.MarshalIndent(schema, "", "  ")
		fmt.Println(string(data))
		return nil
	},
}
