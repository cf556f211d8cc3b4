package clicmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Read and edit notes in the vault",
}

func init() {
	noteCmd.AddCommand(noteReadCmd, noteWriteCmd, noteAppendCmd, noteDeleteCmd, noteListCmd)
}

var noteReadCmd = &cobra.Command{
	Use:   "read <path>",
	Short: "Print a note's contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		text, err := a.Vault.Read(cliPluginID, args[0])
		if err != nil {
			return err
		}
		fmt.Print(text)
		return nil
	},
}

var noteWriteCmd = &cobra.Command{
	Use:   "write <path>",
	Short: "Overwrite a note with stdin contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readStdin()
		if err != nil {
			return err
		}
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Vault.Write(cliPluginID, args[0], string(data))
	},
}

var noteAppendCmd = &cobra.Command{
	Use:   "append <path>",
	Short: "Append stdin contents to a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readStdin()
		if err != nil {
			return err
		}
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Vault.Append(cliPluginID, args[0], string(data))
	},
}

var noteDeleteCmd = &cobra.Command{
	Use:   "delete <path>",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Vault.Delete(cliPluginID, args[0])
	},
}

var noteListCmd = &cobra.Command{
	Use:   "list [dir]",
	Short: "List the notes in a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := ""
		if len(args) == 1 {
			dir = args[0]
		}
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Vault.List(cliPluginID, dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Println(e)
		}
		return nil
	},
}

func readStdin() ([]byte, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return data, nil
}
