package clicmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect the wikilink graph",
}

func init() {
	graphCmd.AddCommand(graphBacklinksCmd, graphOutboundCmd, graphRebuildCmd)
}

var graphBacklinksCmd = &cobra.Command{
	Use:   "backlinks <title>",
	Short: "List notes linking to a title",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		links, err := a.GraphAPI.Backlinks(cliPluginID, args[0])
		if err != nil {
			return err
		}
		for _, l := range links {
			fmt.Printf("%s:%d\n", l.From, l.Line)
		}
		return nil
	},
}

var graphOutboundCmd = &cobra.Command{
	Use:   "outbound <path>",
	Short: "List the links a note contains",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		links, err := a.GraphAPI.Outbound(cliPluginID, args[0])
		if err != nil {
			return err
		}
		for _, l := range links {
			fmt.Println(l.Title)
		}
		return nil
	},
}

var graphRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Recompute the wikilink graph from disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()
		return a.GraphAPI.Rebuild(cliPluginID)
	},
}
