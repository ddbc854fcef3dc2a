package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/devsecrin/askstream/pkg/types"
)

var agentsJSON bool

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the agents a question can be routed to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if agentsJSON {
			return writeJSON(cmd.OutOrStdout(), types.Agents)
		}
		printAgents(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(agentsCmd)
	agentsCmd.Flags().BoolVar(&agentsJSON, "json", false, "Print the catalogue as JSON")
}

func printAgents(out io.Writer) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, a := range types.Agents {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Type, a.Label, a.Description)
	}
	tw.Flush()
}
