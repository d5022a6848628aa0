package main

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/RezaEskandarii/recurfire/app"
	"github.com/RezaEskandarii/recurfire/internal/state"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count scheduled tasks by status",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, c *app.Container) error {
		counts, err := c.JobManager.CountTasksByStatus(ctx)
		if err != nil {
			return err
		}

		statuses := make([]state.JobStatus, 0, len(counts))
		for s := range counts {
			statuses = append(statuses, s)
		}
		sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STATUS\tTASKS")
		for _, s := range statuses {
			fmt.Fprintf(w, "%s\t%d\n", s, counts[s])
		}
		return w.Flush()
	})
}
