package main

import (
	"fmt"

	"github.com/RezaEskandarii/recurfire/jobmanager"
	"github.com/spf13/cobra"
)

var serveOnce bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run workers, the retry sweep and the janitor",
	Long: `Start polling for due tasks on this node. Every node runs its own
workers; the janitor and the retry sweep run on whichever node holds
their lock.

With --once, run the tasks that are due right now, sweep stalled jobs
and exit.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveOnce, "once", false, "run due tasks and one janitor sweep, then exit")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if serveOnce {
		c, err := jobmanager.NewClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		ran, err := c.Tasks.RunDue(ctx, cfg.BatchSize)
		if err != nil {
			return err
		}
		rearmed, err := c.JobManager.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ran %d due task(s), re-armed %d job(s)\n", ran, rearmed)
		return nil
	}

	c, err := jobmanager.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	<-ctx.Done()
	c.Logger.Infow("shutting down", "instance", cfg.Instance)
	return nil
}
