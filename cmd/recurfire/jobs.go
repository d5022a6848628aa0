package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/RezaEskandarii/recurfire/app"
	"github.com/RezaEskandarii/recurfire/custom_errors"
	"github.com/RezaEskandarii/recurfire/jobmanager"
	"github.com/RezaEskandarii/recurfire/types"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var (
	registerName  string
	registerEvery time.Duration
	registerCron  string
	registerArgs  string
	getJSON       bool
	listPage      int
	listPageSize  int
)

var registerCmd = &cobra.Command{
	Use:   "register <target>",
	Short: "Register a recurring job",
	Example: `  recurfire register log --every 30s --args '{"msg":"hello"}'
  recurfire register log --name nightly --cron "0 0 * * *"`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recurring jobs",
	Example: `  recurfire list
  recurfire list --page 2 --page-size 20`,
	RunE: runList,
}

var getCmd = &cobra.Command{
	Use:   "get <id|name>",
	Short: "Show one recurring job",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id|name>",
	Short: "Delete a recurring job and cancel its pending tasks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Re-arm recurring jobs whose tick was lost",
	RunE:  runSweep,
}

func init() {
	registerCmd.Flags().StringVar(&registerName, "name", "", "unique job name (anonymous when empty)")
	registerCmd.Flags().DurationVar(&registerEvery, "every", 0, "fixed interval, at least 1s")
	registerCmd.Flags().StringVar(&registerCron, "cron", "", "cron expression, 5 or 6 fields")
	registerCmd.Flags().StringVar(&registerArgs, "args", "", "JSON object passed to the target")
	registerCmd.MarkFlagsMutuallyExclusive("every", "cron")
	registerCmd.MarkFlagsOneRequired("every", "cron")

	listCmd.Flags().IntVar(&listPage, "page", 0, "show only this page (1-based); all jobs when 0")
	listCmd.Flags().IntVar(&listPageSize, "page-size", 50, "jobs per page with --page")

	getCmd.Flags().BoolVar(&getJSON, "json", false, "print the job as JSON")
}

// withClient runs fn against a container that starts no background services.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *app.Container) error) error {
	ctx := cmd.Context()
	c, err := jobmanager.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func scheduleFromFlags(every time.Duration, cron string) types.Schedule {
	if cron != "" {
		return types.Cron(cron)
	}
	return types.Every(every)
}

func parseArgs(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("--args must be a JSON object: %w", err)
	}
	return args, nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	jobArgs, err := parseArgs(registerArgs)
	if err != nil {
		return err
	}
	schedule := scheduleFromFlags(registerEvery, registerCron)

	return withClient(cmd, func(ctx context.Context, c *app.Container) error {
		var id int64
		if registerName != "" {
			id, err = c.JobManager.RegisterNamed(ctx, registerName, schedule, args[0], jobArgs)
		} else {
			id, err = c.JobManager.Register(ctx, schedule, args[0], jobArgs)
		}
		if err != nil {
			return describe(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "registered job %d (%s)\n", id, schedule)
		return nil
	})
}

func runList(cmd *cobra.Command, args []string) error {
	if listPage < 0 || (listPage > 0 && listPageSize < 1) {
		return errors.New("--page must be >= 0 and --page-size >= 1")
	}
	return withClient(cmd, func(ctx context.Context, c *app.Container) error {
		if listPage > 0 {
			result, err := c.Recurring.Page(ctx, listPage, listPageSize)
			if err != nil {
				return err
			}
			return printPage(cmd.OutOrStdout(), result)
		}

		jobs, err := c.JobManager.List(ctx)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no recurring jobs")
			return nil
		}
		return printJobs(cmd.OutOrStdout(), jobs)
	})
}

func printPage(out io.Writer, result *types.PaginationResult[types.RecurringJob]) error {
	if len(result.Items) > 0 {
		if err := printJobs(out, result.Items); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(out, "page %d of %d (%d jobs)\n", result.Page, result.TotalPages, result.TotalItems)
	return err
}

func printJobs(out io.Writer, jobs []types.RecurringJob) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSCHEDULE\tTARGET\tPENDING TICK\tLAST DISPATCH")
	for _, job := range jobs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			job.ID, job.DisplayName(), job.Schedule, job.TargetFunction,
			optionalID(job.PendingTickTaskID), optionalID(job.LastDispatchTaskID))
	}
	return w.Flush()
}

func optionalID(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}

// lookup resolves a numeric argument as an id and anything else as a name.
func lookup(ctx context.Context, c *app.Container, ref string) (*types.RecurringJob, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return c.JobManager.Get(ctx, id)
	}
	return c.JobManager.GetByName(ctx, ref)
}

func runGet(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, c *app.Container) error {
		job, err := lookup(ctx, c, args[0])
		if err != nil {
			return err
		}
		if job == nil {
			return errors.Wrapf(custom_errors.ErrJobNotFound, "%s", args[0])
		}
		if getJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(job)
		}
		return printJobs(cmd.OutOrStdout(), []types.RecurringJob{*job})
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	ref := args[0]
	return withClient(cmd, func(ctx context.Context, c *app.Container) error {
		var err error
		if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
			err = c.JobManager.Delete(ctx, id)
		} else {
			err = c.JobManager.DeleteByName(ctx, ref)
		}
		if err != nil {
			return describe(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", ref)
		return nil
	})
}

func runSweep(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, c *app.Container) error {
		n, err := c.JobManager.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "re-armed %d job(s)\n", n)
		return nil
	})
}

// describe appends the error's hints, such as the interval minimum.
func describe(err error) error {
	hints := errors.FlattenHints(err)
	if hints == "" {
		return err
	}
	return fmt.Errorf("%w\nhint: %s", err, hints)
}
