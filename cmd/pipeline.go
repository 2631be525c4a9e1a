package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/prospector/internal/config"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/pipeline"
	"github.com/sells-group/prospector/internal/store"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Start and inspect prospecting pipeline runs",
}

// -- pipeline start --

var pipelineStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a pipeline run from a YAML config",
	Long:  "Starts a pipeline run and keeps the process alive until it reaches a terminal status. With --wait, every progress change is printed as it is observed.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModePipeline); err != nil {
			return err
		}

		path, _ := cmd.Flags().GetString("file")
		runCfg, err := readPipelineConfig(path)
		if err != nil {
			return err
		}
		if seed, _ := cmd.Flags().GetString("seed"); seed != "" {
			runCfg.SeedURL = seed
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		orch, err := initResearch(st)
		if err != nil {
			return err
		}
		runner, err := initRunner(st, orch)
		if err != nil {
			return err
		}

		actor, _ := cmd.Flags().GetString("actor")
		run, task, err := runner.Start(ctx, actor, runCfg)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), run.ID)

		wait, _ := cmd.Flags().GetBool("wait")
		if wait {
			interval, _ := cmd.Flags().GetDuration("interval")
			if interval <= 0 {
				interval = cfg.Pipeline.PollInterval
			}
			if err := pollStatus(ctx, runner, run.ID, interval, cmd.ErrOrStderr()); err != nil {
				return err
			}
		}

		// The task runs in this process; exiting early would orphan it.
		if err := task.Wait(context.WithoutCancel(ctx)); err != nil {
			return eris.Wrapf(err, "pipeline %s failed", run.ID)
		}
		zap.L().Info("pipeline: finished", zap.String("pipeline_id", run.ID))
		return nil
	},
}

// defaultPollInterval applies when no positive interval is configured.
const defaultPollInterval = 2 * time.Second

// pollStatus prints the run's status each time it changes until the run is
// terminal.
func pollStatus(ctx context.Context, runner *pipeline.Runner, id string, interval time.Duration, w io.Writer) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last *model.PipelineRun
	for {
		run, err := runner.Status(ctx, id)
		if err != nil {
			return err
		}
		if last == nil || run.Progress != last.Progress || run.Status != last.Status || run.CurrentPhase != last.CurrentPhase {
			fmt.Fprintf(w, "%-10s %3d%%  %-20s entities=%d contacts=%d artifacts=%d\n",
				run.Status, run.Progress, run.CurrentPhase,
				run.Counters.EntitiesProcessed, run.Counters.ContactsFound, run.Counters.ArtifactsGenerated)
		}
		last = run
		if run.Status.Terminal() {
			if run.Error != "" {
				fmt.Fprintf(w, "error: %s\n", run.Error)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func readPipelineConfig(path string) (pipeline.Config, error) {
	var c pipeline.Config
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, eris.Wrapf(err, "read pipeline config %s", path)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, eris.Wrapf(err, "parse pipeline config %s", path)
	}
	return c, nil
}

// -- pipeline status --

var pipelineStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show the status of a pipeline run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := queryRunner(st).Status(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "pipeline status")
		}
		return writeJSON(cmd.OutOrStdout(), statusView(run))
	},
}

// -- pipeline results --

var pipelineResultsCmd = &cobra.Command{
	Use:   "results <id>",
	Short: "Print the result of a completed pipeline run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := queryRunner(st).Results(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "pipeline results")
		}
		if res == nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "No result yet.")
			return nil
		}
		return writeJSON(cmd.OutOrStdout(), res)
	},
}

// -- pipeline list --

var pipelineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		actor, _ := cmd.Flags().GetString("actor")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := queryRunner(st).List(ctx, store.PipelineFilter{
			Status: model.PipelineStatus(status),
			Actor:  actor,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "pipeline list")
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No pipeline runs found.")
			return nil
		}
		formatPipelineList(cmd.OutOrStdout(), runs)
		return nil
	},
}

// -- pipeline export --

var pipelineExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export the contacts of a completed pipeline run to XLSX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := queryRunner(st).Results(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "pipeline export")
		}
		if res == nil {
			return eris.Errorf("pipeline %s has no result", args[0])
		}
		agg, err := pipeline.DecodeAggregate(res)
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("output")
		if err := pipeline.ExportXLSX(out, agg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d contacts to %s\n", len(agg.Contacts), out)
		return nil
	},
}

// pipelineStatus is the status document of a pipeline run.
type pipelineStatus struct {
	ID           string               `json:"id"`
	Actor        string               `json:"actor"`
	Status       model.PipelineStatus `json:"status"`
	CurrentPhase model.Phase          `json:"current_phase"`
	Progress     int                  `json:"progress"`
	Counters     model.Counters       `json:"counters"`
	Error        string               `json:"error,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

func statusView(run *model.PipelineRun) pipelineStatus {
	return pipelineStatus{
		ID:           run.ID,
		Actor:        run.Actor,
		Status:       run.Status,
		CurrentPhase: run.CurrentPhase,
		Progress:     run.Progress,
		Counters:     run.Counters,
		Error:        run.Error,
		CreatedAt:    run.CreatedAt,
		UpdatedAt:    run.UpdatedAt,
	}
}

func formatPipelineList(w io.Writer, runs []model.PipelineRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPHASE\tPROGRESS\tACTOR\tCREATED\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%s\t%s\t%s\n",
			r.ID,
			r.Status,
			r.CurrentPhase,
			r.Progress,
			r.Actor,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			truncate(r.Error, 60),
		)
	}
	tw.Flush() //nolint:errcheck
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	pipelineStartCmd.Flags().StringP("file", "f", "", "pipeline config YAML")
	pipelineStartCmd.Flags().String("seed", "", "seed company URL (overrides the config file)")
	pipelineStartCmd.Flags().String("actor", "cli", "actor recorded on the pipeline run")
	pipelineStartCmd.Flags().Bool("wait", false, "print progress until the run is terminal")
	pipelineStartCmd.Flags().Duration("interval", 0, "poll interval for --wait (default from config)")

	pipelineListCmd.Flags().String("status", "", "filter by status (running, completed, failed)")
	pipelineListCmd.Flags().String("actor", "", "filter by actor")
	pipelineListCmd.Flags().Int("limit", 20, "maximum number of runs")

	pipelineExportCmd.Flags().StringP("output", "o", "contacts.xlsx", "output XLSX path")

	pipelineCmd.AddCommand(pipelineStartCmd, pipelineStatusCmd, pipelineResultsCmd, pipelineListCmd, pipelineExportCmd)
	rootCmd.AddCommand(pipelineCmd)
}
