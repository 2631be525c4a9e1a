package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prospector/internal/canonical"
	"github.com/sells-group/prospector/internal/config"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/research"
	"github.com/sells-group/prospector/internal/schema"
)

var researchCmd = &cobra.Command{
	Use:   "research",
	Short: "Research a company and inspect past research runs",
}

// -- research run --

var researchRunCmd = &cobra.Command{
	Use:   "run <url>",
	Short: "Run every research step for a company and print the canonical report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeResearch); err != nil {
			return err
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

		actor, _ := cmd.Flags().GetString("actor")
		out, err := orch.Run(ctx, args[0], actor)
		if err != nil {
			return err
		}

		if out.PersistFailures > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d step log writes failed; run %s is incomplete\n", out.PersistFailures, out.RunID)
		}
		return writeJSON(cmd.OutOrStdout(), researchView(out))
	},
}

// -- research steps --

var researchStepsCmd = &cobra.Command{
	Use:   "steps <run-id>",
	Short: "List the logged steps of a research run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		steps, err := st.ListSteps(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "research steps")
		}
		if len(steps) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No steps found.")
			return nil
		}

		if raw, _ := cmd.Flags().GetBool("raw"); raw {
			return writeJSON(cmd.OutOrStdout(), steps)
		}
		formatSteps(cmd.OutOrStdout(), steps)
		return nil
	},
}

// -- research report --

var researchReportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Rebuild the canonical report of a past run from its step log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sch, err := schema.Load(cfg.Schema.Path)
		if err != nil {
			return err
		}

		// Rebuilding never calls the generation service.
		out, err := research.New(st, nil, sch).Rebuild(ctx, args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), researchView(out))
	},
}

type researchResponse struct {
	RunID           string            `json:"run_id"`
	Report          *canonical.Report `json:"report"`
	Missing         []string          `json:"missing,omitempty"`
	Coverage        float64           `json:"coverage"`
	PersistFailures int               `json:"persist_failures,omitempty"`
}

func researchView(out *research.Outcome) researchResponse {
	return researchResponse{
		RunID:           out.RunID,
		Report:          out.Report,
		Missing:         out.Report.Missing(),
		Coverage:        out.Report.Coverage(),
		PersistFailures: out.PersistFailures,
	}
}

func formatSteps(w io.Writer, steps []model.StepResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tSTEP\tCREATED\tBYTES")
	for _, s := range steps {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n",
			s.Sequence,
			s.Step,
			s.CreatedAt.Format("2006-01-02 15:04:05"),
			len(s.Output),
		)
	}
	tw.Flush() //nolint:errcheck
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	researchRunCmd.Flags().String("actor", "cli", "actor recorded on the research run")
	researchStepsCmd.Flags().Bool("raw", false, "print step outputs as JSON")

	researchCmd.AddCommand(researchRunCmd, researchStepsCmd, researchReportCmd)
	rootCmd.AddCommand(researchCmd)
}
