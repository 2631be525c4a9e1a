package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/prospector/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect report schema documents",
}

var schemaValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate a report schema document",
	Long:  "Validates the schema at path, the configured schema.path, or the embedded default, and summarizes its sections.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Schema.Path
		if len(args) == 1 {
			path = args[0]
		}

		s, err := schema.Load(path)
		if err != nil {
			return err
		}
		if path == "" {
			path = "(embedded default)"
		}
		summarizeSchema(cmd.OutOrStdout(), path, s)
		return nil
	},
}

func summarizeSchema(w io.Writer, path string, s *schema.Schema) {
	fmt.Fprintf(w, "%s: version %s, %d sections, %d fields\n", path, s.Version, len(s.Sections), s.FieldCount())
	for _, sec := range s.Sections {
		fmt.Fprintf(w, "  %-28s %3d fields\n", sec.ID, len(sec.FieldNames()))
	}
	if unmapped := s.UnmappedFields(); len(unmapped) > 0 {
		fmt.Fprintf(w, "%d fields have no type mapping and default to null:\n", len(unmapped))
		for _, f := range unmapped {
			fmt.Fprintf(w, "  %s\n", f)
		}
	}
}

func init() {
	schemaCmd.AddCommand(schemaValidateCmd)
	rootCmd.AddCommand(schemaCmd)
}
