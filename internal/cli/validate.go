package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/erp/tools/acctest/internal/metadata"
	"github.com/example/erp/tools/acctest/internal/sheet"
)

func init() {
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration, metadata and sheets and print the execution plan",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	_, log, err := newLogger(cmd.Context(), cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	descs, err := metadata.LoadDir(cfg.MetadataPath, log)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "=== Execution Plan ===")
	fmt.Fprintf(w, "  Base URL:    %s\n", cfg.BaseURL)
	fmt.Fprintf(w, "  Metadata:    %s (%d tabs)\n", cfg.MetadataPath, len(descs))
	fmt.Fprintf(w, "  Sheets:      %s\n", cfg.InputExcelPath)
	fmt.Fprintf(w, "  Output:      %s\n", cfg.OutputPath)
	if cfg.S3.Enabled() {
		fmt.Fprintf(w, "  S3 mirror:   s3://%s/%s\n", cfg.S3.Bucket, strings.Trim(cfg.S3.Prefix, "/"))
	}
	fmt.Fprintln(w)

	source := sheet.Dir(cfg.InputExcelPath)
	for i := range descs {
		printTabPlan(w, &descs[i], source)
	}
	return nil
}

func printTabPlan(w io.Writer, desc *metadata.Descriptor, source sheet.Dir) {
	if err := desc.Validate(); err != nil {
		fmt.Fprintf(w, "%s: %v\n\n", desc.Source, err)
		return
	}

	fmt.Fprintf(w, "Tab %s (%s)\n", desc.TabName, desc.Source)
	if table, err := source.ReadTab(desc.TabName); err != nil {
		fmt.Fprintf(w, "  sheet:   ERROR %v\n", err)
	} else {
		fmt.Fprintf(w, "  sheet:   %d test cases, %d columns\n", table.Len(), len(table.Columns))
	}

	printSteps(w, "inputs", desc.Flow.Inputs, func(s metadata.StepDefinition) []string { return s.InputAttributes })
	printSteps(w, "outputs", desc.Flow.Outputs, func(s metadata.StepDefinition) []string { return s.OutputAttributes })
	if len(desc.Flow.Outputs) == 0 {
		fmt.Fprintln(w, "  WARNING: no output steps; every test case will fail")
	}
	fmt.Fprintln(w)
}

func printSteps(w io.Writer, flow string, steps []metadata.StepDefinition, attrs func(metadata.StepDefinition) []string) {
	fmt.Fprintf(w, "  %s:\n", flow)
	for _, s := range steps {
		if err := s.Validate(); err != nil {
			fmt.Fprintf(w, "    - SKIPPED %v\n", err)
			continue
		}
		fmt.Fprintf(w, "    %s. %-6s %-20s %s  id=[%s] attrs=[%s]\n",
			s.Sequence, s.Method(), s.NormalizedEntity(), s.URL,
			strings.Join(s.IdentifierAttributes, ","), strings.Join(attrs(s), ","))
	}
}
