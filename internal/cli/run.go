package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/erp/tools/acctest/internal/check"
	"github.com/example/erp/tools/acctest/internal/client"
	"github.com/example/erp/tools/acctest/internal/config"
	"github.com/example/erp/tools/acctest/internal/logger"
	"github.com/example/erp/tools/acctest/internal/metadata"
	"github.com/example/erp/tools/acctest/internal/metrics"
	"github.com/example/erp/tools/acctest/internal/report"
	"github.com/example/erp/tools/acctest/internal/runner"
	"github.com/example/erp/tools/acctest/internal/sheet"
	"github.com/example/erp/tools/acctest/internal/step"
)

// ErrCasesFailed is returned by run --fail-on-failures when any case or tab failed.
var ErrCasesFailed = errors.New("acctest: test cases failed")

var (
	runTabs         []string
	runSummaryFile  string
	runFailOnFailed bool
	runNoColor      bool
)

func init() {
	runCmd.Flags().StringSliceVar(&runTabs, "tab", nil, "run only these tabs (repeatable, case-insensitive)")
	runCmd.Flags().StringVar(&runSummaryFile, "summary-file", "", "write the JSON run summary here (supports {{.Timestamp}}, {{.Date}}, {{.RunID}})")
	runCmd.Flags().BoolVar(&runFailOnFailed, "fail-on-failures", false, "exit non-zero when any test case or tab failed")
	runCmd.Flags().BoolVar(&runNoColor, "no-color", false, "disable colors in the results table")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every tab's test cases and write the output sheets",
	Args:  cobra.NoArgs,
	RunE:  runTests,
}

func runTests(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runSummaryFile != "" {
		cfg.SummaryFile = runSummaryFile
	}

	ctx, log, err := newLogger(cmd.Context(), cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	runID := uuid.NewString()
	ctx, runLog := logger.WithRunID(ctx, runID)

	descs, err := metadata.LoadDir(cfg.MetadataPath, log)
	if err != nil {
		return err
	}
	if err := cfg.CheckSheetPath(); err != nil {
		return err
	}
	runLog.Info("loaded metadata", zap.String("dir", cfg.MetadataPath), zap.Int("tabs", len(descs)))

	sink, err := newSink(ctx, cfg, runID, log)
	if err != nil {
		return err
	}

	exporter := metrics.NewPrometheusExporter(metrics.PrometheusExporterConfig{Addr: cfg.Metrics.Addr})
	if cfg.Metrics.Addr != "" {
		if err := exporter.Start(); err != nil {
			return err
		}
		runLog.Info("serving metrics", zap.String("url", exporter.Address()))
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = exporter.Stop(stopCtx)
		}()
	}

	c, err := client.NewClient(cfg.Target(), client.WithLogger(log))
	if err != nil {
		return err
	}

	proc := step.NewProcessor(c, step.WithLogger(log), step.WithStepHook(exporter.ObserveStep))
	r := runner.New(proc, check.NewChecker(check.WithLogger(log)),
		runner.WithLogger(log),
		runner.WithRunID(runID),
		runner.WithTabs(runTabs...),
		runner.WithCaseHook(exporter.ObserveCase),
		runner.WithTabHook(report.TabWriter(sink)),
	)

	results := r.Run(ctx, descs, sheet.Dir(cfg.InputExcelPath))
	for _, res := range results {
		exporter.ObserveTab(res)
	}

	summary := report.NewSummary(runID, cfg.BaseURL, results)
	if err := writeSummary(ctx, summary, sink, cfg.SummaryFile); err != nil {
		runLog.Error("failed to write run summary", zap.Error(err))
	}
	if cfg.Metrics.Textfile != "" {
		if err := exporter.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			runLog.Error("failed to write metrics textfile", zap.Error(err))
		}
	}

	report.NewConsole(cmd.OutOrStdout(), !runNoColor).PrintSummary(summary)
	runLog.Info("run completed",
		zap.Int("tabs", summary.Totals.Tabs),
		zap.Int("passed", summary.Totals.Passed),
		zap.Int("failed", summary.Totals.Failed),
	)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run interrupted: %w", err)
	}
	if runFailOnFailed && !summary.OK() {
		return ErrCasesFailed
	}
	return nil
}

// newSink creates the output directory and, when a bucket is configured,
// mirrors every file to S3.
func newSink(ctx context.Context, cfg *config.Config, runID string, log *zap.Logger) (report.Sink, error) {
	dir, err := report.NewDirSink(cfg.OutputPath)
	if err != nil {
		return nil, err
	}
	if !cfg.S3.Enabled() {
		return dir, nil
	}

	s3sink, err := report.NewS3Sink(ctx, cfg.S3, runID, report.WithS3Logger(log))
	if err != nil {
		return nil, err
	}
	log.Info("mirroring results to S3", zap.Stringer("destination", s3sink))
	return report.MultiSink{dir, s3sink}, nil
}

func writeSummary(ctx context.Context, summary *report.Summary, sink report.Sink, path string) error {
	data, err := summary.ToJSON()
	if err != nil {
		return err
	}
	if err := sink.Put(ctx, report.SummaryFileName, data); err != nil {
		return err
	}
	if path == "" {
		return nil
	}
	_, err = summary.WriteToFile(path)
	return err
}
