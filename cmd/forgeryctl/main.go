package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/docforensics/internal/application/analysis"
	"github.com/bryanwahyu/docforensics/internal/infra/analyzer"
	"github.com/bryanwahyu/docforensics/internal/infra/extractor"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "forgeryctl",
		Short:        "Inspect documents for signs of forgery",
		SilenceUsage: true,
	}
	root.AddCommand(newAnalyzeCmd())
	return root
}

type analyzeFlags struct {
	declaredType string
	sequential   bool
	maxBytes     int64
	timeout      time.Duration
	verbose      bool
	compact      bool
}

func newAnalyzeCmd() *cobra.Command {
	var f analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze one file and print the JSON report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], f)
		},
	}
	cmd.Flags().StringVar(&f.declaredType, "type", "", "declared media type (default: inferred from the extension)")
	cmd.Flags().BoolVar(&f.sequential, "sequential", false, "run analyzers one after another")
	cmd.Flags().Int64Var(&f.maxBytes, "max-bytes", analysis.DefaultMaxUploadBytes, "size ceiling in bytes")
	cmd.Flags().DurationVar(&f.timeout, "timeout", time.Minute, "analysis time limit, 0 for none")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "log pipeline events to stderr")
	cmd.Flags().BoolVar(&f.compact, "compact", false, "print the report on one line")
	return cmd
}

func runAnalyze(ctx context.Context, stdout, stderr io.Writer, path string, f analyzeFlags) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	svc := &analysis.Service{
		Ingress: &analysis.Ingress{MaxBytes: f.maxBytes, Logger: logger},
		Orchestrator: &analysis.Orchestrator{
			Extractors: extractor.NewRegistry(logger),
			Text:       analyzer.NewText(logger),
			Image:      analyzer.NewImage(logger),
			Signature:  analyzer.NewSignature(logger),
			Sequential: f.sequential,
			Logger:     logger,
		},
		Timeout: f.timeout,
		Logger:  logger,
	}

	if ctx == nil {
		ctx = context.Background()
	}
	report, err := svc.Analyze(ctx, raw, filepath.Base(path), f.declaredType)
	if err != nil {
		return fmt.Errorf("analyze %s: %w", path, err)
	}

	enc := json.NewEncoder(stdout)
	if !f.compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(report)
}
