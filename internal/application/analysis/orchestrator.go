package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/docforensics/internal/application"
	"github.com/bryanwahyu/docforensics/internal/domain/forensics"
)

// Orchestrator runs the metadata extractor and the three content analyzers
// against one temp file and assembles the report.
// Orchestrator is safe for concurrent use; it keeps no per-run state.
type Orchestrator struct {
	Extractors *Registry
	Text       forensics.ContentAnalyzer
	Image      forensics.ContentAnalyzer
	Signature  forensics.ContentAnalyzer

	// Sequential runs the tasks one after another instead of concurrently.
	// Both modes produce the same report.
	Sequential bool

	Clock  application.Clock
	Logger *slog.Logger
}

type outcome struct {
	metadata  forensics.Metadata
	text      *forensics.AnalysisResult
	image     *forensics.AnalysisResult
	signature *forensics.AnalysisResult
}

type task struct {
	name string
	run  func(ctx context.Context) error
}

// Run analyzes the file behind res and releases res before returning, on
// success, failure, panic inside a collaborator, and context cancellation.
// Any collaborator error is returned as forensics.ErrAnalysisFailed; no
// partial report is ever returned.
func (o *Orchestrator) Run(ctx context.Context, info forensics.FileInfo, res *TempFile) (*forensics.Report, error) {
	log := o.logger().With("file", info.Filename, "type", info.DeclaredType)
	defer func() {
		if err := res.Release(); err != nil {
			log.Warn("temp file cleanup failed", "path", res.Path(), "error", err)
			return
		}
		log.Debug("temp file released", "path", res.Path())
	}()

	start := time.Now()
	out, err := o.analyze(ctx, log, info, res.Path())
	if err != nil {
		log.Error("analysis failed", "error", err, "elapsed", time.Since(start))
		return nil, forensics.AnalysisFailed(err)
	}

	report := forensics.AssembleReport(
		info,
		forensics.MergeMetadata(info, out.metadata),
		out.text, out.image, out.signature,
		o.now(),
	)
	log.Info("analysis complete", "elapsed", time.Since(start))
	return report, nil
}

func (o *Orchestrator) analyze(ctx context.Context, log *slog.Logger, info forensics.FileInfo, path string) (*outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out outcome
	ex := o.extractorFor(info.DeclaredType)
	if ex != nil {
		log.Info("metadata extractor selected", "extractor", ex.Name())
	} else {
		log.Info("metadata extractor selected", "extractor", "placeholder")
	}

	tasks := []task{
		{name: "metadata", run: func(ctx context.Context) error {
			if ex == nil {
				out.metadata = forensics.GenericMetadata()
				return nil
			}
			md, err := ex.Extract(ctx, path)
			if err != nil {
				return fmt.Errorf("%s extractor: %w", ex.Name(), err)
			}
			out.metadata = md
			return nil
		}},
		o.analyzerTask(log, o.Text, path, info, &out.text),
		o.analyzerTask(log, o.Image, path, info, &out.image),
		o.analyzerTask(log, o.Signature, path, info, &out.signature),
	}

	if o.Sequential {
		for _, t := range tasks {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := guard(t)(ctx); err != nil {
				return nil, err
			}
		}
	} else {
		// Each task writes a distinct field of out; Wait orders those writes
		// before the reads below.
		eg, gctx := errgroup.WithContext(ctx)
		for _, t := range tasks {
			run := guard(t)
			eg.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return run(gctx)
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (o *Orchestrator) analyzerTask(log *slog.Logger, a forensics.ContentAnalyzer, path string, info forensics.FileInfo, dst **forensics.AnalysisResult) task {
	if a == nil {
		// AssembleReport substitutes the placeholder
		return task{name: "noop", run: func(context.Context) error { return nil }}
	}
	kind := a.Kind()
	return task{name: string(kind), run: func(ctx context.Context) error {
		start := time.Now()
		r, err := a.Analyze(ctx, path, info)
		if err != nil {
			return fmt.Errorf("%s analyzer: %w", kind, err)
		}
		if r == nil {
			return fmt.Errorf("%s analyzer returned no result", kind)
		}
		log.Info("analyzer finished",
			"analyzer", kind,
			"status", r.Status,
			"riskScore", r.RiskScore,
			"findings", len(r.Findings),
			"elapsed", time.Since(start),
		)
		*dst = r
		return nil
	}}
}

// guard converts a panic inside a collaborator into an error.
func guard(t task) func(context.Context) error {
	return func(ctx context.Context) (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("%s: panic: %v", t.name, p)
			}
		}()
		return t.run(ctx)
	}
}

func (o *Orchestrator) extractorFor(declaredType string) forensics.MetadataExtractor {
	if o.Extractors == nil {
		return nil
	}
	return o.Extractors.Lookup(declaredType)
}

func (o *Orchestrator) now() time.Time {
	if o.Clock == nil {
		return application.SystemClock{}.Now()
	}
	return o.Clock.Now()
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}
