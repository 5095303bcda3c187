package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/bryanwahyu/docforensics/internal/domain/forensics"
)

// Service is the analyze use-case: ingest an upload, run the orchestrator,
// and return the report. Safe for concurrent use.
type Service struct {
	Ingress      *Ingress
	Orchestrator *Orchestrator
	Cache        *ResultCache  // optional
	Timeout      time.Duration // per-run bound, 0 disables
	Logger       *slog.Logger

	// OnCacheHit, if set, is called each time a report comes from Cache.
	OnCacheHit func()
}

// Analyze validates and analyzes one upload. Validation failures are
// returned before any temp file exists; on every other path the temp file is
// gone by the time Analyze returns.
func (s *Service) Analyze(ctx context.Context, raw []byte, name, declaredType string) (*forensics.Report, error) {
	info, err := s.Ingress.Accept(raw, name, declaredType)
	if err != nil {
		s.logger().Warn("upload rejected", "file", name, "size", len(raw), "error", err)
		return nil, err
	}

	if r, ok := s.Cache.Get(raw, info, s.Orchestrator.now()); ok {
		s.logger().Info("analysis served from cache", "file", info.Filename, "type", info.DeclaredType)
		if s.OnCacheHit != nil {
			s.OnCacheHit()
		}
		return r, nil
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	res, err := s.Ingress.Materialize(ctx, info, raw)
	if err != nil {
		return nil, err
	}
	report, err := s.Orchestrator.Run(ctx, info, res)
	if err != nil {
		return nil, err
	}
	s.Cache.Put(raw, report)
	return report, nil
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
