package extractor

import (
	"context"
	"strings"

	"github.com/bryanwahyu/docforensics/internal/domain/forensics"
)

// Generic is the fallback extractor for types without a dedicated one.
type Generic struct{}

func (Generic) Name() string { return "generic" }

func (Generic) Extract(ctx context.Context, _ string) (forensics.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return forensics.GenericMetadata(), nil
}

func nullable(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}
