package extractor

import (
	"log/slog"

	"github.com/bryanwahyu/docforensics/internal/application/analysis"
	"github.com/bryanwahyu/docforensics/internal/domain/forensics"
)

// NewRegistry binds the PDF and Word extractors to their media types with
// Generic as the fallback.
func NewRegistry(logger *slog.Logger) *analysis.Registry {
	reg := analysis.NewRegistry(Generic{})
	reg.Register(NewPDF(logger), forensics.TypePDF)
	reg.Register(NewDOCX(logger), forensics.TypeDOCX, forensics.TypeDOC)
	return reg
}
