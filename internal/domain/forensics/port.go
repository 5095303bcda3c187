package forensics

import "context"

// MetadataExtractor port. Implementations read the file at path and must not
// modify, rename or delete it.
type MetadataExtractor interface {
	Name() string
	Extract(ctx context.Context, path string) (Metadata, error)
}

// ContentAnalyzer port. Same file contract as MetadataExtractor.
type ContentAnalyzer interface {
	Kind() Kind
	Analyze(ctx context.Context, path string, info FileInfo) (*AnalysisResult, error)
}
