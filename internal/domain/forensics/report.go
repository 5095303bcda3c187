package forensics

import "time"

// Placeholder is the section used when an analysis result is missing.
func Placeholder(kind Kind) *AnalysisResult {
	return &AnalysisResult{
		Analyzer:  kind,
		Status:    StatusUnavailable,
		Findings:  []Finding{},
		RiskLevel: RiskLevelNone,
	}
}

// AssembleReport merges file info, metadata and the three analysis results
// into a report. Missing sections are replaced by their placeholders.
func AssembleReport(info FileInfo, md Metadata, text, image, sig *AnalysisResult, completedAt time.Time) *Report {
	if md == nil {
		md = MergeMetadata(info, GenericMetadata())
	}
	if text == nil {
		text = Placeholder(KindText)
	}
	if image == nil {
		image = Placeholder(KindImage)
	}
	if sig == nil {
		sig = Placeholder(KindSignature)
	}
	return &Report{
		FileInfo:       info,
		Success:        true,
		Metadata:       md,
		TextAnalysis:   text,
		ImageAnalysis:  image,
		SignatureCheck: sig,
		CompletedAt:    completedAt,
	}
}
