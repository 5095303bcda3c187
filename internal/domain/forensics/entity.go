package forensics

import (
	"time"
)

// Kind identifies a content analyzer
type Kind string

const (
	KindText      Kind = "text"
	KindImage     Kind = "image"
	KindSignature Kind = "signature"
)

// Status of a single analysis section
type Status string

const (
	StatusCompleted     Status = "completed"
	StatusNotApplicable Status = "not_applicable"
	StatusUnavailable   Status = "unavailable"
)

// Severity of a finding
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Well-known declared types used for extractor dispatch.
const (
	TypePDF  = "application/pdf"
	TypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	TypeDOC  = "application/msword"
)

// FileInfo describes an accepted upload. Created once by ingress, never mutated.
type FileInfo struct {
	Filename     string    `json:"filename"`
	Size         int64     `json:"size"`
	DeclaredType string    `json:"type,omitempty"` // empty when neither declared nor inferable
	ReceivedAt   time.Time `json:"receivedAt"`
}

// SeverityCounts value object
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Finding is one structured observation made by an analyzer.
type Finding struct {
	Code     string   `json:"code"`
	Title    string   `json:"title"`
	Severity Severity `json:"severity"`
	Summary  string   `json:"summary"`
}

// AnalysisResult is the output of one content analyzer. The orchestrator
// only checks for its presence.
type AnalysisResult struct {
	Analyzer  Kind           `json:"analyzer"`
	Status    Status         `json:"status"`
	Findings  []Finding      `json:"findings"`
	Counts    SeverityCounts `json:"counts"`
	RiskScore int            `json:"riskScore"`
	RiskLevel string         `json:"riskLevel"`
	Details   map[string]any `json:"details,omitempty"`
}

// Report is the consolidated verdict for one upload.
type Report struct {
	FileInfo       FileInfo        `json:"-"`
	Success        bool            `json:"success"`
	Metadata       Metadata        `json:"metadata"`
	TextAnalysis   *AnalysisResult `json:"textAnalysis"`
	ImageAnalysis  *AnalysisResult `json:"imageAnalysis"`
	SignatureCheck *AnalysisResult `json:"signatureCheck"`
	CompletedAt    time.Time       `json:"analysisTime"`
}
