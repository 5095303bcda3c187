package forensics

// MaxFindings caps the findings kept per analysis.
const MaxFindings = 20

// Risk levels derived from RiskScore.
const (
	RiskLevelNone   = "none"
	RiskLevelLow    = "low"
	RiskLevelMedium = "medium"
	RiskLevelHigh   = "high"
)

var severityWeight = map[Severity]int{
	SeverityCritical: 40,
	SeverityHigh:     25,
	SeverityMedium:   10,
	SeverityLow:      3,
}

// ResultBuilder accumulates findings for one analyzer and computes counts and
// risk on Build. Not safe for concurrent use.
type ResultBuilder struct {
	kind     Kind
	status   Status
	findings []Finding
	seen     map[string]bool
	details  map[string]any
}

func NewResultBuilder(kind Kind) *ResultBuilder {
	return &ResultBuilder{
		kind:    kind,
		status:  StatusCompleted,
		seen:    map[string]bool{},
		details: map[string]any{},
	}
}

// Add records a finding. Findings with a code already recorded are dropped.
func (b *ResultBuilder) Add(sev Severity, code, title, summary string) {
	if b.seen[code] {
		return
	}
	b.seen[code] = true
	b.findings = append(b.findings, Finding{
		Code:     code,
		Title:    title,
		Severity: sev,
		Summary:  summary,
	})
}

// Detail sets a key in the result details.
func (b *ResultBuilder) Detail(key string, value any) {
	b.details[key] = value
}

// NotApplicable marks the analysis as not applicable to the file type.
func (b *ResultBuilder) NotApplicable(reason string) {
	b.status = StatusNotApplicable
	b.details["reason"] = reason
}

// Has reports whether a finding with code was recorded.
func (b *ResultBuilder) Has(code string) bool {
	return b.seen[code]
}

func (b *ResultBuilder) Build() *AnalysisResult {
	findings := b.findings
	if findings == nil {
		findings = []Finding{}
	}
	if len(findings) > MaxFindings {
		findings = findings[:MaxFindings]
	}

	var c SeverityCounts
	score := 0
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			c.Critical++
		case SeverityHigh:
			c.High++
		case SeverityMedium:
			c.Medium++
		case SeverityLow:
			c.Low++
		}
		score += severityWeight[f.Severity]
	}
	// info findings are not counted
	c.Total = c.Critical + c.High + c.Medium + c.Low
	if score > 100 {
		score = 100
	}

	var details map[string]any
	if len(b.details) > 0 {
		details = b.details
	}
	return &AnalysisResult{
		Analyzer:  b.kind,
		Status:    b.status,
		Findings:  findings,
		Counts:    c,
		RiskScore: score,
		RiskLevel: RiskLevel(score),
		Details:   details,
	}
}

// RiskLevel maps a 0-100 score to a level.
func RiskLevel(score int) string {
	switch {
	case score >= 50:
		return RiskLevelHigh
	case score >= 20:
		return RiskLevelMedium
	case score > 0:
		return RiskLevelLow
	default:
		return RiskLevelNone
	}
}
