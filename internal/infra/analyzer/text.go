package analyzer

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bryanwahyu/docforensics/internal/domain/forensics"
)

// fontThreshold is the number of distinct PDF fonts above which the mix is reported.
const fontThreshold = 4

var (
	baseFontRe   = regexp.MustCompile(`/BaseFont\s*/([A-Za-z0-9+\-_,.#]+)`)
	showTextRe   = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)\s*Tj`)
	subsetPrefix = regexp.MustCompile(`^[A-Z]{6}\+`)
)

// Text inspects the textual layer for signs of manipulation.
type Text struct {
	Logger *slog.Logger
}

func NewText(logger *slog.Logger) *Text {
	return &Text{Logger: logger}
}

func (t *Text) Kind() forensics.Kind { return forensics.KindText }

func (t *Text) Analyze(ctx context.Context, path string, info forensics.FileInfo) (*forensics.AnalysisResult, error) {
	d, err := load(ctx, path, info)
	if err != nil {
		return nil, err
	}
	b := forensics.NewResultBuilder(forensics.KindText)
	b.Detail("source", string(d.class))

	switch d.class {
	case classText:
		if !utf8.Valid(d.data) {
			b.Add(forensics.SeverityInfo, "non-utf8", "Not valid UTF-8",
				"The text is not UTF-8 encoded; characters were decoded with replacement.")
		}
		s := strings.ToValidUTF8(string(d.data), "\ufffd")
		scanText(b, s)
		lineEndings(b, s)
	case classDOCX:
		if d.zr == nil {
			b.Add(forensics.SeverityMedium, "unreadable-package", "Word package could not be opened",
				"The file is declared as a Word document but is not a valid ZIP package.")
			break
		}
		body := d.part("word/document.xml")
		if body == nil {
			b.Add(forensics.SeverityMedium, "missing-body", "Document body missing",
				"word/document.xml is absent or unreadable.")
			break
		}
		w := scanWordXML(body)
		scanText(b, w.text)
		wordRevisions(b, w)
		d.reportTruncated(b)
	case classPDF:
		pdfText(b, d.data)
	case classDOC:
		b.NotApplicable("legacy Word binary format")
	default:
		b.NotApplicable("no textual content")
	}

	r := b.Build()
	t.logger().Debug("text analysis", "file", info.Filename, "class", d.class, "findings", len(r.Findings))
	return r, nil
}

// detectors run against the decoded text. Each one fires at most once.
var textDetectors = []struct {
	code, title string
	severity    forensics.Severity
	match       func(rune) bool
	summary     string
}{
	{
		code: "bidi-override", title: "Bidirectional control characters",
		severity: forensics.SeverityHigh,
		match: func(r rune) bool {
			return (r >= '\u202a' && r <= '\u202e') || (r >= '\u2066' && r <= '\u2069')
		},
		summary: "Found %d bidi override/isolate characters; they can make displayed text differ from stored text.",
	},
	{
		code: "zero-width", title: "Zero-width characters",
		severity: forensics.SeverityMedium,
		match: func(r rune) bool {
			switch r {
			case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff':
				return true
			}
			return false
		},
		summary: "Found %d invisible zero-width characters, a common way to hide or watermark edits.",
	},
	{
		code: "replacement-chars", title: "Encoding damage",
		severity: forensics.SeverityLow,
		match:    func(r rune) bool { return r == utf8.RuneError },
		summary:  "Found %d replacement characters; parts of the text were re-encoded or corrupted.",
	},
}

func scanText(b *forensics.ResultBuilder, s string) {
	// a leading byte order mark is legitimate
	s = strings.TrimPrefix(s, "\ufeff")

	counts := make([]int, len(textDetectors))
	chars := 0
	for _, r := range s {
		chars++
		for i, d := range textDetectors {
			if d.match(r) {
				counts[i]++
			}
		}
	}
	b.Detail("characters", chars)
	for i, d := range textDetectors {
		if counts[i] > 0 {
			b.Add(d.severity, d.code, d.title, fmt.Sprintf(d.summary, counts[i]))
		}
	}

	var mixed []string
	words := strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	b.Detail("words", len(words))
	for _, w := range words {
		if mixedScript(w) {
			mixed = append(mixed, w)
		}
	}
	if len(mixed) > 0 {
		b.Add(forensics.SeverityHigh, "mixed-script", "Look-alike characters from mixed scripts",
			fmt.Sprintf("%d words mix Latin with Cyrillic or Greek letters, e.g. %q.", len(mixed), trim(mixed[0], 32)))
	}
}

func mixedScript(word string) bool {
	var latin, other bool
	for _, r := range word {
		switch {
		case unicode.Is(unicode.Latin, r):
			latin = true
		case unicode.Is(unicode.Cyrillic, r), unicode.Is(unicode.Greek, r):
			other = true
		}
		if latin && other {
			return true
		}
	}
	return false
}

func lineEndings(b *forensics.ResultBuilder, s string) {
	crlf := strings.Count(s, "\r\n")
	lf := strings.Count(s, "\n") - crlf
	if crlf > 0 && lf > 0 {
		b.Add(forensics.SeverityLow, "mixed-line-endings", "Mixed line endings",
			fmt.Sprintf("%d CRLF and %d LF line breaks; the text was likely assembled from different sources.", crlf, lf))
	}
}

type wordScan struct {
	text       string
	insertions int
	deletions  int
	comments   int
	rsids      map[string]bool
}

// scanWordXML collects visible text and revision markup from word/document.xml.
func scanWordXML(data []byte) wordScan {
	w := wordScan{rsids: map[string]bool{}}
	var sb strings.Builder
	dec := xml.NewDecoder(bytes.NewReader(data))
	inText := false
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t", "delText":
				inText = true
			case "ins":
				w.insertions++
			case "del":
				w.deletions++
			case "commentRangeStart":
				w.comments++
			case "p":
				if sb.Len() > 0 {
					sb.WriteByte('\n')
				}
			}
			for _, a := range el.Attr {
				if strings.HasPrefix(a.Name.Local, "rsid") && a.Value != "" {
					w.rsids[a.Value] = true
				}
			}
		case xml.EndElement:
			if el.Name.Local == "t" || el.Name.Local == "delText" {
				inText = false
			}
		case xml.CharData:
			if inText {
				sb.Write(el)
			}
		}
	}
	w.text = sb.String()
	return w
}

func wordRevisions(b *forensics.ResultBuilder, w wordScan) {
	b.Detail("insertions", w.insertions)
	b.Detail("deletions", w.deletions)
	b.Detail("revisionSessions", len(w.rsids))
	if w.insertions+w.deletions > 0 {
		b.Add(forensics.SeverityMedium, "tracked-changes", "Tracked changes present",
			fmt.Sprintf("%d insertions and %d deletions are recorded in the document.", w.insertions, w.deletions))
	}
	if w.comments > 0 {
		b.Add(forensics.SeverityInfo, "comments", "Review comments present",
			fmt.Sprintf("%d comment ranges are anchored in the text.", w.comments))
	}
	if len(w.rsids) > 1 {
		b.Add(forensics.SeverityInfo, "edit-sessions", "Multiple editing sessions",
			fmt.Sprintf("Text carries %d distinct revision session IDs.", len(w.rsids)))
	}
}

func pdfText(b *forensics.ResultBuilder, data []byte) {
	fonts := map[string]map[string]bool{}
	for _, m := range baseFontRe.FindAllSubmatch(data, -1) {
		name := string(m[1])
		base := subsetPrefix.ReplaceAllString(name, "")
		if fonts[base] == nil {
			fonts[base] = map[string]bool{}
		}
		fonts[base][name] = true
	}
	names := make([]string, 0, len(fonts))
	var resubset []string
	for base, variants := range fonts {
		names = append(names, base)
		if len(variants) > 1 {
			resubset = append(resubset, base)
		}
	}
	sort.Strings(names)
	sort.Strings(resubset)
	b.Detail("fonts", names)

	if len(names) > fontThreshold {
		b.Add(forensics.SeverityLow, "many-fonts", "Unusually many fonts",
			fmt.Sprintf("The document uses %d distinct fonts; edited passages often introduce new ones.", len(names)))
	}
	if len(resubset) > 0 {
		b.Add(forensics.SeverityMedium, "font-resubset", "Same font embedded more than once",
			fmt.Sprintf("%s is embedded as separate subsets, as happens when text is added by another tool.", strings.Join(resubset, ", ")))
	}

	if i := bytes.LastIndex(data, []byte("%%EOF")); i >= 0 {
		tail := bytes.TrimSpace(data[i+len("%%EOF"):])
		if len(tail) > 0 {
			b.Add(forensics.SeverityHigh, "trailing-data", "Data after end of file marker",
				fmt.Sprintf("%d bytes follow the final %%%%EOF marker.", len(tail)))
		}
	}

	var shown []string
	for _, m := range showTextRe.FindAllSubmatch(data, -1) {
		shown = append(shown, string(m[1]))
	}
	if len(shown) > 0 {
		scanText(b, strings.ToValidUTF8(strings.Join(shown, " "), "\ufffd"))
	}
}

func (t *Text) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}
