package extractor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/bryanwahyu/docforensics/internal/domain/forensics"
)

// PDF metadata keys beyond the common author/created/modified triple.
const (
	KeyCreator    = "creator"
	KeyProducer   = "producer"
	KeyTitle      = "title"
	KeySubject    = "subject"
	KeyKeywords   = "keywords"
	KeyPages      = "pages"
	KeyPDFVersion = "pdfVersion"
	KeyEncrypted  = "encrypted"
	KeyParseError = "parseError"
)

// PDF reads the document information dictionary with pdfcpu.
type PDF struct {
	Logger *slog.Logger
}

func NewPDF(logger *slog.Logger) *PDF {
	return &PDF{Logger: logger}
}

func (p *PDF) Name() string { return "pdf" }

// Extract returns an error only when the file cannot be read. A document
// pdfcpu cannot parse yields null fields and a parseError entry.
func (p *PDF) Extract(ctx context.Context, path string) (forensics.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	md := forensics.Metadata{
		forensics.KeyAuthor:       nil,
		forensics.KeyCreatedDate:  nil,
		forensics.KeyModifiedDate: nil,
		KeyCreator:                nil,
		KeyProducer:               nil,
		KeyTitle:                  nil,
		KeySubject:                nil,
		KeyKeywords:               nil,
		KeyPages:                  nil,
		KeyPDFVersion:             nil,
		KeyEncrypted:              nil,
	}

	pctx, err := readPDF(f)
	if err != nil {
		p.logger().Debug("pdf parse failed", "path", path, "error", err)
		md[KeyParseError] = err.Error()
		return md, nil
	}

	x := pctx.XRefTable
	md[forensics.KeyAuthor] = nullable(x.Author)
	md[forensics.KeyCreatedDate] = pdfDate(x.CreationDate)
	md[forensics.KeyModifiedDate] = pdfDate(x.ModDate)
	md[KeyCreator] = nullable(x.Creator)
	md[KeyProducer] = nullable(x.Producer)
	md[KeyTitle] = nullable(x.Title)
	md[KeySubject] = nullable(x.Subject)
	md[KeyKeywords] = nullable(x.Keywords)
	md[KeyPages] = x.PageCount
	md[KeyPDFVersion] = x.Version().String()
	md[KeyEncrypted] = x.Encrypt != nil
	return md, nil
}

// readPDF parses and validates in relaxed mode. pdfcpu can panic on
// hostile input; that is reported as a parse error.
func readPDF(rs io.ReadSeeker) (pctx *model.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			pctx, err = nil, fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pctx, err = api.ReadContext(rs, conf)
	if err != nil {
		return nil, err
	}
	if err := api.ValidateContext(pctx); err != nil {
		return nil, err
	}
	return pctx, nil
}

// pdfDate renders a PDF date string as RFC 3339, or returns it unchanged
// when it does not parse.
func pdfDate(s string) any {
	if s == "" {
		return nil
	}
	if t, ok := types.DateTime(s, true); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return s
}

func (p *PDF) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
