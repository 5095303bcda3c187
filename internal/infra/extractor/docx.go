package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bryanwahyu/docforensics/internal/domain/forensics"
)

// Word metadata keys beyond the common triple.
const (
	KeyLastModifiedBy = "lastModifiedBy"
	KeyRevision       = "revision"
	KeyApplication    = "application"
	KeyAppVersion     = "appVersion"
	KeyTotalEditTime  = "totalEditTime"
	KeyFormat         = "format"
)

// FormatLegacyDoc marks a binary Word 97-2003 file, whose properties are not read.
const FormatLegacyDoc = "legacy-doc"

// maxPartSize bounds how much of a single package part is decompressed.
const maxPartSize = 4 << 20

// oleMagic starts every OLE2 compound file, including legacy .doc.
var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

type coreProperties struct {
	Title          string `xml:"title"`
	Creator        string `xml:"creator"`
	LastModifiedBy string `xml:"lastModifiedBy"`
	Revision       string `xml:"revision"`
	Created        string `xml:"created"`
	Modified       string `xml:"modified"`
}

type appProperties struct {
	Application string `xml:"Application"`
	AppVersion  string `xml:"AppVersion"`
	TotalTime   string `xml:"TotalTime"`
}

// DOCX reads the OOXML core and extended properties parts.
type DOCX struct {
	Logger *slog.Logger
}

func NewDOCX(logger *slog.Logger) *DOCX {
	return &DOCX{Logger: logger}
}

func (d *DOCX) Name() string { return "docx" }

// Extract returns an error only for I/O failures.
func (d *DOCX) Extract(ctx context.Context, path string) (forensics.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat docx: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	md := forensics.Metadata{
		forensics.KeyAuthor:       nil,
		forensics.KeyCreatedDate:  nil,
		forensics.KeyModifiedDate: nil,
		KeyLastModifiedBy:         nil,
		KeyRevision:               nil,
		KeyTitle:                  nil,
		KeyApplication:            nil,
		KeyAppVersion:             nil,
		KeyTotalEditTime:          nil,
	}

	head := make([]byte, len(oleMagic))
	if _, err := io.ReadFull(f, head); err == nil && bytes.Equal(head, oleMagic) {
		md[KeyFormat] = FormatLegacyDoc
		return md, nil
	}

	zr, err := zip.NewReader(f, st.Size())
	if err != nil {
		d.logger().Debug("docx is not a zip package", "path", path, "error", err)
		md[KeyParseError] = err.Error()
		return md, nil
	}

	var core coreProperties
	found, err := readXMLPart(zr, "docProps/core.xml", &core)
	switch {
	case err != nil:
		md[KeyParseError] = err.Error()
	case found:
		md[forensics.KeyAuthor] = nullable(core.Creator)
		md[forensics.KeyCreatedDate] = w3cDate(core.Created)
		md[forensics.KeyModifiedDate] = w3cDate(core.Modified)
		md[KeyLastModifiedBy] = nullable(core.LastModifiedBy)
		md[KeyRevision] = nullable(core.Revision)
		md[KeyTitle] = nullable(core.Title)
	}

	var app appProperties
	found, err = readXMLPart(zr, "docProps/app.xml", &app)
	switch {
	case err != nil:
		if _, ok := md[KeyParseError]; !ok {
			md[KeyParseError] = err.Error()
		}
	case found:
		md[KeyApplication] = nullable(app.Application)
		md[KeyAppVersion] = nullable(app.AppVersion)
		md[KeyTotalEditTime] = nullable(app.TotalTime)
	}
	return md, nil
}

// readXMLPart decodes the named part into v. found is false when the
// package has no such part.
func readXMLPart(zr *zip.Reader, name string, v any) (found bool, err error) {
	data, err := readZipPart(zr, name)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return true, err
	}
	if err := xml.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("%s: %w", name, err)
	}
	return true, nil
}

// readZipPart returns the decompressed content of the named part, bounded by
// maxPartSize. Part names are matched case-insensitively.
func readZipPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, zf := range zr.File {
		if !strings.EqualFold(zf.Name, name) {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, maxPartSize))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return data, nil
	}
	return nil, os.ErrNotExist
}

func w3cDate(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return s
}

func (d *DOCX) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
