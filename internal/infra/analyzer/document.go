// Package analyzer holds the text, image and signature content analyzers.
// Each one reads the temp file itself and reports parse problems as findings;
// only I/O failures are returned as errors.
package analyzer

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/gobeaver/filekit/filevalidator"

	"github.com/bryanwahyu/docforensics/internal/domain/forensics"
)

type class string

const (
	classPDF   class = "pdf"
	classDOCX  class = "docx"
	classDOC   class = "doc"
	classImage class = "image"
	classText  class = "text"
	classOther class = "other"
)

const sniffLen = 512

type document struct {
	info    forensics.FileInfo
	data    []byte
	sniffed string
	class   class

	zr        *zip.Reader // docx only, nil if the package does not open
	truncated []string    // parts cut at maxPartSize
}

func load(ctx context.Context, path string, info forensics.FileInfo) (*document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	d := &document{
		info:    info,
		data:    data,
		sniffed: filevalidator.DetectMIMEFromBytes(head),
	}
	d.class = classify(info.DeclaredType, d.sniffed, head)
	if d.class == classDOCX {
		if zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data))); err == nil {
			d.zr = zr
		}
	}
	return d, nil
}

// classify prefers the declared type and falls back to the sniffed one.
func classify(declared, sniffed string, head []byte) class {
	if c := classOf(declared); c != classOther {
		return c
	}
	if declared != "" && declared != "application/octet-stream" {
		return classOther
	}
	if c := classOf(sniffed); c != classOther {
		return c
	}
	if len(head) > 0 && utf8.Valid(head) {
		return classText
	}
	return classOther
}

func classOf(mimeType string) class {
	switch {
	case mimeType == forensics.TypePDF:
		return classPDF
	case mimeType == forensics.TypeDOCX:
		return classDOCX
	case mimeType == forensics.TypeDOC:
		return classDOC
	case strings.HasPrefix(mimeType, "image/"):
		return classImage
	case strings.HasPrefix(mimeType, "text/"):
		return classText
	}
	return classOther
}

// part returns a docx package part, or nil.
func (d *document) part(name string) []byte {
	if d.zr == nil {
		return nil
	}
	for _, f := range d.zr.File {
		if f.Name != name {
			continue
		}
		data, _, err := d.readPart(f)
		if err != nil {
			return nil
		}
		return data
	}
	return nil
}

// partsWithPrefix lists docx part names under prefix, in archive order.
func (d *document) partsWithPrefix(prefix string) []*zip.File {
	if d.zr == nil {
		return nil
	}
	var out []*zip.File
	for _, f := range d.zr.File {
		if strings.HasPrefix(f.Name, prefix) && !strings.HasSuffix(f.Name, "/") {
			out = append(out, f)
		}
	}
	return out
}

const maxPartSize = 16 << 20

// readPart reads at most maxPartSize bytes of f and remembers parts that
// were cut short.
func (d *document) readPart(f *zip.File) ([]byte, bool, error) {
	data, truncated, err := readZipFile(f)
	if truncated {
		d.truncated = append(d.truncated, f.Name)
	}
	return data, truncated, err
}

// reportTruncated adds a finding for every part readPart cut short.
func (d *document) reportTruncated(b *forensics.ResultBuilder) {
	if len(d.truncated) == 0 {
		return
	}
	b.Detail("truncatedParts", d.truncated)
	b.Add(forensics.SeverityLow, "oversized-part", "Package part only partly analyzed",
		fmt.Sprintf("%d package part(s) exceed %s; only the first %s of each was analyzed.",
			len(d.truncated), humanize.IBytes(maxPartSize), humanize.IBytes(maxPartSize)))
}

func readZipFile(f *zip.File) (data []byte, truncated bool, err error) {
	rc, err := f.Open()
	if err != nil {
		return nil, false, err
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(io.LimitReader(rc, maxPartSize+1)); err != nil {
		return nil, false, err
	}
	if buf.Len() > maxPartSize {
		return buf.Bytes()[:maxPartSize], true, nil
	}
	return buf.Bytes(), false, nil
}

func trim(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
