// Package testutil builds small, well-formed documents for tests.
package testutil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// PDFOptions describes a single-page PDF.
type PDFOptions struct {
	Info    map[string]string // document information entries, e.g. "Author"
	Text    string            // shown on the page
	Fonts   []string          // base fonts; defaults to Helvetica
	Extra   []string          // additional object bodies, numbered after the built-in ones
	Version string            // header version, defaults to 1.4
}

// PDF renders a PDF with a correct cross-reference table.
func PDF(o PDFOptions) []byte {
	if o.Version == "" {
		o.Version = "1.4"
	}
	if len(o.Fonts) == 0 {
		o.Fonts = []string{"Helvetica"}
	}
	text := o.Text
	if text == "" {
		text = "Hello"
	}

	// 1 catalog, 2 pages, 3 page, 4 contents, 5.. fonts, then info, then extras
	fontBase := 5
	infoNum := fontBase + len(o.Fonts)

	var fontRefs bytes.Buffer
	var content bytes.Buffer
	content.WriteString("BT ")
	for i := range o.Fonts {
		fmt.Fprintf(&fontRefs, "/F%d %d 0 R ", i+1, fontBase+i)
		fmt.Fprintf(&content, "/F%d 12 Tf 72 %d Td (%s) Tj ", i+1, 720-20*i, text)
	}
	content.WriteString("ET")

	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << %s>> >> /Contents 4 0 R >>", fontRefs.String()),
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", content.Len(), content.String()),
	}
	for _, f := range o.Fonts {
		objs = append(objs, fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /%s >>", f))
	}

	keys := make([]string, 0, len(o.Info))
	for k := range o.Info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var info bytes.Buffer
	info.WriteString("<< ")
	for _, k := range keys {
		fmt.Fprintf(&info, "/%s (%s) ", k, o.Info[k])
	}
	info.WriteString(">>")
	objs = append(objs, info.String())
	objs = append(objs, o.Extra...)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n", o.Version)
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, infoNum, xref)
	return buf.Bytes()
}

// Zip builds an archive with the given parts in name order.
func Zip(parts map[string]string) []byte {
	names := make([]string, 0, len(parts))
	for n := range parts {
		names = append(names, n)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, n := range names {
		w, err := zw.Create(n)
		if err != nil {
			panic(err)
		}
		if _, err := w.Write([]byte(parts[n])); err != nil {
			panic(err)
		}
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// CoreXML is a docProps/core.xml part.
func CoreXML(creator, lastModifiedBy, revision, created, modified string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">` +
		`<dc:title>Contract</dc:title>` +
		`<dc:creator>` + creator + `</dc:creator>` +
		`<cp:lastModifiedBy>` + lastModifiedBy + `</cp:lastModifiedBy>` +
		`<cp:revision>` + revision + `</cp:revision>` +
		`<dcterms:created xsi:type="dcterms:W3CDTF">` + created + `</dcterms:created>` +
		`<dcterms:modified xsi:type="dcterms:W3CDTF">` + modified + `</dcterms:modified>` +
		`</cp:coreProperties>`
}

// AppXML is a docProps/app.xml part.
func AppXML(application, version, totalTime string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties">` +
		`<Application>` + application + `</Application>` +
		`<AppVersion>` + version + `</AppVersion>` +
		`<TotalTime>` + totalTime + `</TotalTime>` +
		`</Properties>`
}

// DocumentXML wraps body in a word/document.xml part.
func DocumentXML(body string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`
}

// PNG encodes a w x h gradient.
func PNG(w, h int) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, gradient(w, h)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEG encodes a w x h gradient at the given quality.
func JPEG(w, h, quality int) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(w, h), &jpeg.Options{Quality: quality}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

// WriteFile stores data under a fresh temp dir and returns its path.
func WriteFile(t testing.TB, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}
