package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/gobeaver/filekit/filevalidator"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/bryanwahyu/docforensics/internal/domain/forensics"
)

// maxEmbeddedImages bounds how many embedded images are inspected per document.
const maxEmbeddedImages = 32

var (
	pdfImageRe = regexp.MustCompile(`/Subtype\s*/Image`)
	dctRe      = regexp.MustCompile(`/DCTDecode`)

	soiMarker  = []byte{0xFF, 0xD8, 0xFF}
	dqtMarker  = []byte{0xFF, 0xDB}
	exifHeader = []byte("Exif\x00\x00")
)

// editors whose names end up in image metadata segments.
var editors = []string{
	"Adobe Photoshop",
	"Photoshop 3.0",
	"GIMP",
	"paint.net",
	"Pixelmator",
	"Affinity Photo",
	"Adobe Lightroom",
	"Snapseed",
	"Canva",
}

// Image inspects image files and images embedded in documents.
type Image struct {
	Logger *slog.Logger
}

func NewImage(logger *slog.Logger) *Image {
	return &Image{Logger: logger}
}

func (a *Image) Kind() forensics.Kind { return forensics.KindImage }

func (a *Image) Analyze(ctx context.Context, p string, info forensics.FileInfo) (*forensics.AnalysisResult, error) {
	d, err := load(ctx, p, info)
	if err != nil {
		return nil, err
	}
	b := forensics.NewResultBuilder(forensics.KindImage)

	switch {
	case d.class == classImage || strings.HasPrefix(d.sniffed, "image/"):
		b.Detail("imageCount", 1)
		inspectImage(b, d.data, info.DeclaredType, "The file")
	case d.class == classPDF:
		pdfImages(b, d.data)
	case d.class == classDOCX:
		if err := docxImages(ctx, b, d); err != nil {
			return nil, err
		}
	case d.class == classDOC:
		b.NotApplicable("legacy Word binary format")
	default:
		b.NotApplicable("no image content")
	}

	r := b.Build()
	a.logger().Debug("image analysis", "file", info.Filename, "class", d.class, "findings", len(r.Findings))
	return r, nil
}

// inspectImage checks a single encoded image. declared may be empty. label
// names the image in summaries and must not carry the upload's filename:
// results are shared between uploads with identical content.
func inspectImage(b *forensics.ResultBuilder, data []byte, declared, label string) {
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	sniffed := filevalidator.DetectMIMEFromBytes(head)
	if strings.HasPrefix(declared, "image/") && sniffed != declared && !sameImageType(declared, sniffed) {
		b.Add(forensics.SeverityHigh, "type-mismatch", "Content does not match declared type",
			fmt.Sprintf("%s is declared as %s but its content is %s.", label, declared, sniffed))
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		b.Add(forensics.SeverityMedium, "undecodable-image", "Image cannot be decoded",
			fmt.Sprintf("%s: %v", label, err))
	} else {
		b.Detail("format", format)
		b.Detail("width", cfg.Width)
		b.Detail("height", cfg.Height)
		if verr := filevalidator.DefaultImageValidator().ValidateContent(bytes.NewReader(data), int64(len(data))); verr != nil {
			b.Add(forensics.SeverityLow, "image-constraints", "Image outside normal bounds",
				fmt.Sprintf("%s: %s", label, filevalidator.GetErrorMessage(verr)))
		}
	}

	if ed := editorMarker(data); ed != "" {
		b.Add(forensics.SeverityMedium, "editing-software", "Edited with image software",
			fmt.Sprintf("%s carries a %s marker.", label, ed))
	}

	if sniffed == "image/jpeg" {
		jpegStructure(b, data, label)
	}
}

func sameImageType(a, b string) bool {
	alias := func(s string) string {
		switch s {
		case "image/jpg", "image/pjpeg":
			return "image/jpeg"
		case "image/x-png":
			return "image/png"
		}
		return s
	}
	return alias(a) == alias(b)
}

func editorMarker(data []byte) string {
	for _, ed := range editors {
		if bytes.Contains(data, []byte(ed)) {
			return ed
		}
	}
	return ""
}

// jpegStructure looks at marker counts. A camera JPEG carries one image and
// one or two quantisation tables; more suggests re-saving or splicing.
func jpegStructure(b *forensics.ResultBuilder, data []byte, label string) {
	exif := bytes.Contains(data, exifHeader)
	b.Detail("exif", exif)

	soi := bytes.Count(data, soiMarker)
	dqt := bytes.Count(data, dqtMarker)
	b.Detail("jpegImages", soi)
	b.Detail("quantisationTables", dqt)

	if dqt > 2 && soi <= 1 {
		b.Add(forensics.SeverityLow, "multiple-quantisation", "Multiple quantisation tables",
			fmt.Sprintf("%s has %d DQT segments, consistent with recompression.", label, dqt))
	}
	if soi > 2 {
		b.Add(forensics.SeverityLow, "embedded-jpeg", "Several embedded JPEG streams",
			fmt.Sprintf("%s contains %d JPEG start markers.", label, soi))
	}
	if !exif {
		b.Add(forensics.SeverityInfo, "no-exif", "No EXIF metadata",
			fmt.Sprintf("%s carries no camera metadata; it may have been exported or stripped.", label))
	}
}

func pdfImages(b *forensics.ResultBuilder, data []byte) {
	count := len(pdfImageRe.FindAllIndex(data, -1))
	b.Detail("imageCount", count)

	inspected := 0
	for i, loc := range dctRe.FindAllIndex(data, -1) {
		if inspected >= maxEmbeddedImages {
			break
		}
		img := streamAfter(data, loc[1])
		if img == nil {
			continue
		}
		inspected++
		inspectImage(b, img, "image/jpeg", fmt.Sprintf("embedded image %d", i+1))
	}
	b.Detail("inspectedImages", inspected)
}

// streamAfter returns the body of the first stream that starts after off.
func streamAfter(data []byte, off int) []byte {
	rest := data[off:]
	i := bytes.Index(rest, []byte("stream"))
	if i < 0 {
		return nil
	}
	body := rest[i+len("stream"):]
	switch {
	case bytes.HasPrefix(body, []byte("\r\n")):
		body = body[2:]
	case bytes.HasPrefix(body, []byte("\n")):
		body = body[1:]
	}
	end := bytes.Index(body, []byte("endstream"))
	if end < 0 {
		return nil
	}
	return bytes.TrimRight(body[:end], "\r\n")
}

func docxImages(ctx context.Context, b *forensics.ResultBuilder, d *document) error {
	if d.zr == nil {
		b.NotApplicable("word package could not be opened")
		return nil
	}
	media := d.partsWithPrefix("word/media/")
	b.Detail("imageCount", len(media))

	var names []string
	for i, f := range media {
		if i >= maxEmbeddedImages {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		data, truncated, err := d.readPart(f)
		if err != nil {
			b.Add(forensics.SeverityLow, "unreadable-media", "Embedded media unreadable",
				fmt.Sprintf("%s: %v", f.Name, err))
			continue
		}
		names = append(names, path.Base(f.Name))
		if truncated {
			// a cut image would decode as corrupt
			continue
		}
		declared := filevalidator.MIMETypeForExtension(strings.ToLower(path.Ext(f.Name)))
		if !strings.HasPrefix(declared, "image/") {
			continue
		}
		inspectImage(b, data, declared, path.Base(f.Name))
	}
	b.Detail("media", names)
	d.reportTruncated(b)
	return nil
}

func (a *Image) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}
