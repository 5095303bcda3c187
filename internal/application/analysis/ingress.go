package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gobeaver/filekit/filevalidator"
	"github.com/google/uuid"

	"github.com/bryanwahyu/docforensics/internal/application"
	"github.com/bryanwahyu/docforensics/internal/domain/forensics"
)

// DefaultMaxUploadBytes is the upload ceiling used when none is configured.
const DefaultMaxUploadBytes int64 = 50 << 20

const maxStoredNameLen = 100

// Ingress validates uploads and materialises them as temp files.
type Ingress struct {
	MaxBytes int64  // <= 0 means DefaultMaxUploadBytes
	Dir      string // empty means os.TempDir()
	Clock    application.Clock
	Logger   *slog.Logger
}

// Ingest validates the upload, then writes it to a uniquely named temp file.
// Validation errors are returned before anything touches the disk.
func (in *Ingress) Ingest(ctx context.Context, raw []byte, name, declaredType string) (forensics.FileInfo, *TempFile, error) {
	info, err := in.Accept(raw, name, declaredType)
	if err != nil {
		return forensics.FileInfo{}, nil, err
	}
	res, err := in.Materialize(ctx, info, raw)
	if err != nil {
		return forensics.FileInfo{}, nil, err
	}
	return info, res, nil
}

// Accept checks name and size and builds the FileInfo. No side effects.
func (in *Ingress) Accept(raw []byte, name, declaredType string) (forensics.FileInfo, error) {
	if strings.TrimSpace(name) == "" {
		return forensics.FileInfo{}, forensics.InvalidInput("No file provided")
	}
	max := in.maxBytes()
	if int64(len(raw)) > max {
		return forensics.FileInfo{}, FileTooLarge(max)
	}

	return forensics.FileInfo{
		Filename:     name,
		Size:         int64(len(raw)),
		DeclaredType: ResolveType(name, declaredType),
		ReceivedAt:   in.now(),
	}, nil
}

// FileTooLarge is the error for an upload over max bytes.
func FileTooLarge(max int64) error {
	return forensics.PayloadTooLarge(fmt.Sprintf("File too large (max %s)", humanize.IBytes(uint64(max))))
}

// Materialize writes raw to a new file in the ingress directory. On any
// write failure the partial file is removed.
func (in *Ingress) Materialize(ctx context.Context, info forensics.FileInfo, raw []byte) (*TempFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, forensics.AnalysisFailed(err)
	}

	dir := in.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, uuid.NewString()+"_"+storedName(info.Filename))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, forensics.AnalysisFailed(fmt.Errorf("store upload: %w", err))
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(path)
		return nil, forensics.AnalysisFailed(fmt.Errorf("store upload: %w", err))
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, forensics.AnalysisFailed(fmt.Errorf("store upload: %w", err))
	}

	in.logger().Info("upload accepted",
		"file", info.Filename,
		"size", humanize.IBytes(uint64(info.Size)),
		"type", info.DeclaredType,
		"path", path,
	)
	return newTempFile(path), nil
}

// ResolveType returns the declared media type without parameters, or the
// type inferred from the file extension. Empty when neither is known.
func ResolveType(name, declared string) string {
	if t := normalizeType(declared); t != "" {
		return t
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	if t := filevalidator.MIMETypeForExtension(ext); t != "" {
		return t
	}
	return normalizeType(mime.TypeByExtension(ext))
}

func normalizeType(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.ToLower(strings.TrimSpace(t))
}

// storedName keeps the extension of the upload (some parsers sniff it) while
// dropping path components and characters unsafe for filenames.
func storedName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if len(s) > maxStoredNameLen {
		s = s[len(s)-maxStoredNameLen:]
	}
	if s == "" || s == "." || s == ".." {
		s = "upload"
	}
	return s
}

func (in *Ingress) maxBytes() int64 {
	if in.MaxBytes <= 0 {
		return DefaultMaxUploadBytes
	}
	return in.MaxBytes
}

func (in *Ingress) now() time.Time {
	if in.Clock == nil {
		return application.SystemClock{}.Now()
	}
	return in.Clock.Now()
}

func (in *Ingress) logger() *slog.Logger {
	if in.Logger == nil {
		return slog.Default()
	}
	return in.Logger
}
