package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/docforensics/internal/application/analysis"
	"github.com/bryanwahyu/docforensics/internal/domain/forensics"
	"github.com/bryanwahyu/docforensics/internal/infra/analyzer"
	"github.com/bryanwahyu/docforensics/internal/infra/extractor"
	"github.com/bryanwahyu/docforensics/internal/middleware"
	"github.com/bryanwahyu/docforensics/internal/testutil"
)

type server struct {
	handler http.Handler
	dir     string
	metrics *middleware.Metrics
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServer(t *testing.T, maxBytes int64, mutate func(*analysis.Service, *Options)) *server {
	t.Helper()
	dir := t.TempDir()
	log := quietLogger()
	svc := &analysis.Service{
		Ingress: &analysis.Ingress{MaxBytes: maxBytes, Dir: dir, Logger: log},
		Orchestrator: &analysis.Orchestrator{
			Extractors: extractor.NewRegistry(log),
			Text:       analyzer.NewText(log),
			Image:      analyzer.NewImage(log),
			Signature:  analyzer.NewSignature(log),
			Logger:     log,
		},
		Logger: log,
	}
	opts := Options{
		MaxUploadBytes: maxBytes,
		AllowedOrigins: []string{"http://localhost:5173"},
		Metrics:        middleware.NewMetrics(),
		HealthCheckers: map[string]middleware.HealthChecker{"tempdir": middleware.TempDirChecker{Dir: dir}},
		Logger:         log,
	}
	if mutate != nil {
		mutate(svc, &opts)
	}
	return &server{handler: NewRouter(svc, opts), dir: dir, metrics: opts.Metrics}
}

func (s *server) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

// upload builds a multipart request with one file part. An empty
// contentType leaves the part header out.
func upload(t *testing.T, field, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRoot(t *testing.T) {
	s := newServer(t, 0, nil)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Document Forgery Detection API is running", body["message"])
	assert.Equal(t, Version, body["version"])
	assert.Equal(t, "active", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestHealth(t *testing.T) {
	s := newServer(t, 0, nil)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, body["timestamp"])

	rec = s.do(httptest.NewRequest(http.MethodGet, "/healthz/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assertNoTempFiles(t, s.dir)
}

func TestAnalyzePlainTextNote(t *testing.T) {
	s := newServer(t, 0, nil)
	rec := s.do(upload(t, "file", "note.txt", "", []byte("hello note")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	md := body["metadata"].(map[string]any)
	assert.Equal(t, "note.txt", md["filename"])
	assert.EqualValues(t, 10, md["size"])
	assert.Equal(t, "text/plain", md["type"])
	assert.Equal(t, forensics.NotAvailableAuthor, md["author"])
	assert.Contains(t, md, "createdDate")
	assert.Nil(t, md["createdDate"])
	assert.Nil(t, md["modifiedDate"])

	text := body["textAnalysis"].(map[string]any)
	assert.Equal(t, "completed", text["status"])
	assert.Equal(t, "none", text["riskLevel"])
	assert.Contains(t, body, "imageAnalysis")
	assert.Contains(t, body, "signatureCheck")
	assert.NotEmpty(t, body["analysisTime"])

	assertNoTempFiles(t, s.dir)
}

func TestAnalyzePDFUsesDeclaredType(t *testing.T) {
	s := newServer(t, 0, nil)
	pdf := testutil.PDF(testutil.PDFOptions{Info: map[string]string{"Author": "Alice"}, Text: "Invoice 42"})
	rec := s.do(upload(t, "file", "invoice.bin", "application/pdf", pdf))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	md := decode(t, rec)["metadata"].(map[string]any)
	assert.Equal(t, forensics.TypePDF, md["type"])
	assert.NotEqual(t, forensics.NotAvailableAuthor, md["author"])
	assert.Contains(t, md, extractor.KeyProducer)
	assertNoTempFiles(t, s.dir)
}

func TestAnalyzeEmptyFilename(t *testing.T) {
	s := newServer(t, 0, nil)
	rec := s.do(upload(t, "file", "", "", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["detail"], "No file provided")
	assertNoTempFiles(t, s.dir)
}

func TestAnalyzeWithoutFilePart(t *testing.T) {
	s := newServer(t, 0, nil)
	rec := s.do(upload(t, "document", "note.txt", "", []byte("hello")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file provided", decode(t, rec)["detail"])
}

func TestAnalyzeRejectsNonMultipart(t *testing.T) {
	s := newServer(t, 0, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"file":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := s.do(req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["detail"], "multipart/form-data")
}

func TestAnalyzeOversizeWithSmallCeiling(t *testing.T) {
	s := newServer(t, 1024, nil)
	rec := s.do(upload(t, "file", "big.pdf", "application/pdf", make([]byte, 4096)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["detail"], "File too large")
	assertNoTempFiles(t, s.dir)

	snap := s.metrics.Snapshot()
	assert.EqualValues(t, 1, snap["analyses_rejected"])
	assert.EqualValues(t, 0, snap["analyses_failed"])
}

func TestAnalyzeOversizeFormFieldBeforeFile(t *testing.T) {
	s := newServer(t, 1024, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("notes", strings.Repeat("x", 2<<20)))
	part, err := mw.CreateFormFile("file", "small.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("hello note"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := s.do(req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "File too large (max 1.0 KiB)", decode(t, rec)["detail"])
	assertNoTempFiles(t, s.dir)
	assert.EqualValues(t, 1, s.metrics.Snapshot()["analyses_rejected"])
}

func TestAnalyzeSixtyMiBUpload(t *testing.T) {
	if testing.Short() {
		t.Skip("streams 60 MiB")
	}
	s := newServer(t, 0, nil)

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", "scan.pdf")
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		chunk := make([]byte, 1<<20)
		for i := 0; i < 60; i++ {
			if _, err := part.Write(chunk); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.CloseWithError(mw.Close())
	}()
	defer pr.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", pr)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := s.do(req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["detail"], "File too large")
	assertNoTempFiles(t, s.dir)
}

type brokenAnalyzer struct{ kind forensics.Kind }

func (b brokenAnalyzer) Kind() forensics.Kind { return b.kind }

func (b brokenAnalyzer) Analyze(context.Context, string, forensics.FileInfo) (*forensics.AnalysisResult, error) {
	return nil, errors.New("decoder crashed")
}

func TestAnalyzeFailureReturns500(t *testing.T) {
	s := newServer(t, 0, func(svc *analysis.Service, _ *Options) {
		svc.Orchestrator.Image = brokenAnalyzer{kind: forensics.KindImage}
	})
	rec := s.do(upload(t, "file", "note.txt", "text/plain", []byte("hello note")))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["detail"], "Analysis failed")
	assertNoTempFiles(t, s.dir)
	assert.EqualValues(t, 1, s.metrics.Snapshot()["analyses_failed"])
}

func TestAPIKeyRequiredWhenConfigured(t *testing.T) {
	s := newServer(t, 0, func(_ *analysis.Service, o *Options) {
		o.APIKeys = []string{"k-123"}
	})

	rec := s.do(upload(t, "file", "note.txt", "", []byte("hello note")))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := upload(t, "file", "note.txt", "", []byte("hello note"))
	req.Header.Set("Authorization", "Bearer k-123")
	assert.Equal(t, http.StatusOK, s.do(req).Code)

	assert.Equal(t, http.StatusOK, s.do(httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newServer(t, 0, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/analyze", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := s.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t, 0, nil)
	s.do(upload(t, "file", "note.txt", "", []byte("hello note")))

	rec := s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["analyses_total"])
	assert.EqualValues(t, 10, body["bytes_analyzed"])
}
