package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bryanwahyu/docforensics/internal/application/analysis"
	"github.com/bryanwahyu/docforensics/internal/domain/forensics"
	"github.com/bryanwahyu/docforensics/internal/middleware"
)

// Version is reported by GET /.
const Version = "1.0.0"

// fileField is the multipart field holding the upload.
const fileField = "file"

// multipartOverhead is allowed on top of the upload ceiling for part headers
// and boundaries.
const multipartOverhead = 1 << 20

// Options configures the router. Zero values disable the optional parts.
type Options struct {
	MaxUploadBytes int64 // <= 0 means analysis.DefaultMaxUploadBytes
	AllowedOrigins []string
	APIKeys        []string
	RateLimiter    *middleware.RateLimiter
	Metrics        *middleware.Metrics
	HealthCheckers map[string]middleware.HealthChecker
	Logger         *slog.Logger
}

type Router struct {
	svc     *analysis.Service
	opts    Options
	metrics *middleware.Metrics
	log     *slog.Logger
}

func NewRouter(svc *analysis.Service, opts Options) http.Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = analysis.DefaultMaxUploadBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = middleware.NewMetrics()
	}
	r := &Router{svc: svc, opts: opts, metrics: opts.Metrics, log: opts.Logger}

	mux := chi.NewRouter()
	mux.Use(chimw.RealIP)
	mux.Use(middleware.Logging(opts.Logger))
	mux.Use(chimw.Recoverer)
	mux.Use(r.metrics.Middleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	if opts.RateLimiter != nil {
		mux.Use(middleware.RateLimit(opts.RateLimiter))
	}

	mux.Get("/", r.handleRoot)
	mux.Get("/health", middleware.HealthHandler(opts.HealthCheckers))
	mux.Get("/healthz/ready", middleware.ReadinessHandler(opts.HealthCheckers))
	mux.Get("/healthz/live", middleware.LivenessHandler)
	mux.Get("/metrics", r.metrics.Handler)

	mux.Route("/api", func(rt chi.Router) {
		rt.Post("/analyze", r.wrap(r.handleAnalyze))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, forensics.ErrInvalidInput) || errors.Is(err, forensics.ErrPayloadTooLarge) {
				status = http.StatusBadRequest
			} else {
				r.log.Error("request failed", "path", req.URL.Path, "error", err)
			}
			writeJSON(w, status, map[string]string{"detail": forensics.DetailOf(err)})
		}
	}
}

// GET /
func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Document Forgery Detection API is running",
		"version":   Version,
		"status":    "active",
		"timestamp": time.Now().UTC(),
	})
}

// POST /api/analyze
// Body: multipart/form-data with the document in the "file" field.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	finish := r.metrics.AnalysisStarted()
	raw, name, declared, err := r.readUpload(w, req)
	if err != nil {
		finish(0, middleware.OutcomeRejected)
		return err
	}

	report, err := r.svc.Analyze(req.Context(), raw, name, declared)
	switch {
	case err == nil:
		finish(len(raw), middleware.OutcomeOK)
	case errors.Is(err, forensics.ErrInvalidInput), errors.Is(err, forensics.ErrPayloadTooLarge):
		finish(len(raw), middleware.OutcomeRejected)
		return err
	default:
		finish(len(raw), middleware.OutcomeFailed)
		return err
	}

	writeJSON(w, http.StatusOK, report)
	return nil
}

// readUpload streams the multipart body and returns the first "file" part.
// At most MaxUploadBytes+1 bytes of it are read, so an oversize upload is
// detected without buffering the rest.
func (r *Router) readUpload(w http.ResponseWriter, req *http.Request) ([]byte, string, string, error) {
	req.Body = http.MaxBytesReader(w, req.Body, r.opts.MaxUploadBytes+multipartOverhead)
	mr, err := req.MultipartReader()
	if err != nil {
		return nil, "", "", forensics.InvalidInput("Expected a multipart/form-data body with a file field")
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, "", "", forensics.InvalidInput("No file provided")
		}
		if err != nil {
			return nil, "", "", r.uploadError(req, err)
		}
		if part.FormName() != fileField {
			part.Close()
			continue
		}

		raw, err := io.ReadAll(io.LimitReader(part, r.opts.MaxUploadBytes+1))
		if err != nil {
			return nil, "", "", r.uploadError(req, err)
		}
		name := middleware.SanitizeFilename(part.FileName())
		return raw, name, part.Header.Get("Content-Type"), nil
	}
}

// uploadError maps a multipart read failure. A body cut off by the size
// ceiling reads as a malformed part, so the body itself is asked whether the
// limit was hit.
func (r *Router) uploadError(req *http.Request, err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return analysis.FileTooLarge(r.opts.MaxUploadBytes)
	}
	if _, bodyErr := req.Body.Read(make([]byte, 1)); errors.As(bodyErr, &tooBig) {
		return analysis.FileTooLarge(r.opts.MaxUploadBytes)
	}
	return forensics.InvalidInput("Malformed multipart body")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
