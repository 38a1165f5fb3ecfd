// Package api exposes billing preview, apply and run history over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/billing-sync/internal/model"
	"github.com/sells-group/billing-sync/internal/reconcile"
)

// Syncer is the billing sync engine behind the API.
type Syncer interface {
	Preview(ctx context.Context, data []byte, opts reconcile.PreviewOptions) (*model.PreviewResult, error)
	Apply(ctx context.Context, data []byte, opts reconcile.ApplyOptions) (*model.ApplyResult, error)
	Runs(ctx context.Context, limit int) ([]model.SyncRun, error)
}

// Options configures the router.
type Options struct {
	MaxUploadBytes int64
	CORSOrigins    []string
	// Validate is the default for preview requests that omit the validate field.
	Validate bool
}

type handler struct {
	sync Syncer
	opts Options
}

// NewRouter builds the HTTP handler.
func NewRouter(s Syncer, opts Options) http.Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	h := &handler{sync: s, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-User"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/billing", func(r chi.Router) {
		r.Post("/preview", h.preview)
		r.Post("/apply", h.apply)
		r.Get("/runs", h.runs)
	})
	return r
}

func (h *handler) preview(w http.ResponseWriter, r *http.Request) {
	data, _, ok := h.upload(w, r)
	if !ok {
		return
	}
	opts := reconcile.PreviewOptions{Validate: formBool(r, "validate", h.opts.Validate)}

	res, err := h.sync.Preview(r.Context(), data, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) apply(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := h.upload(w, r)
	if !ok {
		return
	}
	opts := reconcile.ApplyOptions{
		DryRun:     formBool(r, "dryRun", false),
		UploadedBy: r.Header.Get("X-User"),
		SourceFile: filename,
	}

	res, err := h.sync.Apply(r.Context(), data, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) runs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.sync.Runs(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.SyncRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// upload reads the multipart "file" part. It writes the error response and
// returns ok=false when the upload is missing or too large.
func (h *handler) upload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("upload too large"))
			return nil, "", false
		}
		writeJSON(w, http.StatusBadRequest, errorBody("No file uploaded"))
		return nil, "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("No file uploaded"))
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, err)
		return nil, "", false
	}
	return data, header.Filename, true
}

func formBool(r *http.Request, key string, def bool) bool {
	v := r.FormValue(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	zap.L().Error("api: request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
