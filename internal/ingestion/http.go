package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/mediapipe/internal/media"
	"github.com/your-org/mediapipe/internal/posts"
	"github.com/your-org/mediapipe/pkg/tracing"
)

// fileFields are the multipart fields that may carry media, in the order
// they are collected.
var fileFields = []string{"files", "video", "image"}

// HTTPHandler exposes REST endpoints for the ingestion service.
type HTTPHandler struct {
	service      *Service
	logger       *zap.Logger
	maxSizeBytes int64
	formMemBytes int64
	maxFiles     int
	stagingDir   string
	router       chi.Router
}

type HTTPParams struct {
	Service      *Service
	Logger       *zap.Logger
	MaxSizeBytes int64
	FormMemBytes int64
	MaxFiles     int
	// StagingDir receives uploaded files before they enter the pipeline.
	StagingDir string
}

// NewHTTPHandler constructs the HTTP handler and wires routes.
func NewHTTPHandler(p HTTPParams) *HTTPHandler {
	maxFiles := p.MaxFiles
	if maxFiles <= 0 || maxFiles > MaxAssets {
		maxFiles = MaxAssets
	}
	maxSize := p.MaxSizeBytes
	if maxSize <= 0 {
		maxSize = 10 << 30
	}
	formMem := p.FormMemBytes
	if formMem <= 0 {
		formMem = 32 << 20
	}
	h := &HTTPHandler{
		service:      p.Service,
		logger:       p.Logger,
		maxSizeBytes: maxSize,
		formMemBytes: formMem,
		maxFiles:     maxFiles,
		stagingDir:   p.StagingDir,
	}
	h.buildRouter()
	return h
}

func (h *HTTPHandler) buildRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(tracing.Middleware)

	// Uploads transcode inside the request, so they get no timeout here.
	r.Post("/api/v1/uploads", h.handleUpload)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/healthz", h.handleHealth)
		r.Get("/api/v1/uploads/{uploadID}/progress", h.handleProgress)
		r.Delete("/api/v1/posts/{postID}", h.handleDelete)
	})

	h.router = r
}

// Router exposes the configured chi router.
func (h *HTTPHandler) Router() http.Handler {
	return h.router
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *HTTPHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > 0 && r.ContentLength > h.maxSizeBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSizeBytes)

	if err := r.ParseMultipartForm(h.formMemBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	var headers []*multipart.FileHeader
	for _, field := range fileFields {
		headers = append(headers, r.MultipartForm.File[field]...)
	}
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "at least one file is required")
		return
	}
	if len(headers) > h.maxFiles {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d files are allowed", h.maxFiles))
		return
	}

	uploadID := strings.TrimSpace(r.FormValue("uploadId"))
	if uploadID == "" {
		uploadID = uuid.NewString()
	}

	assets, err := h.stage(headers)
	if err != nil {
		h.logger.Error("stage upload failed", zap.String("upload_id", uploadID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not read upload")
		return
	}

	rec, err := h.service.Ingest(r.Context(), IngestRequest{
		RequestID:      uploadID,
		OwnerID:        strings.TrimSpace(r.FormValue("userId")),
		Description:    r.FormValue("description"),
		BrandName:      strings.TrimSpace(r.FormValue("brandName")),
		BrandURL:       strings.TrimSpace(r.FormValue("brandUrl")),
		CommercialType: strings.TrimSpace(r.FormValue("commercialType")),
		Assets:         assets,
	})
	if err != nil {
		status, msg := errorResponse(err)
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"upload_id": uploadID,
		"data":      rec,
	})
}

// stage copies every uploaded part to its own file in the staging dir.
// On failure the files staged so far are removed.
func (h *HTTPHandler) stage(headers []*multipart.FileHeader) (assets []media.Asset, err error) {
	if err := os.MkdirAll(h.stagingDir, 0o755); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			for _, a := range assets {
				os.Remove(a.Path) //nolint:errcheck
			}
			assets = nil
		}
	}()

	for i, fh := range headers {
		path, err := h.stageOne(fh)
		if path != "" {
			assets = append(assets, media.Asset{Path: path, MIMEType: mimeTypeOf(fh), Position: i})
		}
		if err != nil {
			return assets, fmt.Errorf("stage %s: %w", fh.Filename, err)
		}
	}
	return assets, nil
}

func (h *HTTPHandler) stageOne(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp(h.stagingDir, "upload-*"+strings.ToLower(filepath.Ext(fh.Filename)))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return dst.Name(), err
	}
	return dst.Name(), dst.Close()
}

func mimeTypeOf(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
			return mediaType
		}
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(fh.Filename))); byExt != "" {
		mediaType, _, _ := mime.ParseMediaType(byExt)
		return mediaType
	}
	return "application/octet-stream"
}

func (h *HTTPHandler) handleProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Progress(r.Context(), chi.URLParam(r, "uploadID")))
}

func (h *HTTPHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")
	if _, err := uuid.Parse(postID); err != nil {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	if err := h.service.DeletePost(r.Context(), postID); err != nil {
		if errors.Is(err, posts.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		h.logger.Error("delete post failed", zap.String("post_id", postID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"post_id": postID,
	})
}

// errorResponse maps pipeline errors to a status and a client-safe message.
func errorResponse(err error) (int, string) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, verr.Error()
	}

	if errors.Is(err, ErrServiceClosed) {
		return http.StatusServiceUnavailable, "service is shutting down"
	}

	var perr *media.ProbeError
	var serr *StageError
	if errors.As(err, &perr) {
		if errors.As(err, &serr) && serr.Item >= 0 {
			return http.StatusUnprocessableEntity, fmt.Sprintf("item %d: unsupported or unreadable media", serr.Item+1)
		}
		return http.StatusUnprocessableEntity, "unsupported or unreadable media"
	}

	if errors.As(err, &serr) {
		if serr.Item >= 0 {
			return http.StatusInternalServerError, fmt.Sprintf("item %d: %s failed", serr.Item+1, serr.Stage)
		}
		return http.StatusInternalServerError, fmt.Sprintf("%s failed", serr.Stage)
	}
	return http.StatusInternalServerError, "upload failed"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}
