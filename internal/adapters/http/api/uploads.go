package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/nudge/internal/domain/types"
)

const uploadField = "file"

// UploadDependencies stores and lists raw CSV files.
type UploadDependencies interface {
	UploadCSV(ctx context.Context, name string, data []byte) (types.UploadedFile, error)
	ListUploads(ctx context.Context) ([]types.UploadedFile, error)
}

// UploadHandler handles raw CSV uploads.
type UploadHandler struct {
	deps     UploadDependencies
	maxBytes int64
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(deps UploadDependencies, maxBytes int64) *UploadHandler {
	return &UploadHandler{deps: deps, maxBytes: maxBytes}
}

// HandleUpload handles POST /api/upload-csv with a multipart "file" part.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	const op = "api.upload_csv"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	// Multipart framing needs a little room on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<16)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeFailure(r.Context(), w, NewKind(op, ErrTooLarge))
			return
		}
		writeFailure(r.Context(), w, WrapKind(op, ErrBadRequest, err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		writeFailure(r.Context(), w, WrapKind(op, ErrBadRequest, fmt.Errorf("missing %q part: %w", uploadField, err)))
		return
	}
	defer func() { _ = file.Close() }()
	if header.Size > h.maxBytes {
		writeFailure(r.Context(), w, NewKind(op, ErrTooLarge))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeFailure(r.Context(), w, WrapKind(op, ErrBadRequest, err))
		return
	}
	uploaded, err := h.deps.UploadCSV(r.Context(), header.Filename, data)
	if err != nil {
		writeFailure(r.Context(), w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, uploaded)
}

// HandleList handles GET /api/uploads.
func (h *UploadHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_uploads"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	files, err := h.deps.ListUploads(r.Context())
	if err != nil {
		writeFailure(r.Context(), w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, files)
}
