package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/nudge/internal/domain/types"
)

// OffenderDependencies summarises one person across weeks.
type OffenderDependencies interface {
	OffenderProfile(ctx context.Context, name string) (types.OffenderProfile, error)
}

// OffenderHandler handles offender profile requests.
type OffenderHandler struct {
	deps OffenderDependencies
}

// NewOffenderHandler creates a new offender handler.
func NewOffenderHandler(deps OffenderDependencies) *OffenderHandler {
	return &OffenderHandler{deps: deps}
}

// HandleGetOffender handles GET /api/offenders/{name} requests.
func (h *OffenderHandler) HandleGetOffender(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_offender"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	name := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/api/offenders/"))
	if name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	profile, err := h.deps.OffenderProfile(r.Context(), name)
	if err != nil {
		writeFailure(r.Context(), w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
