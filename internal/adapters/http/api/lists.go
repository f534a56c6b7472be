package api

import (
	"context"
	"net/http"

	"github.com/okian/nudge/internal/domain/types"
)

// ListsDependencies partitions the roster against current offenders.
type ListsDependencies interface {
	FetchCurrentLists(ctx context.Context) (types.CurrentLists, error)
}

// ListsHandler handles current list requests.
type ListsHandler struct {
	deps ListsDependencies
}

// NewListsHandler creates a new lists handler.
func NewListsHandler(deps ListsDependencies) *ListsHandler {
	return &ListsHandler{deps: deps}
}

// HandleCurrentLists handles GET /api/current-lists.
func (h *ListsHandler) HandleCurrentLists(w http.ResponseWriter, r *http.Request) {
	const op = "api.current_lists"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	lists, err := h.deps.FetchCurrentLists(r.Context())
	if err != nil {
		writeFailure(r.Context(), w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, lists)
}
