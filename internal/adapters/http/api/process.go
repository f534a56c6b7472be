package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/nudge/internal/domain/csvparse"
	"github.com/okian/nudge/internal/domain/model"
	"github.com/okian/nudge/internal/domain/roster"
)

// ProcessDependencies turns stored CSV files into snapshots and rosters.
type ProcessDependencies interface {
	ProcessCSVSnapshot(ctx context.Context, location string, mapping csvparse.FieldMapping) (model.Snapshot, error)
	ProcessMasterCSV(ctx context.Context, location string, mapping roster.Mapping) ([]string, error)
}

// ProcessHandler handles CSV processing requests.
type ProcessHandler struct {
	deps ProcessDependencies
}

// NewProcessHandler creates a new process handler.
func NewProcessHandler(deps ProcessDependencies) *ProcessHandler {
	return &ProcessHandler{deps: deps}
}

type processCSVRequest struct {
	FileLocation string            `json:"fileLocation"`
	Mapping      map[string]string `json:"mapping,omitempty"`
}

func (p processCSVRequest) fieldMapping() (csvparse.FieldMapping, error) {
	if len(p.Mapping) == 0 {
		return nil, nil
	}
	known := make(map[csvparse.Field]struct{}, len(csvparse.RequiredFields))
	for _, f := range csvparse.RequiredFields {
		known[f] = struct{}{}
	}
	out := make(csvparse.FieldMapping, len(p.Mapping))
	for k, v := range p.Mapping {
		f := csvparse.Field(k)
		if _, ok := known[f]; !ok {
			return nil, fmt.Errorf("unknown mapping field %q", k)
		}
		if v = strings.TrimSpace(v); v != "" {
			out[f] = v
		}
	}
	return out, nil
}

type processMasterRequest struct {
	FileLocation string         `json:"fileLocation"`
	Mapping      roster.Mapping `json:"mapping"`
}

type processMasterResponse struct {
	Names []string `json:"names"`
	Count int      `json:"count"`
}

// HandleProcessCSV handles POST /api/process-csv.
func (h *ProcessHandler) HandleProcessCSV(w http.ResponseWriter, r *http.Request) {
	const op = "api.process_csv"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req processCSVRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(r.Context(), w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.FileLocation) == "" {
		writeFailure(r.Context(), w, WrapKind(op, ErrBadRequest, fmt.Errorf("missing fileLocation")))
		return
	}
	mapping, err := req.fieldMapping()
	if err != nil {
		writeFailure(r.Context(), w, WrapKind(op, ErrBadRequest, err))
		return
	}
	snap, err := h.deps.ProcessCSVSnapshot(r.Context(), req.FileLocation, mapping)
	if err != nil {
		writeFailure(r.Context(), w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleProcessMaster handles POST /api/process-master.
func (h *ProcessHandler) HandleProcessMaster(w http.ResponseWriter, r *http.Request) {
	const op = "api.process_master"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req processMasterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(r.Context(), w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.FileLocation) == "" {
		writeFailure(r.Context(), w, WrapKind(op, ErrBadRequest, fmt.Errorf("missing fileLocation")))
		return
	}
	names, err := h.deps.ProcessMasterCSV(r.Context(), req.FileLocation, req.Mapping)
	if err != nil {
		writeFailure(r.Context(), w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, processMasterResponse{Names: names, Count: len(names)})
}
