// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/nudge/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	UploadDependencies
	ProcessDependencies
	SnapshotDependencies
	LeaderboardDependencies
	ListsDependencies
	OffenderDependencies
}

// Limits bounds request sizes and query parameters.
type Limits struct {
	MaxUploadBytes      int64
	MaxLeaderboardLimit int
}

const (
	defaultMaxUploadBytes = 10 << 20
	defaultMaxLimit       = 500
	maxJSONBodyBytes      = 1 << 20
)

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	uploadHandler      *UploadHandler
	processHandler     *ProcessHandler
	snapshotHandler    *SnapshotHandler
	leaderboardHandler *LeaderboardHandler
	listsHandler       *ListsHandler
	offenderHandler    *OffenderHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, limits Limits) *Server {
	if limits.MaxUploadBytes <= 0 {
		limits.MaxUploadBytes = defaultMaxUploadBytes
	}
	if limits.MaxLeaderboardLimit <= 0 {
		limits.MaxLeaderboardLimit = defaultMaxLimit
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		uploadHandler:      NewUploadHandler(deps, limits.MaxUploadBytes),
		processHandler:     NewProcessHandler(deps),
		snapshotHandler:    NewSnapshotHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, limits.MaxLeaderboardLimit),
		listsHandler:       NewListsHandler(deps),
		offenderHandler:    NewOffenderHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(path, name string, h http.HandlerFunc) {
		mux.HandleFunc(path, MetricsMiddleware(RequestID(h), name))
	}
	route("/healthz", "healthz", s.healthHandler.HandleHealth)
	route("/stats", "stats", s.statsHandler.HandleStats)
	route("/api/upload-csv", "upload_csv", s.uploadHandler.HandleUpload)
	route("/api/uploads", "uploads", s.uploadHandler.HandleList)
	route("/api/process-csv", "process_csv", s.processHandler.HandleProcessCSV)
	route("/api/process-master", "process_master", s.processHandler.HandleProcessMaster)
	route("/api/snapshot", "snapshot", s.snapshotHandler.HandleSnapshot)
	route("/api/latest-snapshot", "latest_snapshot", s.snapshotHandler.HandleLatest)
	route("/api/history", "history", s.snapshotHandler.HandleHistory)
	route("/api/leaderboard", "leaderboard", s.leaderboardHandler.HandleGetLeaderboard)
	route("/api/current-lists", "current_lists", s.listsHandler.HandleCurrentLists)
	route("/api/offenders/", "offenders", s.offenderHandler.HandleGetOffender)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure classifies err and writes it. Server errors are logged.
func writeFailure(ctx context.Context, w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		op := ""
		var e *Error
		if errors.As(err, &e) {
			op = e.Op
		}
		logger.Named("api").Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
	}
	writeError(w, status, code, err)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
