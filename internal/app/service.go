// Package service wires the CSV pipeline, the repositories and the read
// models behind the operations used by the HTTP API and the ingest CLI.
package service

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/nudge/internal/adapters/blobstore"
	"github.com/okian/nudge/internal/adapters/repository"
	"github.com/okian/nudge/internal/observability"
	"github.com/okian/nudge/pkg/logger"
	"github.com/okian/nudge/pkg/metrics"
)

// Service implements the API dependencies for the compliance tracker.
type Service struct {
	mu sync.RWMutex

	// Storage
	store     blobstore.Store
	backend   string
	snapshots *repository.Snapshots
	history   *repository.History
	roster    *repository.Roster
	uploads   *repository.Uploads

	// Configuration
	clock            func() time.Time
	location         *time.Location
	historyAttempts  int
	fetchConcurrency int
	legacyMirror     bool

	// State
	started bool

	logger logger.Logger
	tracer trace.Tracer
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the blob store and the backend name reported in stats.
func WithStore(store blobstore.Store, backend string) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
			s.backend = backend
		}
	}
}

// WithClock overrides the upload clock.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLocation sets the location the upload clock is read in when deriving
// week IDs.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithHistoryAttempts bounds compare-and-swap attempts on the history index.
func WithHistoryAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyAttempts = n
		}
	}
}

// WithFetchConcurrency bounds parallel snapshot reads. 0 means unbounded.
func WithFetchConcurrency(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.fetchConcurrency = n
		}
	}
}

// WithLegacyLatestMirror also writes snapshots/latest.json after every
// successful snapshot.
func WithLegacyLatestMirror(enabled bool) Option {
	return func(s *Service) {
		s.legacyMirror = enabled
	}
}

// New constructs a Service. Without WithStore it keeps everything in memory.
func New(opts ...Option) *Service {
	s := &Service{
		clock:           time.Now,
		location:        time.UTC,
		historyAttempts: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = blobstore.NewMemoryStore()
		s.backend = "memory"
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	s.tracer = otel.Tracer(observability.TracerName)

	s.snapshots = repository.NewSnapshots(s.store,
		repository.WithLatestMirror(s.legacyMirror),
		repository.WithSnapshotLogger(s.logger.Named("snapshots")))
	s.history = repository.NewHistory(s.store,
		repository.WithMaxAttempts(s.historyAttempts),
		repository.WithHistoryLogger(s.logger.Named("history")))
	s.roster = repository.NewRoster(s.store)
	s.uploads = repository.NewUploads(s.store)
	return s
}

// Start marks the service ready and seeds the state gauges.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting compliance service...", logger.String("backend", s.backend))

	weeks, err := s.history.List(ctx)
	if err != nil {
		s.logger.Warn(ctx, "could not read history index at startup", logger.Error(err))
	} else {
		metrics.UpdateHistoryWeeks(len(weeks))
	}
	names, err := s.roster.Load(ctx)
	if err != nil {
		s.logger.Warn(ctx, "could not read roster at startup", logger.Error(err))
	} else {
		metrics.UpdateRosterSize(len(names))
	}

	s.started = true
	s.logger.Info(ctx, "compliance service started",
		logger.Int("historyAttempts", s.historyAttempts),
		logger.Int("fetchConcurrency", s.fetchConcurrency),
		logger.Bool("legacyLatestMirror", s.legacyMirror),
		logger.String("timezone", s.location.String()),
	)
	return nil
}

// Stop closes the blob store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(context.Background(), "stopping compliance service...")
	if err := s.store.Close(); err != nil {
		s.logger.Warn(context.Background(), "closing store failed", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "compliance service stopped")
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":            started,
		"backend":            s.backend,
		"timezone":           s.location.String(),
		"historyAttempts":    s.historyAttempts,
		"fetchConcurrency":   s.fetchConcurrency,
		"legacyLatestMirror": s.legacyMirror,
	}

	if weeks, err := s.history.List(ctx); err == nil {
		stats["historyWeeks"] = len(weeks)
		metrics.UpdateHistoryWeeks(len(weeks))
	}
	if latest, found, err := s.history.Latest(ctx); err == nil && found {
		stats["latestWeek"] = latest.WeekID
		stats["latestOffenders"] = latest.OffenderCount
	}
	if names, err := s.roster.Load(ctx); err == nil {
		stats["rosterSize"] = len(names)
		metrics.UpdateRosterSize(len(names))
	}
	return stats
}

func (s *Service) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "nudge."+op, trace.WithAttributes(attrs...))
}

// fail records err on span and returns it unchanged.
func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
