package blobstore

import (
	"context"
	"errors"
	"time"

	"github.com/okian/nudge/pkg/metrics"
)

// InstrumentedStore records a Prometheus observation for every call.
type InstrumentedStore struct {
	next    Store
	backend string
}

// Instrument wraps s so each operation is counted under backend.
func Instrument(s Store, backend string) *InstrumentedStore {
	return &InstrumentedStore{next: s, backend: backend}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPreconditionFailed):
		return "precondition_failed"
	default:
		return "error"
	}
}

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	metrics.RecordStorageOperation(s.backend, op, outcome(err), float64(time.Since(start).Milliseconds()))
}

// Head implements Store.
func (s *InstrumentedStore) Head(ctx context.Context, p string) (Attrs, error) {
	start := time.Now()
	a, err := s.next.Head(ctx, p)
	s.observe("head", start, err)
	return a, err
}

// Read implements Store.
func (s *InstrumentedStore) Read(ctx context.Context, p string) ([]byte, Attrs, error) {
	start := time.Now()
	data, a, err := s.next.Read(ctx, p)
	s.observe("read", start, err)
	return data, a, err
}

// Put implements Store.
func (s *InstrumentedStore) Put(ctx context.Context, p string, data []byte, opts ...PutOption) (Attrs, error) {
	start := time.Now()
	a, err := s.next.Put(ctx, p, data, opts...)
	s.observe("put", start, err)
	return a, err
}

// List implements Store.
func (s *InstrumentedStore) List(ctx context.Context, prefix string) ([]Attrs, error) {
	start := time.Now()
	out, err := s.next.List(ctx, prefix)
	s.observe("list", start, err)
	return out, err
}

// Close implements Store.
func (s *InstrumentedStore) Close() error {
	return s.next.Close()
}
