package blobstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memObject struct {
	data  []byte
	attrs Attrs
}

// MemoryStore keeps objects in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memObject
	baseURL string
	clock   func() time.Time
	closed  bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryBaseURL sets the URL prefix reported in Attrs.URL.
func WithMemoryBaseURL(u string) MemoryOption {
	return func(m *MemoryStore) {
		m.baseURL = strings.TrimRight(u, "/")
	}
}

// WithMemoryClock overrides the update timestamp source.
func WithMemoryClock(clock func() time.Time) MemoryOption {
	return func(m *MemoryStore) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		objects: make(map[string]memObject),
		baseURL: "memory://",
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) url(p string) string {
	if strings.HasSuffix(m.baseURL, "//") {
		return m.baseURL + p
	}
	return m.baseURL + "/" + p
}

// Head implements Store.
func (m *MemoryStore) Head(_ context.Context, p string) (Attrs, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Attrs{}, ErrClosed
	}
	obj, ok := m.objects[p]
	if !ok {
		return Attrs{}, ErrNotFound
	}
	return obj.attrs, nil
}

// Read implements Store.
func (m *MemoryStore) Read(_ context.Context, p string) ([]byte, Attrs, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, Attrs{}, ErrClosed
	}
	obj, ok := m.objects[p]
	if !ok {
		return nil, Attrs{}, ErrNotFound
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, obj.attrs, nil
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, p string, data []byte, opts ...PutOption) (Attrs, error) {
	o := ApplyPutOptions(p, opts)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Attrs{}, ErrClosed
	}
	current := m.objects[p].attrs.Generation
	if o.HasCondition && current != o.IfGeneration {
		return Attrs{}, ErrPreconditionFailed
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	attrs := Attrs{
		Path:        p,
		URL:         m.url(p),
		Size:        int64(len(buf)),
		ContentType: o.ContentType,
		Generation:  current + 1,
		Updated:     m.clock(),
	}
	m.objects[p] = memObject{data: buf, attrs: attrs}
	return attrs, nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, prefix string) ([]Attrs, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]Attrs, 0)
	for p, obj := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, obj.attrs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Delete removes an object. Missing objects are ignored.
func (m *MemoryStore) Delete(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, p)
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
