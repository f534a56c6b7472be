package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const (
	gcsWriteTimeout = 2 * time.Minute
	gcsReadTimeout  = 2 * time.Minute
	gcsMetaTimeout  = 30 * time.Second
)

// GCSConfig configures a GCSStore.
type GCSConfig struct {
	Bucket          string
	EmulatorHost    string // non-empty switches to emulator mode
	CredentialsFile string
	PublicBaseURL   string
}

// GCSStore stores objects in a Google Cloud Storage bucket and maps
// generation preconditions onto GCS object conditions.
type GCSStore struct {
	client        *storage.Client
	bucket        string
	emulatorHost  string
	publicBaseURL string
}

// NewGCSStore creates a client for cfg.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("gcs: bucket is required")
	}
	emulator := emulatorBase(cfg.EmulatorHost)

	var opts []option.ClientOption
	if emulator != "" {
		opts = append(opts,
			option.WithEndpoint(emulator+"/storage/v1/"),
			option.WithoutAuthentication(),
		)
	} else {
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: create client: %w", err)
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if base == "" && emulator != "" {
		base = emulator
	}
	return &GCSStore{
		client:        client,
		bucket:        cfg.Bucket,
		emulatorHost:  emulator,
		publicBaseURL: base,
	}, nil
}

// emulatorBase normalises an emulator host to scheme://host[:port].
func emulatorBase(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" || strings.Contains(host, "://") {
		return host
	}
	return "http://" + host
}

func (g *GCSStore) object(p string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(p)
}

// URL returns the public URL of p.
func (g *GCSStore) URL(p string) string {
	p = strings.TrimLeft(p, "/")
	if g.emulatorHost != "" {
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media",
			g.publicBaseURL, url.PathEscape(g.bucket), url.PathEscape(p))
	}
	if g.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", g.publicBaseURL, g.bucket, p)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucket, p)
}

func (g *GCSStore) attrsFrom(a *storage.ObjectAttrs) Attrs {
	return Attrs{
		Path:        a.Name,
		URL:         g.URL(a.Name),
		Size:        a.Size,
		ContentType: a.ContentType,
		Generation:  a.Generation,
		Updated:     a.Updated,
	}
}

// Head implements Store.
func (g *GCSStore) Head(ctx context.Context, p string) (Attrs, error) {
	ctx, cancel := context.WithTimeout(ctx, gcsMetaTimeout)
	defer cancel()
	a, err := g.object(p).Attrs(ctx)
	if err != nil {
		return Attrs{}, translateGCSError(p, err)
	}
	return g.attrsFrom(a), nil
}

// Read implements Store.
func (g *GCSStore) Read(ctx context.Context, p string) ([]byte, Attrs, error) {
	ctx, cancel := context.WithTimeout(ctx, gcsReadTimeout)
	defer cancel()
	r, err := g.object(p).NewReader(ctx)
	if err != nil {
		return nil, Attrs{}, translateGCSError(p, err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Attrs{}, fmt.Errorf("gcs: read %s: %w", p, err)
	}
	attrs := Attrs{
		Path:        p,
		URL:         g.URL(p),
		Size:        r.Attrs.Size,
		ContentType: r.Attrs.ContentType,
		Generation:  r.Attrs.Generation,
		Updated:     r.Attrs.LastModified,
	}
	return data, attrs, nil
}

// Put implements Store.
func (g *GCSStore) Put(ctx context.Context, p string, data []byte, opts ...PutOption) (Attrs, error) {
	o := ApplyPutOptions(p, opts)
	ctx, cancel := context.WithTimeout(ctx, gcsWriteTimeout)
	defer cancel()

	obj := g.object(p)
	if o.HasCondition {
		if o.IfGeneration == 0 {
			obj = obj.If(storage.Conditions{DoesNotExist: true})
		} else {
			obj = obj.If(storage.Conditions{GenerationMatch: o.IfGeneration})
		}
	}

	w := obj.NewWriter(ctx)
	w.ContentType = o.ContentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return Attrs{}, translateGCSError(p, err)
	}
	if err := w.Close(); err != nil {
		return Attrs{}, translateGCSError(p, err)
	}
	return g.attrsFrom(w.Attrs()), nil
}

// List implements Store.
func (g *GCSStore) List(ctx context.Context, prefix string) ([]Attrs, error) {
	ctx, cancel := context.WithTimeout(ctx, gcsMetaTimeout)
	defer cancel()
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	out := []Attrs{}
	for {
		a, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs: list %s: %w", prefix, err)
		}
		out = append(out, g.attrsFrom(a))
	}
	return out, nil
}

// Close implements Store.
func (g *GCSStore) Close() error {
	return g.client.Close()
}

func translateGCSError(p string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs: %s: %w", p, ErrNotFound)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusPreconditionFailed:
			return fmt.Errorf("gcs: %s: %w", p, ErrPreconditionFailed)
		case http.StatusNotFound:
			return fmt.Errorf("gcs: %s: %w", p, ErrNotFound)
		}
	}
	return fmt.Errorf("gcs: %s: %w", p, err)
}
