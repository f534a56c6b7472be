package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/mattn/go-sqlite3"    // registers the "sqlite3" driver
)

// SQL dialects supported by SQLStore.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`) //nolint:gochecknoglobals // compiled once

// SQLStore keeps objects as rows of a single table. Generations are a
// per-row counter, so conditional writes become guarded UPDATE/INSERT
// statements.
type SQLStore struct {
	db      *sql.DB
	dialect string
	table   string
	clock   func() time.Time
}

// OpenSQLStore opens dsn with the driver for dialect and creates the table
// when it does not exist.
func OpenSQLStore(ctx context.Context, dialect, dsn, table string) (*SQLStore, error) {
	var driver string
	switch dialect {
	case DialectPostgres:
		driver = "pgx"
	case DialectSQLite:
		driver = "sqlite3"
	default:
		return nil, fmt.Errorf("sql store: unknown dialect %q", dialect)
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("sql store: invalid table name %q", table)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql store: open: %w", err)
	}
	if dialect == DialectSQLite {
		// One writer avoids SQLITE_BUSY under concurrent conditional writes.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sql store: ping: %w", err)
	}

	s := &SQLStore{db: db, dialect: dialect, table: table, clock: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	blobType := "BLOB"
	if s.dialect == DialectPostgres {
		blobType = "BYTEA"
	}
	stmt := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		path TEXT PRIMARY KEY,
		data %s NOT NULL,
		content_type TEXT NOT NULL,
		generation BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`, s.table, blobType)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sql store: create table: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(q string) string {
	if s.dialect != DialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) url(p string) string {
	return s.dialect + "://" + s.table + "/" + p
}

// Head implements Store.
func (s *SQLStore) Head(ctx context.Context, p string) (Attrs, error) {
	q := s.rebind(fmt.Sprintf(
		`SELECT content_type, generation, updated_at, length(data) FROM %s WHERE path = ?`, s.table))
	a := Attrs{Path: p, URL: s.url(p)}
	var updated int64
	err := s.db.QueryRowContext(ctx, q, p).Scan(&a.ContentType, &a.Generation, &updated, &a.Size)
	if errors.Is(err, sql.ErrNoRows) {
		return Attrs{}, ErrNotFound
	}
	if err != nil {
		return Attrs{}, fmt.Errorf("sql store: head %s: %w", p, err)
	}
	a.Updated = time.Unix(0, updated)
	return a, nil
}

// Read implements Store.
func (s *SQLStore) Read(ctx context.Context, p string) ([]byte, Attrs, error) {
	q := s.rebind(fmt.Sprintf(
		`SELECT data, content_type, generation, updated_at FROM %s WHERE path = ?`, s.table))
	a := Attrs{Path: p, URL: s.url(p)}
	var (
		data    []byte
		updated int64
	)
	err := s.db.QueryRowContext(ctx, q, p).Scan(&data, &a.ContentType, &a.Generation, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Attrs{}, ErrNotFound
	}
	if err != nil {
		return nil, Attrs{}, fmt.Errorf("sql store: read %s: %w", p, err)
	}
	a.Size = int64(len(data))
	a.Updated = time.Unix(0, updated)
	return data, a, nil
}

// Put implements Store.
func (s *SQLStore) Put(ctx context.Context, p string, data []byte, opts ...PutOption) (Attrs, error) {
	o := ApplyPutOptions(p, opts)
	now := s.clock()
	if data == nil {
		data = []byte{}
	}

	var (
		q    string
		args []any
	)
	switch {
	case !o.HasCondition:
		q = fmt.Sprintf(`INSERT INTO %[1]s (path, data, content_type, generation, updated_at)
			VALUES (?, ?, ?, 1, ?)
			ON CONFLICT (path) DO UPDATE SET
				data = excluded.data,
				content_type = excluded.content_type,
				generation = %[1]s.generation + 1,
				updated_at = excluded.updated_at
			RETURNING generation`, s.table)
		args = []any{p, data, o.ContentType, now.UnixNano()}
	case o.IfGeneration == 0:
		q = fmt.Sprintf(`INSERT INTO %s (path, data, content_type, generation, updated_at)
			VALUES (?, ?, ?, 1, ?)
			ON CONFLICT (path) DO NOTHING
			RETURNING generation`, s.table)
		args = []any{p, data, o.ContentType, now.UnixNano()}
	default:
		q = fmt.Sprintf(`UPDATE %s SET data = ?, content_type = ?, generation = generation + 1, updated_at = ?
			WHERE path = ? AND generation = ?
			RETURNING generation`, s.table)
		args = []any{data, o.ContentType, now.UnixNano(), p, o.IfGeneration}
	}

	var gen int64
	err := s.db.QueryRowContext(ctx, s.rebind(q), args...).Scan(&gen)
	if errors.Is(err, sql.ErrNoRows) {
		return Attrs{}, ErrPreconditionFailed
	}
	if err != nil {
		return Attrs{}, fmt.Errorf("sql store: put %s: %w", p, err)
	}
	return Attrs{
		Path:        p,
		URL:         s.url(p),
		Size:        int64(len(data)),
		ContentType: o.ContentType,
		Generation:  gen,
		Updated:     time.Unix(0, now.UnixNano()),
	}, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`) //nolint:gochecknoglobals // stateless

// List implements Store.
func (s *SQLStore) List(ctx context.Context, prefix string) ([]Attrs, error) {
	q := s.rebind(fmt.Sprintf(
		`SELECT path, content_type, generation, updated_at, length(data) FROM %s
		WHERE path LIKE ? ESCAPE '\' ORDER BY path`, s.table))
	rows, err := s.db.QueryContext(ctx, q, likeEscaper.Replace(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("sql store: list %s: %w", prefix, err)
	}
	defer func() { _ = rows.Close() }()

	out := []Attrs{}
	for rows.Next() {
		var (
			a       Attrs
			updated int64
		)
		if err := rows.Scan(&a.Path, &a.ContentType, &a.Generation, &updated, &a.Size); err != nil {
			return nil, fmt.Errorf("sql store: list %s: %w", prefix, err)
		}
		a.URL = s.url(a.Path)
		a.Updated = time.Unix(0, updated)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sql store: list %s: %w", prefix, err)
	}
	return out, nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
