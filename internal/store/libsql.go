package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/flowbuilder/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewLibSQLStore opens a libSQL database. dbPath is a plain file path or a
// URL such as "file:/path/to/flowbuilder.db"; plain paths get the file scheme.
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", DSN(dbPath))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "open libsql").WithCause(err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// DSN prefixes plain paths with "file:" and leaves URLs untouched.
func DSN(dbPath string) string {
	if strings.Contains(dbPath, ":") && !filepath.IsAbs(dbPath) {
		return dbPath
	}
	return "file:" + dbPath
}

// LocalPath strips the "file:" scheme, returning the filesystem path.
func LocalPath(dbPath string) string {
	return strings.TrimPrefix(dbPath, "file:")
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	if err := runMigrations(ctx, s.db); err != nil {
		return schema.NewError(schema.ErrCodeStore, "migrate").WithCause(err)
	}
	return nil
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return storeErr("vacuum", err)
}

// --- Drafts ---

// SaveDraft inserts or replaces the draft named draft.Name. CreatedAt is
// preserved across overwrites.
func (s *LibSQLStore) SaveDraft(ctx context.Context, draft *Draft) error {
	if draft.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "draft name is required")
	}
	if len(draft.Document) == 0 {
		return schema.NewErrorf(schema.ErrCodeValidation, "draft %q has no document", draft.Name)
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drafts (name, workflow_id, document, revision, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   workflow_id=excluded.workflow_id, document=excluded.document,
		   revision=excluded.revision, updated_at=excluded.updated_at`,
		draft.Name, nullStr(draft.WorkflowID), string(draft.Document), int64(draft.Revision),
		timeOr(draft.CreatedAt, now), now,
	)
	if err != nil {
		return storeErr("save draft", err)
	}
	draft.UpdatedAt = now
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = now
	}
	return nil
}

func (s *LibSQLStore) GetDraft(ctx context.Context, name string) (*Draft, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, workflow_id, document, revision, created_at, updated_at FROM drafts WHERE name = ?`, name,
	)
	d, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("draft", name)
	}
	if err != nil {
		return nil, storeErr("get draft", err)
	}
	return d, nil
}

// ListDrafts returns drafts ordered by most recently updated.
func (s *LibSQLStore) ListDrafts(ctx context.Context, filter DraftFilter) ([]*Draft, error) {
	var where []string
	var args []any

	if filter.Prefix != "" {
		where = append(where, "name LIKE ? ESCAPE '\\'")
		args = append(args, escapeLike(filter.Prefix)+"%")
	}

	query := "SELECT name, workflow_id, document, revision, created_at, updated_at FROM drafts"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, name"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list drafts", err)
	}
	defer rows.Close()

	var drafts []*Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, storeErr("scan draft", err)
		}
		drafts = append(drafts, d)
	}
	return drafts, storeErr("list drafts", rows.Err())
}

func (s *LibSQLStore) DeleteDraft(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE name = ?`, name)
	if err != nil {
		return storeErr("delete draft", err)
	}
	return checkRowsAffected(res, "draft", name)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDraft(r rowScanner) (*Draft, error) {
	d := &Draft{}
	var workflowID sql.NullString
	var doc string
	var revision int64
	if err := r.Scan(&d.Name, &workflowID, &doc, &revision, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.WorkflowID = workflowID.String
	d.Document = []byte(doc)
	d.Revision = uint64(revision)
	return d, nil
}

// --- Catalog cache ---

func (s *LibSQLStore) PutCatalog(ctx context.Context, kind CatalogKind, payload []byte) error {
	if len(payload) == 0 {
		payload = []byte("[]")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO catalog_cache (kind, payload, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT(kind) DO UPDATE SET payload=excluded.payload, fetched_at=excluded.fetched_at`,
		string(kind), string(payload), s.now(),
	)
	return storeErr("put catalog", err)
}

func (s *LibSQLStore) GetCatalog(ctx context.Context, kind CatalogKind) (*CatalogEntry, error) {
	e := &CatalogEntry{Kind: kind}
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, fetched_at FROM catalog_cache WHERE kind = ?`, string(kind),
	).Scan(&payload, &e.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("catalog", string(kind))
	}
	if err != nil {
		return nil, storeErr("get catalog", err)
	}
	e.Payload = []byte(payload)
	return e, nil
}

// --- Secrets ---

func (s *LibSQLStore) StoreSecret(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO secrets (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=CURRENT_TIMESTAMP`,
		key, value,
	)
	return storeErr("store secret", err)
}

func (s *LibSQLStore) GetSecret(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("secret", key)
	}
	if err != nil {
		return nil, storeErr("get secret", err)
	}
	return value, nil
}

func (s *LibSQLStore) DeleteSecret(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE key = ?`, key)
	if err != nil {
		return storeErr("delete secret", err)
	}
	return checkRowsAffected(res, "secret", key)
}

func (s *LibSQLStore) ListSecretKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM secrets ORDER BY key`)
	if err != nil {
		return nil, storeErr("list secrets", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, storeErr("scan secret key", err)
		}
		keys = append(keys, k)
	}
	return keys, storeErr("list secrets", rows.Err())
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

// storeErr wraps a driver error as STORE_ERROR. A nil err stays nil.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return schema.NewError(schema.ErrCodeStore, op).WithCause(err)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("rows affected", err)
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOr(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
