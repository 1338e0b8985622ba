package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowbuilder/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

// fixedClock makes updated_at ordering deterministic.
func fixedClock(s *LibSQLStore, start time.Time) {
	current := start
	s.now = func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func docJSON(name string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"workflowName":%q,"nodes":[],"edges":[]}`, name))
}

var _ Store = (*LibSQLStore)(nil)

// --- Migration Tests ---

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))

	var version int
	require.NoError(t, s.DB().QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&version))
	assert.Equal(t, len(migrations), version)
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		label  string
		script string
		want   []string
	}{
		{
			label:  "comment only chunk",
			script: "-- only a comment;\nCREATE TABLE a (x INT);\n\n;SELECT 1",
			want:   []string{"CREATE TABLE a (x INT)", "SELECT 1"},
		},
		{
			label:  "semicolon inside a comment",
			script: "CREATE TABLE a (x INT);\n  -- one row per kind; replaced on fetch\nCREATE TABLE b (y INT);",
			want:   []string{"CREATE TABLE a (x INT)", "CREATE TABLE b (y INT)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, splitStatements(tt.script))
		})
	}
}

func TestSplitStatements_MigrationsAreStatements(t *testing.T) {
	for _, m := range migrations {
		for _, stmt := range splitStatements(m.SQL) {
			assert.Regexp(t, `^CREATE `, stmt, "migration %d", m.Version)
		}
	}
}

func TestNewLibSQLStore_BarePath(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bare.db")
	s, err := NewLibSQLStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "file:/tmp/a.db", DSN("/tmp/a.db"))
	assert.Equal(t, "file:/tmp/a.db", DSN("file:/tmp/a.db"))
	assert.Equal(t, "libsql://db.example.com", DSN("libsql://db.example.com"))
	assert.Equal(t, "/tmp/a.db", LocalPath("file:/tmp/a.db"))
	assert.Equal(t, "/tmp/a.db", LocalPath("/tmp/a.db"))
}

// --- Draft Tests ---

func TestSaveAndGetDraft(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := &Draft{Name: "onboarding", WorkflowID: "wf-1", Document: docJSON("onboarding"), Revision: 4}
	require.NoError(t, s.SaveDraft(ctx, d))
	assert.False(t, d.CreatedAt.IsZero())

	got, err := s.GetDraft(ctx, "onboarding")
	require.NoError(t, err)
	assert.Equal(t, "onboarding", got.Name)
	assert.Equal(t, "wf-1", got.WorkflowID)
	assert.Equal(t, uint64(4), got.Revision)
	assert.JSONEq(t, string(docJSON("onboarding")), string(got.Document))
}

func TestSaveDraft_OverwriteKeepsCreatedAt(t *testing.T) {
	s := newTestStore(t)
	fixedClock(s, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	require.NoError(t, s.SaveDraft(ctx, &Draft{Name: "a", Document: docJSON("a")}))
	first, err := s.GetDraft(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, s.SaveDraft(ctx, &Draft{Name: "a", Document: docJSON("a2"), Revision: 9}))
	second, err := s.GetDraft(ctx, "a")
	require.NoError(t, err)

	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
	assert.Equal(t, uint64(9), second.Revision)
	assert.Empty(t, second.WorkflowID)
}

func TestSaveDraft_Rejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.SaveDraft(ctx, &Draft{Document: docJSON("x")})
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))

	err = s.SaveDraft(ctx, &Draft{Name: "x"})
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestGetDraft_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetDraft(context.Background(), "missing")
	require.Error(t, err)
	flowErr, ok := err.(*schema.FlowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, flowErr.Code)
}

func TestListDrafts(t *testing.T) {
	s := newTestStore(t)
	fixedClock(s, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for _, name := range []string{"sales_q1", "sales_q2", "hr_onboarding", "sales%odd"} {
		require.NoError(t, s.SaveDraft(ctx, &Draft{Name: name, Document: docJSON(name)}))
	}

	tests := []struct {
		label  string
		filter DraftFilter
		want   []string
	}{
		{label: "all newest first", filter: DraftFilter{}, want: []string{"sales%odd", "hr_onboarding", "sales_q2", "sales_q1"}},
		{label: "prefix", filter: DraftFilter{Prefix: "sales_"}, want: []string{"sales_q2", "sales_q1"}},
		{label: "literal percent", filter: DraftFilter{Prefix: "sales%"}, want: []string{"sales%odd"}},
		{label: "limit", filter: DraftFilter{Limit: 1}, want: []string{"sales%odd"}},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			drafts, err := s.ListDrafts(ctx, tt.filter)
			require.NoError(t, err)
			var names []string
			for _, d := range drafts {
				names = append(names, d.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestDeleteDraft(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDraft(ctx, &Draft{Name: "gone", Document: docJSON("gone")}))
	require.NoError(t, s.DeleteDraft(ctx, "gone"))

	_, err := s.GetDraft(ctx, "gone")
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))

	err = s.DeleteDraft(ctx, "gone")
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))
}

// --- Catalog Tests ---

func TestPutAndGetCatalog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetCatalog(ctx, CatalogProducts)
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))

	require.NoError(t, s.PutCatalog(ctx, CatalogProducts, []byte(`[{"id":"p1","name":"Loan","amount":10}]`)))
	require.NoError(t, s.PutCatalog(ctx, CatalogProducts, []byte(`[{"id":"p2","name":"Card","amount":5}]`)))

	entry, err := s.GetCatalog(ctx, CatalogProducts)
	require.NoError(t, err)
	assert.Equal(t, CatalogProducts, entry.Kind)
	assert.JSONEq(t, `[{"id":"p2","name":"Card","amount":5}]`, string(entry.Payload))
	assert.False(t, entry.FetchedAt.IsZero())
}

func TestPutCatalog_EmptyPayload(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutCatalog(ctx, CatalogEmployees, nil))
	entry, err := s.GetCatalog(ctx, CatalogEmployees)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(entry.Payload))
}

// --- Secret Tests ---

func TestSecrets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.StoreSecret(ctx, "b", []byte{0x01, 0x02}))
	require.NoError(t, s.StoreSecret(ctx, "a", []byte("first")))
	require.NoError(t, s.StoreSecret(ctx, "a", []byte("second")))

	got, err := s.GetSecret(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)

	keys, err := s.ListSecretKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	require.NoError(t, s.DeleteSecret(ctx, "a"))
	_, err = s.GetSecret(ctx, "a")
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(s.DeleteSecret(ctx, "a")))
}

func TestStoreErr(t *testing.T) {
	assert.NoError(t, storeErr("noop", nil))
	cause := fmt.Errorf("disk full")
	err := storeErr("boom", cause)
	assert.Equal(t, schema.ErrCodeStore, schema.ErrorCode(err))
	assert.ErrorIs(t, err, cause)
}
