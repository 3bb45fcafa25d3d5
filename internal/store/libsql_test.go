package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/pyflow/pkg/schema"
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

func sampleFlow() *schema.Flow {
	f := schema.NewFlow("sales")
	f.Datasets = []*schema.Dataset{
		{Name: "sales", Role: schema.RoleInput, Declared: true, Path: "sales.csv", Format: "csv"},
		{Name: "totals", Role: schema.RoleOutput},
	}
	f.Recipes = []*schema.Recipe{{
		Name:     "grouping_1",
		Type:     schema.RecipeGrouping,
		Inputs:   []string{"sales"},
		Outputs:  []string{"totals"},
		Settings: &schema.GroupingSettings{Keys: []string{"region"}},
	}}
	f.AddNote(schema.Info(schema.NoteRecommendation, "grouping_1", "consider a window recipe"))
	return f
}

func seedTranslation(t *testing.T, s *LibSQLStore, script, status string) *Translation {
	t.Helper()
	tr := &Translation{
		ID:         uuid.New().String(),
		ScriptName: script,
		Mode:       "static",
		SourceHash: "hash-" + script,
		Source:     "import pandas as pd\n",
		Status:     status,
	}
	if status == StatusSucceeded {
		require.NoError(t, tr.SetFlow(sampleFlow()))
	}
	require.NoError(t, s.SaveTranslation(context.Background(), tr))
	return tr
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))

	var version int
	require.NoError(t, s.DB().QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&version))
	assert.Equal(t, len(migrations), version)
}

func TestSaveAndGetTranslation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tr := seedTranslation(t, s, "etl.py", StatusSucceeded)

	got, err := s.GetTranslation(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "etl.py", got.ScriptName)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.Equal(t, 2, got.DatasetCount)
	assert.Equal(t, 1, got.RecipeCount)
	assert.Equal(t, 1, got.NoteCount)
	assert.False(t, got.CreatedAt.IsZero())

	flow, err := got.DecodeFlow()
	require.NoError(t, err)
	require.NotNil(t, flow)
	assert.Equal(t, sampleFlow().ToMap(), flow.ToMap())
}

func TestSaveTranslation_UpdatesStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tr := seedTranslation(t, s, "etl.py", StatusRunning)

	tr.Status = StatusFailed
	tr.ErrorCode = schema.ErrCodeSyntax
	tr.ErrorMessage = "unexpected indent"
	tr.DurationMs = 12
	require.NoError(t, s.SaveTranslation(ctx, tr))

	got, err := s.GetTranslation(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, schema.ErrCodeSyntax, got.ErrorCode)
	assert.Equal(t, int64(12), got.DurationMs)

	flow, err := got.DecodeFlow()
	require.NoError(t, err)
	assert.Nil(t, flow)
}

func TestSaveTranslation_UpdatesMode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tr := seedTranslation(t, s, "etl.py", StatusRunning)
	tr.Mode = "auto"
	require.NoError(t, s.SaveTranslation(ctx, tr))

	tr.Mode = "static"
	tr.Status = StatusSucceeded
	require.NoError(t, s.SaveTranslation(ctx, tr))

	got, err := s.GetTranslation(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "static", got.Mode)
	assert.Equal(t, StatusSucceeded, got.Status)
}

func TestSaveTranslation_RequiresID(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveTranslation(context.Background(), &Translation{ScriptName: "x"})
	assert.True(t, schema.HasCode(err, schema.ErrCodeStore))
}

func TestGetTranslation_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetTranslation(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestListTranslations_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTranslation(t, s, "a.py", StatusSucceeded)
	seedTranslation(t, s, "a.py", StatusFailed)
	seedTranslation(t, s, "b.py", StatusSucceeded)

	all, err := s.ListTranslations(ctx, TranslationFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byScript, err := s.ListTranslations(ctx, TranslationFilter{ScriptName: "a.py"})
	require.NoError(t, err)
	assert.Len(t, byScript, 2)

	failed, err := s.ListTranslations(ctx, TranslationFilter{Status: StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "a.py", failed[0].ScriptName)

	limited, err := s.ListTranslations(ctx, TranslationFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	future := time.Now().Add(time.Hour)
	none, err := s.ListTranslations(ctx, TranslationFilter{Since: &future})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteTranslation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tr := seedTranslation(t, s, "a.py", StatusSucceeded)
	require.NoError(t, s.Events().Record(ctx, tr.ID, EventStarted, "", nil))

	require.NoError(t, s.DeleteTranslation(ctx, tr.ID))
	_, err := s.GetTranslation(ctx, tr.ID)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))

	events, err := s.GetEvents(ctx, tr.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	err = s.DeleteTranslation(ctx, tr.ID)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestVacuum(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Vacuum(context.Background()))
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- comment only;\nCREATE TABLE a (x INT);\n\n  ;SELECT 1;")
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "SELECT 1"}, stmts)
}
