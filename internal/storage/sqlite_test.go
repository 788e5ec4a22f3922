package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tablesearch-mcp/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	return storage
}

func testDataset(name string) *types.Dataset {
	return &types.Dataset{
		Name: name,
		Columns: []types.Column{
			{Key: "name", Type: types.ColumnString},
			{Key: "points", Type: types.ColumnNumber},
			{Key: "team", Type: types.ColumnCategorical},
		},
		Rows: []types.Row{
			{"name": "Alice", "points": 120.0, "team": "red"},
			{"name": "Bob", "points": 80.5, "team": "blue"},
			{"name": "Carol", "points": nil, "team": "red"},
		},
	}
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	assert.NotNil(t, storage)
	assert.NotNil(t, storage.db)

	version, err := SchemaVersion(context.Background(), storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestClose(t *testing.T) {
	storage := setupTestDB(t)
	err := storage.Close()
	assert.NoError(t, err)
}

func TestSaveDataset(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	info, err := storage.SaveDataset(ctx, testDataset("scores"))
	require.NoError(t, err)
	assert.Greater(t, info.ID, int64(0))
	assert.Equal(t, "scores", info.Name)
	assert.Equal(t, 3, info.RowCount)
	assert.Len(t, info.Columns, 3)
	assert.False(t, info.CreatedAt.IsZero())
}

func TestSaveDataset_Invalid(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()

	_, err := storage.SaveDataset(ctx, &types.Dataset{Name: "  "})
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = storage.SaveDataset(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidName)

	dup := testDataset("dup")
	dup.Columns = append(dup.Columns, types.Column{Key: "name", Type: types.ColumnString})
	_, err = storage.SaveDataset(ctx, dup)
	assert.ErrorIs(t, err, types.ErrDuplicateColumn)

	// Nothing was persisted
	list, err := storage.ListDatasets(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLoadDataset_RoundTrip(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	original := testDataset("scores")
	_, err := storage.SaveDataset(ctx, original)
	require.NoError(t, err)

	loaded, err := storage.LoadDataset(ctx, "scores")
	require.NoError(t, err)
	assert.Equal(t, "scores", loaded.Name)
	assert.Equal(t, original.Columns, loaded.Columns)
	require.Len(t, loaded.Rows, 3)

	for i, row := range original.Rows {
		for key, want := range row {
			got, ok := loaded.Rows[i][key]
			require.True(t, ok, "row %d missing %s", i, key)
			assert.True(t, types.ValuesEqual(want, got), "row %d %s: want %v, got %v", i, key, want, got)
		}
	}
}

func TestLoadDataset_InferredColumns(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	ds := &types.Dataset{
		Name: "loose",
		Rows: []types.Row{{"b": "x"}, {"a": "y"}},
	}
	info, err := storage.SaveDataset(ctx, ds)
	require.NoError(t, err)
	assert.Equal(t, []types.Column{
		{Key: "a", Type: types.ColumnString},
		{Key: "b", Type: types.ColumnString},
	}, info.Columns)
}

func TestSaveDataset_Replace(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	first, err := storage.SaveDataset(ctx, testDataset("scores"))
	require.NoError(t, err)

	replacement := &types.Dataset{
		Name:    "scores",
		Columns: []types.Column{{Key: "city", Type: types.ColumnString}},
		Rows:    []types.Row{{"city": "Oslo"}},
	}
	second, err := storage.SaveDataset(ctx, replacement)
	require.NoError(t, err)
	assert.Equal(t, 1, second.RowCount)
	assert.WithinDuration(t, first.CreatedAt, second.CreatedAt, time.Second)

	loaded, err := storage.LoadDataset(ctx, "scores")
	require.NoError(t, err)
	assert.Equal(t, replacement.Columns, loaded.Columns)
	require.Len(t, loaded.Rows, 1)
	assert.Equal(t, "Oslo", loaded.Rows[0]["city"])

	list, err := storage.ListDatasets(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGetDataset_NotFound(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	_, err := storage.GetDataset(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = storage.LoadDataset(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDatasets(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := storage.SaveDataset(ctx, testDataset(name))
		require.NoError(t, err)
	}

	list, err := storage.ListDatasets(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "mid", list[1].Name)
	assert.Equal(t, "zeta", list[2].Name)
	for _, info := range list {
		assert.Len(t, info.Columns, 3)
		assert.Equal(t, 3, info.RowCount)
	}
}

func TestDeleteDataset(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	_, err := storage.SaveDataset(ctx, testDataset("scores"))
	require.NoError(t, err)
	require.NoError(t, storage.RecordBuild(ctx, &BuildRecord{Dataset: "scores", HandleID: "h1", Rows: 3}))

	err = storage.DeleteDataset(ctx, "scores")
	require.NoError(t, err)

	_, err = storage.GetDataset(ctx, "scores")
	assert.ErrorIs(t, err, ErrNotFound)

	builds, err := storage.ListBuilds(ctx, "scores", 10)
	require.NoError(t, err)
	assert.Empty(t, builds)

	// Deleting again reports not found
	err = storage.DeleteDataset(ctx, "scores")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadTable(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	_, err := storage.db.ExecContext(ctx, `
		CREATE TABLE patients (
			id INTEGER PRIMARY KEY,
			name TEXT,
			score REAL,
			admitted DATE
		)
	`)
	require.NoError(t, err)
	_, err = storage.db.ExecContext(ctx, `
		INSERT INTO patients (id, name, score, admitted) VALUES
			(1, 'Alice', 12.5, '2024-01-15'),
			(2, 'Bob', NULL, '2024-02-01')
	`)
	require.NoError(t, err)

	ds, err := storage.LoadTable(ctx, "patients")
	require.NoError(t, err)
	assert.Equal(t, "patients", ds.Name)
	assert.Equal(t, []types.Column{
		{Key: "id", Type: types.ColumnNumber},
		{Key: "name", Type: types.ColumnString},
		{Key: "score", Type: types.ColumnNumber},
		{Key: "admitted", Type: types.ColumnDate},
	}, ds.Columns)

	require.Len(t, ds.Rows, 2)
	assert.Equal(t, "Alice", ds.Rows[0]["name"])
	assert.Equal(t, 12.5, types.ToNumber(ds.Rows[0]["score"]))
	assert.Equal(t, 2.0, types.ToNumber(ds.Rows[1]["id"]))
	assert.Nil(t, ds.Rows[1]["score"])

	admitted, ok := types.ToTime(ds.Rows[0]["admitted"])
	require.True(t, ok)
	assert.Equal(t, "2024-01-15", admitted.Format("2006-01-02"))
}

func TestLoadTable_QuotedName(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	_, err := storage.db.ExecContext(ctx, `CREATE TABLE "odd ""name""" (label TEXT)`)
	require.NoError(t, err)
	_, err = storage.db.ExecContext(ctx, `INSERT INTO "odd ""name""" (label) VALUES ('x')`)
	require.NoError(t, err)

	ds, err := storage.LoadTable(ctx, `odd "name"`)
	require.NoError(t, err)
	require.Len(t, ds.Rows, 1)
	assert.Equal(t, "x", ds.Rows[0]["label"])
}

func TestLoadTable_NotFound(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	_, err := storage.LoadTable(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = storage.LoadTable(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestColumnTypeFor(t *testing.T) {
	tests := []struct {
		decl string
		want types.ColumnType
	}{
		{"INTEGER", types.ColumnNumber},
		{"bigint", types.ColumnNumber},
		{"REAL", types.ColumnNumber},
		{"DOUBLE PRECISION", types.ColumnNumber},
		{"NUMERIC(10,2)", types.ColumnNumber},
		{"DECIMAL", types.ColumnNumber},
		{"DATE", types.ColumnDate},
		{"DATETIME", types.ColumnDate},
		{"TIMESTAMP", types.ColumnDate},
		{"TEXT", types.ColumnString},
		{"VARCHAR(20)", types.ColumnString},
		{"", types.ColumnString},
	}

	for _, tt := range tests {
		t.Run(tt.decl, func(t *testing.T) {
			assert.Equal(t, tt.want, columnTypeFor(tt.decl))
		})
	}
}

func TestRecordBuild(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		build := &BuildRecord{
			Dataset:  "scores",
			HandleID: []string{"h1", "h2", "h3"}[i],
			Rows:     10 * (i + 1),
			Columns:  3,
			Tokens:   100,
			Duration: 250 * time.Millisecond,
			BuiltAt:  base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, storage.RecordBuild(ctx, build))
		assert.Greater(t, build.ID, int64(0))
	}
	require.NoError(t, storage.RecordBuild(ctx, &BuildRecord{Dataset: "other", HandleID: "o1"}))

	builds, err := storage.ListBuilds(ctx, "scores", 2)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.Equal(t, "h3", builds[0].HandleID)
	assert.Equal(t, "h2", builds[1].HandleID)
	assert.Equal(t, 30, builds[0].Rows)
	assert.Equal(t, 250*time.Millisecond, builds[0].Duration)

	all, err := storage.ListBuilds(ctx, "scores", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRecordBuild_DefaultsBuiltAt(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	build := &BuildRecord{HandleID: "anon"}
	require.NoError(t, storage.RecordBuild(context.Background(), build))
	assert.False(t, build.BuiltAt.IsZero())
}

func TestBeginTx_CommitRollback(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()

	// Test commit
	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)

	info, err := tx.SaveDataset(ctx, testDataset("committed"))
	require.NoError(t, err)
	require.NoError(t, tx.RecordBuild(ctx, &BuildRecord{Dataset: "committed", HandleID: "h1"}))

	err = tx.Commit()
	require.NoError(t, err)

	// Verify committed
	retrieved, err := storage.GetDataset(ctx, "committed")
	require.NoError(t, err)
	assert.Equal(t, info.ID, retrieved.ID)

	builds, err := storage.ListBuilds(ctx, "committed", 10)
	require.NoError(t, err)
	assert.Len(t, builds, 1)

	// Test rollback
	tx2, err := storage.BeginTx(ctx)
	require.NoError(t, err)

	_, err = tx2.SaveDataset(ctx, testDataset("rolled-back"))
	require.NoError(t, err)

	err = tx2.Rollback()
	require.NoError(t, err)

	// Verify not committed
	_, err = storage.GetDataset(ctx, "rolled-back")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTx_NestedAndClose(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	_, err = tx.BeginTx(ctx)
	assert.Error(t, err)
	assert.NoError(t, tx.Close())
}

func TestMigrations_Rollback(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	require.NoError(t, RollbackMigration(ctx, storage.db))

	version, err := SchemaVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", version)

	// index_builds is gone, datasets remain
	err = storage.RecordBuild(ctx, &BuildRecord{HandleID: "h"})
	assert.Error(t, err)
	_, err = storage.SaveDataset(ctx, testDataset("still-here"))
	require.NoError(t, err)

	// Reapplying restores the latest schema
	require.NoError(t, ApplyMigrations(ctx, storage.db))
	version, err = SchemaVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
	assert.NoError(t, storage.RecordBuild(ctx, &BuildRecord{HandleID: "h"}))
}
