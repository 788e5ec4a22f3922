package engine

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tablesearch-mcp/internal/filter"
	"github.com/dshills/tablesearch-mcp/internal/indexer"
	"github.com/dshills/tablesearch-mcp/pkg/types"
)

func sampleRows() []types.Row {
	return []types.Row{
		{"code": "A1", "points": 100},
		{"code": "A2", "points": 200},
		{"code": "B1", "points": 150},
	}
}

func sampleColumns() []types.Column {
	return []types.Column{
		{Key: "code", Type: types.ColumnString},
		{Key: "points", Type: types.ColumnNumber},
	}
}

func setupTestEngine(t *testing.T) (*Engine, *Handle) {
	t.Helper()
	eng, err := New(DefaultConfig())
	require.NoError(t, err)
	h, err := eng.BuildIndex(context.Background(), sampleRows(), sampleColumns())
	require.NoError(t, err)
	return eng, h
}

func TestEngine_NotIndexed(t *testing.T) {
	eng, err := New(DefaultConfig())
	require.NoError(t, err)

	_, err = eng.Current()
	assert.ErrorIs(t, err, ErrNotIndexed)
	_, err = eng.Query("a")
	assert.ErrorIs(t, err, ErrNotIndexed)
	_, err = eng.IncrementalQuery("a", "a1")
	assert.ErrorIs(t, err, ErrNotIndexed)
	_, err = eng.ApplyFilters(filter.Spec{})
	assert.ErrorIs(t, err, ErrNotIndexed)
	_, err = eng.Suggest("a", 5)
	assert.ErrorIs(t, err, ErrNotIndexed)
	_, err = eng.Status()
	assert.ErrorIs(t, err, ErrNotIndexed)
}

func TestHandle_QueryScenario(t *testing.T) {
	_, h := setupTestEngine(t)

	res := h.Query("A")
	assert.Equal(t, []int{0, 1}, res.Indices)
	assert.Equal(t, "A1", res.Rows[0]["code"])
	assert.Equal(t, "A2", res.Rows[1]["code"])
	assert.Equal(t, types.SourceIndex, res.Source)
	assert.False(t, res.IsIncremental)

	inc := h.IncrementalQuery("A", "A1")
	assert.Equal(t, []int{0}, inc.Indices)
	assert.True(t, inc.IsIncremental)
}

func TestHandle_FuzzyQuery(t *testing.T) {
	rows := []types.Row{{"test": "blood test"}, {"test": "urine test"}}

	cfg := DefaultConfig()
	eng, err := New(cfg)
	require.NoError(t, err)
	h, err := eng.BuildIndex(context.Background(), rows, nil)
	require.NoError(t, err)
	assert.Empty(t, h.Query("bloid test").Indices)

	cfg.Fuzzy = true
	eng, err = New(cfg)
	require.NoError(t, err)
	h, err = eng.BuildIndex(context.Background(), rows, nil)
	require.NoError(t, err)

	res := h.Query("bloid test")
	assert.Equal(t, []int{0}, res.Indices)
	assert.Equal(t, types.SourceFuzzy, res.Source)
}

func TestHandle_QueryIdempotent(t *testing.T) {
	_, h := setupTestEngine(t)

	first := h.Query("1")
	second := h.Query("1")
	assert.Equal(t, first.Indices, second.Indices)
	assert.Equal(t, types.SourceCache, second.Source)
	assert.GreaterOrEqual(t, second.ElapsedMillis(), 0.0)
}

func TestHandle_FilterScenarios(t *testing.T) {
	_, h := setupTestEngine(t)

	res, err := h.ApplyFilters(filter.Spec{
		Logic: "AND",
		Conditions: []filter.ConditionSpec{
			{Field: "points", Operator: "gte", Value: 120},
			{Field: "code", Operator: "contains", Value: "A"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Indices)
	assert.Equal(t, "A2", res.Rows[0]["code"])

	st := h.Status()
	assert.Equal(t, int64(3), st.Filter.Composite.Evaluations)
	assert.Equal(t, int64(2), st.Filter.Composite.ShortCircuits)

	res, err = h.ApplyFilters(filter.Spec{
		NumericRanges: map[string]filter.NumericRange{"points": {Min: 100, Max: 150}},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, res.Indices)
	assert.False(t, res.Cached)

	res, err = h.ApplyFilters(filter.Spec{
		NumericRanges: map[string]filter.NumericRange{"points": {Min: 100, Max: 150}},
	})
	require.NoError(t, err)
	assert.True(t, res.Cached)
}

func TestHandle_FilterShapeError(t *testing.T) {
	_, h := setupTestEngine(t)

	_, err := h.ApplyFilters(filter.Spec{
		Conditions: []filter.ConditionSpec{{Field: "points", Operator: "between", Value: 5}},
	})
	assert.ErrorIs(t, err, filter.ErrInvalidArity)
	assert.Equal(t, int64(0), h.Status().Filter.Composite.Evaluations)
}

func TestHandle_Suggest(t *testing.T) {
	_, h := setupTestEngine(t)

	got := h.Suggest("a", 10)
	require.Len(t, got, 3)
	assert.Equal(t, indexer.Suggestion{Term: "a", Frequency: 2}, got[0])
	assert.Equal(t, "a1", got[1].Term)
	assert.Equal(t, "a2", got[2].Term)
}

func TestHandle_Status(t *testing.T) {
	eng, h := setupTestEngine(t)
	h.Query("a")
	h.Query("a")

	st, err := eng.Status()
	require.NoError(t, err)
	assert.Equal(t, h.ID(), st.ID)
	assert.Equal(t, 3, st.Index.Rows)
	assert.Equal(t, 3, st.Build.RowsIndexed)
	assert.Equal(t, uint64(1), st.Search.Cache.Hits)
	assert.False(t, st.Indexing)
	assert.False(t, st.BuiltAt.IsZero())
}

func TestEngine_EmptyDataset(t *testing.T) {
	eng, err := New(DefaultConfig())
	require.NoError(t, err)

	h, err := eng.BuildIndex(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, h.Query("a").Indices)

	res, err := h.ApplyFilters(filter.Spec{})
	require.NoError(t, err)
	assert.Empty(t, res.Indices)
}

func TestEngine_RebuildSwapsHandle(t *testing.T) {
	eng, first := setupTestEngine(t)
	first.Query("a")

	rows := []types.Row{{"code": "Z9", "points": 1}}
	second, err := eng.BuildIndex(context.Background(), rows, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())

	current, err := eng.Current()
	require.NoError(t, err)
	assert.Same(t, second, current)

	// Fresh caches on the new handle, old handle still answers on old rows
	res := second.Query("a")
	assert.Empty(t, res.Indices)
	assert.Equal(t, types.SourceIndex, res.Source)
	assert.Equal(t, []int{0, 1}, first.Query("a").Indices)
}

func TestEngine_BuildDataset(t *testing.T) {
	eng, err := New(DefaultConfig())
	require.NoError(t, err)

	h, err := eng.BuildDataset(context.Background(), &types.Dataset{
		Name:    "scores",
		Columns: sampleColumns(),
		Rows:    sampleRows(),
	})
	require.NoError(t, err)
	assert.Equal(t, "scores", h.Dataset())
	assert.Len(t, h.Columns(), 2)
	assert.Len(t, h.Rows(), 3)

	_, err = eng.BuildDataset(context.Background(), &types.Dataset{
		Name:    "bad",
		Columns: []types.Column{{Key: "a", Type: types.ColumnString}, {Key: "a", Type: types.ColumnString}},
	})
	assert.ErrorIs(t, err, types.ErrDuplicateColumn)

	_, err = eng.BuildDataset(context.Background(), nil)
	assert.Error(t, err)
}

func TestEngine_BuildCancelled(t *testing.T) {
	eng, err := New(DefaultConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = eng.BuildIndex(ctx, sampleRows(), nil)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = eng.Current()
	assert.ErrorIs(t, err, ErrNotIndexed)
}

func TestEngine_ConcurrentQueries(t *testing.T) {
	eng, _ := setupTestEngine(t)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				res, err := eng.IncrementalQuery("a", "a1")
				if assert.NoError(t, err) {
					assert.Equal(t, []int{0}, res.Indices)
				}
				_, err = eng.ApplyFilters(filter.Spec{
					NumericRanges: map[string]filter.NumericRange{"points": {Min: 0, Max: 150}},
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}

func TestEngine_LogsBuild(t *testing.T) {
	var buf bytes.Buffer
	eng, err := New(DefaultConfig(), WithLogger(NewLogger(&buf, slog.LevelInfo)))
	require.NoError(t, err)

	_, err = eng.BuildIndex(context.Background(), sampleRows(), nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "index built")
	assert.Contains(t, buf.String(), "rows=3")
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvSearchCacheSize, "5")
	t.Setenv(EnvFilterCacheSize, " 7 ")
	t.Setenv(EnvMaxGram, "3")
	t.Setenv(EnvSubstringFallback, "false")
	t.Setenv(EnvFuzzy, "true")
	t.Setenv(EnvMinSimilarity, "85")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.SearchCacheSize)
	assert.Equal(t, 7, cfg.FilterCacheSize)
	assert.Equal(t, 3, cfg.MaxGram)
	assert.Equal(t, DefaultConfig().MinGram, cfg.MinGram)
	assert.False(t, cfg.SubstringFallback)
	assert.True(t, cfg.Fuzzy)
	assert.Equal(t, 85, cfg.MinSimilarity)
}

func TestConfigFromEnv_Invalid(t *testing.T) {
	t.Setenv(EnvWorkers, "many")
	_, err := ConfigFromEnv()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinGram, cfg.MaxGram = 4, 2
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.SearchCacheSize = -1
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.MinSimilarity = 101
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	assert.False(t, DefaultConfig().Fuzzy)
}

func TestNewLoggerFromEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")
	logger, err := NewLoggerFromEnv()
	require.NoError(t, err)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	t.Setenv(EnvLogLevel, "loud")
	_, err = NewLoggerFromEnv()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
