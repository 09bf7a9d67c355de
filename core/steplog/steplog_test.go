package steplog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/pvbess/core/factory"
	"github.com/kilianp07/pvbess/core/model"
)

var t0 = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func sample() []LogRecord {
	var out []LogRecord
	for i := 0; i < 4; i++ {
		run, sc := "a", model.ScenarioBaseline
		if i%2 == 1 {
			run, sc = "b", model.ScenarioFullAware
		}
		out = append(out, LogRecord{
			RunID:    run,
			Scenario: sc,
			Record: model.StepRecord{
				TimeIndex: i,
				Timestamp: t0.Add(time.Duration(i) * 30 * time.Minute),
				CostGBP:   float64(i),
				Solver:    "lp",
			},
		})
	}
	return out
}

func exercise(t *testing.T, store LogStore) {
	t.Helper()
	ctx := context.Background()
	for _, r := range sample() {
		require.NoError(t, store.Append(ctx, r))
	}

	all, err := store.Query(ctx, LogQuery{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, sample()[2], all[2])

	byRun, err := store.Query(ctx, LogQuery{RunID: "b"})
	require.NoError(t, err)
	require.Len(t, byRun, 2)
	assert.Equal(t, 1, byRun[0].Record.TimeIndex)

	byScenario, err := store.Query(ctx, LogQuery{Scenario: "baseline"})
	require.NoError(t, err)
	assert.Len(t, byScenario, 2)

	window, err := store.Query(ctx, LogQuery{Start: t0.Add(30 * time.Minute), End: t0.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, 1, window[0].Record.TimeIndex)
	assert.Equal(t, 2, window[1].Record.TimeIndex)
}

func TestLogRecord_JSON(t *testing.T) {
	data, err := json.Marshal(sample()[1])
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	for _, k := range []string{"run_id", "scenario", "record"} {
		assert.Contains(t, m, k)
	}
	assert.Equal(t, "full_aware", m["scenario"])
}

func TestJSONLStore(t *testing.T) {
	store, err := NewJSONLStore(filepath.Join(t.TempDir(), "sub", "steps.jsonl"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	exercise(t, store)
}

func TestJSONLStoreSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steps.jsonl")
	store, err := NewJSONLStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), sample()[0]))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, err := store.Query(context.Background(), LogQuery{})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestRotatingJSONLStore(t *testing.T) {
	store, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "steps.jsonl"), 1, 2, 1)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	exercise(t, store)
}

func TestRotatingJSONLStore_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steps.jsonl")
	store, err := NewRotatingJSONLStore(path, 1, 10, 1)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	rec := sample()[0]
	// roughly 2 MB of records forces at least one rotation
	for i := 0; i < 5000; i++ {
		rec.Record.TimeIndex = i
		require.NoError(t, store.Append(context.Background(), rec))
	}
	files, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "steps*"))
	assert.Greater(t, len(files), 1)

	out, err := store.Query(context.Background(), LogQuery{RunID: "a"})
	require.NoError(t, err)
	require.NotEmpty(t, out)
	for i := 1; i < len(out); i++ {
		require.Less(t, out[i-1].Record.TimeIndex, out[i].Record.TimeIndex)
	}
	assert.Equal(t, 4999, out[len(out)-1].Record.TimeIndex)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "steps.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	exercise(t, store)
}

func TestNewStore(t *testing.T) {
	assert.Equal(t, []string{"jsonl", "rotating", "sqlite"}, Registry.Types())

	store, err := NewStore(factory.ModuleConfig{Type: "jsonl", Conf: map[string]any{"path": filepath.Join(t.TempDir(), "x.jsonl")}})
	require.NoError(t, err)
	_, ok := store.(*JSONLStore)
	assert.True(t, ok)

	_, err = NewStore(factory.ModuleConfig{Type: "jsonl", Conf: map[string]any{"paht": "x"}})
	assert.Error(t, err)
	_, err = NewStore(factory.ModuleConfig{Type: "csv"})
	assert.Error(t, err)
}
