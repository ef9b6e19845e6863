package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/site-density/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()

	st, err := NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLiteStore_CreateAndGetRun(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	params := model.DefaultParams()
	created, err := st.CreateRun(ctx, "sites.csv", params)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.RunStatusQueued, created.Status)

	got, err := st.GetRun(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "sites.csv", got.Source)
	assert.Equal(t, params, got.Params)
	assert.Nil(t, got.Result)
}

func TestSQLiteStore_GetRunNotFound(t *testing.T) {
	st := newTestSQLite(t)

	_, err := st.GetRun(context.Background(), "no-such-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteStore_UpdateRunStatus(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "sites.csv", model.DefaultParams())
	require.NoError(t, err)

	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, model.RunStatusAnalyzing))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusAnalyzing, got.Status)

	err = st.UpdateRunStatus(ctx, "no-such-run", model.RunStatusFailed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteStore_SaveRunResult(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "sites.csv", model.DefaultParams())
	require.NoError(t, err)

	result := &model.AnalysisResult{
		Sites: []model.ClassifiedSite{
			{SiteID: "s1", Lat: 1, Lon: 2, ClusterID: "c1",
				GroupID: "deadbeef01020304", GroupSize: 1, AreaClass: model.TierRural},
		},
		Summary:  model.AnalysisSummary{Rural: 1},
		Messages: []string{"Processed 1 sites successfully"},
	}
	require.NoError(t, st.SaveRunResult(ctx, run.ID, result))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, result.Sites, got.Result.Sites)
	assert.Equal(t, result.Summary, got.Result.Summary)
	assert.Equal(t, result.Messages, got.Result.Messages)
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	a, err := st.CreateRun(ctx, "a.csv", model.DefaultParams())
	require.NoError(t, err)
	b, err := st.CreateRun(ctx, "b.csv", model.DefaultParams())
	require.NoError(t, err)
	require.NoError(t, st.UpdateRunStatus(ctx, b.ID, model.RunStatusComplete))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	ids := []string{all[0].ID, all[1].ID}
	assert.Contains(t, ids, a.ID)
	assert.Contains(t, ids, b.ID)

	complete, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, b.ID, complete[0].ID)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	assert.Empty(t, none)
}
