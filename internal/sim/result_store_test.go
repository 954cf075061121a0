package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *ResultStore {
	t.Helper()
	store, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestResultStore_RunLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := Run{
		ID:          "run-abc",
		Symbol:      "AAPL",
		Strategy:    "moderate",
		Status:      RunStatusPending,
		StartTS:     1700000000000,
		EndTS:       1702000000000,
		InitialCash: 10000,
		Config: RunConfig{
			Symbol:           "AAPL",
			Strategy:         "moderate",
			InitialCash:      10000,
			ExecPrice:        ExecPriceOpen,
			DecisionInterval: 10,
			Source:           "polygon",
		},
	}
	require.NoError(t, store.InsertRun(ctx, run))

	got, err := store.GetRun(ctx, "run-abc")
	require.NoError(t, err)
	assert.Equal(t, RunStatusPending, got.Status)
	assert.Equal(t, "AAPL", got.Config.Symbol)
	assert.Equal(t, 10, got.Config.DecisionInterval)
	assert.True(t, got.CompletedAt.IsZero())

	require.NoError(t, store.UpdateRunStatus(ctx, "run-abc", RunStatusRunning, "加载行情数据…"))
	got, err = store.GetRun(ctx, "run-abc")
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, got.Status)
	assert.Equal(t, "加载行情数据…", got.Message)

	stats := RunStats{FinalValue: 10500, Profit: 500, ReturnPct: 5, Trades: 2, Rows: 21, FinishedAt: time.Now().UTC()}
	require.NoError(t, store.UpdateRunSummary(ctx, "run-abc", RunStatusDone, stats, "done"))
	got, err = store.GetRun(ctx, "run-abc")
	require.NoError(t, err)
	assert.Equal(t, RunStatusDone, got.Status)
	assert.Equal(t, 10500.0, got.FinalValue)
	assert.Equal(t, 5.0, got.ReturnPct)
	assert.Equal(t, 21, got.Stats.Rows)
	assert.False(t, got.CompletedAt.IsZero())
}

func TestResultStore_RowsAndTranscripts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertRun(ctx, Run{ID: "run-1", Symbol: "AAPL", Strategy: "secure", Status: RunStatusRunning}))

	for day := 0; day < 3; day++ {
		_, err := store.InsertRow(ctx, LogRow{
			RunID: "run-1", Day: day, TS: int64(day) * 86400000, Date: "2024-01-01",
			Action: "HOLD", Cash: 10000, PortfolioValue: 10000, Forced: day == 1,
		})
		require.NoError(t, err)
	}
	_, err := store.InsertTranscript(ctx, TranscriptRow{RunID: "run-1", TS: 0, Provider: "deepseek", UserPrompt: "p", RawOutput: "o"})
	require.NoError(t, err)

	rows, err := store.ListRows(ctx, "run-1", 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 0, rows[0].Day)
	assert.True(t, rows[1].Forced)
	assert.False(t, rows[2].Forced)

	trs, err := store.ListTranscripts(ctx, "run-1", 0)
	require.NoError(t, err)
	require.Len(t, trs, 1)
	assert.Equal(t, "deepseek", trs[0].Provider)

	// 其他 run 查不到
	rows, err = store.ListRows(ctx, "run-2", 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestResultStore_ListRunsOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertRun(ctx, Run{ID: "r1", Symbol: "AAPL", Strategy: "moderate", Status: RunStatusDone}))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.InsertRun(ctx, Run{ID: "r2", Symbol: "TSLA", Strategy: "moderate", Status: RunStatusPending}))

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID)
	assert.Equal(t, "r1", runs[1].ID)
}

func TestSummary(t *testing.T) {
	cfg := RunConfig{Symbol: "AAPL", Strategy: "moderate", StartTS: 1704067200000, EndTS: 1704326400000, InitialCash: 10000}
	stats := RunStats{FinalValue: 10500, Profit: 500, ReturnPct: 5, Rows: 4, Buys: 1, Sells: 1}

	text := Summary(cfg, stats)
	assert.Contains(t, text, "AAPL moderate 模拟完成")
	assert.Contains(t, text, "2024-01-01 ~ 2024-01-04")
	assert.Contains(t, text, "总收益: 500.00 (5.00%)")
	assert.NotContains(t, text, "降级 HOLD")

	stats.ForcedHolds = 2
	assert.Contains(t, Summary(cfg, stats), "决策失败降级 HOLD: 2 日")
}
