package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSource 返回固定日线，模拟远端数据源。
type stubSource struct {
	bars []Bar
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Fetch(_ context.Context, _ FetchRequest) ([]Bar, error) {
	return s.bars, nil
}

func naturalDayBars(start time.Time, closes ...float64) []Bar {
	bars := make([]Bar, 0, len(closes))
	for i, c := range closes {
		bars = append(bars, Bar{
			TS:     start.AddDate(0, 0, i).UnixMilli(),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 100,
		})
	}
	return bars
}

func waitForJob(t *testing.T, svc *Service, id string) FetchJob {
	t.Helper()
	var job FetchJob
	require.Eventually(t, func() bool {
		j, ok := svc.JobSnapshot(id)
		if !ok {
			return false
		}
		job = j
		return j.Status != JobStatusPending && j.Status != JobStatusRunning
	}, 2*time.Second, 10*time.Millisecond)
	return job
}

func TestService_FetchProgressNotDoubleCounted(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	all := naturalDayBars(start, 100, 101, 102)

	// 第一天的数据已经在库里，远端会把三天全部重发一遍
	_, err = store.InsertBars(context.Background(), "BTCUSDT", all[:1])
	require.NoError(t, err)

	svc, err := NewService(ServiceConfig{
		Store:   store,
		Sources: map[string]BarSource{"binance": &stubSource{bars: all}},
	})
	require.NoError(t, err)

	job, err := svc.SubmitFetch(FetchParams{
		Source: "binance",
		Symbol: "BTCUSDT",
		Start:  start.UnixMilli(),
		End:    start.AddDate(0, 0, 2).UnixMilli(),
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), job.Total)
	require.Equal(t, int64(1), job.Completed)

	done := waitForJob(t, svc, job.ID)
	assert.Equal(t, JobStatusDone, done.Status)
	// 重叠的那一行是覆盖写入，进度必须等于库内实际条数
	assert.Equal(t, int64(3), done.Completed)
	assert.LessOrEqual(t, done.Completed, done.Total)
}

func TestService_SubmitFetchCompleteDataShortCircuits(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err = store.InsertBars(context.Background(), "ETHUSDT", naturalDayBars(start, 10, 11))
	require.NoError(t, err)

	svc, err := NewService(ServiceConfig{
		Store:   store,
		Sources: map[string]BarSource{"binance": &stubSource{}},
	})
	require.NoError(t, err)

	job, err := svc.SubmitFetch(FetchParams{
		Source: "binance",
		Symbol: "ETHUSDT",
		Start:  start.UnixMilli(),
		End:    start.AddDate(0, 0, 1).UnixMilli(),
	})
	require.NoError(t, err)
	assert.Equal(t, JobStatusDone, job.Status)
	assert.Equal(t, int64(2), job.Completed)
}
