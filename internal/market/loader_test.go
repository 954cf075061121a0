package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoader(t *testing.T) (*SeriesLoader, *Store) {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewSeriesLoader(store, nil), store
}

func TestSeriesLoader_LoadSeries(t *testing.T) {
	loader, store := newTestLoader(t)
	ctx := context.Background()

	bars := []Bar{
		{TS: ts(2024, 1, 2), Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 1000},
		{TS: ts(2024, 1, 3), Open: 100.5, High: 103, Low: 100, Close: 102, Volume: 1200},
		{TS: ts(2024, 1, 4), Open: 102, High: 104, Low: 101, Close: 103, Volume: 900},
	}
	_, err := store.InsertBars(ctx, "AAPL", bars)
	require.NoError(t, err)

	got, err := loader.LoadSeries(ctx, "polygon", "aapl", ts(2024, 1, 2), ts(2024, 1, 3))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 100.5, got[0].Close)

	// 非零点时间戳自动对齐到当日
	got, err = loader.LoadSeries(ctx, "polygon", "AAPL", ts(2024, 1, 2)+3600_000, ts(2024, 1, 4)+7200_000)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestSeriesLoader_Unavailable(t *testing.T) {
	loader, _ := newTestLoader(t)
	ctx := context.Background()

	// svc 为 nil 且本地无数据：直接 ErrDataUnavailable
	_, err := loader.LoadSeries(ctx, "polygon", "NOPE", ts(2024, 1, 2), ts(2024, 1, 5))
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestSeriesLoader_BadInput(t *testing.T) {
	loader, _ := newTestLoader(t)
	ctx := context.Background()

	_, err := loader.LoadSeries(ctx, "polygon", "", ts(2024, 1, 2), ts(2024, 1, 5))
	assert.ErrorIs(t, err, ErrDataSource)

	_, err = loader.LoadSeries(ctx, "polygon", "AAPL", ts(2024, 1, 5), ts(2024, 1, 2))
	assert.ErrorIs(t, err, ErrDataSource)
}
