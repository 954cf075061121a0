package market

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// 中文说明：
// SeriesLoader 为模拟器提供"已校验、可重放"的日线序列。
// 本地缺数据时先经 Service 同步，仍为空则报 ErrDataUnavailable。

type SeriesLoader struct {
	store *Store
	svc   *Service
}

func NewSeriesLoader(store *Store, svc *Service) *SeriesLoader {
	return &SeriesLoader{store: store, svc: svc}
}

// LoadSeries 返回 [start, end]（含）区间内按日期升序的日线序列。
// 返回的切片由调用方独占，后续读取不会变化。
func (l *SeriesLoader) LoadSeries(ctx context.Context, source, symbol string, start, end int64) ([]Bar, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, fmt.Errorf("%w: symbol 不能为空", ErrDataSource)
	}
	start = AlignDay(start)
	end = AlignDay(end)
	if start <= 0 || end <= 0 || end < start {
		return nil, fmt.Errorf("%w: 时间窗口非法", ErrDataSource)
	}
	symbol = strings.ToUpper(symbol)

	bars, err := l.store.RangeBars(ctx, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataSource, err)
	}
	if len(bars) == 0 && l.svc != nil {
		if err := l.syncWindow(ctx, source, symbol, start, end); err != nil {
			return nil, err
		}
		bars, err = l.store.RangeBars(ctx, symbol, start, end)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDataSource, err)
		}
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s [%d,%d]", ErrDataUnavailable, symbol, start, end)
	}
	SortBars(bars)
	if err := ValidateSeries(bars); err != nil {
		return nil, err
	}
	return bars, nil
}

func (l *SeriesLoader) syncWindow(ctx context.Context, source, symbol string, start, end int64) error {
	job, err := l.svc.SubmitFetch(FetchParams{Source: source, Symbol: symbol, Start: start, End: end})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDataSource, err)
	}
	// SubmitFetch 异步执行；轮询直到任务进入终态。
	for {
		snap, ok := l.svc.JobSnapshot(job.ID)
		if !ok {
			return fmt.Errorf("%w: 任务 %s 丢失", ErrDataSource, job.ID)
		}
		switch snap.Status {
		case JobStatusDone, JobStatusPartial:
			return nil
		case JobStatusFailed:
			return fmt.Errorf("%w: %s", ErrDataSource, snap.Message)
		}
		if err := sleepWithContext(ctx, 200*time.Millisecond); err != nil {
			return fmt.Errorf("%w: %v", ErrDataSource, err)
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
