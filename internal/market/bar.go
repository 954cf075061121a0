package market

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// 中文说明：
// Bar 表示单个交易日的日线行情，模拟期间只读。

var (
	// ErrDataUnavailable 表示区间内没有任何 K 线（ticker 无效或窗口超出历史）。
	ErrDataUnavailable = errors.New("market: no bars available")
	// ErrDataSource 表示上游数据源传输/解析失败。
	ErrDataSource = errors.New("market: data source failure")
)

// Bar 单日 OHLCV。TS 为当日开盘时刻的 Unix 毫秒（UTC 0 点对齐）。
type Bar struct {
	TS     int64   `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Date 返回 ISO 日期（UTC）。
func (b Bar) Date() string {
	return time.UnixMilli(b.TS).UTC().Format("2006-01-02")
}

// Day 返回当日零点（UTC）。
func (b Bar) Day() time.Time {
	t := time.UnixMilli(b.TS).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ValidateSeries 校验日线序列：非空、按日期严格递增、无重复、价格为正。
func ValidateSeries(bars []Bar) error {
	if len(bars) == 0 {
		return ErrDataUnavailable
	}
	prev := int64(-1)
	for i, b := range bars {
		if b.TS <= prev {
			return fmt.Errorf("%w: bar #%d 日期乱序或重复 (%s)", ErrDataSource, i, b.Date())
		}
		if b.Open <= 0 || b.Close <= 0 {
			return fmt.Errorf("%w: bar #%d 价格非法 (open=%f close=%f)", ErrDataSource, i, b.Open, b.Close)
		}
		prev = b.TS
	}
	return nil
}

// SortBars 按 TS 升序排序（原地）。
func SortBars(bars []Bar) {
	sort.Slice(bars, func(i, j int) bool { return bars[i].TS < bars[j].TS })
}

// AlignDay 将任意毫秒时间对齐到 UTC 当日零点。
func AlignDay(ts int64) int64 {
	t := time.UnixMilli(ts).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).UnixMilli()
}
