package market

import "context"

// FetchRequest 描述一次远端日线请求。
type FetchRequest struct {
	Symbol string
	Start  int64 // Unix ms（含）
	End    int64 // Unix ms（含；0 表示不限制）
	Limit  int
}

// BarSource 统一不同行情提供商的日线拉取行为。
type BarSource interface {
	Fetch(ctx context.Context, req FetchRequest) ([]Bar, error)
	Name() string
}
