package portfolio

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "portfolio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewService(store)
}

func TestService_EnsureAccount(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	acc, err := svc.EnsureAccount(ctx, 5000)
	require.NoError(t, err)
	assert.Equal(t, "default", acc.Name)
	assert.Equal(t, "5000", acc.Cash)
	assert.Empty(t, acc.Holdings)

	// 二次调用不重复创建，也不改初始资金
	again, err := svc.EnsureAccount(ctx, 999999)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, again.ID)
	assert.Equal(t, "5000", again.Cash)
}

func TestService_TradeBuySell(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.EnsureAccount(ctx, 10000)
	require.NoError(t, err)

	acc, tr, err := svc.Trade(ctx, TradeRequest{Symbol: "aapl", Action: "buy", Shares: 50, Price: 100})
	require.NoError(t, err)
	assert.Equal(t, "BUY", tr.Action)
	assert.Equal(t, "50", tr.Shares)
	assert.Equal(t, "5000", acc.Cash)
	require.Len(t, acc.Holdings, 1)
	assert.Equal(t, "AAPL", acc.Holdings[0].Symbol)
	assert.Equal(t, "100", acc.Holdings[0].AvgCost)

	acc, tr, err = svc.Trade(ctx, TradeRequest{Symbol: "AAPL", Action: "SELL", Shares: 50, Price: 120})
	require.NoError(t, err)
	assert.Equal(t, "SELL", tr.Action)
	assert.Equal(t, "1000", tr.Realized)
	assert.Equal(t, "11000", acc.Cash)
	// 清仓后持仓不再出现在快照里
	assert.Empty(t, acc.Holdings)
}

func TestService_TradeClamps(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.EnsureAccount(ctx, 1000)
	require.NoError(t, err)

	// 资金不足：缩量到可负担股数
	acc, tr, err := svc.Trade(ctx, TradeRequest{Symbol: "TSLA", Action: "BUY", Shares: 1000, Price: 100})
	require.NoError(t, err)
	assert.Equal(t, "BUY", tr.Action)
	assert.Equal(t, "10", tr.Shares)
	assert.Equal(t, "0", acc.Cash)

	// 超卖：缩量到持仓
	acc, tr, err = svc.Trade(ctx, TradeRequest{Symbol: "TSLA", Action: "SELL", Shares: 9999, Price: 100})
	require.NoError(t, err)
	assert.Equal(t, "10", tr.Shares)
	assert.Equal(t, "1000", acc.Cash)

	// 无持仓卖出：降级 HOLD，账户不变，但留痕
	acc, tr, err = svc.Trade(ctx, TradeRequest{Symbol: "TSLA", Action: "SELL", Shares: 5, Price: 100})
	require.NoError(t, err)
	assert.Equal(t, "HOLD", tr.Action)
	assert.Equal(t, "0", tr.Shares)
	assert.Equal(t, "1000", acc.Cash)

	history, err := svc.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	actions := make([]string, 0, len(history))
	for _, h := range history {
		actions = append(actions, h.Action)
	}
	assert.ElementsMatch(t, []string{"BUY", "SELL", "HOLD"}, actions)
}

func TestService_TradeValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.EnsureAccount(ctx, 1000)
	require.NoError(t, err)

	_, _, err = svc.Trade(ctx, TradeRequest{Symbol: "", Action: "BUY", Shares: 1, Price: 10})
	assert.Error(t, err)

	_, _, err = svc.Trade(ctx, TradeRequest{Symbol: "AAPL", Action: "SHORT", Shares: 1, Price: 10})
	assert.Error(t, err)

	_, _, err = svc.Trade(ctx, TradeRequest{Symbol: "AAPL", Action: "BUY", Shares: 1, Price: 0})
	assert.Error(t, err)
}

func TestService_Reset(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.EnsureAccount(ctx, 10000)
	require.NoError(t, err)

	_, _, err = svc.Trade(ctx, TradeRequest{Symbol: "AAPL", Action: "BUY", Shares: 10, Price: 100})
	require.NoError(t, err)

	acc, err := svc.Reset(ctx, 20000)
	require.NoError(t, err)
	assert.Equal(t, "20000", acc.Cash)
	assert.Equal(t, "20000", acc.InitialCash)
	assert.Empty(t, acc.Holdings)

	history, err := svc.History(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}
