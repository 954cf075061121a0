package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"stocksim/internal/market"
	"stocksim/internal/oracle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedOracle 按调用次序返回预设决策，第 N 次调用可注入错误。
type scriptedOracle struct {
	decisions []oracle.Decision
	failAt    int // 第几次调用失败（从 0 起），-1 表示从不失败
	calls     int
	states    []oracle.State
}

func newScriptedOracle(decisions ...oracle.Decision) *scriptedOracle {
	return &scriptedOracle{decisions: decisions, failAt: -1}
}

func (s *scriptedOracle) Decide(_ context.Context, state oracle.State) (oracle.Decision, error) {
	idx := s.calls
	s.calls++
	s.states = append(s.states, state)
	if idx == s.failAt {
		return oracle.Decision{}, errors.New("provider timeout")
	}
	if idx < len(s.decisions) {
		return s.decisions[idx], nil
	}
	return oracle.Decision{Action: oracle.ActionHold}, nil
}

func (s *scriptedOracle) LastTranscript() (oracle.Transcript, bool) {
	return oracle.Transcript{ProviderID: "scripted", UserPrompt: "prompt", RawOutput: "raw"}, true
}

func dayBars(prices ...[2]float64) []market.Bar {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, 0, len(prices))
	for i, p := range prices {
		bars = append(bars, market.Bar{
			TS:     base.AddDate(0, 0, i).UnixMilli(),
			Open:   p[0],
			High:   p[1],
			Low:    p[0],
			Close:  p[1],
			Volume: 1000,
		})
	}
	return bars
}

func TestStepper_SingleDayBuy(t *testing.T) {
	orc := newScriptedOracle(oracle.Decision{Action: oracle.ActionBuy, Quantity: 50, Reason: "breakout"})
	st := NewStepper(RunConfig{Symbol: "AAPL", InitialCash: 10000, ExecPrice: ExecPriceOpen, DecisionInterval: 1}, orc)

	rows, _, stats, err := st.Run(context.Background(), "run-1", dayBars([2]float64{100, 110}))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, oracle.ActionBuy, row.Action)
	assert.Equal(t, 50.0, row.Quantity)
	assert.Equal(t, 100.0, row.ExecPrice)
	assert.Equal(t, 5000.0, row.Cash)
	assert.Equal(t, 50.0, row.Shares)
	assert.Equal(t, 10500.0, row.PortfolioValue)
	// 首日盈亏以初始资金为基准
	assert.Equal(t, 500.0, row.DailyPnL)
	assert.Equal(t, "breakout", row.Reason)

	assert.Equal(t, 10500.0, stats.FinalValue)
	assert.Equal(t, 500.0, stats.Profit)
	assert.InDelta(t, 5.0, stats.ReturnPct, 1e-9)
	assert.Equal(t, 1, stats.Buys)
	assert.Equal(t, 1, stats.Rows)
}

func TestStepper_EmptyBars(t *testing.T) {
	st := NewStepper(RunConfig{InitialCash: 10000}, newScriptedOracle())
	_, _, _, err := st.Run(context.Background(), "run-1", nil)
	assert.ErrorIs(t, err, market.ErrDataUnavailable)
}

func TestStepper_OracleFailureBecomesForcedHold(t *testing.T) {
	orc := newScriptedOracle(
		oracle.Decision{Action: oracle.ActionBuy, Quantity: 10},
		oracle.Decision{Action: oracle.ActionHold},
		oracle.Decision{Action: oracle.ActionHold},
	)
	orc.failAt = 1
	st := NewStepper(RunConfig{Symbol: "AAPL", InitialCash: 10000, DecisionInterval: 1}, orc)

	bars := dayBars([2]float64{100, 101}, [2]float64{101, 102}, [2]float64{102, 103})
	rows, _, stats, err := st.Run(context.Background(), "run-1", bars)
	require.NoError(t, err)
	// 单日失败不中断：行数与 K 线数一致
	require.Len(t, rows, 3)

	assert.Equal(t, oracle.ActionHold, rows[1].Action)
	assert.True(t, rows[1].Forced)
	assert.Equal(t, "oracle failure", rows[1].Reason)
	assert.False(t, rows[0].Forced)
	assert.False(t, rows[2].Forced)
	assert.Equal(t, 1, stats.ForcedHolds)
}

func TestStepper_DecisionIntervalGating(t *testing.T) {
	orc := newScriptedOracle(
		oracle.Decision{Action: oracle.ActionHold},
		oracle.Decision{Action: oracle.ActionHold},
	)
	st := NewStepper(RunConfig{Symbol: "AAPL", InitialCash: 10000, DecisionInterval: 3}, orc)

	bars := dayBars(
		[2]float64{100, 100}, [2]float64{100, 100}, [2]float64{100, 100},
		[2]float64{100, 100}, [2]float64{100, 100},
	)
	rows, _, _, err := st.Run(context.Background(), "run-1", bars)
	require.NoError(t, err)
	require.Len(t, rows, 5)

	// 第 0、3 日为决策日，其余日不问询
	assert.Equal(t, 2, orc.calls)
	// 决策日可见历史含当日
	assert.Len(t, orc.states[0].Bars, 1)
	assert.Len(t, orc.states[1].Bars, 4)
}

func TestStepper_LookbackTrimsVisibleHistory(t *testing.T) {
	orc := newScriptedOracle()
	st := NewStepper(RunConfig{
		Symbol: "AAPL", InitialCash: 10000,
		DecisionInterval: 1, Lookback: 2, ExecPrice: ExecPriceClose,
	}, orc)

	bars := dayBars(
		[2]float64{100, 101}, [2]float64{101, 102},
		[2]float64{102, 103}, [2]float64{103, 104},
	)
	_, _, _, err := st.Run(context.Background(), "run-1", bars)
	require.NoError(t, err)
	require.Equal(t, 4, orc.calls)

	assert.Len(t, orc.states[0].Bars, 1)
	assert.Len(t, orc.states[1].Bars, 2)
	assert.Len(t, orc.states[2].Bars, 2)
	assert.Len(t, orc.states[3].Bars, 2)
	// 窗口滑到最近两根，末尾是当日
	assert.Equal(t, bars[2].TS, orc.states[3].Bars[0].TS)
	assert.Equal(t, bars[3].TS, orc.states[3].Bars[1].TS)
}

func TestStepper_OpenFillHidesCurrentClose(t *testing.T) {
	orc := newScriptedOracle()
	st := NewStepper(RunConfig{
		Symbol: "AAPL", InitialCash: 10000,
		DecisionInterval: 1, ExecPrice: ExecPriceOpen,
	}, orc)

	bars := dayBars([2]float64{100, 110}, [2]float64{111, 125})
	_, _, _, err := st.Run(context.Background(), "run-1", bars)
	require.NoError(t, err)
	require.Equal(t, 2, orc.calls)

	// 开盘成交时当日只给开盘价，收盘高低量一律抹平
	cur := orc.states[1].Bars[1]
	assert.Equal(t, 111.0, cur.Open)
	assert.Equal(t, 111.0, cur.Close)
	assert.Equal(t, 111.0, cur.High)
	assert.Equal(t, 111.0, cur.Low)
	assert.Equal(t, 0.0, cur.Volume)
	// 已收盘的历史照常可见
	assert.Equal(t, 110.0, orc.states[1].Bars[0].Close)
	// 原始序列不被改动
	assert.Equal(t, 125.0, bars[1].Close)
}

func TestStepper_CloseFillSeesCurrentClose(t *testing.T) {
	orc := newScriptedOracle()
	st := NewStepper(RunConfig{
		Symbol: "AAPL", InitialCash: 10000,
		DecisionInterval: 1, ExecPrice: ExecPriceClose,
	}, orc)

	_, _, _, err := st.Run(context.Background(), "run-1", dayBars([2]float64{100, 110}))
	require.NoError(t, err)
	require.Equal(t, 1, orc.calls)
	assert.Equal(t, 110.0, orc.states[0].Bars[0].Close)
}

func TestStepper_ExecPriceClose(t *testing.T) {
	orc := newScriptedOracle(oracle.Decision{Action: oracle.ActionBuy, Quantity: 10})
	st := NewStepper(RunConfig{Symbol: "AAPL", InitialCash: 10000, DecisionInterval: 1, ExecPrice: ExecPriceClose}, orc)

	rows, _, _, err := st.Run(context.Background(), "run-1", dayBars([2]float64{100, 110}))
	require.NoError(t, err)
	assert.Equal(t, 110.0, rows[0].ExecPrice)
	assert.Equal(t, 10000.0-1100.0, rows[0].Cash)
}

func TestStepper_Deterministic(t *testing.T) {
	bars := dayBars(
		[2]float64{100, 105}, [2]float64{105, 103}, [2]float64{103, 108},
		[2]float64{108, 110}, [2]float64{110, 107},
	)
	script := []oracle.Decision{
		{Action: oracle.ActionBuy, Fraction: 0.5},
		{Action: oracle.ActionHold},
		{Action: oracle.ActionBuy, AmountUSD: 1000},
		{Action: oracle.ActionSell, Fraction: 1.0},
		{Action: oracle.ActionHold},
	}

	run := func() ([]LogRow, RunStats) {
		st := NewStepper(RunConfig{Symbol: "AAPL", InitialCash: 10000, DecisionInterval: 1}, newScriptedOracle(script...))
		rows, _, stats, err := st.Run(context.Background(), "run-x", bars)
		require.NoError(t, err)
		return rows, stats
	}

	rows1, stats1 := run()
	rows2, stats2 := run()
	assert.Equal(t, rows1, rows2)
	assert.Equal(t, stats1, stats2)
}

func TestStepper_InvariantsPerRow(t *testing.T) {
	bars := dayBars(
		[2]float64{10, 12}, [2]float64{12, 9}, [2]float64{9, 14},
		[2]float64{14, 13}, [2]float64{13, 16},
	)
	script := []oracle.Decision{
		{Action: oracle.ActionBuy, Fraction: 1.0},
		{Action: oracle.ActionSell, Quantity: 99999},
		{Action: oracle.ActionBuy, Quantity: 99999},
		{Action: oracle.ActionSell, Fraction: 0.5},
		{Action: oracle.ActionSell, Fraction: 1.0},
	}
	st := NewStepper(RunConfig{Symbol: "AAPL", InitialCash: 500, DecisionInterval: 1, Fee: 0.5}, newScriptedOracle(script...))

	rows, _, _, err := st.Run(context.Background(), "run-1", bars)
	require.NoError(t, err)
	for _, row := range rows {
		assert.GreaterOrEqual(t, row.Cash, 0.0, "day %d", row.Day)
		assert.GreaterOrEqual(t, row.Shares, 0.0, "day %d", row.Day)
		assert.InDelta(t, row.Cash+row.Shares*row.ClosePrice, row.PortfolioValue, 1e-9, "day %d", row.Day)
	}
}

func TestStepper_TranscriptsOnDecisionDays(t *testing.T) {
	orc := newScriptedOracle(oracle.Decision{Action: oracle.ActionHold}, oracle.Decision{Action: oracle.ActionHold})
	st := NewStepper(RunConfig{Symbol: "AAPL", InitialCash: 10000, DecisionInterval: 2}, orc)

	bars := dayBars([2]float64{100, 100}, [2]float64{100, 100}, [2]float64{100, 100})
	_, transcripts, _, err := st.Run(context.Background(), "run-1", bars)
	require.NoError(t, err)
	require.Len(t, transcripts, 2)
	assert.Equal(t, "scripted", transcripts[0].Provider)
	assert.Equal(t, "run-1", transcripts[0].RunID)
}

func TestStepper_OnRowCallback(t *testing.T) {
	orc := newScriptedOracle()
	st := NewStepper(RunConfig{Symbol: "AAPL", InitialCash: 10000, DecisionInterval: 1}, orc)

	var seen []int
	st.OnRow(func(row LogRow) { seen = append(seen, row.Day) })

	bars := dayBars([2]float64{100, 100}, [2]float64{100, 100})
	_, _, _, err := st.Run(context.Background(), "run-1", bars)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, seen)
}

func TestStepper_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := NewStepper(RunConfig{Symbol: "AAPL", InitialCash: 10000, DecisionInterval: 1}, newScriptedOracle())
	_, _, _, err := st.Run(ctx, "run-1", dayBars([2]float64{100, 100}))
	assert.ErrorIs(t, err, context.Canceled)
}
