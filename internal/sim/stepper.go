package sim

import (
	"context"

	"stocksim/internal/logger"
	"stocksim/internal/market"
	"stocksim/internal/oracle"
)

const forcedHoldReason = "oracle failure"

// Oracle 是 stepper 消费的窄接口，真实实现为 oracle.Engine。
type Oracle interface {
	Decide(ctx context.Context, state oracle.State) (oracle.Decision, error)
	LastTranscript() (oracle.Transcript, bool)
}

// Stepper 按日推进一次模拟：问询 -> 成交 -> 估值 -> 记账。
// 状态机每根 K 线走一遍 PENDING->DECIDED->EXECUTED->LOGGED，
// 处理完最后一根即完成；循环内没有任何致命路径，单日失败一律降级。
type Stepper struct {
	cfg    RunConfig
	oracle Oracle
	ledger *Ledger

	// onRow 在每行流水生成后回调（可为 nil），用于落库与进度上报。
	onRow func(LogRow)
}

func NewStepper(cfg RunConfig, orc Oracle) *Stepper {
	if cfg.DecisionInterval < 1 {
		cfg.DecisionInterval = 1
	}
	if cfg.ExecPrice == "" {
		cfg.ExecPrice = ExecPriceOpen
	}
	return &Stepper{
		cfg:    cfg,
		oracle: orc,
		ledger: NewLedger(cfg.InitialCash, cfg.Fee),
	}
}

func (st *Stepper) OnRow(fn func(LogRow)) { st.onRow = fn }

// Run 处理整段 K 线并返回全量流水与汇总。
// bars 为空由调用方在进入循环前以 ErrDataUnavailable 拦截，这里只做兜底。
func (st *Stepper) Run(ctx context.Context, runID string, bars []market.Bar) ([]LogRow, []TranscriptRow, RunStats, error) {
	if len(bars) == 0 {
		return nil, nil, RunStats{}, market.ErrDataUnavailable
	}

	rows := make([]LogRow, 0, len(bars))
	transcripts := make([]TranscriptRow, 0, 8)
	stats := RunStats{
		EquityPeak:   st.cfg.InitialCash,
		EquityValley: st.cfg.InitialCash,
	}
	prevValue := st.cfg.InitialCash

	for i, bar := range bars {
		select {
		case <-ctx.Done():
			return rows, transcripts, stats, ctx.Err()
		default:
		}

		// PENDING -> DECIDED
		decision, forced := st.decide(ctx, i, bars)
		if forced {
			stats.ForcedHolds++
		}
		if i%st.cfg.DecisionInterval == 0 && st.oracle != nil {
			if tr, ok := st.oracle.LastTranscript(); ok {
				transcripts = append(transcripts, TranscriptRow{
					RunID:      runID,
					TS:         bar.TS,
					Provider:   tr.ProviderID,
					UserPrompt: tr.UserPrompt,
					RawOutput:  tr.RawOutput,
					Error:      tr.Error,
				})
			}
		}

		// DECIDED -> EXECUTED
		execPrice := bar.Open
		if st.cfg.ExecPrice == ExecPriceClose {
			execPrice = bar.Close
		}
		fill := st.ledger.Apply(decision.Action, st.ledger.DesiredQuantity(decision, execPrice), execPrice)
		switch fill.Action {
		case oracle.ActionBuy:
			stats.Buys++
		case oracle.ActionSell:
			stats.Sells++
		}

		// EXECUTED -> LOGGED
		value := st.ledger.MarkToMarket(bar.Close)
		row := LogRow{
			RunID:          runID,
			Day:            i,
			TS:             bar.TS,
			Date:           bar.Date(),
			Action:         fill.Action,
			Quantity:       fill.Quantity,
			ExecPrice:      execPrice,
			ClosePrice:     bar.Close,
			Cash:           st.ledger.Cash,
			Shares:         st.ledger.Shares,
			PortfolioValue: value,
			DailyPnL:       value - prevValue,
			Reason:         decision.Reason,
			Confidence:     decision.Confidence,
			Forced:         forced,
		}
		rows = append(rows, row)
		if st.onRow != nil {
			st.onRow(row)
		}
		prevValue = value

		if value > stats.EquityPeak {
			stats.EquityPeak = value
		}
		if value < stats.EquityValley {
			stats.EquityValley = value
		}
		if stats.EquityPeak > 0 {
			dd := (stats.EquityPeak - value) / stats.EquityPeak * 100
			if dd > stats.MaxDrawdownPct {
				stats.MaxDrawdownPct = dd
			}
		}
	}

	last := bars[len(bars)-1]
	stats.FinalValue = st.ledger.MarkToMarket(last.Close)
	stats.Profit = stats.FinalValue - st.cfg.InitialCash
	if st.cfg.InitialCash > 0 {
		stats.ReturnPct = stats.Profit / st.cfg.InitialCash * 100
	}
	stats.RealizedPnL = st.ledger.Realized
	stats.FeesPaid = st.ledger.FeePaid
	stats.Trades = stats.Buys + stats.Sells
	stats.Rows = len(rows)
	return rows, transcripts, stats, nil
}

// decide 返回当日决策。非决策日直接 HOLD；决策日调用 oracle，
// 失败时替换为强制 HOLD（reason 固定），整轮模拟不因单日失败中断。
func (st *Stepper) decide(ctx context.Context, i int, bars []market.Bar) (oracle.Decision, bool) {
	if i%st.cfg.DecisionInterval != 0 || st.oracle == nil {
		return oracle.Decision{Action: oracle.ActionHold}, false
	}
	state := oracle.State{
		Symbol:   st.cfg.Symbol,
		Strategy: st.cfg.Strategy,
		Bars:     st.visibleBars(i, bars),
		Cash:     st.ledger.Cash,
		Shares:   st.ledger.Shares,
	}
	d, err := st.oracle.Decide(ctx, state)
	if err != nil {
		logger.Warnf("[sim] %s 第 %d 日决策失败，按 HOLD 处理: %v", st.cfg.Symbol, i, err)
		return oracle.Decision{Action: oracle.ActionHold, Reason: forcedHoldReason}, true
	}
	return d, false
}

// visibleBars 返回第 i 日决策可见的 K 线：截到配置的回看窗口；
// 按开盘价成交时当日只暴露开盘价，收盘前还不存在的信息不给模型。
func (st *Stepper) visibleBars(i int, bars []market.Bar) []market.Bar {
	visible := bars[:i+1]
	if st.cfg.Lookback > 0 && len(visible) > st.cfg.Lookback {
		visible = visible[len(visible)-st.cfg.Lookback:]
	}
	if st.cfg.ExecPrice != ExecPriceOpen {
		return visible
	}
	masked := make([]market.Bar, len(visible))
	copy(masked, visible)
	cur := &masked[len(masked)-1]
	cur.High, cur.Low, cur.Close, cur.Volume = cur.Open, cur.Open, cur.Open, 0
	return masked
}
