package sim

import (
	"encoding/json"
	"time"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

const (
	ExecPriceOpen  = "open"
	ExecPriceClose = "close"
)

// RunConfig 记录本次模拟的参数快照，便于重放。
type RunConfig struct {
	Symbol           string  `json:"symbol"`
	Strategy         string  `json:"strategy"`
	StartTS          int64   `json:"start_ts"`
	EndTS            int64   `json:"end_ts"`
	InitialCash      float64 `json:"initial_cash"`
	ExecPrice        string  `json:"exec_price"` // open|close
	DecisionInterval int     `json:"decision_interval"`
	Lookback         int     `json:"lookback,omitempty"` // 决策可见的最大历史 K 线数，0 为不限
	Fee              float64 `json:"fee"`
	Source           string  `json:"source"` // polygon|binance
	Provider         string  `json:"provider,omitempty"`
	Notes            string  `json:"notes,omitempty"`
}

// RunStats 汇总收益与风控指标，供前端展示。
type RunStats struct {
	FinalValue     float64   `json:"final_value"`
	Profit         float64   `json:"profit"`
	ReturnPct      float64   `json:"return_pct"`
	RealizedPnL    float64   `json:"realized_pnl"`
	FeesPaid       float64   `json:"fees_paid"`
	Buys           int       `json:"buys"`
	Sells          int       `json:"sells"`
	Trades         int       `json:"trades"`
	ForcedHolds    int       `json:"forced_holds"`
	Rows           int       `json:"rows"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	EquityPeak     float64   `json:"equity_peak"`
	EquityValley   float64   `json:"equity_valley"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Run 表示一次模拟任务。
type Run struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Strategy    string    `json:"strategy"`
	Status      string    `json:"status"`
	StartTS     int64     `json:"start_ts"`
	EndTS       int64     `json:"end_ts"`
	InitialCash float64   `json:"initial_cash"`
	FinalValue  float64   `json:"final_value"`
	Profit      float64   `json:"profit"`
	ReturnPct   float64   `json:"return_pct"`
	Trades      int       `json:"trades"`
	Message     string    `json:"message"`
	Config      RunConfig `json:"config"`
	Stats       RunStats  `json:"stats"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at"`
}

func (r Run) MarshalConfig() ([]byte, error) { return json.Marshal(r.Config) }
func (r Run) MarshalStats() ([]byte, error)  { return json.Marshal(r.Stats) }

// LogRow 是逐日审计流水：每个交易日恰好一行，只追加不修改。
type LogRow struct {
	ID             int64   `json:"id"`
	RunID          string  `json:"run_id"`
	Day            int     `json:"day"`
	TS             int64   `json:"ts"`
	Date           string  `json:"date"`
	Action         string  `json:"action"`
	Quantity       float64 `json:"quantity"`
	ExecPrice      float64 `json:"exec_price"`
	ClosePrice     float64 `json:"close_price"`
	Cash           float64 `json:"cash"`
	Shares         float64 `json:"shares"`
	PortfolioValue float64 `json:"portfolio_value"`
	DailyPnL       float64 `json:"daily_pnl"`
	Reason         string  `json:"reason,omitempty"`
	Confidence     int     `json:"confidence,omitempty"`
	Forced         bool    `json:"forced,omitempty"`
}

// TranscriptRow 保存某个决策日的 LLM 往返，便于事后审阅。
type TranscriptRow struct {
	ID         int64  `json:"id"`
	RunID      string `json:"run_id"`
	TS         int64  `json:"ts"`
	Provider   string `json:"provider"`
	UserPrompt string `json:"user_prompt,omitempty"`
	RawOutput  string `json:"raw_output,omitempty"`
	Error      string `json:"error,omitempty"`
}

// RunRequest 为 HTTP 提交使用。
type RunRequest struct {
	Symbol           string  `json:"symbol" binding:"required"`
	Strategy         string  `json:"strategy"`
	StartTS          int64   `json:"start_ts" binding:"required"`
	EndTS            int64   `json:"end_ts" binding:"required"`
	InitialCash      float64 `json:"initial_cash"`
	ExecPrice        string  `json:"exec_price"`
	DecisionInterval int     `json:"decision_interval"`
	Fee              float64 `json:"fee"`
	Source           string  `json:"source"`
	Provider         string  `json:"provider"`
}
