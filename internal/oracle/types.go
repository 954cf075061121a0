package oracle

import (
	"context"
	"errors"

	"stocksim/internal/market"
)

// 中文说明：
// 决策相关的通用数据结构。模拟器只依赖本包的窄接口，便于用确定性桩替换真实模型。

// ErrOracle 表示一次决策调用失败（超时/传输错误/输出不可解析）。
// 调用方以强制 HOLD 降级处理，不中断整轮模拟。
var ErrOracle = errors.New("oracle: decision failure")

// 动作常量。
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)

// Decision 单日决策。数量可用三种形式之一表达：
// 股数（Quantity）、美元金额（AmountUSD）、现金/持仓比例（Fraction）。
// 三者都缺省时由 persona 决定默认比例。
type Decision struct {
	Action     string  `json:"action"`
	Quantity   float64 `json:"quantity,omitempty"`
	Fraction   float64 `json:"fraction,omitempty"`
	AmountUSD  float64 `json:"amount_usd,omitempty"`
	Confidence int     `json:"confidence,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// State 提供给决策器的快照：可见历史（截至当前交易日，含当日）、账户状态与策略档位。
type State struct {
	Symbol   string
	Strategy string
	Bars     []market.Bar
	Cash     float64
	Shares   float64
}

// Transcript 记录单次模型调用的完整输入输出，供审计与回放。
type Transcript struct {
	ProviderID   string   `json:"provider_id"`
	SystemPrompt string   `json:"system_prompt"`
	UserPrompt   string   `json:"user_prompt"`
	RawOutput    string   `json:"raw_output"`
	RawJSON      string   `json:"raw_json"`
	Decision     Decision `json:"decision"`
	Error        string   `json:"error,omitempty"`
}

// Provider 抽象一个可调用的聊天模型端点。
type Provider interface {
	ID() string
	Call(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Decider 将状态快照转为一条决策。
type Decider interface {
	Decide(ctx context.Context, state State) (Decision, error)
	LastTranscript() (Transcript, bool)
}
