package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// 中文说明：
// 提示词构造：账户快照 + 市场偏向 + 指标摘要 + persona 语气。
// 要求模型优先输出 JSON 决策，自由文本仅作兼容路径。

var defaultTones = map[string]string{
	"aggressive": "Bold, opportunistic, decisive in trend-following.",
	"moderate":   "Balanced, controlled, scales gradually.",
	"secure":     "Conservative, acts only on strong evidence.",
}

// ToneFor 返回策略档位对应的语气描述。
func ToneFor(strategy string) string {
	if tone, ok := defaultTones[strings.ToLower(strings.TrimSpace(strategy))]; ok {
		return tone
	}
	return "Balanced, controlled."
}

const systemPrompt = `You are the decision engine of a stock trading simulation.
Respond with a single JSON object on the first line:
{"action": "BUY"|"SELL"|"HOLD", "quantity": <shares, optional>, "fraction": <0..1, optional>, "amount_usd": <number, optional>, "confidence": <0..100>, "reason": "<one sentence>"}
Rules:
- If holdings = 0, never SELL; prefer BUY or HOLD.
- If the trend is up or momentum is strong, prefer BUY.
- If the trend is down, consider SELL only when already holding.
- HOLD only when conditions are mixed.`

// BuildUserPrompt 生成当日用户提示词。
func BuildUserPrompt(state State, tone string) string {
	view := AnalyzeMarket(state.Bars)
	feats := BuildFeatures(state.Bars)
	featsJSON, _ := json.MarshalIndent(feats, "", "  ")

	baseAction := ActionHold
	switch view.Bias {
	case "bullish":
		baseAction = ActionBuy
	case "bearish":
		baseAction = ActionSell
	}
	// 0 持仓时不给出 SELL 基线建议。
	if state.Shares == 0 && baseAction == ActionSell {
		baseAction = ActionBuy
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Trading simulation for %s.\n", state.Symbol)
	fmt.Fprintf(&b, "Market bias: %s (trend=%s, change=%.2f%%, up_ratio=%.2f)\n",
		strings.ToUpper(view.Bias), view.Trend, view.ChangePct, view.UpRatio)
	b.WriteString("\nPortfolio:\n")
	fmt.Fprintf(&b, "- Cash: $%.2f\n", state.Cash)
	fmt.Fprintf(&b, "- Holdings: %.0f shares of %s\n", state.Shares, state.Symbol)
	fmt.Fprintf(&b, "- Risk profile: %s — %s\n", strings.ToUpper(state.Strategy), tone)
	fmt.Fprintf(&b, "- Auto-base suggestion: %s\n", baseAction)
	b.WriteString("\nFeatures snapshot:\n")
	b.Write(featsJSON)
	b.WriteString("\n\nDecide for the next trading day.\n")
	return b.String()
}
