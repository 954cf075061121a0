package sim

import (
	"fmt"
	"strings"
	"time"
)

// Summary 生成一段可读的结果摘要，落在 run.message 并用于推送。
func Summary(cfg RunConfig, stats RunStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s 模拟完成\n", cfg.Symbol, cfg.Strategy)
	fmt.Fprintf(&b, "区间: %s ~ %s（%d 个交易日）\n",
		formatDay(cfg.StartTS), formatDay(cfg.EndTS), stats.Rows)
	fmt.Fprintf(&b, "初始资金: %.2f\n", cfg.InitialCash)
	fmt.Fprintf(&b, "最终净值: %.2f\n", stats.FinalValue)
	fmt.Fprintf(&b, "总收益: %.2f (%.2f%%)\n", stats.Profit, stats.ReturnPct)
	fmt.Fprintf(&b, "买入 %d 次 / 卖出 %d 次，手续费合计 %.2f\n", stats.Buys, stats.Sells, stats.FeesPaid)
	fmt.Fprintf(&b, "最大回撤: %.2f%%（峰值 %.2f，谷值 %.2f）", stats.MaxDrawdownPct, stats.EquityPeak, stats.EquityValley)
	if stats.ForcedHolds > 0 {
		fmt.Fprintf(&b, "\n决策失败降级 HOLD: %d 日", stats.ForcedHolds)
	}
	return b.String()
}

func formatDay(ts int64) string {
	return time.UnixMilli(ts).UTC().Format("2006-01-02")
}
