package oracle

import "strings"

// NormalizeAction 统一动作名称：大小写不敏感，ADD 视为 BUY，REDUCE/EXIT 视为 SELL，WAIT 视为 HOLD。
func NormalizeAction(a string) string {
	switch strings.ToUpper(strings.TrimSpace(a)) {
	case "BUY", "ADD", "LONG":
		return ActionBuy
	case "SELL", "REDUCE", "EXIT":
		return ActionSell
	case "HOLD", "WAIT":
		return ActionHold
	default:
		return ""
	}
}
