package market

import "time"

// 美股主要休市日（固定日期近似；浮动假日按年份列出）。
// 仅用于估算区间内应有的交易日数量，完整性判断允许少量偏差。
var usHolidays = map[string]bool{
	"2024-01-01": true, "2024-01-15": true, "2024-02-19": true,
	"2024-03-29": true, "2024-05-27": true, "2024-06-19": true,
	"2024-07-04": true, "2024-09-02": true, "2024-11-28": true,
	"2024-12-25": true,
	"2025-01-01": true, "2025-01-20": true, "2025-02-17": true,
	"2025-04-18": true, "2025-05-26": true, "2025-06-19": true,
	"2025-07-04": true, "2025-09-01": true, "2025-11-27": true,
	"2025-12-25": true,
	"2026-01-01": true, "2026-01-19": true, "2026-02-16": true,
	"2026-04-03": true, "2026-05-25": true, "2026-06-19": true,
	"2026-07-03": true, "2026-09-07": true, "2026-11-26": true,
	"2026-12-25": true,
}

// IsTradingDay 判断是否为美股交易日（周末与列表内假日除外）。
func IsTradingDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !usHolidays[t.UTC().Format("2006-01-02")]
}

// CountTradingDays 统计 [start, end]（含）区间内的交易日数量。
func CountTradingDays(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	n := 0
	for d := start.UTC().Truncate(24 * time.Hour); !d.After(end); d = d.AddDate(0, 0, 1) {
		if IsTradingDay(d) {
			n++
		}
	}
	return n
}
