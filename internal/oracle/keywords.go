package oracle

import (
	"regexp"
	"strconv"
	"strings"
)

// 中文说明：
// 模型输出为自由文本时的兼容解析：按关键词推断动作，按正则提取数量。
// 词表覆盖英文/日文（沿用既有提示词生态）。

var (
	buyWords  = []string{"buy", "go long", "購入", "買付", "買い", "買", "ロング"}
	sellWords = []string{"sell", "exit", "売り", "売", "手仕舞", "利確", "損切"}
	holdWords = []string{"hold", "wait", "様子見", "ホールド", "維持"}

	reFraction = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	reShares   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:shares?|株)`)
	reAmount   = regexp.MustCompile(`\$?\s*(\d+(?:\.\d+)?)\s*(?:usd|dollars|ドル)`)
)

func countAny(s string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(s, w) {
			n++
		}
	}
	return n
}

// ParseKeywords 从自由文本推断决策。动作无法判定时落到 HOLD。
// 数量优先级：显式股数 > 金额 > 比例；全部缺省时三个字段均为零，由调用方按 persona 补默认比例。
func ParseKeywords(text string) Decision {
	t := strings.ToLower(text)

	buyScore := countAny(t, buyWords)
	sellScore := countAny(t, sellWords)
	holdScore := countAny(t, holdWords)

	action := ActionHold
	switch {
	case buyScore > sellScore && buyScore >= holdScore:
		action = ActionBuy
	case sellScore > buyScore && sellScore >= holdScore:
		action = ActionSell
	}

	d := Decision{Action: action, Reason: firstLine(text)}
	if m := reShares.FindStringSubmatch(t); m != nil {
		d.Quantity, _ = strconv.ParseFloat(m[1], 64)
		return d
	}
	if m := reAmount.FindStringSubmatch(t); m != nil {
		d.AmountUSD, _ = strconv.ParseFloat(m[1], 64)
		return d
	}
	if m := reFraction.FindStringSubmatch(t); m != nil {
		f, _ := strconv.ParseFloat(m[1], 64)
		d.Fraction = f / 100.0
	}
	return d
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
