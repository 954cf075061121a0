package oracle

import (
	talib "github.com/markcheno/go-talib"

	"stocksim/internal/market"
)

// MarketView 基于近期收盘的方向判定，随提示词一并给出。
type MarketView struct {
	Trend     string  `json:"trend"` // up / down / flat
	Bias      string  `json:"bias"`  // bullish / bearish / neutral
	ChangePct float64 `json:"change_pct"`
	UpRatio   float64 `json:"up_ratio"`
}

// FeatureSnapshot 注入提示词的指标快照（取序列最后一个有效值）。
type FeatureSnapshot struct {
	Close    float64 `json:"close"`
	SMA20    float64 `json:"sma_20,omitempty"`
	EMA12    float64 `json:"ema_12,omitempty"`
	EMA26    float64 `json:"ema_26,omitempty"`
	RSI14    float64 `json:"rsi_14,omitempty"`
	MACDHist float64 `json:"macd_hist,omitempty"`
}

// AnalyzeMarket 用区间首尾涨跌幅与上涨日占比估计趋势与偏向。
func AnalyzeMarket(bars []market.Bar) MarketView {
	view := MarketView{Trend: "flat", Bias: "neutral"}
	if len(bars) < 2 {
		return view
	}
	first, last := bars[0].Close, bars[len(bars)-1].Close
	if first <= 0 {
		return view
	}
	up := 0
	for i := 1; i < len(bars); i++ {
		if bars[i].Close > bars[i-1].Close {
			up++
		}
	}
	view.ChangePct = (last - first) / first * 100
	view.UpRatio = float64(up) / float64(len(bars)-1)

	switch {
	case view.ChangePct > 0.5:
		view.Trend = "up"
	case view.ChangePct < -0.5:
		view.Trend = "down"
	}
	switch {
	case view.UpRatio > 0.55:
		view.Bias = "bullish"
	case view.UpRatio < 0.45:
		view.Bias = "bearish"
	}
	return view
}

// BuildFeatures 计算指标快照。历史不足时对应字段保持零值并在提示词中省略。
func BuildFeatures(bars []market.Bar) FeatureSnapshot {
	snap := FeatureSnapshot{}
	if len(bars) == 0 {
		return snap
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	snap.Close = closes[len(closes)-1]
	if len(closes) >= 20 {
		snap.SMA20 = lastNonZero(talib.Sma(closes, 20))
	}
	if len(closes) >= 12 {
		snap.EMA12 = lastNonZero(talib.Ema(closes, 12))
	}
	if len(closes) >= 26 {
		snap.EMA26 = lastNonZero(talib.Ema(closes, 26))
	}
	if len(closes) >= 15 {
		snap.RSI14 = lastNonZero(talib.Rsi(closes, 14))
	}
	if len(closes) >= 35 {
		_, _, hist := talib.Macd(closes, 12, 26, 9)
		snap.MACDHist = lastNonZero(hist)
	}
	return snap
}

func lastNonZero(vals []float64) float64 {
	for i := len(vals) - 1; i >= 0; i-- {
		if vals[i] != 0 {
			return vals[i]
		}
	}
	return 0
}
