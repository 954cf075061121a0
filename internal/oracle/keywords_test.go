package oracle

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKeywords_Action(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"english buy", "I would buy here, momentum looks strong", ActionBuy},
		{"english sell", "Time to sell and lock in gains", ActionSell},
		{"english hold", "Better to hold and wait for confirmation", ActionHold},
		{"japanese buy", "明日は購入を検討します", ActionBuy},
		{"japanese sell", "利確のため売りを推奨", ActionSell},
		{"japanese hold", "様子見が妥当です", ActionHold},
		{"no keyword", "The market closed mixed today.", ActionHold},
		{"buy beats hold", "buy now, do not wait too long to buy", ActionBuy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := ParseKeywords(tc.text)
			assert.Equal(t, tc.want, d.Action)
		})
	}
}

func TestParseKeywords_Quantity(t *testing.T) {
	d := ParseKeywords("buy 25 shares at open")
	assert.Equal(t, 25.0, d.Quantity)

	d = ParseKeywords("購入 10株")
	assert.Equal(t, 10.0, d.Quantity)

	d = ParseKeywords("buy about $2500 usd worth")
	assert.Equal(t, 0.0, d.Quantity)
	assert.Equal(t, 2500.0, d.AmountUSD)

	d = ParseKeywords("sell 50% of the position")
	assert.Equal(t, 0.5, d.Fraction)

	// 股数优先于比例
	d = ParseKeywords("buy 30 shares, roughly 40% of cash")
	assert.Equal(t, 30.0, d.Quantity)
	assert.Equal(t, 0.0, d.Fraction)

	// 无任何数量表达：三个字段均为零，留给 persona 默认值
	d = ParseKeywords("buy on strength")
	assert.Zero(t, d.Quantity)
	assert.Zero(t, d.AmountUSD)
	assert.Zero(t, d.Fraction)
}

func TestParseKeywords_ReasonIsFirstLine(t *testing.T) {
	d := ParseKeywords("Strong breakout, buy.\nSecond line with detail.")
	assert.Equal(t, "Strong breakout, buy.", d.Reason)
}

func TestNormalizeAction(t *testing.T) {
	cases := map[string]string{
		"buy": ActionBuy, "BUY": ActionBuy, " Add ": ActionBuy, "long": ActionBuy,
		"sell": ActionSell, "reduce": ActionSell, "EXIT": ActionSell,
		"hold": ActionHold, "wait": ActionHold,
		"yolo": "", "": "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeAction(in), "input %q", in)
	}
}

func TestSanitize(t *testing.T) {
	d := Decision{Action: "add", Quantity: -5, Fraction: 1.7, Confidence: 140}
	assert.NoError(t, Sanitize(&d))
	assert.Equal(t, ActionBuy, d.Action)
	assert.Equal(t, 0.0, d.Quantity)
	assert.Equal(t, 1.0, d.Fraction)
	assert.Equal(t, 100, d.Confidence)

	bad := Decision{Action: "launch"}
	assert.Error(t, Sanitize(&bad))

	nan := Decision{Action: "buy", AmountUSD: math.NaN()}
	assert.Error(t, Sanitize(&nan))
}

func TestApplyDefaultSizing(t *testing.T) {
	d := Decision{Action: ActionBuy}
	ApplyDefaultSizing(&d, 0.3)
	assert.Equal(t, 0.3, d.Fraction)

	// 已有数量表达时不覆盖
	d = Decision{Action: ActionBuy, Quantity: 10}
	ApplyDefaultSizing(&d, 0.3)
	assert.Zero(t, d.Fraction)

	// HOLD 不需要仓位
	d = Decision{Action: ActionHold}
	ApplyDefaultSizing(&d, 0.3)
	assert.Zero(t, d.Fraction)

	// 非法默认值落到 0.5
	d = Decision{Action: ActionSell}
	ApplyDefaultSizing(&d, 7)
	assert.Equal(t, 0.5, d.Fraction)
}
