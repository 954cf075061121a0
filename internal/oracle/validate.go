package oracle

import (
	"fmt"
	"math"
)

// 中文说明：
// 基础决策校验与钳制：
// - action 归一化后必须合法
// - 数量字段拒绝 NaN/Inf，负数钳制为 0
// - confidence 超界钳制到 [0,100]

// Sanitize 归一化并钳制一条决策；不可修复时返回错误（上层按 ErrOracle 处理）。
func Sanitize(d *Decision) error {
	action := NormalizeAction(d.Action)
	if action == "" {
		return fmt.Errorf("非法 action: %q", d.Action)
	}
	d.Action = action
	for _, v := range []*float64{&d.Quantity, &d.Fraction, &d.AmountUSD} {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			return fmt.Errorf("数量字段为 NaN/Inf")
		}
		if *v < 0 {
			*v = 0
		}
	}
	if d.Fraction > 1 {
		d.Fraction = 1
	}
	if d.Confidence < 0 {
		d.Confidence = 0
	}
	if d.Confidence > 100 {
		d.Confidence = 100
	}
	return nil
}

// ApplyDefaultSizing 在三种数量形式都缺省时按 persona 默认比例补齐。
func ApplyDefaultSizing(d *Decision, defaultFraction float64) {
	if d.Action == ActionHold {
		return
	}
	if d.Quantity > 0 || d.AmountUSD > 0 || d.Fraction > 0 {
		return
	}
	if defaultFraction <= 0 || defaultFraction > 1 {
		defaultFraction = 0.5
	}
	d.Fraction = defaultFraction
}
