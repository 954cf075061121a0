package sim

import (
	"math"

	"stocksim/internal/oracle"
)

// Ledger 是单次模拟的账本：现金、持仓、均价成本与已实现盈亏。
// 只在单个 stepper 内被顺序修改，不需要加锁。
type Ledger struct {
	Cash     float64
	Shares   float64
	AvgCost  float64
	Realized float64
	FeePaid  float64

	fee float64 // 每笔固定手续费
}

func NewLedger(initialCash, fee float64) *Ledger {
	if fee < 0 {
		fee = 0
	}
	return &Ledger{Cash: initialCash, fee: fee}
}

// Fill 表示一次决策落地后的真实成交（钳制之后）。
type Fill struct {
	Action   string
	Quantity float64
	Price    float64
	Fee      float64
	Realized float64
}

// Apply 把一个期望股数按钳制规则落到账本上。
// 资金/持仓不足从不报错：BUY 钳到可负担的整数股，SELL 钳到当前持仓，
// 钳后为零则降级为 HOLD。账本任何时刻满足 cash>=0 且 shares>=0。
func (l *Ledger) Apply(action string, qty float64, execPrice float64) Fill {
	qty = math.Floor(qty)
	if qty < 0 {
		qty = 0
	}
	switch action {
	case oracle.ActionBuy:
		if execPrice <= 0 {
			return Fill{Action: oracle.ActionHold, Price: execPrice}
		}
		affordable := math.Floor((l.Cash - l.fee) / execPrice)
		if affordable < 0 {
			affordable = 0
		}
		if qty > affordable {
			qty = affordable
		}
		if qty == 0 {
			return Fill{Action: oracle.ActionHold, Price: execPrice}
		}
		cost := qty * execPrice
		l.AvgCost = (l.AvgCost*l.Shares + cost) / (l.Shares + qty)
		l.Cash -= cost + l.fee
		l.Shares += qty
		l.FeePaid += l.fee
		return Fill{Action: oracle.ActionBuy, Quantity: qty, Price: execPrice, Fee: l.fee}
	case oracle.ActionSell:
		if qty > l.Shares {
			qty = math.Floor(l.Shares)
		}
		if qty == 0 || execPrice <= 0 {
			return Fill{Action: oracle.ActionHold, Price: execPrice}
		}
		// 成交额覆盖不了手续费的卖单不落地，否则现金会被扣成负数
		if qty*execPrice < l.fee {
			return Fill{Action: oracle.ActionHold, Price: execPrice}
		}
		realized := qty * (execPrice - l.AvgCost)
		l.Cash += qty*execPrice - l.fee
		l.Shares -= qty
		l.Realized += realized
		l.FeePaid += l.fee
		if l.Shares == 0 {
			l.AvgCost = 0
		}
		return Fill{Action: oracle.ActionSell, Quantity: qty, Price: execPrice, Fee: l.fee, Realized: realized}
	default:
		return Fill{Action: oracle.ActionHold, Price: execPrice}
	}
}

// MarkToMarket 按收盘价估值，纯函数。
func (l *Ledger) MarkToMarket(closePrice float64) float64 {
	return l.Cash + l.Shares*closePrice
}

// DesiredQuantity 把决策的三种仓位表达（股数/金额/比例）换算为期望股数。
// 优先级：显式股数 > 金额 > 比例；比例对 BUY 按现金、对 SELL 按持仓计。
func (l *Ledger) DesiredQuantity(d oracle.Decision, execPrice float64) float64 {
	if d.Quantity > 0 {
		return math.Floor(d.Quantity)
	}
	if d.AmountUSD > 0 && execPrice > 0 {
		return math.Floor(d.AmountUSD / execPrice)
	}
	if d.Fraction > 0 {
		switch d.Action {
		case oracle.ActionBuy:
			if execPrice > 0 {
				return math.Floor(l.Cash * d.Fraction / execPrice)
			}
		case oracle.ActionSell:
			return math.Floor(l.Shares * d.Fraction)
		}
	}
	return 0
}
