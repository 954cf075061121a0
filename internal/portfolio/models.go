package portfolio

import (
	"time"

	"gorm.io/datatypes"
)

// 中文说明：
// 纸面组合（dashboard 的虚拟账户）的 gorm 模型。金额以字符串十进制落库，避免浮点累积误差。

type AccountModel struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	Name          string `gorm:"column:name;uniqueIndex"`
	Cash          string `gorm:"column:cash"`
	InitialCash   string `gorm:"column:initial_cash"`
	CreatedAtUnix int64  `gorm:"column:created_at"`
	UpdatedAtUnix int64  `gorm:"column:updated_at"`
}

func (AccountModel) TableName() string { return "paper_accounts" }

type HoldingModel struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	AccountID     int64  `gorm:"column:account_id;uniqueIndex:idx_holding,priority:1"`
	Symbol        string `gorm:"column:symbol;uniqueIndex:idx_holding,priority:2"`
	Shares        string `gorm:"column:shares"`
	AvgCost       string `gorm:"column:avg_cost"`
	UpdatedAtUnix int64  `gorm:"column:updated_at"`
}

func (HoldingModel) TableName() string { return "paper_holdings" }

type TradeModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	AccountID     int64          `gorm:"column:account_id;index"`
	Symbol        string         `gorm:"column:symbol;index"`
	Action        string         `gorm:"column:action"`
	Shares        string         `gorm:"column:shares"`
	Price         string         `gorm:"column:price"`
	Notional      string         `gorm:"column:notional"`
	Realized      string         `gorm:"column:realized"`
	Reason        string         `gorm:"column:reason"`
	MetaJSON      datatypes.JSON `gorm:"column:meta_json;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (TradeModel) TableName() string { return "paper_trades" }

// Account 对外快照。
type Account struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Cash        string    `json:"cash"`
	InitialCash string    `json:"initial_cash"`
	Holdings    []Holding `json:"holdings"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Holding struct {
	Symbol  string `json:"symbol"`
	Shares  string `json:"shares"`
	AvgCost string `json:"avg_cost"`
}

type Trade struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol"`
	Action    string    `json:"action"`
	Shares    string    `json:"shares"`
	Price     string    `json:"price"`
	Notional  string    `json:"notional"`
	Realized  string    `json:"realized"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TradeRequest 为 HTTP 提交使用。
type TradeRequest struct {
	Symbol string  `json:"symbol" binding:"required"`
	Action string  `json:"action" binding:"required"`
	Shares float64 `json:"shares"`
	Price  float64 `json:"price" binding:"required"`
	Reason string  `json:"reason"`
}
