package portfolio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"stocksim/internal/logger"
)

const defaultAccountName = "default"

// Service 维护纸面组合：现金、持仓、成交历史。
// 与模拟账本同一套钳制语义：资金/持仓不足不报错，缩量成交，缩到零降级 HOLD。
type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

// EnsureAccount 返回默认账户，不存在时按给定初始资金创建。
func (s *Service) EnsureAccount(ctx context.Context, initialCash float64) (Account, error) {
	var m AccountModel
	err := s.store.db.WithContext(ctx).Where("name = ?", defaultAccountName).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cash := decimal.NewFromFloat(initialCash)
		if cash.Sign() <= 0 {
			cash = decimal.NewFromInt(10000)
		}
		now := time.Now().UnixMilli()
		m = AccountModel{
			Name:          defaultAccountName,
			Cash:          cash.String(),
			InitialCash:   cash.String(),
			CreatedAtUnix: now,
			UpdatedAtUnix: now,
		}
		if err := s.store.db.WithContext(ctx).Create(&m).Error; err != nil {
			return Account{}, err
		}
		logger.Infof("[portfolio] 创建默认账户，初始资金 %s", m.Cash)
	} else if err != nil {
		return Account{}, err
	}
	return s.snapshot(ctx, m)
}

func (s *Service) snapshot(ctx context.Context, m AccountModel) (Account, error) {
	var holdings []HoldingModel
	if err := s.store.db.WithContext(ctx).
		Where("account_id = ?", m.ID).Order("symbol").Find(&holdings).Error; err != nil {
		return Account{}, err
	}
	acc := Account{
		ID:          m.ID,
		Name:        m.Name,
		Cash:        m.Cash,
		InitialCash: m.InitialCash,
		UpdatedAt:   time.UnixMilli(m.UpdatedAtUnix),
	}
	for _, h := range holdings {
		if dec(h.Shares).Sign() == 0 {
			continue
		}
		acc.Holdings = append(acc.Holdings, Holding{Symbol: h.Symbol, Shares: h.Shares, AvgCost: h.AvgCost})
	}
	return acc, nil
}

// Trade 执行一笔纸面买卖。返回成交后的账户快照与实际成交记录。
func (s *Service) Trade(ctx context.Context, req TradeRequest) (Account, Trade, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return Account{}, Trade{}, fmt.Errorf("symbol 不能为空")
	}
	action := strings.ToUpper(strings.TrimSpace(req.Action))
	if action != "BUY" && action != "SELL" {
		return Account{}, Trade{}, fmt.Errorf("action 只支持 BUY/SELL")
	}
	price := decimal.NewFromFloat(req.Price)
	if price.Sign() <= 0 {
		return Account{}, Trade{}, fmt.Errorf("price 必须为正")
	}
	want := decimal.NewFromFloat(req.Shares).Floor()
	if want.Sign() < 0 {
		want = decimal.Zero
	}

	var (
		out    Trade
		accM   AccountModel
		filled decimal.Decimal
	)
	err := s.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("name = ?", defaultAccountName).First(&accM).Error; err != nil {
			return err
		}
		cash := dec(accM.Cash)

		var hold HoldingModel
		herr := tx.Where("account_id = ? AND symbol = ?", accM.ID, symbol).First(&hold).Error
		if errors.Is(herr, gorm.ErrRecordNotFound) {
			hold = HoldingModel{AccountID: accM.ID, Symbol: symbol, Shares: "0", AvgCost: "0"}
		} else if herr != nil {
			return herr
		}
		shares := dec(hold.Shares)
		avgCost := dec(hold.AvgCost)
		realized := decimal.Zero

		switch action {
		case "BUY":
			affordable := cash.Div(price).Floor()
			filled = decimal.Min(want, affordable)
			if filled.Sign() <= 0 {
				action = "HOLD"
				filled = decimal.Zero
				break
			}
			notional := filled.Mul(price)
			total := shares.Add(filled)
			avgCost = avgCost.Mul(shares).Add(notional).Div(total)
			shares = total
			cash = cash.Sub(notional)
		case "SELL":
			filled = decimal.Min(want, shares.Floor())
			if filled.Sign() <= 0 {
				action = "HOLD"
				filled = decimal.Zero
				break
			}
			notional := filled.Mul(price)
			realized = price.Sub(avgCost).Mul(filled)
			shares = shares.Sub(filled)
			cash = cash.Add(notional)
			if shares.Sign() == 0 {
				avgCost = decimal.Zero
			}
		}

		now := time.Now().UnixMilli()
		if action != "HOLD" {
			hold.Shares = shares.String()
			hold.AvgCost = avgCost.String()
			hold.UpdatedAtUnix = now
			if err := tx.Save(&hold).Error; err != nil {
				return err
			}
			accM.Cash = cash.String()
			accM.UpdatedAtUnix = now
			if err := tx.Save(&accM).Error; err != nil {
				return err
			}
		}

		record := TradeModel{
			AccountID:     accM.ID,
			Symbol:        symbol,
			Action:        action,
			Shares:        filled.String(),
			Price:         price.String(),
			Notional:      filled.Mul(price).String(),
			Realized:      realized.String(),
			Reason:        req.Reason,
			CreatedAtUnix: now,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		out = Trade{
			ID:        record.ID,
			Symbol:    record.Symbol,
			Action:    record.Action,
			Shares:    record.Shares,
			Price:     record.Price,
			Notional:  record.Notional,
			Realized:  record.Realized,
			Reason:    record.Reason,
			CreatedAt: time.UnixMilli(record.CreatedAtUnix),
		}
		return nil
	})
	if err != nil {
		return Account{}, Trade{}, err
	}
	acc, err := s.snapshot(ctx, accM)
	return acc, out, err
}

// History 按时间倒序返回成交记录。
func (s *Service) History(ctx context.Context, limit int) ([]Trade, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []TradeModel
	if err := s.store.db.WithContext(ctx).
		Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Trade, 0, len(rows))
	for _, r := range rows {
		out = append(out, Trade{
			ID:        r.ID,
			Symbol:    r.Symbol,
			Action:    r.Action,
			Shares:    r.Shares,
			Price:     r.Price,
			Notional:  r.Notional,
			Realized:  r.Realized,
			Reason:    r.Reason,
			CreatedAt: time.UnixMilli(r.CreatedAtUnix),
		})
	}
	return out, nil
}

// Reset 清空持仓与历史，把现金恢复为给定初始值。
func (s *Service) Reset(ctx context.Context, initialCash float64) (Account, error) {
	cash := decimal.NewFromFloat(initialCash)
	if cash.Sign() <= 0 {
		cash = decimal.NewFromInt(10000)
	}
	var accM AccountModel
	err := s.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("name = ?", defaultAccountName).First(&accM).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", accM.ID).Delete(&HoldingModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", accM.ID).Delete(&TradeModel{}).Error; err != nil {
			return err
		}
		accM.Cash = cash.String()
		accM.InitialCash = cash.String()
		accM.UpdatedAtUnix = time.Now().UnixMilli()
		return tx.Save(&accM).Error
	})
	if err != nil {
		return Account{}, err
	}
	return s.snapshot(ctx, accM)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
