package costs

import "fmt"

// Side is the direction of a trade.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// TradeCost is the fee breakdown for a single execution. Derived, never stored.
type TradeCost struct {
	Amount      float64 `json:"amount"`
	Commission  float64 `json:"commission"`
	StampDuty   float64 `json:"stamp_duty"`
	TransferFee float64 `json:"transfer_fee"`
}

// Total returns gross amount plus all fees.
func (c TradeCost) Total() float64 {
	return c.Amount + c.Commission + c.StampDuty + c.TransferFee
}

// Fees returns the fee portion only.
func (c TradeCost) Fees() float64 {
	return c.Commission + c.StampDuty + c.TransferFee
}

// Model computes trading costs. Stamp duty is charged on sells only,
// transfer fee on both sides, commission floors at MinCommission.
type Model struct {
	CommissionRate  float64 `yaml:"commission_rate"`
	MinCommission   float64 `yaml:"min_commission"`
	StampDutyRate   float64 `yaml:"stamp_duty_rate"`
	TransferFeeRate float64 `yaml:"transfer_fee_rate"`
}

// DefaultModel returns the standard A-share style fee schedule.
func DefaultModel() Model {
	return Model{
		CommissionRate:  0.00025,
		MinCommission:   5.0,
		StampDutyRate:   0.001,
		TransferFeeRate: 0.00001,
	}
}

// Trade computes the cost of executing qty shares at price.
// Rejects non-positive price or quantity without a partial result.
func (m Model) Trade(side Side, price, qty float64) (TradeCost, error) {
	if price <= 0 {
		return TradeCost{}, fmt.Errorf("cost model: invalid price %.4f", price)
	}
	if qty <= 0 {
		return TradeCost{}, fmt.Errorf("cost model: invalid quantity %.4f", qty)
	}

	amount := price * qty

	commission := amount * m.CommissionRate
	if commission < m.MinCommission {
		commission = m.MinCommission
	}

	stamp := 0.0
	if side == Sell {
		stamp = amount * m.StampDutyRate
	}

	return TradeCost{
		Amount:      amount,
		Commission:  commission,
		StampDuty:   stamp,
		TransferFee: amount * m.TransferFeeRate,
	}, nil
}
