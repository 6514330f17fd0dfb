package costs

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTradeFeeBreakdown(t *testing.T) {
	m := DefaultModel()

	tests := []struct {
		name        string
		side        Side
		price, qty  float64
		wantStamp   float64
		wantComm    float64
		wantXfer    float64
	}{
		{
			name:  "buy has no stamp duty",
			side:  Buy,
			price: 10, qty: 50000,
			wantStamp: 0,
			wantComm:  10 * 50000 * 0.00025,
			wantXfer:  10 * 50000 * 0.00001,
		},
		{
			name:  "sell pays stamp duty",
			side:  Sell,
			price: 10, qty: 50000,
			wantStamp: 10 * 50000 * 0.001,
			wantComm:  10 * 50000 * 0.00025,
			wantXfer:  10 * 50000 * 0.00001,
		},
		{
			name:  "small order hits commission floor",
			side:  Buy,
			price: 5, qty: 100,
			wantStamp: 0,
			wantComm:  5.0,
			wantXfer:  5 * 100 * 0.00001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := m.Trade(tt.side, tt.price, tt.qty)
			if err != nil {
				t.Fatalf("Trade returned error: %v", err)
			}
			if !almostEqual(c.StampDuty, tt.wantStamp) {
				t.Errorf("StampDuty=%v, expected %v", c.StampDuty, tt.wantStamp)
			}
			if !almostEqual(c.Commission, tt.wantComm) {
				t.Errorf("Commission=%v, expected %v", c.Commission, tt.wantComm)
			}
			if !almostEqual(c.TransferFee, tt.wantXfer) {
				t.Errorf("TransferFee=%v, expected %v", c.TransferFee, tt.wantXfer)
			}
			wantTotal := c.Amount + c.Commission + c.StampDuty + c.TransferFee
			if !almostEqual(c.Total(), wantTotal) {
				t.Errorf("Total=%v, expected %v", c.Total(), wantTotal)
			}
		})
	}
}

func TestTradeRejectsInvalidInput(t *testing.T) {
	m := DefaultModel()

	if _, err := m.Trade(Buy, -1, 100); err == nil {
		t.Error("expected error for negative price")
	}
	if _, err := m.Trade(Sell, 10, 0); err == nil {
		t.Error("expected error for zero quantity")
	}
}
