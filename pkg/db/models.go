package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Trade is a persisted execution row.
type Trade struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Price      float64   `json:"price"`
	Qty        float64   `json:"qty"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Position is a persisted position row.
type Position struct {
	Symbol    string    `json:"symbol"`
	Qty       float64   `json:"qty"`
	AvgPrice  float64   `json:"avg_price"`
	Available float64   `json:"available"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cash is the single account cash row.
type Cash struct {
	Available float64 `json:"available"`
	Frozen    float64 `json:"frozen"`
}

// BatchState is the persisted batch-buy progress for a symbol.
type BatchState struct {
	Symbol           string    `json:"symbol"`
	LastTradeDate    time.Time `json:"last_trade_date"`
	CompletedBatches int       `json:"completed_batches"`
}

// AlertRow is a persisted alert.
type AlertRow struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Severity  string    `json:"severity"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// NavPoint is one daily net-asset-value observation.
type NavPoint struct {
	Date           string  `json:"date"`
	NAV            float64 `json:"nav"`
	Cash           float64 `json:"cash"`
	PositionsValue float64 `json:"positions_value"`
}

func (d *Database) InsertTrade(ctx context.Context, t Trade) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (id, symbol, side, price, qty, executed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ID, t.Symbol, t.Side, t.Price, t.Qty, t.ExecutedAt)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// ListTrades returns every persisted trade, most recent first.
func (d *Database) ListTrades(ctx context.Context) ([]Trade, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, side, price, qty, executed_at
		FROM trades ORDER BY executed_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Side, &t.Price, &t.Qty, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (d *Database) UpsertPosition(ctx context.Context, p Position) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO positions (symbol, qty, avg_price, available, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(symbol) DO UPDATE SET
			qty = excluded.qty,
			avg_price = excluded.avg_price,
			available = excluded.available,
			updated_at = CURRENT_TIMESTAMP
	`, p.Symbol, p.Qty, p.AvgPrice, p.Available)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

func (d *Database) DeletePosition(ctx context.Context, symbol string) error {
	_, err := d.DB.ExecContext(ctx, `DELETE FROM positions WHERE symbol = ?`, symbol)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}

func (d *Database) ListPositions(ctx context.Context) ([]Position, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT symbol, qty, avg_price, available, updated_at FROM positions
	`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.Symbol, &p.Qty, &p.AvgPrice, &p.Available, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *Database) UpsertCash(ctx context.Context, c Cash) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO account_cash (id, available, frozen, updated_at)
		VALUES (1, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			available = excluded.available,
			frozen = excluded.frozen,
			updated_at = CURRENT_TIMESTAMP
	`, c.Available, c.Frozen)
	if err != nil {
		return fmt.Errorf("upsert cash: %w", err)
	}
	return nil
}

func (d *Database) GetCash(ctx context.Context) (Cash, bool, error) {
	var c Cash
	err := d.DB.QueryRowContext(ctx,
		`SELECT available, frozen FROM account_cash WHERE id = 1`).Scan(&c.Available, &c.Frozen)
	if err == sql.ErrNoRows {
		return Cash{}, false, nil
	}
	if err != nil {
		return Cash{}, false, fmt.Errorf("get cash: %w", err)
	}
	return c, true, nil
}

func (d *Database) UpsertBatchState(ctx context.Context, s BatchState) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO batch_states (symbol, last_trade_date, completed_batches, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(symbol) DO UPDATE SET
			last_trade_date = excluded.last_trade_date,
			completed_batches = excluded.completed_batches,
			updated_at = CURRENT_TIMESTAMP
	`, s.Symbol, s.LastTradeDate, s.CompletedBatches)
	if err != nil {
		return fmt.Errorf("upsert batch state: %w", err)
	}
	return nil
}

func (d *Database) DeleteBatchState(ctx context.Context, symbol string) error {
	_, err := d.DB.ExecContext(ctx, `DELETE FROM batch_states WHERE symbol = ?`, symbol)
	if err != nil {
		return fmt.Errorf("delete batch state: %w", err)
	}
	return nil
}

func (d *Database) ListBatchStates(ctx context.Context) ([]BatchState, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT symbol, last_trade_date, completed_batches FROM batch_states
	`)
	if err != nil {
		return nil, fmt.Errorf("query batch states: %w", err)
	}
	defer rows.Close()

	var out []BatchState
	for rows.Next() {
		var s BatchState
		if err := rows.Scan(&s.Symbol, &s.LastTradeDate, &s.CompletedBatches); err != nil {
			return nil, fmt.Errorf("scan batch state: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (d *Database) InsertAlert(ctx context.Context, a AlertRow) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO alerts (id, kind, severity, subject, message, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Kind, a.Severity, a.Subject, a.Message, a.Payload, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (d *Database) ListAlerts(ctx context.Context, limit int) ([]AlertRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, kind, severity, COALESCE(subject, ''), message, COALESCE(payload, ''), created_at
		FROM alerts ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []AlertRow
	for rows.Next() {
		var a AlertRow
		if err := rows.Scan(&a.ID, &a.Kind, &a.Severity, &a.Subject, &a.Message, &a.Payload, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertNav records a daily NAV observation, overwriting a same-day row.
func (d *Database) UpsertNav(ctx context.Context, p NavPoint) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO nav_history (date, nav, cash, positions_value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			nav = excluded.nav,
			cash = excluded.cash,
			positions_value = excluded.positions_value
	`, p.Date, p.NAV, p.Cash, p.PositionsValue)
	if err != nil {
		return fmt.Errorf("upsert nav: %w", err)
	}
	return nil
}

func (d *Database) ListNav(ctx context.Context) ([]NavPoint, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT date, nav, cash, positions_value FROM nav_history ORDER BY date ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query nav history: %w", err)
	}
	defer rows.Close()

	var out []NavPoint
	for rows.Next() {
		var p NavPoint
		if err := rows.Scan(&p.Date, &p.NAV, &p.Cash, &p.PositionsValue); err != nil {
			return nil, fmt.Errorf("scan nav point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
