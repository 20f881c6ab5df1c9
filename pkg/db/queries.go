package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"
)

var ErrNotFound = errors.New("record not found")

// Store wraps the SQL handle with typed queries. All writes go through the
// single sqlite connection, so callers get a serialized writer for free.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ----------------------------------------
// Positions
// ----------------------------------------

// InsertPosition stores a new position and returns its id.
func (s *Store) InsertPosition(ctx context.Context, p *Position) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (symbol, type, status, entry_price, quantity, stop_loss, take_profit, strategy, open_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Symbol, p.Type, p.Status, p.EntryPrice, p.Quantity, p.StopLoss, p.TakeProfit, p.Strategy, p.OpenTime.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("insert position: %w", err)
	}
	return res.LastInsertId()
}

// GetPosition returns a position by id.
func (s *Store) GetPosition(ctx context.Context, id int64) (Position, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, type, status, entry_price, COALESCE(exit_price, 0), quantity,
		       COALESCE(stop_loss, 0), COALESCE(take_profit, 0), COALESCE(strategy, ''),
		       open_time, COALESCE(close_time, 0), COALESCE(profit, 0)
		FROM positions WHERE id = ?
	`, id)
	return scanPosition(row)
}

// OpenPositions returns all open positions, oldest first.
func (s *Store) OpenPositions(ctx context.Context) ([]Position, error) {
	return s.positions(ctx, `
		SELECT id, symbol, type, status, entry_price, COALESCE(exit_price, 0), quantity,
		       COALESCE(stop_loss, 0), COALESCE(take_profit, 0), COALESCE(strategy, ''),
		       open_time, COALESCE(close_time, 0), COALESCE(profit, 0)
		FROM positions WHERE status = ? ORDER BY open_time
	`, PositionOpen)
}

// OpenPositionsBySymbol returns open positions for one symbol.
func (s *Store) OpenPositionsBySymbol(ctx context.Context, symbol string) ([]Position, error) {
	return s.positions(ctx, `
		SELECT id, symbol, type, status, entry_price, COALESCE(exit_price, 0), quantity,
		       COALESCE(stop_loss, 0), COALESCE(take_profit, 0), COALESCE(strategy, ''),
		       open_time, COALESCE(close_time, 0), COALESCE(profit, 0)
		FROM positions WHERE status = ? AND symbol = ? ORDER BY open_time
	`, PositionOpen, symbol)
}

// ClosedPositionsBetween returns positions closed in [from, to].
func (s *Store) ClosedPositionsBetween(ctx context.Context, from, to time.Time) ([]Position, error) {
	return s.positions(ctx, `
		SELECT id, symbol, type, status, entry_price, COALESCE(exit_price, 0), quantity,
		       COALESCE(stop_loss, 0), COALESCE(take_profit, 0), COALESCE(strategy, ''),
		       open_time, COALESCE(close_time, 0), COALESCE(profit, 0)
		FROM positions WHERE status = ? AND close_time >= ? AND close_time <= ?
		ORDER BY close_time
	`, PositionClosed, from.UnixMilli(), to.UnixMilli())
}

// ClosePosition atomically marks an open position closed with its exit price
// and realized profit. Returns ErrNotFound when the position does not exist
// or is already closed.
func (s *Store) ClosePosition(ctx context.Context, id int64, exitPrice, profit float64, closeTime time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE positions
		SET status = ?, exit_price = ?, profit = ?, close_time = ?
		WHERE id = ? AND status = ?
	`, PositionClosed, exitPrice, profit, closeTime.UnixMilli(), id, PositionOpen)
	if err != nil {
		return fmt.Errorf("close position: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePositionLimits sets the protective levels on an open position.
func (s *Store) UpdatePositionLimits(ctx context.Context, id int64, stopLoss, takeProfit float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE positions SET stop_loss = ?, take_profit = ? WHERE id = ? AND status = ?
	`, stopLoss, takeProfit, id, PositionOpen)
	if err != nil {
		return fmt.Errorf("update position limits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) positions(ctx context.Context, query string, args ...any) ([]Position, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPosition(row scanner) (Position, error) {
	var p Position
	var openMs, closeMs int64
	err := row.Scan(&p.ID, &p.Symbol, &p.Type, &p.Status, &p.EntryPrice, &p.ExitPrice, &p.Quantity,
		&p.StopLoss, &p.TakeProfit, &p.Strategy, &openMs, &closeMs, &p.Profit)
	if errors.Is(err, sql.ErrNoRows) {
		return Position{}, ErrNotFound
	}
	if err != nil {
		return Position{}, fmt.Errorf("scan position: %w", err)
	}
	p.OpenTime = time.UnixMilli(openMs)
	if closeMs > 0 {
		p.CloseTime = time.UnixMilli(closeMs)
	}
	return p, nil
}

// ----------------------------------------
// Orders
// ----------------------------------------

// SaveOrder persists an order. Saving an id that already exists is a no-op
// with a warning; the stored row wins.
func (s *Store) SaveOrder(ctx context.Context, o *Order) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO orders
			(id, client_order_id, symbol, side, type, price, quantity, executed_qty, status, stop_price, commission, position_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.ClientOrderID, o.Symbol, o.Side, o.Type, o.Price, o.Quantity, o.ExecutedQty,
		o.Status, o.StopPrice, o.Commission, o.PositionID, o.CreatedAt.UnixMilli(), o.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.Printf("db: order %s already saved, ignoring duplicate", o.ID)
	}
	return nil
}

// UpdateOrderStatus records a status/fill change observed on the exchange.
func (s *Store) UpdateOrderStatus(ctx context.Context, id, status string, executedQty float64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, executed_qty = ?, updated_at = ? WHERE id = ?
	`, status, executedQty, at.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

// OpenOrders returns orders that are not in a terminal state.
func (s *Store) OpenOrders(ctx context.Context) ([]Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(client_order_id, ''), symbol, side, type, price, quantity,
		       COALESCE(executed_qty, 0), status, COALESCE(stop_price, 0), COALESCE(commission, 0),
		       COALESCE(position_id, 0), created_at, COALESCE(updated_at, 0)
		FROM orders WHERE status IN (?, ?)
		ORDER BY created_at
	`, "NEW", "PARTIALLY_FILLED")
	if err != nil {
		return nil, fmt.Errorf("query open orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		var createdMs, updatedMs int64
		if err := rows.Scan(&o.ID, &o.ClientOrderID, &o.Symbol, &o.Side, &o.Type, &o.Price, &o.Quantity,
			&o.ExecutedQty, &o.Status, &o.StopPrice, &o.Commission, &o.PositionID, &createdMs, &updatedMs); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.CreatedAt = time.UnixMilli(createdMs)
		if updatedMs > 0 {
			o.UpdatedAt = time.UnixMilli(updatedMs)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ----------------------------------------
// Candle cache
// ----------------------------------------

// SaveCandles upserts a batch of candles for a symbol/interval.
func (s *Store) SaveCandles(ctx context.Context, candles []Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin candles tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (symbol, interval, open_time, open, high, low, close, volume, close_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, interval, open_time) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume, close_time = excluded.close_time
	`)
	if err != nil {
		return fmt.Errorf("prepare candles: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.Symbol, c.Interval, c.OpenTime.UnixMilli(),
			c.Open, c.High, c.Low, c.Close, c.Volume, c.CloseTime.UnixMilli()); err != nil {
			return fmt.Errorf("insert candle: %w", err)
		}
	}
	return tx.Commit()
}

// RecentCandles returns up to limit most recent candles in ascending time
// order.
func (s *Store) RecentCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, interval, open_time, open, high, low, close, volume, close_time
		FROM (
			SELECT * FROM candles WHERE symbol = ? AND interval = ?
			ORDER BY open_time DESC LIMIT ?
		) ORDER BY open_time
	`, symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var out []Candle
	for rows.Next() {
		var c Candle
		var openMs, closeMs int64
		if err := rows.Scan(&c.Symbol, &c.Interval, &openMs, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &closeMs); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.OpenTime = time.UnixMilli(openMs)
		c.CloseTime = time.UnixMilli(closeMs)
		out = append(out, c)
	}
	return out, rows.Err()
}
