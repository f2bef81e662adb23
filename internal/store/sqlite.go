package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"anchor-rebalancer/internal/errors"
	"anchor-rebalancer/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Position cells
	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		portfolio_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		qty REAL NOT NULL,
		cash REAL NOT NULL,
		anchor_price REAL NOT NULL,
		avg_cost REAL NOT NULL,
		dividend_receivable REAL NOT NULL DEFAULT 0,
		total_commission_paid REAL NOT NULL DEFAULT 0,
		total_dividends_received REAL NOT NULL DEFAULT 0,
		realized_pnl REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	-- Append-only audit events
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		position_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		type TEXT NOT NULL,
		trace_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		payload TEXT NOT NULL,
		UNIQUE(position_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_events_position ON events(position_id, seq);

	-- Orders
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		position_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		qty REAL NOT NULL,
		status TEXT NOT NULL,
		idempotency_key TEXT NOT NULL UNIQUE,
		broker_order_id TEXT,
		filled_qty REAL NOT NULL DEFAULT 0,
		avg_fill_price REAL NOT NULL DEFAULT 0,
		rejection_reason TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_position ON orders(position_id, created_at);

	-- Trades (fills)
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		position_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		qty REAL NOT NULL,
		price REAL NOT NULL,
		commission REAL NOT NULL,
		executed_at DATETIME NOT NULL,
		FOREIGN KEY (order_id) REFERENCES orders(id)
	);
	CREATE INDEX IF NOT EXISTS idx_trades_position ON trades(position_id, executed_at);

	-- Dividend receivables
	CREATE TABLE IF NOT EXISTS receivables (
		id TEXT PRIMARY KEY,
		position_id TEXT NOT NULL,
		dividend_id TEXT NOT NULL,
		qty_at_ex_date REAL NOT NULL,
		gross REAL NOT NULL,
		withholding REAL NOT NULL,
		net REAL NOT NULL,
		pay_date DATETIME NOT NULL,
		credited INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_receivables_position ON receivables(position_id, pay_date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SavePosition upserts a position snapshot.
func (s *SQLiteStore) SavePosition(ctx context.Context, pos *models.PositionCell) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (id, tenant_id, portfolio_id, symbol, qty, cash, anchor_price, avg_cost,
			dividend_receivable, total_commission_paid, total_dividends_received, realized_pnl, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			qty = excluded.qty,
			cash = excluded.cash,
			anchor_price = excluded.anchor_price,
			avg_cost = excluded.avg_cost,
			dividend_receivable = excluded.dividend_receivable,
			total_commission_paid = excluded.total_commission_paid,
			total_dividends_received = excluded.total_dividends_received,
			realized_pnl = excluded.realized_pnl,
			updated_at = excluded.updated_at`,
		pos.ID, pos.TenantID, pos.PortfolioID, pos.Symbol, pos.Qty, pos.Cash, pos.AnchorPrice, pos.AvgCost,
		pos.DividendReceivable, pos.TotalCommissionPaid, pos.TotalDividendsReceived, pos.RealizedPnL,
		pos.CreatedAt, pos.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: saving position: %v", errors.ErrDatabaseError, err)
	}
	return nil
}

// GetPosition loads a position by id.
func (s *SQLiteStore) GetPosition(ctx context.Context, id string) (*models.PositionCell, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, portfolio_id, symbol, qty, cash, anchor_price, avg_cost,
			dividend_receivable, total_commission_paid, total_dividends_received, realized_pnl, created_at, updated_at
		FROM positions WHERE id = ?`, id)
	pos, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", errors.ErrPositionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading position: %v", errors.ErrDatabaseError, err)
	}
	return pos, nil
}

// ListPositions returns all position snapshots.
func (s *SQLiteStore) ListPositions(ctx context.Context) ([]models.PositionCell, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, portfolio_id, symbol, qty, cash, anchor_price, avg_cost,
			dividend_receivable, total_commission_paid, total_dividends_received, realized_pnl, created_at, updated_at
		FROM positions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing positions: %v", errors.ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []models.PositionCell
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning position: %v", errors.ErrDatabaseError, err)
		}
		out = append(out, *pos)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*models.PositionCell, error) {
	var pos models.PositionCell
	err := row.Scan(&pos.ID, &pos.TenantID, &pos.PortfolioID, &pos.Symbol, &pos.Qty, &pos.Cash,
		&pos.AnchorPrice, &pos.AvgCost, &pos.DividendReceivable, &pos.TotalCommissionPaid,
		&pos.TotalDividendsReceived, &pos.RealizedPnL, &pos.CreatedAt, &pos.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

// AppendEvent stores one audit event. Events are never updated or deleted.
func (s *SQLiteStore) AppendEvent(ctx context.Context, ev models.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, position_id, seq, type, trace_id, timestamp, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.PositionID, ev.Seq, string(ev.Type), ev.TraceID, ev.Timestamp, string(ev.Payload))
	if err != nil {
		return fmt.Errorf("%w: appending event: %v", errors.ErrDatabaseError, err)
	}
	return nil
}

// GetEvents returns all events for a position in sequence order.
func (s *SQLiteStore) GetEvents(ctx context.Context, positionID string) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position_id, seq, type, trace_id, timestamp, payload
		FROM events WHERE position_id = ? ORDER BY seq`, positionID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading events: %v", errors.ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var ev models.Event
		var typ, payload string
		if err := rows.Scan(&ev.ID, &ev.PositionID, &ev.Seq, &typ, &ev.TraceID, &ev.Timestamp, &payload); err != nil {
			return nil, fmt.Errorf("%w: scanning event: %v", errors.ErrDatabaseError, err)
		}
		ev.Type = models.EventType(typ)
		ev.Payload = []byte(payload)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// SaveOrder upserts an order.
func (s *SQLiteStore) SaveOrder(ctx context.Context, order *models.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, position_id, symbol, side, qty, status, idempotency_key,
			broker_order_id, filled_qty, avg_fill_price, rejection_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			broker_order_id = excluded.broker_order_id,
			filled_qty = excluded.filled_qty,
			avg_fill_price = excluded.avg_fill_price,
			rejection_reason = excluded.rejection_reason,
			updated_at = excluded.updated_at`,
		order.ID, order.PositionID, order.Symbol, string(order.Side), order.Qty, string(order.Status),
		order.IdempotencyKey, order.BrokerOrderID, order.FilledQty, order.AvgFillPrice,
		order.RejectionReason, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: saving order: %v", errors.ErrDatabaseError, err)
	}
	return nil
}

// GetOrderByIdempotencyKey loads an order by its dedup token.
func (s *SQLiteStore) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, position_id, symbol, side, qty, status, idempotency_key,
			COALESCE(broker_order_id, ''), filled_qty, avg_fill_price, COALESCE(rejection_reason, ''),
			created_at, updated_at
		FROM orders WHERE idempotency_key = ?`, key)
	var o models.Order
	var side, status string
	err := row.Scan(&o.ID, &o.PositionID, &o.Symbol, &side, &o.Qty, &status, &o.IdempotencyKey,
		&o.BrokerOrderID, &o.FilledQty, &o.AvgFillPrice, &o.RejectionReason, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: idempotency key %s", errors.ErrOrderNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading order: %v", errors.ErrDatabaseError, err)
	}
	o.Side = models.OrderSide(side)
	o.Status = models.OrderStatus(status)
	return &o, nil
}

// SaveTrade stores one fill.
func (s *SQLiteStore) SaveTrade(ctx context.Context, trade *models.Trade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (id, order_id, position_id, symbol, side, qty, price, commission, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID, trade.OrderID, trade.PositionID, trade.Symbol, string(trade.Side),
		trade.Qty, trade.Price, trade.Commission, trade.ExecutedAt)
	if err != nil {
		return fmt.Errorf("%w: saving trade: %v", errors.ErrDatabaseError, err)
	}
	return nil
}

// GetTrades returns fills for a position within a time range.
func (s *SQLiteStore) GetTrades(ctx context.Context, positionID string, from, to time.Time) ([]models.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, position_id, symbol, side, qty, price, commission, executed_at
		FROM trades WHERE position_id = ? AND executed_at >= ? AND executed_at <= ?
		ORDER BY executed_at`, positionID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: loading trades: %v", errors.ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []models.Trade
	for rows.Next() {
		var t models.Trade
		var side string
		if err := rows.Scan(&t.ID, &t.OrderID, &t.PositionID, &t.Symbol, &side, &t.Qty, &t.Price,
			&t.Commission, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning trade: %v", errors.ErrDatabaseError, err)
		}
		t.Side = models.OrderSide(side)
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveReceivable upserts a dividend receivable.
func (s *SQLiteStore) SaveReceivable(ctx context.Context, rcv *models.DividendReceivable) error {
	credited := 0
	if rcv.Credited {
		credited = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO receivables (id, position_id, dividend_id, qty_at_ex_date, gross, withholding, net, pay_date, credited)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET credited = excluded.credited`,
		rcv.ID, rcv.PositionID, rcv.DividendID, rcv.QtyAtExDate, rcv.Gross, rcv.Withholding,
		rcv.Net, rcv.PayDate, credited)
	if err != nil {
		return fmt.Errorf("%w: saving receivable: %v", errors.ErrDatabaseError, err)
	}
	return nil
}

// GetPendingReceivables returns uncredited receivables due on or before
// asOf.
func (s *SQLiteStore) GetPendingReceivables(ctx context.Context, positionID string, asOf time.Time) ([]models.DividendReceivable, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position_id, dividend_id, qty_at_ex_date, gross, withholding, net, pay_date, credited
		FROM receivables WHERE position_id = ? AND credited = 0 AND pay_date <= ?
		ORDER BY pay_date`, positionID, asOf)
	if err != nil {
		return nil, fmt.Errorf("%w: loading receivables: %v", errors.ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []models.DividendReceivable
	for rows.Next() {
		var r models.DividendReceivable
		var credited int
		if err := rows.Scan(&r.ID, &r.PositionID, &r.DividendID, &r.QtyAtExDate, &r.Gross,
			&r.Withholding, &r.Net, &r.PayDate, &credited); err != nil {
			return nil, fmt.Errorf("%w: scanning receivable: %v", errors.ErrDatabaseError, err)
		}
		r.Credited = credited != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
