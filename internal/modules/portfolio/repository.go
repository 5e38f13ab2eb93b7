package portfolio

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repository handles lot and trade database operations.
// There is no delete and no way to raise an open quantity; the schema enforces the same.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new lot repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "lots").Logger(),
	}
}

// DB returns the underlying connection for transactions
func (r *Repository) DB() *sql.DB {
	return r.db
}

// InsertLot stores a newly opened lot
func (r *Repository) InsertLot(ctx context.Context, q querier, lot Lot) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO lots (id, portfolio_id, symbol, currency, opened_at, sequence,
			quantity_original, quantity_open, cost_per_unit, method)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lot.ID, lot.PortfolioID, lot.Symbol, string(lot.Currency), lot.OpenedAt.UTC().UnixNano(), lot.Sequence,
		lot.QuantityOriginal.String(), lot.QuantityOpen.String(), lot.CostPerUnit.String(), string(lot.Method))
	if err != nil {
		return fmt.Errorf("failed to insert lot %s: %w", lot.ID, err)
	}
	return nil
}

// UpdateOpenQuantity writes a reduced open quantity. The schema rejects increases.
func (r *Repository) UpdateOpenQuantity(ctx context.Context, q querier, lotID string, open decimal.Decimal) error {
	result, err := q.ExecContext(ctx, "UPDATE lots SET quantity_open = ? WHERE id = ?", open.String(), lotID)
	if err != nil {
		return fmt.Errorf("failed to update lot %s: %w", lotID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("lot %s does not exist", lotID)
	}
	return nil
}

// NextSequence returns the next opening sequence number for a portfolio
func (r *Repository) NextSequence(ctx context.Context, q querier, portfolioID string) (int64, error) {
	var next int64
	err := q.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(sequence), 0) + 1 FROM lots WHERE portfolio_id = ?", portfolioID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to read lot sequence: %w", err)
	}
	return next, nil
}

// InsertTrade records an executed trade
func (r *Repository) InsertTrade(ctx context.Context, q querier, trade Trade) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO trades (id, portfolio_id, symbol, side, quantity, price, currency, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID, trade.PortfolioID, trade.Symbol, string(trade.Side), trade.Quantity.String(),
		trade.Price.String(), string(trade.Currency), trade.ExecutedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert trade %s: %w", trade.ID, err)
	}
	return nil
}

// ListLots returns every lot of a portfolio, open or closed, in opening order.
// An empty symbol lists all symbols.
func (r *Repository) ListLots(ctx context.Context, q querier, portfolioID, symbol string) ([]Lot, error) {
	query := selectLot + " WHERE portfolio_id = ?"
	args := []interface{}{portfolioID}
	if symbol != "" {
		query += " AND symbol = ?"
		args = append(args, symbol)
	}
	query += " ORDER BY opened_at ASC, sequence ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots: %w", err)
	}
	defer rows.Close()

	lots := make([]Lot, 0)
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lots: %w", err)
	}
	return lots, nil
}

// ListTrades returns a portfolio's trades in execution order
func (r *Repository) ListTrades(ctx context.Context, portfolioID string) ([]Trade, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, portfolio_id, symbol, side, quantity, price, currency, executed_at
		FROM trades WHERE portfolio_id = ? ORDER BY executed_at ASC, id ASC`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := make([]Trade, 0)
	for rows.Next() {
		var t Trade
		var side, quantity, price, currency string
		var executedAt int64
		if err := rows.Scan(&t.ID, &t.PortfolioID, &t.Symbol, &side, &quantity, &price, &currency, &executedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Side = Side(side)
		t.Currency = domain.Currency(currency)
		t.ExecutedAt = time.Unix(0, executedAt).UTC()
		if t.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("trade %s has invalid quantity %q: %w", t.ID, quantity, err)
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("trade %s has invalid price %q: %w", t.ID, price, err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

const selectLot = `SELECT id, portfolio_id, symbol, currency, opened_at, sequence,
	quantity_original, quantity_open, cost_per_unit, method FROM lots`

func scanLot(rows *sql.Rows) (Lot, error) {
	var lot Lot
	var currency, original, open, cost, method string
	var openedAt int64
	if err := rows.Scan(&lot.ID, &lot.PortfolioID, &lot.Symbol, &currency, &openedAt, &lot.Sequence,
		&original, &open, &cost, &method); err != nil {
		return lot, err
	}

	var err error
	if lot.QuantityOriginal, err = decimal.NewFromString(original); err != nil {
		return lot, fmt.Errorf("lot %s has invalid quantity_original %q: %w", lot.ID, original, err)
	}
	if lot.QuantityOpen, err = decimal.NewFromString(open); err != nil {
		return lot, fmt.Errorf("lot %s has invalid quantity_open %q: %w", lot.ID, open, err)
	}
	if lot.CostPerUnit, err = decimal.NewFromString(cost); err != nil {
		return lot, fmt.Errorf("lot %s has invalid cost_per_unit %q: %w", lot.ID, cost, err)
	}
	lot.Currency = domain.Currency(currency)
	lot.OpenedAt = time.Unix(0, openedAt).UTC()
	lot.Method = CostBasisMethod(method)
	return lot, nil
}
