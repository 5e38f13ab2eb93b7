package pricing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/riskflow/internal/database"
	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/utils"
	"github.com/rs/zerolog"
)

// Repository handles pricing pack database operations.
// The build side (Create, Add*, Publish, MarkStale) belongs to the ingestion pipeline and
// test fixtures; computations only read.
type Repository struct {
	db  *sql.DB
	seq *utils.Sequence
	log zerolog.Logger
}

// NewRepository creates a new pricing pack repository
func NewRepository(db *sql.DB, seq *utils.Sequence, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		seq: seq,
		log: log.With().Str("repo", "pricing_pack").Logger(),
	}
}

// SeedSequence advances the id sequence past every pack id already stored
func (r *Repository) SeedSequence(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM packs")
	if err != nil {
		return fmt.Errorf("failed to query pack ids: %w", err)
	}
	defer rows.Close()

	var highest int64
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan pack id: %w", err)
		}
		parsed, err := ParsePackID(id)
		if err != nil {
			r.log.Warn().Str("pack_id", id).Msg("Ignoring pack with unrecognized id")
			continue
		}
		if parsed.Sequence > highest {
			highest = parsed.Sequence
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating pack ids: %w", err)
	}

	r.seq.AdvanceTo(highest)
	return nil
}

// Create opens a new pack in the building state and returns it
func (r *Repository) Create(ctx context.Context, asOf time.Time) (*domain.Pack, error) {
	asOf = time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	pack := &domain.Pack{
		ID:        FormatPackID(asOf, r.seq.Next()),
		AsOf:      asOf,
		Status:    domain.PackBuilding,
		CreatedAt: time.Now().UTC(),
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO packs (id, as_of, status, created_at) VALUES (?, ?, ?, ?)",
		pack.ID, asOf.Format(DateLayout), string(pack.Status), pack.CreatedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to create pack %s: %w", pack.ID, err)
	}

	r.log.Debug().Str("pack_id", pack.ID).Str("as_of", asOf.Format(DateLayout)).Msg("Pack created")
	return pack, nil
}

// AddPrice records a security price in a building pack
func (r *Repository) AddPrice(ctx context.Context, packID, symbol string, currency domain.Currency, price float64) error {
	if price <= 0 {
		return &domain.ValidationError{Field: "price", Reason: fmt.Sprintf("must be positive, got %g for %s", price, symbol)}
	}
	return r.writeToBuilding(ctx, packID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO pack_prices (pack_id, symbol, currency, price) VALUES (?, ?, ?, ?)",
			packID, symbol, string(currency), price)
		if err != nil {
			return fmt.Errorf("failed to insert price for %s: %w", symbol, err)
		}
		return nil
	})
}

// AddFXRate records that one unit of base costs rate units of quote
func (r *Repository) AddFXRate(ctx context.Context, packID string, base, quote domain.Currency, rate float64) error {
	if rate <= 0 {
		return &domain.ValidationError{Field: "rate", Reason: fmt.Sprintf("must be positive, got %g for %s/%s", rate, base, quote)}
	}
	if base == quote {
		return &domain.ValidationError{Field: "quote", Reason: "base and quote currency must differ"}
	}
	return r.writeToBuilding(ctx, packID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO pack_fx_rates (pack_id, base, quote, rate) VALUES (?, ?, ?, ?)",
			packID, string(base), string(quote), rate)
		if err != nil {
			return fmt.Errorf("failed to insert fx rate %s/%s: %w", base, quote, err)
		}
		return nil
	})
}

// AddReturns records a return series (security symbol or factor series id) in a building pack
func (r *Repository) AddReturns(ctx context.Context, packID, seriesID string, observations []domain.Observation) error {
	return r.writeToBuilding(ctx, packID, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO pack_return_series (pack_id, series_id, date, value) VALUES (?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare return insert: %w", err)
		}
		defer stmt.Close()

		for _, obs := range observations {
			if _, err := stmt.ExecContext(ctx, packID, seriesID, obs.Date, obs.Value); err != nil {
				return fmt.Errorf("failed to insert %s return for %s: %w", seriesID, obs.Date, err)
			}
		}
		return nil
	})
}

// Publish freezes a building pack and makes it usable. A pack without prices cannot be published.
func (r *Repository) Publish(ctx context.Context, packID string, publishedAt time.Time) (*domain.Pack, error) {
	err := r.writeToBuilding(ctx, packID, func(tx *sql.Tx) error {
		var prices int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM pack_prices WHERE pack_id = ?", packID).Scan(&prices); err != nil {
			return fmt.Errorf("failed to count prices: %w", err)
		}
		if prices == 0 {
			return &domain.ValidationError{Field: "pack", Reason: fmt.Sprintf("pack %s has no prices", packID)}
		}

		_, err := tx.ExecContext(ctx,
			"UPDATE packs SET status = ?, published_at = ? WHERE id = ?",
			string(domain.PackReady), publishedAt.UTC().UnixNano(), packID)
		if err != nil {
			return fmt.Errorf("failed to publish pack: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Info().Str("pack_id", packID).Msg("Pack published")
	return r.GetByID(ctx, packID)
}

// MarkStale retires a ready pack that has been superseded. Stale packs are kept but never used.
func (r *Repository) MarkStale(ctx context.Context, packID string) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		status, err := r.statusOf(ctx, tx, packID)
		if err != nil {
			return err
		}
		if status != domain.PackReady {
			return &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("only ready packs can be marked stale, %s is %s", packID, status)}
		}
		if _, err := tx.ExecContext(ctx, "UPDATE packs SET status = ? WHERE id = ?", string(domain.PackStale), packID); err != nil {
			return fmt.Errorf("failed to mark pack stale: %w", err)
		}
		return nil
	})
}

// GetByID returns the pack with the exact id, or nil if none exists
func (r *Repository) GetByID(ctx context.Context, packID string) (*domain.Pack, error) {
	row := r.db.QueryRowContext(ctx, selectPack+" WHERE id = ?", packID)
	return r.scanPackRow(row)
}

// LatestReadyForDate returns the most recently published ready pack for an as-of date, or nil
func (r *Repository) LatestReadyForDate(ctx context.Context, asOf string) (*domain.Pack, error) {
	row := r.db.QueryRowContext(ctx,
		selectPack+" WHERE as_of = ? AND status = ? ORDER BY published_at DESC, id DESC LIMIT 1",
		asOf, string(domain.PackReady))
	return r.scanPackRow(row)
}

// LatestReady returns the most recently published ready pack, or nil
func (r *Repository) LatestReady(ctx context.Context) (*domain.Pack, error) {
	row := r.db.QueryRowContext(ctx,
		selectPack+" WHERE status = ? ORDER BY published_at DESC, id DESC LIMIT 1",
		string(domain.PackReady))
	return r.scanPackRow(row)
}

// List returns the newest packs first, whatever their status
func (r *Repository) List(ctx context.Context, limit int) ([]domain.Pack, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, selectPack+" ORDER BY as_of DESC, created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query packs: %w", err)
	}
	defer rows.Close()

	var packs []domain.Pack
	for rows.Next() {
		pack, err := scanPack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pack: %w", err)
		}
		packs = append(packs, *pack)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating packs: %w", err)
	}
	return packs, nil
}

// Price returns a symbol's price and currency in a pack; found is false when absent
func (r *Repository) Price(ctx context.Context, packID, symbol string) (float64, domain.Currency, bool, error) {
	var price float64
	var currency string
	err := r.db.QueryRowContext(ctx,
		"SELECT price, currency FROM pack_prices WHERE pack_id = ? AND symbol = ?",
		packID, symbol).Scan(&price, &currency)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, fmt.Errorf("failed to query price for %s: %w", symbol, err)
	}
	return price, domain.Currency(currency), true, nil
}

// FXRate returns the stored rate for exactly base/quote; found is false when absent
func (r *Repository) FXRate(ctx context.Context, packID string, base, quote domain.Currency) (float64, bool, error) {
	var rate float64
	err := r.db.QueryRowContext(ctx,
		"SELECT rate FROM pack_fx_rates WHERE pack_id = ? AND base = ? AND quote = ?",
		packID, string(base), string(quote)).Scan(&rate)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query fx rate %s/%s: %w", base, quote, err)
	}
	return rate, true, nil
}

// ReturnSeries returns a series in date order
func (r *Repository) ReturnSeries(ctx context.Context, packID, seriesID string) ([]domain.Observation, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT date, value FROM pack_return_series WHERE pack_id = ? AND series_id = ? ORDER BY date ASC",
		packID, seriesID)
	if err != nil {
		return nil, fmt.Errorf("failed to query return series %s: %w", seriesID, err)
	}
	defer rows.Close()

	observations := make([]domain.Observation, 0)
	for rows.Next() {
		var obs domain.Observation
		if err := rows.Scan(&obs.Date, &obs.Value); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		observations = append(observations, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating return series: %w", err)
	}
	return observations, nil
}

// PriorPrice finds the symbol's price in the most recent ready pack dated before asOf
func (r *Repository) PriorPrice(ctx context.Context, symbol, asOf string) (float64, *domain.Pack, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT pp.price, p.id, p.as_of, p.status, p.created_at, p.published_at
		FROM pack_prices pp
		JOIN packs p ON p.id = pp.pack_id
		WHERE pp.symbol = ? AND p.status = ? AND p.as_of < ?
		ORDER BY p.as_of DESC, p.published_at DESC
		LIMIT 1`,
		symbol, string(domain.PackReady), asOf)

	var price float64
	var id, asOfStr, status string
	var createdAt int64
	var publishedAt sql.NullInt64
	err := row.Scan(&price, &id, &asOfStr, &status, &createdAt, &publishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, fmt.Errorf("failed to query prior price for %s: %w", symbol, err)
	}

	pack, err := buildPack(id, asOfStr, status, createdAt, publishedAt)
	if err != nil {
		return 0, nil, false, err
	}
	return price, pack, true, nil
}

const selectPack = "SELECT id, as_of, status, created_at, published_at FROM packs"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *Repository) scanPackRow(row *sql.Row) (*domain.Pack, error) {
	pack, err := scanPack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pack: %w", err)
	}
	return pack, nil
}

func scanPack(row rowScanner) (*domain.Pack, error) {
	var id, asOf, status string
	var createdAt int64
	var publishedAt sql.NullInt64
	if err := row.Scan(&id, &asOf, &status, &createdAt, &publishedAt); err != nil {
		return nil, err
	}
	return buildPack(id, asOf, status, createdAt, publishedAt)
}

func buildPack(id, asOf, status string, createdAt int64, publishedAt sql.NullInt64) (*domain.Pack, error) {
	date, err := time.Parse(DateLayout, asOf)
	if err != nil {
		return nil, fmt.Errorf("pack %s has invalid as_of %q: %w", id, asOf, err)
	}
	pack := &domain.Pack{
		ID:        id,
		AsOf:      date,
		Status:    domain.PackStatus(status),
		CreatedAt: time.Unix(0, createdAt).UTC(),
	}
	if publishedAt.Valid {
		t := time.Unix(0, publishedAt.Int64).UTC()
		pack.PublishedAt = &t
	}
	return pack, nil
}

// writeToBuilding runs fn in a transaction after checking the pack is still building
func (r *Repository) writeToBuilding(ctx context.Context, packID string, fn func(tx *sql.Tx) error) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		status, err := r.statusOf(ctx, tx, packID)
		if err != nil {
			return err
		}
		if status != domain.PackBuilding {
			return &domain.PackImmutableError{PackID: packID, Status: status}
		}
		return fn(tx)
	})
}

func (r *Repository) statusOf(ctx context.Context, tx *sql.Tx, packID string) (domain.PackStatus, error) {
	var status string
	err := tx.QueryRowContext(ctx, "SELECT status FROM packs WHERE id = ?", packID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &domain.PackNotFoundError{PackID: packID}
	}
	if err != nil {
		return "", fmt.Errorf("failed to query status of pack %s: %w", packID, err)
	}
	return domain.PackStatus(status), nil
}
