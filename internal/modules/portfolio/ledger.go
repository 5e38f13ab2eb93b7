package portfolio

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/aristath/riskflow/internal/database"
	"github.com/aristath/riskflow/internal/domain"
	"github.com/aristath/riskflow/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Ledger applies trades to lots and serves holdings.
// Trades are applied one at a time so a sell always sees the lots left by the previous one.
type Ledger struct {
	repo     *Repository
	validate *validation.Validator
	mu       sync.Mutex
	log      zerolog.Logger
}

// NewLedger creates a new lot ledger
func NewLedger(repo *Repository, validate *validation.Validator, log zerolog.Logger) *Ledger {
	return &Ledger{
		repo:     repo,
		validate: validate,
		log:      log.With().Str("service", "ledger").Logger(),
	}
}

// Execute records a trade: a buy opens a lot, a sell reduces open lots in cost-basis order.
// Selling more than is open fails and changes nothing.
func (l *Ledger) Execute(ctx context.Context, trade Trade) (*Execution, error) {
	if err := l.validateTrade(trade); err != nil {
		return nil, err
	}
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	trade.Quantity = trade.Quantity.Truncate(QuantityPlaces)

	l.mu.Lock()
	defer l.mu.Unlock()

	var execution *Execution
	err := database.WithTransaction(l.repo.DB(), func(tx *sql.Tx) error {
		lots, err := l.repo.ListLots(ctx, tx, trade.PortfolioID, trade.Symbol)
		if err != nil {
			return err
		}

		if err := l.repo.InsertTrade(ctx, tx, trade); err != nil {
			return err
		}

		if trade.Side == SideBuy {
			execution, err = l.openLot(ctx, tx, trade, lots)
		} else {
			execution, err = l.reduceLots(ctx, tx, trade, lots)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	l.log.Info().
		Str("trade_id", trade.ID).
		Str("portfolio_id", trade.PortfolioID).
		Str("symbol", trade.Symbol).
		Str("side", string(trade.Side)).
		Str("quantity", trade.Quantity.String()).
		Msg("Trade executed")

	return execution, nil
}

func (l *Ledger) openLot(ctx context.Context, tx *sql.Tx, trade Trade, existing []Lot) (*Execution, error) {
	method := trade.Method
	if method == "" {
		method = MethodFIFO
	}
	if err := checkCurrency(trade, existing); err != nil {
		return nil, err
	}
	for _, lot := range existing {
		if lot.QuantityOpen.IsPositive() && lot.Method != method {
			return nil, &domain.ValidationError{
				Field:  "method",
				Reason: fmt.Sprintf("%s already has open %s lots, cannot add a %s lot", trade.Symbol, lot.Method, method),
			}
		}
	}

	seq, err := l.repo.NextSequence(ctx, tx, trade.PortfolioID)
	if err != nil {
		return nil, err
	}

	lot := Lot{
		ID:               uuid.NewString(),
		PortfolioID:      trade.PortfolioID,
		Symbol:           trade.Symbol,
		Currency:         trade.Currency,
		OpenedAt:         trade.ExecutedAt.UTC(),
		Sequence:         seq,
		QuantityOriginal: trade.Quantity,
		QuantityOpen:     trade.Quantity,
		CostPerUnit:      trade.Price,
		Method:           method,
	}
	if err := l.repo.InsertLot(ctx, tx, lot); err != nil {
		return nil, err
	}

	return &Execution{
		Trade:       trade,
		OpenedLot:   &lot,
		CostBasis:   trade.Quantity.Mul(trade.Price),
		RealizedPnL: decimal.Zero,
	}, nil
}

func (l *Ledger) reduceLots(ctx context.Context, tx *sql.Tx, trade Trade, lots []Lot) (*Execution, error) {
	if err := checkCurrency(trade, lots); err != nil {
		return nil, err
	}
	method := MethodFIFO
	for _, lot := range lots {
		if lot.QuantityOpen.IsPositive() {
			method = lot.Method
			break
		}
	}

	reductions, err := PlanReductions(lots, trade.Quantity, method)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Lot, len(lots))
	for _, lot := range lots {
		byID[lot.ID] = lot
	}

	costBasis := decimal.Zero
	for _, reduction := range reductions {
		reduced, err := ApplyReduction(byID[reduction.LotID], reduction.Quantity)
		if err != nil {
			return nil, err
		}
		if err := l.repo.UpdateOpenQuantity(ctx, tx, reduced.ID, reduced.QuantityOpen); err != nil {
			return nil, err
		}
		costBasis = costBasis.Add(reduction.Quantity.Mul(reduction.CostPerUnit))
	}

	proceeds := trade.Quantity.Mul(trade.Price)
	return &Execution{
		Trade:       trade,
		Reductions:  reductions,
		CostBasis:   costBasis,
		RealizedPnL: proceeds.Sub(costBasis),
	}, nil
}

// Lots returns every lot of a portfolio, including fully closed ones
func (l *Ledger) Lots(ctx context.Context, portfolioID, symbol string) ([]Lot, error) {
	return l.repo.ListLots(ctx, l.repo.DB(), portfolioID, symbol)
}

// Positions returns the open positions of a portfolio
func (l *Ledger) Positions(ctx context.Context, portfolioID string) ([]Position, error) {
	lots, err := l.Lots(ctx, portfolioID, "")
	if err != nil {
		return nil, err
	}
	return Aggregate(lots), nil
}

// Holdings implements domain.HoldingsProvider
func (l *Ledger) Holdings(ctx context.Context, portfolioID string) ([]domain.Holding, error) {
	positions, err := l.Positions(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	holdings := make([]domain.Holding, 0, len(positions))
	for _, pos := range positions {
		holdings = append(holdings, domain.Holding{
			Symbol:   pos.Symbol,
			Currency: pos.Currency,
			Quantity: pos.Quantity.InexactFloat64(),
		})
	}
	return holdings, nil
}

func (l *Ledger) validateTrade(trade Trade) error {
	if err := l.validate.Struct(trade); err != nil {
		return err
	}
	if !trade.Quantity.IsPositive() {
		return &domain.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if !trade.Price.IsPositive() {
		return &domain.ValidationError{Field: "price", Reason: "must be positive"}
	}
	if trade.Quantity.Truncate(QuantityPlaces).IsZero() {
		return &domain.ValidationError{Field: "quantity", Reason: fmt.Sprintf("below the %d decimal place precision", QuantityPlaces)}
	}
	return nil
}

// checkCurrency rejects a trade in a currency other than the symbol's open lots,
// so cost basis and realized P&L never mix currencies.
func checkCurrency(trade Trade, lots []Lot) error {
	for _, lot := range lots {
		if lot.QuantityOpen.IsPositive() && lot.Currency != trade.Currency {
			return &domain.ValidationError{
				Field:  "currency",
				Reason: fmt.Sprintf("%s already has open lots in %s, cannot trade it in %s", trade.Symbol, lot.Currency, trade.Currency),
			}
		}
	}
	return nil
}
