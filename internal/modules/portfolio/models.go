// Package portfolio tracks positions as tax lots. Buys open lots, sells reduce them in
// cost-basis order; a lot is never deleted and its open quantity never grows.
package portfolio

import (
	"time"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/shopspring/decimal"
)

// QuantityPlaces is the precision lot quantities are kept at
const QuantityPlaces = 8

// CostBasisMethod selects which lots a sell reduces
type CostBasisMethod string

const (
	// MethodFIFO reduces the oldest lots first
	MethodFIFO CostBasisMethod = "FIFO"
	// MethodLIFO reduces the newest lots first
	MethodLIFO CostBasisMethod = "LIFO"
	// MethodAverage reduces every open lot pro rata
	MethodAverage CostBasisMethod = "AVERAGE"
)

// Side is the direction of a trade
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Lot is a discrete acquisition of a security
type Lot struct {
	ID               string          `json:"id"`
	PortfolioID      string          `json:"portfolio_id"`
	Symbol           string          `json:"symbol"`
	Currency         domain.Currency `json:"currency"`
	OpenedAt         time.Time       `json:"opened_at"`
	Sequence         int64           `json:"sequence"`
	QuantityOriginal decimal.Decimal `json:"quantity_original"`
	QuantityOpen     decimal.Decimal `json:"quantity_open"`
	CostPerUnit      decimal.Decimal `json:"cost_per_unit"`
	Method           CostBasisMethod `json:"method"`
}

// Closed reports whether nothing is left open in the lot
func (l Lot) Closed() bool {
	return l.QuantityOpen.IsZero()
}

// Trade is an executed buy or sell
type Trade struct {
	ID          string          `json:"id"`
	PortfolioID string          `json:"portfolio_id" validate:"required"`
	Symbol      string          `json:"symbol" validate:"required"`
	Side        Side            `json:"side" validate:"oneof=BUY SELL"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Currency    domain.Currency `json:"currency" validate:"currency_code"`
	ExecutedAt  time.Time       `json:"executed_at" validate:"required"`
	// Method applies to buys; empty means FIFO. Sells follow the method of the open lots.
	Method CostBasisMethod `json:"method,omitempty" validate:"omitempty,oneof=FIFO LIFO AVERAGE"`
}

// Reduction is the part of a sell taken from one lot
type Reduction struct {
	LotID       string          `json:"lot_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`
}

// Execution is the outcome of applying a trade to the ledger
type Execution struct {
	Trade       Trade           `json:"trade"`
	OpenedLot   *Lot            `json:"opened_lot,omitempty"`
	Reductions  []Reduction     `json:"reductions,omitempty"`
	CostBasis   decimal.Decimal `json:"cost_basis"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

// Position aggregates the open lots of one symbol
type Position struct {
	Symbol      string          `json:"symbol"`
	Currency    domain.Currency `json:"currency"`
	Quantity    decimal.Decimal `json:"quantity"`
	CostBasis   decimal.Decimal `json:"cost_basis"`
	AverageCost decimal.Decimal `json:"average_cost"`
	Method      CostBasisMethod `json:"method"`
	OpenLots    int             `json:"open_lots"`
}
