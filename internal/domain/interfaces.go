package domain

import "context"

// PackReader is the read side of the pricing pack service consumed by risk agents.
// Implementations fail closed: absent data is always an error, never a zero value.
type PackReader interface {
	GetPack(ctx context.Context, packID string) (*Pack, error)
	PriceWithCurrency(ctx context.Context, symbol, packID string) (float64, Currency, error)
	FXRate(ctx context.Context, from, to Currency, packID string) (float64, error)
	ReturnSeries(ctx context.Context, seriesID, packID string) ([]Observation, error)
}

// HoldingsProvider returns the open holdings of a portfolio
type HoldingsProvider interface {
	Holdings(ctx context.Context, portfolioID string) ([]Holding, error)
}

// Observation is a single dated value in a return series
type Observation struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}
