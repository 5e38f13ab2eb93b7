// Package domain provides core domain models and types.
package domain

import "time"

// Currency represents a currency code
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
	CurrencyJPY Currency = "JPY"
	CurrencyCHF Currency = "CHF"
)

// PackStatus is the lifecycle state of a pricing pack
type PackStatus string

const (
	// PackBuilding means the pack is still being assembled and is not usable
	PackBuilding PackStatus = "building"
	// PackReady means the pack is published and immutable
	PackReady PackStatus = "ready"
	// PackStale means the pack has been superseded and must not be used
	PackStale PackStatus = "stale"
)

// Pack is an immutable, dated snapshot of prices, FX rates and reference series.
type Pack struct {
	ID          string     `json:"id"`
	AsOf        time.Time  `json:"as_of"`
	Status      PackStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Usable reports whether computations may read from the pack
func (p *Pack) Usable() bool {
	return p != nil && p.Status == PackReady && p.PublishedAt != nil
}

// Age returns how long ago the pack was published. Unpublished packs have infinite age.
func (p *Pack) Age(now time.Time) time.Duration {
	if p.PublishedAt == nil {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(*p.PublishedAt)
}

// Factor identifies a macro factor used for exposure regressions
type Factor string

const (
	FactorRealRate     Factor = "real_rate"
	FactorInflation    Factor = "inflation"
	FactorCreditSpread Factor = "credit_spread"
	FactorUSD          Factor = "usd"
	FactorEquity       Factor = "equity"
)

// SeriesID is the return series identifier under which a pack stores the factor's history
func (f Factor) SeriesID() string {
	return "factor:" + string(f)
}

// DefaultFactors is the fixed factor set, in regression column order.
var DefaultFactors = []Factor{
	FactorRealRate,
	FactorInflation,
	FactorCreditSpread,
	FactorUSD,
	FactorEquity,
}

// FactorBeta is the result of regressing one security's returns against the factor set
// for one pack. New computations produce new records; existing ones are never modified.
type FactorBeta struct {
	Symbol       string             `json:"symbol"`
	PackID       string             `json:"pack_id"`
	Betas        map[Factor]float64 `json:"betas"`
	Intercept    float64            `json:"intercept"`
	RSquared     float64            `json:"r_squared"`
	Observations int                `json:"observations"`
	WindowStart  time.Time          `json:"window_start"`
	WindowEnd    time.Time          `json:"window_end"`
	ComputedAt   time.Time          `json:"computed_at"`
}

// Holding is an aggregated open position in one security
type Holding struct {
	Symbol   string   `json:"symbol"`
	Currency Currency `json:"currency"`
	Quantity float64  `json:"quantity"`
}

// WeightedHolding is a holding valued in the base currency at a pack's as-of date
type WeightedHolding struct {
	Holding
	Price     float64 `json:"price"`
	FXRate    float64 `json:"fx_rate"`
	BaseValue float64 `json:"base_value"`
	Weight    float64 `json:"weight"`
}

// PortfolioExposure is the market-weighted factor exposure of a portfolio
type PortfolioExposure struct {
	PortfolioID  string                `json:"portfolio_id"`
	PackID       string                `json:"pack_id"`
	BaseCurrency Currency              `json:"base_currency"`
	NAV          float64               `json:"nav"`
	Holdings     []WeightedHolding     `json:"holdings"`
	Betas        map[string]FactorBeta `json:"betas"`
	Exposure     map[Factor]float64    `json:"exposure"`
}

// DaRResult is the Distance-at-Risk estimate for a portfolio under a scenario.
// Identical inputs always produce an identical result.
type DaRResult struct {
	PortfolioID  string             `json:"portfolio_id"`
	PackID       string             `json:"pack_id"`
	Scenario     string             `json:"scenario"`
	Shocks       map[Factor]float64 `json:"shocks_bp"`
	Confidence   float64            `json:"confidence"`
	NAV          float64            `json:"nav"`
	DeltaNAV     float64            `json:"delta_nav"`
	DeltaNAVPct  float64            `json:"delta_nav_pct"`
	Magnitude    float64            `json:"magnitude"`
	SampleCount  int                `json:"sample_count"`
	QuantileRank int                `json:"quantile_rank"`
	Method       string             `json:"method"`
}

// HoldingAttribution is the currency decomposition of one holding's return
type HoldingAttribution struct {
	Symbol         string   `json:"symbol"`
	Currency       Currency `json:"currency"`
	Weight         float64  `json:"weight"`
	LocalReturn    float64  `json:"local_return"`
	CurrencyReturn float64  `json:"currency_return"`
	Interaction    float64  `json:"interaction"`
	TotalReturn    float64  `json:"total_return"`
}

// CurrencyAttributionResult decomposes portfolio return into local, currency and
// interaction components. The three components sum to TotalReturn within one basis point.
type CurrencyAttributionResult struct {
	PortfolioID    string               `json:"portfolio_id"`
	StartPackID    string               `json:"start_pack_id"`
	PackID         string               `json:"pack_id"`
	BaseCurrency   Currency             `json:"base_currency"`
	LocalReturn    float64              `json:"local_return"`
	CurrencyReturn float64              `json:"currency_return"`
	Interaction    float64              `json:"interaction"`
	TotalReturn    float64              `json:"total_return"`
	Residual       float64              `json:"residual"`
	Holdings       []HoldingAttribution `json:"holdings"`
}

// GraphNode is an append-only record of a computed artifact
type GraphNode struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Key       string    `json:"key"`
	Payload   []byte    `json:"payload"`
	PackID    string    `json:"pack_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Provenance tags intentionally degraded output so consumers can tell it apart
// from a computed result.
type Provenance struct {
	Source      string   `json:"source"`
	Degraded    bool     `json:"degraded"`
	Confidence  float64  `json:"confidence"`
	Limitations []string `json:"limitations,omitempty"`
}

// Computed is the provenance of a result produced by live computation
func Computed(source string) Provenance {
	return Provenance{Source: source, Confidence: 1.0}
}
