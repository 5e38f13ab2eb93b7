package agents

import (
	"context"
	"fmt"

	"github.com/aristath/riskflow/internal/capabilities"
	"github.com/aristath/riskflow/internal/domain"
)

// HoldingsAgent returns the open holdings of a portfolio
type HoldingsAgent struct {
	holdings domain.HoldingsProvider
}

// NewHoldingsAgent creates a new portfolio.holdings agent
func NewHoldingsAgent(holdings domain.HoldingsProvider) *HoldingsAgent {
	return &HoldingsAgent{holdings: holdings}
}

// Contract implements capabilities.Agent
func (a *HoldingsAgent) Contract() capabilities.Contract {
	return capabilities.Contract{
		Name:     CapHoldings,
		Required: []string{"portfolio_id"},
	}
}

// Execute implements capabilities.Agent
func (a *HoldingsAgent) Execute(ctx context.Context, in capabilities.Input) (any, error) {
	portfolioID, err := in.String("portfolio_id")
	if err != nil {
		return nil, err
	}

	holdings, err := a.holdings.Holdings(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings of %s: %w", portfolioID, err)
	}
	if holdings == nil {
		holdings = []domain.Holding{}
	}
	return holdings, nil
}
