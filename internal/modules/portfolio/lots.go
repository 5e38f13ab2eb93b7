package portfolio

import (
	"fmt"
	"sort"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/shopspring/decimal"
)

// PlanReductions decides how much of a sell each open lot absorbs. It never mutates lots
// and never asks a lot for more than it has open.
func PlanReductions(lots []Lot, quantity decimal.Decimal, method CostBasisMethod) ([]Reduction, error) {
	if !quantity.IsPositive() {
		return nil, &domain.ValidationError{Field: "quantity", Reason: "sell quantity must be positive"}
	}

	open := make([]Lot, 0, len(lots))
	total := decimal.Zero
	for _, lot := range lots {
		if lot.QuantityOpen.IsPositive() {
			open = append(open, lot)
			total = total.Add(lot.QuantityOpen)
		}
	}
	if quantity.GreaterThan(total) {
		return nil, &domain.ValidationError{
			Field:  "quantity",
			Reason: fmt.Sprintf("cannot sell %s, only %s open", quantity, total),
		}
	}

	switch method {
	case MethodFIFO, "":
		sortLots(open, false)
		return consumeInOrder(open, quantity), nil
	case MethodLIFO:
		sortLots(open, true)
		return consumeInOrder(open, quantity), nil
	case MethodAverage:
		sortLots(open, false)
		return consumeProRata(open, quantity, total), nil
	default:
		return nil, &domain.ValidationError{Field: "method", Reason: fmt.Sprintf("unknown cost basis method %q", method)}
	}
}

func sortLots(lots []Lot, newestFirst bool) {
	sort.SliceStable(lots, func(i, j int) bool {
		a, b := lots[i], lots[j]
		if !a.OpenedAt.Equal(b.OpenedAt) {
			if newestFirst {
				return a.OpenedAt.After(b.OpenedAt)
			}
			return a.OpenedAt.Before(b.OpenedAt)
		}
		if newestFirst {
			return a.Sequence > b.Sequence
		}
		return a.Sequence < b.Sequence
	})
}

func consumeInOrder(lots []Lot, quantity decimal.Decimal) []Reduction {
	remaining := quantity
	var reductions []Reduction
	for _, lot := range lots {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(lot.QuantityOpen, remaining)
		reductions = append(reductions, Reduction{LotID: lot.ID, Quantity: take, CostPerUnit: lot.CostPerUnit})
		remaining = remaining.Sub(take)
	}
	return reductions
}

// consumeProRata reduces each lot by its share of the open total. Shares are truncated to
// QuantityPlaces and the rounding remainder goes to lots with spare quantity, newest first.
func consumeProRata(lots []Lot, quantity, total decimal.Decimal) []Reduction {
	shares := make([]decimal.Decimal, len(lots))
	allocated := decimal.Zero
	for i, lot := range lots {
		if quantity.Equal(total) {
			shares[i] = lot.QuantityOpen
		} else {
			shares[i] = decimal.Min(lot.QuantityOpen, quantity.Mul(lot.QuantityOpen).Div(total).Truncate(QuantityPlaces))
		}
		allocated = allocated.Add(shares[i])
	}

	remaining := quantity.Sub(allocated)
	for i := len(lots) - 1; i >= 0 && remaining.IsPositive(); i-- {
		spare := lots[i].QuantityOpen.Sub(shares[i])
		take := decimal.Min(spare, remaining)
		shares[i] = shares[i].Add(take)
		remaining = remaining.Sub(take)
	}

	reductions := make([]Reduction, 0, len(lots))
	for i, lot := range lots {
		if shares[i].IsPositive() {
			reductions = append(reductions, Reduction{LotID: lot.ID, Quantity: shares[i], CostPerUnit: lot.CostPerUnit})
		}
	}
	return reductions
}

// ApplyReduction returns the lot with its open quantity reduced.
// It refuses anything that would increase the open quantity or take it below zero.
func ApplyReduction(lot Lot, quantity decimal.Decimal) (Lot, error) {
	if quantity.IsNegative() {
		return lot, &domain.ValidationError{Field: "quantity", Reason: "lot reductions cannot be negative"}
	}
	if quantity.GreaterThan(lot.QuantityOpen) {
		return lot, &domain.ValidationError{
			Field:  "quantity",
			Reason: fmt.Sprintf("lot %s has %s open, cannot reduce by %s", lot.ID, lot.QuantityOpen, quantity),
		}
	}
	lot.QuantityOpen = lot.QuantityOpen.Sub(quantity)
	return lot, nil
}

// Aggregate folds lots into per-symbol positions, skipping fully closed symbols
func Aggregate(lots []Lot) []Position {
	bySymbol := make(map[string]*Position)
	var order []string
	for _, lot := range lots {
		if !lot.QuantityOpen.IsPositive() {
			continue
		}
		pos, ok := bySymbol[lot.Symbol]
		if !ok {
			pos = &Position{Symbol: lot.Symbol, Currency: lot.Currency, Method: lot.Method}
			bySymbol[lot.Symbol] = pos
			order = append(order, lot.Symbol)
		}
		pos.Quantity = pos.Quantity.Add(lot.QuantityOpen)
		pos.CostBasis = pos.CostBasis.Add(lot.QuantityOpen.Mul(lot.CostPerUnit))
		pos.OpenLots++
	}

	sort.Strings(order)
	positions := make([]Position, 0, len(order))
	for _, symbol := range order {
		pos := bySymbol[symbol]
		pos.AverageCost = pos.CostBasis.Div(pos.Quantity).Round(QuantityPlaces)
		positions = append(positions, *pos)
	}
	return positions
}
