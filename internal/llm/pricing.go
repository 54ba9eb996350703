package llm

import "strings"

// Price is the USD cost per token.
type Price struct {
	Input  float64
	Output float64
}

// DefaultPrice applies to models missing from the price table.
var DefaultPrice = Price{Input: 1.5e-7, Output: 6e-7}

// DefaultPrices is the built-in price table.
var DefaultPrices = map[string]Price{
	"gpt-4o":      {Input: 2.5e-6, Output: 1e-5},
	"gpt-4o-mini": {Input: 1.5e-7, Output: 6e-7},
}

// PriceFor returns the price of model. An exact match wins; otherwise the
// longest table key that prefixes model ("gpt-4o-mini-2024-07-18" resolves to
// "gpt-4o-mini"); otherwise DefaultPrice.
func PriceFor(table map[string]Price, model string) Price {
	if p, ok := lookupPrice(table, model); ok {
		return p
	}
	return DefaultPrice
}

func lookupPrice(table map[string]Price, model string) (Price, bool) {
	if model == "" {
		return Price{}, false
	}
	if p, ok := table[model]; ok {
		return p, true
	}
	var (
		best    Price
		bestLen int
	)
	for name, p := range table {
		if len(name) > bestLen && strings.HasPrefix(model, name) {
			best, bestLen = p, len(name)
		}
	}
	return best, bestLen > 0
}

// Cost computes the USD cost of u at price p.
func Cost(p Price, u Usage) float64 {
	return float64(u.InputTokens)*p.Input + float64(u.OutputTokens)*p.Output
}
