package market

import (
	"strings"

	"github.com/bellzar7/Codecan-EX-sub000/internal/domain"
)

// Provider applies venue-specific reinterpretation to a raw order before
// generic fee computation. New venues are added here without touching the
// reconciliation loop.
type Provider interface {
	Name() string
	Apply(raw domain.RawOrder) domain.RawOrder
}

// defaultProvider passes raw orders through untouched.
type defaultProvider struct{}

func (defaultProvider) Name() string { return "default" }

func (defaultProvider) Apply(raw domain.RawOrder) domain.RawOrder { return raw }

// binanceProvider handles venues that report executed quantity and average
// price instead of the raw amount/price pair.
type binanceProvider struct{}

func (binanceProvider) Name() string { return "binance" }

func (binanceProvider) Apply(raw domain.RawOrder) domain.RawOrder {
	if raw.Amount == 0 && raw.ExecutedQt > 0 {
		raw.Amount = raw.ExecutedQt
	}
	if raw.Price == 0 && raw.Average > 0 {
		raw.Price = raw.Average
	}
	if raw.Cost == 0 && raw.Average > 0 {
		raw.Cost = raw.Average * raw.Filled
	}
	return raw
}

var providers = map[string]Provider{
	"default": defaultProvider{},
	"binance": binanceProvider{},
}

// ProviderFor returns the normalization strategy for the given provider
// identifier, falling back to the pass-through provider for unknown names.
func ProviderFor(name string) Provider {
	if p, ok := providers[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return defaultProvider{}
}
