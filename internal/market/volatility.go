package market

import "context"

// VolatilitySource yields realized volatility computed off the tick
// stream. ok is false while the source has too few observations.
type VolatilitySource interface {
	Volatility(symbol string) (float64, bool)
}

type volatilityProvider struct {
	Provider
	src VolatilitySource
}

// WithVolatility wraps base so that Volatility reads prefer src. When
// src has no reading yet the base provider answers as before.
func WithVolatility(base Provider, src VolatilitySource) Provider {
	return &volatilityProvider{Provider: base, src: src}
}

func (p *volatilityProvider) Volatility(ctx context.Context, symbol string) (float64, error) {
	if vol, ok := p.src.Volatility(symbol); ok {
		return vol, nil
	}
	return p.Provider.Volatility(ctx, symbol)
}
