package risk

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"futuresMegaBot/internal/domain"
	"futuresMegaBot/internal/ports"
)

// SafetyHaircut scales the theoretical leverage down before capping.
const SafetyHaircut = 0.8

// LeverageLimits reports the exchange's leverage caps for a symbol.
type LeverageLimits interface {
	GetMaxLeverage(ctx context.Context, symbol string) (long, short int, err error)
}

// SizerConfig holds configuration for the leverage sizer.
type SizerConfig struct {
	MaxRiskPerTrade float64 // Fraction of margin lost when the stop is hit
	MaxLeverage     int
	Logger          ports.Logger
}

// Sizer converts stop distance into leverage and margin into quantity.
type Sizer struct {
	cfg    SizerConfig
	limits LeverageLimits
}

// NewSizer creates a new leverage sizer.
func NewSizer(cfg SizerConfig, limits LeverageLimits) (*Sizer, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required for sizer")
	}
	if limits == nil {
		return nil, errors.New("leverage limits source is required for sizer")
	}
	if cfg.MaxRiskPerTrade <= 0 {
		return nil, fmt.Errorf("max risk per trade must be positive, got %f", cfg.MaxRiskPerTrade)
	}
	if cfg.MaxLeverage <= 0 {
		return nil, fmt.Errorf("max leverage must be positive, got %d", cfg.MaxLeverage)
	}
	return &Sizer{cfg: cfg, limits: limits}, nil
}

// CalculateOptimalLeverage returns the highest leverage at which hitting
// the stop loses at most MaxRiskPerTrade of the margin, after the safety
// haircut and the exchange and configured caps.
func (s *Sizer) CalculateOptimalLeverage(ctx context.Context, symbol string, entry, stop float64, side domain.Side) (int, error) {
	op := "CalculateOptimalLeverage"
	if entry <= 0 || stop <= 0 {
		return 0, fmt.Errorf("%s: entry and stop must be positive: %w", op, ports.ErrInvalidRequest)
	}
	stopPct := math.Abs(entry-stop) / entry
	if stopPct == 0 {
		return 0, fmt.Errorf("%s: stop equals entry: %w", op, ports.ErrInvalidRequest)
	}

	maxLong, maxShort, err := s.limits.GetMaxLeverage(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("%s: fetching leverage limits for %s: %w", op, symbol, err)
	}
	exchangeMax := maxLong
	if side == domain.Short {
		exchangeMax = maxShort
	}

	leverage := OptimalLeverage(stopPct, s.cfg.MaxRiskPerTrade, exchangeMax, s.cfg.MaxLeverage)
	s.cfg.Logger.Debug(ctx, "Leverage calculated", map[string]interface{}{
		"symbol":      symbol,
		"side":        side,
		"stopPct":     stopPct,
		"exchangeMax": exchangeMax,
		"configMax":   s.cfg.MaxLeverage,
		"leverage":    leverage,
	})
	return leverage, nil
}

// OptimalLeverage is the pure part of CalculateOptimalLeverage. Caps <= 0
// are ignored. The result is never below 1.
func OptimalLeverage(stopPct, maxRiskPerTrade float64, exchangeMax, configMax int) int {
	if stopPct <= 0 {
		return 1
	}
	theoretical := maxRiskPerTrade / stopPct
	lev := theoretical * SafetyHaircut
	if exchangeMax > 0 {
		lev = math.Min(lev, float64(exchangeMax))
	}
	if configMax > 0 {
		lev = math.Min(lev, float64(configMax))
	}
	out := int(math.Floor(lev))
	if out < 1 {
		return 1
	}
	return out
}

// QuantityFor converts margin at leverage into a quantity at price,
// floored to QuantityDecimals.
func QuantityFor(margin float64, leverage int, price float64) float64 {
	if price <= 0 || leverage <= 0 || margin <= 0 {
		return 0
	}
	return decimal.NewFromFloat(margin).
		Mul(decimal.NewFromInt(int64(leverage))).
		Div(decimal.NewFromFloat(price)).
		RoundFloor(QuantityDecimals).InexactFloat64()
}

// MarginFor returns the margin to commit, inflated by bonus when the trade
// allows volume to add margin.
func MarginFor(base, bonus float64, volumeAddsMargin bool) float64 {
	if !volumeAddsMargin || bonus <= 0 {
		return base
	}
	return decimal.NewFromFloat(base).Mul(decimal.NewFromFloat(1 + bonus)).InexactFloat64()
}
