package risk

import (
	"github.com/shopspring/decimal"

	"futuresMegaBot/internal/domain"
)

// QuantityDecimals is the precision every order quantity is floored to.
const QuantityDecimals = 4

// takeProfitFractions maps the number of take-profit levels to the share of
// the entry quantity assigned to each level. The remainder goes to the
// trailing stop.
var takeProfitFractions = [domain.MaxTakeProfits + 1][]float64{
	0: {},
	1: {0.90},
	2: {0.50, 0.40},
	3: {0.50, 0.30, 0.10},
	4: {0.50, 0.20, 0.10, 0.10},
	5: {0.50, 0.20, 0.10, 0.05, 0.05},
	6: {0.50, 0.20, 0.05, 0.05, 0.05, 0.05},
}

// FloorQty floors q to QuantityDecimals.
func FloorQty(q float64) float64 {
	return decimal.NewFromFloat(q).RoundFloor(QuantityDecimals).InexactFloat64()
}

// SplitTakeProfits splits qty across n take-profit levels. The trailing
// quantity is whatever the floored levels leave, so the parts always sum
// to qty.
func SplitTakeProfits(qty float64, n int) (levels []float64, trailing float64) {
	if n < 0 {
		n = 0
	}
	if n > domain.MaxTakeProfits {
		n = domain.MaxTakeProfits
	}
	total := decimal.NewFromFloat(qty)
	allocated := decimal.Zero
	levels = make([]float64, 0, n)
	for _, frac := range takeProfitFractions[n] {
		part := total.Mul(decimal.NewFromFloat(frac)).RoundFloor(QuantityDecimals)
		allocated = allocated.Add(part)
		levels = append(levels, part.InexactFloat64())
	}
	return levels, total.Sub(allocated).InexactFloat64()
}

// BreakevenPrice returns the stop price at which closing the position nets
// zero after paying the entry and exit fees.
func BreakevenPrice(side domain.Side, entry, qty, marketFeeRate, limitFeeRate float64) float64 {
	e := decimal.NewFromFloat(entry)
	q := decimal.NewFromFloat(qty).Abs()
	rate := decimal.NewFromFloat(marketFeeRate).Add(decimal.NewFromFloat(limitFeeRate))

	var impact decimal.Decimal
	if q.IsZero() {
		impact = e.Mul(rate)
	} else {
		fee := q.Mul(e).Mul(rate)
		impact = fee.Div(q)
	}
	if side == domain.Short {
		return e.Sub(impact).InexactFloat64()
	}
	return e.Add(impact).InexactFloat64()
}

// BreakevenInput is the state the stop supervisor evaluates on each tick.
type BreakevenInput struct {
	Side          domain.Side
	Entry         float64
	Stop          float64
	Price         float64
	Quantity      float64
	MarketFeeRate float64
	LimitFeeRate  float64
}

// BreakevenDecision is the outcome of EvaluateBreakeven.
type BreakevenDecision struct {
	Move      bool
	NewStop   float64
	Breakeven float64
	Reason    string
}

// EvaluateBreakeven decides whether the stop should move to the
// fee-adjusted breakeven price.
func EvaluateBreakeven(in BreakevenInput) BreakevenDecision {
	if in.Entry <= 0 || in.Stop <= 0 || in.Price <= 0 {
		return BreakevenDecision{Reason: "missing prices"}
	}
	if domain.IsProfitSide(in.Side, in.Entry, in.Stop) {
		return BreakevenDecision{Reason: "stop already at or beyond entry"}
	}

	risk := abs(in.Entry - in.Stop)
	reward := abs(in.Price - in.Entry)
	if reward < risk {
		return BreakevenDecision{Reason: "risk/reward below 1:1"}
	}

	be := BreakevenPrice(in.Side, in.Entry, in.Quantity, in.MarketFeeRate, in.LimitFeeRate)
	d := BreakevenDecision{Breakeven: be}

	var pricePassed, stopWorse bool
	if in.Side == domain.Short {
		pricePassed = in.Price < be
		stopWorse = in.Stop > be
	} else {
		pricePassed = in.Price > be
		stopWorse = in.Stop < be
	}
	switch {
	case !pricePassed:
		d.Reason = "price has not passed breakeven"
	case !stopWorse:
		d.Reason = "stop already at breakeven"
	default:
		d.Move = true
		d.NewStop = be
	}
	return d
}

// PnL returns the leveraged profit of closing qty at exit.
func PnL(side domain.Side, entry, exit, qty float64, leverage int) float64 {
	pnl := decimal.NewFromFloat(exit).Sub(decimal.NewFromFloat(entry)).
		Mul(decimal.NewFromFloat(qty)).
		Mul(decimal.NewFromInt(int64(leverage)))
	if side == domain.Short {
		pnl = pnl.Neg()
	}
	return pnl.InexactFloat64()
}

// Fee returns the fee charged on an execution of qty at price.
func Fee(qty, price float64, leverage int, rate float64) float64 {
	return decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(price)).
		Mul(decimal.NewFromInt(int64(leverage))).
		Mul(decimal.NewFromFloat(rate)).InexactFloat64()
}

// FeeRateFor picks the taker rate for market-executed order types and the
// maker rate otherwise.
func FeeRateFor(t domain.OrderType, marketFeeRate, limitFeeRate float64) float64 {
	if t.IsMarketExecution() {
		return marketFeeRate
	}
	return limitFeeRate
}

// OneToOneTarget returns the take-profit price giving a 1:1 risk/reward
// from price with the given stop.
func OneToOneTarget(price, stop float64) float64 {
	p := decimal.NewFromFloat(price)
	return p.Add(p.Sub(decimal.NewFromFloat(stop))).InexactFloat64()
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
