// Package book provides pure aggregation primitives over sorted price
// ladders: cumulative cost/proceeds curves and VWAP. All arithmetic is exact
// decimal; results are deterministic for identical inputs.
package book

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// CurvePoint is one step of a cumulative curve: totals over the top i+1
// levels of a ladder.
type CurvePoint struct {
	CumBase  decimal.Decimal
	CumQuote decimal.Decimal
}

// Curve is the cumulative (base, quote) curve over one side of a book, built
// from best to worst price.
type Curve struct {
	levels []domain.PriceLevel
	points []CurvePoint
}

// NewCurve builds the cumulative curve for a ladder already sorted best to
// worst. Levels with non-positive size are skipped.
func NewCurve(levels []domain.PriceLevel) *Curve {
	c := &Curve{
		levels: make([]domain.PriceLevel, 0, len(levels)),
		points: make([]CurvePoint, 0, len(levels)),
	}
	cumBase := decimal.Zero
	cumQuote := decimal.Zero
	for _, lvl := range levels {
		if lvl.Size.Sign() <= 0 {
			continue
		}
		cumBase = cumBase.Add(lvl.Size)
		cumQuote = cumQuote.Add(lvl.Size.Mul(lvl.Price))
		c.levels = append(c.levels, lvl)
		c.points = append(c.points, CurvePoint{CumBase: cumBase, CumQuote: cumQuote})
	}
	return c
}

// Depth returns the total base available across all levels.
func (c *Curve) Depth() decimal.Decimal {
	if len(c.points) == 0 {
		return decimal.Zero
	}
	return c.points[len(c.points)-1].CumBase
}

// Empty reports whether the curve has no consumable liquidity.
func (c *Curve) Empty() bool { return len(c.points) == 0 }

// Fill is the result of consuming a ladder for a requested base amount.
type Fill struct {
	Base         decimal.Decimal // base actually consumable (≤ requested)
	Quote        decimal.Decimal // quote exchanged for Base
	DepthLimited bool            // requested exceeded available depth
}

// VWAP returns Quote/Base, or zero for an empty fill.
func (f Fill) VWAP() decimal.Decimal {
	if f.Base.Sign() <= 0 {
		return decimal.Zero
	}
	return f.Quote.Div(f.Base)
}

// consume walks the curve for a requested base amount x, interpolating
// linearly inside the last partially consumed level.
func (c *Curve) consume(x decimal.Decimal) Fill {
	if x.Sign() <= 0 || c.Empty() {
		return Fill{Base: decimal.Zero, Quote: decimal.Zero}
	}
	last := c.points[len(c.points)-1]
	if x.GreaterThan(last.CumBase) {
		return Fill{Base: last.CumBase, Quote: last.CumQuote, DepthLimited: true}
	}
	prevBase := decimal.Zero
	prevQuote := decimal.Zero
	for k, pt := range c.points {
		if x.LessThanOrEqual(pt.CumBase) {
			delta := x.Sub(prevBase)
			return Fill{
				Base:  x,
				Quote: prevQuote.Add(delta.Mul(c.levels[k].Price)),
			}
		}
		prevBase = pt.CumBase
		prevQuote = pt.CumQuote
	}
	// unreachable: x ≤ last.CumBase guarantees a hit above
	return Fill{Base: last.CumBase, Quote: last.CumQuote, DepthLimited: true}
}

// ProceedsForSize returns the quote received when selling x base into a bid
// ladder.
func (c *Curve) ProceedsForSize(x decimal.Decimal) Fill {
	return c.consume(x)
}

// CostForSize returns the quote paid when buying x base from an ask ladder.
func (c *Curve) CostForSize(x decimal.Decimal) Fill {
	return c.consume(x)
}
