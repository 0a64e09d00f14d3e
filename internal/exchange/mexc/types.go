package mexc

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// depthResponse is the REST /api/v3/depth payload. Levels are
// [price, quantity] string pairs.
type depthResponse struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// orderResponse is the REST order placement / query payload.
type orderResponse struct {
	Symbol              string `json:"symbol"`
	OrderID             string `json:"orderId"`
	Price               string `json:"price"`
	OrigQty             string `json:"origQty"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
}

// accountResponse is the REST /api/v3/account payload.
type accountResponse struct {
	Balances []struct {
		Asset string `json:"asset"`
		Free  string `json:"free"`
	} `json:"balances"`
}

// apiError is the REST error envelope.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// wsDepthMessage is the streaming limit-depth payload. Level objects carry
// price (p) and volume (v) as strings; d.r is the book version.
type wsDepthMessage struct {
	Channel string `json:"c"`
	Symbol  string `json:"s"`
	TimeMs  int64  `json:"t"`
	Data    struct {
		Version string         `json:"r"`
		Bids    []wsDepthLevel `json:"bids"`
		Asks    []wsDepthLevel `json:"asks"`
	} `json:"d"`
}

type wsDepthLevel struct {
	Price  string `json:"p"`
	Volume string `json:"v"`
}

// wsControlMessage covers subscription acks and PONG replies.
type wsControlMessage struct {
	ID   int    `json:"id"`
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// parsePairs converts [price, qty] string pairs to price levels in the order
// given, skipping zero-size levels. It does not sort.
func parsePairs(pairs [][]string) ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, 0, len(pairs))
	for _, p := range pairs {
		if len(p) < 2 {
			return nil, fmt.Errorf("level has %d fields", len(p))
		}
		price, err := decimal.NewFromString(p[0])
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", p[0], err)
		}
		size, err := decimal.NewFromString(p[1])
		if err != nil {
			return nil, fmt.Errorf("size %q: %w", p[1], err)
		}
		if size.Sign() == 0 {
			continue
		}
		levels = append(levels, domain.PriceLevel{Price: price, Size: size})
	}
	return levels, nil
}

// parseWSLevels converts streaming {p, v} level objects to price levels.
func parseWSLevels(levels []wsDepthLevel) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, l := range levels {
		price, err := decimal.NewFromString(l.Price)
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", l.Price, err)
		}
		size, err := decimal.NewFromString(l.Volume)
		if err != nil {
			return nil, fmt.Errorf("size %q: %w", l.Volume, err)
		}
		if size.Sign() == 0 {
			continue
		}
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	return out, nil
}

// toSnapshot converts a streamed depth message to a domain snapshot.
func (m *wsDepthMessage) toSnapshot(canonical string) (domain.OrderbookSnapshot, error) {
	bids, err := parseWSLevels(m.Data.Bids)
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("bids: %w", err)
	}
	asks, err := parseWSLevels(m.Data.Asks)
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("asks: %w", err)
	}
	var updateID int64
	if m.Data.Version != "" {
		updateID, err = strconv.ParseInt(m.Data.Version, 10, 64)
		if err != nil {
			return domain.OrderbookSnapshot{}, fmt.Errorf("version %q: %w", m.Data.Version, err)
		}
	}
	return domain.OrderbookSnapshot{
		Symbol:     canonical,
		Venue:      domain.VenueMEXC,
		Bids:       bids,
		Asks:       asks,
		UpdateID:   updateID,
		CapturedAt: time.Now(),
	}, nil
}

// mapOrderStatus maps a venue order status string onto the leg lifecycle.
func mapOrderStatus(status string, executed decimal.Decimal) domain.LegState {
	switch status {
	case "NEW":
		return domain.LegSubmitted
	case "PARTIALLY_FILLED":
		return domain.LegPartiallyFilled
	case "FILLED":
		return domain.LegFilled
	case "CANCELED", "PARTIALLY_CANCELED":
		return domain.LegCancelled
	case "EXPIRED", "REJECTED":
		if executed.Sign() > 0 {
			return domain.LegCancelled
		}
		return domain.LegRejected
	default:
		return domain.LegUnknown
	}
}

// toOrderFill converts an order query response to a domain fill.
func (r *orderResponse) toOrderFill() (domain.OrderFill, error) {
	executed, err := decimal.NewFromString(r.ExecutedQty)
	if err != nil {
		return domain.OrderFill{}, fmt.Errorf("executedQty %q: %w", r.ExecutedQty, err)
	}
	quote, err := decimal.NewFromString(r.CummulativeQuoteQty)
	if err != nil {
		return domain.OrderFill{}, fmt.Errorf("cummulativeQuoteQty %q: %w", r.CummulativeQuoteQty, err)
	}
	fill := domain.OrderFill{
		State:       mapOrderStatus(r.Status, executed),
		FilledBase:  executed,
		FilledQuote: quote,
	}
	if executed.Sign() > 0 {
		fill.AvgPrice = quote.Div(executed)
	}
	return fill, nil
}
