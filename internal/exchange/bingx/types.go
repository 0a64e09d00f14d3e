package bingx

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// envelope is the common REST response wrapper: code 0 means success.
type envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// depthData is the REST depth payload inside the envelope. Levels are
// [price, quantity] string pairs.
type depthData struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
	TS   int64      `json:"ts"`
}

// orderData is the REST order placement / query payload.
type orderData struct {
	Symbol      string `json:"symbol"`
	OrderID     int64  `json:"orderId"`
	Price       string `json:"price"`
	OrigQty     string `json:"origQty"`
	ExecutedQty string `json:"executedQty"`
	CumQuoteQty string `json:"cummulativeQuoteQty"`
	Status      string `json:"status"`
}

// balanceData is the REST account balance payload.
type balanceData struct {
	Balances []struct {
		Asset string `json:"asset"`
		Free  string `json:"free"`
	} `json:"balances"`
}

// wsSubscribe is the subscription request; the venue echoes the id back.
type wsSubscribe struct {
	ID       string `json:"id"`
	ReqType  string `json:"reqType"`
	DataType string `json:"dataType"`
}

// wsDepthMessage is the streamed depth payload after gzip decompression.
type wsDepthMessage struct {
	Code     int    `json:"code"`
	DataType string `json:"dataType"`
	Data     struct {
		Bids         [][]string `json:"bids"`
		Asks         [][]string `json:"asks"`
		LastUpdateID int64      `json:"lastUpdateId"`
		TS           int64      `json:"ts"`
	} `json:"data"`
}

// parsePairs converts [price, qty] string pairs to price levels, skipping
// zero-size entries.
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

// toSnapshot converts a streamed depth message to a domain snapshot. BingX
// pushes bids best-first and asks worst-first; asks are reversed into
// ascending order.
func (m *wsDepthMessage) toSnapshot(canonical string) (domain.OrderbookSnapshot, error) {
	bids, err := parsePairs(m.Data.Bids)
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("bids: %w", err)
	}
	asks, err := parsePairs(m.Data.Asks)
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("asks: %w", err)
	}
	if len(asks) > 1 && asks[0].Price.GreaterThan(asks[len(asks)-1].Price) {
		for i, j := 0, len(asks)-1; i < j; i, j = i+1, j-1 {
			asks[i], asks[j] = asks[j], asks[i]
		}
	}
	return domain.OrderbookSnapshot{
		Symbol:     canonical,
		Venue:      domain.VenueBingX,
		Bids:       bids,
		Asks:       asks,
		UpdateID:   m.Data.LastUpdateID,
		CapturedAt: time.Now(),
	}, nil
}

// mapOrderStatus maps a venue order status string onto the leg lifecycle.
func mapOrderStatus(status string, executed decimal.Decimal) domain.LegState {
	switch status {
	case "NEW", "PENDING":
		return domain.LegSubmitted
	case "PARTIALLY_FILLED":
		return domain.LegPartiallyFilled
	case "FILLED":
		return domain.LegFilled
	case "CANCELED", "CANCELLED":
		return domain.LegCancelled
	case "FAILED", "REJECTED":
		if executed.Sign() > 0 {
			return domain.LegCancelled
		}
		return domain.LegRejected
	default:
		return domain.LegUnknown
	}
}

// toOrderFill converts an order query payload to a domain fill.
func (d *orderData) toOrderFill() (domain.OrderFill, error) {
	executed, err := decimal.NewFromString(d.ExecutedQty)
	if err != nil {
		return domain.OrderFill{}, fmt.Errorf("executedQty %q: %w", d.ExecutedQty, err)
	}
	quote, err := decimal.NewFromString(d.CumQuoteQty)
	if err != nil {
		return domain.OrderFill{}, fmt.Errorf("cummulativeQuoteQty %q: %w", d.CumQuoteQty, err)
	}
	fill := domain.OrderFill{
		State:       mapOrderStatus(d.Status, executed),
		FilledBase:  executed,
		FilledQuote: quote,
	}
	if executed.Sign() > 0 {
		fill.AvgPrice = quote.Div(executed)
	}
	return fill, nil
}
