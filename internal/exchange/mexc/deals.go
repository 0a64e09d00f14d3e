package mexc

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// The aggregate-deals stream pushes binary protobuf frames. The envelope is
// a PushDataV3ApiWrapper: channel (1, string), symbol (3, string), and the
// aggre-deals body (314, message). Each deal item carries price (1, string),
// quantity (2, string), tradeType (3, varint: 1 buy / 2 sell) and time
// (4, varint, epoch ms). Decoding walks the wire format directly; the
// remaining wrapper fields are skipped.
const (
	wrapperFieldChannel    = 1
	wrapperFieldSymbol     = 3
	wrapperFieldAggreDeals = 314

	dealsFieldItem = 1

	dealFieldPrice     = 1
	dealFieldQuantity  = 2
	dealFieldTradeType = 3
	dealFieldTime      = 4
)

// decodeAggreDeals parses one binary deals frame into trade prints.
func decodeAggreDeals(frame []byte, canonical string) ([]domain.Trade, error) {
	var dealsBody []byte

	rest := frame
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return nil, fmt.Errorf("mexc: deals frame: bad tag: %w", protowire.ParseError(n))
		}
		rest = rest[n:]

		switch {
		case num == wrapperFieldAggreDeals && typ == protowire.BytesType:
			body, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return nil, fmt.Errorf("mexc: deals frame: body: %w", protowire.ParseError(n))
			}
			dealsBody = body
			rest = rest[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, rest)
			if n < 0 {
				return nil, fmt.Errorf("mexc: deals frame: field %d: %w", num, protowire.ParseError(n))
			}
			rest = rest[n:]
		}
	}

	if dealsBody == nil {
		return nil, nil
	}

	captured := time.Now()
	var trades []domain.Trade
	rest = dealsBody
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return nil, fmt.Errorf("mexc: deals body: bad tag: %w", protowire.ParseError(n))
		}
		rest = rest[n:]

		if num == dealsFieldItem && typ == protowire.BytesType {
			item, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return nil, fmt.Errorf("mexc: deals item: %w", protowire.ParseError(n))
			}
			rest = rest[n:]

			trade, err := decodeDealItem(item, canonical, captured)
			if err != nil {
				return nil, err
			}
			trades = append(trades, trade)
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, rest)
		if n < 0 {
			return nil, fmt.Errorf("mexc: deals body: field %d: %w", num, protowire.ParseError(n))
		}
		rest = rest[n:]
	}
	return trades, nil
}

func decodeDealItem(item []byte, canonical string, captured time.Time) (domain.Trade, error) {
	trade := domain.Trade{
		Symbol:     canonical,
		Venue:      domain.VenueMEXC,
		CapturedAt: captured,
	}

	rest := item
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return domain.Trade{}, fmt.Errorf("mexc: deal item: bad tag: %w", protowire.ParseError(n))
		}
		rest = rest[n:]

		switch {
		case num == dealFieldPrice && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(rest)
			if n < 0 {
				return domain.Trade{}, fmt.Errorf("mexc: deal price: %w", protowire.ParseError(n))
			}
			rest = rest[n:]
			price, err := decimal.NewFromString(v)
			if err != nil {
				return domain.Trade{}, fmt.Errorf("mexc: deal price %q: %w", v, err)
			}
			trade.Price = price

		case num == dealFieldQuantity && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(rest)
			if n < 0 {
				return domain.Trade{}, fmt.Errorf("mexc: deal quantity: %w", protowire.ParseError(n))
			}
			rest = rest[n:]
			size, err := decimal.NewFromString(v)
			if err != nil {
				return domain.Trade{}, fmt.Errorf("mexc: deal quantity %q: %w", v, err)
			}
			trade.Size = size

		case num == dealFieldTradeType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return domain.Trade{}, fmt.Errorf("mexc: deal tradeType: %w", protowire.ParseError(n))
			}
			rest = rest[n:]
			if v == 1 {
				trade.Side = domain.TradeSideBuy
			} else {
				trade.Side = domain.TradeSideSell
			}

		case num == dealFieldTime && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return domain.Trade{}, fmt.Errorf("mexc: deal time: %w", protowire.ParseError(n))
			}
			rest = rest[n:]
			trade.TradeTime = time.UnixMilli(int64(v))

		default:
			n := protowire.ConsumeFieldValue(num, typ, rest)
			if n < 0 {
				return domain.Trade{}, fmt.Errorf("mexc: deal item: field %d: %w", num, protowire.ParseError(n))
			}
			rest = rest[n:]
		}
	}
	return trade, nil
}
