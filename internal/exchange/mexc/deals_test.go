package mexc

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func encodeDealItem(price, qty string, tradeType, timeMs int64) []byte {
	var b []byte
	b = protowire.AppendTag(b, dealFieldPrice, protowire.BytesType)
	b = protowire.AppendString(b, price)
	b = protowire.AppendTag(b, dealFieldQuantity, protowire.BytesType)
	b = protowire.AppendString(b, qty)
	b = protowire.AppendTag(b, dealFieldTradeType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(tradeType))
	b = protowire.AppendTag(b, dealFieldTime, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(timeMs))
	return b
}

func encodeDealsFrame(items ...[]byte) []byte {
	var body []byte
	for _, item := range items {
		body = protowire.AppendTag(body, dealsFieldItem, protowire.BytesType)
		body = protowire.AppendBytes(body, item)
	}

	var frame []byte
	frame = protowire.AppendTag(frame, wrapperFieldChannel, protowire.BytesType)
	frame = protowire.AppendString(frame, "spot@public.aggre.deals.v3.api.pb@100ms@BTCUSDC")
	frame = protowire.AppendTag(frame, wrapperFieldSymbol, protowire.BytesType)
	frame = protowire.AppendString(frame, "BTCUSDC")
	frame = protowire.AppendTag(frame, wrapperFieldAggreDeals, protowire.BytesType)
	frame = protowire.AppendBytes(frame, body)
	return frame
}

func TestDecodeAggreDeals(t *testing.T) {
	frame := encodeDealsFrame(
		encodeDealItem("40000.5", "0.01", 1, 1717000000123),
		encodeDealItem("40000.4", "0.02", 2, 1717000000456),
	)

	trades, err := decodeAggreDeals(frame, "BTC-USDC")
	require.NoError(t, err)
	require.Len(t, trades, 2)

	assert.Equal(t, "BTC-USDC", trades[0].Symbol)
	assert.Equal(t, domain.VenueMEXC, trades[0].Venue)
	assert.Equal(t, domain.TradeSideBuy, trades[0].Side)
	assert.True(t, trades[0].Price.Equal(decimal.RequireFromString("40000.5")))
	assert.Equal(t, int64(1717000000123), trades[0].TradeTime.UnixMilli())

	assert.Equal(t, domain.TradeSideSell, trades[1].Side)
	assert.True(t, trades[1].Size.Equal(decimal.RequireFromString("0.02")))
}

func TestDecodeAggreDealsNoBody(t *testing.T) {
	var frame []byte
	frame = protowire.AppendTag(frame, wrapperFieldChannel, protowire.BytesType)
	frame = protowire.AppendString(frame, "spot@public.limit.depth.v3.api@BTCUSDC@20")

	trades, err := decodeAggreDeals(frame, "BTC-USDC")
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestDecodeAggreDealsTruncated(t *testing.T) {
	frame := encodeDealsFrame(encodeDealItem("40000", "0.01", 1, 1717000000123))
	_, err := decodeAggreDeals(frame[:len(frame)-3], "BTC-USDC")
	assert.Error(t, err)
}
