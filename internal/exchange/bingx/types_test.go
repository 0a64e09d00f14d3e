package bingx

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func TestWSDepthMessageToSnapshot(t *testing.T) {
	raw := `{
		"code": 0,
		"dataType": "BTC-USDC@depth20",
		"data": {
			"bids": [["40050","0.5"],["40049","1"]],
			"asks": [["40060","2"],["40051","0.8"]],
			"lastUpdateId": 99182,
			"ts": 1717000000000
		}
	}`

	var msg wsDepthMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	snap, err := msg.toSnapshot("BTC-USDC")
	require.NoError(t, err)
	assert.Equal(t, domain.VenueBingX, snap.Venue)
	assert.Equal(t, int64(99182), snap.UpdateID)

	// Asks arrive worst-first and must come out ascending.
	require.Len(t, snap.Asks, 2)
	assert.True(t, snap.Asks[0].Price.Equal(decimal.RequireFromString("40051")))
	assert.NoError(t, snap.Validate())
}

func TestMaybeGunzip(t *testing.T) {
	plain := []byte(`{"code":0}`)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	out, err := maybeGunzip(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, plain, out)

	out, err = maybeGunzip(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestMapOrderStatus(t *testing.T) {
	cases := []struct {
		status   string
		executed string
		want     domain.LegState
	}{
		{"NEW", "0", domain.LegSubmitted},
		{"PENDING", "0", domain.LegSubmitted},
		{"PARTIALLY_FILLED", "0.1", domain.LegPartiallyFilled},
		{"FILLED", "1", domain.LegFilled},
		{"CANCELED", "0", domain.LegCancelled},
		{"FAILED", "0", domain.LegRejected},
		{"FAILED", "0.1", domain.LegCancelled},
	}
	for _, tc := range cases {
		got := mapOrderStatus(tc.status, decimal.RequireFromString(tc.executed))
		assert.Equal(t, tc.want, got, "status %s", tc.status)
	}
}

func TestOrderDataToFill(t *testing.T) {
	d := orderData{
		OrderID:     42,
		Status:      "FILLED",
		OrigQty:     "0.5",
		ExecutedQty: "0.5",
		CumQuoteQty: "20025",
	}
	fill, err := d.toOrderFill()
	require.NoError(t, err)
	assert.Equal(t, domain.LegFilled, fill.State)
	assert.True(t, fill.AvgPrice.Equal(decimal.RequireFromString("40050")))
}

func TestSymbolFor(t *testing.T) {
	a := &Adapter{}
	assert.Equal(t, "BTC-USDC", a.SymbolFor("BTC-USDC"))
}
