package bingx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/crossarb/internal/crypto"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

const defaultRESTBaseURL = "https://open-api.bingx.com"

// restClient is the signed REST client for the BingX spot API.
type restClient struct {
	baseURL    string
	auth       *crypto.HMACAuth
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newRESTClient(baseURL string, auth *crypto.HMACAuth, rps float64) *restClient {
	if baseURL == "" {
		baseURL = defaultRESTBaseURL
	}
	return &restClient{
		baseURL: baseURL,
		auth:    auth,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// depth fetches the current orderbook.
func (c *restClient) depth(ctx context.Context, symbol string, limit int) (depthData, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(limit))

	var data depthData
	if err := c.do(ctx, http.MethodGet, "/openApi/spot/v1/market/depth", params, false, &data); err != nil {
		return depthData{}, fmt.Errorf("bingx: depth: %w", err)
	}
	return data, nil
}

// placeOrder submits a new order and returns the venue order id.
func (c *restClient) placeOrder(ctx context.Context, symbol string, side domain.OrderSide, orderType domain.OrderType, quantity, price decimal.Decimal) (string, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", apiSide(side))
	params.Set("quantity", quantity.String())
	switch orderType {
	case domain.OrderTypeLimit:
		params.Set("type", "LIMIT")
		params.Set("price", price.String())
	case domain.OrderTypeMarket:
		params.Set("type", "MARKET")
	}

	var data orderData
	if err := c.do(ctx, http.MethodPost, "/openApi/spot/v1/trade/order", params, true, &data); err != nil {
		return "", fmt.Errorf("bingx: place order: %w", err)
	}
	return strconv.FormatInt(data.OrderID, 10), nil
}

// cancelOrder cancels an open order.
func (c *restClient) cancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	var data orderData
	if err := c.do(ctx, http.MethodPost, "/openApi/spot/v1/trade/cancel", params, true, &data); err != nil {
		return fmt.Errorf("bingx: cancel order %s: %w", orderID, err)
	}
	return nil
}

// queryOrder returns the current status of an order.
func (c *restClient) queryOrder(ctx context.Context, symbol, orderID string) (orderData, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	var data orderData
	if err := c.do(ctx, http.MethodGet, "/openApi/spot/v1/trade/query", params, true, &data); err != nil {
		return orderData{}, fmt.Errorf("bingx: query order %s: %w", orderID, err)
	}
	return data, nil
}

// balances returns the spot account balances.
func (c *restClient) balances(ctx context.Context) (balanceData, error) {
	var data balanceData
	if err := c.do(ctx, http.MethodGet, "/openApi/spot/v1/account/balance", url.Values{}, true, &data); err != nil {
		return balanceData{}, fmt.Errorf("bingx: balances: %w", err)
	}
	return data, nil
}

// do builds, optionally signs, sends and decodes one API request. Signed
// requests append timestamp and an HMAC-SHA256 hex signature over the query
// string; the API key travels in the X-BX-APIKEY header. Successful
// responses arrive wrapped in {code, msg, data}; a non-zero code is a venue
// rejection even on HTTP 200.
func (c *restClient) do(ctx context.Context, method, path string, params url.Values, signed bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &domain.TransportError{Venue: domain.VenueBingX, Op: path, Err: err}
	}

	if signed {
		params.Set("timestamp", crypto.Timestamp())
		params.Set("signature", c.auth.SignQuery(params.Encode()))
	}

	fullURL := c.baseURL + path
	if encoded := params.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if signed {
		req.Header.Set("X-BX-APIKEY", c.auth.Key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.TransportError{Venue: domain.VenueBingX, Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.TransportError{Venue: domain.VenueBingX, Op: method + " " + path, Err: err}
	}

	if err := checkStatus(resp.StatusCode, body); err != nil {
		return err
	}

	var wrapped struct {
		envelope
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return &domain.TransportError{Venue: domain.VenueBingX, Op: method + " " + path, Err: fmt.Errorf("decode: %w", err)}
	}
	if wrapped.Code != 0 {
		return &domain.RejectionError{Venue: domain.VenueBingX, Code: strconv.Itoa(wrapped.Code), Reason: wrapped.Msg}
	}
	if out != nil && len(wrapped.Data) > 0 {
		if err := json.Unmarshal(wrapped.Data, out); err != nil {
			return &domain.TransportError{Venue: domain.VenueBingX, Op: method + " " + path, Err: fmt.Errorf("decode data: %w", err)}
		}
	}
	return nil
}

// checkStatus maps non-2xx HTTP status codes onto the domain error taxonomy.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var env envelope
	_ = json.Unmarshal(body, &env)
	code := strconv.Itoa(env.Code)

	switch statusCode {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s (%s)", domain.ErrUnauthorized, env.Msg, code)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s (%s)", domain.ErrRateLimited, env.Msg, code)
	case http.StatusBadRequest:
		return &domain.RejectionError{Venue: domain.VenueBingX, Code: code, Reason: env.Msg}
	default:
		if statusCode >= 500 {
			return &domain.TransportError{Venue: domain.VenueBingX, Op: "http", Err: fmt.Errorf("HTTP %d: %s", statusCode, env.Msg)}
		}
		return &domain.RejectionError{Venue: domain.VenueBingX, Code: code, Reason: env.Msg}
	}
}

func apiSide(side domain.OrderSide) string {
	if side == domain.OrderSideBuy {
		return "BUY"
	}
	return "SELL"
}
