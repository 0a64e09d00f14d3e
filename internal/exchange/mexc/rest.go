package mexc

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

const defaultRESTBaseURL = "https://api.mexc.com"

// restClient is the signed REST client for the MEXC spot API.
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
func (c *restClient) depth(ctx context.Context, symbol string, limit int) (depthResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(limit))

	var resp depthResponse
	if err := c.do(ctx, http.MethodGet, "/api/v3/depth", params, false, &resp); err != nil {
		return depthResponse{}, fmt.Errorf("mexc: depth: %w", err)
	}
	return resp, nil
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

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/api/v3/order", params, true, &resp); err != nil {
		return "", fmt.Errorf("mexc: place order: %w", err)
	}
	return resp.OrderID, nil
}

// cancelOrder cancels an open order.
func (c *restClient) cancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	var resp orderResponse
	if err := c.do(ctx, http.MethodDelete, "/api/v3/order", params, true, &resp); err != nil {
		return fmt.Errorf("mexc: cancel order %s: %w", orderID, err)
	}
	return nil
}

// queryOrder returns the current status of an order.
func (c *restClient) queryOrder(ctx context.Context, symbol, orderID string) (orderResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	var resp orderResponse
	if err := c.do(ctx, http.MethodGet, "/api/v3/order", params, true, &resp); err != nil {
		return orderResponse{}, fmt.Errorf("mexc: query order %s: %w", orderID, err)
	}
	return resp, nil
}

// account returns the spot account balances.
func (c *restClient) account(ctx context.Context) (accountResponse, error) {
	var resp accountResponse
	if err := c.do(ctx, http.MethodGet, "/api/v3/account", url.Values{}, true, &resp); err != nil {
		return accountResponse{}, fmt.Errorf("mexc: account: %w", err)
	}
	return resp, nil
}

// do builds, optionally signs, sends and decodes one API request. Signed
// requests append timestamp and an HMAC-SHA256 hex signature over the query
// string; the API key travels in the X-MEXC-APIKEY header.
func (c *restClient) do(ctx context.Context, method, path string, params url.Values, signed bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &domain.TransportError{Venue: domain.VenueMEXC, Op: path, Err: err}
	}

	if signed {
		params.Set("timestamp", crypto.Timestamp())
		params.Set("recvWindow", "5000")
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
		req.Header.Set("X-MEXC-APIKEY", c.auth.Key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.TransportError{Venue: domain.VenueMEXC, Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.TransportError{Venue: domain.VenueMEXC, Op: method + " " + path, Err: err}
	}

	if err := checkStatus(resp.StatusCode, body); err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return &domain.TransportError{Venue: domain.VenueMEXC, Op: method + " " + path, Err: fmt.Errorf("decode: %w", err)}
		}
	}
	return nil
}

// checkStatus maps non-2xx HTTP status codes onto the domain error taxonomy.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)
	code := strconv.Itoa(apiErr.Code)

	switch statusCode {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s (%s)", domain.ErrUnauthorized, apiErr.Msg, code)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s (%s)", domain.ErrRateLimited, apiErr.Msg, code)
	case http.StatusBadRequest:
		return &domain.RejectionError{Venue: domain.VenueMEXC, Code: code, Reason: apiErr.Msg}
	default:
		if statusCode >= 500 {
			return &domain.TransportError{Venue: domain.VenueMEXC, Op: "http", Err: fmt.Errorf("HTTP %d: %s", statusCode, apiErr.Msg)}
		}
		return &domain.RejectionError{Venue: domain.VenueMEXC, Code: code, Reason: apiErr.Msg}
	}
}

func apiSide(side domain.OrderSide) string {
	if side == domain.OrderSideBuy {
		return "BUY"
	}
	return "SELL"
}
