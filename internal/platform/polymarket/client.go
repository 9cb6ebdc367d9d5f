// Package polymarket is the Polymarket trading venue: a CLOB REST client
// authenticated with HMAC L2 headers. Orders are market orders sized in
// dollars; the CLOB reports the matched amounts back.
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mbeaudet/hedgerun/internal/crypto"
	"github.com/mbeaudet/hedgerun/internal/domain"
)

// rateLimitKey is the shared throttle bucket for all Polymarket REST calls.
const rateLimitKey = "polymarket"

// Client is the REST client for the Polymarket CLOB API. It implements
// domain.VenueClient.
type Client struct {
	baseURL    string
	address    string // funder wallet address
	hmacAuth   *crypto.HMACAuth
	httpClient *http.Client
	limiter    domain.RateLimiter // optional
}

var _ domain.VenueClient = (*Client)(nil)

// NewClient creates a CLOB client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
// address is the funder wallet the credentials were derived for.
func NewClient(baseURL, address string, hmacAuth *crypto.HMACAuth) *Client {
	return &Client{
		baseURL:  baseURL,
		address:  address,
		hmacAuth: hmacAuth,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetRateLimiter throttles outbound requests through the given limiter.
func (c *Client) SetRateLimiter(rl domain.RateLimiter) {
	c.limiter = rl
}

// Venue identifies this client.
func (c *Client) Venue() domain.Venue {
	return domain.VenuePolymarket
}

// Balance returns the available USDC balance in dollars.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	body, err := c.doAuthenticatedRequest(ctx, http.MethodGet,
		"/balance-allowance?asset_type=COLLATERAL", nil)
	if err != nil {
		return 0, fmt.Errorf("polymarket: get balance: %w", err)
	}

	var resp BalanceAllowanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("polymarket: decode balance: %w", err)
	}

	micro, err := strconv.ParseFloat(resp.Balance, 64)
	if err != nil {
		return 0, fmt.Errorf("polymarket: parse balance %q: %w", resp.Balance, err)
	}
	return micro / 1e6, nil
}

// PlaceOrder submits a market order. Buys are sized in dollars, sells in
// contracts. A fill-or-kill order that did not match is returned as an error
// with no fill.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderFill, error) {
	var side string
	var amount float64
	switch req.Action {
	case domain.OrderActionBuy:
		side, amount = "BUY", req.Dollars
	case domain.OrderActionSell:
		side, amount = "SELL", req.Contracts
	default:
		return domain.OrderFill{}, fmt.Errorf("polymarket: unknown action %q: %w", req.Action, domain.ErrInvalidOrder)
	}
	if amount <= 0 {
		return domain.OrderFill{}, fmt.Errorf("polymarket: zero-sized order: %w", domain.ErrInvalidOrder)
	}

	orderType := "GTC"
	if req.FillOrKill {
		orderType = "FOK"
	}

	payload := map[string]any{
		"order": map[string]any{
			"tokenID": req.MarketID,
			"side":    side,
			"amount":  strconv.FormatFloat(amount, 'f', 2, 64),
			"price":   strconv.FormatFloat(req.Price, 'f', 3, 64),
			"owner":   c.address,
		},
		"orderType": orderType,
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", payload)
	if err != nil {
		return domain.OrderFill{}, fmt.Errorf("polymarket: post order: %w", err)
	}

	var result APIOrderResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return domain.OrderFill{}, fmt.Errorf("polymarket: decode order result: %w", err)
	}

	if !result.Success || result.Status == "unmatched" {
		return domain.OrderFill{}, fmt.Errorf("polymarket: order rejected (status %s): %s",
			result.Status, result.ErrorMsg)
	}

	return c.toFill(req, result)
}

// toFill converts the CLOB response into a venue-neutral fill. When the
// response omits the matched amounts, the fill is estimated at the requested
// price; the CLOB occasionally reports matches asynchronously.
func (c *Client) toFill(req domain.OrderRequest, result APIOrderResult) (domain.OrderFill, error) {
	making, _ := strconv.ParseFloat(result.MakingAmount, 64)
	taking, _ := strconv.ParseFloat(result.TakingAmount, 64)

	fill := domain.OrderFill{OrderID: result.OrderID}
	switch req.Action {
	case domain.OrderActionBuy:
		// Making is the USDC spent, taking the contracts received.
		if making > 0 && taking > 0 {
			fill.Contracts = taking
			fill.Cost = making
			fill.AvgPrice = making / taking
		} else {
			fill.Contracts = req.Dollars / req.Price
			fill.AvgPrice = req.Price
			fill.Cost = req.Dollars
		}
	default:
		// Making is the contracts sold, taking the USDC received.
		if making > 0 && taking > 0 {
			fill.Contracts = making
			fill.Cost = taking
			fill.AvgPrice = taking / making
		} else {
			fill.Contracts = req.Contracts
			fill.AvgPrice = req.Price
			fill.Cost = req.Contracts * req.Price
		}
	}
	return fill, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doAuthenticatedRequest builds, signs (HMAC), sends, and reads an HTTP
// request against the CLOB API, honouring the rate limiter when configured.
func (c *Client) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rateLimitKey); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.hmacAuth != nil {
		for k, v := range c.hmacAuth.L2Headers(c.address, method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
