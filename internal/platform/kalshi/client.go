// Package kalshi is the Kalshi trading venue: an RSA-signed REST client for
// orders and balances plus a WebSocket stream for market lifecycle events.
// Kalshi trades whole contracts at cent prices, so dollar-sized buys are
// floored to whole contracts before submission.
package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mbeaudet/hedgerun/internal/domain"
)

// rateLimitKey is the shared throttle bucket for all Kalshi REST calls.
const rateLimitKey = "kalshi"

// Client is the REST client for the Kalshi exchange API. It implements
// domain.VenueClient and domain.ResultSource.
type Client struct {
	baseURL    string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
	limiter    domain.RateLimiter // optional
}

var (
	_ domain.VenueClient  = (*Client)(nil)
	_ domain.ResultSource = (*Client)(nil)
)

// NewClient creates a Kalshi REST client.
//
// baseURL is the API root, e.g. "https://api.elections.kalshi.com/trade-api/v2".
func NewClient(baseURL, apiKeyID string) *Client {
	return &Client{
		baseURL:  baseURL,
		apiKeyID: apiKeyID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetRSAPrivateKey loads an RSA private key from PEM-encoded bytes and
// configures the client for signed authentication.
func (c *Client) SetRSAPrivateKey(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return fmt.Errorf("kalshi: no PEM block found in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Try PKCS1 as fallback.
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		c.privateKey = pkcs1Key
		return nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	c.privateKey = rsaKey
	return nil
}

// SetRateLimiter throttles outbound requests through the given limiter.
func (c *Client) SetRateLimiter(rl domain.RateLimiter) {
	c.limiter = rl
}

// Venue identifies this client.
func (c *Client) Venue() domain.Venue {
	return domain.VenueKalshi
}

// Balance returns the available cash balance in dollars.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, "/portfolio/balance", nil)
	if err != nil {
		return 0, fmt.Errorf("kalshi: get balance: %w", err)
	}

	var resp BalanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("kalshi: decode balance: %w", err)
	}
	return float64(resp.Balance) / 100, nil
}

// PlaceOrder submits a limit order. Dollar-sized buys are floored to whole
// contracts at the limit price; a fill-or-kill order that does not fill in
// full is returned as an error with no fill.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderFill, error) {
	priceCents := int64(math.Round(req.Price * 100))
	if priceCents < 1 || priceCents > 99 {
		return domain.OrderFill{}, fmt.Errorf("kalshi: price %.3f out of range: %w", req.Price, domain.ErrInvalidOrder)
	}

	var count int64
	switch req.Action {
	case domain.OrderActionBuy:
		count = int64(req.Dollars / req.Price)
	case domain.OrderActionSell:
		count = int64(req.Contracts)
	default:
		return domain.OrderFill{}, fmt.Errorf("kalshi: unknown action %q: %w", req.Action, domain.ErrInvalidOrder)
	}
	if count < 1 {
		return domain.OrderFill{}, fmt.Errorf("kalshi: order sizes to zero contracts: %w", domain.ErrInvalidOrder)
	}

	order := Order{
		Ticker:   req.MarketID,
		Action:   string(req.Action),
		Side:     req.Side,
		Type:     "limit",
		Count:    count,
		ClientID: uuid.New().String(),
	}
	if req.Side == "yes" {
		order.YesPrice = &priceCents
	} else {
		order.NoPrice = &priceCents
	}
	if req.FillOrKill {
		order.TimeInForce = "fill_or_kill"
	}

	body, err := c.doSignedRequest(ctx, http.MethodPost, "/portfolio/orders", order)
	if err != nil {
		return domain.OrderFill{}, fmt.Errorf("kalshi: place order: %w", err)
	}

	var resp OrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderFill{}, fmt.Errorf("kalshi: decode order response: %w", err)
	}

	filled := resp.Order.TakerFillCount + resp.Order.MakerFillCount
	if filled == 0 || resp.Order.Status == "canceled" {
		return domain.OrderFill{}, fmt.Errorf("kalshi: order %s did not fill (status %s)",
			resp.Order.OrderID, resp.Order.Status)
	}
	if req.FillOrKill && resp.Order.RemainingCount > 0 {
		return domain.OrderFill{}, fmt.Errorf("kalshi: fill_or_kill order %s only filled %d/%d",
			resp.Order.OrderID, filled, count)
	}

	cost := float64(resp.Order.TakerFillCost) / 100
	if cost == 0 {
		cost = float64(filled) * req.Price
	}
	return domain.OrderFill{
		OrderID:   resp.Order.OrderID,
		Contracts: float64(filled),
		AvgPrice:  cost / float64(filled),
		Cost:      cost,
	}, nil
}

// GetMarket returns a single market by its ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (Market, error) {
	path := fmt.Sprintf("/markets/%s", url.PathEscape(ticker))

	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Market{}, fmt.Errorf("kalshi: get market %s: %w", ticker, err)
	}

	var resp struct {
		Market Market `json:"market"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Market{}, fmt.Errorf("kalshi: decode market: %w", err)
	}
	return resp.Market, nil
}

// Result reports the settlement result of a market: "yes", "no", or "" while
// undetermined.
func (c *Client) Result(ctx context.Context, ticker string) (string, error) {
	market, err := c.GetMarket(ctx, ticker)
	if err != nil {
		return "", err
	}
	return market.Result, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doSignedRequest builds, signs, sends, and reads an HTTP request against the
// Kalshi API, honouring the rate limiter when one is configured.
func (c *Client) doSignedRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rateLimitKey); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if err := c.signRequest(req, method, path); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
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

	if err := c.checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// signRequest adds RSA authentication headers. Kalshi signs the
// timestamp + method + path string with RSA-PSS-SHA256. A client without a
// configured key sends unsigned requests; public market-data endpoints accept
// those, portfolio endpoints reject them with 401.
func (c *Client) signRequest(req *http.Request, method, path string) error {
	if c.privateKey == nil {
		return nil
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	message := ts + method + path

	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("RSA sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)

	return nil
}

// checkStatus maps non-2xx HTTP status codes to errors.
func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr ErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("kalshi: not found: %s (%s): %w", apiErr.Message, apiErr.Code, domain.ErrNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("kalshi: unauthorized: %s (%s): %w", apiErr.Message, apiErr.Code, domain.ErrUnauthorized)
	case http.StatusTooManyRequests:
		return fmt.Errorf("kalshi: rate limited: %s (%s): %w", apiErr.Message, apiErr.Code, domain.ErrRateLimited)
	case http.StatusBadRequest:
		return fmt.Errorf("kalshi: bad request: %s (%s)", apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("kalshi: HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}
