package kalshi

import "encoding/json"

// --------------------------------------------------------------------------
// Kalshi API DTOs
// --------------------------------------------------------------------------

// Market is the subset of the Kalshi market object the coordinator needs:
// best quotes, volume for the liquidity heuristic, and the settlement result.
type Market struct {
	Ticker      string `json:"ticker"`
	EventTicker string `json:"event_ticker"`
	Title       string `json:"title"`
	Status      string `json:"status"` // "open", "closed", "settled"
	YesBid      int64  `json:"yes_bid"`
	YesAsk      int64  `json:"yes_ask"`
	NoBid       int64  `json:"no_bid"`
	NoAsk       int64  `json:"no_ask"`
	Volume      int64  `json:"volume"`
	Volume24H   int64  `json:"volume_24h"`
	Result      string `json:"result"` // "yes", "no", "" while unsettled
	CloseTime   string `json:"close_time"`
}

// Order is the request body for POST /portfolio/orders. Prices are in cents.
type Order struct {
	Ticker      string `json:"ticker"`
	Action      string `json:"action"` // "buy" or "sell"
	Side        string `json:"side"`   // "yes" or "no"
	Type        string `json:"type"`   // "limit"
	Count       int64  `json:"count"`
	YesPrice    *int64 `json:"yes_price,omitempty"`
	NoPrice     *int64 `json:"no_price,omitempty"`
	TimeInForce string `json:"time_in_force,omitempty"` // "fill_or_kill"
	ClientID    string `json:"client_order_id,omitempty"`
}

// OrderResponse is the API response after placing an order. Fill costs are in
// cents.
type OrderResponse struct {
	Order struct {
		OrderID        string `json:"order_id"`
		Ticker         string `json:"ticker"`
		Status         string `json:"status"` // "resting", "canceled", "executed", "pending"
		Action         string `json:"action"`
		Side           string `json:"side"`
		YesPrice       int64  `json:"yes_price"`
		NoPrice        int64  `json:"no_price"`
		RemainingCount int64  `json:"remaining_count"`
		TakerFillCount int64  `json:"taker_fill_count"`
		TakerFillCost  int64  `json:"taker_fill_cost"`
		MakerFillCount int64  `json:"maker_fill_count"`
	} `json:"order"`
}

// BalanceResponse is the response of GET /portfolio/balance, in cents.
type BalanceResponse struct {
	Balance int64 `json:"balance"`
}

// ErrorResponse is a Kalshi API error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --------------------------------------------------------------------------
// Kalshi WebSocket DTOs
// --------------------------------------------------------------------------

// WSMessage is the envelope for Kalshi WebSocket messages.
type WSMessage struct {
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg"`
	SID  int64           `json:"sid"`
}

// WSLifecycle is a market lifecycle update: the market closed or its result
// was determined.
type WSLifecycle struct {
	Ticker string `json:"market_ticker"`
	Result string `json:"result,omitempty"`
}

// WSSubscribeCmd is the command sent to subscribe to WebSocket channels.
type WSSubscribeCmd struct {
	ID     int64             `json:"id"`
	Cmd    string            `json:"cmd"` // "subscribe" or "unsubscribe"
	Params WSSubscribeParams `json:"params"`
}

// WSSubscribeParams defines the subscription parameters.
type WSSubscribeParams struct {
	Channels []string `json:"channels"`
	Tickers  []string `json:"market_tickers,omitempty"`
}
