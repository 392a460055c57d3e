// Package bybit implements the venue.Exchange interface against the Bybit
// V5 linear-perp API with HMAC request signing.
package bybit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/basisbot/internal/crypto"
	"github.com/alanyoungcy/basisbot/internal/domain"
)

// Name is the registry identifier for this venue.
const Name = "bybit"

const category = "linear"

// Client is the REST client for the Bybit V5 API.
type Client struct {
	baseURL    string
	auth       *crypto.HMACAuth
	httpClient *http.Client
}

// NewClient creates a new Bybit client. auth may be nil for read-only use
// (public market data only).
func NewClient(baseURL string, auth *crypto.HMACAuth) *Client {
	return &Client{
		baseURL: baseURL,
		auth:    auth,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name implements venue.Exchange.
func (c *Client) Name() string { return Name }

// instrument maps the engine's coin symbol to Bybit's linear contract name.
func instrument(symbol string) string {
	return symbol + "USDT"
}

// GetMarketData returns the best bid/ask for symbol.
func (c *Client) GetMarketData(ctx context.Context, symbol string) (domain.MarketData, error) {
	params := url.Values{}
	params.Set("category", category)
	params.Set("symbol", instrument(symbol))

	var result tickersResult
	if err := c.get(ctx, "/v5/market/tickers", params, false, &result); err != nil {
		return domain.MarketData{}, fmt.Errorf("bybit: get tickers %s: %w", symbol, err)
	}
	if len(result.List) == 0 {
		return domain.MarketData{}, fmt.Errorf("bybit: no ticker for %s: %w", symbol, domain.ErrNotFound)
	}

	t := result.List[0]
	bid, err := parseFloat(t.Bid1Price)
	if err != nil {
		return domain.MarketData{}, fmt.Errorf("bybit: parse bid: %w", err)
	}
	ask, err := parseFloat(t.Ask1Price)
	if err != nil {
		return domain.MarketData{}, fmt.Errorf("bybit: parse ask: %w", err)
	}

	return domain.MarketData{
		Bid:       bid,
		Ask:       ask,
		Mid:       (bid + ask) / 2,
		Timestamp: time.Now().UTC(),
	}, nil
}

// GetOrderBook returns up to depth levels per side.
func (c *Client) GetOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error) {
	if depth <= 0 {
		depth = 25
	}
	params := url.Values{}
	params.Set("category", category)
	params.Set("symbol", instrument(symbol))
	params.Set("limit", strconv.Itoa(depth))

	var result orderbookResult
	if err := c.get(ctx, "/v5/market/orderbook", params, false, &result); err != nil {
		return domain.OrderBook{}, fmt.Errorf("bybit: get orderbook %s: %w", symbol, err)
	}

	book := domain.OrderBook{Timestamp: time.UnixMilli(result.Ts).UTC()}
	var err error
	if book.Bids, err = convertLevels(result.Bids); err != nil {
		return domain.OrderBook{}, fmt.Errorf("bybit: parse bids: %w", err)
	}
	if book.Asks, err = convertLevels(result.Asks); err != nil {
		return domain.OrderBook{}, fmt.Errorf("bybit: parse asks: %w", err)
	}
	return book, nil
}

// PlaceLimitOrder submits a limit order. PostOnly maps to the PostOnly
// time-in-force.
func (c *Client) PlaceLimitOrder(ctx context.Context, symbol string, side domain.OrderSide, size, price float64, opts domain.OrderOpts) (domain.Order, error) {
	tif := "GTC"
	if opts.PostOnly {
		tif = "PostOnly"
	}
	req := createOrderRequest{
		Category:    category,
		Symbol:      instrument(symbol),
		Side:        sideString(side),
		OrderType:   "Limit",
		Qty:         formatFloat(size),
		Price:       formatFloat(price),
		TimeInForce: tif,
		ReduceOnly:  opts.ReduceOnly,
	}

	var result createOrderResult
	if err := c.post(ctx, "/v5/order/create", req, &result); err != nil {
		return domain.Order{}, fmt.Errorf("bybit: place limit order: %w", err)
	}

	return domain.Order{
		ID:         result.OrderID,
		Symbol:     symbol,
		Side:       side,
		Size:       size,
		Price:      price,
		Status:     domain.OrderStatusOpen,
		PostOnly:   opts.PostOnly,
		ReduceOnly: opts.ReduceOnly,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// PlaceMarketOrder submits a market order.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, size float64, opts domain.OrderOpts) (domain.Order, error) {
	req := createOrderRequest{
		Category:   category,
		Symbol:     instrument(symbol),
		Side:       sideString(side),
		OrderType:  "Market",
		Qty:        formatFloat(size),
		ReduceOnly: opts.ReduceOnly,
	}

	var result createOrderResult
	if err := c.post(ctx, "/v5/order/create", req, &result); err != nil {
		return domain.Order{}, fmt.Errorf("bybit: place market order: %w", err)
	}

	return domain.Order{
		ID:         result.OrderID,
		Symbol:     symbol,
		Side:       side,
		Size:       size,
		Status:     domain.OrderStatusPending,
		ReduceOnly: opts.ReduceOnly,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// CancelOrder cancels an order by ID.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	req := cancelOrderRequest{
		Category: category,
		Symbol:   instrument(symbol),
		OrderID:  orderID,
	}
	var result createOrderResult
	if err := c.post(ctx, "/v5/order/cancel", req, &result); err != nil {
		return fmt.Errorf("bybit: cancel order %s: %w", orderID, err)
	}
	return nil
}

// GetOrder returns the current state of an order, checking open orders first
// and falling back to history for terminal orders.
func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (domain.Order, error) {
	params := url.Values{}
	params.Set("category", category)
	params.Set("symbol", instrument(symbol))
	params.Set("orderId", orderID)

	var result orderListResult
	if err := c.get(ctx, "/v5/order/realtime", params, true, &result); err != nil {
		return domain.Order{}, fmt.Errorf("bybit: get order %s: %w", orderID, err)
	}
	if len(result.List) == 0 {
		if err := c.get(ctx, "/v5/order/history", params, true, &result); err != nil {
			return domain.Order{}, fmt.Errorf("bybit: get order history %s: %w", orderID, err)
		}
	}
	if len(result.List) == 0 {
		return domain.Order{}, fmt.Errorf("bybit: order %s: %w", orderID, domain.ErrNotFound)
	}

	return convertOrder(result.List[0], symbol)
}

// GetPosition returns the live linear position for symbol, or nil when flat.
func (c *Client) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	params := url.Values{}
	params.Set("category", category)
	params.Set("symbol", instrument(symbol))

	var result positionListResult
	if err := c.get(ctx, "/v5/position/list", params, true, &result); err != nil {
		return nil, fmt.Errorf("bybit: get position %s: %w", symbol, err)
	}

	for _, p := range result.List {
		size, err := parseFloat(p.Size)
		if err != nil {
			return nil, fmt.Errorf("bybit: parse position size: %w", err)
		}
		if size == 0 || p.Side == "" {
			continue
		}
		entry, err := parseFloat(p.AvgPrice)
		if err != nil {
			return nil, fmt.Errorf("bybit: parse avg price: %w", err)
		}
		mark, _ := parseFloat(p.MarkPrice)
		upnl, _ := parseFloat(p.UnrealisedPnl)

		side := domain.PositionSideLong
		if p.Side == "Sell" {
			side = domain.PositionSideShort
		}
		return &domain.Position{
			Side:          side,
			Size:          size,
			EntryPrice:    entry,
			MarkPrice:     mark,
			UnrealizedPnL: upnl,
		}, nil
	}
	return nil, nil
}

// GetAccountInfo returns unified account balances.
func (c *Client) GetAccountInfo(ctx context.Context) (domain.AccountInfo, error) {
	params := url.Values{}
	params.Set("accountType", "UNIFIED")

	var result walletBalanceResult
	if err := c.get(ctx, "/v5/account/wallet-balance", params, true, &result); err != nil {
		return domain.AccountInfo{}, fmt.Errorf("bybit: wallet balance: %w", err)
	}
	if len(result.List) == 0 {
		return domain.AccountInfo{}, fmt.Errorf("bybit: empty wallet balance list")
	}

	acct := result.List[0]
	balance, err := parseFloat(acct.TotalEquity)
	if err != nil {
		return domain.AccountInfo{}, fmt.Errorf("bybit: parse equity: %w", err)
	}
	avail, err := parseFloat(acct.TotalAvailable)
	if err != nil {
		return domain.AccountInfo{}, fmt.Errorf("bybit: parse available: %w", err)
	}
	used, _ := parseFloat(acct.TotalInitialMargin)

	return domain.AccountInfo{
		Balance:         balance,
		AvailableMargin: avail,
		UsedMargin:      used,
	}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// get performs a GET request. signed adds HMAC auth headers over the raw
// query string.
func (c *Client) get(ctx context.Context, path string, params url.Values, signed bool, out any) error {
	query := params.Encode()
	fullURL := c.baseURL + path
	if query != "" {
		fullURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if signed {
		if c.auth == nil {
			return fmt.Errorf("bybit: no credentials configured (read-only client)")
		}
		for k, v := range c.auth.Headers(query) {
			req.Header.Set(k, v)
		}
	}

	return c.do(req, out)
}

// post performs a signed POST request with a JSON body.
func (c *Client) post(ctx context.Context, path string, reqBody, out any) error {
	if c.auth == nil {
		return fmt.Errorf("bybit: no credentials configured (read-only client)")
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	for k, v := range c.auth.Headers(string(jsonBody)) {
		req.Header.Set(k, v)
	}

	return c.do(req, out)
}

// do sends the request, unwraps the V5 envelope, and decodes the result.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(respBody, 256))
	}

	var envelope baseResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.RetCode != 0 {
		return fmt.Errorf("retCode %d: %s", envelope.RetCode, envelope.RetMsg)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

func convertOrder(item orderItem, symbol string) (domain.Order, error) {
	size, err := parseFloat(item.Qty)
	if err != nil {
		return domain.Order{}, fmt.Errorf("bybit: parse qty: %w", err)
	}
	filled, err := parseFloat(item.CumExecQty)
	if err != nil {
		return domain.Order{}, fmt.Errorf("bybit: parse cumExecQty: %w", err)
	}
	price, _ := parseFloat(item.Price)
	avgPrice, _ := parseFloat(item.AvgPrice)

	side := domain.OrderSideBuy
	if item.Side == "Sell" {
		side = domain.OrderSideSell
	}

	var status domain.OrderStatus
	switch item.OrderStatus {
	case "New", "Untriggered":
		status = domain.OrderStatusOpen
	case "PartiallyFilled":
		status = domain.OrderStatusPartiallyFilled
	case "Filled":
		status = domain.OrderStatusFilled
	case "Cancelled", "PartiallyFilledCanceled", "Deactivated":
		status = domain.OrderStatusCancelled
	case "Rejected":
		status = domain.OrderStatusRejected
	default:
		status = domain.OrderStatusPending
	}

	order := domain.Order{
		ID:           item.OrderID,
		Symbol:       symbol,
		Side:         side,
		Size:         size,
		FilledSize:   filled,
		Price:        price,
		AvgFillPrice: avgPrice,
		Status:       status,
		PostOnly:     item.TimeInForce == "PostOnly",
		ReduceOnly:   item.ReduceOnly,
	}
	if ms, err := strconv.ParseInt(item.CreatedTime, 10, 64); err == nil {
		order.CreatedAt = time.UnixMilli(ms).UTC()
	}
	return order, nil
}

func convertLevels(levels [][2]string) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, lv := range levels {
		px, err := parseFloat(lv[0])
		if err != nil {
			return nil, err
		}
		sz, err := parseFloat(lv[1])
		if err != nil {
			return nil, err
		}
		out = append(out, domain.PriceLevel{Price: px, Size: sz})
	}
	return out, nil
}

func sideString(side domain.OrderSide) string {
	if side == domain.OrderSideSell {
		return "Sell"
	}
	return "Buy"
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
