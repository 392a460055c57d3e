// Package hyperliquid implements the venue.Exchange interface against the
// Hyperliquid perp API. Market data comes from /info queries; orders go
// through /exchange with EIP-712 agent signatures.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/basisbot/internal/crypto"
	"github.com/alanyoungcy/basisbot/internal/domain"
)

// Name is the registry identifier for this venue.
const Name = "hyperliquid"

// Client is the REST client for the Hyperliquid API.
type Client struct {
	baseURL    string
	signer     *crypto.Signer
	httpClient *http.Client

	mu        sync.Mutex
	assets    map[string]int // coin -> asset index from the meta universe
	lastNonce int64
}

// NewClient creates a new Hyperliquid client. signer may be nil for
// read-only use (market data and position queries only).
func NewClient(baseURL string, signer *crypto.Signer) *Client {
	return &Client{
		baseURL: baseURL,
		signer:  signer,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name implements venue.Exchange.
func (c *Client) Name() string { return Name }

// GetMarketData returns the best bid/ask for coin from the L2 book.
func (c *Client) GetMarketData(ctx context.Context, symbol string) (domain.MarketData, error) {
	book, err := c.l2Book(ctx, symbol)
	if err != nil {
		return domain.MarketData{}, err
	}
	if len(book.Levels[0]) == 0 || len(book.Levels[1]) == 0 {
		return domain.MarketData{}, fmt.Errorf("hyperliquid: empty book for %s", symbol)
	}
	bid, err := parseFloat(book.Levels[0][0].Px)
	if err != nil {
		return domain.MarketData{}, fmt.Errorf("hyperliquid: parse bid: %w", err)
	}
	ask, err := parseFloat(book.Levels[1][0].Px)
	if err != nil {
		return domain.MarketData{}, fmt.Errorf("hyperliquid: parse ask: %w", err)
	}
	return domain.MarketData{
		Bid:       bid,
		Ask:       ask,
		Mid:       (bid + ask) / 2,
		Timestamp: time.UnixMilli(book.Time).UTC(),
	}, nil
}

// GetOrderBook returns up to depth levels per side.
func (c *Client) GetOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error) {
	book, err := c.l2Book(ctx, symbol)
	if err != nil {
		return domain.OrderBook{}, err
	}
	out := domain.OrderBook{Timestamp: time.UnixMilli(book.Time).UTC()}
	out.Bids, err = convertLevels(book.Levels[0], depth)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("hyperliquid: parse bids: %w", err)
	}
	out.Asks, err = convertLevels(book.Levels[1], depth)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("hyperliquid: parse asks: %w", err)
	}
	return out, nil
}

// PlaceLimitOrder submits a limit order. PostOnly maps to ALO time-in-force.
func (c *Client) PlaceLimitOrder(ctx context.Context, symbol string, side domain.OrderSide, size, price float64, opts domain.OrderOpts) (domain.Order, error) {
	tif := "Gtc"
	if opts.PostOnly {
		tif = "Alo"
	}
	return c.placeOrder(ctx, symbol, side, size, price, tif, opts.ReduceOnly)
}

// PlaceMarketOrder submits an aggressive IOC limit order priced through the
// book. Hyperliquid has no native market order type.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, size float64, opts domain.OrderOpts) (domain.Order, error) {
	md, err := c.GetMarketData(ctx, symbol)
	if err != nil {
		return domain.Order{}, err
	}
	// 5% through the touch guarantees a sweep within slippage bounds the
	// caller has already vetted.
	price := md.Ask * 1.05
	if side == domain.OrderSideSell {
		price = md.Bid * 0.95
	}
	return c.placeOrder(ctx, symbol, side, size, price, "Ioc", opts.ReduceOnly)
}

// CancelOrder cancels a resting order by oid.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	oid, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("hyperliquid: invalid order id %q: %w", orderID, err)
	}
	asset, err := c.assetIndex(ctx, symbol)
	if err != nil {
		return err
	}

	action, err := json.Marshal(cancelAction{
		Type:    "cancel",
		Cancels: []wireCancel{{Asset: asset, Oid: oid}},
	})
	if err != nil {
		return fmt.Errorf("hyperliquid: marshal cancel: %w", err)
	}

	resp, err := c.postExchange(ctx, action)
	if err != nil {
		return fmt.Errorf("hyperliquid: cancel order %s: %w", orderID, err)
	}
	if len(resp.Response.Data.Statuses) > 0 && resp.Response.Data.Statuses[0].Error != "" {
		return fmt.Errorf("hyperliquid: cancel rejected: %s", resp.Response.Data.Statuses[0].Error)
	}
	return nil
}

// GetOrder returns the current state of an order by oid.
func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (domain.Order, error) {
	oid, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return domain.Order{}, fmt.Errorf("hyperliquid: invalid order id %q: %w", orderID, err)
	}

	var resp orderStatusResponse
	if err := c.postInfo(ctx, infoRequest{
		Type: "orderStatus",
		User: c.userAddress(),
		Oid:  oid,
	}, &resp); err != nil {
		return domain.Order{}, fmt.Errorf("hyperliquid: order status %s: %w", orderID, err)
	}
	if resp.Status != "order" {
		return domain.Order{}, fmt.Errorf("hyperliquid: order %s: %w", orderID, domain.ErrNotFound)
	}

	raw := resp.Order.Order
	origSz, err := parseFloat(raw.OrigSz)
	if err != nil {
		return domain.Order{}, fmt.Errorf("hyperliquid: parse origSz: %w", err)
	}
	remaining, err := parseFloat(raw.Sz)
	if err != nil {
		return domain.Order{}, fmt.Errorf("hyperliquid: parse sz: %w", err)
	}
	price, err := parseFloat(raw.LimitPx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("hyperliquid: parse limitPx: %w", err)
	}

	side := domain.OrderSideBuy
	if raw.Side == "A" {
		side = domain.OrderSideSell
	}

	order := domain.Order{
		ID:         orderID,
		Symbol:     symbol,
		Side:       side,
		Size:       origSz,
		FilledSize: origSz - remaining,
		Price:      price,
		ReduceOnly: raw.ReduceOnly,
		CreatedAt:  time.UnixMilli(raw.Timestamp).UTC(),
	}
	// The status query does not echo an average fill price; fills execute
	// at the limit price or better, so the limit is the conservative bound.
	if order.FilledSize > 0 {
		order.AvgFillPrice = price
	}

	switch resp.Order.Status {
	case "filled":
		order.Status = domain.OrderStatusFilled
	case "canceled", "marginCanceled":
		order.Status = domain.OrderStatusCancelled
	case "rejected":
		order.Status = domain.OrderStatusRejected
	default:
		if order.FilledSize > 0 {
			order.Status = domain.OrderStatusPartiallyFilled
		} else {
			order.Status = domain.OrderStatusOpen
		}
	}
	return order, nil
}

// GetPosition returns the live perp position for symbol, or nil when flat.
func (c *Client) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	var state clearinghouseState
	if err := c.postInfo(ctx, infoRequest{
		Type: "clearinghouseState",
		User: c.userAddress(),
	}, &state); err != nil {
		return nil, fmt.Errorf("hyperliquid: clearinghouse state: %w", err)
	}

	for _, ap := range state.AssetPositions {
		if ap.Position.Coin != symbol {
			continue
		}
		szi, err := parseFloat(ap.Position.Szi)
		if err != nil {
			return nil, fmt.Errorf("hyperliquid: parse szi: %w", err)
		}
		if szi == 0 {
			return nil, nil
		}
		entry, err := parseFloat(ap.Position.EntryPx)
		if err != nil {
			return nil, fmt.Errorf("hyperliquid: parse entryPx: %w", err)
		}
		upnl, _ := parseFloat(ap.Position.UnrealizedPnl)

		pos := &domain.Position{
			Side:          domain.PositionSideLong,
			Size:          szi,
			EntryPrice:    entry,
			UnrealizedPnL: upnl,
		}
		if szi < 0 {
			pos.Side = domain.PositionSideShort
			pos.Size = -szi
		}
		return pos, nil
	}
	return nil, nil
}

// GetAccountInfo returns margin balances from the clearinghouse state.
func (c *Client) GetAccountInfo(ctx context.Context) (domain.AccountInfo, error) {
	var state clearinghouseState
	if err := c.postInfo(ctx, infoRequest{
		Type: "clearinghouseState",
		User: c.userAddress(),
	}, &state); err != nil {
		return domain.AccountInfo{}, fmt.Errorf("hyperliquid: clearinghouse state: %w", err)
	}

	balance, err := parseFloat(state.MarginSummary.AccountValue)
	if err != nil {
		return domain.AccountInfo{}, fmt.Errorf("hyperliquid: parse account value: %w", err)
	}
	used, err := parseFloat(state.MarginSummary.TotalMarginUsed)
	if err != nil {
		return domain.AccountInfo{}, fmt.Errorf("hyperliquid: parse margin used: %w", err)
	}
	avail, err := parseFloat(state.Withdrawable)
	if err != nil {
		return domain.AccountInfo{}, fmt.Errorf("hyperliquid: parse withdrawable: %w", err)
	}

	return domain.AccountInfo{
		Balance:         balance,
		AvailableMargin: avail,
		UsedMargin:      used,
	}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) placeOrder(ctx context.Context, symbol string, side domain.OrderSide, size, price float64, tif string, reduceOnly bool) (domain.Order, error) {
	asset, err := c.assetIndex(ctx, symbol)
	if err != nil {
		return domain.Order{}, err
	}

	action, err := json.Marshal(orderAction{
		Type: "order",
		Orders: []wireOrder{{
			Asset:      asset,
			IsBuy:      side == domain.OrderSideBuy,
			Price:      formatFloat(price),
			Size:       formatFloat(size),
			ReduceOnly: reduceOnly,
			Type:       orderType{Limit: &limitType{Tif: tif}},
		}},
		Grouping: "na",
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("hyperliquid: marshal order: %w", err)
	}

	resp, err := c.postExchange(ctx, action)
	if err != nil {
		return domain.Order{}, fmt.Errorf("hyperliquid: place order: %w", err)
	}
	if len(resp.Response.Data.Statuses) == 0 {
		return domain.Order{}, fmt.Errorf("hyperliquid: place order: empty status list")
	}

	st := resp.Response.Data.Statuses[0]
	order := domain.Order{
		Symbol:     symbol,
		Side:       side,
		Size:       size,
		Price:      price,
		PostOnly:   tif == "Alo",
		ReduceOnly: reduceOnly,
		CreatedAt:  time.Now().UTC(),
	}

	switch {
	case st.Error != "":
		order.Status = domain.OrderStatusRejected
		return order, fmt.Errorf("hyperliquid: order rejected: %s", st.Error)
	case st.Filled != nil:
		order.ID = strconv.FormatInt(st.Filled.Oid, 10)
		order.Status = domain.OrderStatusFilled
		if order.FilledSize, err = parseFloat(st.Filled.TotalSz); err != nil {
			return domain.Order{}, fmt.Errorf("hyperliquid: parse totalSz: %w", err)
		}
		if order.AvgFillPrice, err = parseFloat(st.Filled.AvgPx); err != nil {
			return domain.Order{}, fmt.Errorf("hyperliquid: parse avgPx: %w", err)
		}
	case st.Resting != nil:
		order.ID = strconv.FormatInt(st.Resting.Oid, 10)
		order.Status = domain.OrderStatusOpen
	default:
		return domain.Order{}, fmt.Errorf("hyperliquid: place order: unrecognized status")
	}
	return order, nil
}

// assetIndex resolves a coin to its index in the meta universe, fetching the
// universe once and caching it.
func (c *Client) assetIndex(ctx context.Context, symbol string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.assets == nil {
		var meta metaResponse
		if err := c.postInfoLocked(ctx, infoRequest{Type: "meta"}, &meta); err != nil {
			return 0, fmt.Errorf("hyperliquid: fetch meta: %w", err)
		}
		c.assets = make(map[string]int, len(meta.Universe))
		for i, a := range meta.Universe {
			c.assets[a.Name] = i
		}
	}

	idx, ok := c.assets[symbol]
	if !ok {
		return 0, fmt.Errorf("hyperliquid: unknown asset %q: %w", symbol, domain.ErrNotFound)
	}
	return idx, nil
}

func (c *Client) l2Book(ctx context.Context, symbol string) (l2BookResponse, error) {
	var book l2BookResponse
	if err := c.postInfo(ctx, infoRequest{Type: "l2Book", Coin: symbol}, &book); err != nil {
		return l2BookResponse{}, fmt.Errorf("hyperliquid: l2 book %s: %w", symbol, err)
	}
	return book, nil
}

// postExchange signs and submits an action. Nonces are strictly increasing
// millisecond timestamps; concurrent placements are serialized here.
func (c *Client) postExchange(ctx context.Context, action json.RawMessage) (*exchangeResponse, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("hyperliquid: no signer configured (read-only client)")
	}

	c.mu.Lock()
	nonce := time.Now().UnixMilli()
	if nonce <= c.lastNonce {
		nonce = c.lastNonce + 1
	}
	c.lastNonce = nonce
	c.mu.Unlock()

	sig, err := c.signer.SignAction(action, nonce)
	if err != nil {
		return nil, fmt.Errorf("sign action: %w", err)
	}

	body, err := c.post(ctx, "/exchange", exchangeRequest{
		Action:    action,
		Nonce:     nonce,
		Signature: sig,
	})
	if err != nil {
		return nil, err
	}

	var resp exchangeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode exchange response: %w", err)
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("exchange request failed: %s", resp.Status)
	}
	return &resp, nil
}

func (c *Client) postInfo(ctx context.Context, req infoRequest, out any) error {
	body, err := c.post(ctx, "/info", req)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// postInfoLocked is postInfo for callers already holding c.mu.
func (c *Client) postInfoLocked(ctx context.Context, req infoRequest, out any) error {
	return c.postInfo(ctx, req, out)
}

func (c *Client) post(ctx context.Context, path string, reqBody any) ([]byte, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(respBody, 256))
	}
	return respBody, nil
}

func (c *Client) userAddress() string {
	if c.signer == nil {
		return ""
	}
	return c.signer.Address().Hex()
}

func convertLevels(levels []wsLevel, depth int) ([]domain.PriceLevel, error) {
	if depth > 0 && depth < len(levels) {
		levels = levels[:depth]
	}
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, lv := range levels {
		px, err := parseFloat(lv.Px)
		if err != nil {
			return nil, err
		}
		sz, err := parseFloat(lv.Sz)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.PriceLevel{Price: px, Size: sz})
	}
	return out, nil
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
