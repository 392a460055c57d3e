package bybit

import "encoding/json"

// baseResponse is the envelope every V5 endpoint returns. RetCode 0 means
// success.
type baseResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

// tickersResult is the result of GET /v5/market/tickers.
type tickersResult struct {
	Category string       `json:"category"`
	List     []tickerItem `json:"list"`
}

type tickerItem struct {
	Symbol    string `json:"symbol"`
	Bid1Price string `json:"bid1Price"`
	Bid1Size  string `json:"bid1Size"`
	Ask1Price string `json:"ask1Price"`
	Ask1Size  string `json:"ask1Size"`
	LastPrice string `json:"lastPrice"`
}

// orderbookResult is the result of GET /v5/market/orderbook. Levels are
// [price, size] string pairs, best-first.
type orderbookResult struct {
	Symbol string      `json:"s"`
	Bids   [][2]string `json:"b"`
	Asks   [][2]string `json:"a"`
	Ts     int64       `json:"ts"`
}

// createOrderRequest is the body of POST /v5/order/create.
type createOrderRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`      // Buy / Sell
	OrderType   string `json:"orderType"` // Limit / Market
	Qty         string `json:"qty"`
	Price       string `json:"price,omitempty"`
	TimeInForce string `json:"timeInForce,omitempty"` // GTC / IOC / PostOnly
	ReduceOnly  bool   `json:"reduceOnly,omitempty"`
}

// createOrderResult is the result of POST /v5/order/create.
type createOrderResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

// cancelOrderRequest is the body of POST /v5/order/cancel.
type cancelOrderRequest struct {
	Category string `json:"category"`
	Symbol   string `json:"symbol"`
	OrderID  string `json:"orderId"`
}

// orderListResult is the result of GET /v5/order/realtime.
type orderListResult struct {
	List []orderItem `json:"list"`
}

type orderItem struct {
	OrderID     string `json:"orderId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Price       string `json:"price"`
	Qty         string `json:"qty"`
	CumExecQty  string `json:"cumExecQty"`
	CumExecFee  string `json:"cumExecFee"`
	AvgPrice    string `json:"avgPrice"`
	OrderStatus string `json:"orderStatus"`
	TimeInForce string `json:"timeInForce"`
	ReduceOnly  bool   `json:"reduceOnly"`
	CreatedTime string `json:"createdTime"`
}

// positionListResult is the result of GET /v5/position/list.
type positionListResult struct {
	List []positionItem `json:"list"`
}

type positionItem struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"` // Buy / Sell / "" when flat
	Size          string `json:"size"`
	AvgPrice      string `json:"avgPrice"`
	MarkPrice     string `json:"markPrice"`
	UnrealisedPnl string `json:"unrealisedPnl"`
}

// walletBalanceResult is the result of GET /v5/account/wallet-balance.
type walletBalanceResult struct {
	List []walletAccount `json:"list"`
}

type walletAccount struct {
	AccountType        string `json:"accountType"`
	TotalEquity        string `json:"totalEquity"`
	TotalAvailable     string `json:"totalAvailableBalance"`
	TotalInitialMargin string `json:"totalInitialMargin"`
}
