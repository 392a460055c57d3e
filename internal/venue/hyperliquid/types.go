package hyperliquid

import "encoding/json"

// --------------------------------------------------------------------------
// /info wire types. Hyperliquid serializes all numbers as strings.
// --------------------------------------------------------------------------

// infoRequest is the envelope for every /info query.
type infoRequest struct {
	Type string `json:"type"`
	Coin string `json:"coin,omitempty"`
	User string `json:"user,omitempty"`
	Oid  int64  `json:"oid,omitempty"`
}

// wsLevel is one price level of an l2Book response.
type wsLevel struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
	N  int    `json:"n"`
}

// l2BookResponse is the response to an l2Book query. Levels[0] is bids,
// Levels[1] is asks, both best-first.
type l2BookResponse struct {
	Coin   string       `json:"coin"`
	Time   int64        `json:"time"`
	Levels [2][]wsLevel `json:"levels"`
}

// metaResponse is the response to a meta query.
type metaResponse struct {
	Universe []assetMeta `json:"universe"`
}

type assetMeta struct {
	Name       string `json:"name"`
	SzDecimals int    `json:"szDecimals"`
}

// clearinghouseState is the response to a clearinghouseState query.
type clearinghouseState struct {
	MarginSummary  marginSummary   `json:"marginSummary"`
	Withdrawable   string          `json:"withdrawable"`
	AssetPositions []assetPosition `json:"assetPositions"`
}

type marginSummary struct {
	AccountValue    string `json:"accountValue"`
	TotalMarginUsed string `json:"totalMarginUsed"`
}

type assetPosition struct {
	Position rawPosition `json:"position"`
}

// rawPosition is one perp position. Szi is signed: negative means short.
type rawPosition struct {
	Coin          string `json:"coin"`
	Szi           string `json:"szi"`
	EntryPx       string `json:"entryPx"`
	PositionValue string `json:"positionValue"`
	UnrealizedPnl string `json:"unrealizedPnl"`
	MarginUsed    string `json:"marginUsed"`
}

// orderStatusResponse is the response to an orderStatus query.
type orderStatusResponse struct {
	Status string          `json:"status"` // "order" or "unknownOid"
	Order  orderStatusBody `json:"order"`
}

type orderStatusBody struct {
	Order  rawOrder `json:"order"`
	Status string   `json:"status"` // open, filled, canceled, rejected
}

// rawOrder is the order detail inside an orderStatus response. Sz is the
// remaining size; OrigSz the original.
type rawOrder struct {
	Coin       string `json:"coin"`
	Side       string `json:"side"` // "B" bid, "A" ask
	LimitPx    string `json:"limitPx"`
	Sz         string `json:"sz"`
	OrigSz     string `json:"origSz"`
	Oid        int64  `json:"oid"`
	Timestamp  int64  `json:"timestamp"`
	ReduceOnly bool   `json:"reduceOnly"`
}

// --------------------------------------------------------------------------
// /exchange wire types.
// --------------------------------------------------------------------------

// orderAction is the payload of a place-order action.
type orderAction struct {
	Type     string      `json:"type"` // "order"
	Orders   []wireOrder `json:"orders"`
	Grouping string      `json:"grouping"` // "na"
}

type wireOrder struct {
	Asset      int       `json:"a"`
	IsBuy      bool      `json:"b"`
	Price      string    `json:"p"`
	Size       string    `json:"s"`
	ReduceOnly bool      `json:"r"`
	Type       orderType `json:"t"`
}

type orderType struct {
	Limit *limitType `json:"limit,omitempty"`
}

// limitType selects the time-in-force: "Gtc", "Ioc", or "Alo" (post-only).
type limitType struct {
	Tif string `json:"tif"`
}

// cancelAction is the payload of a cancel action.
type cancelAction struct {
	Type    string       `json:"type"` // "cancel"
	Cancels []wireCancel `json:"cancels"`
}

type wireCancel struct {
	Asset int   `json:"a"`
	Oid   int64 `json:"o"`
}

// exchangeRequest wraps a signed action for POST /exchange.
type exchangeRequest struct {
	Action    json.RawMessage `json:"action"`
	Nonce     int64           `json:"nonce"`
	Signature string          `json:"signature"`
}

// exchangeResponse is the top-level response from POST /exchange.
type exchangeResponse struct {
	Status   string           `json:"status"` // "ok" or "err"
	Response exchangeRespBody `json:"response"`
}

type exchangeRespBody struct {
	Type string           `json:"type"`
	Data exchangeRespData `json:"data"`
}

type exchangeRespData struct {
	Statuses []orderStatusWire `json:"statuses"`
}

// orderStatusWire is the per-order outcome inside an exchange response.
// Exactly one of Resting, Filled, or Error is populated.
type orderStatusWire struct {
	Resting *restingStatus `json:"resting,omitempty"`
	Filled  *filledStatus  `json:"filled,omitempty"`
	Error   string         `json:"error,omitempty"`
}

type restingStatus struct {
	Oid int64 `json:"oid"`
}

type filledStatus struct {
	Oid     int64  `json:"oid"`
	TotalSz string `json:"totalSz"`
	AvgPx   string `json:"avgPx"`
}
