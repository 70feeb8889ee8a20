package weex

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/Danijel-Enoch/OctoBot-Trading/pkg/exchanges/common"
)

// apiResponse is the envelope every WEEX REST endpoint returns.
type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// orderRow is one order as WEEX reports it over REST or the push feed.
type orderRow struct {
	OrderID       string `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	OrderType     string `json:"orderType"`
	Price         string `json:"price"`
	Quantity      string `json:"quantity"`
	FillQuantity  string `json:"fillQuantity"`
	AvgPrice      string `json:"fillPrice"`
	Status        string `json:"status"`
	CTime         string `json:"cTime"`
	UTime         string `json:"uTime"`
}

// assetRow is one balance row from the assets endpoint or account feed.
type assetRow struct {
	Coin      string `json:"coin"`
	Available string `json:"available"`
	Frozen    string `json:"frozen"`
}

func (r orderRow) toUpdate() common.OrderUpdate {
	ts := r.UTime
	if ts == "" {
		ts = r.CTime
	}
	return common.OrderUpdate{
		ExchangeOrderID: r.OrderID,
		CorrelationID:   r.ClientOrderID,
		Symbol:          fromWeexSymbol(r.Symbol),
		Side:            mapSide(r.Side),
		Type:            mapOrderType(r.OrderType),
		Status:          mapStatus(r.Status),
		Price:           toFloat(r.Price),
		Qty:             toFloat(r.Quantity),
		FilledQty:       toFloat(r.FillQuantity),
		AvgPrice:        toFloat(r.AvgPrice),
		Timestamp:       toTime(ts),
	}
}

func mapSide(s string) common.Side {
	if strings.EqualFold(s, "sell") {
		return common.SideSell
	}
	return common.SideBuy
}

func mapOrderType(s string) common.OrderType {
	switch strings.ToLower(s) {
	case "market":
		return common.OrderTypeMarket
	default:
		return common.OrderTypeLimit
	}
}

func mapStatus(s string) common.OrderStatus {
	switch strings.ToLower(s) {
	case "init", "new", "open":
		return common.StatusNew
	case "partial_fill", "partially_filled":
		return common.StatusPartial
	case "full_fill", "filled":
		return common.StatusFilled
	case "cancelled", "canceled":
		return common.StatusCanceled
	case "rejected":
		return common.StatusRejected
	case "expired":
		return common.StatusExpired
	default:
		return common.StatusUnknown
	}
}

// WEEX spot pairs carry a _SPBL suffix on the wire (BTCUSDT_SPBL).
const spotSuffix = "_SPBL"

func toWeexSymbol(symbol string) string {
	s := strings.ReplaceAll(symbol, "/", "")
	if strings.HasSuffix(s, spotSuffix) {
		return s
	}
	return s + spotSuffix
}

func fromWeexSymbol(symbol string) string {
	return strings.TrimSuffix(symbol, spotSuffix)
}

func toFloat(v string) float64 {
	f, _ := strconv.ParseFloat(v, 64)
	return f
}

func toTime(millis string) time.Time {
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
