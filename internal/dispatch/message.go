package dispatch

import (
	"time"

	"marketfeed/internal/feed"
	"marketfeed/internal/tokenref"
)

// Message is the outbound payload handed to the delivery collaborator.
// Field names follow the client wire contract; per-kind fields are nil
// when they do not apply.
type Message struct {
	Symbol    string `json:"symbol"`
	TokenID   int32  `json:"token_id"`
	Exchange  string `json:"exchange"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`

	LTP      *float64 `json:"ltp,omitempty"`
	Volume   *int32   `json:"volume,omitempty"`
	AvgPrice *float64 `json:"avg_price,omitempty"`

	Level    *int     `json:"level,omitempty"`
	BidPrice *float64 `json:"bid_price,omitempty"`
	BidQty   *int32   `json:"bid_qty,omitempty"`
	AskPrice *float64 `json:"ask_price,omitempty"`
	AskQty   *int32   `json:"ask_qty,omitempty"`

	Open  *float64 `json:"open,omitempty"`
	High  *float64 `json:"high,omitempty"`
	Low   *float64 `json:"low,omitempty"`
	Close *float64 `json:"close,omitempty"`
}

const (
	msgTypeLTP      = "LTP"
	msgTypeDepth    = "MarketDepth"
	msgTypeOHLC     = "OHLC"
	msgTypeSnapshot = "current_price"
)

func buildMessage(token tokenref.Token, pkt feed.Packet) (Message, bool) {
	msg := Message{
		Symbol:    token.Symbol,
		TokenID:   token.ID,
		Exchange:  token.Exchange,
		Timestamp: pkt.Time.Format(time.RFC3339),
	}
	switch pkt.Kind {
	case feed.KindLTP:
		msg.Type = msgTypeLTP
		msg.LTP = f64(pkt.LTP.Rate)
		msg.Volume = i32(pkt.LTP.Qty)
		msg.AvgPrice = f64(pkt.LTP.AvgTradePrice)
	case feed.KindDepth:
		msg.Type = msgTypeDepth
		msg.Level = iptr(pkt.Depth.Level)
		msg.BidPrice = f64(pkt.Depth.BidRate)
		msg.BidQty = i32(pkt.Depth.BidQty)
		msg.AskPrice = f64(pkt.Depth.OfferRate)
		msg.AskQty = i32(pkt.Depth.OfferQty)
	case feed.KindOHLC:
		msg.Type = msgTypeOHLC
		msg.Open = f64(pkt.OHLC.Open)
		msg.High = f64(pkt.OHLC.High)
		msg.Low = f64(pkt.OHLC.Low)
		msg.Close = f64(pkt.OHLC.PrevClose)
	default:
		return Message{}, false
	}
	return msg, true
}

func snapshotMessage(token tokenref.Token, point PricePoint) Message {
	return Message{
		Symbol:    token.Symbol,
		TokenID:   token.ID,
		Exchange:  token.Exchange,
		Type:      msgTypeSnapshot,
		Timestamp: point.Time.Format(time.RFC3339),
		LTP:       f64(point.Rate),
	}
}

func f64(v float64) *float64 { return &v }
func i32(v int32) *int32     { return &v }
func iptr(v int) *int        { return &v }
