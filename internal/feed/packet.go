package feed

import (
	"math"
	"time"
)

// Kind discriminates decoded packet variants.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindLTP
	KindDepth
	KindOHLC
	KindHeartbeat
)

func (k Kind) String() string {
	switch k {
	case KindLTP:
		return "ltp"
	case KindDepth:
		return "depth"
	case KindOHLC:
		return "ohlc"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Packet is one decoded frame. Kind selects which variant field carries
// data; the others stay zero.
type Packet struct {
	Kind     Kind
	Exchange string
	Scrip    int32
	Time     time.Time
	MsgType  byte

	LTP   LTP
	Depth Depth
	OHLC  OHLC
}

// LTP is a last-traded-price update.
type LTP struct {
	Rate          float64
	Qty           int32
	CumulativeQty int32
	AvgTradePrice float64
	OpenInterest  int32
}

// Depth is one order-book level, 1 (best) through 5.
type Depth struct {
	Level       int
	BidRate     float64
	BidQty      int32
	BidOrders   int16
	OfferRate   float64
	OfferQty    int32
	OfferOrders int16
}

// OHLC carries the day's open, high, low and previous close.
type OHLC struct {
	Open      float64
	High      float64
	Low       float64
	PrevClose float64
}

// The feed timestamps seconds since 1980-01-01, not the unix epoch.
var feedEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// FeedTime converts a wire timestamp to wall-clock time.
func FeedTime(secs int32) time.Time {
	return feedEpoch.Add(time.Duration(secs) * time.Second)
}

const (
	nseScripMax      = 34999
	nseIndexScripLow = 888801
	nseIndexScripHi  = 888820
)

// resolveExchange maps a wire exchange code to its name. Code 'N' covers
// both the NSE cash segment and NSE derivatives, split by scrip range.
// Unknown codes pass through verbatim.
func resolveExchange(code byte, scrip int32) string {
	switch code {
	case 'N':
		if scrip <= nseScripMax || (scrip >= nseIndexScripLow && scrip <= nseIndexScripHi) {
			return "NSE"
		}
		return "NSEFO"
	case 'B':
		return "BSE"
	case 'M':
		return "MCX"
	case 'D':
		return "NCDEX"
	case 'C':
		return "NSECD"
	case 'G':
		return "BSEFO"
	default:
		return string(code)
	}
}

// exchangeCode is the inverse of resolveExchange for outbound frames.
func exchangeCode(exchange string) (byte, bool) {
	switch exchange {
	case "NSE", "NSEFO":
		return 'N', true
	case "BSE":
		return 'B', true
	case "MCX":
		return 'M', true
	case "NCDEX":
		return 'D', true
	case "NSECD":
		return 'C', true
	case "BSEFO":
		return 'G', true
	default:
		if len(exchange) == 1 {
			return exchange[0], true
		}
		return 0, false
	}
}

// round2 rounds a decoded rate to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
