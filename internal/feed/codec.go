package feed

import (
	"encoding/binary"
	"math"

	"github.com/yanun0323/errors"

	"marketfeed/pkg/exception"
)

// Wire layout: 1-byte exchange code, int32 LE scrip code, int32 LE
// timestamp (seconds since the feed epoch), 1-byte message type, then a
// 20-byte type-specific body.
const (
	FrameSize  = 30
	headerSize = 10
	bodySize   = FrameSize - headerSize
)

const (
	msgTypeLTP            = 'A'
	msgTypeDepthFirst     = 'B'
	msgTypeDepthLast      = 'F'
	msgTypeOHLC           = 'G'
	msgTypeHeartbeat      = '1'
	msgTypeLogin          = 'Q'
	msgTypeSubscribe      = 'D'
	subscribeAddFlag      = 1
	subscribeRemoveFlag   = 0
	instrumentClassNormal = 'C'
)

const (
	loginFrameSize      = 64
	loginUserWidthShort = 15
	loginUserWidthLong  = 30
	loginVersionWidth   = 10
	loginVersion        = "MBP.1.1.0"
	subscribeFrameSize  = 8
)

// DecodeFrame turns one aligned 30-byte frame into a typed packet.
// A wrong frame length is a framing error; a truncated body for a known
// type is a decode error. Unknown message types are not errors.
func DecodeFrame(frame []byte) (Packet, error) {
	if len(frame) != FrameSize {
		return Packet{}, errors.Wrapf(exception.ErrFraming, "got %d bytes", len(frame))
	}

	scrip := int32(binary.LittleEndian.Uint32(frame[1:5]))
	pkt := Packet{
		Exchange: resolveExchange(frame[0], scrip),
		Scrip:    scrip,
		Time:     FeedTime(int32(binary.LittleEndian.Uint32(frame[5:9]))),
		MsgType:  frame[9],
	}
	body := frame[headerSize:]

	switch pkt.MsgType {
	case msgTypeLTP:
		ltp, err := decodeLTP(body)
		if err != nil {
			return Packet{}, err
		}
		pkt.Kind = KindLTP
		pkt.LTP = ltp
	case 'B', 'C', 'D', 'E', 'F':
		depth, err := decodeDepth(body, int(pkt.MsgType-msgTypeDepthFirst)+1)
		if err != nil {
			return Packet{}, err
		}
		pkt.Kind = KindDepth
		pkt.Depth = depth
	case msgTypeOHLC:
		ohlc, err := decodeOHLC(body)
		if err != nil {
			return Packet{}, err
		}
		pkt.Kind = KindOHLC
		pkt.OHLC = ohlc
	case msgTypeHeartbeat:
		pkt.Kind = KindHeartbeat
	default:
		pkt.Kind = KindUnknown
	}
	return pkt, nil
}

func decodeLTP(body []byte) (LTP, error) {
	if len(body) < 20 {
		return LTP{}, errors.Wrapf(exception.ErrShortBody, "ltp body %d bytes", len(body))
	}
	return LTP{
		Rate:          round2(float64(math.Float32frombits(binary.LittleEndian.Uint32(body[0:4])))),
		Qty:           int32(binary.LittleEndian.Uint32(body[4:8])),
		CumulativeQty: int32(binary.LittleEndian.Uint32(body[8:12])),
		AvgTradePrice: round2(float64(math.Float32frombits(binary.LittleEndian.Uint32(body[12:16])))),
		OpenInterest:  int32(binary.LittleEndian.Uint32(body[16:20])),
	}, nil
}

func decodeDepth(body []byte, level int) (Depth, error) {
	if len(body) < 20 {
		return Depth{}, errors.Wrapf(exception.ErrShortBody, "depth body %d bytes", len(body))
	}
	return Depth{
		Level:       level,
		BidRate:     round2(float64(math.Float32frombits(binary.LittleEndian.Uint32(body[0:4])))),
		BidQty:      int32(binary.LittleEndian.Uint32(body[4:8])),
		BidOrders:   int16(binary.LittleEndian.Uint16(body[8:10])),
		OfferRate:   round2(float64(math.Float32frombits(binary.LittleEndian.Uint32(body[10:14])))),
		OfferQty:    int32(binary.LittleEndian.Uint32(body[14:18])),
		OfferOrders: int16(binary.LittleEndian.Uint16(body[18:20])),
	}, nil
}

func decodeOHLC(body []byte) (OHLC, error) {
	if len(body) < 16 {
		return OHLC{}, errors.Wrapf(exception.ErrShortBody, "ohlc body %d bytes", len(body))
	}
	return OHLC{
		Open:      round2(float64(math.Float32frombits(binary.LittleEndian.Uint32(body[0:4])))),
		High:      round2(float64(math.Float32frombits(binary.LittleEndian.Uint32(body[4:8])))),
		Low:       round2(float64(math.Float32frombits(binary.LittleEndian.Uint32(body[8:12])))),
		PrevClose: round2(float64(math.Float32frombits(binary.LittleEndian.Uint32(body[12:16])))),
	}, nil
}

// EncodeLogin builds the fixed-size login frame for an account: message
// type 'Q', the account id space-padded at two widths, the protocol
// version space-padded, flag bytes, zero padding to the frame size.
func EncodeLogin(accountID string) []byte {
	buf := make([]byte, loginFrameSize)
	buf[0] = msgTypeLogin
	padInto(buf[1:1+loginUserWidthShort], accountID)
	padInto(buf[16:16+loginUserWidthLong], accountID)
	padInto(buf[46:46+loginVersionWidth], loginVersion)
	buf[56] = 1
	buf[57] = 0
	return buf
}

// EncodeSubscribe builds a wire registration frame: message type 'D',
// exchange byte, instrument-class byte, int32 LE scrip code and a 1-byte
// add/remove flag.
func EncodeSubscribe(exchCode byte, scrip int32, add bool) []byte {
	buf := make([]byte, subscribeFrameSize)
	buf[0] = msgTypeSubscribe
	buf[1] = exchCode
	buf[2] = instrumentClassNormal
	binary.LittleEndian.PutUint32(buf[3:7], uint32(scrip))
	if add {
		buf[7] = subscribeAddFlag
	} else {
		buf[7] = subscribeRemoveFlag
	}
	return buf
}

// EncodeHeartbeatReply answers a broker heartbeat: the type byte alone.
func EncodeHeartbeatReply() []byte {
	return []byte{msgTypeHeartbeat}
}

func padInto(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = ' '
	}
}
