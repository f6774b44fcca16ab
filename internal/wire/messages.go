// Package wire is the binary framing for the engine's TCP protocol: a
// 2-byte big-endian message type header followed by a fixed-layout
// body, generalized from the teacher's internal/net/messages.go
// (float LimitPrice, 4-byte Ticker, string Username) to this spec's
// integer Price/Quantity/OrderId and five-way order kind.
package wire

import (
	"encoding/binary"
	"errors"

	"lobengine/internal/common"
)

var (
	ErrInvalidMessageType = errors.New("wire: invalid message type")
	ErrMessageTooShort    = errors.New("wire: message too short for its declared body")
)

type MessageType uint16

const (
	TypeNewOrder MessageType = iota
	TypeCancelOrder
	TypeModifyOrder
	TypeSnapshotRequest
)

type ReportType uint8

const (
	ReportExecution ReportType = iota
	ReportError
	ReportSnapshot
)

// Header lengths, matching the teacher's "2 + body" layout convention
// (internal/net/messages.go's BaseMessageHeaderLen).
const (
	HeaderLen            = 2
	NewOrderBodyLen      = 1 + 1 + 4 + 4 + 8 // side + kind + price + qty + orderID
	CancelOrderBodyLen   = 8                 // orderID
	ModifyOrderBodyLen   = 8 + 1 + 4 + 4     // orderID + side + price + qty
	SnapshotRequestLen   = 0
	executionReportLen   = 1 + 8 + 8 + 4 + 4 // type + bidID + askID + price + qty
	errorReportHeaderLen = 1 + 4             // type + msgLen
	snapshotHeaderLen    = 1 + 2 + 2         // type + bidCount + askCount
	depthEntryLen        = 4 + 4 + 4         // price + qty + count
)

// Message is any parsed client request.
type Message interface {
	Type() MessageType
}

type NewOrderMessage struct {
	Side     common.Side
	Kind     common.Kind
	Price    common.Price
	Quantity common.Quantity
	OrderID  common.OrderID
}

func (NewOrderMessage) Type() MessageType { return TypeNewOrder }

type CancelOrderMessage struct {
	OrderID common.OrderID
}

func (CancelOrderMessage) Type() MessageType { return TypeCancelOrder }

type ModifyOrderMessage struct {
	OrderID  common.OrderID
	Side     common.Side
	Price    common.Price
	Quantity common.Quantity
}

func (ModifyOrderMessage) Type() MessageType { return TypeModifyOrder }

type SnapshotRequestMessage struct{}

func (SnapshotRequestMessage) Type() MessageType { return TypeSnapshotRequest }

// ParseMessage decodes one framed request from buf.
func ParseMessage(buf []byte) (Message, error) {
	if len(buf) < HeaderLen {
		return nil, ErrMessageTooShort
	}
	typ := MessageType(binary.BigEndian.Uint16(buf[0:2]))
	body := buf[HeaderLen:]

	switch typ {
	case TypeNewOrder:
		return parseNewOrder(body)
	case TypeCancelOrder:
		return parseCancelOrder(body)
	case TypeModifyOrder:
		return parseModifyOrder(body)
	case TypeSnapshotRequest:
		return SnapshotRequestMessage{}, nil
	default:
		return nil, ErrInvalidMessageType
	}
}

func parseNewOrder(body []byte) (NewOrderMessage, error) {
	if len(body) < NewOrderBodyLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	return NewOrderMessage{
		Side:     common.Side(body[0]),
		Kind:     common.Kind(body[1]),
		Price:    common.Price(int32(binary.BigEndian.Uint32(body[2:6]))),
		Quantity: common.Quantity(binary.BigEndian.Uint32(body[6:10])),
		OrderID:  common.OrderID(binary.BigEndian.Uint64(body[10:18])),
	}, nil
}

func parseCancelOrder(body []byte) (CancelOrderMessage, error) {
	if len(body) < CancelOrderBodyLen {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	return CancelOrderMessage{OrderID: common.OrderID(binary.BigEndian.Uint64(body[0:8]))}, nil
}

func parseModifyOrder(body []byte) (ModifyOrderMessage, error) {
	if len(body) < ModifyOrderBodyLen {
		return ModifyOrderMessage{}, ErrMessageTooShort
	}
	return ModifyOrderMessage{
		OrderID:  common.OrderID(binary.BigEndian.Uint64(body[0:8])),
		Side:     common.Side(body[8]),
		Price:    common.Price(int32(binary.BigEndian.Uint32(body[9:13]))),
		Quantity: common.Quantity(binary.BigEndian.Uint32(body[13:17])),
	}, nil
}

// EncodeNewOrder serializes a NewOrderMessage, used by test clients.
func EncodeNewOrder(m NewOrderMessage) []byte {
	buf := make([]byte, HeaderLen+NewOrderBodyLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(TypeNewOrder))
	buf[2] = byte(m.Side)
	buf[3] = byte(m.Kind)
	binary.BigEndian.PutUint32(buf[4:8], uint32(int32(m.Price)))
	binary.BigEndian.PutUint32(buf[8:12], uint32(m.Quantity))
	binary.BigEndian.PutUint64(buf[12:20], uint64(m.OrderID))
	return buf
}

// EncodeCancelOrder serializes a CancelOrderMessage.
func EncodeCancelOrder(m CancelOrderMessage) []byte {
	buf := make([]byte, HeaderLen+CancelOrderBodyLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(TypeCancelOrder))
	binary.BigEndian.PutUint64(buf[2:10], uint64(m.OrderID))
	return buf
}

// EncodeModifyOrder serializes a ModifyOrderMessage.
func EncodeModifyOrder(m ModifyOrderMessage) []byte {
	buf := make([]byte, HeaderLen+ModifyOrderBodyLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(TypeModifyOrder))
	binary.BigEndian.PutUint64(buf[2:10], uint64(m.OrderID))
	buf[10] = byte(m.Side)
	binary.BigEndian.PutUint32(buf[11:15], uint32(int32(m.Price)))
	binary.BigEndian.PutUint32(buf[15:19], uint32(m.Quantity))
	return buf
}

// EncodeSnapshotRequest serializes a bodyless SnapshotRequestMessage.
func EncodeSnapshotRequest() []byte {
	buf := make([]byte, HeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(TypeSnapshotRequest))
	return buf
}

// ExecutionReport is pushed to both participants of a Trade.
type ExecutionReport struct {
	BidOrderID common.OrderID
	AskOrderID common.OrderID
	Price      common.Price
	Quantity   common.Quantity
}

// Serialize encodes an execution report, fixed-width, no variable tail
// (unlike the teacher's Report, which packs a counterparty/error
// string — this protocol reports by order id only and leaves
// presentation to the client).
func (r ExecutionReport) Serialize() []byte {
	buf := make([]byte, executionReportLen)
	buf[0] = byte(ReportExecution)
	binary.BigEndian.PutUint64(buf[1:9], uint64(r.BidOrderID))
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.AskOrderID))
	binary.BigEndian.PutUint32(buf[17:21], uint32(int32(r.Price)))
	binary.BigEndian.PutUint32(buf[21:25], uint32(r.Quantity))
	return buf
}

// EncodeErrorReport frames a rejection reason as a variable-length
// error report, mirroring the teacher's ErrorReport variant of Report.
func EncodeErrorReport(reason string) []byte {
	buf := make([]byte, errorReportHeaderLen+len(reason))
	buf[0] = byte(ReportError)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(reason)))
	copy(buf[errorReportHeaderLen:], reason)
	return buf
}

// DepthEntry is one price level of a SnapshotReport.
type DepthEntry struct {
	Price    common.Price
	Quantity common.Quantity
	Count    uint32
}

// SnapshotReport answers a SnapshotRequestMessage with the book's
// current depth, best-to-worst per side.
type SnapshotReport struct {
	Bids []DepthEntry
	Asks []DepthEntry
}

// Serialize encodes a snapshot report as a variable-length frame: type
// byte, 2-byte bid count, 2-byte ask count, then bid entries followed
// by ask entries, each entry a fixed 12 bytes. Mirrors
// ExecutionReport.Serialize's manual BigEndian layout, extended with a
// length-prefixed tail the way EncodeErrorReport frames its reason.
func (r SnapshotReport) Serialize() []byte {
	buf := make([]byte, snapshotHeaderLen+depthEntryLen*(len(r.Bids)+len(r.Asks)))
	buf[0] = byte(ReportSnapshot)
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(r.Bids)))
	binary.BigEndian.PutUint16(buf[3:5], uint16(len(r.Asks)))

	off := snapshotHeaderLen
	for _, e := range append(append([]DepthEntry{}, r.Bids...), r.Asks...) {
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(int32(e.Price)))
		binary.BigEndian.PutUint32(buf[off+4:off+8], uint32(e.Quantity))
		binary.BigEndian.PutUint32(buf[off+8:off+12], e.Count)
		off += depthEntryLen
	}
	return buf
}
