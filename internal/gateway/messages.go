// Package gateway is the TCP front door to the matching engine: it frames
// and parses the wire protocol, reads client submissions off a worker pool,
// and reports execution results and errors back to the originating
// connection.
//
// Grounded in the teacher's internal/net/messages.go (the length-prefixed,
// big-endian MessageType-tagged framing and the Report wire type), adapted
// from fixed 4-byte tickers and float64-bits prices to variable-length
// symbols and decimal strings so the wire format never loses the precision
// common.Order and common.Trade carry.
package gateway

import (
	"encoding/binary"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrInvalidMessageType is returned by parseMessage for an unrecognized
	// or malformed MessageType tag.
	ErrInvalidMessageType = errors.New("gateway: invalid message type")
	// ErrMessageTooShort is returned when a frame is shorter than its
	// declared field lengths require.
	ErrMessageTooShort = errors.New("gateway: message too short")
)

// MessageType tags an inbound client frame.
type MessageType uint16

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
)

// ReportType tags an outbound server frame.
type ReportType uint8

const (
	ExecutionReport ReportType = iota
	AckReport
	ErrorReport
)

// BaseMessageHeaderLen is the shared 2-byte MessageType tag every inbound
// frame starts with.
const BaseMessageHeaderLen = 2

// Message is any parsed inbound frame.
type Message interface {
	Type() MessageType
}

type baseMessage struct {
	typeOf MessageType
}

func (m baseMessage) Type() MessageType { return m.typeOf }

// NewOrderMessage is the wire form of a new-order submission. Side and
// OrderType reuse common's int-backed enum encodings directly as single
// bytes; Price, Quantity and ClientTag are length-prefixed so a decimal
// string of any precision round-trips exactly.
type NewOrderMessage struct {
	baseMessage
	Side      uint8
	OrderType uint8
	Symbol    string
	Price     string
	Quantity  string
	ClientTag string
	hasTag    bool
}

func parseNewOrder(msg []byte) (NewOrderMessage, error) {
	m := NewOrderMessage{baseMessage: baseMessage{typeOf: NewOrder}}

	if len(msg) < 2 {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m.Side = msg[0]
	m.OrderType = msg[1]
	off := 2

	var ok bool
	m.Symbol, off, ok = readLenPrefixed8(msg, off)
	if !ok {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m.Price, off, ok = readLenPrefixed16(msg, off)
	if !ok {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m.Quantity, off, ok = readLenPrefixed16(msg, off)
	if !ok {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m.ClientTag, _, ok = readLenPrefixed16(msg, off)
	if !ok {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m.hasTag = m.ClientTag != ""
	return m, nil
}

// Serialize encodes a NewOrderMessage for a client to send.
func (m NewOrderMessage) Serialize() []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, 0, 0) // MessageType patched below
	binary.BigEndian.PutUint16(buf[0:2], uint16(NewOrder))
	buf = append(buf, m.Side, m.OrderType)
	buf = appendLenPrefixed8(buf, m.Symbol)
	buf = appendLenPrefixed16(buf, m.Price)
	buf = appendLenPrefixed16(buf, m.Quantity)
	buf = appendLenPrefixed16(buf, m.ClientTag)
	return buf
}

// CancelOrderMessage is the wire form of a cancel request.
type CancelOrderMessage struct {
	baseMessage
	OrderID uuid.UUID
	Symbol  string
}

func parseCancelOrder(msg []byte) (CancelOrderMessage, error) {
	m := CancelOrderMessage{baseMessage: baseMessage{typeOf: CancelOrder}}
	if len(msg) < 16 {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	id, err := uuid.FromBytes(msg[:16])
	if err != nil {
		return CancelOrderMessage{}, err
	}
	m.OrderID = id

	symbol, _, ok := readLenPrefixed8(msg, 16)
	if !ok {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	m.Symbol = symbol
	return m, nil
}

// Serialize encodes a CancelOrderMessage for a client to send.
func (m CancelOrderMessage) Serialize() []byte {
	buf := make([]byte, 2, 32)
	binary.BigEndian.PutUint16(buf[0:2], uint16(CancelOrder))
	idBytes, _ := m.OrderID.MarshalBinary()
	buf = append(buf, idBytes...)
	buf = appendLenPrefixed8(buf, m.Symbol)
	return buf
}

// parseMessage dispatches on the leading MessageType tag.
func parseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return nil, ErrMessageTooShort
	}
	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	body := msg[2:]
	switch typeOf {
	case NewOrder:
		return parseNewOrder(body)
	case CancelOrder:
		return parseCancelOrder(body)
	default:
		return nil, ErrInvalidMessageType
	}
}

// Report is the wire form of an outbound server message: an execution
// report, a plain acknowledgement, or an error, keyed by Kind.
type Report struct {
	Kind        ReportType
	OrderID     uuid.UUID
	Symbol      string
	Side        uint8
	Status      uint8
	Price       string
	Quantity    string
	Filled      string
	CounterTag  string
	Err         string
}

// Serialize packs a Report into its wire form.
func (r Report) Serialize() []byte {
	buf := make([]byte, 1, 96)
	buf[0] = byte(r.Kind)

	switch r.Kind {
	case ErrorReport:
		buf = appendLenPrefixed16(buf, r.Err)
	case AckReport:
		idBytes, _ := r.OrderID.MarshalBinary()
		buf = append(buf, idBytes...)
		buf = append(buf, r.Status)
		buf = appendLenPrefixed8(buf, r.Symbol)
		buf = appendLenPrefixed16(buf, r.Price)
		buf = appendLenPrefixed16(buf, r.Quantity)
		buf = appendLenPrefixed16(buf, r.Filled)
	case ExecutionReport:
		idBytes, _ := r.OrderID.MarshalBinary()
		buf = append(buf, idBytes...)
		buf = append(buf, r.Side)
		buf = appendLenPrefixed8(buf, r.Symbol)
		buf = appendLenPrefixed16(buf, r.Price)
		buf = appendLenPrefixed16(buf, r.Quantity)
		buf = appendLenPrefixed16(buf, r.CounterTag)
	}
	return buf
}

func appendLenPrefixed8(buf []byte, s string) []byte {
	buf = append(buf, uint8(len(s)))
	return append(buf, s...)
}

func readLenPrefixed8(msg []byte, off int) (string, int, bool) {
	if off >= len(msg) {
		return "", off, false
	}
	n := int(msg[off])
	off++
	if off+n > len(msg) {
		return "", off, false
	}
	return string(msg[off : off+n]), off + n, true
}

func appendLenPrefixed16(buf []byte, s string) []byte {
	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(len(s)))
	buf = append(buf, lenBuf...)
	return append(buf, s...)
}

func readLenPrefixed16(msg []byte, off int) (string, int, bool) {
	if off+2 > len(msg) {
		return "", off, false
	}
	n := int(binary.BigEndian.Uint16(msg[off : off+2]))
	off += 2
	if off+n > len(msg) {
		return "", off, false
	}
	return string(msg[off : off+n]), off + n, true
}
