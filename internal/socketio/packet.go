package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// EngineType is the leading digit of every Engine.IO v4 frame.
type EngineType byte

const (
	EngineOpen    EngineType = '0'
	EngineClose   EngineType = '1'
	EnginePing    EngineType = '2'
	EnginePong    EngineType = '3'
	EngineMessage EngineType = '4'
	EngineUpgrade EngineType = '5'
	EngineNoop    EngineType = '6'
)

// PacketType is the Socket.IO v5 packet type carried inside an Engine.IO message.
type PacketType byte

const (
	PacketConnect      PacketType = '0'
	PacketDisconnect   PacketType = '1'
	PacketEvent        PacketType = '2'
	PacketAck          PacketType = '3'
	PacketConnectError PacketType = '4'
	PacketBinaryEvent  PacketType = '5'
	PacketBinaryAck    PacketType = '6'
)

const rootNamespace = "/"

var (
	ErrBinaryUnsupported = errors.New("socketio: binary packets are not supported")
	ErrClosed            = errors.New("socketio: socket closed")
	ErrConnectRejected   = errors.New("socketio: connect rejected by server")
)

// DecodeError reports a frame that could not be parsed.
type DecodeError struct {
	Frame  string
	Reason string
}

func (e *DecodeError) Error() string {
	frame := e.Frame
	if len(frame) > 64 {
		frame = frame[:64] + "..."
	}
	return fmt.Sprintf("socketio: decode %q: %s", frame, e.Reason)
}

// Handshake is the payload of the Engine.IO open frame.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// Packet is a decoded Socket.IO packet.
type Packet struct {
	Type      PacketType
	Namespace string
	// HasID is set when the packet carries an ack id (EVENT expecting an ack, or ACK).
	HasID bool
	ID    uint64
	Data  json.RawMessage
}

// Encode renders p as an Engine.IO message frame.
func (p Packet) Encode() string {
	var b strings.Builder
	b.WriteByte(byte(EngineMessage))
	b.WriteByte(byte(p.Type))
	if p.Namespace != "" && p.Namespace != rootNamespace {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.HasID {
		b.WriteString(strconv.FormatUint(p.ID, 10))
	}
	if len(p.Data) > 0 {
		b.Write(p.Data)
	}
	return b.String()
}

// DecodePacket parses the Socket.IO part of a message frame (without the leading '4').
func DecodePacket(s string) (Packet, error) {
	var p Packet
	if s == "" {
		return p, &DecodeError{Frame: s, Reason: "empty packet"}
	}
	p.Type = PacketType(s[0])
	switch p.Type {
	case PacketConnect, PacketDisconnect, PacketEvent, PacketAck, PacketConnectError:
	case PacketBinaryEvent, PacketBinaryAck:
		return p, ErrBinaryUnsupported
	default:
		return p, &DecodeError{Frame: s, Reason: "unknown packet type"}
	}
	rest := s[1:]

	p.Namespace = rootNamespace
	if strings.HasPrefix(rest, "/") {
		i := strings.IndexByte(rest, ',')
		if i < 0 {
			p.Namespace = rest
			rest = ""
		} else {
			p.Namespace = rest[:i]
			rest = rest[i+1:]
		}
	}

	n := 0
	for n < len(rest) && rest[n] >= '0' && rest[n] <= '9' {
		n++
	}
	if n > 0 {
		id, err := strconv.ParseUint(rest[:n], 10, 64)
		if err != nil {
			return p, &DecodeError{Frame: s, Reason: "bad ack id"}
		}
		p.HasID = true
		p.ID = id
		rest = rest[n:]
	}

	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return p, &DecodeError{Frame: s, Reason: "payload is not valid JSON"}
		}
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// EventPacket builds an EVENT packet for the event name and arguments.
func EventPacket(namespace, event string, args ...any) (Packet, error) {
	payload := make([]any, 0, len(args)+1)
	payload = append(payload, event)
	payload = append(payload, args...)
	data, err := json.Marshal(payload)
	if err != nil {
		return Packet{}, fmt.Errorf("encode event %q: %w", event, err)
	}
	return Packet{Type: PacketEvent, Namespace: namespace, Data: data}, nil
}

// AckPacket builds an ACK packet answering the ack id.
func AckPacket(namespace string, id uint64, args ...any) (Packet, error) {
	if args == nil {
		args = []any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return Packet{}, fmt.Errorf("encode ack %d: %w", id, err)
	}
	return Packet{Type: PacketAck, Namespace: namespace, HasID: true, ID: id, Data: data}, nil
}

// SplitEvent returns the event name and its arguments from an EVENT payload.
func SplitEvent(data json.RawMessage) (string, []json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return "", nil, &DecodeError{Frame: string(data), Reason: "event payload is not an array"}
	}
	if len(items) == 0 {
		return "", nil, &DecodeError{Frame: string(data), Reason: "event payload has no name"}
	}
	var name string
	if err := json.Unmarshal(items[0], &name); err != nil {
		return "", nil, &DecodeError{Frame: string(data), Reason: "event name is not a string"}
	}
	return name, items[1:], nil
}

// SplitArgs returns the elements of an ACK payload.
func SplitArgs(data json.RawMessage) ([]json.RawMessage, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, &DecodeError{Frame: string(data), Reason: "ack payload is not an array"}
	}
	return items, nil
}

// connectErrorMessage extracts the message from a CONNECT_ERROR payload, which is either
// an object with a "message" field or a bare string.
func connectErrorMessage(data json.RawMessage) string {
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	return string(data)
}
