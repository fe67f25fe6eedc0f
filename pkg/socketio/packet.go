// Package socketio реализует минимальный кодек Engine.IO v3 / Socket.IO v2
// поверх текстовых websocket фреймов: open, ping/pong, подключение к namespace и события.
package socketio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// EngineType тип пакета Engine.IO
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

// SocketType тип пакета Socket.IO внутри EngineMessage
type SocketType byte

const (
	SocketConnect    SocketType = '0'
	SocketDisconnect SocketType = '1'
	SocketEvent      SocketType = '2'
	SocketAck        SocketType = '3'
	SocketError      SocketType = '4'
)

var (
	ErrEmptyFrame = errors.New("socketio: empty frame")
	ErrBadFrame   = errors.New("socketio: malformed frame")
	ErrNotEvent   = errors.New("socketio: frame is not an event")
)

// Frame разобранный текстовый фрейм
type Frame struct {
	Engine    EngineType
	Socket    SocketType // только для EngineMessage
	Namespace string     // "/" если не указан
	AckID     int        // -1 если нет
	Data      []byte
}

// Handshake содержимое пакета open
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
}

func (h Handshake) Interval() time.Duration { return time.Duration(h.PingInterval) * time.Millisecond }
func (h Handshake) Timeout() time.Duration  { return time.Duration(h.PingTimeout) * time.Millisecond }

// Parse разбирает фрейм вида `42/market,["add_order",{...}]`
func Parse(raw []byte) (Frame, error) {
	if len(raw) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	f := Frame{Engine: EngineType(raw[0]), Namespace: "/", AckID: -1}
	if f.Engine < EngineOpen || f.Engine > EngineNoop {
		return Frame{}, fmt.Errorf("%w: engine type %q", ErrBadFrame, raw[0])
	}
	rest := raw[1:]
	if f.Engine != EngineMessage {
		f.Data = rest
		return f, nil
	}

	if len(rest) == 0 {
		return Frame{}, fmt.Errorf("%w: missing socket type", ErrBadFrame)
	}
	f.Socket = SocketType(rest[0])
	if f.Socket < SocketConnect || f.Socket > SocketError {
		return Frame{}, fmt.Errorf("%w: socket type %q", ErrBadFrame, rest[0])
	}
	rest = rest[1:]

	if len(rest) > 0 && rest[0] == '/' {
		end := bytes.IndexByte(rest, ',')
		if end < 0 {
			f.Namespace = string(rest)
			rest = nil
		} else {
			f.Namespace = string(rest[:end])
			rest = rest[end+1:]
		}
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(string(rest[:digits]))
		if err != nil {
			return Frame{}, fmt.Errorf("%w: ack id: %v", ErrBadFrame, err)
		}
		f.AckID = id
		rest = rest[digits:]
	}
	f.Data = rest
	return f, nil
}

// Handshake разбирает данные пакета open
func (f Frame) Handshake() (Handshake, error) {
	var h Handshake
	if f.Engine != EngineOpen {
		return h, fmt.Errorf("%w: not an open packet", ErrBadFrame)
	}
	if err := json.Unmarshal(f.Data, &h); err != nil {
		return h, fmt.Errorf("%w: handshake: %v", ErrBadFrame, err)
	}
	return h, nil
}

// Event возвращает имя события и его аргументы
func (f Frame) Event() (string, []json.RawMessage, error) {
	if f.Engine != EngineMessage || f.Socket != SocketEvent {
		return "", nil, ErrNotEvent
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(f.Data, &parts); err != nil {
		return "", nil, fmt.Errorf("%w: event payload: %v", ErrBadFrame, err)
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("%w: event without name", ErrBadFrame)
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: event name: %v", ErrBadFrame, err)
	}
	return name, parts[1:], nil
}

func nsPrefix(namespace string) string {
	if namespace == "" || namespace == "/" {
		return ""
	}
	return namespace + ","
}

// EncodeConnect пакет подключения к namespace
func EncodeConnect(namespace string) []byte {
	return []byte(string(EngineMessage) + string(SocketConnect) + nsPrefix(namespace))
}

// EncodeEvent кодирует emit(name, args...) в namespace
func EncodeEvent(namespace, name string, args ...interface{}) ([]byte, error) {
	payload := make([]interface{}, 0, len(args)+1)
	payload = append(payload, name)
	payload = append(payload, args...)
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	head := string(EngineMessage) + string(SocketEvent) + nsPrefix(namespace)
	return append([]byte(head), data...), nil
}

func EncodePing() []byte { return []byte{byte(EnginePing)} }
func EncodePong() []byte { return []byte{byte(EnginePong)} }
