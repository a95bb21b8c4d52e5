// network/protocol.go
package network

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// 客户端 -> 服务端
const (
	EventCreate          = "create"
	EventJoin            = "join"
	EventProblemSelected = "problemSelected"
	EventNavigateBack    = "navigateBack"
	EventMoveDirection   = "moveDirection"
	EventLightLevel      = "lightLevel"
	EventHeading         = "heading"
	EventAudioLevel      = "audioLevel"
	EventShake           = "shake"
	EventMove            = "move"
	EventProblemSolved   = "problemSolved"
)

// 服务端 -> 客户端 (problemSelected, navigateBack, lightLevel, heading,
// audioLevel, shake, move, problemSolved 同名复用)
const (
	EventCode         = "code"
	EventStatus       = "status"
	EventMemberUpdate = "memberUpdate"
	EventPaired       = "paired"
	EventError        = "errorMsg"
	EventMazeState    = "mazeState"
)

var (
	// ErrMalformedFrame marks a text frame that is not a JSON event object.
	// The connection stays open; the frame is dropped.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnknownEvent is returned for frames naming an event nobody handles.
	ErrUnknownEvent = errors.New("unknown event")
)

// Frame is one inbound event: a name plus its raw payload.
//
// Accepted shapes:
//
//	{"event":"join","data":{"room":"ABCDEF","role":"mobile"}}
//	{"type":"join","room":"ABCDEF","role":"mobile"}
type Frame struct {
	Event string
	Data  json.RawMessage
}

type rawFrame struct {
	Event string          `json:"event"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
}

// DecodeFrame 解析一条文本帧
func DecodeFrame(b []byte) (Frame, error) {
	var raw rawFrame
	if err := json.Unmarshal(b, &raw); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if raw.Event != "" {
		return Frame{Event: raw.Event, Data: raw.Data}, nil
	}
	if raw.Type != "" {
		return Frame{Event: raw.Type, Data: json.RawMessage(b)}, nil
	}
	return Frame{}, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
}

// Decode unmarshals the payload into v. A missing or null payload leaves v
// at its zero value.
func (f Frame) Decode(v any) error {
	data := bytes.TrimSpace(f.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedFrame, f.Event, err)
	}
	return nil
}

// NewFrame builds an inbound frame; used by the simulator client and tests.
func NewFrame(event string, payload any) (Frame, error) {
	if payload == nil {
		return Frame{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: data}, nil
}

// Message is one outbound event.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// NewMessage 构造一条下行消息
func NewMessage(event string, data any) Message {
	return Message{Event: event, Data: data}
}
