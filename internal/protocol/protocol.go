// Package protocol defines the JSON event frames exchanged with readers.
//
// Every WebSocket text message is an envelope {"event": name, "data": payload}.
// Inbound frames are decoded into one typed value per event and validated
// here, so the hub never sees a payload with missing fields.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Inbound event names
const (
	EventJoinRoom          = "join-room"
	EventMove              = "move"
	EventSelectEmit        = "select-emit"
	EventSavePath          = "save-path"
	EventSaveSelectedWords = "save-selected-words"
)

// Outbound event names
const (
	EventUserColor          = "user-color"
	EventUserInstrument     = "user-instrument"
	EventRoomUsers          = "room-users"
	EventHistoricalPaths    = "historical-paths"
	EventSavedSelectedPaths = "saved-selected-paths"
	EventUserJoined         = "user-joined"
	EventUserMoved          = "user-moved"
	EventSelectReceive      = "select-receive"
	EventUserLeft           = "user-left"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrMalformed    = errors.New("malformed payload")
)

// Envelope is the frame wrapper in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is one decoded client event.
type Inbound interface {
	EventName() string
}

// JoinRoom asks to enter a room. On the wire the payload is the bare room id.
type JoinRoom struct {
	RoomID string
}

// Move reports the reader's new word position.
type Move struct {
	WordIndex      int
	Line           int
	PositionInLine int
}

// Select reports a word the reader highlighted.
type Select struct {
	WordIndex      int
	Line           int
	PositionInLine int
	Text           string
}

// SavePath stores the reader's visited word indices.
type SavePath struct {
	Path []int
}

// SaveSelectedWords stores the reader's highlighted words.
type SaveSelectedWords struct {
	SelectedWords []string
}

func (JoinRoom) EventName() string          { return EventJoinRoom }
func (Move) EventName() string              { return EventMove }
func (Select) EventName() string            { return EventSelectEmit }
func (SavePath) EventName() string          { return EventSavePath }
func (SaveSelectedWords) EventName() string { return EventSaveSelectedWords }

type positionWire struct {
	WordIndex      *int `json:"wordIndex"`
	Line           *int `json:"line"`
	PositionInLine *int `json:"positionInLine"`
}

func (p positionWire) check() error {
	switch {
	case p.WordIndex == nil:
		return fmt.Errorf("%w: wordIndex is required", ErrMalformed)
	case p.Line == nil:
		return fmt.Errorf("%w: line is required", ErrMalformed)
	case p.PositionInLine == nil:
		return fmt.Errorf("%w: positionInLine is required", ErrMalformed)
	case *p.WordIndex < 0:
		return fmt.Errorf("%w: wordIndex must not be negative", ErrMalformed)
	}
	return nil
}

type selectWire struct {
	positionWire
	Text *string `json:"text"`
}

type savePathWire struct {
	Path *[]int `json:"path"`
}

type saveSelectedWordsWire struct {
	SelectedWords *[]string `json:"selectedWords"`
}

// Decode parses and validates one inbound frame.
func Decode(frame []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if !isInbound(env.Event) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, eventLabel(env.Event))
	}

	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, fmt.Errorf("%w: %s has no data", ErrMalformed, eventLabel(env.Event))
	}

	switch env.Event {
	case EventJoinRoom:
		var roomID string
		if err := json.Unmarshal(data, &roomID); err != nil {
			return nil, fmt.Errorf("%w: room id must be a string", ErrMalformed)
		}
		if strings.TrimSpace(roomID) == "" {
			return nil, fmt.Errorf("%w: room id is empty", ErrMalformed)
		}
		return JoinRoom{RoomID: roomID}, nil

	case EventMove:
		var w positionWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if err := w.check(); err != nil {
			return nil, err
		}
		return Move{WordIndex: *w.WordIndex, Line: *w.Line, PositionInLine: *w.PositionInLine}, nil

	case EventSelectEmit:
		var w selectWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if err := w.check(); err != nil {
			return nil, err
		}
		if w.Text == nil {
			return nil, fmt.Errorf("%w: text is required", ErrMalformed)
		}
		return Select{
			WordIndex:      *w.WordIndex,
			Line:           *w.Line,
			PositionInLine: *w.PositionInLine,
			Text:           *w.Text,
		}, nil

	case EventSavePath:
		var w savePathWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if w.Path == nil {
			return nil, fmt.Errorf("%w: path is required", ErrMalformed)
		}
		return SavePath{Path: *w.Path}, nil

	case EventSaveSelectedWords:
		var w saveSelectedWordsWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if w.SelectedWords == nil {
			return nil, fmt.Errorf("%w: selectedWords is required", ErrMalformed)
		}
		return SaveSelectedWords{SelectedWords: *w.SelectedWords}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, eventLabel(env.Event))
	}
}

func isInbound(name string) bool {
	switch name {
	case EventJoinRoom, EventMove, EventSelectEmit, EventSavePath, EventSaveSelectedWords:
		return true
	}
	return false
}

func eventLabel(name string) string {
	if name == "" {
		return "(empty)"
	}
	return fmt.Sprintf("%q", name)
}

// Encode wraps an outbound payload in an envelope.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
