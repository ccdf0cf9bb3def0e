package protocol

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/manpreetbhatti/readtrail/internal/room"
)

func TestDecodeValidFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Inbound
	}{
		{
			name:  "join",
			frame: `{"event":"join-room","data":"dog"}`,
			want:  JoinRoom{RoomID: "dog"},
		},
		{
			name:  "move",
			frame: `{"event":"move","data":{"wordIndex":5,"line":1,"positionInLine":2}}`,
			want:  Move{WordIndex: 5, Line: 1, PositionInLine: 2},
		},
		{
			name:  "select",
			frame: `{"event":"select-emit","data":{"wordIndex":3,"line":0,"positionInLine":3,"text":"fox"}}`,
			want:  Select{WordIndex: 3, Line: 0, PositionInLine: 3, Text: "fox"},
		},
		{
			name:  "save path",
			frame: `{"event":"save-path","data":{"path":[1,2,3]}}`,
			want:  SavePath{Path: []int{1, 2, 3}},
		},
		{
			name:  "save empty path",
			frame: `{"event":"save-path","data":{"path":[]}}`,
			want:  SavePath{Path: []int{}},
		},
		{
			name:  "save words",
			frame: `{"event":"save-selected-words","data":{"selectedWords":["a","b"]}}`,
			want:  SaveSelectedWords{SelectedWords: []string{"a", "b"}},
		},
		{
			name:  "extra fields ignored",
			frame: `{"event":"move","data":{"wordIndex":0,"line":0,"positionInLine":0,"extra":true}}`,
			want:  Move{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.frame))
			if err != nil {
				t.Fatalf("Decode returned error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode = %#v, want %#v", got, tt.want)
			}
			if got.EventName() != tt.want.EventName() {
				t.Errorf("EventName = %s, want %s", got.EventName(), tt.want.EventName())
			}
		})
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  error
	}{
		{"not json", `nope`, ErrMalformed},
		{"unknown event", `{"event":"dance","data":{}}`, ErrUnknownEvent},
		{"missing event", `{"data":"dog"}`, ErrUnknownEvent},
		{"join without data", `{"event":"join-room"}`, ErrMalformed},
		{"join null", `{"event":"join-room","data":null}`, ErrMalformed},
		{"join number", `{"event":"join-room","data":42}`, ErrMalformed},
		{"join blank", `{"event":"join-room","data":"  "}`, ErrMalformed},
		{"move missing wordIndex", `{"event":"move","data":{"line":1,"positionInLine":2}}`, ErrMalformed},
		{"move missing line", `{"event":"move","data":{"wordIndex":1,"positionInLine":2}}`, ErrMalformed},
		{"move string index", `{"event":"move","data":{"wordIndex":"5","line":1,"positionInLine":2}}`, ErrMalformed},
		{"move negative index", `{"event":"move","data":{"wordIndex":-1,"line":1,"positionInLine":2}}`, ErrMalformed},
		{"select missing text", `{"event":"select-emit","data":{"wordIndex":1,"line":1,"positionInLine":2}}`, ErrMalformed},
		{"save path missing", `{"event":"save-path","data":{}}`, ErrMalformed},
		{"save path wrong type", `{"event":"save-path","data":{"path":["a"]}}`, ErrMalformed},
		{"save words missing", `{"event":"save-selected-words","data":{}}`, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.frame))
			if err == nil {
				t.Fatalf("Expected error, got %#v", got)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestEncodeEnvelope(t *testing.T) {
	frame, err := Encode(EventUserMoved, UserMoved{ID: "x", Color: "red", Instrument: "piano", Position: 5})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var got struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	if err := json.Unmarshal(frame, &got); err != nil {
		t.Fatalf("Failed to decode frame: %v", err)
	}
	if got.Event != EventUserMoved {
		t.Errorf("Expected event %s, got %s", EventUserMoved, got.Event)
	}
	if got.Data["position"] != float64(5) || got.Data["positionInLine"] != float64(0) {
		t.Errorf("Unexpected data: %v", got.Data)
	}
}

func TestEmptyListsEncodeAsArrays(t *testing.T) {
	frame, err := Encode(EventHistoricalPaths, NewHistoricalPaths(nil))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := `{"event":"historical-paths","data":{"paths":[]}}`
	if string(frame) != want {
		t.Errorf("Expected %s, got %s", want, frame)
	}

	frame, _ = Encode(EventSavedSelectedPaths, NewSavedSelectedPaths(nil))
	want = `{"event":"saved-selected-paths","data":{"selectedPaths":[]}}`
	if string(frame) != want {
		t.Errorf("Expected %s, got %s", want, frame)
	}

	frame, _ = Encode(EventRoomUsers, RoomUsers{})
	want = `{"event":"room-users","data":{}}`
	if string(frame) != want {
		t.Errorf("Expected %s, got %s", want, frame)
	}
}

func TestRoomUsersShape(t *testing.T) {
	users := RoomUsers{"x": room.Presence{ID: "x", Color: "red", Instrument: "piano", Position: 2, Trail: []int{1, 2}}}

	frame, _ := Encode(EventRoomUsers, users)
	want := `{"event":"room-users","data":{"x":{"id":"x","color":"red","instrument":"piano","position":2,"trail":[1,2]}}}`
	if string(frame) != want {
		t.Errorf("Expected %s, got %s", want, frame)
	}
}
