package protocol

import (
	"github.com/manpreetbhatti/readtrail/internal/history"
	"github.com/manpreetbhatti/readtrail/internal/room"
)

// RoomUsers maps connection id to presence for everyone already in the room.
type RoomUsers map[string]room.Presence

// HistoricalPaths is sent to a joining reader.
type HistoricalPaths struct {
	Paths []history.PathEntry `json:"paths"`
}

// SavedSelectedPaths is sent to a joining reader.
type SavedSelectedPaths struct {
	SelectedPaths []history.SelectionEntry `json:"selectedPaths"`
}

// UserMoved is broadcast to the rest of the room on every move.
type UserMoved struct {
	ID             string `json:"id"`
	Color          string `json:"color"`
	Instrument     string `json:"instrument"`
	Position       int    `json:"position"`
	Line           int    `json:"line"`
	PositionInLine int    `json:"positionInLine"`
}

// SelectReceive is broadcast to the rest of the room on every selection.
type SelectReceive struct {
	ID             string `json:"id"`
	Color          string `json:"color"`
	Position       int    `json:"position"`
	Line           int    `json:"line"`
	PositionInLine int    `json:"positionInLine"`
	Text           string `json:"text"`
}

func NewHistoricalPaths(paths []history.PathEntry) HistoricalPaths {
	if paths == nil {
		paths = []history.PathEntry{}
	}
	return HistoricalPaths{Paths: paths}
}

func NewSavedSelectedPaths(selections []history.SelectionEntry) SavedSelectedPaths {
	if selections == nil {
		selections = []history.SelectionEntry{}
	}
	return SavedSelectedPaths{SelectedPaths: selections}
}
