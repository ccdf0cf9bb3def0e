// Package history keeps the saved reading path and selected words of every
// reader, per room. Records outlive the reader's connection and the room's
// occupancy; nothing in the core ever deletes them.
package history

import (
	"context"
	"time"
)

// PathEntry is one reader's saved path in a room.
type PathEntry struct {
	UserID string `json:"userId"`
	Color  string `json:"color"`
	Path   []int  `json:"path"`
}

// SelectionEntry is one reader's saved word selection in a room.
type SelectionEntry struct {
	UserID        string   `json:"userId"`
	Color         string   `json:"color"`
	SelectedWords []string `json:"selectedWords"`
}

// Stats summarizes what a store holds.
type Stats struct {
	Rooms   int `json:"rooms"`
	Records int `json:"records"`
}

// Store is the durable record of saved paths and selections.
type Store interface {
	// SavePath replaces the stored path and color for the reader.
	SavePath(ctx context.Context, roomID, userID, color string, path []int) error
	// SaveSelectedWords sets only the selected words, creating an empty-path
	// record when the reader has none yet.
	SaveSelectedWords(ctx context.Context, roomID, userID, color string, words []string) error
	// Paths lists every record in the room in first-save order.
	Paths(ctx context.Context, roomID string) ([]PathEntry, error)
	// SelectedWords lists records with a non-empty selection.
	SelectedWords(ctx context.Context, roomID string) ([]SelectionEntry, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Pruner is implemented by stores that can drop records last saved before
// a cutoff. Only the opt-in retention service uses it.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int, error)
}
