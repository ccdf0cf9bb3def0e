package history

import (
	"context"
	"sync"
	"time"
)

type record struct {
	color     string
	path      []int
	words     []string
	updatedAt time.Time
}

type roomRecords struct {
	order   []string
	records map[string]*record
}

// Memory is a Store backed by maps. Reads return copies.
type Memory struct {
	rooms map[string]*roomRecords
	now   func() time.Time
	mu    sync.RWMutex
}

var (
	_ Store  = (*Memory)(nil)
	_ Pruner = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		rooms: make(map[string]*roomRecords),
		now:   time.Now,
	}
}

func (m *Memory) upsert(roomID, userID, color string) (*record, bool) {
	rr, ok := m.rooms[roomID]
	if !ok {
		rr = &roomRecords{records: make(map[string]*record)}
		m.rooms[roomID] = rr
	}

	rec, ok := rr.records[userID]
	if ok {
		return rec, false
	}
	rec = &record{color: color, path: []int{}}
	rr.records[userID] = rec
	rr.order = append(rr.order, userID)
	return rec, true
}

func (m *Memory) SavePath(_ context.Context, roomID, userID, color string, path []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, _ := m.upsert(roomID, userID, color)
	rec.color = color
	rec.path = append(make([]int, 0, len(path)), path...)
	rec.updatedAt = m.now()
	return nil
}

func (m *Memory) SaveSelectedWords(_ context.Context, roomID, userID, color string, words []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, _ := m.upsert(roomID, userID, color)
	rec.words = append(make([]string, 0, len(words)), words...)
	rec.updatedAt = m.now()
	return nil
}

func (m *Memory) Paths(_ context.Context, roomID string) ([]PathEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []PathEntry{}
	rr, ok := m.rooms[roomID]
	if !ok {
		return out, nil
	}
	for _, id := range rr.order {
		rec := rr.records[id]
		out = append(out, PathEntry{
			UserID: id,
			Color:  rec.color,
			Path:   append(make([]int, 0, len(rec.path)), rec.path...),
		})
	}
	return out, nil
}

func (m *Memory) SelectedWords(_ context.Context, roomID string) ([]SelectionEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []SelectionEntry{}
	rr, ok := m.rooms[roomID]
	if !ok {
		return out, nil
	}
	for _, id := range rr.order {
		rec := rr.records[id]
		if len(rec.words) == 0 {
			continue
		}
		out = append(out, SelectionEntry{
			UserID:        id,
			Color:         rec.color,
			SelectedWords: append(make([]string, 0, len(rec.words)), rec.words...),
		})
	}
	return out, nil
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{Rooms: len(m.rooms)}
	for _, rr := range m.rooms {
		s.Records += len(rr.records)
	}
	return s, nil
}

// PruneBefore drops records whose last save is older than cutoff.
func (m *Memory) PruneBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for roomID, rr := range m.rooms {
		kept := rr.order[:0]
		for _, id := range rr.order {
			if rr.records[id].updatedAt.Before(cutoff) {
				delete(rr.records, id)
				removed++
				continue
			}
			kept = append(kept, id)
		}
		rr.order = kept
		if len(rr.order) == 0 {
			delete(m.rooms, roomID)
		}
	}
	return removed, nil
}

func (m *Memory) Close() error {
	return nil
}
