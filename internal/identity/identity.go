package identity

import (
	"math/rand/v2"
	"sort"
)

// A palette entry: the color shown for a reader and the instrument that
// voices their movement.
type Swatch struct {
	Color      string
	Instrument string
}

// The palette every room draws from. Two colors share "piano".
var DefaultPalette = []Swatch{
	{Color: "#e6194b", Instrument: "piano"},
	{Color: "#3cb44b", Instrument: "guitar"},
	{Color: "#ffe119", Instrument: "marimba"},
	{Color: "#4363d8", Instrument: "flute"},
	{Color: "#f58231", Instrument: "cello"},
	{Color: "#911eb4", Instrument: "violin"},
	{Color: "#46f0f0", Instrument: "harp"},
	{Color: "#f032e6", Instrument: "trumpet"},
	{Color: "#bcf60c", Instrument: "piano"},
	{Color: "#008080", Instrument: "synth"},
}

// Allocator hands out colors per room. It is not safe for concurrent use;
// the hub owns it from a single goroutine.
type Allocator struct {
	palette     []Swatch
	instruments map[string]string
	// Holder count per color per room; degraded mode can hand a color out twice
	used        map[string]map[string]int
	rng         *rand.Rand
}

// Creates an allocator over the given palette. A nil palette selects
// DefaultPalette and a nil rng gets a randomly seeded source.
func NewAllocator(palette []Swatch, rng *rand.Rand) *Allocator {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	instruments := make(map[string]string, len(palette))
	for _, s := range palette {
		instruments[s.Color] = s.Instrument
	}

	return &Allocator{
		palette:     append([]Swatch(nil), palette...),
		instruments: instruments,
		used:        make(map[string]map[string]int),
		rng:         rng,
	}
}

// Allocate picks a color not yet used in the room. Once every palette color
// is taken it falls back to a uniform pick over the whole palette.
func (a *Allocator) Allocate(roomID string) string {
	used, ok := a.used[roomID]
	if !ok {
		used = make(map[string]int)
		a.used[roomID] = used
	}

	available := make([]string, 0, len(a.palette))
	for _, s := range a.palette {
		if _, taken := used[s.Color]; !taken {
			available = append(available, s.Color)
		}
	}

	var color string
	if len(available) > 0 {
		color = available[a.rng.IntN(len(available))]
	} else {
		color = a.palette[a.rng.IntN(len(a.palette))].Color
	}

	used[color]++
	return color
}

// Release drops one holder of a color. The color returns to the room's pool
// once its last holder is gone. Unknown rooms and colors are ignored.
func (a *Allocator) Release(roomID, color string) {
	used, ok := a.used[roomID]
	if !ok {
		return
	}
	if used[color] > 1 {
		used[color]--
		return
	}
	delete(used, color)
	if len(used) == 0 {
		delete(a.used, roomID)
	}
}

// Forget drops every color bookkeeping entry for a room.
func (a *Allocator) Forget(roomID string) {
	delete(a.used, roomID)
}

// InstrumentFor returns the instrument paired with a palette color, or ""
// for a color that did not come from this allocator.
func (a *Allocator) InstrumentFor(color string) string {
	return a.instruments[color]
}

// InUse returns the room's used colors in sorted order.
func (a *Allocator) InUse(roomID string) []string {
	used := a.used[roomID]
	colors := make([]string, 0, len(used))
	for c := range used {
		colors = append(colors, c)
	}
	sort.Strings(colors)
	return colors
}

// tracked reports whether the allocator holds any state for the room.
func (a *Allocator) tracked(roomID string) bool {
	_, ok := a.used[roomID]
	return ok
}

func (a *Allocator) size() int {
	return len(a.palette)
}
