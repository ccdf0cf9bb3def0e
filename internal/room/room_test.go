package room

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/manpreetbhatti/readtrail/internal/identity"
)

func newTestRegistry() *Registry {
	return NewRegistry(identity.NewAllocator(nil, rand.New(rand.NewPCG(7, 8))))
}

func TestJoinCreatesRoomAndPresence(t *testing.T) {
	reg := newTestRegistry()

	res := reg.Join("dog", "conn-1")

	if !reg.exists("dog") {
		t.Fatal("Room should exist after first join")
	}
	if res.Presence.ID != "conn-1" {
		t.Errorf("Expected presence id conn-1, got %s", res.Presence.ID)
	}
	if res.Presence.Position != 0 || len(res.Presence.Trail) != 0 {
		t.Errorf("Expected fresh presence, got position %d trail %v", res.Presence.Position, res.Presence.Trail)
	}
	if res.Presence.Instrument != reg.Colors().InstrumentFor(res.Presence.Color) {
		t.Error("Instrument should be paired with the allocated color")
	}
	if len(res.Others) != 0 {
		t.Errorf("First joiner should see nobody else, got %d", len(res.Others))
	}
	if res.Departed != nil {
		t.Error("First join should not depart any room")
	}
}

func TestJoinReportsOthers(t *testing.T) {
	reg := newTestRegistry()

	first := reg.Join("dog", "x")
	second := reg.Join("dog", "y")

	if len(second.Others) != 1 {
		t.Fatalf("Expected 1 other presence, got %d", len(second.Others))
	}
	other, ok := second.Others["x"]
	if !ok {
		t.Fatal("Second joiner should see x")
	}
	if other.Color != first.Presence.Color {
		t.Errorf("Expected x's color %s, got %s", first.Presence.Color, other.Color)
	}
	if first.Presence.Color == second.Presence.Color {
		t.Error("Two readers in one room should not share a color")
	}
}

func TestLastLeaveDestroysRoom(t *testing.T) {
	reg := newTestRegistry()

	reg.Join("dog", "x")
	reg.Join("dog", "y")

	d, ok := reg.Leave("dog", "x")
	if !ok || d.Closed {
		t.Fatalf("First leave should succeed without closing room, got ok=%v closed=%v", ok, d.Closed)
	}
	if !reg.exists("dog") {
		t.Fatal("Room should survive while y remains")
	}

	d, ok = reg.Leave("dog", "y")
	if !ok || !d.Closed {
		t.Fatalf("Last leave should close the room, got ok=%v closed=%v", ok, d.Closed)
	}
	if reg.exists("dog") {
		t.Error("Empty room should be deleted")
	}
	if len(reg.Colors().InUse("dog")) != 0 {
		t.Error("Color bookkeeping should be dropped with the room")
	}
	if reg.RoomCount() != 0 || reg.ParticipantCount() != 0 {
		t.Errorf("Expected empty registry, got %d rooms %d participants", reg.RoomCount(), reg.ParticipantCount())
	}
}

func TestLeaveUnknownIsNoop(t *testing.T) {
	reg := newTestRegistry()
	reg.Join("dog", "x")

	if _, ok := reg.Leave("cat", "x"); ok {
		t.Error("Leaving a room the connection is not in should report false")
	}
	if _, ok := reg.Leave("dog", "ghost"); ok {
		t.Error("Leaving with an unknown connection should report false")
	}
	if _, ok := reg.LeaveAll("ghost"); ok {
		t.Error("LeaveAll for an unknown connection should report false")
	}
}

func TestRejoinMovesBetweenRooms(t *testing.T) {
	reg := newTestRegistry()

	reg.Join("a", "x")
	reg.Join("a", "y")
	reg.Move("a", "x", 12)

	res := reg.Join("b", "x")

	if res.Departed == nil || res.Departed.RoomID != "a" {
		t.Fatalf("Expected departure from room a, got %+v", res.Departed)
	}
	if _, ok := reg.Presence("a", "x"); ok {
		t.Error("x should no longer be present in a")
	}
	if _, ok := reg.Presence("b", "x"); !ok {
		t.Error("x should be present in b")
	}
	if res.Presence.Position != 0 || len(res.Presence.Trail) != 0 {
		t.Error("Presence in the new room should start fresh")
	}
	if roomID, _ := reg.RoomOf("x"); roomID != "b" {
		t.Errorf("Expected x in b, got %s", roomID)
	}
	if reg.ParticipantCount() != 2 {
		t.Errorf("Expected 2 participants, got %d", reg.ParticipantCount())
	}
}

func TestRejoinSameRoomResetsPresence(t *testing.T) {
	reg := newTestRegistry()

	reg.Join("a", "x")
	reg.Move("a", "x", 3)

	res := reg.Join("a", "x")

	if res.Departed == nil || !res.Departed.Closed {
		t.Fatalf("Sole reader rejoining should close and recreate the room, got %+v", res.Departed)
	}
	if res.Presence.Position != 0 {
		t.Errorf("Expected reset position, got %d", res.Presence.Position)
	}
	if len(reg.Members("a")) != 1 {
		t.Errorf("Expected exactly one member, got %v", reg.Members("a"))
	}
}

func TestMoveTrailIsBounded(t *testing.T) {
	reg := newTestRegistry()
	reg.Join("dog", "x")

	total := TrailCapacity + 25
	var last Presence
	for i := 1; i <= total; i++ {
		p, ok := reg.Move("dog", "x", i)
		if !ok {
			t.Fatalf("Move %d should succeed", i)
		}
		last = p
	}

	if len(last.Trail) != TrailCapacity {
		t.Fatalf("Expected trail length %d, got %d", TrailCapacity, len(last.Trail))
	}
	for i, pos := range last.Trail {
		want := total - TrailCapacity + 1 + i
		if pos != want {
			t.Fatalf("Trail[%d] = %d, want %d", i, pos, want)
		}
	}
	if last.Position != total {
		t.Errorf("Expected position %d, got %d", total, last.Position)
	}
}

func TestMoveAfterLeaveIsIgnored(t *testing.T) {
	reg := newTestRegistry()
	reg.Join("dog", "x")
	reg.Join("dog", "y")
	reg.Leave("dog", "x")

	if _, ok := reg.Move("dog", "x", 5); ok {
		t.Error("Move after leave should be ignored")
	}
	if _, ok := reg.Move("cat", "y", 5); ok {
		t.Error("Move in a missing room should be ignored")
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	reg := newTestRegistry()
	reg.Join("dog", "x")
	p, _ := reg.Move("dog", "x", 1)

	p.Trail[0] = 99

	stored, _ := reg.Presence("dog", "x")
	if stored.Trail[0] != 1 {
		t.Error("Mutating a returned presence should not change registry state")
	}
}

func TestColorsUniqueUpToPaletteSize(t *testing.T) {
	reg := newTestRegistry()
	size := len(identity.DefaultPalette)

	colors := make(map[string]string)
	for i := 0; i < size; i++ {
		id := fmt.Sprintf("conn-%d", i)
		res := reg.Join("room", id)
		if holder, dup := colors[res.Presence.Color]; dup {
			t.Fatalf("Color %s given to both %s and %s", res.Presence.Color, holder, id)
		}
		colors[res.Presence.Color] = id
	}
}

func TestColorsStayUniqueAfterPaletteOverflow(t *testing.T) {
	size := len(identity.DefaultPalette)

	for seed := uint64(0); seed < 50; seed++ {
		reg := NewRegistry(identity.NewAllocator(nil, rand.New(rand.NewPCG(seed, seed+1))))
		for i := 0; i <= size; i++ {
			reg.Join("room", fmt.Sprintf("conn-%02d", i))
		}

		// conn-10 shares its color with someone still in the room
		reg.Leave("room", fmt.Sprintf("conn-%02d", size))
		reg.Leave("room", fmt.Sprintf("conn-%02d", size-1))
		reg.Join("room", "late")

		holders := make(map[string]string)
		for _, id := range reg.Members("room") {
			p, _ := reg.Presence("room", id)
			if other, dup := holders[p.Color]; dup {
				t.Fatalf("seed %d: color %s held by both %s and %s", seed, p.Color, other, id)
			}
			holders[p.Color] = id
		}
	}
}

func TestFreshColorPoolAfterRoomRecreated(t *testing.T) {
	palette := []identity.Swatch{
		{Color: "red", Instrument: "drum"},
		{Color: "blue", Instrument: "bass"},
	}
	reg := NewRegistry(identity.NewAllocator(palette, rand.New(rand.NewPCG(9, 10))))

	reg.Join("dog", "x")
	reg.Join("dog", "y")
	reg.Leave("dog", "x")
	reg.Leave("dog", "y")

	a := reg.Join("dog", "z1")
	b := reg.Join("dog", "z2")
	if a.Presence.Color == b.Presence.Color {
		t.Error("Recreated room should start with the whole palette available")
	}
}

func TestOccupancy(t *testing.T) {
	reg := newTestRegistry()
	reg.Join("a", "1")
	reg.Join("a", "2")
	reg.Join("b", "3")

	occ := reg.Occupancy()
	if occ["a"] != 2 || occ["b"] != 1 || len(occ) != 2 {
		t.Errorf("Unexpected occupancy: %v", occ)
	}
}
