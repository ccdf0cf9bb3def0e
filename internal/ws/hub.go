package ws

import (
	"context"
	"errors"
	"log/slog"

	"github.com/manpreetbhatti/readtrail/internal/history"
	"github.com/manpreetbhatti/readtrail/internal/logging"
	"github.com/manpreetbhatti/readtrail/internal/protocol"
	"github.com/manpreetbhatti/readtrail/internal/room"
)

var ErrHubStopped = errors.New("hub stopped")

// An inbound event from one client
type Message struct {
	Client *Client
	Event  protocol.Inbound
}

// Snapshot of live state for the status endpoint
type Stats struct {
	Rooms        int            `json:"rooms"`
	Participants int            `json:"participants"`
	Connections  int            `json:"connections"`
	Occupancy    map[string]int `json:"occupancy"`
}

// Hub owns every room, presence and connected client. All of it is touched
// only from the Run goroutine, one event at a time, so a broadcast always
// reads the state its own event just wrote.
type Hub struct {
	registry *room.Registry
	store    history.Store
	logger   *slog.Logger

	// Connected clients by connection id
	clients map[string]*Client
	// Client being sent its join state, not yet announced to its room
	joining *Client

	register   chan *Client
	unregister chan *Client
	inbound    chan *Message
	stats      chan chan Stats
	done       chan struct{}
}

func NewHub(registry *room.Registry, store history.Store, logger *slog.Logger) *Hub {
	if registry == nil {
		registry = room.NewRegistry(nil)
	}
	if store == nil {
		store = history.NewMemory()
	}
	return &Hub{
		registry:   registry,
		store:      store,
		logger:     logging.OrDiscard(logger).With("component", "hub"),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan *Message, 256),
		stats:      make(chan chan Stats),
		done:       make(chan struct{}),
	}
}

// Run processes events until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.inbound:
			h.dispatch(ctx, message)

		case reply := <-h.stats:
			reply <- h.snapshot()
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Register hands a new client to the hub. It reports false once the hub has
// stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister tells the hub the client's connection is gone.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Submit queues a decoded event from c.
func (h *Hub) Submit(c *Client, event protocol.Inbound) bool {
	select {
	case h.inbound <- &Message{Client: c, Event: event}:
		return true
	case <-h.done:
		return false
	}
}

// Stats asks the event loop for a snapshot of live state.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case h.stats <- reply:
	case <-h.done:
		return Stats{}, ErrHubStopped
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}

	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// Store returns the history store the hub saves into.
func (h *Hub) Store() history.Store {
	return h.store
}

func (h *Hub) snapshot() Stats {
	return Stats{
		Rooms:        h.registry.RoomCount(),
		Participants: h.registry.ParticipantCount(),
		Connections:  len(h.clients),
		Occupancy:    h.registry.Occupancy(),
	}
}

func (h *Hub) addClient(c *Client) {
	if c == nil {
		h.logger.Warn("received nil client registration")
		return
	}
	h.clients[c.id] = c
	h.logger.Info("client connected", "conn", c.id, "addr", c.addr, "connections", len(h.clients))
}

// removeClient forgets the client, closes its send channel and takes it out
// of its room. Calling it twice is harmless.
func (h *Hub) removeClient(c *Client) {
	if c == nil {
		return
	}
	if !h.isCurrent(c) {
		return
	}
	delete(h.clients, c.id)
	close(c.send)

	if d, ok := h.registry.LeaveAll(c.id); ok {
		h.announceDeparture(d, c != h.joining)
	}
	h.logger.Info("client disconnected", "conn", c.id, "connections", len(h.clients))
}

func (h *Hub) shutdown() {
	h.logger.Info("closing client connections", "connections", len(h.clients))
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}

func (h *Hub) isCurrent(c *Client) bool {
	current, ok := h.clients[c.id]
	return ok && current == c
}

func (h *Hub) dispatch(ctx context.Context, m *Message) {
	c := m.Client
	if !h.isCurrent(c) {
		return
	}

	switch ev := m.Event.(type) {
	case protocol.JoinRoom:
		h.handleJoin(ctx, c, ev)
	case protocol.Move:
		h.handleMove(c, ev)
	case protocol.Select:
		h.handleSelect(c, ev)
	case protocol.SavePath:
		h.handleSavePath(ctx, c, ev)
	case protocol.SaveSelectedWords:
		h.handleSaveSelectedWords(ctx, c, ev)
	default:
		h.logger.Warn("unhandled event", "conn", c.id, "event", m.Event.EventName())
	}
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, ev protocol.JoinRoom) {
	res := h.registry.Join(ev.RoomID, c.id)
	if res.Departed != nil {
		h.announceDeparture(*res.Departed, true)
	}

	p := res.Presence
	h.joining = c
	h.emit(c, protocol.EventUserColor, p.Color)
	h.emit(c, protocol.EventUserInstrument, p.Instrument)
	h.emit(c, protocol.EventRoomUsers, protocol.RoomUsers(res.Others))

	paths, err := h.store.Paths(ctx, res.RoomID)
	if err != nil {
		h.logger.Error("load saved paths", "room", res.RoomID, "error", err)
	}
	h.emit(c, protocol.EventHistoricalPaths, protocol.NewHistoricalPaths(paths))

	selections, err := h.store.SelectedWords(ctx, res.RoomID)
	if err != nil {
		h.logger.Error("load saved selections", "room", res.RoomID, "error", err)
	}
	h.emit(c, protocol.EventSavedSelectedPaths, protocol.NewSavedSelectedPaths(selections))
	h.joining = nil

	// dropped while receiving its join state; the room never saw it arrive
	if !h.isCurrent(c) {
		return
	}

	h.broadcast(res.RoomID, c.id, protocol.EventUserJoined, p)

	h.logger.Info("joined room", "conn", c.id, "room", res.RoomID, "color", p.Color, "participants", len(res.Others)+1)
}

func (h *Hub) handleMove(c *Client, ev protocol.Move) {
	roomID, ok := h.currentRoom(c, ev)
	if !ok {
		return
	}
	p, ok := h.registry.Move(roomID, c.id, ev.WordIndex)
	if !ok {
		return
	}

	h.broadcast(roomID, c.id, protocol.EventUserMoved, protocol.UserMoved{
		ID:             p.ID,
		Color:          p.Color,
		Instrument:     p.Instrument,
		Position:       p.Position,
		Line:           ev.Line,
		PositionInLine: ev.PositionInLine,
	})
}

func (h *Hub) handleSelect(c *Client, ev protocol.Select) {
	roomID, p, ok := h.currentPresence(c, ev)
	if !ok {
		return
	}

	h.broadcast(roomID, c.id, protocol.EventSelectReceive, protocol.SelectReceive{
		ID:             p.ID,
		Color:          p.Color,
		Position:       ev.WordIndex,
		Line:           ev.Line,
		PositionInLine: ev.PositionInLine,
		Text:           ev.Text,
	})
}

func (h *Hub) handleSavePath(ctx context.Context, c *Client, ev protocol.SavePath) {
	roomID, p, ok := h.currentPresence(c, ev)
	if !ok {
		return
	}
	if err := h.store.SavePath(ctx, roomID, c.id, p.Color, ev.Path); err != nil {
		h.logger.Error("save path", "conn", c.id, "room", roomID, "error", err)
		return
	}
	h.logger.Debug("path saved", "conn", c.id, "room", roomID, "length", len(ev.Path))
}

func (h *Hub) handleSaveSelectedWords(ctx context.Context, c *Client, ev protocol.SaveSelectedWords) {
	roomID, p, ok := h.currentPresence(c, ev)
	if !ok {
		return
	}
	if err := h.store.SaveSelectedWords(ctx, roomID, c.id, p.Color, ev.SelectedWords); err != nil {
		h.logger.Error("save selected words", "conn", c.id, "room", roomID, "error", err)
		return
	}
	h.logger.Debug("selection saved", "conn", c.id, "room", roomID, "words", len(ev.SelectedWords))
}

func (h *Hub) currentRoom(c *Client, ev protocol.Inbound) (string, bool) {
	roomID, ok := h.registry.RoomOf(c.id)
	if !ok {
		h.logger.Debug("dropping event from client outside any room", "conn", c.id, "event", ev.EventName())
	}
	return roomID, ok
}

func (h *Hub) currentPresence(c *Client, ev protocol.Inbound) (string, room.Presence, bool) {
	roomID, ok := h.currentRoom(c, ev)
	if !ok {
		return "", room.Presence{}, false
	}
	p, ok := h.registry.Presence(roomID, c.id)
	return roomID, p, ok
}

// announceDeparture tells the rest of the room a reader left. notify is
// false for a reader whose arrival was never broadcast.
func (h *Hub) announceDeparture(d room.Departure, notify bool) {
	if notify && !d.Closed {
		h.broadcast(d.RoomID, d.Presence.ID, protocol.EventUserLeft, d.Presence.ID)
	}
	h.logger.Info("left room", "conn", d.Presence.ID, "room", d.RoomID, "room_closed", d.Closed)
}

func (h *Hub) emit(c *Client, event string, payload any) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		h.logger.Error("encode event", "event", event, "error", err)
		return
	}
	h.deliver(c, frame)
}

// broadcast sends to every client in the room except the sender.
func (h *Hub) broadcast(roomID, senderID, event string, payload any) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		h.logger.Error("encode event", "event", event, "error", err)
		return
	}
	for _, id := range h.registry.Members(roomID) {
		if id == senderID {
			continue
		}
		if c, ok := h.clients[id]; ok {
			h.deliver(c, frame)
		}
	}
}

// deliver never blocks the loop: a client that cannot keep up is dropped.
func (h *Hub) deliver(c *Client, frame []byte) {
	if !h.isCurrent(c) {
		return
	}
	select {
	case c.send <- frame:
	default:
		h.logger.Warn("send buffer full, dropping client", "conn", c.id)
		h.removeClient(c)
	}
}
