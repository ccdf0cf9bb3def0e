package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/manpreetbhatti/readtrail/internal/history"
	"github.com/manpreetbhatti/readtrail/internal/logging"
	"github.com/manpreetbhatti/readtrail/internal/protocol"
	"github.com/manpreetbhatti/readtrail/internal/ws"
)

type API struct {
	hub    *ws.Hub
	store  history.Store
	logger *slog.Logger
}

func New(hub *ws.Hub, store history.Store, logger *slog.Logger) *API {
	if store == nil {
		store = hub.Store()
	}
	return &API{
		hub:    hub,
		store:  store,
		logger: logging.OrDiscard(logger).With("component", "api"),
	}
}

// Routes mounts the REST endpoints and the socket handler on one router.
func (a *API) Routes(socket http.Handler) *httprouter.Router {
	router := httprouter.New()

	if socket != nil {
		router.Handler(http.MethodGet, "/ws", socket)
	}
	router.GET("/health", a.HealthHandler)
	router.GET("/api/stats", a.StatsHandler)
	router.GET("/api/rooms", a.ListRoomsHandler)
	router.GET("/api/rooms/:id/paths", a.RoomPathsHandler)

	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.errorResponse(w, http.StatusNotFound, "Not found")
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		a.logger.Error("handler panic", "path", r.URL.Path, "panic", v)
		a.errorResponse(w, http.StatusInternalServerError, "Internal error")
	}

	return router
}

func (a *API) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Warn("encode JSON response", "error", err)
	}
}

func (a *API) errorResponse(w http.ResponseWriter, status int, message string) {
	a.jsonResponse(w, status, map[string]string{"error": message})
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	a.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": timestamp(),
	})
}

type StatsResponse struct {
	ActiveRooms        int    `json:"active_rooms"`
	ActiveParticipants int    `json:"active_participants"`
	Connections        int    `json:"connections"`
	HistoryRooms       int    `json:"history_rooms"`
	HistoryRecords     int    `json:"history_records"`
	Timestamp          string `json:"timestamp"`
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	live, err := a.hub.Stats(r.Context())
	if err != nil {
		a.errorResponse(w, http.StatusServiceUnavailable, "Hub unavailable")
		return
	}

	resp := StatsResponse{
		ActiveRooms:        live.Rooms,
		ActiveParticipants: live.Participants,
		Connections:        live.Connections,
		Timestamp:          timestamp(),
	}

	saved, err := a.store.Stats(r.Context())
	if err != nil {
		a.logger.Warn("read history stats", "error", err)
	} else {
		resp.HistoryRooms = saved.Rooms
		resp.HistoryRecords = saved.Records
	}

	a.jsonResponse(w, http.StatusOK, resp)
}

type RoomResponse struct {
	ID           string `json:"id"`
	Participants int    `json:"participants"`
}

type RoomsResponse struct {
	Rooms []RoomResponse `json:"rooms"`
	Count int            `json:"count"`
}

func (a *API) ListRoomsHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	live, err := a.hub.Stats(r.Context())
	if err != nil {
		a.errorResponse(w, http.StatusServiceUnavailable, "Hub unavailable")
		return
	}

	rooms := make([]RoomResponse, 0, len(live.Occupancy))
	for id, n := range live.Occupancy {
		rooms = append(rooms, RoomResponse{ID: id, Participants: n})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })

	a.jsonResponse(w, http.StatusOK, RoomsResponse{Rooms: rooms, Count: len(rooms)})
}

type RoomPathsResponse struct {
	RoomID string `json:"room_id"`
	protocol.HistoricalPaths
	protocol.SavedSelectedPaths
}

// RoomPathsHandler returns the saved paths for a room, whether or not anyone
// is currently in it.
func (a *API) RoomPathsHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	roomID := ps.ByName("id")
	if strings.TrimSpace(roomID) == "" {
		a.errorResponse(w, http.StatusBadRequest, "Room ID is required")
		return
	}

	paths, err := a.store.Paths(r.Context(), roomID)
	if err != nil {
		a.logger.Error("load saved paths", "room", roomID, "error", err)
		a.errorResponse(w, http.StatusInternalServerError, "Failed to load paths")
		return
	}
	selections, err := a.store.SelectedWords(r.Context(), roomID)
	if err != nil {
		a.logger.Error("load saved selections", "room", roomID, "error", err)
		a.errorResponse(w, http.StatusInternalServerError, "Failed to load selections")
		return
	}

	a.jsonResponse(w, http.StatusOK, RoomPathsResponse{
		RoomID:             roomID,
		HistoricalPaths:    protocol.NewHistoricalPaths(paths),
		SavedSelectedPaths: protocol.NewSavedSelectedPaths(selections),
	})
}

// CORS answers preflight requests and sets allow headers for the configured
// origins. "*" allows any origin.
func CORS(next http.Handler, allowedOrigins []string) http.Handler {
	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			allowAll = true
		}
		allowed[strings.ToLower(o)] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "":
			if _, ok := allowed[strings.ToLower(origin)]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
