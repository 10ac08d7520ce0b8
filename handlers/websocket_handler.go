package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Dosada05/padel-system/feed"
	"github.com/Dosada05/padel-system/services"
	"github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	hub          *feed.Hub
	matchService services.MatchService
	upgrader     websocket.Upgrader
	logger       *slog.Logger
}

// NewWebSocketHandler creates the push endpoint. An empty allowedOrigins or
// a "*" entry accepts any Origin.
func NewWebSocketHandler(hub *feed.Hub, matchService services.MatchService, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		hub:          hub,
		matchService: matchService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(set) == 0 || set[origin]
	}
}

// ServeMatches подключает клиента к общей ленте матчей.
// Сразу после подключения клиент получает текущий снимок.
func (h *WebSocketHandler) ServeMatches(w http.ResponseWriter, r *http.Request) {
	initial := feed.WebSocketMessage{
		Type:    feed.MessageSnapshot,
		Payload: feed.Snapshot{Matches: h.matchService.List(r.Context()), At: time.Now().UTC()},
		RoomID:  feed.RoomMatches,
	}
	h.serve(w, r, feed.RoomMatches, initial)
}

// ServeMatch подключает клиента к комнате одного матча.
func (h *WebSocketHandler) ServeMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	match, err := h.matchService.Get(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	room := feed.MatchRoom(matchID)
	initial := feed.WebSocketMessage{Type: feed.MessageMatchUpdated, Payload: match, RoomID: room}
	h.serve(w, r, room, initial)
}

func (h *WebSocketHandler) serve(w http.ResponseWriter, r *http.Request, room string, initial feed.WebSocketMessage) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отвечает клиенту ошибкой.
		h.logger.Warn("Failed to upgrade websocket connection", slog.String("room", room), slog.Any("error", err))
		return
	}

	client := &feed.Client{
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, 256),
		Room: room,
	}
	if payload, err := json.Marshal(initial); err == nil {
		client.Send <- payload
	}
	if !h.hub.Join(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
