package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Dosada05/padel-system/feed"
	"github.com/Dosada05/padel-system/handlers"
	"github.com/Dosada05/padel-system/models"
	"github.com/Dosada05/padel-system/repositories"
	"github.com/Dosada05/padel-system/routes"
	"github.com/Dosada05/padel-system/services"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"
)

const jwtSecret = "routes-test-secret"

type testServer struct {
	*httptest.Server
	store *repositories.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repositories.NewMemoryStore()
	view := services.NewMatchView()

	matchService := services.NewMatchService(store.Matches(), store.Finalized(), store.Users(), store.Transactor(), view, services.MatchServiceOptions{Logger: logger})
	authService := services.NewAuthService(store.Users(), bcrypt.MinCost)
	userService := services.NewUserService(store.Users(), store.Finalized())
	friendshipService := services.NewFriendshipService(store.Friendships(), store.Users())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := feed.NewHub(logger)
	go hub.Run(ctx)

	router := chi.NewRouter()
	routes.SetupRoutes(router, routes.Options{
		JWTSecret:          []byte(jwtSecret),
		CORSAllowedOrigins: []string{"*"},
	},
		handlers.NewAuthHandler(authService, jwtSecret),
		handlers.NewMatchHandler(matchService),
		handlers.NewUserHandler(userService),
		handlers.NewFriendshipHandler(friendshipService),
		handlers.NewWebSocketHandler(hub, matchService, []string{"*"}, logger),
		handlers.NewHealthHandler(nil),
	)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("%s %s: bad JSON %q", method, path, raw)
		}
	}
	return resp.StatusCode, out
}

// signUp registers a user and returns its id and token.
func (s *testServer) signUp(t *testing.T, name string) (string, string) {
	t.Helper()
	email := strings.ToLower(name) + "@example.com"
	status, body := s.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "password-" + name,
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s: %d %v", name, status, body)
	}
	status, body = s.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": email, "password": "password-" + name,
	})
	if status != http.StatusOK {
		t.Fatalf("login %s: %d %v", name, status, body)
	}
	user := body["user"].(map[string]interface{})
	return user["id"].(string), body["token"].(string)
}

func TestHealthAndDocs(t *testing.T) {
	s := newTestServer(t)
	if status, body := s.do(t, http.MethodGet, "/health", "", nil); status != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: %d %v", status, body)
	}
	status, body := s.do(t, http.MethodGet, "/docs/openapi.json", "", nil)
	if status != http.StatusOK || body["openapi"] == nil {
		t.Fatalf("openapi: %d", status)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.do(t, http.MethodPost, "/matches/", "", map[string]string{"location": "Court A"})
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
	if status, _ := s.do(t, http.MethodGet, "/matches/", "", nil); status != http.StatusOK {
		t.Fatalf("public listing status = %d", status)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "ana")
	status, _ := s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "ana@example.com", "password": "nope-nope"})
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
	status, _ = s.do(t, http.MethodPost, "/auth/register", "", map[string]string{"name": "Ana", "email": "ana@example.com", "password": "another-pass"})
	if status != http.StatusConflict {
		t.Fatalf("duplicate register status = %d, want 409", status)
	}
}

func TestMatchFlow(t *testing.T) {
	s := newTestServer(t)
	ids := make([]string, 4)
	tokens := make([]string, 4)
	for i, name := range []string{"ana", "ben", "cai", "dee"} {
		ids[i], tokens[i] = s.signUp(t, name)
	}

	at := time.Now().Add(3 * time.Hour).UTC().Truncate(time.Second)
	status, body := s.do(t, http.MethodPost, "/matches/", tokens[0], map[string]interface{}{
		"location": "Club Central", "scheduled_time": at,
	})
	if status != http.StatusCreated {
		t.Fatalf("create: %d %v", status, body)
	}
	matchID := body["match_id"].(string)

	status, _ = s.do(t, http.MethodPost, "/matches/", tokens[1], map[string]interface{}{
		"location": "club  central", "scheduled_time": at.Add(30 * time.Minute),
	})
	if status != http.StatusConflict {
		t.Fatalf("overlapping create status = %d, want 409", status)
	}

	status, body = s.do(t, http.MethodPost, "/matches/"+matchID+"/join", tokens[1], nil)
	if status != http.StatusOK || body["message"] != services.MsgJoined {
		t.Fatalf("join: %d %v", status, body)
	}
	status, _ = s.do(t, http.MethodPost, "/matches/"+matchID+"/slots/2", tokens[1], nil)
	if status != http.StatusOK {
		t.Fatalf("member claim should be a no-op, got %d", status)
	}
	status, _ = s.do(t, http.MethodPost, "/matches/"+matchID+"/slots/3", tokens[2], nil)
	if status != http.StatusOK {
		t.Fatalf("claim slot 3: %d", status)
	}
	status, _ = s.do(t, http.MethodPost, "/matches/"+matchID+"/slots/3", tokens[3], nil)
	if status != http.StatusConflict {
		t.Fatalf("taken slot status = %d, want 409", status)
	}
	status, _ = s.do(t, http.MethodPost, "/matches/"+matchID+"/slots/9", tokens[3], nil)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("out of range slot status = %d, want 422", status)
	}
	status, _ = s.do(t, http.MethodPost, "/matches/"+matchID+"/join", tokens[3], nil)
	if status != http.StatusOK {
		t.Fatalf("fourth join: %d", status)
	}

	status, _ = s.do(t, http.MethodPost, "/matches/"+matchID+"/leave", tokens[0], nil)
	if status != http.StatusForbidden {
		t.Fatalf("creator leave status = %d, want 403", status)
	}

	sets := map[string]interface{}{"sets": []map[string]string{{"side1": "6", "side2": "4"}, {"side1": "6", "side2": "3"}}}
	status, _ = s.do(t, http.MethodPost, "/matches/"+matchID+"/finalize", tokens[0], sets)
	if status != http.StatusConflict {
		t.Fatalf("finalize before start status = %d, want 409", status)
	}

	if ok, err := s.store.Matches().UpdateState(context.Background(), matchID, models.StatePending, models.StateInProgress); err != nil || !ok {
		t.Fatalf("force in progress: %v %v", ok, err)
	}

	status, _ = s.do(t, http.MethodPost, "/matches/"+matchID+"/finalize", tokens[1], sets)
	if status != http.StatusForbidden {
		t.Fatalf("finalize by non-creator status = %d, want 403", status)
	}
	bad := map[string]interface{}{"sets": []map[string]string{{"side1": "6", "side2": "x"}}}
	status, _ = s.do(t, http.MethodPost, "/matches/"+matchID+"/finalize", tokens[0], bad)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("bad score status = %d, want 422", status)
	}

	status, body = s.do(t, http.MethodPost, "/matches/"+matchID+"/finalize", tokens[0], sets)
	if status != http.StatusOK {
		t.Fatalf("finalize: %d %v", status, body)
	}
	archived := body["finalized_match"].(map[string]interface{})
	if archived["source_match_id"] != matchID || archived["winning_side"] != float64(1) {
		t.Fatalf("unexpected archive %v", archived)
	}

	if status, _ := s.do(t, http.MethodGet, "/matches/"+matchID, "", nil); status != http.StatusNotFound {
		t.Fatalf("live match still visible: %d", status)
	}

	status, body = s.do(t, http.MethodGet, "/users/"+ids[2]+"/profile", "", nil)
	if status != http.StatusOK {
		t.Fatalf("profile: %d %v", status, body)
	}
	user := body["user"].(map[string]interface{})
	if user["matches_played"] != float64(1) || user["matches_lost"] != float64(1) {
		t.Fatalf("side 2 player stats = %v", user)
	}
	if history := body["history"].([]interface{}); len(history) != 1 {
		t.Fatalf("history length = %d", len(history))
	}
}

func TestDeleteMatch(t *testing.T) {
	s := newTestServer(t)
	_, owner := s.signUp(t, "owner")
	_, other := s.signUp(t, "other")

	status, body := s.do(t, http.MethodPost, "/matches/", owner, map[string]interface{}{
		"location": "Court 9", "scheduled_time": time.Now().Add(time.Hour),
	})
	if status != http.StatusCreated {
		t.Fatalf("create: %d %v", status, body)
	}
	matchID := body["match_id"].(string)

	if status, _ := s.do(t, http.MethodDelete, "/matches/"+matchID, other, nil); status != http.StatusForbidden {
		t.Fatalf("delete by other status = %d, want 403", status)
	}
	if status, _ := s.do(t, http.MethodDelete, "/matches/"+matchID, owner, nil); status != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", status)
	}
	if status, _ := s.do(t, http.MethodDelete, "/matches/"+matchID, owner, nil); status != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", status)
	}
}

func TestMatchesWebSocketSendsSnapshot(t *testing.T) {
	s := newTestServer(t)
	_, token := s.signUp(t, "ws")
	s.do(t, http.MethodPost, "/matches/", token, map[string]interface{}{
		"location": "Court WS", "scheduled_time": time.Now().Add(time.Hour),
	})

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/matches"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type    string        `json:"type"`
		Payload feed.Snapshot `json:"payload"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != feed.MessageSnapshot || len(msg.Payload.Matches) != 1 {
		t.Fatalf("unexpected first message %+v", msg)
	}

	missing := "ws" + strings.TrimPrefix(s.URL, "http") + fmt.Sprintf("/ws/matches/%s", "no-such-match")
	if _, resp, err := websocket.DefaultDialer.Dial(missing, nil); err == nil || resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("dial missing match: err=%v", err)
	}
}

func TestUpdateProfileAndSearch(t *testing.T) {
	s := newTestServer(t)
	anaID, anaToken := s.signUp(t, "ana")
	_, bobToken := s.signUp(t, "bob")

	path := "/users/" + anaID
	if status, _ := s.do(t, http.MethodPatch, path, "", map[string]string{"name": "Ana P"}); status != http.StatusUnauthorized {
		t.Fatalf("anonymous patch status = %d, want 401", status)
	}
	if status, _ := s.do(t, http.MethodPatch, path, bobToken, map[string]string{"name": "Ana P"}); status != http.StatusForbidden {
		t.Fatalf("foreign patch status = %d, want 403", status)
	}
	if status, _ := s.do(t, http.MethodPatch, path, anaToken, map[string]string{}); status != http.StatusBadRequest {
		t.Fatalf("empty patch status = %d, want 400", status)
	}
	if status, _ := s.do(t, http.MethodPatch, path, anaToken, map[string]interface{}{"level": 9}); status != http.StatusUnprocessableEntity {
		t.Fatalf("bad level status = %d, want 422", status)
	}

	status, body := s.do(t, http.MethodPatch, path, anaToken, map[string]interface{}{
		"name": "Ana Pérez", "level": 4, "avatar_url": "https://cdn.example.com/ana.png",
	})
	if status != http.StatusOK {
		t.Fatalf("patch: %d %v", status, body)
	}
	user := body["user"].(map[string]interface{})
	if user["name"] != "Ana Pérez" || user["level"] != float64(4) || user["avatar_url"] != "https://cdn.example.com/ana.png" {
		t.Fatalf("unexpected user %v", user)
	}
	if _, leaked := user["password_hash"]; leaked {
		t.Fatalf("password hash in response")
	}

	status, body = s.do(t, http.MethodGet, "/users/?search=p%C3%A9rez", "", nil)
	if status != http.StatusOK {
		t.Fatalf("search: %d %v", status, body)
	}
	users := body["users"].([]interface{})
	if len(users) != 1 || users[0].(map[string]interface{})["id"] != anaID {
		t.Fatalf("search results = %v", users)
	}
	status, body = s.do(t, http.MethodGet, "/users/?limit=1", "", nil)
	if status != http.StatusOK || len(body["users"].([]interface{})) != 1 {
		t.Fatalf("limited list: %d %v", status, body)
	}
	if status, _ := s.do(t, http.MethodGet, "/users/?limit=abc", "", nil); status != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d, want 400", status)
	}
}

func TestFriendsFlow(t *testing.T) {
	s := newTestServer(t)
	anaID, anaToken := s.signUp(t, "ana")
	bobID, bobToken := s.signUp(t, "bob")

	if status, _ := s.do(t, http.MethodGet, "/friends/", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("anonymous friends status = %d, want 401", status)
	}
	if status, _ := s.do(t, http.MethodPost, "/friends/requests", anaToken, map[string]string{"user_id": anaID}); status != http.StatusUnprocessableEntity {
		t.Fatalf("self request status = %d, want 422", status)
	}

	status, body := s.do(t, http.MethodPost, "/friends/requests", anaToken, map[string]string{"user_id": bobID})
	if status != http.StatusCreated {
		t.Fatalf("send: %d %v", status, body)
	}
	requestID := body["request"].(map[string]interface{})["id"].(string)
	if status, _ := s.do(t, http.MethodPost, "/friends/requests", bobToken, map[string]string{"user_id": anaID}); status != http.StatusConflict {
		t.Fatalf("reverse pending request status = %d, want 409", status)
	}

	status, body = s.do(t, http.MethodGet, "/friends/requests", bobToken, nil)
	if status != http.StatusOK {
		t.Fatalf("incoming: %d %v", status, body)
	}
	incoming := body["requests"].([]interface{})
	if len(incoming) != 1 {
		t.Fatalf("incoming = %v", incoming)
	}
	from := incoming[0].(map[string]interface{})["from"].(map[string]interface{})
	if from["id"] != anaID {
		t.Fatalf("request from %v, want %s", from["id"], anaID)
	}

	// Принять может только адресат.
	if status, _ := s.do(t, http.MethodPost, "/friends/requests/"+requestID+"/accept", anaToken, nil); status != http.StatusNotFound {
		t.Fatalf("accept by sender status = %d, want 404", status)
	}
	if status, _ := s.do(t, http.MethodPost, "/friends/requests/"+requestID+"/accept", bobToken, nil); status != http.StatusOK {
		t.Fatalf("accept status = %d", status)
	}

	status, body = s.do(t, http.MethodGet, "/friends/", anaToken, nil)
	friends := body["friends"].([]interface{})
	if status != http.StatusOK || len(friends) != 1 || friends[0].(map[string]interface{})["id"] != bobID {
		t.Fatalf("friends: %d %v", status, body)
	}

	if status, _ := s.do(t, http.MethodDelete, "/friends/"+anaID, bobToken, nil); status != http.StatusNoContent {
		t.Fatalf("remove status = %d", status)
	}
	if status, _ := s.do(t, http.MethodDelete, "/friends/"+anaID, bobToken, nil); status != http.StatusNotFound {
		t.Fatalf("second remove status = %d, want 404", status)
	}

	// После удаления запрос можно отправить снова.
	if status, _ := s.do(t, http.MethodPost, "/friends/requests", bobToken, map[string]string{"user_id": anaID}); status != http.StatusCreated {
		t.Fatalf("resend after remove status = %d", status)
	}
	if status, _ := s.do(t, http.MethodPost, "/friends/requests/"+requestID+"/reject", anaToken, nil); status != http.StatusNoContent {
		t.Fatalf("reject status = %d", status)
	}
}
