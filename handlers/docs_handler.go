package handlers

import (
	_ "embed"
	"net/http"
	"time"
)

//go:embed docs/openapi.json
var openAPIDocument []byte

func ServeOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(openAPIDocument)
}

type HealthHandler struct {
	started time.Time
	check   func(r *http.Request) error
}

// NewHealthHandler creates /health. check may be nil; for Postgres it pings the pool.
func NewHealthHandler(check func(r *http.Request) error) *HealthHandler {
	return &HealthHandler{started: time.Now(), check: check}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	response := jsonResponse{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}
	if h.check != nil {
		if err := h.check(r); err != nil {
			status = http.StatusServiceUnavailable
			response["status"] = "unavailable"
			response["error"] = err.Error()
		}
	}
	if err := writeJSON(w, status, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
