package statusapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mcdev12/stopify/go/internal/room"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// SnapshotSource yields the current session view. ok is false while no room is joined.
type SnapshotSource interface {
	CurrentSnapshot() (snap room.Snapshot, ok bool)
}

// SnapshotFunc adapts a function to SnapshotSource
type SnapshotFunc func() (room.Snapshot, bool)

func (f SnapshotFunc) CurrentSnapshot() (room.Snapshot, bool) { return f() }

// NewServer builds the read-only status server listening on port
func NewServer(port string, source SnapshotSource) *http.Server {
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: h2c.NewHandler(NewHandler(source), &http2.Server{}),
	}
}

// NewHandler returns the CORS-wrapped status routes
func NewHandler(source SnapshotSource) http.Handler {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	setupSessionRoute(mux, source)
	setupHealthCheck(mux, source)

	return c.Handler(mux)
}

func setupSessionRoute(mux *http.ServeMux, source SnapshotSource) {
	mux.HandleFunc("GET /api/session", func(w http.ResponseWriter, r *http.Request) {
		snap, ok := source.CurrentSnapshot()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active session"})
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})
}

// The health check reflects the room stream, not the process
func setupHealthCheck(mux *http.ServeMux, source SnapshotSource) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		snap, ok := source.CurrentSnapshot()
		status, body := http.StatusOK, "OK"
		switch {
		case !ok:
			status, body = http.StatusServiceUnavailable, "no session"
		case !snap.Healthy():
			status, body = http.StatusServiceUnavailable, string(snap.Connection)
		}

		w.WriteHeader(status)
		if _, err := w.Write([]byte(body)); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode status response")
	}
}
