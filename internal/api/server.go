// Package api serves the read endpoints over the store: active games with
// odds and cards, per-game cards, and the settlement ledger.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/scrumdog/cheddar-logic/internal/store"
	"github.com/scrumdog/cheddar-logic/internal/telemetry"
)

const gamesCap = 200

// Server is the read API over the store.
type Server struct {
	store *store.Store
	loc   *time.Location
	now   func() time.Time
}

func NewServer(st *store.Store, loc *time.Location) *Server {
	return &Server{store: st, loc: loc, now: time.Now}
}

// Router builds the mux router with every read route bound.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/games", s.handleGames).Methods("GET")
	r.HandleFunc("/cards/{gameId}", s.handleCards).Methods("GET")
	r.HandleFunc("/results", s.handleResults).Methods("GET")
	return r
}

// Serve runs the HTTP server until the context is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	telemetry.Infof("api: listening on %q", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}
