// Package admin exposes a small HTTP surface for operational visibility
// and control, gated by the admin.enabled setting. Grounded on the
// teacher's direct dependency on github.com/gorilla/mux (and transitively
// gorilla/handlers/gorilla/context, listed in its go.mod with no
// first-party caller in the copied aggregator.go) -- this package gives
// mux a home routing two endpoints: a JSON status snapshot and a
// dump-state trigger mirroring the SIGUSR2 handler.
package admin

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/graphite-tools/graphite-proxy/stats"
)

// StatusSource supplies the data points rendered by GET /status.
type StatusSource interface {
	BufferSizes() map[string]uint64
	Registry() *stats.Registry
}

// DumpTrigger performs the same current-state dump the SIGUSR2 signal
// handler performs, returning the path written.
type DumpTrigger func() (string, error)

// Server is the admin HTTP surface.
type Server struct {
	httpServer *http.Server
	source     StatusSource
	dump       DumpTrigger
}

// New builds a Server listening on address, routing GET /status and
// POST /dump. Serve must be called to actually start accepting
// connections.
func New(address string, source StatusSource, dump DumpTrigger) *Server {
	s := &Server{source: source, dump: dump}

	router := mux.NewRouter()
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/dump", s.handleDump).Methods(http.MethodPost)

	s.httpServer = &http.Server{Addr: address, Handler: router}
	return s
}

// Handler returns the underlying http.Handler, for tests and for embedding
// under a larger mux without binding a real listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve runs the HTTP server until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.httpServer.Close()
	}()

	log.WithField("address", s.httpServer.Addr).Info("admin: http server started")

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

type statusResponse struct {
	BufferSizes map[string]uint64 `json:"buffer_sizes"`
	Stats       map[string]int64  `json:"stats"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{BufferSizes: s.source.BufferSizes()}
	if reg := s.source.Registry(); reg != nil {
		resp.Stats = reg.Peek()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithError(err).Error("admin: failed to encode status response")
	}
}

func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	path, err := s.dump()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"path": path})
}
