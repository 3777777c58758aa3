// Package server exposes the synchronizer over HTTP and websocket.
//
// The request/response surface (batch submission, room settings, snapshots)
// fronts the mutation gateway; the websocket surface fans out change feed and
// presence events to connected clients and tracks their presence membership.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/dyluth/burrow/internal/config"
	"github.com/dyluth/burrow/internal/gateway"
	"github.com/dyluth/burrow/internal/identity"
	"github.com/dyluth/burrow/pkg/grid"
)

// Server wires the gateway, grid client, and identity provider behind a router.
type Server struct {
	cfg     *config.BurrowConfig
	client  *grid.Client
	gateway *gateway.Gateway
	idp     *identity.Provider

	mu          sync.Mutex
	activeRooms map[string]int // roomID -> open stream count, for the presence sweeper
}

// New creates a server from its collaborators.
func New(cfg *config.BurrowConfig, client *grid.Client, gw *gateway.Gateway, idp *identity.Provider) *Server {
	return &Server{
		cfg:         cfg,
		client:      client,
		gateway:     gw,
		idp:         idp,
		activeRooms: make(map[string]int),
	}
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			log.Printf("[Server] handled method=%s url=%s duration=%s status=%d", request.Method, request.URL, m.Duration, m.Code)
		})
	})

	r.Methods(http.MethodPost).Path("/api/rooms/ensure").HandlerFunc(s.handleEnsureRoom)
	r.Methods(http.MethodPatch).Path("/api/rooms/update").HandlerFunc(s.handleUpdateRoom)
	r.Methods(http.MethodPost).Path("/api/tiles/apply").HandlerFunc(s.handleApplyBatch)
	r.Methods(http.MethodGet).Path("/api/rooms/{room}").HandlerFunc(s.handleGetRoom)
	r.Methods(http.MethodGet).Path("/api/rooms/{room}/tiles").HandlerFunc(s.handleGetTiles)
	r.Methods(http.MethodGet).Path("/api/rooms/{room}/stream").HandlerFunc(s.handleStream)
	r.Methods(http.MethodGet).Path("/api/catalog").HandlerFunc(s.handleGetCatalog)
	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(s.handleHealth)

	return r
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
// Also runs the presence sweeper for rooms with open streams.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{Addr: s.cfg.Listen, Handler: s.Router()}

	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runPresenceSweeper(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[Server] Shutdown error: %v", err)
		}
	}()

	log.Printf("[Server] Listening on %s", s.cfg.Listen)
	err := httpServer.ListenAndServe()
	wg.Wait()

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// runPresenceSweeper periodically evicts sessions whose heartbeat went stale,
// covering connections that died without a clean teardown.
func (s *Server) runPresenceSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Presence.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, roomID := range s.trackedRooms() {
				evicted, err := s.client.SweepPresence(ctx, roomID, s.cfg.Presence.MaxAge)
				if err != nil {
					log.Printf("[Server] Presence sweep failed for room %s: %v", roomID, err)
					continue
				}
				if evicted > 0 {
					log.Printf("[Server] Evicted %d stale presence session(s) from room %s", evicted, roomID)
				}
			}
		}
	}
}

func (s *Server) trackedRooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms := make([]string, 0, len(s.activeRooms))
	for roomID := range s.activeRooms {
		rooms = append(rooms, roomID)
	}
	return rooms
}

func (s *Server) roomOpened(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeRooms[roomID]++
}

func (s *Server) roomClosed(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeRooms[roomID]--
	if s.activeRooms[roomID] <= 0 {
		delete(s.activeRooms, roomID)
	}
}
