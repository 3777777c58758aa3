package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dyluth/burrow/internal/gateway"
	"github.com/dyluth/burrow/pkg/grid"
)

// Request/response shapes for the batch submission interface.

type applyBatchRequest struct {
	RoomID string            `json:"roomId"`
	Ops    []json.RawMessage `json:"ops"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, gateway.StatusOf(err), errorResponse{Error: err.Error()})
}

// handleApplyBatch accepts {roomId, ops} and applies the batch through the
// mutation gateway under the caller's verified identity.
func (s *Server) handleApplyBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idp.FromRequest(r)
	if !ok {
		writeError(w, gateway.ErrUnauthenticated())
		return
	}

	var req applyBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gateway.ErrMalformed("invalid request body"))
		return
	}

	if req.RoomID == "" || req.Ops == nil {
		writeError(w, gateway.ErrMalformed("roomId and ops are required"))
		return
	}

	if err := s.gateway.ApplyBatch(r.Context(), id.UserID, req.RoomID, req.Ops); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// handleEnsureRoom returns the caller's room, creating it on first access.
func (s *Server) handleEnsureRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idp.FromRequest(r)
	if !ok {
		writeError(w, gateway.ErrUnauthenticated())
		return
	}

	room, err := s.gateway.EnsureRoom(r.Context(), id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

// handleUpdateRoom applies a settings update to the caller's room.
func (s *Server) handleUpdateRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idp.FromRequest(r)
	if !ok {
		writeError(w, gateway.ErrUnauthenticated())
		return
	}

	var update gateway.SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, gateway.ErrMalformed("invalid request body"))
		return
	}

	room, err := s.gateway.UpdateSettings(r.Context(), id.UserID, update)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

// handleGetRoom returns room settings. Private rooms are visible only to
// their owner; anonymous viewers see public rooms only.
func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room"]

	room, err := s.client.GetRoom(r.Context(), roomID)
	if err != nil {
		if grid.IsNotFound(err) {
			writeError(w, gateway.ErrNotFound("room not found"))
			return
		}
		writeError(w, gateway.ErrDownstream(err))
		return
	}

	if !s.canView(r, room) {
		writeError(w, gateway.ErrNotFound("room not found"))
		return
	}

	writeJSON(w, http.StatusOK, room)
}

// handleGetTiles returns the full tile snapshot for client hydration.
func (s *Server) handleGetTiles(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room"]

	room, err := s.client.GetRoom(r.Context(), roomID)
	if err != nil {
		if grid.IsNotFound(err) {
			writeError(w, gateway.ErrNotFound("room not found"))
			return
		}
		writeError(w, gateway.ErrDownstream(err))
		return
	}

	if !s.canView(r, room) {
		writeError(w, gateway.ErrNotFound("room not found"))
		return
	}

	tiles, err := s.client.GetTiles(r.Context(), roomID)
	if err != nil {
		writeError(w, gateway.ErrDownstream(err))
		return
	}

	writeJSON(w, http.StatusOK, tiles)
}

// handleGetCatalog returns the immutable item catalog, loaded once per session.
func (s *Server) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.client.GetCatalog(r.Context())
	if err != nil {
		writeError(w, gateway.ErrDownstream(err))
		return
	}

	writeJSON(w, http.StatusOK, catalog)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.client.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "redis unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// canView reports whether the request may see the room: public rooms are
// visible to everyone, private rooms only to their owner.
func (s *Server) canView(r *http.Request, room *grid.Room) bool {
	if room.IsPublic {
		return true
	}
	id, ok := s.idp.FromRequest(r)
	return ok && id.UserID == room.Owner
}
