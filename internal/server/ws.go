package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/dyluth/burrow/internal/gateway"
	"github.com/dyluth/burrow/internal/presence"
	"github.com/dyluth/burrow/pkg/grid"
)

// Websocket stream: one connection per viewing session.
//
// Outbound frames carry the presence sync snapshot, then change feed and
// presence events as they arrive. Inbound frames are the session's own
// presence track messages. The session's record is untracked when the
// connection is torn down; there is no explicit leave message.

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// pingPeriod must stay well below the presence max_age (30s default):
	// each pong refreshes the session's heartbeat, and an idle-but-connected
	// session must never go stale between pongs.
	pingPeriod = 15 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Token auth decides access, not the Origin header
	CheckOrigin: func(r *http.Request) bool { return true },
}

type streamFrame struct {
	Type string `json:"type"` // "presence-sync", "tile-event", "presence-event"
	// Records is never omitted: a sync frame for an empty room still
	// carries an empty array, not a missing field.
	Records  []grid.PresenceRecord `json:"records"`
	Tile     *grid.TileEvent       `json:"tile,omitempty"`
	Presence *grid.PresenceEvent   `json:"presence,omitempty"`
}

type trackFrame struct {
	Type     string `json:"type"` // "track"
	Username string `json:"username,omitempty"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

// handleStream upgrades to a websocket and streams the room until the client
// disconnects. Authenticated sessions present under their identity key;
// anonymous viewers get a per-connection guest key.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
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

	sessionKey := ""
	username := "guest"
	if id, ok := s.idp.FromRequest(r); ok {
		sessionKey = id.UserID
		if id.Username != "" {
			username = id.Username
		}
	} else {
		sessionKey = presence.GuestKey()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Server] Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.roomOpened(roomID)
	defer s.roomClosed(roomID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	tileSub, err := s.client.SubscribeTileEvents(ctx, roomID)
	if err != nil {
		log.Printf("[Server] Tile subscription failed for room %s: %v", roomID, err)
		return
	}
	defer tileSub.Close()

	presenceSub, err := s.client.SubscribePresenceEvents(ctx, roomID)
	if err != nil {
		log.Printf("[Server] Presence subscription failed for room %s: %v", roomID, err)
		return
	}
	defer presenceSub.Close()

	// Teardown: the session disappears from the aggregate when the
	// connection closes, regardless of how it closed.
	defer func() {
		// ctx is already cancelled by the time teardown runs
		untrackCtx, untrackCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer untrackCancel()
		if err := s.client.UntrackPresence(untrackCtx, roomID, sessionKey); err != nil {
			log.Printf("[Server] Presence untrack failed for %s: %v", sessionKey, err)
		}
	}()

	// Snapshot-then-stream for presence
	records, err := s.client.PresenceSnapshot(ctx, roomID)
	if err != nil {
		log.Printf("[Server] Presence snapshot failed for room %s: %v", roomID, err)
		return
	}
	if err := writeFrame(conn, &streamFrame{Type: "presence-sync", Records: records}); err != nil {
		return
	}

	// Initial track so peers see the session immediately
	record := &grid.PresenceRecord{
		Key:      sessionKey,
		Username: username,
		Color:    presence.PickColor(sessionKey),
		Avatar:   presence.PickAvatar(sessionKey),
	}
	if err := s.client.TrackPresence(ctx, roomID, record); err != nil {
		log.Printf("[Server] Presence track failed for %s: %v", sessionKey, err)
		return
	}

	// Reader goroutine: consumes track frames and pongs. Never writes to the
	// websocket, so the event loop below stays the single writer.
	go func() {
		defer cancel()
		conn.SetReadLimit(4096)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			// Keepalive doubles as the presence heartbeat for idle sessions
			if err := s.client.TouchPresence(ctx, roomID, sessionKey); err != nil {
				log.Printf("[Server] Presence heartbeat refresh failed for %s: %v", sessionKey, err)
			}
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var frame trackFrame
			if err := json.Unmarshal(data, &frame); err != nil || frame.Type != "track" {
				continue
			}

			update := &grid.PresenceRecord{
				Key:      sessionKey,
				Username: username,
				Color:    record.Color,
				Avatar:   record.Avatar,
				X:        frame.X,
				Y:        frame.Y,
			}
			if frame.Username != "" && presence.IsGuestKey(sessionKey) {
				update.Username = frame.Username
			}
			if err := s.client.TrackPresence(ctx, roomID, update); err != nil {
				log.Printf("[Server] Presence track failed for %s: %v", sessionKey, err)
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	tileErrors := tileSub.Errors()
	presenceErrors := presenceSub.Errors()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-tileSub.Events():
			if !ok {
				return
			}
			if err := writeFrame(conn, &streamFrame{Type: "tile-event", Tile: event}); err != nil {
				return
			}

		case event, ok := <-presenceSub.Events():
			if !ok {
				return
			}
			if err := writeFrame(conn, &streamFrame{Type: "presence-event", Presence: event}); err != nil {
				return
			}

		case err, ok := <-tileErrors:
			if !ok {
				tileErrors = nil
				continue
			}
			log.Printf("[Server] Tile subscription error for room %s: %v", roomID, err)

		case err, ok := <-presenceErrors:
			if !ok {
				presenceErrors = nil
				continue
			}
			log.Printf("[Server] Presence subscription error for room %s: %v", roomID, err)

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, frame *streamFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}
