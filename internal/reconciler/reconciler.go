// Package reconciler keeps one client's rendered grid consistent with the
// authoritative store despite concurrent remote edits, while staying
// responsive to the local participant.
//
// Local edits apply optimistically before submission; every committed change
// feed event merges over the local state afterwards. The merge is idempotent
// and commutative per cell, so the origin client's own echo is harmless.
package reconciler

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/dyluth/burrow/pkg/grid"
)

// Submitter sends a batch of tile operations to the mutation gateway.
// The network client and the in-process gateway adapter both satisfy it.
type Submitter interface {
	Submit(ctx context.Context, roomID string, ops []grid.TileOperation) error
}

// Reconciler owns one client's local view of a room: the cell-indexed tile
// map and the peer presence map. The state is explicit and owned, never
// global; it is rebuilt on snapshot and patched on events.
//
// Safe for concurrent use: the event consumer goroutine and the caller's UI
// thread both touch it.
type Reconciler struct {
	mu        sync.Mutex
	roomID    string
	selfKey   string
	submitter Submitter
	tiles     map[string]grid.Tile           // keyed by "x,y"
	peers     map[string]grid.PresenceRecord // keyed by presence key, self included but never rendered
}

// New creates a reconciler for one room and session.
// selfKey is this session's presence key, excluded from Peers().
func New(roomID, selfKey string, submitter Submitter) *Reconciler {
	return &Reconciler{
		roomID:    roomID,
		selfKey:   selfKey,
		submitter: submitter,
		tiles:     make(map[string]grid.Tile),
		peers:     make(map[string]grid.PresenceRecord),
	}
}

// Hydrate rebuilds the local tile map from a store snapshot.
// Called on load and at reconnect (snapshot-then-stream).
func (r *Reconciler) Hydrate(tiles []grid.Tile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tiles = make(map[string]grid.Tile, len(tiles))
	for _, tile := range tiles {
		r.tiles[grid.CellField(tile.X, tile.Y)] = tile
	}
}

// ApplyLocal applies operations to the local state immediately (optimistic),
// then submits the batch to the gateway. On submission failure the optimistic
// state is NOT rolled back; the error is returned for the caller to surface,
// and the next authoritative change feed event or a manual re-hydrate is the
// correction path. The caller must not auto-retry silently.
func (r *Reconciler) ApplyLocal(ctx context.Context, ops []grid.TileOperation) error {
	r.mu.Lock()
	for _, op := range ops {
		field := grid.CellField(op.X, op.Y)
		if op.IsRemove() {
			delete(r.tiles, field)
			continue
		}
		r.tiles[field] = grid.Tile{
			RoomID: r.roomID,
			X:      op.X,
			Y:      op.Y,
			ItemID: op.ItemID,
			Meta:   op.Meta,
		}
	}
	r.mu.Unlock()

	return r.submitter.Submit(ctx, r.roomID, ops)
}

// MergeEvent merges one committed change feed event into the local state.
// Upsert replaces any existing entry for the cell; removal deletes it.
// Self-echo and duplicate delivery are no-ops by construction. Events for a
// different room (a late delivery after the room context changed) are ignored.
func (r *Reconciler) MergeEvent(event *grid.TileEvent) {
	if event == nil || event.RoomID != r.roomID {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	field := grid.CellField(event.X, event.Y)
	switch event.Kind {
	case grid.TileUpserted:
		r.tiles[field] = grid.Tile{
			RoomID: event.RoomID,
			X:      event.X,
			Y:      event.Y,
			ItemID: event.ItemID,
			Meta:   event.Meta,
		}
	case grid.TileRemoved:
		delete(r.tiles, field)
	}
}

// SyncPresence replaces the peer map from a presence "sync" snapshot.
func (r *Reconciler) SyncPresence(records []grid.PresenceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.peers = make(map[string]grid.PresenceRecord, len(records))
	for _, record := range records {
		r.peers[record.Key] = record
	}
}

// MergePresence merges one presence event: update replaces the peer entry for
// that key, leave deletes it. Each session's record lives under its own key,
// so peers never clobber each other.
func (r *Reconciler) MergePresence(event *grid.PresenceEvent) {
	if event == nil || event.RoomID != r.roomID {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Kind {
	case grid.PresenceUpdated:
		r.peers[event.Record.Key] = event.Record
	case grid.PresenceLeft:
		delete(r.peers, event.Record.Key)
	}
}

// Run consumes tile and presence subscriptions until the context is
// cancelled or both subscriptions close. Per-event failures are logged and
// skipped; the reconciler never crashes or freezes on a bad message.
func (r *Reconciler) Run(ctx context.Context, tiles *grid.TileSubscription, presence *grid.PresenceSubscription) {
	tileEvents := tiles.Events()
	tileErrors := tiles.Errors()
	presenceEvents := presence.Events()
	presenceErrors := presence.Errors()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-tileEvents:
			if !ok {
				tileEvents = nil
				if presenceEvents == nil {
					return
				}
				continue
			}
			r.MergeEvent(event)

		case event, ok := <-presenceEvents:
			if !ok {
				presenceEvents = nil
				if tileEvents == nil {
					return
				}
				continue
			}
			r.MergePresence(event)

		case err, ok := <-tileErrors:
			if !ok {
				tileErrors = nil
				continue
			}
			log.Printf("[Reconciler] Tile subscription error: %v", err)

		case err, ok := <-presenceErrors:
			if !ok {
				presenceErrors = nil
				continue
			}
			log.Printf("[Reconciler] Presence subscription error: %v", err)
		}
	}
}

// TileAt returns the tile at a cell, if any.
func (r *Reconciler) TileAt(x, y int) (grid.Tile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tile, ok := r.tiles[grid.CellField(x, y)]
	return tile, ok
}

// Snapshot returns the current local tile set, ordered by cell for stable output.
func (r *Reconciler) Snapshot() []grid.Tile {
	r.mu.Lock()
	defer r.mu.Unlock()

	tiles := make([]grid.Tile, 0, len(r.tiles))
	for _, tile := range r.tiles {
		tiles = append(tiles, tile)
	}

	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].Y != tiles[j].Y {
			return tiles[i].Y < tiles[j].Y
		}
		return tiles[i].X < tiles[j].X
	})

	return tiles
}

// Peers returns all remote presence records, excluding this session's own entry.
func (r *Reconciler) Peers() []grid.PresenceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	peers := make([]grid.PresenceRecord, 0, len(r.peers))
	for key, record := range r.peers {
		if key == r.selfKey {
			continue
		}
		peers = append(peers, record)
	}

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].Key < peers[j].Key
	})

	return peers
}
