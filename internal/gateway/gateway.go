// Package gateway validates and authorizes room mutations before they touch
// the grid store. It is the single boundary at which raw client payloads are
// normalized and ownership is enforced; everything downstream operates on
// typed, validated data under the single-writer regime.
package gateway

import (
	"context"
	"encoding/json"
	"log"

	"github.com/dyluth/burrow/pkg/grid"
)

// Store is the slice of the grid client the gateway depends on.
// *grid.Client satisfies it; tests may substitute a failing store.
type Store interface {
	GetRoom(ctx context.Context, roomID string) (*grid.Room, error)
	GetRoomByOwner(ctx context.Context, owner string) (*grid.Room, error)
	EnsureRoom(ctx context.Context, owner string) (*grid.Room, error)
	UpdateRoom(ctx context.Context, room *grid.Room) error
	UpsertTiles(ctx context.Context, tiles []*grid.Tile) error
	RemoveTile(ctx context.Context, roomID string, x, y int) (bool, error)
}

// Gateway applies validated, authorized batches of tile operations to the store.
type Gateway struct {
	store Store
}

// New creates a gateway backed by the given store.
func New(store Store) *Gateway {
	return &Gateway{store: store}
}

// ApplyBatch validates and applies an ordered batch of raw tile operations.
//
// Order of checks:
//  1. identity must be present (401)
//  2. the room must exist (404)
//  3. identity must equal the room owner - the whole batch is rejected
//     before any validation or apply otherwise (403)
//  4. operations are normalized; invalid ones are silently dropped, and a
//     batch left with zero valid operations succeeds with no effect
//  5. upserts are applied as one bulk write, removals individually
//
// Removal is idempotent, so a failure partway through the removal loop means
// the remaining removals did not happen; everything already applied stays
// applied (no rollback). That partial-apply surfaces as a downstream error.
func (g *Gateway) ApplyBatch(ctx context.Context, identity, roomID string, rawOps []json.RawMessage) error {
	if identity == "" {
		return ErrUnauthenticated()
	}

	if roomID == "" {
		return ErrMalformed("missing roomId")
	}

	room, err := g.store.GetRoom(ctx, roomID)
	if err != nil {
		if grid.IsNotFound(err) {
			return ErrNotFound("room not found")
		}
		return ErrDownstream(err)
	}

	if room.Owner != identity {
		return ErrUnauthorized()
	}

	ops := NormalizeOps(rawOps, room.GridSize)
	if len(ops) == 0 {
		// Idempotent empty batch: success with no effect
		return nil
	}

	var upserts []*grid.Tile
	var removals []grid.TileOperation
	for _, op := range ops {
		if op.IsRemove() {
			removals = append(removals, op)
			continue
		}
		upserts = append(upserts, &grid.Tile{
			RoomID: roomID,
			X:      op.X,
			Y:      op.Y,
			ItemID: op.ItemID,
			Meta:   op.Meta,
		})
	}

	if len(upserts) > 0 {
		if err := g.store.UpsertTiles(ctx, upserts); err != nil {
			log.Printf("[Gateway] Bulk upsert failed for room %s: %v", roomID, err)
			return ErrDownstream(err)
		}
	}

	for _, op := range removals {
		if _, err := g.store.RemoveTile(ctx, roomID, op.X, op.Y); err != nil {
			log.Printf("[Gateway] Removal failed for room %s at (%d,%d): %v", roomID, op.X, op.Y, err)
			return ErrDownstream(err)
		}
	}

	return nil
}
