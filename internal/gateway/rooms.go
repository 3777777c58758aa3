package gateway

import (
	"context"
	"strings"

	"github.com/dyluth/burrow/pkg/grid"
)

// Room lifecycle and settings
//
// One room per owner, created on first access. Settings updates are
// all-or-nothing: any malformed field rejects the whole request, unlike
// per-operation dropping in tile batches.

// SettingsUpdate is a request to replace a room's mutable settings.
type SettingsUpdate struct {
	RoomID   string `json:"roomId"`
	Title    string `json:"title"`
	GridSize int    `json:"gridSize"`
	IsPublic *bool  `json:"isPublic"` // Pointer so an omitted flag is distinguishable from false
}

// EnsureRoom returns the caller's room, creating it with defaults on first access.
func (g *Gateway) EnsureRoom(ctx context.Context, identity string) (*grid.Room, error) {
	if identity == "" {
		return nil, ErrUnauthenticated()
	}

	room, err := g.store.EnsureRoom(ctx, identity)
	if err != nil {
		return nil, ErrDownstream(err)
	}

	return room, nil
}

// UpdateSettings validates and applies a settings update to the caller's room.
// The room must belong to the caller (404 otherwise, matching the owner-scoped
// lookup: a non-owner cannot distinguish "not yours" from "doesn't exist").
//
// Shrinking the grid dimension does not move or clear existing tiles; cells
// outside the new bounds become orphaned rows that GetTiles still returns.
func (g *Gateway) UpdateSettings(ctx context.Context, identity string, update SettingsUpdate) (*grid.Room, error) {
	if identity == "" {
		return nil, ErrUnauthenticated()
	}

	if update.RoomID == "" {
		return nil, ErrMalformed("missing roomId")
	}

	title := strings.TrimSpace(update.Title)
	if title == "" {
		return nil, ErrMalformed("room title is required")
	}

	if update.GridSize < grid.MinGridSize || update.GridSize > grid.MaxGridSize {
		return nil, ErrMalformed("grid size must be between 10 and 40")
	}

	if update.IsPublic == nil {
		return nil, ErrMalformed("missing public setting")
	}

	room, err := g.store.GetRoom(ctx, update.RoomID)
	if err != nil {
		if grid.IsNotFound(err) {
			return nil, ErrNotFound("room not found")
		}
		return nil, ErrDownstream(err)
	}

	if room.Owner != identity {
		return nil, ErrNotFound("room not found")
	}

	room.Title = title
	room.GridSize = update.GridSize
	room.IsPublic = *update.IsPublic

	if err := g.store.UpdateRoom(ctx, room); err != nil {
		return nil, ErrDownstream(err)
	}

	return room, nil
}
