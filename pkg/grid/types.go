// Package grid provides type-safe Go definitions and Redis schema patterns
// for the Burrow shared-room grid. The grid is the authoritative state system
// where all Burrow components (gateway, server, reconciler, CLI) interact via
// well-defined data structures stored in Redis.
//
// All Redis keys and channels are namespaced by instance name to enable multiple
// Burrow instances to safely coexist on a single Redis server.
package grid

import (
	"fmt"

	"github.com/google/uuid"
)

// Grid dimension bounds for a room. Rooms are always square.
const (
	MinGridSize = 10
	MaxGridSize = 40

	// DefaultGridSize is the dimension assigned to a freshly created room.
	DefaultGridSize = 20

	// DefaultRoomTitle is the title assigned to a freshly created room.
	DefaultRoomTitle = "My Room"
)

// Room represents one participant-owned shared space. Exactly one room exists
// per owner; it is created on first access and mutated only by its owner.
type Room struct {
	ID          string `json:"id"`            // UUID - unique identifier for this room
	Owner       string `json:"owner"`         // Identity of the owning participant
	Title       string `json:"title"`         // Display title, non-empty
	GridSize    int    `json:"grid_size"`     // Square grid dimension, 10-40
	IsPublic    bool   `json:"is_public"`     // Whether non-owners may view the room
	CreatedAtMs int64  `json:"created_at_ms"` // Unix timestamp in milliseconds of creation
	UpdatedAtMs int64  `json:"updated_at_ms"` // Unix timestamp in milliseconds of last settings change
}

// Tile is an item placement at one cell of a room's grid. At most one tile
// exists per (room, x, y); a cell with no tile is empty.
//
// Coordinates are validated against the room's grid size at commit time only.
// Shrinking a room afterwards leaves out-of-bounds tiles in place (orphaned
// rows are a documented consequence, not an error).
type Tile struct {
	RoomID string         `json:"room_id"`
	X      int            `json:"x"`
	Y      int            `json:"y"`
	ItemID string         `json:"item_id"` // References an ItemCatalogEntry
	Meta   map[string]any `json:"meta"`    // Opaque per-tile metadata, top-level must be an object; stored as {} when absent
}

// ItemCatalogEntry is immutable reference data describing a placeable item.
// Loaded once per session; never mutated by the synchronizer.
type ItemCatalogEntry struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
	Solid bool   `json:"solid"` // Solid items block participant movement
}

// TileOperation is a single intended change to one cell: either an upsert
// (ItemID set, Remove false) or a removal (Remove true). A batch is an ordered
// sequence of operations; later operations on the same cell supersede earlier
// ones within the batch.
type TileOperation struct {
	X      int            `json:"x"`
	Y      int            `json:"y"`
	ItemID string         `json:"itemId,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
	Remove bool           `json:"remove,omitempty"`
}

// IsRemove reports whether the operation clears its cell rather than placing an item.
func (op TileOperation) IsRemove() bool {
	return op.Remove
}

// TileEventKind identifies the type of committed change carried by a TileEvent.
type TileEventKind string

const (
	// TileUpserted indicates a tile was placed or replaced at a cell
	TileUpserted TileEventKind = "tile-upserted"

	// TileRemoved indicates the tile at a cell was deleted
	TileRemoved TileEventKind = "tile-removed"
)

// TileEvent is one committed Grid Store change, published to every subscriber
// of the room in commit order. It carries enough detail to apply the change
// without a re-fetch.
type TileEvent struct {
	Kind   TileEventKind  `json:"kind"`
	RoomID string         `json:"room_id"`
	X      int            `json:"x"`
	Y      int            `json:"y"`
	ItemID string         `json:"item_id,omitempty"` // Set for tile-upserted
	Meta   map[string]any `json:"meta,omitempty"`    // Set for tile-upserted
}

// PresenceRecord is the ephemeral "who is where" state for one session.
// Never persisted beyond the life of the session's connection.
type PresenceRecord struct {
	Key      string `json:"key"` // Session key: authenticated identity or guest key
	Username string `json:"username"`
	Color    string `json:"color"`
	Avatar   string `json:"avatar"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

// PresenceEventKind identifies the type of presence change carried by a PresenceEvent.
type PresenceEventKind string

const (
	// PresenceUpdated indicates a session published or re-published its record
	PresenceUpdated PresenceEventKind = "presence-updated"

	// PresenceLeft indicates a session's record was removed from the room
	PresenceLeft PresenceEventKind = "presence-left"
)

// PresenceEvent is one change to a room's presence aggregate.
type PresenceEvent struct {
	Kind   PresenceEventKind `json:"kind"`
	RoomID string            `json:"room_id"`
	Record PresenceRecord    `json:"record"`
}

// Validate checks if the Room has valid field values.
// Returns an error if any validation fails.
func (r *Room) Validate() error {
	if !isValidUUID(r.ID) {
		return fmt.Errorf("invalid room ID: not a valid UUID")
	}

	if r.Owner == "" {
		return fmt.Errorf("room owner cannot be empty")
	}

	if r.Title == "" {
		return fmt.Errorf("room title cannot be empty")
	}

	if r.GridSize < MinGridSize || r.GridSize > MaxGridSize {
		return fmt.Errorf("invalid grid size: must be %d-%d, got %d", MinGridSize, MaxGridSize, r.GridSize)
	}

	return nil
}

// Validate checks if the Tile has valid field values.
// Bounds against the owning room's grid size are checked by the gateway at
// apply time, not here; this validates only intrinsic shape.
func (t *Tile) Validate() error {
	if t.RoomID == "" {
		return fmt.Errorf("tile room ID cannot be empty")
	}

	if t.X < 0 || t.Y < 0 {
		return fmt.Errorf("invalid tile coordinates: (%d,%d)", t.X, t.Y)
	}

	if t.ItemID == "" {
		return fmt.Errorf("tile item ID cannot be empty")
	}

	return nil
}

// Validate checks if the ItemCatalogEntry has valid field values.
func (e *ItemCatalogEntry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("catalog entry ID cannot be empty")
	}

	if e.Label == "" {
		return fmt.Errorf("catalog entry label cannot be empty")
	}

	return nil
}

// Validate checks if the TileEventKind is a valid enum value.
func (k TileEventKind) Validate() error {
	switch k {
	case TileUpserted, TileRemoved:
		return nil
	default:
		return fmt.Errorf("unknown tile event kind: %q", k)
	}
}

// Validate checks if the PresenceEventKind is a valid enum value.
func (k PresenceEventKind) Validate() error {
	switch k {
	case PresenceUpdated, PresenceLeft:
		return nil
	default:
		return fmt.Errorf("unknown presence event kind: %q", k)
	}
}

// Validate checks if the PresenceRecord has valid field values.
func (p *PresenceRecord) Validate() error {
	if p.Key == "" {
		return fmt.Errorf("presence key cannot be empty")
	}

	return nil
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
