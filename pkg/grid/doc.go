// Package grid provides type-safe Go definitions and Redis schema patterns
// for the Burrow shared-room grid.
//
// # Overview
//
// The grid is the authoritative state system for collaborative rooms: a 2D
// square grid of tiles per room, each tile an item placement with free-form
// metadata. All Burrow components (mutation gateway, server, reconciler, CLI)
// interact with it via well-defined data structures stored in Redis.
//
// # Core Concepts
//
// Rooms are participant-owned spaces. Exactly one room exists per owner; it is
// created on first access and only its owner may mutate tiles or settings
// (single-writer regime).
//
// Tiles are item placements keyed by (room, x, y). A cell holds at most one
// tile; writes are last-writer-wins per cell with per-cell atomicity only.
//
// Tile events form the change feed: every committed upsert or removal is
// published to the room's channel in commit order, carrying enough detail to
// apply without a re-fetch. New subscribers hydrate with GetTiles first, then
// stream deltas (snapshot-then-stream).
//
// Presence is the ephemeral "who is where" aggregate: per-session records that
// are never part of room state and disappear when the session's connection is
// torn down or its heartbeat goes stale.
//
// # Multi-Instance Support
//
// All Redis keys and Pub/Sub channels are namespaced by instance name to
// enable multiple Burrow instances to safely coexist on a single Redis server
// without interference.
//
// # Usage Example
//
//	import "github.com/dyluth/burrow/pkg/grid"
//
//	client, err := grid.NewClient(&redis.Options{Addr: "localhost:6379"}, "default-1")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	room, err := client.EnsureRoom(ctx, "user-123")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Hydrate, then stream
//	tiles, _ := client.GetTiles(ctx, room.ID)
//	sub, _ := client.SubscribeTileEvents(ctx, room.ID)
//	defer sub.Close()
//
// # Redis Schema
//
// Rooms: burrow:{instance_name}:room:{room_id}
// Owner index: burrow:{instance_name}:room_owner:{owner}
// Tiles: burrow:{instance_name}:tiles:{room_id} (hash, field "x,y")
// Catalog: burrow:{instance_name}:catalog
// Presence: burrow:{instance_name}:room:{room_id}:presence
// Presence heartbeats: burrow:{instance_name}:room:{room_id}:presence_index
//
// Tile events: burrow:{instance_name}:room:{room_id}:tile_events
// Presence events: burrow:{instance_name}:room:{room_id}:presence_events
//
// # Design Principles
//
// - Per-cell atomicity: a tile is written or deleted as a single hash field;
//   no cross-cell transactions exist or are promised
// - LWW: the most recently committed write to a cell is authoritative
// - Isolation: instance namespacing prevents cross-instance interference
// - Ephemerality: presence is never persisted beyond its session's lifetime
package grid
