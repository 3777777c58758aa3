package grid

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name to enable
// multiple Burrow instances to safely coexist on a single Redis server.
//
// Key pattern: burrow:{instance_name}:{entity}:{id}
// Channel pattern: burrow:{instance_name}:room:{room_id}:{event_type}_events

// RoomKey returns the Redis key for a room's settings hash.
// Pattern: burrow:{instance_name}:room:{room_id}
func RoomKey(instanceName, roomID string) string {
	return fmt.Sprintf("burrow:%s:room:%s", instanceName, roomID)
}

// RoomOwnerKey returns the Redis key for the owner->room index.
// This enforces the one-room-per-owner rule and enables lookup by identity.
// Pattern: burrow:{instance_name}:room_owner:{owner}
func RoomOwnerKey(instanceName, owner string) string {
	return fmt.Sprintf("burrow:%s:room_owner:%s", instanceName, owner)
}

// TilesKey returns the Redis key for a room's tile hash.
// Each occupied cell is one hash field keyed "x,y" holding the tile as JSON,
// so per-cell writes are single-field operations (per-cell atomicity only).
// Pattern: burrow:{instance_name}:tiles:{room_id}
func TilesKey(instanceName, roomID string) string {
	return fmt.Sprintf("burrow:%s:tiles:%s", instanceName, roomID)
}

// CatalogKey returns the Redis key for the item catalog hash.
// Pattern: burrow:{instance_name}:catalog
func CatalogKey(instanceName string) string {
	return fmt.Sprintf("burrow:%s:catalog", instanceName)
}

// PresenceKey returns the Redis key for a room's live presence hash.
// Each tracked session is one hash field keyed by session key.
// Pattern: burrow:{instance_name}:room:{room_id}:presence
func PresenceKey(instanceName, roomID string) string {
	return fmt.Sprintf("burrow:%s:room:%s:presence", instanceName, roomID)
}

// PresenceIndexKey returns the Redis key for a room's presence heartbeat ZSET.
// Members are session keys scored by last-heartbeat Unix milliseconds; the
// sweeper uses it to evict sessions whose connection went away.
// Pattern: burrow:{instance_name}:room:{room_id}:presence_index
func PresenceIndexKey(instanceName, roomID string) string {
	return fmt.Sprintf("burrow:%s:room:%s:presence_index", instanceName, roomID)
}

// TileEventsChannel returns the Pub/Sub channel name for a room's committed
// tile mutations. Subscription is scoped per room; no cross-room fan-in.
// Pattern: burrow:{instance_name}:room:{room_id}:tile_events
func TileEventsChannel(instanceName, roomID string) string {
	return fmt.Sprintf("burrow:%s:room:%s:tile_events", instanceName, roomID)
}

// PresenceEventsChannel returns the Pub/Sub channel name for a room's
// presence updates.
// Pattern: burrow:{instance_name}:room:{room_id}:presence_events
func PresenceEventsChannel(instanceName, roomID string) string {
	return fmt.Sprintf("burrow:%s:room:%s:presence_events", instanceName, roomID)
}

// CellField returns the tile hash field name for a cell.
// Pattern: "x,y"
func CellField(x, y int) string {
	return fmt.Sprintf("%d,%d", x, y)
}
