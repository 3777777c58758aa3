package grid

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Rooms are stored field-per-attribute so individual settings stay readable
// from the Redis CLI. Tiles and catalog entries are stored as whole-value JSON
// under a single hash field, because a tile is only ever written or deleted as
// a unit (per-cell atomicity) and never partially updated.

// RoomToHash converts a Room struct to a Redis hash format.
func RoomToHash(r *Room) map[string]interface{} {
	return map[string]interface{}{
		"id":            r.ID,
		"owner":         r.Owner,
		"title":         r.Title,
		"grid_size":     r.GridSize,
		"is_public":     strconv.FormatBool(r.IsPublic),
		"created_at_ms": r.CreatedAtMs,
		"updated_at_ms": r.UpdatedAtMs,
	}
}

// HashToRoom converts a Redis hash to a Room struct.
func HashToRoom(hash map[string]string) (*Room, error) {
	gridSize, err := strconv.Atoi(hash["grid_size"])
	if err != nil {
		return nil, fmt.Errorf("invalid grid_size field: %w", err)
	}

	isPublic, _ := strconv.ParseBool(hash["is_public"])
	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)
	updatedAtMs, _ := strconv.ParseInt(hash["updated_at_ms"], 10, 64)

	room := &Room{
		ID:          hash["id"],
		Owner:       hash["owner"],
		Title:       hash["title"],
		GridSize:    gridSize,
		IsPublic:    isPublic,
		CreatedAtMs: createdAtMs,
		UpdatedAtMs: updatedAtMs,
	}

	return room, nil
}

// MarshalTile encodes a tile as the JSON value stored under its cell field.
func MarshalTile(t *Tile) (string, error) {
	// Ensure meta round-trips as an object, never null
	if t.Meta == nil {
		t.Meta = map[string]any{}
	}

	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tile: %w", err)
	}

	return string(data), nil
}

// UnmarshalTile decodes a tile from its stored JSON value.
func UnmarshalTile(value string) (*Tile, error) {
	var tile Tile
	if err := json.Unmarshal([]byte(value), &tile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tile: %w", err)
	}

	if tile.Meta == nil {
		tile.Meta = map[string]any{}
	}

	return &tile, nil
}

// MarshalCatalogEntry encodes a catalog entry as the JSON value stored under
// its catalog hash field.
func MarshalCatalogEntry(e *ItemCatalogEntry) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to marshal catalog entry: %w", err)
	}

	return string(data), nil
}

// UnmarshalCatalogEntry decodes a catalog entry from its stored JSON value.
func UnmarshalCatalogEntry(value string) (*ItemCatalogEntry, error) {
	var entry ItemCatalogEntry
	if err := json.Unmarshal([]byte(value), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog entry: %w", err)
	}

	return &entry, nil
}

// MarshalPresenceRecord encodes a presence record as the JSON value stored
// under its session field.
func MarshalPresenceRecord(p *PresenceRecord) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal presence record: %w", err)
	}

	return string(data), nil
}

// UnmarshalPresenceRecord decodes a presence record from its stored JSON value.
func UnmarshalPresenceRecord(value string) (*PresenceRecord, error) {
	var record PresenceRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presence record: %w", err)
	}

	return &record, nil
}
