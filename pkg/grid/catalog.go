package grid

import (
	"context"
	"fmt"
	"sort"
)

// Item catalog access
//
// The catalog is immutable reference data: one Redis hash mapping item ID to
// the entry as JSON. It is seeded once at startup and loaded once per session;
// nothing in the synchronizer mutates it afterwards.

// DefaultCatalog returns the built-in item set used to seed a fresh instance.
func DefaultCatalog() []ItemCatalogEntry {
	return []ItemCatalogEntry{
		{ID: "lamp", Label: "Lamp", Icon: "💡", Solid: false},
		{ID: "chair", Label: "Chair", Icon: "🪑", Solid: true},
		{ID: "table", Label: "Table", Icon: "🛋️", Solid: true},
		{ID: "plant", Label: "Plant", Icon: "🪴", Solid: true},
		{ID: "rug", Label: "Rug", Icon: "🧶", Solid: false},
		{ID: "bookshelf", Label: "Bookshelf", Icon: "📚", Solid: true},
		{ID: "fountain", Label: "Fountain", Icon: "⛲", Solid: true},
		{ID: "sign", Label: "Sign", Icon: "🪧", Solid: false},
	}
}

// SeedCatalog writes catalog entries that are not already present.
// Idempotent: existing entries are never overwritten, so re-running on
// startup is safe. Returns the number of entries actually written.
func (c *Client) SeedCatalog(ctx context.Context, entries []ItemCatalogEntry) (int, error) {
	key := CatalogKey(c.instanceName)

	written := 0
	for i := range entries {
		entry := &entries[i]
		if err := entry.Validate(); err != nil {
			return written, fmt.Errorf("invalid catalog entry: %w", err)
		}

		value, err := MarshalCatalogEntry(entry)
		if err != nil {
			return written, fmt.Errorf("failed to serialize catalog entry: %w", err)
		}

		set, err := c.rdb.HSetNX(ctx, key, entry.ID, value).Result()
		if err != nil {
			return written, fmt.Errorf("failed to seed catalog entry %s: %w", entry.ID, err)
		}
		if set {
			written++
		}
	}

	return written, nil
}

// GetCatalog retrieves all catalog entries, sorted by label for stable
// display order. An unseeded instance returns an empty slice.
func (c *Client) GetCatalog(ctx context.Context) ([]ItemCatalogEntry, error) {
	hashData, err := c.rdb.HGetAll(ctx, CatalogKey(c.instanceName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog from Redis: %w", err)
	}

	entries := make([]ItemCatalogEntry, 0, len(hashData))
	for id, value := range hashData {
		entry, err := UnmarshalCatalogEntry(value)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize catalog entry %s: %w", id, err)
		}
		entries = append(entries, *entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Label < entries[j].Label
	})

	return entries, nil
}
