package grid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Client provides instance-scoped Redis operations for the shared grid.
// All keys and channels are automatically namespaced with the instance name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// NewClient creates a new grid client for the specified instance.
// The client automatically namespaces all keys and channels with the instance name.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: Burrow instance identifier (must not be empty)
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the client should not be used.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
// Returns an error if Redis is not reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// GetRoom retrieves a room by ID.
// Returns (nil, redis.Nil) if the room doesn't exist.
// Use IsNotFound() to check for not-found errors.
func (c *Client) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	key := RoomKey(c.instanceName, roomID)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read room from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	room, err := HashToRoom(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize room: %w", err)
	}

	return room, nil
}

// GetRoomByOwner retrieves the room belonging to an owner identity via the
// owner index. Returns (nil, redis.Nil) if the owner has no room yet.
func (c *Client) GetRoomByOwner(ctx context.Context, owner string) (*Room, error) {
	roomID, err := c.rdb.Get(ctx, RoomOwnerKey(c.instanceName, owner)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to read owner index: %w", err)
	}

	return c.GetRoom(ctx, roomID)
}

// EnsureRoom returns the owner's room, creating it with default settings on
// first access. Exactly one room exists per owner: creation races are settled
// by SETNX on the owner index, and the loser reads the winner's room.
func (c *Client) EnsureRoom(ctx context.Context, owner string) (*Room, error) {
	if owner == "" {
		return nil, fmt.Errorf("owner cannot be empty")
	}

	existing, err := c.GetRoomByOwner(ctx, owner)
	if err == nil {
		return existing, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}

	now := time.Now().UnixMilli()
	room := &Room{
		ID:          uuid.New().String(),
		Owner:       owner,
		Title:       DefaultRoomTitle,
		GridSize:    DefaultGridSize,
		IsPublic:    false,
		CreatedAtMs: now,
		UpdatedAtMs: now,
	}

	// The candidate room hash is written before the index is claimed, so the
	// index can never point at a room whose write failed.
	if err := c.rdb.HSet(ctx, RoomKey(c.instanceName, room.ID), RoomToHash(room)).Err(); err != nil {
		return nil, fmt.Errorf("failed to write room to Redis: %w", err)
	}

	claimed, err := c.rdb.SetNX(ctx, RoomOwnerKey(c.instanceName, owner), room.ID, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim owner index: %w", err)
	}

	// Lost the creation race; discard the candidate, the winner's room is
	// authoritative
	if !claimed {
		if err := c.rdb.Del(ctx, RoomKey(c.instanceName, room.ID)).Err(); err != nil {
			return nil, fmt.Errorf("failed to discard candidate room: %w", err)
		}
		return c.GetRoomByOwner(ctx, owner)
	}

	return room, nil
}

// UpdateRoom replaces a room's settings with new data (full HMSET replacement)
// and stamps UpdatedAtMs. Validates the room before writing.
//
// Grid dimension changes do not move or clear existing tiles; cells that end
// up outside the new bounds stay in the tile hash as orphaned rows.
func (c *Client) UpdateRoom(ctx context.Context, room *Room) error {
	if err := room.Validate(); err != nil {
		return fmt.Errorf("invalid room: %w", err)
	}

	room.UpdatedAtMs = time.Now().UnixMilli()

	key := RoomKey(c.instanceName, room.ID)
	if err := c.rdb.HSet(ctx, key, RoomToHash(room)).Err(); err != nil {
		return fmt.Errorf("failed to update room in Redis: %w", err)
	}

	return nil
}

// GetTiles retrieves the full current tile set for a room, for initial client
// hydration. No pagination: rooms are bounded by grid_size^2 <= 1600 cells.
// An empty room returns an empty slice, not an error.
func (c *Client) GetTiles(ctx context.Context, roomID string) ([]Tile, error) {
	key := TilesKey(c.instanceName, roomID)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read tiles from Redis: %w", err)
	}

	tiles := make([]Tile, 0, len(hashData))
	for field, value := range hashData {
		tile, err := UnmarshalTile(value)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize tile at %s: %w", field, err)
		}
		tiles = append(tiles, *tile)
	}

	return tiles, nil
}

// UpsertTile replaces any existing tile at the cell atomically; the last call
// for a given cell wins. Publishes one tile-upserted event after the write.
func (c *Client) UpsertTile(ctx context.Context, tile *Tile) error {
	return c.UpsertTiles(ctx, []*Tile{tile})
}

// UpsertTiles applies a set of tile placements as one bulk write, then
// publishes one tile-upserted event per affected cell in slice order.
// Validates every tile before writing anything.
//
// Atomicity holds per cell only; no cross-cell guarantee is made.
func (c *Client) UpsertTiles(ctx context.Context, tiles []*Tile) error {
	if len(tiles) == 0 {
		return nil
	}

	pairs := make([]interface{}, 0, len(tiles)*2)
	for _, tile := range tiles {
		if err := tile.Validate(); err != nil {
			return fmt.Errorf("invalid tile: %w", err)
		}

		value, err := MarshalTile(tile)
		if err != nil {
			return fmt.Errorf("failed to serialize tile: %w", err)
		}

		pairs = append(pairs, CellField(tile.X, tile.Y), value)
	}

	roomID := tiles[0].RoomID
	key := TilesKey(c.instanceName, roomID)
	if err := c.rdb.HSet(ctx, key, pairs...).Err(); err != nil {
		return fmt.Errorf("failed to write tiles to Redis: %w", err)
	}

	for _, tile := range tiles {
		event := &TileEvent{
			Kind:   TileUpserted,
			RoomID: tile.RoomID,
			X:      tile.X,
			Y:      tile.Y,
			ItemID: tile.ItemID,
			Meta:   tile.Meta,
		}
		if err := c.publishTileEvent(ctx, roomID, event); err != nil {
			return err
		}
	}

	return nil
}

// RemoveTile deletes the tile at a cell if present and publishes one
// tile-removed event. Removing an absent cell is a no-op, not an error, and
// publishes nothing. Returns whether a tile was actually deleted.
func (c *Client) RemoveTile(ctx context.Context, roomID string, x, y int) (bool, error) {
	key := TilesKey(c.instanceName, roomID)

	deleted, err := c.rdb.HDel(ctx, key, CellField(x, y)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to remove tile from Redis: %w", err)
	}

	if deleted == 0 {
		return false, nil
	}

	event := &TileEvent{
		Kind:   TileRemoved,
		RoomID: roomID,
		X:      x,
		Y:      y,
	}
	if err := c.publishTileEvent(ctx, roomID, event); err != nil {
		return true, err
	}

	return true, nil
}

func (c *Client) publishTileEvent(ctx context.Context, roomID string, event *TileEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal tile event: %w", err)
	}

	channel := TileEventsChannel(c.instanceName, roomID)
	if err := c.rdb.Publish(ctx, channel, eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish tile event: %w", err)
	}

	return nil
}

// TrackPresence publishes (tracks) a session's record under its session key.
// Re-publishing replaces the previous value for that key and refreshes the
// heartbeat in the presence index. Publishes one presence-updated event.
//
// Each session exclusively owns its key; the synchronizer never writes one
// session's record under another's key.
func (c *Client) TrackPresence(ctx context.Context, roomID string, record *PresenceRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid presence record: %w", err)
	}

	value, err := MarshalPresenceRecord(record)
	if err != nil {
		return fmt.Errorf("failed to serialize presence record: %w", err)
	}

	if err := c.rdb.HSet(ctx, PresenceKey(c.instanceName, roomID), record.Key, value).Err(); err != nil {
		return fmt.Errorf("failed to write presence record to Redis: %w", err)
	}

	z := redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: record.Key,
	}
	if err := c.rdb.ZAdd(ctx, PresenceIndexKey(c.instanceName, roomID), z).Err(); err != nil {
		return fmt.Errorf("failed to update presence heartbeat: %w", err)
	}

	event := &PresenceEvent{
		Kind:   PresenceUpdated,
		RoomID: roomID,
		Record: *record,
	}
	return c.publishPresenceEvent(ctx, roomID, event)
}

// UntrackPresence removes a session's record from the room's aggregate,
// publishing one presence-left event if the record existed. Called on
// connection teardown; there is no explicit leave message in the protocol.
func (c *Client) UntrackPresence(ctx context.Context, roomID, sessionKey string) error {
	deleted, err := c.rdb.HDel(ctx, PresenceKey(c.instanceName, roomID), sessionKey).Result()
	if err != nil {
		return fmt.Errorf("failed to remove presence record from Redis: %w", err)
	}

	if err := c.rdb.ZRem(ctx, PresenceIndexKey(c.instanceName, roomID), sessionKey).Err(); err != nil {
		return fmt.Errorf("failed to remove presence heartbeat: %w", err)
	}

	if deleted == 0 {
		return nil
	}

	event := &PresenceEvent{
		Kind:   PresenceLeft,
		RoomID: roomID,
		Record: PresenceRecord{Key: sessionKey},
	}
	return c.publishPresenceEvent(ctx, roomID, event)
}

// TouchPresence refreshes a session's heartbeat without republishing its
// record, used by connection keepalives so an idle-but-connected session is
// never swept. Refresh-only (ZADD XX): touching a session that was already
// untracked or swept does not resurrect it.
func (c *Client) TouchPresence(ctx context.Context, roomID, sessionKey string) error {
	z := redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: sessionKey,
	}
	if err := c.rdb.ZAddXX(ctx, PresenceIndexKey(c.instanceName, roomID), z).Err(); err != nil {
		return fmt.Errorf("failed to refresh presence heartbeat: %w", err)
	}
	return nil
}

// PresenceSnapshot retrieves the current aggregate of all tracked records for
// a room (the "sync" snapshot a joining session receives before streaming
// per-key updates). Returns an empty slice for a room with no presence.
func (c *Client) PresenceSnapshot(ctx context.Context, roomID string) ([]PresenceRecord, error) {
	hashData, err := c.rdb.HGetAll(ctx, PresenceKey(c.instanceName, roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read presence from Redis: %w", err)
	}

	records := make([]PresenceRecord, 0, len(hashData))
	for _, value := range hashData {
		record, err := UnmarshalPresenceRecord(value)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize presence record: %w", err)
		}
		records = append(records, *record)
	}

	return records, nil
}

// SweepPresence evicts sessions whose heartbeat is older than maxAge,
// publishing a presence-left event for each. This is the membership tracking
// for connections that died without a clean teardown. Returns the number of
// sessions evicted.
func (c *Client) SweepPresence(ctx context.Context, roomID string, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	indexKey := PresenceIndexKey(c.instanceName, roomID)

	stale, err := c.rdb.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to query stale presence sessions: %w", err)
	}

	evicted := 0
	for _, sessionKey := range stale {
		if err := c.UntrackPresence(ctx, roomID, sessionKey); err != nil {
			return evicted, err
		}
		evicted++
	}

	return evicted, nil
}

func (c *Client) publishPresenceEvent(ctx context.Context, roomID string, event *PresenceEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal presence event: %w", err)
	}

	channel := PresenceEventsChannel(c.instanceName, roomID)
	if err := c.rdb.Publish(ctx, channel, eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish presence event: %w", err)
	}

	return nil
}

// TileSubscription represents an active Pub/Sub subscription to one room's
// tile events. Caller must call Close() when done to clean up resources.
// Subscriptions deliver full event objects via the Events() channel.
type TileSubscription struct {
	events <-chan *TileEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of tile events.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *TileSubscription) Events() <-chan *TileEvent {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors include JSON unmarshaling failures and other non-fatal issues.
// The subscription continues after errors - messages are skipped.
func (s *TileSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *TileSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// PresenceSubscription represents an active Pub/Sub subscription to one
// room's presence events. Caller must call Close() when done.
type PresenceSubscription struct {
	events <-chan *PresenceEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of presence events.
func (s *PresenceSubscription) Events() <-chan *PresenceEvent {
	return s.events
}

// Errors returns the channel of subscription errors.
func (s *PresenceSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
func (s *PresenceSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeTileEvents subscribes to committed tile mutations for one room.
// Returns a TileSubscription that delivers full event objects.
// Caller must call subscription.Close() when done.
// Context cancellation also stops the subscription.
//
// Events are delivered on a buffered channel (size 64) to prevent blocking
// the emitter. Delivery is best-effort real-time: consumers must tolerate
// both duplicates and gaps, and reconcile at reconnect via GetTiles
// (snapshot-then-stream).
func (c *Client) SubscribeTileEvents(ctx context.Context, roomID string) (*TileSubscription, error) {
	channel := TileEventsChannel(c.instanceName, roomID)
	pubsub := c.rdb.Subscribe(ctx, channel)

	eventsChan := make(chan *TileEvent, 64)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event TileEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					// Send error on error channel, skip message
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal tile event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &TileSubscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// SubscribePresenceEvents subscribes to presence updates for one room.
// Returns a PresenceSubscription that delivers full event objects.
// Caller must call subscription.Close() when done.
//
// Joiners should call PresenceSnapshot first, then stream; a race between the
// two can produce a duplicate update (harmless, replaces with equal value) or
// a briefly missed one (healed by the session's next re-publish).
func (c *Client) SubscribePresenceEvents(ctx context.Context, roomID string) (*PresenceSubscription, error) {
	channel := PresenceEventsChannel(c.instanceName, roomID)
	pubsub := c.rdb.Subscribe(ctx, channel)

	eventsChan := make(chan *PresenceEvent, 64)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event PresenceEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal presence event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &PresenceSubscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
// Use this to check if GetRoom, GetRoomByOwner, or a catalog lookup returned "not found".
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
