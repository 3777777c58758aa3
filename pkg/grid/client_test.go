package grid

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.NotNil(t, client)
		assert.Equal(t, "test-instance", client.instanceName)
	})

	t.Run("rejects empty instance name", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "instance name cannot be empty")
	})
}

func TestPing(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	err := client.Ping(ctx)
	assert.NoError(t, err)
}

// Room lifecycle tests
func TestEnsureRoom(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("creates room with defaults on first access", func(t *testing.T) {
		room, err := client.EnsureRoom(ctx, "owner-1")
		require.NoError(t, err)
		assert.Equal(t, "owner-1", room.Owner)
		assert.Equal(t, DefaultRoomTitle, room.Title)
		assert.Equal(t, DefaultGridSize, room.GridSize)
		assert.False(t, room.IsPublic)
		assert.NotEmpty(t, room.ID)
	})

	t.Run("returns the same room on repeat access", func(t *testing.T) {
		first, err := client.EnsureRoom(ctx, "owner-2")
		require.NoError(t, err)

		second, err := client.EnsureRoom(ctx, "owner-2")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("different owners get different rooms", func(t *testing.T) {
		a, err := client.EnsureRoom(ctx, "owner-a")
		require.NoError(t, err)
		b, err := client.EnsureRoom(ctx, "owner-b")
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("rejects empty owner", func(t *testing.T) {
		_, err := client.EnsureRoom(ctx, "")
		assert.Error(t, err)
	})
}

func TestEnsureRoomRace(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	countRooms := func() int {
		n := 0
		for _, key := range mr.Keys() {
			if strings.HasPrefix(key, "burrow:test-instance:room:") && !strings.Contains(key, ":presence") {
				n++
			}
		}
		return n
	}

	before := countRooms()

	var wg sync.WaitGroup
	rooms := make([]*Room, 4)
	errs := make([]error, 4)
	for i := range rooms {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rooms[i], errs[i] = client.EnsureRoom(ctx, "owner-race")
		}(i)
	}
	wg.Wait()

	for i := range rooms {
		require.NoError(t, errs[i])
		assert.Equal(t, rooms[0].ID, rooms[i].ID)
	}

	// Race losers discard their candidate room hashes; the owner index only
	// ever points at a room that was fully written
	assert.Equal(t, before+1, countRooms())

	indexed, err := mr.Get(RoomOwnerKey("test-instance", "owner-race"))
	require.NoError(t, err)
	assert.Equal(t, rooms[0].ID, indexed)
}

func TestGetRoom(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("retrieves existing room", func(t *testing.T) {
		created, err := client.EnsureRoom(ctx, "owner-get")
		require.NoError(t, err)

		retrieved, err := client.GetRoom(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, retrieved.ID)
		assert.Equal(t, created.Owner, retrieved.Owner)
		assert.Equal(t, created.GridSize, retrieved.GridSize)
	})

	t.Run("returns redis.Nil for non-existent room", func(t *testing.T) {
		_, err := client.GetRoom(ctx, uuid.New().String())
		assert.True(t, IsNotFound(err))
	})
}

func TestUpdateRoom(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("replaces settings and stamps update time", func(t *testing.T) {
		room, err := client.EnsureRoom(ctx, "owner-upd")
		require.NoError(t, err)

		room.Title = "Renamed"
		room.GridSize = 30
		room.IsPublic = true
		err = client.UpdateRoom(ctx, room)
		require.NoError(t, err)

		retrieved, err := client.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", retrieved.Title)
		assert.Equal(t, 30, retrieved.GridSize)
		assert.True(t, retrieved.IsPublic)
		assert.GreaterOrEqual(t, retrieved.UpdatedAtMs, retrieved.CreatedAtMs)
	})

	t.Run("rejects invalid grid size", func(t *testing.T) {
		room, err := client.EnsureRoom(ctx, "owner-upd2")
		require.NoError(t, err)

		room.GridSize = 9
		err = client.UpdateRoom(ctx, room)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid grid size")
	})

	t.Run("shrinking leaves out-of-bounds tiles in place", func(t *testing.T) {
		room, err := client.EnsureRoom(ctx, "owner-shrink")
		require.NoError(t, err)

		// Place a tile near the edge of the default 20x20 grid
		err = client.UpsertTile(ctx, &Tile{RoomID: room.ID, X: 18, Y: 18, ItemID: "lamp"})
		require.NoError(t, err)

		room.GridSize = 10
		err = client.UpdateRoom(ctx, room)
		require.NoError(t, err)

		// The orphaned row is still returned; nothing purges it
		tiles, err := client.GetTiles(ctx, room.ID)
		require.NoError(t, err)
		require.Len(t, tiles, 1)
		assert.Equal(t, 18, tiles[0].X)
	})
}

// Tile store tests
func TestUpsertAndGetTiles(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	room, err := client.EnsureRoom(ctx, "owner-tiles")
	require.NoError(t, err)

	t.Run("upsert then get returns the tile", func(t *testing.T) {
		tile := &Tile{
			RoomID: room.ID,
			X:      5,
			Y:      5,
			ItemID: "lamp",
			Meta:   map[string]any{"note": "hello"},
		}
		err := client.UpsertTile(ctx, tile)
		require.NoError(t, err)

		tiles, err := client.GetTiles(ctx, room.ID)
		require.NoError(t, err)
		require.Len(t, tiles, 1)
		assert.Equal(t, "lamp", tiles[0].ItemID)
		assert.Equal(t, "hello", tiles[0].Meta["note"])
	})

	t.Run("last write wins per cell", func(t *testing.T) {
		err := client.UpsertTile(ctx, &Tile{RoomID: room.ID, X: 5, Y: 5, ItemID: "chair"})
		require.NoError(t, err)

		tiles, err := client.GetTiles(ctx, room.ID)
		require.NoError(t, err)
		require.Len(t, tiles, 1)
		assert.Equal(t, "chair", tiles[0].ItemID)
	})

	t.Run("bulk upsert writes every cell", func(t *testing.T) {
		err := client.UpsertTiles(ctx, []*Tile{
			{RoomID: room.ID, X: 1, Y: 1, ItemID: "plant"},
			{RoomID: room.ID, X: 2, Y: 2, ItemID: "rug"},
		})
		require.NoError(t, err)

		tiles, err := client.GetTiles(ctx, room.ID)
		require.NoError(t, err)
		assert.Len(t, tiles, 3)
	})

	t.Run("rejects invalid tile", func(t *testing.T) {
		err := client.UpsertTile(ctx, &Tile{RoomID: room.ID, X: 3, Y: 3})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid tile")
	})

	t.Run("empty room returns empty slice", func(t *testing.T) {
		other, err := client.EnsureRoom(ctx, "owner-empty")
		require.NoError(t, err)

		tiles, err := client.GetTiles(ctx, other.ID)
		require.NoError(t, err)
		assert.Empty(t, tiles)
	})
}

func TestRemoveTile(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	room, err := client.EnsureRoom(ctx, "owner-rm")
	require.NoError(t, err)

	t.Run("removes existing tile", func(t *testing.T) {
		err := client.UpsertTile(ctx, &Tile{RoomID: room.ID, X: 4, Y: 4, ItemID: "lamp"})
		require.NoError(t, err)

		deleted, err := client.RemoveTile(ctx, room.ID, 4, 4)
		require.NoError(t, err)
		assert.True(t, deleted)

		tiles, err := client.GetTiles(ctx, room.ID)
		require.NoError(t, err)
		assert.Empty(t, tiles)
	})

	t.Run("removing an absent cell is a no-op", func(t *testing.T) {
		deleted, err := client.RemoveTile(ctx, room.ID, 9, 9)
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

// Change feed tests
func TestTileEvents(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	room, err := client.EnsureRoom(ctx, "owner-feed")
	require.NoError(t, err)

	t.Run("upsert publishes tile-upserted", func(t *testing.T) {
		sub, err := client.SubscribeTileEvents(ctx, room.ID)
		require.NoError(t, err)
		defer sub.Close()

		err = client.UpsertTile(ctx, &Tile{RoomID: room.ID, X: 7, Y: 8, ItemID: "lamp"})
		require.NoError(t, err)

		select {
		case event := <-sub.Events():
			assert.Equal(t, TileUpserted, event.Kind)
			assert.Equal(t, 7, event.X)
			assert.Equal(t, 8, event.Y)
			assert.Equal(t, "lamp", event.ItemID)
		case <-time.After(1 * time.Second):
			t.Fatal("timeout waiting for tile event")
		}
	})

	t.Run("remove publishes tile-removed", func(t *testing.T) {
		sub, err := client.SubscribeTileEvents(ctx, room.ID)
		require.NoError(t, err)
		defer sub.Close()

		deleted, err := client.RemoveTile(ctx, room.ID, 7, 8)
		require.NoError(t, err)
		require.True(t, deleted)

		select {
		case event := <-sub.Events():
			assert.Equal(t, TileRemoved, event.Kind)
			assert.Equal(t, 7, event.X)
			assert.Equal(t, 8, event.Y)
		case <-time.After(1 * time.Second):
			t.Fatal("timeout waiting for tile event")
		}
	})

	t.Run("no-op remove publishes nothing", func(t *testing.T) {
		sub, err := client.SubscribeTileEvents(ctx, room.ID)
		require.NoError(t, err)
		defer sub.Close()

		deleted, err := client.RemoveTile(ctx, room.ID, 15, 15)
		require.NoError(t, err)
		require.False(t, deleted)

		select {
		case event := <-sub.Events():
			t.Fatalf("unexpected event: %+v", event)
		case <-time.After(100 * time.Millisecond):
			// Expected: nothing delivered
		}
	})

	t.Run("events are room-scoped", func(t *testing.T) {
		other, err := client.EnsureRoom(ctx, "owner-feed-other")
		require.NoError(t, err)

		sub, err := client.SubscribeTileEvents(ctx, other.ID)
		require.NoError(t, err)
		defer sub.Close()

		err = client.UpsertTile(ctx, &Tile{RoomID: room.ID, X: 1, Y: 2, ItemID: "rug"})
		require.NoError(t, err)

		select {
		case event := <-sub.Events():
			t.Fatalf("unexpected cross-room event: %+v", event)
		case <-time.After(100 * time.Millisecond):
			// Expected: nothing delivered
		}
	})

	t.Run("bulk upsert publishes one event per cell in order", func(t *testing.T) {
		sub, err := client.SubscribeTileEvents(ctx, room.ID)
		require.NoError(t, err)
		defer sub.Close()

		err = client.UpsertTiles(ctx, []*Tile{
			{RoomID: room.ID, X: 0, Y: 0, ItemID: "plant"},
			{RoomID: room.ID, X: 0, Y: 1, ItemID: "sign"},
		})
		require.NoError(t, err)

		var got []string
		for len(got) < 2 {
			select {
			case event := <-sub.Events():
				got = append(got, event.ItemID)
			case <-time.After(1 * time.Second):
				t.Fatal("timeout waiting for tile events")
			}
		}
		assert.Equal(t, []string{"plant", "sign"}, got)
	})
}

// Presence tests
func TestPresence(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	room, err := client.EnsureRoom(ctx, "owner-presence")
	require.NoError(t, err)

	t.Run("track then snapshot returns the record", func(t *testing.T) {
		record := &PresenceRecord{Key: "user-1", Username: "alice", Color: "#2563eb", Avatar: "🐱", X: 3, Y: 4}
		err := client.TrackPresence(ctx, room.ID, record)
		require.NoError(t, err)

		records, err := client.PresenceSnapshot(ctx, room.ID)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "alice", records[0].Username)
		assert.Equal(t, 3, records[0].X)
	})

	t.Run("re-publish replaces the record for that key only", func(t *testing.T) {
		err := client.TrackPresence(ctx, room.ID, &PresenceRecord{Key: "user-2", Username: "bob"})
		require.NoError(t, err)

		err = client.TrackPresence(ctx, room.ID, &PresenceRecord{Key: "user-1", Username: "alice", X: 9, Y: 9})
		require.NoError(t, err)

		records, err := client.PresenceSnapshot(ctx, room.ID)
		require.NoError(t, err)
		require.Len(t, records, 2)

		byKey := map[string]PresenceRecord{}
		for _, r := range records {
			byKey[r.Key] = r
		}
		assert.Equal(t, 9, byKey["user-1"].X)
		assert.Equal(t, "bob", byKey["user-2"].Username)
	})

	t.Run("untrack removes the record and publishes presence-left", func(t *testing.T) {
		sub, err := client.SubscribePresenceEvents(ctx, room.ID)
		require.NoError(t, err)
		defer sub.Close()

		err = client.UntrackPresence(ctx, room.ID, "user-2")
		require.NoError(t, err)

		select {
		case event := <-sub.Events():
			assert.Equal(t, PresenceLeft, event.Kind)
			assert.Equal(t, "user-2", event.Record.Key)
		case <-time.After(1 * time.Second):
			t.Fatal("timeout waiting for presence event")
		}

		records, err := client.PresenceSnapshot(ctx, room.ID)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "user-1", records[0].Key)
	})

	t.Run("untracking an absent session publishes nothing", func(t *testing.T) {
		sub, err := client.SubscribePresenceEvents(ctx, room.ID)
		require.NoError(t, err)
		defer sub.Close()

		err = client.UntrackPresence(ctx, room.ID, "never-joined")
		require.NoError(t, err)

		select {
		case event := <-sub.Events():
			t.Fatalf("unexpected event: %+v", event)
		case <-time.After(100 * time.Millisecond):
			// Expected: nothing delivered
		}
	})

	t.Run("track publishes presence-updated", func(t *testing.T) {
		sub, err := client.SubscribePresenceEvents(ctx, room.ID)
		require.NoError(t, err)
		defer sub.Close()

		err = client.TrackPresence(ctx, room.ID, &PresenceRecord{Key: "user-3", Username: "carol", X: 1, Y: 1})
		require.NoError(t, err)

		select {
		case event := <-sub.Events():
			assert.Equal(t, PresenceUpdated, event.Kind)
			assert.Equal(t, "user-3", event.Record.Key)
			assert.Equal(t, "carol", event.Record.Username)
		case <-time.After(1 * time.Second):
			t.Fatal("timeout waiting for presence event")
		}
	})
}

func TestSweepPresence(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	room, err := client.EnsureRoom(ctx, "owner-sweep")
	require.NoError(t, err)

	err = client.TrackPresence(ctx, room.ID, &PresenceRecord{Key: "stale-user"})
	require.NoError(t, err)

	t.Run("fresh sessions survive the sweep", func(t *testing.T) {
		evicted, err := client.SweepPresence(ctx, room.ID, time.Minute)
		require.NoError(t, err)
		assert.Zero(t, evicted)
	})

	t.Run("stale sessions are evicted and announced", func(t *testing.T) {
		sub, err := client.SubscribePresenceEvents(ctx, room.ID)
		require.NoError(t, err)
		defer sub.Close()

		// Zero max age: every tracked session is stale
		evicted, err := client.SweepPresence(ctx, room.ID, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, evicted)

		select {
		case event := <-sub.Events():
			assert.Equal(t, PresenceLeft, event.Kind)
			assert.Equal(t, "stale-user", event.Record.Key)
		case <-time.After(1 * time.Second):
			t.Fatal("timeout waiting for presence event")
		}

		records, err := client.PresenceSnapshot(ctx, room.ID)
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestTouchPresence(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	room, err := client.EnsureRoom(ctx, "owner-touch")
	require.NoError(t, err)

	t.Run("keepalive saves an idle session from the sweep", func(t *testing.T) {
		err := client.TrackPresence(ctx, room.ID, &PresenceRecord{Key: "idle-user"})
		require.NoError(t, err)

		// Backdate the heartbeat far past any max age
		stale := redis.Z{
			Score:  float64(time.Now().Add(-time.Hour).UnixMilli()),
			Member: "idle-user",
		}
		err = client.rdb.ZAdd(ctx, PresenceIndexKey(client.instanceName, room.ID), stale).Err()
		require.NoError(t, err)

		err = client.TouchPresence(ctx, room.ID, "idle-user")
		require.NoError(t, err)

		evicted, err := client.SweepPresence(ctx, room.ID, time.Minute)
		require.NoError(t, err)
		assert.Zero(t, evicted)

		records, err := client.PresenceSnapshot(ctx, room.ID)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "idle-user", records[0].Key)
	})

	t.Run("does not resurrect an untracked session", func(t *testing.T) {
		err := client.UntrackPresence(ctx, room.ID, "idle-user")
		require.NoError(t, err)

		err = client.TouchPresence(ctx, room.ID, "idle-user")
		require.NoError(t, err)

		_, err = client.rdb.ZScore(ctx, PresenceIndexKey(client.instanceName, room.ID), "idle-user").Result()
		assert.True(t, IsNotFound(err))
	})
}

// Instance namespacing tests
func TestInstanceNamespacing(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	defer mr.Close()

	client1, err := NewClient(&redis.Options{Addr: mr.Addr()}, "instance-1")
	require.NoError(t, err)
	defer client1.Close()

	client2, err := NewClient(&redis.Options{Addr: mr.Addr()}, "instance-2")
	require.NoError(t, err)
	defer client2.Close()

	ctx := context.Background()

	t.Run("rooms are instance-isolated", func(t *testing.T) {
		room, err := client1.EnsureRoom(ctx, "shared-owner")
		require.NoError(t, err)

		_, err = client2.GetRoom(ctx, room.ID)
		assert.True(t, IsNotFound(err))
	})
}
