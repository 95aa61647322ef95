package docstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Общие проверки для внешних бэкендов. Запускаются только при заданных
// TEST_REDIS_URL / TEST_MONGO_URI.

func exerciseBackend(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	roomID, err := store.Push(ctx, "rooms", map[string]any{
		"name":    "Team Chat",
		"members": map[string]any{"a": map[string]any{"role": "admin"}},
	})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	t.Cleanup(func() { store.Set(context.Background(), "rooms/"+roomID, nil) })

	updates := make(chan Snapshot, 8)
	unsub, err := store.Subscribe(ctx, "rooms/"+roomID+"/members", func(s Snapshot) { updates <- s })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsub()
	<-updates

	if err := store.Update(ctx, map[string]any{
		"rooms/" + roomID + "/members/b":      map[string]any{"role": "member"},
		"rooms/" + roomID + "/joinRequests/b": nil,
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	select {
	case snap := <-updates:
		if n := len(snap.Children()); n != 2 {
			t.Fatalf("members after update = %d, want 2", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}

	role, err := store.Get(ctx, "rooms/"+roomID+"/members/b/role")
	if err != nil {
		t.Fatal(err)
	}
	if role.Value() != "member" {
		t.Fatalf("role = %v, want member", role.Value())
	}

	rooms, err := store.Get(ctx, "rooms")
	if err != nil {
		t.Fatal(err)
	}
	if !rooms.Child(roomID).Exists() {
		t.Fatal("collection read misses pushed room")
	}

	member := "rooms/" + roomID + "/members/b"
	if err := store.UpdateIfExists(ctx, member, map[string]any{member + "/isOnline": false}); err != nil {
		t.Fatalf("UpdateIfExists: %v", err)
	}
	if online, _ := store.Get(ctx, member+"/isOnline"); online.Value() != false {
		t.Fatalf("isOnline = %v, want false", online.Value())
	}
	ghost := "rooms/" + roomID + "/members/c"
	if err := store.UpdateIfExists(ctx, ghost, map[string]any{ghost + "/isOnline": false}); err != nil {
		t.Fatalf("UpdateIfExists on absent parent: %v", err)
	}
	if snap, _ := store.Get(ctx, ghost); snap.Exists() {
		t.Fatalf("UpdateIfExists created absent parent: %v", snap.Value())
	}

	if err := store.Set(ctx, "rooms/"+roomID+"/name/x", nil); err != nil {
		t.Fatalf("delete under leaf: %v", err)
	}
	if name, _ := store.Get(ctx, "rooms/"+roomID+"/name"); name.Value() != "Team Chat" {
		t.Fatalf("name after deleting a child of it = %v", name.Value())
	}
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatal(err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	store, err := NewRedisStore(context.Background(), rdb)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	exerciseBackend(t, store)
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Disconnect(ctx)

	store := NewMongoStore(client.Database("dudaji_chat_test"))
	defer store.Close()
	exerciseBackend(t, store)

	err = store.Update(ctx, map[string]any{
		"rooms/x/name": "a",
		"rooms/y/name": "b",
	})
	if err == nil {
		t.Fatal("cross-document update should fail")
	}
}

func TestMemoryStoreBackendContract(t *testing.T) {
	exerciseBackend(t, NewMemoryStore())
}
