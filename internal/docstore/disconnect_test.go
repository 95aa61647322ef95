package docstore

import (
	"context"
	"errors"
	"testing"
)

func TestDisconnectHooksFire(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	if err := store.Set(ctx, "rooms/r1/members/a", map[string]any{"role": "member", "isOnline": true}); err != nil {
		t.Fatal(err)
	}

	hooks := NewDisconnectHooks(store)
	hooks.OnDisconnect("rooms/r1/members/a/isOnline", false)
	hooks.OnDisconnect("rooms/r1/members/a/lastSeen", ServerTimestamp)
	if hooks.Pending() != 2 {
		t.Fatalf("Pending() = %d, want 2", hooks.Pending())
	}

	if err := hooks.Fire(ctx); err != nil {
		t.Fatalf("Fire: %v", err)
	}
	member, _ := store.Get(ctx, "rooms/r1/members/a")
	var got struct {
		Role     string `json:"role"`
		IsOnline bool   `json:"isOnline"`
		LastSeen int64  `json:"lastSeen"`
	}
	if err := member.Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.IsOnline || got.LastSeen != epoch.UnixMilli() || got.Role != "member" {
		t.Fatalf("member after disconnect = %+v", got)
	}
	if hooks.Pending() != 0 {
		t.Fatal("Fire must drain the queue")
	}
}

func TestDisconnectHooksSkipDeletedParents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	hooks := NewDisconnectHooks(store)
	hooks.OnDisconnect("rooms/r1/members/a/isOnline", false)
	if err := hooks.Fire(ctx); err != nil {
		t.Fatal(err)
	}
	snap, _ := store.Get(ctx, "rooms/r1/members/a")
	if snap.Exists() {
		t.Fatalf("disconnect write recreated a removed member: %v", snap.Value())
	}
}

func TestDisconnectHooksCancelPrefix(t *testing.T) {
	store := newTestStore()
	hooks := NewDisconnectHooks(store)
	hooks.OnDisconnect("rooms/r1/members/a/isOnline", false)
	hooks.OnDisconnect("rooms/r2/members/a/isOnline", false)

	hooks.Cancel("rooms/r1")
	if hooks.Pending() != 1 {
		t.Fatalf("Pending() = %d after Cancel(rooms/r1), want 1", hooks.Pending())
	}
	hooks.Cancel("")
	if hooks.Pending() != 0 {
		t.Fatal("Cancel(\"\") must drop everything")
	}
}

// singleDocumentStore отклоняет Update, затрагивающий несколько
// документов, как это делает MongoStore.
type singleDocumentStore struct {
	*MemoryStore
}

func sameDocument(paths []string) error {
	var doc string
	for _, p := range paths {
		segs, err := splitWritePath(p)
		if err != nil {
			return err
		}
		d := segs[0] + "/" + segs[1]
		if doc != "" && d != doc {
			return ErrCrossDocument
		}
		doc = d
	}
	return nil
}

func updatePaths(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func (s singleDocumentStore) Update(ctx context.Context, updates map[string]any) error {
	if err := sameDocument(updatePaths(updates)); err != nil {
		return err
	}
	return s.MemoryStore.Update(ctx, updates)
}

func (s singleDocumentStore) UpdateIfExists(ctx context.Context, parent string, updates map[string]any) error {
	if err := sameDocument(append(updatePaths(updates), parent)); err != nil {
		return err
	}
	return s.MemoryStore.UpdateIfExists(ctx, parent, updates)
}

func TestDisconnectHooksFireAcrossDocuments(t *testing.T) {
	ctx := context.Background()
	mem := newTestStore()
	for _, room := range []string{"r1", "r2"} {
		if err := mem.Set(ctx, "rooms/"+room+"/members/a", map[string]any{"role": "member", "isOnline": true}); err != nil {
			t.Fatal(err)
		}
	}

	hooks := NewDisconnectHooks(singleDocumentStore{mem})
	for _, room := range []string{"r1", "r2"} {
		hooks.OnDisconnect("rooms/"+room+"/members/a/isOnline", false)
		hooks.OnDisconnect("rooms/"+room+"/members/a/lastSeen", ServerTimestamp)
	}
	if err := hooks.Fire(ctx); err != nil {
		t.Fatalf("Fire: %v", err)
	}

	for _, room := range []string{"r1", "r2"} {
		online, _ := mem.Get(ctx, "rooms/"+room+"/members/a/isOnline")
		if online.Value() != false {
			t.Errorf("%s isOnline = %v, want false", room, online.Value())
		}
		role, _ := mem.Get(ctx, "rooms/"+room+"/members/a/role")
		if role.Value() != "member" {
			t.Errorf("%s role = %v, want member", room, role.Value())
		}
	}
}

// leaveFirstStore удаляет участника прямо перед записью, как LeaveRoom,
// пришедший одновременно с обрывом соединения.
type leaveFirstStore struct {
	*MemoryStore
}

func (s leaveFirstStore) UpdateIfExists(ctx context.Context, parent string, updates map[string]any) error {
	if err := s.MemoryStore.Set(ctx, parent, nil); err != nil {
		return err
	}
	return s.MemoryStore.UpdateIfExists(ctx, parent, updates)
}

func TestDisconnectHooksConcurrentLeave(t *testing.T) {
	ctx := context.Background()
	mem := newTestStore()
	if err := mem.Set(ctx, "rooms/r1/members/a", map[string]any{"role": "member", "isOnline": true}); err != nil {
		t.Fatal(err)
	}

	hooks := NewDisconnectHooks(leaveFirstStore{mem})
	hooks.OnDisconnect("rooms/r1/members/a/isOnline", false)
	hooks.OnDisconnect("rooms/r1/members/a/lastSeen", ServerTimestamp)
	if err := hooks.Fire(ctx); err != nil {
		t.Fatal(err)
	}

	snap, _ := mem.Get(ctx, "rooms/r1/members/a")
	if snap.Exists() {
		t.Fatalf("disconnect write recreated a member without role: %v", snap.Value())
	}
}

func TestUpdateIfExistsRejectsPathsOutsideParent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	if err := store.Set(ctx, "rooms/r1/members/a/role", "member"); err != nil {
		t.Fatal(err)
	}
	tests := []map[string]any{
		{"rooms/r1/members/b/isOnline": false},
		{"rooms/r1/members/a": nil},
		{"rooms/r2/members/a/isOnline": false},
	}
	for _, updates := range tests {
		err := store.UpdateIfExists(ctx, "rooms/r1/members/a", updates)
		if !errors.Is(err, ErrOutsideParent) {
			t.Errorf("UpdateIfExists(%v) error = %v, want ErrOutsideParent", updates, err)
		}
	}
}
