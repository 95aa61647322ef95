package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dudaji/dudaji-chat/internal/docstore"
	"github.com/dudaji/dudaji-chat/internal/models"
)

var clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore() *docstore.MemoryStore {
	n := 0
	return docstore.NewMemoryStore(
		docstore.WithClock(func() time.Time { return clock }),
		docstore.WithKeyGenerator(func() string {
			n++
			return fmt.Sprintf("id%03d", n)
		}),
	)
}

func newTestController(store docstore.Store, opts ...AccessOption) *RoomAccessController {
	opts = append([]AccessOption{WithClock(func() time.Time { return clock })}, opts...)
	return NewRoomAccessController(store, opts...)
}

var (
	alice = models.Identity{UID: "A", DisplayName: "Alice", Email: "alice@example.com"}
	bob   = models.Identity{UID: "B", Email: "bob@example.com"}
	carol = models.Identity{UID: "C"}
)

func readMember(t *testing.T, store docstore.Store, roomID, uid string) (models.RoomMember, bool) {
	t.Helper()
	snap, err := store.Get(context.Background(), memberPath(roomID, uid))
	if err != nil {
		t.Fatal(err)
	}
	var m models.RoomMember
	if !snap.Exists() {
		return m, false
	}
	if err := snap.Decode(&m); err != nil {
		t.Fatal(err)
	}
	return m, true
}

func requestExists(t *testing.T, store docstore.Store, roomID, uid string) bool {
	t.Helper()
	snap, err := store.Get(context.Background(), requestPath(roomID, uid))
	if err != nil {
		t.Fatal(err)
	}
	return snap.Exists()
}

func TestCreateRoomMakesCreatorSoleAdmin(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	c := newTestController(store)

	for _, creator := range []models.Identity{alice, bob, carol} {
		roomID, err := c.CreateRoom(ctx, "Team Chat", creator)
		if err != nil {
			t.Fatalf("CreateRoom(%s): %v", creator.UID, err)
		}
		members, err := c.GetRoomMembers(ctx, roomID)
		if err != nil {
			t.Fatal(err)
		}
		if len(members) != 1 {
			t.Fatalf("room %s has %d members, want 1", roomID, len(members))
		}
		m := members[0]
		if m.UID != creator.UID || m.Role != models.RoleAdmin || !m.IsOnline || m.JoinedAt != clock.UnixMilli() {
			t.Fatalf("creator member = %+v", m)
		}
		if m.DisplayName != creator.ResolvedName() {
			t.Fatalf("displayName = %q, want %q", m.DisplayName, creator.ResolvedName())
		}

		var room models.Room
		snap, _ := store.Get(ctx, roomPath(roomID))
		if err := snap.Decode(&room); err != nil {
			t.Fatal(err)
		}
		if room.Name != "Team Chat" || room.CreatedBy != creator.UID || !room.IsPrivate ||
			room.CreatedAt != clock.UnixMilli() || room.Avatar != models.DefaultRoomAvatar {
			t.Fatalf("room metadata = %+v", room)
		}
	}
}

func TestCreateRoomValidation(t *testing.T) {
	c := newTestController(newTestStore())
	if _, err := c.CreateRoom(context.Background(), "   ", alice); !errors.Is(err, ErrInvalidRoomName) {
		t.Fatalf("blank name error = %v, want ErrInvalidRoomName", err)
	}
	if _, err := c.CreateRoom(context.Background(), "x", models.Identity{}); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("empty uid error = %v, want ErrInvalidIdentity", err)
	}
}

func TestSendJoinRequestIsPending(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	c := newTestController(store)
	roomID, _ := c.CreateRoom(ctx, "Team Chat", alice)

	if err := c.SendJoinRequest(ctx, roomID, bob, "let me in"); err != nil {
		t.Fatal(err)
	}
	snap, _ := store.Get(ctx, requestPath(roomID, "B"))
	var req models.JoinRequest
	if err := snap.Decode(&req); err != nil {
		t.Fatal(err)
	}
	if req.Status != models.StatusPending || req.RequestedAt != clock.UnixMilli() {
		t.Fatalf("request = %+v", req)
	}
	if req.DisplayName != "bob@example.com" || req.Message != "let me in" {
		t.Fatalf("request identity = %+v", req)
	}

	// Повторная заявка перезаписывает прежнюю.
	if err := c.SendJoinRequest(ctx, roomID, bob, "again"); err != nil {
		t.Fatal(err)
	}
	requests, _ := c.ListJoinRequests(ctx, roomID)
	if len(requests) != 1 || requests[0].Message != "again" {
		t.Fatalf("requests = %+v", requests)
	}
}

func TestApproveGrantsMembershipAndRemovesRequest(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	c := newTestController(store)
	roomID, _ := c.CreateRoom(ctx, "Team Chat", alice)
	c.SendJoinRequest(ctx, roomID, bob, "")

	if err := c.ApproveJoinRequest(ctx, roomID, "B", "A"); err != nil {
		t.Fatalf("ApproveJoinRequest: %v", err)
	}
	m, ok := readMember(t, store, roomID, "B")
	if !ok {
		t.Fatal("B is not a member after approval")
	}
	if m.Role != models.RoleMember || m.IsOnline || m.JoinedBy != "A" || m.JoinedAt != clock.UnixMilli() {
		t.Fatalf("approved member = %+v", m)
	}
	if requestExists(t, store, roomID, "B") {
		t.Fatal("join request still present after approval")
	}
}

func TestApproveIsSingleAtomicWrite(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	c := newTestController(store)
	roomID, _ := c.CreateRoom(ctx, "Team Chat", alice)
	c.SendJoinRequest(ctx, roomID, bob, "")

	type view struct{ member, request bool }
	var views []view
	unsub, err := store.Subscribe(ctx, roomPath(roomID), func(s docstore.Snapshot) {
		views = append(views, view{
			member:  s.Child("members/B").Exists(),
			request: s.Child("joinRequests/B").Exists(),
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()

	if err := c.ApproveJoinRequest(ctx, roomID, "B", "A"); err != nil {
		t.Fatal(err)
	}
	for _, v := range views {
		if v.member && v.request {
			t.Fatalf("observed member and request at once: %+v", views)
		}
	}
	if last := views[len(views)-1]; !last.member || last.request {
		t.Fatalf("final view = %+v", last)
	}
}

func TestApproveMissingRequest(t *testing.T) {
	ctx := context.Background()
	c := newTestController(newTestStore())
	roomID, _ := c.CreateRoom(ctx, "Team Chat", alice)

	err := c.ApproveJoinRequest(ctx, roomID, "B", "A")
	if !errors.Is(err, ErrJoinRequestNotFound) {
		t.Fatalf("error = %v, want ErrJoinRequestNotFound", err)
	}
}

func TestApproveRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	c := newTestController(store)
	roomID, _ := c.CreateRoom(ctx, "Team Chat", alice)
	c.SendJoinRequest(ctx, roomID, bob, "")
	c.SendJoinRequest(ctx, roomID, carol, "")
	c.ApproveJoinRequest(ctx, roomID, "B", "A")

	if err := c.ApproveJoinRequest(ctx, roomID, "C", "B"); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("member approving = %v, want ErrNotAdmin", err)
	}
	if !requestExists(t, store, roomID, "C") {
		t.Fatal("denied approval must leave the request untouched")
	}

	permissive := newTestController(store, WithEnforceAdmin(false))
	if err := permissive.ApproveJoinRequest(ctx, roomID, "C", "B"); err != nil {
		t.Fatalf("permissive approval: %v", err)
	}
	if m, _ := readMember(t, store, roomID, "C"); m.JoinedBy != "B" {
		t.Fatalf("joinedBy = %q, want B", m.JoinedBy)
	}
}

func TestRejectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	c := newTestController(store)
	roomID, _ := c.CreateRoom(ctx, "Team Chat", alice)
	c.SendJoinRequest(ctx, roomID, bob, "")

	for i := 0; i < 2; i++ {
		if err := c.RejectJoinRequest(ctx, roomID, "B"); err != nil {
			t.Fatalf("reject #%d: %v", i+1, err)
		}
		if requestExists(t, store, roomID, "B") {
			t.Fatalf("request present after reject #%d", i+1)
		}
	}
	if _, ok := readMember(t, store, roomID, "B"); ok {
		t.Fatal("rejected user became a member")
	}
}

func TestRolesNeverChange(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	c := newTestController(store)
	roomID, _ := c.CreateRoom(ctx, "Team Chat", alice)

	// Заявка и одобрение для уже существующего участника не меняют роль.
	c.SendJoinRequest(ctx, roomID, alice, "")
	if err := c.ApproveJoinRequest(ctx, roomID, "A", "A"); err != nil {
		t.Fatal(err)
	}
	c.SendJoinRequest(ctx, roomID, bob, "")
	c.ApproveJoinRequest(ctx, roomID, "B", "A")

	for _, uid := range []string{"A", "B"} {
		if err := c.JoinRoom(ctx, roomID, models.Identity{UID: uid}, nil); err != nil {
			t.Fatal(err)
		}
		if err := c.SetOnlineStatus(ctx, roomID, uid, false); err != nil {
			t.Fatal(err)
		}
		if err := c.SetOnlineStatus(ctx, roomID, uid, true); err != nil {
			t.Fatal(err)
		}
	}

	want := map[string]models.Role{"A": models.RoleAdmin, "B": models.RoleMember}
	members, _ := c.GetRoomMembers(ctx, roomID)
	if len(members) != 2 {
		t.Fatalf("members = %+v", members)
	}
	for _, m := range members {
		if m.Role != want[m.UID] {
			t.Fatalf("%s role = %q, want %q", m.UID, m.Role, want[m.UID])
		}
	}
	if requestExists(t, store, roomID, "A") {
		t.Fatal("request of existing member not removed")
	}
}

func TestFullLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	c := newTestController(store)

	roomID, err := c.CreateRoom(ctx, "Team Chat", models.Identity{UID: "A"})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SendJoinRequest(ctx, roomID, models.Identity{UID: "B"}, "let me in"); err != nil {
		t.Fatal(err)
	}
	state, _ := c.MembershipState(ctx, roomID, "B")
	if state != MembershipPending {
		t.Fatalf("state after request = %s", state)
	}
	if err := c.ApproveJoinRequest(ctx, roomID, "B", "A"); err != nil {
		t.Fatal(err)
	}
	if m, _ := readMember(t, store, roomID, "B"); m.Role != models.RoleMember {
		t.Fatalf("B role = %q", m.Role)
	}
	if requestExists(t, store, roomID, "B") {
		t.Fatal("B request still present")
	}
	if err := c.RejectJoinRequest(ctx, roomID, "C"); err != nil {
		t.Fatalf("reject of absent request: %v", err)
	}
	if err := c.LeaveRoom(ctx, roomID, "B"); err != nil {
		t.Fatal(err)
	}
	state, _ = c.MembershipState(ctx, roomID, "B")
	if state != MembershipNone {
		t.Fatalf("state after leave = %s", state)
	}
}

func TestJoinRoomRegistersDisconnectWrites(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	c := newTestController(store)
	roomID, _ := c.CreateRoom(ctx, "Team Chat", alice)
	c.SendJoinRequest(ctx, roomID, bob, "")
	c.ApproveJoinRequest(ctx, roomID, "B", "A")

	hooks := docstore.NewDisconnectHooks(store)
	if err := c.JoinRoom(ctx, roomID, bob, hooks); err != nil {
		t.Fatal(err)
	}
	if m, _ := readMember(t, store, roomID, "B"); !m.IsOnline {
		t.Fatal("B not online after JoinRoom")
	}
	if hooks.Pending() != 2 {
		t.Fatalf("pending disconnect writes = %d, want 2", hooks.Pending())
	}

	if err := hooks.Fire(ctx); err != nil {
		t.Fatal(err)
	}
	m, _ := readMember(t, store, roomID, "B")
	if m.IsOnline || m.LastSeen != clock.UnixMilli() || m.Role != models.RoleMember {
		t.Fatalf("member after disconnect = %+v", m)
	}
}

func TestJoinRoomCreatesMemberWhenAbsent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	c := newTestController(store)
	roomID, _ := c.CreateRoom(ctx, "Team Chat", alice)

	if err := c.JoinRoom(ctx, roomID, carol, nil); err != nil {
		t.Fatal(err)
	}
	m, ok := readMember(t, store, roomID, "C")
	if !ok || m.Role != models.RoleMember || !m.IsOnline || m.DisplayName != "Anonymous" {
		t.Fatalf("joined member = %+v", m)
	}
}

func TestSetOnlineStatus(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	c := newTestController(store)
	roomID, _ := c.CreateRoom(ctx, "Team Chat", alice)

	if err := c.SetOnlineStatus(ctx, roomID, "A", false); err != nil {
		t.Fatal(err)
	}
	m, _ := readMember(t, store, roomID, "A")
	if m.IsOnline || m.LastSeen != clock.UnixMilli() {
		t.Fatalf("after offline = %+v", m)
	}

	if err := c.SetOnlineStatus(ctx, roomID, "Z", true); !errors.Is(err, ErrNotMember) {
		t.Fatalf("non-member status = %v, want ErrNotMember", err)
	}
	if _, ok := readMember(t, store, roomID, "Z"); ok {
		t.Fatal("status update created a member without role")
	}
}

func TestGetRoomMembersOfMissingRoom(t *testing.T) {
	c := newTestController(newTestStore())
	members, err := c.GetRoomMembers(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 0 {
		t.Fatalf("members = %+v, want empty", members)
	}
}

func TestMembershipState(t *testing.T) {
	ctx := context.Background()
	c := newTestController(newTestStore())
	roomID, _ := c.CreateRoom(ctx, "Team Chat", alice)
	c.SendJoinRequest(ctx, roomID, bob, "")

	tests := []struct {
		uid  string
		want Membership
	}{
		{"A", MembershipAdmin},
		{"B", MembershipPending},
		{"C", MembershipNone},
	}
	for _, tt := range tests {
		got, err := c.MembershipState(ctx, roomID, tt.uid)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("MembershipState(%s) = %s, want %s", tt.uid, got, tt.want)
		}
	}
	if _, err := c.MembershipState(ctx, "missing", "A"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("missing room = %v, want ErrRoomNotFound", err)
	}
}

type failingStore struct {
	docstore.Store
}

var errBackend = errors.New("permission denied")

func (failingStore) Set(context.Context, string, any) error { return errBackend }
func (failingStore) Update(context.Context, map[string]any) error { return errBackend }
func (failingStore) Push(context.Context, string, any) (string, error) {
	return "", errBackend
}

func TestWriteFailuresPropagate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	setup := newTestController(store)
	roomID, _ := setup.CreateRoom(ctx, "Team Chat", alice)
	setup.SendJoinRequest(ctx, roomID, bob, "")

	c := newTestController(failingStore{store})
	calls := map[string]func() error{
		"create":  func() error { _, err := c.CreateRoom(ctx, "x", alice); return err },
		"request": func() error { return c.SendJoinRequest(ctx, roomID, carol, "") },
		"approve": func() error { return c.ApproveJoinRequest(ctx, roomID, "B", "A") },
		"reject":  func() error { return c.RejectJoinRequest(ctx, roomID, "B") },
		"join":    func() error { return c.JoinRoom(ctx, roomID, alice, nil) },
		"leave":   func() error { return c.LeaveRoom(ctx, roomID, "A") },
		"status":  func() error { return c.SetOnlineStatus(ctx, roomID, "A", false) },
	}
	for name, call := range calls {
		err := call()
		if !errors.Is(err, ErrWriteFailure) || !errors.Is(err, errBackend) {
			t.Errorf("%s error = %v, want WriteError wrapping backend error", name, err)
		}
		var we *WriteError
		if !errors.As(err, &we) {
			t.Errorf("%s error is %T, want *WriteError", name, err)
		}
	}
}
