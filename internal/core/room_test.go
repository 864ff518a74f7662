package core

import (
	"fmt"
	"testing"

	"github.com/axiomchronicles/drevoid-server/internal/auth"
	"github.com/axiomchronicles/drevoid-server/internal/proto"
)

func testSession(name string) *Session {
	return newSession("conn-"+name, name, RoleUser, 256)
}

func TestJoinPrivateRoomPassword(t *testing.T) {
	hash, err := auth.HashPassword("x1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	room := newRoom("dev", VisibilityPrivate, hash, 10, 50)
	bob := testSession("bob")

	if err := room.Join(bob, "wrong"); err != ErrWrongPassword {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}
	if err := room.Join(bob, "x1"); err != nil {
		t.Fatalf("join with correct password: %v", err)
	}
}

func TestJoinLockedRoom(t *testing.T) {
	room := newRoom("ops", VisibilityPublic, "", 10, 50)
	dave := testSession("dave")
	if err := room.Join(dave, ""); err != nil {
		t.Fatalf("join before lock: %v", err)
	}

	room.SetLocked(true)
	carol := testSession("carol")
	if err := room.Join(carol, ""); err != ErrRoomLocked {
		t.Fatalf("expected ErrRoomLocked, got %v", err)
	}
	// Existing members are unaffected; rejoining is a no-op.
	if err := room.Join(dave, ""); err != nil {
		t.Fatalf("member rejoin while locked: %v", err)
	}

	room.SetLocked(false)
	if err := room.Join(carol, ""); err != nil {
		t.Fatalf("join after unlock: %v", err)
	}
}

func TestJoinFullRoom(t *testing.T) {
	room := newRoom("tiny", VisibilityPublic, "", 2, 50)
	for _, name := range []string{"a", "b"} {
		if err := room.Join(testSession(name), ""); err != nil {
			t.Fatalf("join %s: %v", name, err)
		}
	}
	if err := room.Join(testSession("c"), ""); err != ErrRoomFull {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}

	room.Leave("a")
	if err := room.Join(testSession("c"), ""); err != nil {
		t.Fatalf("join after a seat freed: %v", err)
	}
}

func TestJoinFromValidatesBeforeLeaving(t *testing.T) {
	hash, err := auth.HashPassword("pw")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	home := newRoom("home", VisibilityPublic, "", 10, 50)
	bob := testSession("bob")
	if err := home.Join(bob, ""); err != nil {
		t.Fatalf("join home: %v", err)
	}
	bob.setRoom("home")

	full := newRoom("full", VisibilityPublic, "", 1, 50)
	if err := full.Join(testSession("occupant"), ""); err != nil {
		t.Fatalf("fill room: %v", err)
	}
	locked := newRoom("locked", VisibilityPublic, "", 10, 50)
	locked.SetLocked(true)
	private := newRoom("private", VisibilityPrivate, hash, 10, 50)

	cases := []struct {
		dst      *Room
		password string
		want     error
	}{
		{full, "", ErrRoomFull},
		{locked, "", ErrRoomLocked},
		{private, "bad", ErrWrongPassword},
	}
	for _, tc := range cases {
		if err := tc.dst.JoinFrom(bob, home, tc.password); err != tc.want {
			t.Fatalf("JoinFrom(%s) = %v, want %v", tc.dst.Name(), err, tc.want)
		}
		// A rejected admission leaves the old membership untouched.
		if !home.Leave("bob") {
			t.Fatalf("bob lost home membership after rejected %s join", tc.dst.Name())
		}
		home.Join(bob, "")
		if bob.Room() != "home" {
			t.Fatalf("room pointer = %q after rejected %s join", bob.Room(), tc.dst.Name())
		}
	}

	if err := private.JoinFrom(bob, home, "pw"); err != nil {
		t.Fatalf("JoinFrom with correct password: %v", err)
	}
	if home.Leave("bob") {
		t.Fatal("bob still a member of home after transfer")
	}
	if bob.Room() != "private" {
		t.Fatalf("room pointer = %q, want private", bob.Room())
	}
}

// Transfers must never expose a session in two member sets: once the
// session appears in the destination, the source must already be empty.
func TestJoinFromSingleMembership(t *testing.T) {
	a := newRoom("a", VisibilityPublic, "", 0, 10)
	b := newRoom("b", VisibilityPublic, "", 0, 10)
	bob := testSession("bob")
	if err := a.Join(bob, ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	bob.setRoom("a")

	has := func(r *Room) bool {
		for _, name := range r.Members() {
			if name == "bob" {
				return true
			}
		}
		return false
	}

	for i := 0; i < 2000; i++ {
		src, dst := a, b
		if i%2 == 1 {
			src, dst = b, a
		}
		done := make(chan error, 1)
		go func() { done <- dst.JoinFrom(bob, src, "") }()

		// Transition is one-way, so membership in dst implies src is
		// already vacated.
		if has(dst) && has(src) {
			t.Fatalf("iteration %d: session observed in both rooms at once", i)
		}

		if err := <-done; err != nil {
			t.Fatalf("iteration %d: transfer: %v", i, err)
		}
		if has(src) || !has(dst) {
			t.Fatalf("iteration %d: transfer incomplete", i)
		}
		if bob.Room() != dst.Name() {
			t.Fatalf("iteration %d: room pointer = %q, want %s", i, bob.Room(), dst.Name())
		}
	}
}

func TestJoinFromSameRoomIsNoOp(t *testing.T) {
	a := newRoom("a", VisibilityPublic, "", 10, 50)
	bob := testSession("bob")
	if err := a.Join(bob, ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	bob.setRoom("a")

	if err := a.JoinFrom(bob, a, ""); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if len(a.Members()) != 1 || bob.Room() != "a" {
		t.Fatalf("rejoin disturbed membership: members=%v room=%q", a.Members(), bob.Room())
	}
}

func TestLeaveUnknownMember(t *testing.T) {
	room := newRoom("r", VisibilityPublic, "", 10, 50)
	if room.Leave("ghost") {
		t.Fatal("leave reported success for a non-member")
	}
}

func TestPostAssignsIncreasingSeq(t *testing.T) {
	room := newRoom("r", VisibilityPublic, "", 10, 50)
	for i := 1; i <= 5; i++ {
		msg, _ := room.Post("alice", fmt.Sprintf("m%d", i), false)
		if msg.Seq != uint64(i) {
			t.Fatalf("message %d got seq %d", i, msg.Seq)
		}
	}
}

func TestPostEchoPolicy(t *testing.T) {
	room := newRoom("r", VisibilityPublic, "", 10, 50)
	alice := testSession("alice")
	bob := testSession("bob")
	if err := room.Join(alice, ""); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if err := room.Join(bob, ""); err != nil {
		t.Fatalf("join bob: %v", err)
	}

	room.Post("alice", "no echo", false)
	if got := len(bob.Outbound()); got != 1 {
		t.Fatalf("bob queued %d records, want 1", got)
	}
	if got := len(alice.Outbound()); got != 0 {
		t.Fatalf("alice received her own message with echo off (%d queued)", got)
	}

	room.Post("alice", "with echo", true)
	if got := len(alice.Outbound()); got != 1 {
		t.Fatalf("alice queued %d records with echo on, want 1", got)
	}
}

func TestPostReportsSlowSessions(t *testing.T) {
	room := newRoom("r", VisibilityPublic, "", 10, 50)
	slow := newSession("conn-slow", "slow", RoleUser, 1)
	if err := room.Join(slow, ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, overflowed := room.Post("alice", "fits", false); len(overflowed) != 0 {
		t.Fatal("first post overflowed a fresh queue")
	}
	_, overflowed := room.Post("alice", "does not fit", false)
	if len(overflowed) != 1 || overflowed[0].Username != "slow" {
		t.Fatalf("overflowed = %v, want [slow]", overflowed)
	}
}

func TestHistoryBounded(t *testing.T) {
	room := newRoom("r", VisibilityPublic, "", 10, 3)
	for i := 1; i <= 5; i++ {
		room.Post("alice", fmt.Sprintf("m%d", i), false)
	}

	history := room.History(0)
	if len(history) != 3 {
		t.Fatalf("retained %d messages, want 3", len(history))
	}
	if history[0].Body != "m3" || history[2].Body != "m5" {
		t.Fatalf("history window = [%s .. %s], want [m3 .. m5]", history[0].Body, history[2].Body)
	}

	if got := room.History(2); len(got) != 2 || got[0].Body != "m4" {
		t.Fatalf("History(2) = %v", got)
	}

	room.ClearHistory()
	if got := room.History(0); len(got) != 0 {
		t.Fatalf("history not cleared, %d left", len(got))
	}
	// Seq keeps counting across a clear.
	msg, _ := room.Post("alice", "m6", false)
	if msg.Seq != 6 {
		t.Fatalf("seq after clear = %d, want 6", msg.Seq)
	}
}

func TestRoomSummary(t *testing.T) {
	hash, err := auth.HashPassword("pw")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	room := newRoom("dev", VisibilityPrivate, hash, 5, 50)
	room.SetTopic("release planning")
	if err := room.Join(testSession("bob"), "pw"); err != nil {
		t.Fatalf("join: %v", err)
	}

	want := proto.RoomSummary{
		Name:              "dev",
		Visibility:        "private",
		PasswordProtected: true,
		Members:           1,
		Capacity:          5,
		Topic:             "release planning",
	}
	if got := room.Summary(); got != want {
		t.Fatalf("summary = %+v, want %+v", got, want)
	}
}

func TestRoomsRegistry(t *testing.T) {
	rooms := NewRooms("general", 100, 50, 200)

	if _, err := rooms.Get("general"); err != nil {
		t.Fatalf("default room missing: %v", err)
	}
	if _, err := rooms.Create("general", VisibilityPublic, ""); err != ErrNameTaken {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}
	if _, err := rooms.Create("", VisibilityPublic, ""); err != ErrBadRequest {
		t.Fatalf("expected ErrBadRequest for empty name, got %v", err)
	}
	if _, err := rooms.Create("dev", VisibilityPrivate, ""); err != ErrBadRequest {
		t.Fatalf("expected ErrBadRequest for private room without password, got %v", err)
	}

	if _, err := rooms.Create("dev", VisibilityPrivate, "pw"); err != nil {
		t.Fatalf("create dev: %v", err)
	}
	if _, err := rooms.Get("nope"); err != ErrRoomNotFound {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestCollectSkipsDefaultAndOccupied(t *testing.T) {
	rooms := NewRooms("general", 100, 50, 200)
	if rooms.Collect("general") {
		t.Fatal("default room was collected")
	}

	dev, err := rooms.Create("dev", VisibilityPublic, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	bob := testSession("bob")
	if err := dev.Join(bob, ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if rooms.Collect("dev") {
		t.Fatal("occupied room was collected")
	}

	dev.Leave("bob")
	if !rooms.Collect("dev") {
		t.Fatal("empty room was not collected")
	}
	if _, err := rooms.Get("dev"); err != ErrRoomNotFound {
		t.Fatalf("collected room still resolvable: %v", err)
	}
}

func TestListSortedByName(t *testing.T) {
	rooms := NewRooms("general", 100, 50, 200)
	for _, name := range []string{"zeta", "alpha"} {
		if _, err := rooms.Create(name, VisibilityPublic, ""); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	list := rooms.List()
	if len(list) != 3 {
		t.Fatalf("listed %d rooms, want 3", len(list))
	}
	for i, want := range []string{"alpha", "general", "zeta"} {
		if list[i].Name != want {
			t.Fatalf("list[%d] = %s, want %s", i, list[i].Name, want)
		}
	}
}
