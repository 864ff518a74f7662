package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/axiomchronicles/drevoid-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestBanRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.AddBan(ctx, "mallory", "alice"); err != nil {
		t.Fatalf("add ban: %v", err)
	}
	// Re-banning is a no-op, not an error.
	if err := st.AddBan(ctx, "mallory", "bob"); err != nil {
		t.Fatalf("re-ban: %v", err)
	}

	bans, err := st.ListBans(ctx)
	if err != nil {
		t.Fatalf("list bans: %v", err)
	}
	if len(bans) != 1 {
		t.Fatalf("got %d bans, want 1", len(bans))
	}
	if bans[0].Username != "mallory" || bans[0].BannedBy != "alice" {
		t.Fatalf("ban = %+v", bans[0])
	}

	if err := st.RemoveBan(ctx, "mallory"); err != nil {
		t.Fatalf("remove ban: %v", err)
	}
	bans, err = st.ListBans(ctx)
	if err != nil {
		t.Fatalf("list after remove: %v", err)
	}
	if len(bans) != 0 {
		t.Fatalf("ban survived removal: %+v", bans)
	}
}

func TestRemoveBanUnknownUser(t *testing.T) {
	st := newTestStore(t)
	if err := st.RemoveBan(context.Background(), "ghost"); err != nil {
		t.Fatalf("remove of unknown ban errored: %v", err)
	}
}

func TestFlagRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	captures := []store.FlagCapture{
		{Value: "flag{first}", Finder: "alice", Room: "general", CapturedAt: base},
		{Value: "flag{second}", Finder: "bob", Room: "dev", CapturedAt: base.Add(time.Minute)},
	}
	for _, c := range captures {
		if err := st.AddFlag(ctx, c); err != nil {
			t.Fatalf("add flag %s: %v", c.Value, err)
		}
	}
	// A duplicate value keeps the original finder.
	if err := st.AddFlag(ctx, store.FlagCapture{
		Value: "flag{first}", Finder: "eve", Room: "dev", CapturedAt: base.Add(time.Hour),
	}); err != nil {
		t.Fatalf("duplicate flag: %v", err)
	}

	got, err := st.ListFlags(ctx)
	if err != nil {
		t.Fatalf("list flags: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d flags, want 2", len(got))
	}
	if got[0].Value != "flag{first}" || got[0].Finder != "alice" || got[0].Room != "general" {
		t.Fatalf("flags[0] = %+v", got[0])
	}
	if got[1].Value != "flag{second}" || got[1].Finder != "bob" {
		t.Fatalf("flags[1] = %+v", got[1])
	}
	if !got[0].CapturedAt.Before(got[1].CapturedAt) {
		t.Fatalf("capture order lost: %v >= %v", got[0].CapturedAt, got[1].CapturedAt)
	}
}

func TestEmptyListings(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	bans, err := st.ListBans(ctx)
	if err != nil {
		t.Fatalf("list bans: %v", err)
	}
	if len(bans) != 0 {
		t.Fatalf("fresh store has %d bans", len(bans))
	}
	flags, err := st.ListFlags(ctx)
	if err != nil {
		t.Fatalf("list flags: %v", err)
	}
	if len(flags) != 0 {
		t.Fatalf("fresh store has %d flags", len(flags))
	}
}
