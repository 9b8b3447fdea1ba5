package session_test

import (
	"context"
	"path/filepath"
	"testing"

	"telegram-userbot/internal/infra/session"

	tdsession "github.com/gotd/td/session"
	"github.com/gotd/td/telegram/updates"
)

func TestFileStorageRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "telegram.session")
	fs := &session.FileStorage{Path: path}
	ctx := context.Background()

	if _, err := fs.LoadSession(ctx); err != tdsession.ErrNotFound {
		t.Fatalf("expected ErrNotFound on fresh storage, got %v", err)
	}

	want := []byte(`{"Version":1,"Data":"opaque"}`)
	if err := fs.StoreSession(ctx, want); err != nil {
		t.Fatalf("StoreSession: %v", err)
	}

	got, err := fs.LoadSession(ctx)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestStateBoxTracksBaseStateAndChannelPts(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.db")
	box, err := session.OpenStateBox(path)
	if err != nil {
		t.Fatalf("OpenStateBox: %v", err)
	}
	defer box.Close()
	ctx := context.Background()

	const userID = int64(42)
	if _, found, err := box.GetState(ctx, userID); err != nil || found {
		t.Fatalf("expected no state yet, found=%v err=%v", found, err)
	}

	initial := updates.State{Pts: 1, Qts: 2, Date: 3, Seq: 4}
	if err := box.SetState(ctx, userID, initial); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	if err := box.SetChannelPts(ctx, userID, 1001, 77); err != nil {
		t.Fatalf("SetChannelPts: %v", err)
	}
	if pts, ok, err := box.GetChannelPts(ctx, userID, 1001); err != nil || !ok || pts != 77 {
		t.Fatalf("GetChannelPts: pts=%d ok=%v err=%v", pts, ok, err)
	}

	if err := box.SetPts(ctx, userID, 10); err != nil {
		t.Fatalf("SetPts: %v", err)
	}
	if err := box.SetDateSeq(ctx, userID, 30, 40); err != nil {
		t.Fatalf("SetDateSeq: %v", err)
	}

	got, found, err := box.GetState(ctx, userID)
	if err != nil || !found {
		t.Fatalf("GetState: found=%v err=%v", found, err)
	}
	if got.Pts != 10 || got.Date != 30 || got.Seq != 40 || got.Qts != 2 {
		t.Fatalf("unexpected state after partial updates: %+v", got)
	}

	// SetState resets per-channel pts, since they're only meaningful relative
	// to the base state they were recorded against.
	if err := box.SetState(ctx, userID, updates.State{Pts: 99}); err != nil {
		t.Fatalf("SetState (reset): %v", err)
	}
	if _, ok, err := box.GetChannelPts(ctx, userID, 1001); err != nil || ok {
		t.Fatalf("expected channel pts cleared after SetState, ok=%v err=%v", ok, err)
	}
}

func TestStateBoxRejectsMutationWithoutBaseState(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.db")
	box, err := session.OpenStateBox(path)
	if err != nil {
		t.Fatalf("OpenStateBox: %v", err)
	}
	defer box.Close()

	if err := box.SetPts(context.Background(), 7, 1); err == nil {
		t.Fatalf("expected an error setting pts before any base state exists")
	}
}
