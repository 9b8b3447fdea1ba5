package dialogid_test

import (
	"testing"

	"telegram-userbot/internal/domain/dialogid"
)

func TestFromPeer(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		kind dialogid.PeerKind
		raw  int64
		want int64
	}{
		{"user unchanged", dialogid.KindUser, 42, 42},
		{"chat negated", dialogid.KindChat, 42, -42},
		{"channel offset", dialogid.KindChannel, 42, -1000000000042},
		{"user zero", dialogid.KindUser, 0, 0},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := dialogid.FromPeer(tc.kind, tc.raw); got != tc.want {
				t.Fatalf("FromPeer(%v, %d) = %d, want %d", tc.kind, tc.raw, got, tc.want)
			}
		})
	}
}

func TestToRawPeerReversesFromPeer(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		kind dialogid.PeerKind
		raw  int64
	}{
		{"user", dialogid.KindUser, 42},
		{"chat", dialogid.KindChat, 42},
		{"channel", dialogid.KindChannel, 42},
		{"channel large", dialogid.KindChannel, 1234567890},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			folded := dialogid.FromPeer(tc.kind, tc.raw)
			gotKind, gotRaw := dialogid.ToRawPeer(folded)
			if gotKind != tc.kind || gotRaw != tc.raw {
				t.Fatalf("ToRawPeer(%d) = (%v, %d), want (%v, %d)", folded, gotKind, gotRaw, tc.kind, tc.raw)
			}
		})
	}
}

func TestFromPeerNoCollisions(t *testing.T) {
	t.Parallel()
	seen := make(map[int64]string)
	for raw := int64(1); raw <= 1000; raw++ {
		for _, kind := range []dialogid.PeerKind{dialogid.KindUser, dialogid.KindChat, dialogid.KindChannel} {
			id := dialogid.FromPeer(kind, raw)
			if prev, ok := seen[id]; ok {
				t.Fatalf("collision: raw=%d kind=%v folds to %d, already produced by %s", raw, kind, id, prev)
			}
			seen[id] = ""
		}
	}
}
