// Package session persists everything a restarted engine needs to resume
// without a fresh login or a full backfill: the MTProto session blob and the
// updates-manager's resumption counters (pts/qts/date, and per-channel pts).
//
// Grounded on the teacher's internal/infra/telegram/session (FileStorage over
// tdsession.Storage, atomic write via internal/infra/storage) for the session
// half, and on internal/adapters/telegram/core/state_storage.go for the shape
// of the resumption state (same fields, same SetPts/SetQts/SetDate/SetSeq/
// SetChannelPts contract) — but backed by go.etcd.io/bbolt instead of a
// hand-rolled JSON file, since the teacher's go.mod already carries bbolt
// without ever opening a database.
package session

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"telegram-userbot/internal/infra/logger"
	"telegram-userbot/internal/infra/storage"

	tdsession "github.com/gotd/td/session"
	"github.com/gotd/td/telegram/updates"
	"go.etcd.io/bbolt"
)

// FileStorage implements tdsession.Storage over a plain file, written
// atomically so a crash mid-write never leaves a corrupt session on disk.
type FileStorage struct {
	Path string
	mux  sync.Mutex
}

var _ tdsession.Storage = (*FileStorage)(nil)

// LoadSession reads the session blob, returning tdsession.ErrNotFound on a
// fresh install so gotd/td knows to run the auth flow.
func (f *FileStorage) LoadSession(_ context.Context) ([]byte, error) {
	f.mux.Lock()
	defer f.mux.Unlock()

	data, err := readOrNotFound(f.Path)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// StoreSession atomically writes the updated session blob.
func (f *FileStorage) StoreSession(_ context.Context, data []byte) error {
	f.mux.Lock()
	defer f.mux.Unlock()
	return storage.AtomicWriteFile(f.Path, data)
}

// stateBucket is the single top-level bbolt bucket holding every key this
// package writes; there is no second bucket because resumption state is
// small and doesn't benefit from further partitioning.
var stateBucket = []byte("updates_state")

// StateBox implements updates.StateStorage over a bbolt database with one
// key per userID; its value holds the base State together with the
// per-channel pts map. bbolt's own file locking means only one process may hold the
// database open at a time, which matches the single-session assumption the
// rest of this engine makes.
type StateBox struct {
	db *bbolt.DB
}

var _ updates.StateStorage = (*StateBox)(nil)

// OpenStateBox opens (creating if absent) the bbolt database at path and
// ensures the state bucket exists.
func OpenStateBox(path string) (*StateBox, error) {
	if err := storage.EnsureDir(path); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &StateBox{db: db}, nil
}

// Close releases the bbolt file lock.
func (s *StateBox) Close() error {
	return s.db.Close()
}

type boxedState struct {
	State    updates.State `json:"state"`
	Channels map[int64]int `json:"channels"`
}

func stateKey(userID int64) []byte {
	buf, _ := json.Marshal(userID)
	return buf
}

func (s *StateBox) get(userID int64) (boxedState, bool, error) {
	var (
		bs    boxedState
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(stateBucket).Get(stateKey(userID))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &bs)
	})
	if err != nil {
		return boxedState{}, false, err
	}
	if bs.Channels == nil {
		bs.Channels = map[int64]int{}
	}
	return bs, found, err
}

func (s *StateBox) put(userID int64, bs boxedState) error {
	if bs.Channels == nil {
		bs.Channels = map[int64]int{}
	}
	enc, err := json.Marshal(bs)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(stateBucket).Put(stateKey(userID), enc)
	})
}

// GetState returns the last persisted state for userID.
func (s *StateBox) GetState(_ context.Context, userID int64) (updates.State, bool, error) {
	bs, found, err := s.get(userID)
	return bs.State, found, err
}

// SetState overwrites the base state and clears any per-channel pts, since
// those counters are only meaningful relative to the base state they
// belong to.
func (s *StateBox) SetState(_ context.Context, userID int64, state updates.State) error {
	return s.put(userID, boxedState{State: state, Channels: map[int64]int{}})
}

// SetPts updates Pts in the existing base state; userID must already have
// one (gotd/td always calls SetState first).
func (s *StateBox) SetPts(ctx context.Context, userID int64, pts int) error {
	bs, found, err := s.get(userID)
	if err != nil {
		return err
	}
	if !found {
		return errNoState
	}
	bs.State.Pts = pts
	return s.put(userID, bs)
}

// SetQts updates Qts in the existing base state.
func (s *StateBox) SetQts(ctx context.Context, userID int64, qts int) error {
	bs, found, err := s.get(userID)
	if err != nil {
		return err
	}
	if !found {
		return errNoState
	}
	bs.State.Qts = qts
	return s.put(userID, bs)
}

// SetDate updates Date in the existing base state.
func (s *StateBox) SetDate(ctx context.Context, userID int64, date int) error {
	bs, found, err := s.get(userID)
	if err != nil {
		return err
	}
	if !found {
		return errNoState
	}
	bs.State.Date = date
	return s.put(userID, bs)
}

// SetSeq updates Seq in the existing base state.
func (s *StateBox) SetSeq(ctx context.Context, userID int64, seq int) error {
	bs, found, err := s.get(userID)
	if err != nil {
		return err
	}
	if !found {
		return errNoState
	}
	bs.State.Seq = seq
	return s.put(userID, bs)
}

// SetDateSeq updates Date and Seq together in one write.
func (s *StateBox) SetDateSeq(ctx context.Context, userID int64, date, seq int) error {
	bs, found, err := s.get(userID)
	if err != nil {
		return err
	}
	if !found {
		return errNoState
	}
	bs.State.Date = date
	bs.State.Seq = seq
	return s.put(userID, bs)
}

// SetChannelPts records pts for one channel under the user's base state.
func (s *StateBox) SetChannelPts(ctx context.Context, userID, channelID int64, pts int) error {
	bs, found, err := s.get(userID)
	if err != nil {
		return err
	}
	if !found {
		return errNoState
	}
	bs.Channels[channelID] = pts
	return s.put(userID, bs)
}

// GetChannelPts returns the recorded pts for one channel, if any.
func (s *StateBox) GetChannelPts(ctx context.Context, userID, channelID int64) (int, bool, error) {
	bs, found, err := s.get(userID)
	if err != nil || !found {
		return 0, false, err
	}
	pts, ok := bs.Channels[channelID]
	return pts, ok, nil
}

// ForEachChannels calls fn for every recorded (channelID, pts) pair.
func (s *StateBox) ForEachChannels(ctx context.Context, userID int64, fn func(ctx context.Context, channelID int64, pts int) error) error {
	bs, found, err := s.get(userID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	for id, pts := range bs.Channels {
		if err := fn(ctx, id, pts); err != nil {
			return err
		}
	}
	return nil
}

var errNoState = stateNotFoundError{}

type stateNotFoundError struct{}

func (stateNotFoundError) Error() string { return "session: no base state for this user yet" }

func readOrNotFound(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("session: no existing session file, starting fresh login")
			return nil, tdsession.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}
