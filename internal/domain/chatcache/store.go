package chatcache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"telegram-userbot/internal/domain/events"

	_ "modernc.org/sqlite"
)

// Store persists a Snapshot to an embedded SQL database. It holds the full
// cache contents, not an incremental log: Save replaces every row in a
// single transaction.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if absent) a SQLite database at dbPath and
// ensures its schema exists. Grounded on the WAL-mode DSN and schema-init
// idiom used by the enrichment repo's SQLite store.
func OpenStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("chatcache: create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("chatcache: open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; the cache itself serializes callers.

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS chats (
		chat_id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		peer_kind TEXT NOT NULL,
		last_message_id INTEGER,
		last_message_at INTEGER,
		unread_count INTEGER,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chats_last_message_at ON chats(last_message_at);

	CREATE TABLE IF NOT EXISTS messages (
		chat_id INTEGER NOT NULL,
		message_id INTEGER NOT NULL,
		author_id INTEGER NOT NULL,
		ts INTEGER NOT NULL,
		edit_ts INTEGER,
		text TEXT NOT NULL,
		outgoing INTEGER NOT NULL,
		PRIMARY KEY (chat_id, message_id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages(chat_id);
	CREATE INDEX IF NOT EXISTS idx_messages_chat_ts ON messages(chat_id, ts);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("chatcache: create schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads the full persisted snapshot back out.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	chatRows, err := s.db.QueryContext(ctx, `
		SELECT chat_id, title, peer_kind, last_message_id, last_message_at, unread_count
		FROM chats`)
	if err != nil {
		return snap, fmt.Errorf("chatcache: query chats: %w", err)
	}
	defer chatRows.Close()

	for chatRows.Next() {
		var summary ChatSummary
		var kind string
		var lastMsgID, lastMsgAt sql.NullInt64
		var unread sql.NullInt64

		if err := chatRows.Scan(&summary.ChatID, &summary.Title, &kind, &lastMsgID, &lastMsgAt, &unread); err != nil {
			return snap, fmt.Errorf("chatcache: scan chat row: %w", err)
		}
		summary.PeerKind = ParsePeerKind(kind)
		if lastMsgID.Valid {
			id := events.MessageId(lastMsgID.Int64)
			summary.LastMessageID = &id
		}
		if lastMsgAt.Valid {
			ts := lastMsgAt.Int64
			summary.LastMessageAt = &ts
		}
		if unread.Valid {
			u := uint32(unread.Int64)
			summary.UnreadCount = &u
		}
		snap.Chats = append(snap.Chats, summary)
	}
	if err := chatRows.Err(); err != nil {
		return snap, fmt.Errorf("chatcache: iterate chats: %w", err)
	}

	msgRows, err := s.db.QueryContext(ctx, `
		SELECT chat_id, message_id, author_id, ts, edit_ts, text, outgoing
		FROM messages ORDER BY chat_id, ts`)
	if err != nil {
		return snap, fmt.Errorf("chatcache: query messages: %w", err)
	}
	defer msgRows.Close()

	for msgRows.Next() {
		var msg CachedMessage
		var editTS sql.NullInt64
		var outgoing int

		if err := msgRows.Scan(&msg.ChatID, &msg.MessageID, &msg.AuthorID, &msg.Timestamp, &editTS, &msg.Text, &outgoing); err != nil {
			return snap, fmt.Errorf("chatcache: scan message row: %w", err)
		}
		if editTS.Valid {
			ts := editTS.Int64
			msg.EditTimestamp = &ts
		}
		msg.Outgoing = outgoing != 0
		snap.Messages = append(snap.Messages, msg)
	}
	if err := msgRows.Err(); err != nil {
		return snap, fmt.Errorf("chatcache: iterate messages: %w", err)
	}

	return snap, nil
}

// Save replaces the entire persisted snapshot atomically: delete every row,
// then reinsert the snapshot's contents, all within a single transaction.
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("chatcache: begin save transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return fmt.Errorf("chatcache: clear messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chats`); err != nil {
		return fmt.Errorf("chatcache: clear chats: %w", err)
	}

	chatStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chats (chat_id, title, peer_kind, last_message_id, last_message_at, unread_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("chatcache: prepare chat insert: %w", err)
	}
	defer chatStmt.Close()

	// updated_at records when this row was last persisted; ChatSummary itself
	// carries no such field (the cache's notion of "last activity" is
	// LastMessageAt), so every row in one Save call gets the same stamp.
	savedAt := time.Now().Unix()
	for _, c := range snap.Chats {
		var lastMsgID, lastMsgAt, unread interface{}
		if c.LastMessageID != nil {
			lastMsgID = int64(*c.LastMessageID)
		}
		if c.LastMessageAt != nil {
			lastMsgAt = *c.LastMessageAt
		}
		if c.UnreadCount != nil {
			unread = int64(*c.UnreadCount)
		}
		if _, err := chatStmt.ExecContext(ctx, int64(c.ChatID), c.Title, c.PeerKind.String(), lastMsgID, lastMsgAt, unread, savedAt); err != nil {
			return fmt.Errorf("chatcache: insert chat %d: %w", c.ChatID, err)
		}
	}

	msgStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (chat_id, message_id, author_id, ts, edit_ts, text, outgoing)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("chatcache: prepare message insert: %w", err)
	}
	defer msgStmt.Close()

	for _, m := range snap.Messages {
		var editTS interface{}
		if m.EditTimestamp != nil {
			editTS = *m.EditTimestamp
		}
		outgoing := 0
		if m.Outgoing {
			outgoing = 1
		}
		if _, err := msgStmt.ExecContext(ctx, int64(m.ChatID), int64(m.MessageID), int64(m.AuthorID), m.Timestamp, editTS, m.Text, outgoing); err != nil {
			return fmt.Errorf("chatcache: insert message %d/%d: %w", m.ChatID, m.MessageID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("chatcache: commit save transaction: %w", err)
	}
	return nil
}

// SaveTimeout bounds how long a single Save call may run before the flusher
// gives up and logs the failure; callers construct their own context.
const SaveTimeout = 10 * time.Second
