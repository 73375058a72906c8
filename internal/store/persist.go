package store

import (
	"fmt"
	"sort"

	"wachat/internal/model"
)

// SQLitePersister mirrors the full in-memory snapshot into SQLite. Every
// SaveAll rewrites the snapshot in one transaction; message rates are modest
// enough that simplicity wins over incremental writes.
type SQLitePersister struct {
	db *DB
}

// NewSQLitePersister creates a persister over an opened, migrated DB.
func NewSQLitePersister(db *DB) *SQLitePersister {
	return &SQLitePersister{db: db}
}

// LoadAll reads the persisted snapshot. An empty database yields an empty map.
func (p *SQLitePersister) LoadAll() (map[string]*model.Chat, error) {
	chats := make(map[string]*model.Chat)

	rows, err := p.db.Query(`SELECT id, name, unread_count, created_at, updated_at FROM chats`)
	if err != nil {
		return nil, fmt.Errorf("load chats: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var c model.Chat
		if err := rows.Scan(&c.ID, &c.Name, &c.UnreadCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	mrows, err := p.db.Query(`
		SELECT chat_id, msg_id, from_id, to_id, body, timestamp, from_me, is_group, sender_name
		FROM messages ORDER BY chat_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer func() { _ = mrows.Close() }()
	for mrows.Next() {
		var chatID string
		var m model.Message
		if err := mrows.Scan(&chatID, &m.ID, &m.From, &m.To, &m.Body, &m.Timestamp, &m.FromMe, &m.IsGroup, &m.Sender); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if c, ok := chats[chatID]; ok {
			c.Messages = append(c.Messages, m)
		}
	}
	if err := mrows.Err(); err != nil {
		return nil, err
	}
	return chats, nil
}

// SaveAll rewrites the full snapshot in one transaction.
func (p *SQLitePersister) SaveAll(chats map[string]*model.Chat) error {
	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages`); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM chats`); err != nil {
		return fmt.Errorf("clear chats: %w", err)
	}

	// Stable order keeps the write deterministic.
	ids := make([]string, 0, len(chats))
	for id := range chats {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		c := chats[id]
		if _, err := tx.Exec(`
			INSERT INTO chats (id, name, unread_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.UnreadCount, c.CreatedAt, c.UpdatedAt); err != nil {
			return fmt.Errorf("insert chat %s: %w", c.ID, err)
		}
		for i, m := range c.Messages {
			if _, err := tx.Exec(`
				INSERT INTO messages (chat_id, seq, msg_id, from_id, to_id, body, timestamp, from_me, is_group, sender_name)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				c.ID, i, m.ID, m.From, m.To, m.Body, m.Timestamp, m.FromMe, m.IsGroup, m.Sender); err != nil {
				return fmt.Errorf("insert message %s/%d: %w", c.ID, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}
