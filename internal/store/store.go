package store

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"wachat/internal/model"
)

// Persister mirrors the in-memory store to durable storage. SaveAll is called
// synchronously after every mutation with the live chat map, under the store
// lock; implementations must not retain the map or the chats it points to.
type Persister interface {
	LoadAll() (map[string]*model.Chat, error)
	SaveAll(chats map[string]*model.Chat) error
}

// Store is the in-memory chat store. It is the source of truth for the
// running process; persistence is best-effort write-through. All reads hand
// out deep copies, so callers may iterate freely while the store mutates.
type Store struct {
	mu        sync.RWMutex
	chats     map[string]*model.Chat
	persister Persister
	logger    *zap.Logger
}

// New creates a store backed by the given persister. persister may be nil
// (memory-only, used in tests).
func New(persister Persister, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		chats:     make(map[string]*model.Chat),
		persister: persister,
		logger:    logger,
	}
}

// Load seeds the store from the persister. Called once at startup, before
// any mutation.
func (s *Store) Load() error {
	if s.persister == nil {
		return nil
	}
	chats, err := s.persister.LoadAll()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if chats != nil {
		s.chats = chats
	}
	for _, c := range s.chats {
		if n := len(c.Messages); n > 0 {
			c.LastMessage = &c.Messages[n-1]
		}
	}
	return nil
}

// Get returns a copy of the chat, or nil when absent.
func (s *Store) Get(chatID string) *model.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[chatID]
	if !ok {
		return nil
	}
	return c.Clone()
}

// List returns a snapshot copy of every chat.
func (s *Store) List() []*model.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, c.Clone())
	}
	return out
}

// UpsertMessage appends msg to the chat identified by chatID, creating the
// chat lazily on first reference. Updates LastMessage and UpdatedAt, and
// increments UnreadCount for inbound messages. Returns the post-mutation
// chat copy. A persistence failure is returned alongside the chat; the
// in-memory mutation stands either way.
func (s *Store) UpsertMessage(msg model.Message, chatID string) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	c, ok := s.chats[chatID]
	if !ok {
		name := model.DisplayName(chatID)
		if msg.Sender != "" && !msg.FromMe {
			name = msg.Sender
		}
		c = &model.Chat{
			ID:        chatID,
			Name:      name,
			CreatedAt: now,
		}
		s.chats[chatID] = c
	}

	c.Messages = append(c.Messages, msg)
	c.LastMessage = &c.Messages[len(c.Messages)-1]
	c.UpdatedAt = now
	if !msg.FromMe {
		c.UnreadCount++
	}

	return c.Clone(), s.persistLocked()
}

// CreateChat inserts an empty chat. When the chat already exists it is
// returned unchanged with created=false and no persistence write.
func (s *Store) CreateChat(chatID, name string) (chat *model.Chat, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.chats[chatID]; ok {
		return c.Clone(), false, nil
	}
	if name == "" {
		name = model.DisplayName(chatID)
	}
	now := time.Now().UnixMilli()
	c := &model.Chat{
		ID:        chatID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.chats[chatID] = c
	return c.Clone(), true, s.persistLocked()
}

// ResetUnread zeroes the unread counter. Resetting a non-existent chat is
// not an error; it returns (nil, nil) and writes nothing.
func (s *Store) ResetUnread(chatID string) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return nil, nil
	}
	if c.UnreadCount == 0 {
		return c.Clone(), nil
	}
	c.UnreadCount = 0
	return c.Clone(), s.persistLocked()
}

// FindDuplicate reports whether the chat already holds a message with the
// same body and direction within the given timestamp window. Linear scan;
// chat sizes are bounded by realistic conversation lengths.
func (s *Store) FindDuplicate(chatID, body string, fromMe bool, timestamp int64, window time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats[chatID]
	if !ok {
		return false
	}
	win := window.Milliseconds()
	for i := range c.Messages {
		m := &c.Messages[i]
		if m.Body != body || m.FromMe != fromMe {
			continue
		}
		d := m.Timestamp - timestamp
		if d < 0 {
			d = -d
		}
		if d < win {
			return true
		}
	}
	return false
}

func (s *Store) persistLocked() error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.SaveAll(s.chats); err != nil {
		s.logger.Error("persist failed, in-memory state retained", zap.Error(err))
		return err
	}
	return nil
}
