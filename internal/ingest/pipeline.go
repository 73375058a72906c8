// Package ingest normalizes provider events and outbound send confirmations
// into store mutations, exactly once per logical message.
package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"wachat/internal/bus"
	"wachat/internal/model"
	"wachat/internal/store"
)

// DedupWindow is the timestamp tolerance used to collapse duplicate delivery
// of the same logical message.
const DedupWindow = time.Second

var (
	// ErrMalformed marks an event missing required fields. Terminal at the
	// pipeline boundary; never propagated to the event source.
	ErrMalformed = errors.New("malformed message event")
	// ErrDuplicate marks a redundant delivery of an already-stored message.
	ErrDuplicate = errors.New("duplicate message")
)

// Pipeline serializes all chat store mutations. One Accept completes,
// including the persistence attempt and broadcast dispatch, before the next
// begins; the dedup check and the insert are never interleaved.
type Pipeline struct {
	mu     sync.Mutex
	store  *store.Store
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// New creates a pipeline over the given store and bus.
func New(s *store.Store, b *bus.Bus, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{store: s, bus: b, logger: logger}
}

// Start subscribes to inbound provider message events on the bus and feeds
// them through Accept. One bad event never blocks subsequent events.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	ch, unsub := p.bus.Subscribe(bus.KindProviderMessage, 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				msg, ok := evt.Payload.(model.Message)
				if !ok {
					continue
				}
				if _, err := p.Accept(msg); err != nil {
					switch {
					case errors.Is(err, ErrDuplicate):
						p.logger.Debug("duplicate delivery dropped", zap.String("from", msg.From))
					case errors.Is(err, ErrMalformed):
						p.logger.Warn("malformed event dropped", zap.String("from", msg.From), zap.String("to", msg.To))
					default:
						p.logger.Error("ingest failed", zap.Error(err))
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the bus consumer loop.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

// Accept validates, deduplicates and applies a single canonical message.
// On acceptance it returns the post-mutation chat and publishes one
// chat.updated event. Returns ErrMalformed or ErrDuplicate for dropped
// events; a persistence failure is logged inside the store and the mutation
// stands.
func (p *Pipeline) Accept(msg model.Message) (*model.Chat, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	chatID, err := resolveChatID(msg)
	if err != nil {
		return nil, err
	}
	if msg.Body == "" {
		return nil, ErrMalformed
	}

	if p.store.FindDuplicate(chatID, msg.Body, msg.FromMe, msg.Timestamp, DedupWindow) {
		return nil, ErrDuplicate
	}

	chat, persistErr := p.store.UpsertMessage(msg, chatID)
	if persistErr != nil {
		// In-memory state is the source of truth; the next mutation retries
		// a full write.
		p.logger.Warn("write-through failed", zap.String("chat", chatID), zap.Error(persistErr))
	}

	p.bus.Publish(bus.Event{Kind: bus.KindChatUpdated, Payload: chat})
	return chat, nil
}

// MarkViewed resets the unread counter for a chat a client has focused.
// Unknown chats are ignored. The updated chat is broadcast so every session
// converges on the cleared counter.
func (p *Pipeline) MarkViewed(chatID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	chat, err := p.store.ResetUnread(chatID)
	if err != nil {
		p.logger.Warn("write-through failed", zap.String("chat", chatID), zap.Error(err))
	}
	if chat == nil {
		return
	}
	p.bus.Publish(bus.Event{Kind: bus.KindChatUpdated, Payload: chat})
}

// CreateChat inserts an empty chat bucket and announces it. Used by the
// explicit chat-creation surface; message ingestion creates chats lazily on
// its own.
func (p *Pipeline) CreateChat(chatID, name string) (*model.Chat, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	chat, created, err := p.store.CreateChat(chatID, name)
	if err != nil {
		p.logger.Warn("write-through failed", zap.String("chat", chatID), zap.Error(err))
	}
	if created {
		p.bus.Publish(bus.Event{Kind: bus.KindChatCreated, Payload: chat})
	}
	return chat, nil
}

// resolveChatID applies the target resolution rule: outbound messages bucket
// under their recipient, inbound under their sender. A missing identifier is
// a provider contract violation.
func resolveChatID(msg model.Message) (string, error) {
	if msg.FromMe {
		if msg.To == "" {
			return "", ErrMalformed
		}
		return msg.To, nil
	}
	if msg.From == "" {
		return "", ErrMalformed
	}
	return msg.From, nil
}
