// Package send accepts outbound send commands, delegates to the provider and
// feeds confirmed messages back through ingestion. All-or-nothing: the store
// is never touched on a failed send.
package send

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wachat/internal/ingest"
	"wachat/internal/model"
)

var (
	// ErrEmptyBody rejects a send with no message text. Not retryable.
	ErrEmptyBody = errors.New("message body is empty")
	// ErrInvalidChat rejects a send whose chat id cannot be normalized.
	ErrInvalidChat = errors.New("invalid chat id")
	// ErrNotReady rejects a send while the provider connection is down.
	// Retryable by the caller.
	ErrNotReady = errors.New("provider not ready")
)

// TextSender is the provider's outbound send primitive.
type TextSender interface {
	SendText(ctx context.Context, chatID string, text string) (providerMsgID string, err error)
}

// ReadinessGate reports whether the provider accepts sends. Satisfied by
// *status.Machine.
type ReadinessGate interface {
	IsReady() bool
}

// Gateway validates send commands and routes them provider-first.
type Gateway struct {
	sender   TextSender
	gate     ReadinessGate
	pipeline *ingest.Pipeline
	timeout  time.Duration
	logger   *zap.Logger
}

// New creates a gateway. timeout bounds the provider call; zero means no
// deadline beyond the caller's context.
func New(sender TextSender, gate ReadinessGate, pipeline *ingest.Pipeline, timeout time.Duration, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{sender: sender, gate: gate, pipeline: pipeline, timeout: timeout, logger: logger}
}

// Send validates the command, sends via the provider and, on success only,
// ingests the confirmed message. The provider call runs outside the
// ingestion lock; its result feeds back as a new serialized mutation.
func (g *Gateway) Send(ctx context.Context, chatID, body string) (*model.Chat, error) {
	if body == "" {
		return nil, ErrEmptyBody
	}
	resolved := model.NormalizeChatID(chatID)
	if resolved == "" {
		return nil, ErrInvalidChat
	}
	if !g.gate.IsReady() {
		return nil, ErrNotReady
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	msgID, err := g.sender.SendText(ctx, resolved, body)
	if err != nil {
		return nil, fmt.Errorf("provider send: %w", err)
	}
	if msgID == "" {
		msgID = uuid.New().String()
	}

	msg := model.Message{
		ID:        msgID,
		From:      "me",
		To:        resolved,
		Body:      body,
		Timestamp: time.Now().UnixMilli(),
		FromMe:    true,
	}
	chat, err := g.pipeline.Accept(msg)
	if err != nil {
		if errors.Is(err, ingest.ErrDuplicate) {
			// The provider echoed the message back before we got here; the
			// send still succeeded.
			g.logger.Debug("send already ingested via echo", zap.String("chat", resolved))
			return nil, nil
		}
		return nil, fmt.Errorf("ingest sent message: %w", err)
	}
	return chat, nil
}
