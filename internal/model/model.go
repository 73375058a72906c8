package model

import "strings"

// DefaultSuffix is appended to digits-only chat identifiers. Identifiers
// that already carry an "@server" part are stored as-is.
const DefaultSuffix = "s.whatsapp.net"

// Message is a canonical chat message. Immutable once ingested.
type Message struct {
	ID        string `json:"id,omitempty"`
	From      string `json:"from"`
	To        string `json:"to,omitempty"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"` // unix millis, UTC
	FromMe    bool   `json:"fromMe"`
	IsGroup   bool   `json:"isGroup,omitempty"`
	Sender    string `json:"sender,omitempty"` // display name for group-originated messages
}

// Chat is a conversation bucket. Messages are append-only; LastMessage
// always mirrors the final element of Messages.
type Chat struct {
	ID          string    `json:"phoneNumber"`
	Name        string    `json:"name"`
	Messages    []Message `json:"messages"`
	LastMessage *Message  `json:"lastMessage,omitempty"`
	UnreadCount int       `json:"unreadCount"`
	CreatedAt   int64     `json:"createdAt"`
	UpdatedAt   int64     `json:"updatedAt"`
}

// Clone returns a deep copy safe to hand out while the store keeps mutating.
func (c *Chat) Clone() *Chat {
	cp := *c
	cp.Messages = make([]Message, len(c.Messages))
	copy(cp.Messages, c.Messages)
	if len(cp.Messages) > 0 {
		cp.LastMessage = &cp.Messages[len(cp.Messages)-1]
	} else {
		cp.LastMessage = nil
	}
	return &cp
}

// NormalizeChatID turns a phone-number-like identifier into a storage key.
// Digits (with optional separators) get the default suffix; anything already
// containing "@" is kept verbatim.
func NormalizeChatID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "@") {
		return raw
	}
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return b.String() + "@" + DefaultSuffix
}

// DisplayName strips the provider suffix for human-friendly display.
func DisplayName(chatID string) string {
	if i := strings.IndexByte(chatID, '@'); i >= 0 {
		return chatID[:i]
	}
	return chatID
}
