package wa

import (
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"wachat/internal/model"
)

// ParseMessage normalizes a live whatsmeow message event into the canonical
// record the ingestion pipeline consumes. Inbound messages carry the chat
// JID as From; outbound echoes carry it as To, matching the target
// resolution rule. Non-text payloads yield an empty body, which ingestion
// rejects as malformed.
func ParseMessage(evt *events.Message) model.Message {
	chat := evt.Info.Chat.String()
	isGroup := evt.Info.Chat.Server == types.GroupServer

	msg := model.Message{
		ID:        evt.Info.ID,
		Body:      extractTextBody(evt.Message),
		Timestamp: evt.Info.Timestamp.UnixMilli(),
		FromMe:    evt.Info.IsFromMe,
		IsGroup:   isGroup,
	}
	if evt.Info.IsFromMe {
		msg.From = evt.Info.Sender.ToNonAD().String()
		msg.To = chat
	} else {
		msg.From = chat
		if isGroup {
			msg.Sender = evt.Info.PushName
		}
	}
	return msg
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}
