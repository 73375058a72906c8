package wa

import (
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"

	"wachat/internal/bus"
	"wachat/internal/status"
)

// EventHandler maps whatsmeow events onto the state machine and the bus.
// It does not touch the store: the ingestion pipeline subscribes to the bus
// independently, decoupling provider callback timing from mutation order.
type EventHandler struct {
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
}

// NewEventHandler creates an event handler.
func NewEventHandler(b *bus.Bus, machine *status.Machine, logger *zap.Logger) *EventHandler {
	return &EventHandler{bus: b, machine: machine, logger: logger}
}

// Handle is the whatsmeow event handler function.
func (h *EventHandler) Handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		h.bus.Publish(bus.Event{
			Kind:    bus.KindProviderMessage,
			Payload: ParseMessage(evt),
		})
	case *events.Connected:
		h.logger.Info("WhatsApp connected")
		current := h.machine.Current()
		if current == status.AuthRequired || current == status.Reconnecting {
			_ = h.machine.Transition(status.Connecting)
		}
		_ = h.machine.Transition(status.Ready)
	case *events.Disconnected:
		h.logger.Warn("WhatsApp disconnected")
		_ = h.machine.Transition(status.Reconnecting)
	case *events.LoggedOut:
		h.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		_ = h.machine.Transition(status.AuthRequired)
	}
}
