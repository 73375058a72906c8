package send

import (
	"context"
	"errors"
	"testing"

	"wachat/internal/bus"
	"wachat/internal/ingest"
	"wachat/internal/store"
)

// mockSender records calls and returns configurable results.
type mockSender struct {
	calls []sendCall
	id    string
	err   error
}

type sendCall struct {
	ChatID string
	Text   string
}

func (m *mockSender) SendText(_ context.Context, chatID string, text string) (string, error) {
	m.calls = append(m.calls, sendCall{ChatID: chatID, Text: text})
	if m.err != nil {
		return "", m.err
	}
	return m.id, nil
}

type fixedGate bool

func (g fixedGate) IsReady() bool { return bool(g) }

func newGateway(t *testing.T, sender *mockSender, ready bool) (*Gateway, *store.Store) {
	t.Helper()
	s := store.New(nil, nil)
	p := ingest.New(s, bus.New(), nil)
	return New(sender, fixedGate(ready), p, 0, nil), s
}

func TestSendStoresConfirmedMessage(t *testing.T) {
	mock := &mockSender{id: "SRV1"}
	g, s := newGateway(t, mock, true)

	chat, err := g.Send(context.Background(), "79990001122@c.us", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if len(mock.calls) != 1 || mock.calls[0].ChatID != "79990001122@c.us" {
		t.Fatalf("provider calls = %+v", mock.calls)
	}
	if chat == nil || len(chat.Messages) != 1 {
		t.Fatalf("chat = %+v", chat)
	}
	m := chat.Messages[0]
	if !m.FromMe || m.Body != "hi" || m.ID != "SRV1" {
		t.Errorf("stored message = %+v", m)
	}
	if chat.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0 for own send", chat.UnreadCount)
	}
	if got := s.Get("79990001122@c.us"); got == nil {
		t.Error("chat missing from store")
	}
}

func TestSendNormalizesBareNumber(t *testing.T) {
	mock := &mockSender{id: "SRV1"}
	g, _ := newGateway(t, mock, true)

	if _, err := g.Send(context.Background(), "+7 (999) 000-11-22", "hi"); err != nil {
		t.Fatal(err)
	}
	if got := mock.calls[0].ChatID; got != "79990001122@s.whatsapp.net" {
		t.Errorf("resolved chat = %q", got)
	}
}

func TestSendEmptyBodyRejectedBeforeProvider(t *testing.T) {
	mock := &mockSender{}
	g, s := newGateway(t, mock, true)

	_, err := g.Send(context.Background(), "a@c.us", "")
	if !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("err = %v, want ErrEmptyBody", err)
	}
	if len(mock.calls) != 0 {
		t.Error("provider called for empty body")
	}
	if len(s.List()) != 0 {
		t.Error("store mutated on rejected send")
	}
}

func TestSendNotReadyRejected(t *testing.T) {
	mock := &mockSender{}
	g, s := newGateway(t, mock, false)

	_, err := g.Send(context.Background(), "a@c.us", "hi")
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
	if len(mock.calls) != 0 || len(s.List()) != 0 {
		t.Error("not-ready send reached provider or store")
	}
}

func TestSendProviderFailureLeavesStoreUntouched(t *testing.T) {
	mock := &mockSender{err: errors.New("socket closed")}
	g, s := newGateway(t, mock, true)

	_, err := g.Send(context.Background(), "a@c.us", "hi")
	if err == nil {
		t.Fatal("expected provider failure to surface")
	}
	if errors.Is(err, ErrNotReady) || errors.Is(err, ErrEmptyBody) {
		t.Errorf("failure misclassified: %v", err)
	}
	if len(s.List()) != 0 {
		t.Error("store mutated on failed send")
	}
}

func TestSendGeneratesIDWhenProviderAssignsNone(t *testing.T) {
	mock := &mockSender{id: ""}
	g, _ := newGateway(t, mock, true)

	chat, err := g.Send(context.Background(), "a@c.us", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if chat.Messages[0].ID == "" {
		t.Error("message stored without an id")
	}
}
