package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"wachat/internal/hub"
	"wachat/internal/model"
)

func (f *fixture) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", f.handlers.WebSocket)
	return r
}

func TestWebSocketSessionLifecycle(t *testing.T) {
	f := newFixture(t, &mockSender{id: "SRV1"}, &mockRegistrar{}, true)

	srv := httptest.NewServer(f.routes())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()

	// First frame is the snapshot, second the provider status.
	var first hub.Frame
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.Type != hub.FrameChats {
		t.Fatalf("first frame = %s, want chats", first.Type)
	}
	var second hub.Frame
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatal(err)
	}
	if second.Type != hub.FrameStatus {
		t.Fatalf("second frame = %s, want status", second.Type)
	}

	// sendMessage command lands in the store and comes back as an update.
	cmd := `{"type": "sendMessage", "chatId": "79990001122@c.us", "body": "hello"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(cmd)); err != nil {
		t.Fatal(err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var update hub.Frame
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatal(err)
	}
	if update.Type != hub.FrameChatUpdated {
		t.Fatalf("frame = %s, want chat-updated", update.Type)
	}

	chat := f.store.Get("79990001122@c.us")
	if chat == nil || len(chat.Messages) != 1 || !chat.Messages[0].FromMe {
		t.Fatalf("chat = %+v", chat)
	}
}

func TestWebSocketMarkViewedResetsUnread(t *testing.T) {
	f := newFixture(t, &mockSender{}, &mockRegistrar{}, true)

	if _, err := f.pipeline.Accept(model.Message{From: "a@c.us", Body: "hi", Timestamp: 1000}); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(f.routes())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()

	cmd := `{"type": "markViewed", "chatId": "a@c.us"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(cmd)); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for f.store.Get("a@c.us").UnreadCount != 0 {
		select {
		case <-deadline:
			t.Fatal("unread not reset via websocket command")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestWebSocketDisconnectRemovesSession(t *testing.T) {
	f := newFixture(t, &mockSender{}, &mockRegistrar{}, false)

	srv := httptest.NewServer(f.routes())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for f.hub.SessionCount() != 1 {
		select {
		case <-deadline:
			t.Fatal("session never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	_ = conn.Close()
	deadline = time.After(2 * time.Second)
	for f.hub.SessionCount() != 0 {
		select {
		case <-deadline:
			t.Fatal("session not removed after disconnect")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
