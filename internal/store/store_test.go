package store

import (
	"errors"
	"testing"
	"time"

	"wachat/internal/model"
)

// recordingPersister counts SaveAll calls and can be forced to fail.
type recordingPersister struct {
	saves int
	err   error
	last  int // chat count at last save
}

func (p *recordingPersister) LoadAll() (map[string]*model.Chat, error) { return nil, nil }

func (p *recordingPersister) SaveAll(chats map[string]*model.Chat) error {
	p.saves++
	p.last = len(chats)
	return p.err
}

func TestUpsertMessageCreatesChatLazily(t *testing.T) {
	s := New(nil, nil)

	chat, err := s.UpsertMessage(model.Message{From: "555@c.us", Body: "hi", Timestamp: 1000}, "555@c.us")
	if err != nil {
		t.Fatal(err)
	}
	if chat.ID != "555@c.us" {
		t.Errorf("chat id = %q, want 555@c.us", chat.ID)
	}
	if chat.Name != "555" {
		t.Errorf("name = %q, want suffix-stripped 555", chat.Name)
	}
	if chat.CreatedAt == 0 || chat.UpdatedAt == 0 {
		t.Error("timestamps not set on creation")
	}
}

func TestUpsertMessageLastMessageInvariant(t *testing.T) {
	s := New(nil, nil)

	bodies := []string{"one", "two", "three"}
	for i, b := range bodies {
		chat, err := s.UpsertMessage(model.Message{From: "a@c.us", Body: b, Timestamp: int64(1000 * (i + 1))}, "a@c.us")
		if err != nil {
			t.Fatal(err)
		}
		if chat.LastMessage == nil || chat.LastMessage.Body != b {
			t.Fatalf("after %q: lastMessage = %+v", b, chat.LastMessage)
		}
		if got := chat.Messages[len(chat.Messages)-1].Body; got != b {
			t.Fatalf("last element = %q, want %q", got, b)
		}
	}
}

func TestUnreadCountOnlyInbound(t *testing.T) {
	s := New(nil, nil)

	for i := 0; i < 3; i++ {
		if _, err := s.UpsertMessage(model.Message{From: "a@c.us", Body: "in", Timestamp: int64(i) * 5000}, "a@c.us"); err != nil {
			t.Fatal(err)
		}
	}
	chat, err := s.UpsertMessage(model.Message{From: "me", To: "a@c.us", Body: "out", FromMe: true, Timestamp: 99000}, "a@c.us")
	if err != nil {
		t.Fatal(err)
	}
	if chat.UnreadCount != 3 {
		t.Errorf("unread = %d, want 3 (outbound must not count)", chat.UnreadCount)
	}
}

func TestResetUnread(t *testing.T) {
	s := New(nil, nil)

	if _, err := s.UpsertMessage(model.Message{From: "a@c.us", Body: "x", Timestamp: 1000}, "a@c.us"); err != nil {
		t.Fatal(err)
	}
	chat, err := s.ResetUnread("a@c.us")
	if err != nil {
		t.Fatal(err)
	}
	if chat.UnreadCount != 0 {
		t.Errorf("unread = %d after reset, want 0", chat.UnreadCount)
	}

	// Further inbound messages count from zero again.
	chat, _ = s.UpsertMessage(model.Message{From: "a@c.us", Body: "y", Timestamp: 9000}, "a@c.us")
	if chat.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", chat.UnreadCount)
	}
}

func TestResetUnreadUnknownChatIsNoop(t *testing.T) {
	p := &recordingPersister{}
	s := New(p, nil)

	chat, err := s.ResetUnread("missing@c.us")
	if err != nil {
		t.Fatalf("reset on unknown chat errored: %v", err)
	}
	if chat != nil {
		t.Errorf("chat = %+v, want nil", chat)
	}
	if p.saves != 0 {
		t.Errorf("persist called %d times on no-op reset", p.saves)
	}
}

func TestListIsSnapshotCopy(t *testing.T) {
	s := New(nil, nil)
	if _, err := s.UpsertMessage(model.Message{From: "a@c.us", Body: "x", Timestamp: 1000}, "a@c.us"); err != nil {
		t.Fatal(err)
	}

	snap := s.List()
	if len(snap) != 1 {
		t.Fatalf("got %d chats, want 1", len(snap))
	}
	snap[0].Messages[0].Body = "mutated"
	snap[0].UnreadCount = 99

	fresh := s.Get("a@c.us")
	if fresh.Messages[0].Body != "x" || fresh.UnreadCount != 1 {
		t.Error("snapshot mutation leaked into the store")
	}
}

func TestPersistFailureKeepsMemoryState(t *testing.T) {
	p := &recordingPersister{err: errors.New("disk full")}
	s := New(p, nil)

	_, err := s.UpsertMessage(model.Message{From: "a@c.us", Body: "x", Timestamp: 1000}, "a@c.us")
	if err == nil {
		t.Fatal("expected persistence error to surface")
	}
	if got := s.Get("a@c.us"); got == nil || len(got.Messages) != 1 {
		t.Error("in-memory mutation rolled back on persist failure")
	}
}

func TestWriteThroughOnEveryMutation(t *testing.T) {
	p := &recordingPersister{}
	s := New(p, nil)

	_, _ = s.UpsertMessage(model.Message{From: "a@c.us", Body: "x", Timestamp: 1000}, "a@c.us")
	_, _, _ = s.CreateChat("b@c.us", "Bob")
	_, _ = s.ResetUnread("a@c.us")

	if p.saves != 3 {
		t.Errorf("persist calls = %d, want 3", p.saves)
	}
	if p.last != 2 {
		t.Errorf("chats at last save = %d, want 2", p.last)
	}
}

func TestCreateChatExistingReturnsUnchanged(t *testing.T) {
	s := New(nil, nil)
	if _, _, err := s.CreateChat("a@c.us", "Alice"); err != nil {
		t.Fatal(err)
	}
	chat, created, err := s.CreateChat("a@c.us", "Other")
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("created = true for existing chat")
	}
	if chat.Name != "Alice" {
		t.Errorf("name = %q, want Alice (unchanged)", chat.Name)
	}
}

func TestFindDuplicateWindow(t *testing.T) {
	s := New(nil, nil)
	if _, err := s.UpsertMessage(model.Message{From: "a@c.us", Body: "ping", Timestamp: 10_000}, "a@c.us"); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		desc   string
		body   string
		fromMe bool
		ts     int64
		want   bool
	}{
		{"same body within window", "ping", false, 10_300, true},
		{"same body at negative offset", "ping", false, 9_100, true},
		{"window boundary is exclusive", "ping", false, 11_000, false},
		{"different body", "pong", false, 10_300, false},
		{"different direction", "ping", true, 10_300, false},
		{"unknown chat", "ping", false, 10_300, false},
	}
	for _, tc := range cases {
		chatID := "a@c.us"
		if tc.desc == "unknown chat" {
			chatID = "zzz@c.us"
		}
		if got := s.FindDuplicate(chatID, tc.body, tc.fromMe, tc.ts, time.Second); got != tc.want {
			t.Errorf("%s: FindDuplicate = %v, want %v", tc.desc, got, tc.want)
		}
	}
}
