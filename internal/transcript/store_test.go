package transcript

import (
	"database/sql"
	"errors"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestStore_CreateChatDefaultTitle(t *testing.T) {
	store := setupTestStore(t)

	c, err := store.CreateChat("proj1", "")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if len(c.ID) != 8 {
		t.Errorf("chat id = %q", c.ID)
	}
	if c.Title != "Chat "+c.ID {
		t.Errorf("title = %q", c.Title)
	}
}

func TestStore_AppendAndMessages(t *testing.T) {
	store := setupTestStore(t)

	c, err := store.CreateChat("proj1", "notes")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	if _, err := store.Append(c.ID, "user", "hello"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.Append(c.ID, "assistant", "hi there"); err != nil {
		t.Fatalf("append: %v", err)
	}

	msgs, err := store.Messages(c.ID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "hello" {
		t.Errorf("msgs[0] = %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "hi there" {
		t.Errorf("msgs[1] = %+v", msgs[1])
	}
}

func TestStore_AppendMissingChat(t *testing.T) {
	store := setupTestStore(t)

	if _, err := store.Append("missing1", "user", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("append missing = %v, want ErrNotFound", err)
	}
}

func TestStore_ListChatsOrder(t *testing.T) {
	store := setupTestStore(t)

	a, err := store.CreateChat("proj1", "first")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.CreateChat("proj1", "second"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.CreateChat("other", "elsewhere"); err != nil {
		t.Fatal(err)
	}

	// Activity on the first chat should float it to the top.
	if _, err := store.Append(a.ID, "user", "bump"); err != nil {
		t.Fatal(err)
	}

	chats, err := store.ListChats("proj1")
	if err != nil {
		t.Fatalf("list chats: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(chats))
	}
	if chats[0].ID != a.ID {
		t.Errorf("chats[0] = %q, want %q", chats[0].ID, a.ID)
	}
}

func TestStore_DeleteChat(t *testing.T) {
	store := setupTestStore(t)

	c, err := store.CreateChat("proj1", "doomed")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Append(c.ID, "user", "x"); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteChat(c.ID); err != nil {
		t.Fatalf("delete chat: %v", err)
	}
	if _, err := store.GetChat(c.ID); !errors.Is(err, ErrNotFound) {
		t.Error("chat still present after delete")
	}
	msgs, err := store.Messages(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("messages survived chat delete: %v", msgs)
	}

	if err := store.DeleteChat(c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestStore_DeleteByProject(t *testing.T) {
	store := setupTestStore(t)

	c, err := store.CreateChat("proj1", "a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Append(c.ID, "user", "x"); err != nil {
		t.Fatal(err)
	}
	keep, err := store.CreateChat("proj2", "b")
	if err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteByProject("proj1"); err != nil {
		t.Fatalf("delete by project: %v", err)
	}

	chats, err := store.ListChats("proj1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 0 {
		t.Errorf("proj1 chats survived: %v", chats)
	}
	if _, err := store.GetChat(keep.ID); err != nil {
		t.Errorf("unrelated chat removed: %v", err)
	}
}

func TestExportHTML(t *testing.T) {
	chat := Chat{ID: "abc", Title: "Demo <chat>"}
	msgs := []Message{
		{Role: "user", Content: "show me **bold**"},
		{Role: "assistant", Content: "# Heading\n\nsome `code`"},
		{Role: "tool", Content: "should not appear"},
	}

	out, err := ExportHTML(chat, msgs)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	if !strings.Contains(out, "<title>Demo &lt;chat&gt;</title>") {
		t.Error("title not escaped")
	}
	if !strings.Contains(out, "<strong>bold</strong>") {
		t.Error("markdown not rendered")
	}
	if !strings.Contains(out, "<h1>Heading</h1>") {
		t.Error("heading not rendered")
	}
	if strings.Contains(out, "should not appear") {
		t.Error("tool message leaked into export")
	}
}
