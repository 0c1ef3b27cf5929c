package history_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/trilayer/trilayer/internal/history"
	"github.com/trilayer/trilayer/internal/isolation"
)

// newTestStore creates a Store backed by a temp directory for isolation.
func newTestStore(t *testing.T) *history.Store {
	t.Helper()
	s, err := history.New(history.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testRecord builds a record for the given triple with the isolation key
// derived the same way the save entry point does it.
func testRecord(client, worker, projectDir, prompt string) *history.ConversationRecord {
	return &history.ConversationRecord{
		IsolationKey:     isolation.Key(client, worker, projectDir),
		ClientName:       client,
		Worker:           worker,
		ProjectName:      isolation.ProjectName(projectDir),
		ProjectDirectory: projectDir,
		AIPrompt:         prompt,
	}
}

// ─── New / Initialization ───────────────────────────────────────────────────

func TestNew_CreatesDBFile(t *testing.T) {
	dir := t.TempDir()
	s, err := history.New(history.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(dir, "history.db")); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestNew_IdempotentReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := history.Config{DataDir: dir}

	s1, err := history.New(cfg)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	rec := testRecord("cursor", "w1", "/tmp/projA", "hello")
	if _, err := s1.Save(rec, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	s1.Close()

	s2, err := history.New(cfg)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()

	records, err := s2.Conversations(rec.IsolationKey, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("records after reopen = %d, want 1", len(records))
	}
}

// ─── Save ───────────────────────────────────────────────────────────────────

func TestSave_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	rec := testRecord("cursor", "w1", "/tmp/projA", "Refactor the parser")
	rec.UserFeedback = "Looks good, ship it"
	rec.CommandLogs = "$ go test ./...\nok"

	sessionID, err := s.Save(rec, nil)
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if sessionID == "" {
		t.Fatal("Save returned empty session id")
	}

	records, err := s.Conversations(rec.IsolationKey, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("len = %d, want 1", len(records))
	}

	got := records[0]
	if got.SessionID != sessionID {
		t.Errorf("SessionID = %q, want %q", got.SessionID, sessionID)
	}
	if got.AIPrompt != rec.AIPrompt {
		t.Errorf("AIPrompt = %q, want %q", got.AIPrompt, rec.AIPrompt)
	}
	if got.UserFeedback != rec.UserFeedback {
		t.Errorf("UserFeedback = %q, want %q", got.UserFeedback, rec.UserFeedback)
	}
	if got.CommandLogs != rec.CommandLogs {
		t.Errorf("CommandLogs = %q, want %q", got.CommandLogs, rec.CommandLogs)
	}
	if got.ClientName != "cursor" || got.Worker != "w1" || got.ProjectName != "projA" {
		t.Errorf("identity fields = %q/%q/%q", got.ClientName, got.Worker, got.ProjectName)
	}
	if got.CreatedAt == "" || got.UpdatedAt == "" {
		t.Error("timestamps not set")
	}
}

func TestSave_GeneratesSessionID(t *testing.T) {
	s := newTestStore(t)

	rec := testRecord("cursor", "w1", "/tmp/projA", "prompt")
	sessionID, err := s.Save(rec, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessionID) != 32 {
		t.Errorf("generated session id %q length = %d, want 32 hex chars", sessionID, len(sessionID))
	}

	// Same prompt again: the id includes the current time, so two saves
	// must not collide into one record.
	rec2 := testRecord("cursor", "w1", "/tmp/projA", "prompt")
	id2, err := s.Save(rec2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if id2 == sessionID {
		t.Errorf("two saves produced the same session id %q", id2)
	}
}

func TestSave_EmptyPromptRejected(t *testing.T) {
	s := newTestStore(t)

	rec := testRecord("cursor", "w1", "/tmp/projA", "   ")
	if _, err := s.Save(rec, nil); err != history.ErrEmptyPrompt {
		t.Errorf("Save with blank prompt: err = %v, want ErrEmptyPrompt", err)
	}

	records, err := s.Conversations(rec.IsolationKey, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("rejected save left %d record(s) behind", len(records))
	}
}

func TestSave_ResavePreservesCreatedAt(t *testing.T) {
	s := newTestStore(t)

	first := testRecord("cursor", "w1", "/tmp/projA", "original prompt")
	first.SessionID = "fixed-session"
	first.CreatedAt = "2024-01-01 10:00:00"
	if _, err := s.Save(first, nil); err != nil {
		t.Fatal(err)
	}

	// Re-save the same session id with new content; created_at stays.
	second := testRecord("cursor", "w1", "/tmp/projA", "revised prompt")
	second.SessionID = "fixed-session"
	second.UserFeedback = "second pass"
	if _, err := s.Save(second, nil); err != nil {
		t.Fatal(err)
	}

	records, err := s.Conversations(first.IsolationKey, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("len = %d, want 1 (upsert)", len(records))
	}
	got := records[0]
	if got.CreatedAt != "2024-01-01 10:00:00" {
		t.Errorf("CreatedAt = %q, want original %q preserved", got.CreatedAt, "2024-01-01 10:00:00")
	}
	if got.UpdatedAt == got.CreatedAt {
		t.Error("UpdatedAt was not refreshed on re-save")
	}
	if got.AIPrompt != "revised prompt" || got.UserFeedback != "second pass" {
		t.Errorf("content not replaced: prompt=%q feedback=%q", got.AIPrompt, got.UserFeedback)
	}
}

func TestSave_WithImages(t *testing.T) {
	s := newTestStore(t)

	rec := testRecord("cursor", "w1", "/tmp/projA", "see screenshot")
	images := []history.ConversationImage{
		{ImagePath: "/tmp/shot1.png", ImageName: "shot1.png", ImageData: []byte{0x89, 0x50, 0x4e, 0x47}},
		{ImagePath: "/tmp/shot2.png", ImageName: "shot2.png", ImageData: []byte{0x01, 0x02}},
	}
	if _, err := s.Save(rec, images); err != nil {
		t.Fatal(err)
	}

	got, err := s.Images(rec.ID, rec.IsolationKey)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("images = %d, want 2", len(got))
	}
	if got[0].ImageName != "shot1.png" {
		t.Errorf("ImageName = %q, want shot1.png", got[0].ImageName)
	}
	if string(got[0].ImageData) != string([]byte{0x89, 0x50, 0x4e, 0x47}) {
		t.Error("image data mismatch")
	}
	if got[0].CreatedAt == "" {
		t.Error("image created_at not stamped")
	}
}

func TestImages_ScopedByIsolationKey(t *testing.T) {
	s := newTestStore(t)

	rec := testRecord("cursor", "w1", "/tmp/projA", "with image")
	images := []history.ConversationImage{{ImagePath: "/a.png", ImageName: "a.png"}}
	if _, err := s.Save(rec, images); err != nil {
		t.Fatal(err)
	}

	// Right id, wrong partition: nothing comes back.
	got, err := s.Images(rec.ID, "other_key_entirely")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("cross-partition image fetch returned %d image(s)", len(got))
	}
}

func TestImages_NonexistentConversation(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Images(9999, "whatever")
	if err != nil {
		t.Fatalf("nonexistent conversation should not error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d image(s) for nonexistent conversation", len(got))
	}
}

// ─── Conversations / ordering ───────────────────────────────────────────────

func TestConversations_NewestFirstAndPaginated(t *testing.T) {
	s := newTestStore(t)

	times := []string{
		"2024-03-01 09:00:00",
		"2024-03-02 09:00:00",
		"2024-03-03 09:00:00",
	}
	for i, ts := range times {
		rec := testRecord("cursor", "w1", "/tmp/projA", "prompt")
		rec.SessionID = "sess-" + string(rune('a'+i))
		rec.CreatedAt = ts
		if _, err := s.Save(rec, nil); err != nil {
			t.Fatal(err)
		}
	}

	key := isolation.Key("cursor", "w1", "/tmp/projA")
	records, err := s.Conversations(key, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("len = %d, want 3", len(records))
	}
	if records[0].SessionID != "sess-c" || records[2].SessionID != "sess-a" {
		t.Errorf("wrong order: %q, %q, %q",
			records[0].SessionID, records[1].SessionID, records[2].SessionID)
	}

	page, err := s.Conversations(key, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].SessionID != "sess-b" {
		t.Errorf("page(limit=1, offset=1) = %+v, want sess-b", page)
	}
}

func TestConversations_PartitionedByKey(t *testing.T) {
	s := newTestStore(t)

	a := testRecord("cursor", "w1", "/tmp/projA", "in A")
	b := testRecord("cursor", "w1", "/tmp/projB", "in B")
	for _, rec := range []*history.ConversationRecord{a, b} {
		if _, err := s.Save(rec, nil); err != nil {
			t.Fatal(err)
		}
	}

	records, err := s.Conversations(a.IsolationKey, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].AIPrompt != "in A" {
		t.Errorf("partition A = %+v, want only the projA record", records)
	}
}

// ─── Search ─────────────────────────────────────────────────────────────────

func TestSearch_CaseInsensitiveAcrossFields(t *testing.T) {
	s := newTestStore(t)

	rec1 := testRecord("cursor", "w1", "/tmp/projA", "Fix the Widget renderer")
	rec2 := testRecord("cursor", "w1", "/tmp/projA", "unrelated")
	rec2.UserFeedback = "widget looks fine now"
	rec3 := testRecord("cursor", "w1", "/tmp/projA", "also unrelated")
	rec3.CommandLogs = "$ grep WIDGET main.go"
	rec4 := testRecord("cursor", "w1", "/tmp/projA", "no match here")
	for _, rec := range []*history.ConversationRecord{rec1, rec2, rec3, rec4} {
		if _, err := s.Save(rec, nil); err != nil {
			t.Fatal(err)
		}
	}

	key := isolation.Key("cursor", "w1", "/tmp/projA")
	records, err := s.Search(key, "widget", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Errorf("search hits = %d, want 3 (prompt, feedback, logs)", len(records))
	}
}

func TestSearch_ScopedToPartition(t *testing.T) {
	s := newTestStore(t)

	inA := testRecord("cursor", "w1", "/tmp/projA", "shared term")
	inB := testRecord("cursor", "w1", "/tmp/projB", "shared term")
	for _, rec := range []*history.ConversationRecord{inA, inB} {
		if _, err := s.Save(rec, nil); err != nil {
			t.Fatal(err)
		}
	}

	records, err := s.Search(inA.IsolationKey, "shared", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("search crossed partitions: %d hits, want 1", len(records))
	}
}

// ─── Delete ─────────────────────────────────────────────────────────────────

func TestDelete_RemovesRecordAndImages(t *testing.T) {
	s := newTestStore(t)

	rec := testRecord("cursor", "w1", "/tmp/projA", "to be deleted")
	images := []history.ConversationImage{{ImagePath: "/a.png", ImageName: "a.png", ImageData: []byte{1}}}
	sessionID, err := s.Save(rec, images)
	if err != nil {
		t.Fatal(err)
	}

	deleted, err := s.Delete(sessionID, rec.IsolationKey)
	if err != nil {
		t.Fatal(err)
	}
	if !deleted {
		t.Fatal("Delete returned false for existing record")
	}

	records, err := s.Conversations(rec.IsolationKey, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("record still present after delete")
	}
	imgs, err := s.Images(rec.ID, rec.IsolationKey)
	if err != nil {
		t.Fatal(err)
	}
	if len(imgs) != 0 {
		t.Errorf("%d image(s) orphaned after delete", len(imgs))
	}

	// Second delete: idempotent-safe false, not an error.
	deleted, err = s.Delete(sessionID, rec.IsolationKey)
	if err != nil {
		t.Fatal(err)
	}
	if deleted {
		t.Error("second delete of same session returned true")
	}
}

func TestDelete_WrongKeyIsNoop(t *testing.T) {
	s := newTestStore(t)

	rec := testRecord("cursor", "w1", "/tmp/projA", "keep me")
	sessionID, err := s.Save(rec, nil)
	if err != nil {
		t.Fatal(err)
	}

	deleted, err := s.Delete(sessionID, "some_other_key")
	if err != nil {
		t.Fatal(err)
	}
	if deleted {
		t.Error("delete with mismatched key succeeded")
	}

	records, err := s.Conversations(rec.IsolationKey, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Error("record lost despite mismatched key")
	}
}

// ─── IsolationKeys ──────────────────────────────────────────────────────────

func TestIsolationKeys_DistinctSorted(t *testing.T) {
	s := newTestStore(t)

	for _, dir := range []string{"/tmp/b", "/tmp/a", "/tmp/b"} {
		rec := testRecord("cursor", "w1", dir, "p")
		if _, err := s.Save(rec, nil); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := s.IsolationKeys()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("keys = %v, want 2 distinct", keys)
	}
	if keys[0] != "cursor_w1_a" || keys[1] != "cursor_w1_b" {
		t.Errorf("keys = %v, want sorted [cursor_w1_a cursor_w1_b]", keys)
	}
}
