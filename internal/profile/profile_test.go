package profile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "seele.json"), "Seele", "Alice")
}

func TestLoadCreatesTemplate(t *testing.T) {
	s := newTestStore(t)
	doc, err := s.Document()
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if doc.BotName() != "Seele" {
		t.Errorf("bot name = %q, want Seele", doc.BotName())
	}
	if doc.UserName() != "Alice" {
		t.Errorf("user name = %q, want Alice", doc.UserName())
	}

	// The template lands on disk on first load.
	raw, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatalf("template missing on disk: %v", err)
	}
	var onDisk map[string]any
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("template not valid JSON: %v", err)
	}
	for _, key := range requiredSections {
		if _, ok := onDisk[key]; !ok {
			t.Errorf("template missing section %q", key)
		}
	}
}

func TestApplyPatch(t *testing.T) {
	s := newTestStore(t)

	patch := `[
		{"op": "replace", "path": "/user/name", "value": "Bob"},
		{"op": "add", "path": "/user/personal_facts/-", "value": "Enjoys hiking"},
		{"op": "add", "path": "/memorable_events/-", "value": {"time": "2026-08-25", "details": "First conversation"}}
	]`
	if err := s.ApplyPatch([]byte(patch)); err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}

	doc, _ := s.Document()
	if doc.UserName() != "Bob" {
		t.Errorf("user name = %q, want Bob", doc.UserName())
	}
	if facts := doc.List("user", "personal_facts"); len(facts) != 1 || facts[0] != "Enjoys hiking" {
		t.Errorf("personal_facts = %v", facts)
	}
	events := doc.Events()
	if len(events) != 1 || events[0].Time != "2026-08-25" || events[0].Details != "First conversation" {
		t.Errorf("events = %+v", events)
	}

	// The change survives a fresh store reading the same file.
	fresh := NewStore(s.path, "Seele", "Alice")
	doc, err := fresh.Document()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if doc.UserName() != "Bob" {
		t.Errorf("reloaded user name = %q, want Bob", doc.UserName())
	}
}

func TestApplyPatchRejectsObject(t *testing.T) {
	s := newTestStore(t)
	err := s.ApplyPatch([]byte(`{"user": {"name": "Bob"}}`))
	if err == nil {
		t.Fatal("ApplyPatch accepted a bare object")
	}
	if !strings.Contains(err.Error(), "RFC 6902") {
		t.Errorf("error %q does not name the expected format", err)
	}

	// Rejection leaves the cache untouched.
	doc, _ := s.Document()
	if doc.UserName() != "Alice" {
		t.Errorf("user name mutated to %q after rejected patch", doc.UserName())
	}
}

func TestApplyPatchFailureLeavesDocument(t *testing.T) {
	s := newTestStore(t)

	// Replace on a missing path fails in RFC 6902.
	err := s.ApplyPatch([]byte(`[{"op": "replace", "path": "/no/such/field", "value": 1}]`))
	if err == nil {
		t.Fatal("ApplyPatch accepted an inapplicable patch")
	}
	doc, _ := s.Document()
	if doc.UserName() != "Alice" {
		t.Errorf("document mutated after failed patch")
	}
}

func TestApplyPatchKeepsRequiredSections(t *testing.T) {
	s := newTestStore(t)
	err := s.ApplyPatch([]byte(`[{"op": "remove", "path": "/bot"}]`))
	if err == nil {
		t.Fatal("ApplyPatch allowed removing a required section")
	}
	doc, _ := s.Document()
	if doc.BotName() != "Seele" {
		t.Errorf("bot section lost after rejected patch")
	}
}

func TestReplaceDocumentTruncatesEvents(t *testing.T) {
	s := newTestStore(t)
	doc, _ := s.Document()

	events := make([]any, 0, MaxEvents+5)
	for i := 0; i < MaxEvents+5; i++ {
		events = append(events, map[string]any{"time": "2026-01-01", "details": strings.Repeat("x", i+1)})
	}
	next := Document{}
	for k, v := range doc {
		next[k] = v
	}
	next["memorable_events"] = events

	if err := s.ReplaceDocument(next); err != nil {
		t.Fatalf("ReplaceDocument: %v", err)
	}
	got, _ := s.Document()
	kept := got.Events()
	if len(kept) != MaxEvents {
		t.Fatalf("events kept = %d, want %d", len(kept), MaxEvents)
	}
	// The oldest entries are the ones dropped.
	if len(kept[0].Details) != 6 {
		t.Errorf("first kept event = %q, want the sixth original", kept[0].Details)
	}
}

func TestReplaceDocumentRequiresSections(t *testing.T) {
	s := newTestStore(t)
	err := s.ReplaceDocument(Document{"bot": map[string]any{}, "user": map[string]any{}})
	if err == nil {
		t.Fatal("ReplaceDocument accepted a document missing sections")
	}
}

func TestDocumentAccessors(t *testing.T) {
	doc := Document{
		"bot": map[string]any{
			"likes": []any{"tea", "rainy days"},
			"personality": map[string]any{
				"mbti": "INFJ",
			},
		},
		"user": map[string]any{},
	}
	if got := doc.Str("bot", "personality", "mbti"); got != "INFJ" {
		t.Errorf("Str = %q", got)
	}
	if got := doc.Str("bot", "missing", "path"); got != "" {
		t.Errorf("Str on missing path = %q, want empty", got)
	}
	if got := JoinOr(doc.List("bot", "likes"), "Not specified"); got != "tea, rainy days" {
		t.Errorf("JoinOr = %q", got)
	}
	if got := JoinOr(doc.List("bot", "dislikes"), "Not specified"); got != "Not specified" {
		t.Errorf("JoinOr fallback = %q", got)
	}
}
