package memory

import (
	"reflect"
	"testing"
)

func TestWindowMessagesCopy(t *testing.T) {
	w := NewWindow(3)
	w.AddMessage("user", "hi", 100)
	w.AddMessage("assistant", "hello", 200)

	if w.MessageCount() != 2 {
		t.Fatalf("MessageCount = %d, want 2", w.MessageCount())
	}
	got := w.Messages()
	got[0].Text = "mutated"
	if w.Messages()[0].Text != "hi" {
		t.Errorf("Messages must return a copy")
	}
}

func TestMessagesForSummary(t *testing.T) {
	w := NewWindow(3)
	for i := int64(1); i <= 5; i++ {
		w.AddMessage("user", "m", 100*i)
	}

	prefix := w.MessagesForSummary(2)
	if len(prefix) != 3 {
		t.Fatalf("prefix len = %d, want 3", len(prefix))
	}
	if prefix[0].Timestamp != 100 || prefix[2].Timestamp != 300 {
		t.Errorf("prefix spans [%d..%d], want the oldest three", prefix[0].Timestamp, prefix[2].Timestamp)
	}

	if got := w.MessagesForSummary(5); got != nil {
		t.Errorf("prefix with keep >= len = %v, want nil", got)
	}
}

func TestRemoveEarliest(t *testing.T) {
	w := NewWindow(3)
	for i := int64(1); i <= 4; i++ {
		w.AddMessage("user", "m", 100*i)
	}

	w.RemoveEarliest(3)
	if w.MessageCount() != 1 || w.Messages()[0].Timestamp != 400 {
		t.Errorf("after RemoveEarliest(3): %+v", w.Messages())
	}

	w.RemoveEarliest(5)
	if w.MessageCount() != 0 {
		t.Errorf("removing more than present should empty the window")
	}
}

func TestAddSummaryCapsRecent(t *testing.T) {
	w := NewWindow(2)
	w.AddSummary("one", 1)
	w.AddSummary("two", 2)
	w.AddSummary("three", 3)

	if got := w.RecentSummaryIDs(); !reflect.DeepEqual(got, []int64{2, 3}) {
		t.Errorf("RecentSummaryIDs = %v, want [2 3]", got)
	}
	if got := w.RecentSummaryTexts(); !reflect.DeepEqual(got, []string{"two", "three"}) {
		t.Errorf("RecentSummaryTexts = %v, want [two three]", got)
	}
}

func TestLastAssistantText(t *testing.T) {
	w := NewWindow(3)
	if w.LastAssistantText() != "" {
		t.Errorf("empty window should have no assistant text")
	}
	w.AddMessage("user", "question", 100)
	w.AddMessage("assistant", "first answer", 200)
	w.AddMessage("assistant", "second answer", 300)
	w.AddMessage("user", "follow-up", 400)

	if got := w.LastAssistantText(); got != "second answer" {
		t.Errorf("LastAssistantText = %q, want %q", got, "second answer")
	}
}

func TestAsChatMessages(t *testing.T) {
	w := NewWindow(3)
	w.AddMessage("user", "ping", 100)
	w.AddMessage("assistant", "pong", 200)

	msgs := w.AsChatMessages()
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "ping" {
		t.Errorf("msgs[0] = %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "pong" {
		t.Errorf("msgs[1] = %+v", msgs[1])
	}
}

func TestClearEmptiesBothCompartments(t *testing.T) {
	w := NewWindow(3)
	w.AddMessage("user", "m", 100)
	w.AddSummary("s", 1)

	w.Clear()
	if w.MessageCount() != 0 {
		t.Errorf("messages survived Clear")
	}
	if len(w.RecentSummaryIDs()) != 0 {
		t.Errorf("summaries survived Clear")
	}
}
