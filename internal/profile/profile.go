// Package profile owns the seele.json document: the bot's identity and its
// accumulated understanding of the user. The document is mutated through
// RFC 6902 patches generated by the model, with a full-document replacement
// as the fallback path.
package profile

import "strings"

// Required top-level sections of the document.
var requiredSections = []string{"bot", "user", "memorable_events", "commands_and_agreements"}

// MaxEvents caps the memorable_events list. Older entries are dropped first.
const MaxEvents = 20

// Document is the parsed seele.json tree.
type Document map[string]any

// Event is one memorable_events entry.
type Event struct {
	Time    string
	Details string
}

// Str walks nested objects and returns the string leaf at path, or "".
func (d Document) Str(path ...string) string {
	cur := any(map[string]any(d))
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = obj[key]
	}
	s, _ := cur.(string)
	return s
}

// List returns the string items of the array leaf at path.
func (d Document) List(path ...string) []string {
	cur := any(map[string]any(d))
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[key]
	}
	items, ok := cur.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// BotName returns the bot's name, defaulting when unset.
func (d Document) BotName() string {
	if name := d.Str("bot", "name"); name != "" {
		return name
	}
	return "AI Assistant"
}

// UserName returns the user's name, defaulting when unset.
func (d Document) UserName() string {
	if name := d.Str("user", "name"); name != "" {
		return name
	}
	return "User"
}

// Events returns the memorable_events entries in stored order.
func (d Document) Events() []Event {
	items, ok := d["memorable_events"].([]any)
	if !ok {
		return nil
	}
	out := make([]Event, 0, len(items))
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		ev := Event{}
		ev.Time, _ = obj["time"].(string)
		ev.Details, _ = obj["details"].(string)
		out = append(out, ev)
	}
	return out
}

// Agreements returns the commands_and_agreements entries.
func (d Document) Agreements() []string {
	return d.List("commands_and_agreements")
}

// JoinOr joins items with ", ", or returns the fallback when empty.
func JoinOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, ", ")
}
