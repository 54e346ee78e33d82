package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	jsonpatch "github.com/evanphx/json-patch"
)

// Store owns the seele.json file and its in-memory cache. All access goes
// through the store so a failed patch never leaves a half-mutated document.
type Store struct {
	path     string
	botName  string
	userName string

	mu    sync.Mutex
	cache Document
}

// NewStore returns a store for the document at path. The names seed the
// default template when no document exists yet.
func NewStore(path, botName, userName string) *Store {
	return &Store{path: path, botName: botName, userName: userName}
}

// Document returns the current document, loading it on first use. Successful
// updates replace the cached tree wholesale, so callers may keep reading a
// returned Document while later updates land.
func (s *Store) Document() (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// DocumentJSON returns the current document pretty-printed.
func (s *Store) DocumentJSON() (string, error) {
	doc, err := s.Document()
	if err != nil {
		return "", err
	}
	raw, err := marshalDocument(doc)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (s *Store) load() (Document, error) {
	if s.cache != nil {
		return s.cache, nil
	}

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		slog.Warn("profile document not found, using template", "path", s.path)
		doc := defaultDocument(s.botName, s.userName)
		if err := s.write(doc); err != nil {
			return nil, err
		}
		s.cache = doc
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	s.cache = doc
	return doc, nil
}

// ApplyPatch applies an RFC 6902 patch array to the document and persists
// the result. Anything other than a patch array is rejected; on any failure
// the cache and the file are left untouched.
func (s *Store) ApplyPatch(patch []byte) error {
	trimmed := bytes.TrimSpace(patch)
	if len(trimmed) == 0 {
		return fmt.Errorf("apply patch: empty patch")
	}
	if trimmed[0] != '[' {
		return fmt.Errorf("apply patch: expected a JSON Patch array (RFC 6902), got %q", string(trimmed[0]))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	current, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("apply patch: encode document: %w", err)
	}

	decoded, err := jsonpatch.DecodePatch(trimmed)
	if err != nil {
		return fmt.Errorf("apply patch: decode: %w", err)
	}
	patched, err := decoded.Apply(current)
	if err != nil {
		return fmt.Errorf("apply patch: %w", err)
	}

	var next Document
	if err := json.Unmarshal(patched, &next); err != nil {
		return fmt.Errorf("apply patch: decode result: %w", err)
	}
	if err := checkSections(next); err != nil {
		return fmt.Errorf("apply patch: %w", err)
	}
	if err := s.write(next); err != nil {
		return err
	}
	s.cache = next
	slog.Info("applied profile patch", "operations", len(decoded))
	return nil
}

// ReplaceDocument swaps in a complete document, used by the full-profile
// fallback. Required sections are checked and the events list is trimmed to
// the newest MaxEvents entries before the write.
func (s *Store) ReplaceDocument(doc Document) error {
	if err := checkSections(doc); err != nil {
		return fmt.Errorf("replace profile: %w", err)
	}
	events, ok := doc["memorable_events"].([]any)
	if !ok {
		return fmt.Errorf("replace profile: memorable_events is not an array")
	}
	if len(events) > MaxEvents {
		slog.Warn("truncating memorable_events", "have", len(events), "max", MaxEvents)
		doc["memorable_events"] = events[len(events)-MaxEvents:]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(doc); err != nil {
		return err
	}
	s.cache = doc
	return nil
}

func checkSections(doc Document) error {
	var missing []string
	for _, key := range requiredSections {
		if _, ok := doc[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("document is missing required sections: %s", strings.Join(missing, ", "))
	}
	return nil
}

// write persists the document atomically: temp file in the same directory,
// then rename over the target.
func (s *Store) write(doc Document) error {
	raw, err := marshalDocument(doc)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".seele-*.json")
	if err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write profile: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// marshalDocument pretty-prints without escaping non-ASCII or HTML, so the
// document stays readable in the conversation's own language.
func marshalDocument(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	return buf.Bytes(), nil
}
