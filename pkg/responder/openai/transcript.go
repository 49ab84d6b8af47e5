package openai

import (
	"strings"
	"sync"
	"time"
)

type transcriptEntry struct {
	Speaker string
	Text    string
	At      time.Time
}

// transcript keeps the most recent exchanges per room.
type transcript struct {
	mu    sync.RWMutex
	limit int
	rooms map[string][]transcriptEntry
}

// newTranscript keeps up to turns exchanges (one message and one reply each)
// per room.
func newTranscript(turns int) *transcript {
	return &transcript{
		limit: turns * 2,
		rooms: make(map[string][]transcriptEntry),
	}
}

func (t *transcript) Append(roomID string, speaker string, text string) {
	speaker = strings.TrimSpace(speaker)
	text = strings.TrimSpace(text)
	if speaker == "" || text == "" || t.limit <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entries := append(t.rooms[roomID], transcriptEntry{
		Speaker: speaker,
		Text:    text,
		At:      time.Now().UTC(),
	})
	if overflow := len(entries) - t.limit; overflow > 0 {
		entries = append([]transcriptEntry(nil), entries[overflow:]...)
	}
	t.rooms[roomID] = entries
}

func (t *transcript) List(roomID string) []transcriptEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := t.rooms[roomID]
	if len(entries) == 0 {
		return nil
	}

	out := make([]transcriptEntry, len(entries))
	copy(out, entries)
	return out
}

// Render formats the room's history as "speaker: text" lines.
func (t *transcript) Render(roomID string) string {
	entries := t.List(roomID)
	if len(entries) == 0 {
		return ""
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, entry.Speaker+": "+entry.Text)
	}
	return strings.Join(lines, "\n")
}

func (t *transcript) Clear(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.rooms, roomID)
}
