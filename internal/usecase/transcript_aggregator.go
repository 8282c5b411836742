package usecase

import (
	"strings"
	"sync"

	"stockpilot/internal/domain"
)

// transcriptAggregator accumulates transcription deltas into
// speaker-tagged lines. Deltas append to the current turn's line; a
// turn boundary seals both sides into the history.
type transcriptAggregator struct {
	mu        sync.Mutex
	sealed    []domain.TranscriptEntry
	user      string
	assistant string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

// AddUser appends a delta to the user's in-progress line and returns
// the accumulated text.
func (a *transcriptAggregator) AddUser(delta string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user += delta
	return strings.TrimSpace(a.user)
}

// AddAssistant appends a delta to the assistant's in-progress line and
// returns the accumulated text.
func (a *transcriptAggregator) AddAssistant(delta string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.assistant += delta
	return strings.TrimSpace(a.assistant)
}

// SealTurn moves the in-progress lines into history, user first.
func (a *transcriptAggregator) SealTurn() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if text := strings.TrimSpace(a.user); text != "" {
		a.sealed = append(a.sealed, domain.TranscriptEntry{Speaker: domain.SpeakerUser, Text: text})
	}
	if text := strings.TrimSpace(a.assistant); text != "" {
		a.sealed = append(a.sealed, domain.TranscriptEntry{Speaker: domain.SpeakerAssistant, Text: text})
	}
	a.user = ""
	a.assistant = ""
}

// Entries returns the sealed history plus any in-progress lines.
func (a *transcriptAggregator) Entries() []domain.TranscriptEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries := make([]domain.TranscriptEntry, len(a.sealed), len(a.sealed)+2)
	copy(entries, a.sealed)
	if text := strings.TrimSpace(a.user); text != "" {
		entries = append(entries, domain.TranscriptEntry{Speaker: domain.SpeakerUser, Text: text})
	}
	if text := strings.TrimSpace(a.assistant); text != "" {
		entries = append(entries, domain.TranscriptEntry{Speaker: domain.SpeakerAssistant, Text: text})
	}
	return entries
}

func (a *transcriptAggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sealed = nil
	a.user = ""
	a.assistant = ""
}
