package cli

import (
	"log"
	"strings"
	"sync"

	"stockpilot/internal/domain"
)

// consoleSink renders session events to the terminal. In-progress
// transcript lines are skipped; sealed turns print once.
type consoleSink struct {
	mu      sync.Mutex
	printed int
}

func (s *consoleSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	log.Printf("session: %s (%s)", state, reason)
}

func (s *consoleSink) StatusText(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	log.Printf("status: %s", text)
}

func (s *consoleSink) PartialTranscript(_ domain.Speaker, _ string) {
	// Word-by-word deltas are too noisy for a line-based log.
}

func (s *consoleSink) TranscriptUpdated(entries []domain.TranscriptEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entries == nil {
		s.printed = 0
		return
	}
	for s.printed < len(entries) {
		entry := entries[s.printed]
		log.Printf("%s: %s", entry.Speaker, entry.Text)
		s.printed++
	}
}

func (s *consoleSink) SessionError(code domain.ErrorCode, detail string) {
	log.Printf("error [%s]: %s", code, detail)
}
