package usecase

import (
	"sync"

	"stockpilot/internal/domain"
	"stockpilot/internal/ports"
)

type activeSession struct {
	cancel func()
	audio  ports.AudioSession
	live   ports.LiveSession

	stateMu sync.Mutex
	state   domain.SessionState

	aggregator   *transcriptAggregator
	eventsDone   chan struct{}
	audioDone    chan struct{}
	teardownOnce sync.Once
}

func (s *activeSession) setState(state domain.SessionState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = state
}

func (s *activeSession) getState() domain.SessionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *activeSession) attach(audio ports.AudioSession, live ports.LiveSession) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.audio = audio
	s.live = live
}

func (s *activeSession) attached() (ports.AudioSession, ports.LiveSession) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.audio, s.live
}
