package audio

import (
	"errors"
	"sync"
	"time"

	"stockpilot/internal/ports"
)

// Clock abstracts the playback output clock so scheduling is testable.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a stoppable pending callback.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer { return time.AfterFunc(d, fn) }

// SystemClock is the wall-clock playback clock.
func SystemClock() Clock { return realClock{} }

type flusher interface {
	Flush() error
}

// Scheduler schedules decoded assistant audio buffers for gapless
// playback on a virtual output clock. Each buffer starts at
// max(cursor, now) and advances the cursor by its duration, so buffers
// arriving faster than real time play back-to-back without overlap.
type Scheduler struct {
	speaker    ports.Speaker
	clock      Clock
	sampleRate int
	channels   int
	onError    func(error)

	mu         sync.Mutex
	cursor     time.Time
	nextHandle uint64
	scheduled  map[uint64]*playbackHandle
	greeting   *playbackHandle
	closed     bool
}

type playbackHandle struct {
	start Timer
	done  Timer
}

// NewScheduler builds a scheduler writing to speaker on the given
// clock. onError receives speaker write and flush failures; playback
// itself continues, since a dropped buffer is better than a stalled
// session. nil disables reporting.
func NewScheduler(speaker ports.Speaker, clock Clock, sampleRate int, channels int, onError func(error)) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	if channels <= 0 {
		channels = 1
	}
	return &Scheduler{
		speaker:    speaker,
		clock:      clock,
		sampleRate: sampleRate,
		channels:   channels,
		onError:    onError,
		scheduled:  make(map[uint64]*playbackHandle),
	}
}

// Schedule queues one decoded buffer at the next free slot on the
// output clock and registers it in the live-set until completion.
func (s *Scheduler) Schedule(pcm []byte) error {
	d := Duration(len(pcm), s.sampleRate, s.channels)
	if d <= 0 {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("playback scheduler is closed")
	}
	now := s.clock.Now()
	start := s.cursor
	if start.Before(now) {
		start = now
	}
	s.cursor = start.Add(d)

	id := s.nextHandle
	s.nextHandle++
	handle := &playbackHandle{}
	s.scheduled[id] = handle
	buf := pcm
	handle.start = s.clock.AfterFunc(start.Sub(now), func() {
		s.write(buf)
	})
	handle.done = s.clock.AfterFunc(s.cursor.Sub(now), func() {
		s.mu.Lock()
		delete(s.scheduled, id)
		s.mu.Unlock()
	})
	s.mu.Unlock()
	return nil
}

// Pending reports how many scheduled buffers have not yet finished.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scheduled)
}

// Interrupt implements the barge-in protocol: stop every scheduled
// buffer, clear the live-set and reset the cursor to the clock's
// current time so stale assistant speech never resumes.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	for id, handle := range s.scheduled {
		handle.stop()
		delete(s.scheduled, id)
	}
	s.cursor = s.clock.Now()
	s.mu.Unlock()

	if f, ok := s.speaker.(flusher); ok {
		if err := f.Flush(); err != nil {
			s.emitErr(err)
		}
	}
}

// PlayGreeting plays one utterance through the single greeting slot,
// outside the scheduled live-set. onDone fires on natural completion
// only; a stopped greeting never calls it.
func (s *Scheduler) PlayGreeting(pcm []byte, onDone func()) error {
	d := Duration(len(pcm), s.sampleRate, s.channels)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("playback scheduler is closed")
	}
	if s.greeting != nil {
		s.greeting.stop()
	}
	handle := &playbackHandle{}
	s.greeting = handle
	handle.done = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		current := s.greeting == handle
		if current {
			s.greeting = nil
		}
		s.mu.Unlock()
		if current && onDone != nil {
			onDone()
		}
	})
	s.mu.Unlock()

	s.write(pcm)
	return nil
}

// StopGreeting releases the greeting slot without firing its callback.
func (s *Scheduler) StopGreeting() {
	s.mu.Lock()
	if s.greeting != nil {
		s.greeting.stop()
		s.greeting = nil
	}
	s.mu.Unlock()
}

// StopAll stops the greeting and all scheduled playback. Safe to call
// repeatedly and from any state.
func (s *Scheduler) StopAll() {
	s.StopGreeting()
	s.Interrupt()
}

func (s *Scheduler) write(pcm []byte) {
	if len(pcm) == 0 || s.speaker == nil {
		return
	}
	if err := s.speaker.Write(pcm); err != nil {
		s.emitErr(err)
	}
}

func (s *Scheduler) emitErr(err error) {
	if err == nil || s.onError == nil {
		return
	}
	s.onError(err)
}

func (h *playbackHandle) stop() {
	if h.start != nil {
		h.start.Stop()
	}
	if h.done != nil {
		h.done.Stop()
	}
}
