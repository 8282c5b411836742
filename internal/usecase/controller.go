// Package usecase orchestrates the voice session: greeting playback,
// the live model stream, audio capture, playback scheduling, and tool
// dispatch into the dialogue machine.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"stockpilot/internal/domain"
	"stockpilot/internal/ports"
)

var ErrSessionActive = errors.New("a voice session is already active")

// ToolDispatcher handles the model's tool invocations. Dispatch always
// produces exactly one correlated result.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, call domain.ToolInvocation) domain.ToolResult
	Reset()
}

// InventoryReader supplies the stock snapshot inlined into the system
// instruction.
type InventoryReader interface {
	List(ctx context.Context, userID string) ([]domain.InventoryItem, error)
}

// Config controls voice session behavior.
type Config struct {
	Audio            ports.AudioConfig
	Model            string
	Greeting         string
	UserID           string
	Categories       []string
	FrameSize        int
	InputSampleRate  int
	OutputSampleRate int
}

// SessionController drives the Inactive -> Greeting -> Listening ->
// Inactive lifecycle. At most one session is active at a time.
type SessionController struct {
	capture   ports.AudioCapture
	provider  ports.LiveProvider
	greeter   ports.Greeter
	playback  ports.PlaybackScheduler
	dialogue  ToolDispatcher
	inventory InventoryReader
	events    ports.EventSink
	cfg       Config

	mu      sync.Mutex
	current *activeSession
}

func NewSessionController(
	capture ports.AudioCapture,
	provider ports.LiveProvider,
	greeter ports.Greeter,
	playback ports.PlaybackScheduler,
	dialogue ToolDispatcher,
	inventory InventoryReader,
	events ports.EventSink,
	cfg Config,
) *SessionController {
	if cfg.FrameSize < 256 {
		cfg.FrameSize = 4096
	}
	return &SessionController{
		capture:   capture,
		provider:  provider,
		greeter:   greeter,
		playback:  playback,
		dialogue:  dialogue,
		inventory: inventory,
		events:    events,
		cfg:       cfg,
	}
}

// Start begins a new voice session: play the greeting, then open the
// live stream once it finishes. Starting while a session is active
// fails without disturbing the running one.
func (c *SessionController) Start(ctx context.Context) error {
	sessionCtx, cancel := context.WithCancel(ctx)

	active := &activeSession{
		cancel:     cancel,
		state:      domain.SessionStateGreeting,
		aggregator: newTranscriptAggregator(),
		eventsDone: make(chan struct{}),
		audioDone:  make(chan struct{}),
	}

	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		cancel()
		return ErrSessionActive
	}
	c.current = active
	c.mu.Unlock()

	c.events.SessionStateChanged(domain.SessionStateGreeting, domain.SessionReasonGreetingStarted)
	c.events.StatusText("Starting up...")

	pcm, err := c.greeter.Synthesize(sessionCtx, c.cfg.Greeting)
	if err != nil {
		if sessionCtx.Err() != nil {
			c.teardown(active, domain.SessionReasonUserStopped)
			return sessionCtx.Err()
		}
		// A broken greeting voice should not block the session.
		c.events.SessionError(domain.ErrorCodeStartup, fmt.Sprintf("greeting synthesis failed: %v", err))
		go c.beginListening(sessionCtx, active)
		return nil
	}

	if err := c.playback.PlayGreeting(pcm, func() {
		c.beginListening(sessionCtx, active)
	}); err != nil {
		c.events.SessionError(domain.ErrorCodePlayback, fmt.Sprintf("greeting playback failed: %v", err))
		go c.beginListening(sessionCtx, active)
	}
	return nil
}

// beginListening opens the live stream and microphone. It runs after
// the greeting completes, and bails out if the session was cancelled in
// the meantime.
func (c *SessionController) beginListening(ctx context.Context, active *activeSession) {
	if ctx.Err() != nil || !c.isCurrent(active) {
		return
	}

	c.events.StatusText("Connecting...")
	c.events.SessionStateChanged(domain.SessionStateGreeting, domain.SessionReasonConnecting)

	items, err := c.inventory.List(ctx, c.cfg.UserID)
	if err != nil {
		c.events.SessionError(domain.ErrorCodeInventory, fmt.Sprintf("failed to load inventory snapshot: %v", err))
		items = nil
	}

	live, err := c.provider.Connect(ctx, ports.LiveConfig{
		Model:             c.cfg.Model,
		SystemInstruction: buildSystemInstruction(c.cfg.Categories, items),
		InputSampleRate:   c.cfg.InputSampleRate,
		OutputSampleRate:  c.cfg.OutputSampleRate,
	})
	if err != nil {
		c.events.SessionError(domain.ErrorCodeTransport, fmt.Sprintf("failed to connect: %v", err))
		c.teardown(active, domain.SessionReasonTransportFailed)
		return
	}

	audioSession, err := c.capture.Start(ctx, c.cfg.Audio)
	if err != nil {
		_ = live.Close()
		if errors.Is(err, ports.ErrPermissionDenied) {
			c.events.SessionError(domain.ErrorCodePermissionDenied, "microphone unavailable, check capture device permissions")
			c.teardown(active, domain.SessionReasonMicUnavailable)
		} else {
			c.events.SessionError(domain.ErrorCodeStartup, fmt.Sprintf("failed to start audio capture: %v", err))
			c.teardown(active, domain.SessionReasonTransportFailed)
		}
		return
	}

	active.attach(audioSession, live)
	if ctx.Err() != nil {
		_ = audioSession.Stop()
		_ = live.Close()
		close(active.eventsDone)
		close(active.audioDone)
		return
	}

	go c.consumeLiveEvents(ctx, active, live)
	go pumpAudioFrames(audioSession, live, c.cfg.FrameSize, c.cfg.InputSampleRate,
		func() bool { return c.isCurrent(active) }, c.events, active.audioDone)

	active.setState(domain.SessionStateListening)
	c.events.StatusText("Listening")
	c.events.SessionStateChanged(domain.SessionStateListening, domain.SessionReasonListening)
}

// consumeLiveEvents is the session's single consumer loop. Events
// arrive in the model's emission order and are handled one at a time,
// so interruption always flushes before later audio is scheduled.
func (c *SessionController) consumeLiveEvents(ctx context.Context, active *activeSession, live ports.LiveSession) {
	for event := range live.Events() {
		switch {
		case event.UserTranscript != "":
			line := active.aggregator.AddUser(event.UserTranscript)
			c.events.PartialTranscript(domain.SpeakerUser, line)

		case event.AssistantTranscript != "":
			line := active.aggregator.AddAssistant(event.AssistantTranscript)
			c.events.PartialTranscript(domain.SpeakerAssistant, line)

		case event.Interrupted:
			c.playback.Interrupt()

		case len(event.Audio) > 0:
			if err := c.playback.Schedule(event.Audio); err != nil {
				c.events.SessionError(domain.ErrorCodePlayback, fmt.Sprintf("failed to schedule playback: %v", err))
			}

		case len(event.ToolCalls) > 0:
			for _, call := range event.ToolCalls {
				result := c.dialogue.Dispatch(ctx, call)
				if err := live.SendToolResult(result); err != nil {
					// A result racing teardown is dropped, not an error.
					if c.isCurrent(active) {
						c.events.SessionError(domain.ErrorCodeToolDispatch, fmt.Sprintf("failed to send tool result: %v", err))
					}
				}
			}

		case event.TurnComplete:
			active.aggregator.SealTurn()
			c.events.TranscriptUpdated(active.aggregator.Entries())
		}
	}

	close(active.eventsDone)

	err := live.Wait()
	if !c.isCurrent(active) {
		return
	}
	reason := domain.SessionReasonRemoteClosed
	if err != nil {
		c.events.SessionError(domain.ErrorCodeTransport, err.Error())
		reason = domain.SessionReasonTransportFailed
	}
	c.teardown(active, reason)
}

// Stop tears the active session down. Safe to call at any time,
// including when no session is running.
func (c *SessionController) Stop() {
	c.mu.Lock()
	active := c.current
	c.mu.Unlock()
	if active == nil {
		return
	}
	c.teardown(active, domain.SessionReasonUserStopped)
}

// Status reports the current session state.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return domain.Status{State: domain.SessionStateInactive, Active: false}
	}
	state := c.current.getState()
	return domain.Status{State: state, Active: state != domain.SessionStateInactive}
}

func (c *SessionController) isCurrent(active *activeSession) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == active
}

// teardown releases every session resource exactly once: greeting
// playback, scheduled playback, the microphone, the live stream,
// pending dialogue slots, and the accumulated transcript.
func (c *SessionController) teardown(active *activeSession, reason domain.SessionStateReason) {
	active.teardownOnce.Do(func() {
		active.cancel()

		c.mu.Lock()
		if c.current == active {
			c.current = nil
		}
		c.mu.Unlock()

		c.playback.StopGreeting()
		c.playback.StopAll()

		audioSession, live := active.attached()
		if audioSession != nil {
			_ = audioSession.Stop()
		}
		if live != nil {
			_ = live.Close()
			<-active.eventsDone
			<-active.audioDone
		}

		c.dialogue.Reset()
		active.aggregator.Reset()
		active.setState(domain.SessionStateInactive)

		c.events.TranscriptUpdated(nil)
		c.events.StatusText("")
		c.events.SessionStateChanged(domain.SessionStateInactive, reason)
	})
}
