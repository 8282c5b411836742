package ports

import (
	"context"
	"errors"
	"io"

	"stockpilot/internal/domain"
)

// ErrPermissionDenied reports that the capture device could not be
// acquired. Session startup aborts without touching inventory state.
var ErrPermissionDenied = errors.New("audio capture device unavailable")

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session yielding raw 32-bit float
// little-endian samples in [-1, 1].
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// AudioFrame is one capture frame packaged for transport: base64 PCM
// payload plus its MIME/format tag.
type AudioFrame struct {
	Data     string
	MIMEType string
}

// LiveConfig describes a remote conversational model session.
type LiveConfig struct {
	Model             string
	SystemInstruction string
	InputSampleRate   int
	OutputSampleRate  int
}

// LiveEvent is one ordered event from the remote model. At most one of
// the payload groups is populated per event; arrival order is the
// model's emission order.
type LiveEvent struct {
	UserTranscript      string
	AssistantTranscript string
	Audio               []byte // s16le PCM at the session output rate
	ToolCalls           []domain.ToolInvocation
	Interrupted         bool
	TurnComplete        bool
}

// LiveSession is an active bidirectional stream to the remote model.
// Events closes when the remote side closes; Wait reports the terminal
// error, if any.
type LiveSession interface {
	SendAudioFrame(frame AudioFrame) error
	SendToolResult(result domain.ToolResult) error
	Events() <-chan LiveEvent
	Wait() error
	Close() error
}

// LiveProvider opens remote conversational model sessions.
type LiveProvider interface {
	Connect(ctx context.Context, cfg LiveConfig) (LiveSession, error)
}

// Greeter synthesizes a spoken utterance to s16le PCM at the playback
// output rate.
type Greeter interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// PlaybackScheduler schedules assistant audio for gapless playback and
// supports immediate flush on barge-in. The greeting occupies a single
// slot outside the scheduled live-set so teardown can stop it before
// the main session starts.
type PlaybackScheduler interface {
	Schedule(pcm []byte) error
	Interrupt()
	PlayGreeting(pcm []byte, onDone func()) error
	StopGreeting()
	StopAll()
}

// Speaker is the raw audio output sink the scheduler writes into.
type Speaker interface {
	Write(pcm []byte) error
	Close() error
}

// EventSink emits session state/events to the hosting surface.
// PartialTranscript carries the in-progress line for the given speaker;
// TranscriptUpdated carries the sealed history and fires on turn
// boundaries and on teardown (with nil).
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	StatusText(text string)
	PartialTranscript(speaker domain.Speaker, text string)
	TranscriptUpdated(entries []domain.TranscriptEntry)
	SessionError(code domain.ErrorCode, detail string)
}
