package usecase

import (
	"errors"
	"fmt"
	"io"

	"stockpilot/internal/audio"
	"stockpilot/internal/domain"
	"stockpilot/internal/ports"
)

// pumpAudioFrames reads raw float32 capture data, converts it to PCM16
// frames, and streams them to the live session. Frames read after the
// session goes inactive are dropped, never buffered.
func pumpAudioFrames(
	session ports.AudioSession,
	live ports.LiveSession,
	frameSize int,
	sampleRate int,
	active func() bool,
	events ports.EventSink,
	done chan struct{},
) {
	defer close(done)

	if frameSize < 256 {
		frameSize = 4096
	}

	buf := make([]byte, frameSize)
	for {
		n, err := session.Read(buf)
		if n > 0 && active() {
			pcm := audio.PCM16FromFloat32LE(buf[:n])
			if len(pcm) > 0 {
				frame := audio.EncodeFrame(pcm, sampleRate)
				if sendErr := live.SendAudioFrame(frame); sendErr != nil {
					if active() {
						events.SessionError(domain.ErrorCodeAudioStream, fmt.Sprintf("failed to stream audio: %v", sendErr))
					}
					return
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && active() {
				events.SessionError(domain.ErrorCodeAudioStream, fmt.Sprintf("audio capture error: %v", err))
			}
			return
		}
	}
}
