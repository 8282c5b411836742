package usecase

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"stockpilot/internal/ports"
)

func float32Chunk(samples ...float32) []byte {
	buf := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(s))
	}
	return buf
}

func TestPumpConvertsAndSendsFrames(t *testing.T) {
	t.Parallel()
	session := newFakeAudioSession()
	live := newFakeLiveSession()
	sink := &recordingSink{}
	done := make(chan struct{})

	go pumpAudioFrames(session, live, 1024, 16000, func() bool { return true }, sink, done)

	session.data <- float32Chunk(0.5, -0.5)
	_ = session.Stop()
	<-done

	live.mu.Lock()
	frames := append([]ports.AudioFrame(nil), live.frames...)
	live.mu.Unlock()
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("mime = %q", frames[0].MIMEType)
	}

	pcm, err := base64.StdEncoding.DecodeString(frames[0].Data)
	if err != nil {
		t.Fatalf("frame data is not base64: %v", err)
	}
	if len(pcm) != 4 {
		t.Fatalf("pcm length = %d, want 4", len(pcm))
	}
	first := int16(binary.LittleEndian.Uint16(pcm[0:2]))
	if first != 16384 {
		t.Errorf("first sample = %d, want 16384", first)
	}
}

func TestPumpDropsFramesWhenInactive(t *testing.T) {
	t.Parallel()
	session := newFakeAudioSession()
	live := newFakeLiveSession()
	sink := &recordingSink{}
	done := make(chan struct{})

	go pumpAudioFrames(session, live, 1024, 16000, func() bool { return false }, sink, done)

	session.data <- float32Chunk(0.25, 0.25)
	_ = session.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not exit after capture stopped")
	}

	live.mu.Lock()
	n := len(live.frames)
	live.mu.Unlock()
	if n != 0 {
		t.Errorf("%d frames sent while inactive, want 0", n)
	}
	if codes := sink.errorCodes(); len(codes) != 0 {
		t.Errorf("unexpected errors: %v", codes)
	}
}
