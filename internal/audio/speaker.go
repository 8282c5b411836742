package audio

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// FFPlaySpeaker writes s16le PCM to an ffplay child process. Flush
// restarts the process, which is the only way to drop audio ffplay has
// already buffered.
type FFPlaySpeaker struct {
	command    string
	sampleRate int
	channels   int

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func NewFFPlaySpeaker(command string, sampleRate int, channels int) *FFPlaySpeaker {
	if command == "" {
		command = "ffplay"
	}
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	if channels <= 0 {
		channels = 1
	}
	return &FFPlaySpeaker{command: command, sampleRate: sampleRate, channels: channels}
}

func (s *FFPlaySpeaker) Write(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	s.mu.Lock()
	if s.stdin == nil {
		if err := s.startLocked(); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	stdin := s.stdin
	s.mu.Unlock()

	_, err := stdin.Write(pcm)
	return err
}

func (s *FFPlaySpeaker) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return s.startLocked()
}

func (s *FFPlaySpeaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *FFPlaySpeaker) startLocked() error {
	if s.cmd != nil && s.cmd.Process != nil {
		return nil
	}
	// ffplay does not accept ffmpeg-style `-ac`; use `-ch_layout`.
	chLayout := "mono"
	if s.channels == 2 {
		chLayout = "stereo"
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-nodisp",
		"-f", "s16le",
		"-ch_layout", chLayout,
		"-ar", fmt.Sprintf("%d", s.sampleRate),
		"-i", "-",
	}
	cmd := exec.Command(s.command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return err
	}
	s.cmd = cmd
	s.stdin = stdin
	go func(c *exec.Cmd) {
		_ = c.Wait()
		s.mu.Lock()
		if s.cmd == c {
			s.cmd = nil
			s.stdin = nil
		}
		s.mu.Unlock()
	}(cmd)
	return nil
}

func (s *FFPlaySpeaker) closeLocked() {
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.cmd = nil
	s.stdin = nil
}
