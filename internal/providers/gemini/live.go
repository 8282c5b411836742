// Package gemini adapts the Gemini Live API to the ports the session
// controller consumes: a bidirectional audio stream with tool calling,
// plus one-shot speech synthesis for the greeting.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"stockpilot/internal/domain"
	"stockpilot/internal/ports"
)

const bidiPath = "/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// Config controls the Gemini Live websocket connection.
type Config struct {
	APIKey     string
	APIBaseURL string
	Tools      []*genai.FunctionDeclaration
}

// Provider implements ports.LiveProvider for the Gemini Live API.
type Provider struct {
	cfg Config
}

func NewProvider(cfg Config) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "wss://generativelanguage.googleapis.com"
	}
	return &Provider{cfg: cfg}
}

func (p *Provider) Connect(ctx context.Context, cfg ports.LiveConfig) (ports.LiveSession, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, errors.New("GEMINI_API_KEY is not configured")
	}

	wsURL, err := buildBidiURL(p.cfg.APIBaseURL, p.cfg.APIKey)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Gemini Live websocket: %w", err)
	}

	setup, err := json.Marshal(setupFrame(cfg, p.cfg.Tools))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to encode setup frame: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, setup); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to send setup frame: %w", err)
	}

	// The first server frame acknowledges setup; anything else means
	// the model or config was rejected.
	_, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to read setup acknowledgment: %w", err)
	}
	var ack struct {
		SetupComplete *struct{} `json:"setupComplete"`
	}
	if err := json.Unmarshal(payload, &ack); err != nil || ack.SetupComplete == nil {
		_ = conn.Close()
		return nil, fmt.Errorf("gemini rejected session setup: %s", strings.TrimSpace(string(payload)))
	}

	session := &liveSession{
		conn:    conn,
		events:  make(chan ports.LiveEvent, 64),
		out:     make(chan []byte, 32),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		_ = conn.Close()
	}()

	go func() {
		<-ctx.Done()
		_ = session.Close()
	}()

	return session, nil
}

type liveSession struct {
	conn *websocket.Conn

	events  chan ports.LiveEvent
	out     chan []byte
	closing chan struct{}
	done    chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

func (s *liveSession) SendAudioFrame(frame ports.AudioFrame) error {
	if frame.Data == "" {
		return nil
	}
	payload, err := json.Marshal(realtimeInputFrame{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{{MIMEType: frame.MIMEType, Data: frame.Data}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to encode audio frame: %w", err)
	}
	return s.send(payload)
}

func (s *liveSession) SendToolResult(result domain.ToolResult) error {
	payload, err := json.Marshal(toolResponseFrame{
		ToolResponse: toolResponse{
			FunctionResponses: []functionResponse{{
				ID:   result.ID,
				Name: result.Name,
				Response: map[string]any{
					"result":  result.Message,
					"success": result.Success,
				},
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to encode tool result: %w", err)
	}
	return s.send(payload)
}

// send queues a frame for the write loop. out is never closed; after
// Close the frame is either refused here or drained and dropped when
// the write loop exits, so a sender racing Close cannot panic.
func (s *liveSession) send(payload []byte) error {
	select {
	case <-s.closing:
		return errors.New("session is already closed")
	default:
	}

	select {
	case s.out <- payload:
		return nil
	case <-s.closing:
		return errors.New("session is already closed")
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

func (s *liveSession) Events() <-chan ports.LiveEvent {
	return s.events
}

func (s *liveSession) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *liveSession) Close() error {
	s.shutdown()
	<-s.done
	return s.waitErr()
}

// shutdown stops both loops without waiting for them. Either loop
// exiting triggers it so the other cannot outlive the connection.
func (s *liveSession) shutdown() {
	s.closeOnce.Do(func() {
		close(s.closing)
		_ = s.conn.Close()
	})
}

func (s *liveSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *liveSession) setErr(err error) {
	if err == nil {
		return
	}
	// Read and write errors after Close are shutdown fallout, not
	// transport failures.
	select {
	case <-s.closing:
		return
	default:
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure,
			websocket.CloseGoingAway,
			websocket.CloseNoStatusReceived:
			return
		}
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *liveSession) writeLoop() {
	defer s.wg.Done()
	defer s.shutdown()

	for {
		select {
		case payload := <-s.out:
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.setErr(fmt.Errorf("failed to send frame: %w", err))
				return
			}
		case <-s.closing:
			return
		}
	}
}

func (s *liveSession) readLoop() {
	defer s.wg.Done()
	defer s.shutdown()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read server event: %w", err))
			return
		}
		for _, event := range decodeServerMessage(payload) {
			if !s.emit(event) {
				return
			}
		}
	}
}

// emit delivers events in arrival order. Delivery blocks rather than
// drops; the consumer loop must keep draining until teardown.
func (s *liveSession) emit(event ports.LiveEvent) bool {
	select {
	case s.events <- event:
		return true
	case <-s.closing:
		return false
	}
}

// decodeServerMessage splits one server frame into ordered events, each
// carrying a single payload group.
func decodeServerMessage(payload []byte) []ports.LiveEvent {
	var msg serverMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil
	}

	var events []ports.LiveEvent

	if sc := msg.ServerContent; sc != nil {
		if sc.Interrupted {
			events = append(events, ports.LiveEvent{Interrupted: true})
		}
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			events = append(events, ports.LiveEvent{UserTranscript: sc.InputTranscription.Text})
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			events = append(events, ports.LiveEvent{AssistantTranscript: sc.OutputTranscription.Text})
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData == nil || part.InlineData.Data == "" {
					continue
				}
				pcm, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil || len(pcm) == 0 {
					continue
				}
				events = append(events, ports.LiveEvent{Audio: pcm})
			}
		}
		if sc.TurnComplete {
			events = append(events, ports.LiveEvent{TurnComplete: true})
		}
	}

	if tc := msg.ToolCall; tc != nil && len(tc.FunctionCalls) > 0 {
		calls := make([]domain.ToolInvocation, 0, len(tc.FunctionCalls))
		for _, fc := range tc.FunctionCalls {
			calls = append(calls, domain.ToolInvocation{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
		events = append(events, ports.LiveEvent{ToolCalls: calls})
	}

	return events
}

func setupFrame(cfg ports.LiveConfig, tools []*genai.FunctionDeclaration) clientSetupFrame {
	model := cfg.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	frame := clientSetupFrame{}
	frame.Setup.Model = model
	frame.Setup.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	frame.Setup.InputAudioTranscription = struct{}{}
	frame.Setup.OutputAudioTranscription = struct{}{}
	if cfg.SystemInstruction != "" {
		frame.Setup.SystemInstruction = &contentFrame{
			Parts: []partFrame{{Text: cfg.SystemInstruction}},
		}
	}
	if len(tools) > 0 {
		frame.Setup.Tools = []toolFrame{{FunctionDeclarations: tools}}
	}
	return frame
}

func buildBidiURL(base, apiKey string) (string, error) {
	base = strings.TrimSpace(base)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	if !strings.HasPrefix(base, "wss://") && !strings.HasPrefix(base, "ws://") {
		return "", fmt.Errorf("invalid Gemini API base URL %q", base)
	}
	return strings.TrimRight(base, "/") + bidiPath + "?key=" + apiKey, nil
}

// Wire frames. Field names follow the BidiGenerateContent JSON schema.

type clientSetupFrame struct {
	Setup struct {
		Model            string `json:"model"`
		GenerationConfig struct {
			ResponseModalities []string `json:"responseModalities"`
		} `json:"generationConfig"`
		SystemInstruction        *contentFrame `json:"systemInstruction,omitempty"`
		Tools                    []toolFrame   `json:"tools,omitempty"`
		InputAudioTranscription  struct{}      `json:"inputAudioTranscription"`
		OutputAudioTranscription struct{}      `json:"outputAudioTranscription"`
	} `json:"setup"`
}

type contentFrame struct {
	Parts []partFrame `json:"parts"`
}

type partFrame struct {
	Text string `json:"text,omitempty"`
}

type toolFrame struct {
	FunctionDeclarations []*genai.FunctionDeclaration `json:"functionDeclarations"`
}

type realtimeInputFrame struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"mediaChunks"`
}

type mediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type toolResponseFrame struct {
	ToolResponse toolResponse `json:"toolResponse"`
}

type toolResponse struct {
	FunctionResponses []functionResponse `json:"functionResponses"`
}

type functionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type serverMessage struct {
	ServerContent *struct {
		ModelTurn *struct {
			Parts []struct {
				InlineData *struct {
					MIMEType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"modelTurn"`
		TurnComplete       bool `json:"turnComplete"`
		Interrupted        bool `json:"interrupted"`
		InputTranscription *struct {
			Text string `json:"text"`
		} `json:"inputTranscription"`
		OutputTranscription *struct {
			Text string `json:"text"`
		} `json:"outputTranscription"`
	} `json:"serverContent"`

	ToolCall *struct {
		FunctionCalls []struct {
			ID   string         `json:"id"`
			Name string         `json:"name"`
			Args map[string]any `json:"args"`
		} `json:"functionCalls"`
	} `json:"toolCall"`
}
