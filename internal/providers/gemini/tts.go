package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// Greeter synthesizes short utterances with a Gemini TTS model. Output
// is s16le PCM at 24 kHz, matching the live session's playback rate.
type Greeter struct {
	apiKey string
	model  string
	voice  string
}

func NewGreeter(apiKey, model, voice string) *Greeter {
	if model == "" {
		model = "gemini-2.5-flash-preview-tts"
	}
	if voice == "" {
		voice = "Kore"
	}
	return &Greeter{apiKey: apiKey, model: model, voice: voice}
}

func (g *Greeter) Synthesize(ctx context.Context, text string) ([]byte, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.voice},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize greeting: %w", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}
	return nil, errors.New("synthesis response contained no audio")
}
