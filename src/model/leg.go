package model

import (
	"context"
	"fmt"

	"github.com/montroyal-labs/frontdesk/src/audio"
	"github.com/montroyal-labs/frontdesk/src/config"
	"github.com/montroyal-labs/frontdesk/src/frames"
)

// Leg is a live connection to a realtime speech model. It accepts caller
// audio and control frames, and produces assistant audio, transcriptions,
// and tool calls.
type Leg interface {
	// ReadFrame returns the next frame from the model
	ReadFrame(ctx context.Context) (frames.Frame, error)
	// WriteFrame sends caller audio or a control frame to the model
	WriteFrame(ctx context.Context, frame frames.Frame) error
	// SendToolResult returns a tool call's result to the model so it can
	// speak the outcome
	SendToolResult(ctx context.Context, callID, result string) error
	// InputFormat is the audio format the model consumes
	InputFormat() audio.Format
	// OutputFormat is the audio format the model produces
	OutputFormat() audio.Format
	// Close tears the connection down
	Close() error
}

// Connect dials the configured provider's realtime API
func Connect(ctx context.Context, cfg *config.Config, language string) (Leg, error) {
	switch cfg.ModelProvider {
	case "openai":
		return ConnectOpenAI(ctx, OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			Model:     cfg.OpenAIModel,
			AgentName: cfg.AgentName,
			Language:  language,
		})
	case "gemini":
		return ConnectGemini(ctx, GeminiConfig{
			APIKey:    cfg.GeminiAPIKey,
			Model:     cfg.GeminiModel,
			AgentName: cfg.AgentName,
			Language:  language,
		})
	default:
		return nil, fmt.Errorf("unknown model provider: %s", cfg.ModelProvider)
	}
}
