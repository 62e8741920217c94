package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"github.com/montroyal-labs/frontdesk/src/audio"
	"github.com/montroyal-labs/frontdesk/src/frames"
	"github.com/montroyal-labs/frontdesk/src/logger"
)

// GeminiConfig holds Gemini Live connection settings
type GeminiConfig struct {
	APIKey    string
	Model     string
	AgentName string
	Language  string // Opening language, "en" or "fr"
}

// GeminiLeg is a realtime speech model leg over the Gemini Live API.
// Gemini consumes 16kHz PCM and produces 24kHz PCM, so the bridge
// transcodes against the telephony leg's mulaw.
type GeminiLeg struct {
	cfg     GeminiConfig
	session *genai.Session
	log     *logger.Logger

	out    chan frames.Frame
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	toolNames map[string]string // call ID -> function name, for tool responses
}

// ConnectGemini dials the Live API and configures the session
func ConnectGemini(ctx context.Context, cfg GeminiConfig) (*GeminiLeg, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	session, err := client.Live.Connect(ctx, cfg.Model, &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemInstructions(cfg.AgentName, cfg.Language)}},
		},
		Tools:                    geminiTools(),
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Gemini Live: %w", err)
	}

	legCtx, cancel := context.WithCancel(context.Background())
	l := &GeminiLeg{
		cfg:       cfg,
		session:   session,
		log:       logger.WithPrefix("GeminiLeg"),
		out:       make(chan frames.Frame, 128),
		ctx:       legCtx,
		cancel:    cancel,
		toolNames: make(map[string]string),
	}

	go l.receiveMessages()

	l.log.Info("Connected (%s)", cfg.Model)
	return l, nil
}

// geminiTools renders the shared tool specs into genai declarations
func geminiTools() []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(toolSpecs()))
	for _, spec := range toolSpecs() {
		props := make(map[string]*genai.Schema, len(spec.Properties))
		for name, p := range spec.Properties {
			s := &genai.Schema{Description: p.Description}
			switch p.Type {
			case "boolean":
				s.Type = genai.TypeBoolean
			default:
				s.Type = genai.TypeString
			}
			if len(p.Enum) > 0 {
				s.Enum = p.Enum
			}
			props[name] = s
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   spec.Required,
			},
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func (l *GeminiLeg) receiveMessages() {
	defer close(l.out)

	for {
		msg, err := l.session.Receive()
		if err != nil {
			if l.ctx.Err() == nil {
				l.emit(frames.NewErrorFrame(fmt.Errorf("gemini live receive: %w", err)))
			}
			return
		}
		l.handleMessage(msg)
	}
}

func (l *GeminiLeg) handleMessage(msg *genai.LiveServerMessage) {
	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			args, err := json.Marshal(fc.Args)
			if err != nil {
				l.log.Warn("Unencodable tool args for %s: %v", fc.Name, err)
				continue
			}
			l.mu.Lock()
			l.toolNames[fc.ID] = fc.Name
			l.mu.Unlock()
			l.emit(frames.NewToolCallFrame(fc.ID, fc.Name, string(args)))
		}
	}

	sc := msg.ServerContent
	if sc == nil {
		return
	}

	if sc.Interrupted {
		l.emit(frames.NewSpeechStartedFrame())
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		l.emit(frames.NewTranscriptionFrame(sc.InputTranscription.Text, sc.InputTranscription.Finished, frames.SpeakerCaller))
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		l.emit(frames.NewTranscriptionFrame(sc.OutputTranscription.Text, sc.OutputTranscription.Finished, frames.SpeakerAssistant))
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				// 24kHz 16-bit PCM
				l.emit(frames.NewAudioFrame(part.InlineData.Data, 24000, 1, frames.LegModel))
			}
		}
	}
	if sc.TurnComplete {
		l.emit(frames.NewResponseDoneFrame())
	}
}

func (l *GeminiLeg) emit(frame frames.Frame) {
	select {
	case l.out <- frame:
	case <-l.ctx.Done():
	}
}

// ReadFrame returns the next frame from the model
func (l *GeminiLeg) ReadFrame(ctx context.Context) (frames.Frame, error) {
	select {
	case frame, ok := <-l.out:
		if !ok {
			return nil, fmt.Errorf("model leg closed")
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WriteFrame sends caller audio or a control frame to the model
func (l *GeminiLeg) WriteFrame(ctx context.Context, frame frames.Frame) error {
	switch f := frame.(type) {
	case *frames.AudioFrame:
		return l.session.SendRealtimeInput(genai.LiveRealtimeInput{
			Media: &genai.Blob{
				MIMEType: "audio/pcm;rate=16000",
				Data:     f.Data,
			},
		})

	case *frames.SayFrame:
		return l.sendSystemText(sayInstruction(f.Text))

	case *frames.LanguageSwitchFrame:
		return l.sendSystemText(languageSwitchNote(f.Language))

	default:
		return nil
	}
}

func (l *GeminiLeg) sendSystemText(text string) error {
	return l.session.SendClientContent(genai.LiveClientContentInput{
		Turns: []*genai.Content{
			{Role: genai.RoleUser, Parts: []*genai.Part{{Text: text}}},
		},
		TurnComplete: genai.Ptr(true),
	})
}

// SendToolResult returns a tool call's output to the model
func (l *GeminiLeg) SendToolResult(ctx context.Context, callID, result string) error {
	l.mu.Lock()
	name := l.toolNames[callID]
	delete(l.toolNames, callID)
	l.mu.Unlock()

	return l.session.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: []*genai.FunctionResponse{
			{
				ID:       callID,
				Name:     name,
				Response: map[string]any{"result": result},
			},
		},
	})
}

// InputFormat is 16kHz PCM
func (l *GeminiLeg) InputFormat() audio.Format { return audio.PCM16k }

// OutputFormat is 24kHz PCM
func (l *GeminiLeg) OutputFormat() audio.Format { return audio.PCM24k }

// Close tears the session down
func (l *GeminiLeg) Close() error {
	l.cancel()
	return l.session.Close()
}
