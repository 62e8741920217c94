package model

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/montroyal-labs/frontdesk/src/audio"
	"github.com/montroyal-labs/frontdesk/src/frames"
	"github.com/montroyal-labs/frontdesk/src/logger"
)

const openAIRealtimeURL = "wss://api.openai.com/v1/realtime"

// OpenAIConfig holds OpenAI Realtime connection settings
type OpenAIConfig struct {
	APIKey    string
	Model     string
	Voice     string // Default: "alloy"
	AgentName string
	Language  string // Opening language, "en" or "fr"
	URL       string // Defaults to the OpenAI Realtime API; tests override
}

// OpenAILeg is a realtime speech model leg over the OpenAI Realtime API.
// Audio runs as 8kHz g711 mulaw in both directions, so no transcoding is
// needed against the telephony leg.
type OpenAILeg struct {
	cfg    OpenAIConfig
	conn   *websocket.Conn
	connMu sync.Mutex // Protects concurrent WebSocket writes
	log    *logger.Logger

	out    chan frames.Frame
	ctx    context.Context
	cancel context.CancelFunc
}

// ConnectOpenAI dials the Realtime API and configures the session
func ConnectOpenAI(ctx context.Context, cfg OpenAIConfig) (*OpenAILeg, error) {
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	wsURL := cfg.URL
	if wsURL == "" {
		wsURL = openAIRealtimeURL
	}
	wsURL = fmt.Sprintf("%s?model=%s", wsURL, cfg.Model)

	header := http.Header{
		"Authorization": {"Bearer " + cfg.APIKey},
		"OpenAI-Beta":   {"realtime=v1"},
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to OpenAI Realtime: %w", err)
	}

	legCtx, cancel := context.WithCancel(context.Background())
	l := &OpenAILeg{
		cfg:    cfg,
		conn:   conn,
		log:    logger.WithPrefix("OpenAILeg"),
		out:    make(chan frames.Frame, 128),
		ctx:    legCtx,
		cancel: cancel,
	}

	if err := l.configureSession(); err != nil {
		conn.Close()
		cancel()
		return nil, err
	}

	go l.receiveEvents()
	go l.keepaliveTask()

	l.log.Info("Connected (%s)", cfg.Model)
	return l, nil
}

// configureSession sends session.update with audio formats, server VAD,
// persona, and tools
func (l *OpenAILeg) configureSession() error {
	tools := make([]map[string]any, 0, len(toolSpecs()))
	for _, spec := range toolSpecs() {
		props := make(map[string]any, len(spec.Properties))
		for name, p := range spec.Properties {
			prop := map[string]any{"type": p.Type, "description": p.Description}
			if len(p.Enum) > 0 {
				prop["enum"] = p.Enum
			}
			props[name] = prop
		}
		tool := map[string]any{
			"type":        "function",
			"name":        spec.Name,
			"description": spec.Description,
			"parameters": map[string]any{
				"type":       "object",
				"properties": props,
			},
		}
		if len(spec.Required) > 0 {
			tool["parameters"].(map[string]any)["required"] = spec.Required
		}
		tools = append(tools, tool)
	}

	return l.send(map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"modalities":          []string{"text", "audio"},
			"instructions":        systemInstructions(l.cfg.AgentName, l.cfg.Language),
			"voice":               l.cfg.Voice,
			"input_audio_format":  "g711_ulaw",
			"output_audio_format": "g711_ulaw",
			"input_audio_transcription": map[string]any{
				"model": "whisper-1",
			},
			"turn_detection": map[string]any{
				"type":                "server_vad",
				"threshold":           0.5,
				"prefix_padding_ms":   300,
				"silence_duration_ms": 500,
			},
			"tools":       tools,
			"tool_choice": "auto",
			"temperature": 0.8,
		},
	})
}

// send marshals and writes one event under the write lock
func (l *OpenAILeg) send(event map[string]any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	l.connMu.Lock()
	defer l.connMu.Unlock()
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

// openAIEvent covers the server event fields this leg consumes
type openAIEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Name       string `json:"name,omitempty"`
	CallID     string `json:"call_id,omitempty"`
	Arguments  string `json:"arguments,omitempty"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (l *OpenAILeg) receiveEvents() {
	defer close(l.out)

	for {
		_, message, err := l.conn.ReadMessage()
		if err != nil {
			if l.ctx.Err() == nil {
				l.emit(frames.NewErrorFrame(fmt.Errorf("openai websocket read: %w", err)))
			}
			return
		}

		var ev openAIEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			l.log.Warn("Unparseable event: %v", err)
			continue
		}

		switch ev.Type {
		case "response.audio.delta":
			data, err := base64.StdEncoding.DecodeString(ev.Delta)
			if err != nil {
				l.log.Warn("Bad audio delta: %v", err)
				continue
			}
			f := frames.NewAudioFrame(data, 8000, 1, frames.LegModel)
			f.SetMetadata("codec", "mulaw")
			l.emit(f)

		case "conversation.item.input_audio_transcription.completed":
			l.emit(frames.NewTranscriptionFrame(ev.Transcript, true, frames.SpeakerCaller))

		case "response.audio_transcript.done":
			l.emit(frames.NewTranscriptionFrame(ev.Transcript, true, frames.SpeakerAssistant))

		case "input_audio_buffer.speech_started":
			l.emit(frames.NewSpeechStartedFrame())

		case "input_audio_buffer.speech_stopped":
			l.emit(frames.NewSpeechStoppedFrame())

		case "response.created":
			l.emit(frames.NewResponseStartedFrame())

		case "response.done":
			l.emit(frames.NewResponseDoneFrame())

		case "response.function_call_arguments.done":
			l.emit(frames.NewToolCallFrame(ev.CallID, ev.Name, ev.Arguments))

		case "error":
			msg := "unknown error"
			if ev.Error != nil {
				msg = ev.Error.Message
			}
			l.log.Error("Server error: %s", msg)
			l.emit(frames.NewErrorFrame(fmt.Errorf("openai realtime: %s", msg)))
		}
	}
}

func (l *OpenAILeg) emit(frame frames.Frame) {
	select {
	case l.out <- frame:
	case <-l.ctx.Done():
	}
}

// keepaliveTask pings the connection to keep idle calls alive
func (l *OpenAILeg) keepaliveTask() {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.connMu.Lock()
			err := l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			l.connMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// ReadFrame returns the next frame from the model
func (l *OpenAILeg) ReadFrame(ctx context.Context) (frames.Frame, error) {
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
func (l *OpenAILeg) WriteFrame(ctx context.Context, frame frames.Frame) error {
	switch f := frame.(type) {
	case *frames.AudioFrame:
		return l.send(map[string]any{
			"type":  "input_audio_buffer.append",
			"audio": base64.StdEncoding.EncodeToString(f.Data),
		})

	case *frames.SayFrame:
		return l.send(map[string]any{
			"type": "response.create",
			"response": map[string]any{
				"modalities":   []string{"text", "audio"},
				"instructions": sayInstruction(f.Text),
			},
		})

	case *frames.LanguageSwitchFrame:
		if err := l.send(map[string]any{
			"type": "conversation.item.create",
			"item": map[string]any{
				"type": "message",
				"role": "system",
				"content": []map[string]any{
					{"type": "input_text", "text": languageSwitchNote(f.Language)},
				},
			},
		}); err != nil {
			return err
		}
		return nil

	default:
		return nil
	}
}

// SendToolResult returns a tool call's output and asks for a spoken reply
func (l *OpenAILeg) SendToolResult(ctx context.Context, callID, result string) error {
	if err := l.send(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  result,
		},
	}); err != nil {
		return err
	}
	return l.send(map[string]any{"type": "response.create"})
}

// InputFormat is 8kHz mulaw, matching the telephony leg directly
func (l *OpenAILeg) InputFormat() audio.Format { return audio.MulawTelephony }

// OutputFormat is 8kHz mulaw
func (l *OpenAILeg) OutputFormat() audio.Format { return audio.MulawTelephony }

// Close tears the connection down
func (l *OpenAILeg) Close() error {
	l.cancel()
	return l.conn.Close()
}
