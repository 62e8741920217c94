package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/montroyal-labs/frontdesk/src/frames"
)

// Serializer converts between Twilio Media Streams JSON messages and frames
type Serializer struct {
	streamSID string
	callSID   string
}

// Twilio message structures
type twilioMessage struct {
	Event     string                 `json:"event"`
	StreamSid string                 `json:"streamSid,omitempty"`
	Media     *twilioMedia           `json:"media,omitempty"`
	Start     *twilioStart           `json:"start,omitempty"`
	Mark      *twilioMark            `json:"mark,omitempty"`
	Stop      map[string]interface{} `json:"stop,omitempty"`
}

type twilioMedia struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"` // base64-encoded mulaw audio
}

type twilioStart struct {
	StreamSid        string                 `json:"streamSid"`
	CallSid          string                 `json:"callSid"`
	AccountSid       string                 `json:"accountSid"`
	Tracks           []string               `json:"tracks"`
	MediaFormat      map[string]interface{} `json:"mediaFormat"`
	CustomParameters map[string]string      `json:"customParameters,omitempty"`
}

type twilioMark struct {
	Name string `json:"name"`
}

// NewSerializer creates a serializer; stream and call SIDs are learned from
// the start event
func NewSerializer() *Serializer {
	return &Serializer{}
}

// StreamSID returns the stream SID from the start event
func (s *Serializer) StreamSID() string { return s.streamSID }

// CallSID returns the call SID from the start event
func (s *Serializer) CallSID() string { return s.callSID }

// Serialize converts a frame to a Twilio WebSocket JSON message. Frames
// with no Twilio representation serialize to nil.
func (s *Serializer) Serialize(frame frames.Frame) ([]byte, error) {
	switch f := frame.(type) {
	case *frames.AudioFrame:
		msg := twilioMessage{
			Event:     "media",
			StreamSid: s.streamSID,
			Media: &twilioMedia{
				Payload: base64.StdEncoding.EncodeToString(f.Data),
			},
		}
		return json.Marshal(msg)

	case *frames.ClearPlaybackFrame:
		msg := twilioMessage{
			Event:     "clear",
			StreamSid: s.streamSID,
		}
		return json.Marshal(msg)

	default:
		return nil, nil
	}
}

// SerializeMark builds a named mark message used to ack playback position
func (s *Serializer) SerializeMark(name string) ([]byte, error) {
	msg := twilioMessage{
		Event:     "mark",
		StreamSid: s.streamSID,
		Mark:      &twilioMark{Name: name},
	}
	return json.Marshal(msg)
}

// Deserialize converts a Twilio WebSocket JSON message to a frame. Events
// with no frame representation deserialize to nil.
func (s *Serializer) Deserialize(data []byte) (frames.Frame, error) {
	var msg twilioMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Twilio message: %w", err)
	}

	switch msg.Event {
	case "start":
		if msg.Start == nil {
			return nil, fmt.Errorf("start event missing start data")
		}
		s.streamSID = msg.Start.StreamSid
		s.callSID = msg.Start.CallSid
		from := msg.Start.CustomParameters["from"]
		return frames.NewStartFrame(s.callSID, s.streamSID, from), nil

	case "media":
		if msg.Media == nil {
			return nil, fmt.Errorf("media event missing media data")
		}
		audioData, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode audio payload: %w", err)
		}
		// Twilio streams 8kHz mulaw
		f := frames.NewAudioFrame(audioData, 8000, 1, frames.LegTelephony)
		f.SetMetadata("codec", "mulaw")
		return f, nil

	case "stop":
		return frames.NewEndFrame(), nil

	case "mark":
		if msg.Mark == nil {
			return nil, nil
		}
		return frames.NewMarkFrame(msg.Mark.Name), nil

	default:
		return nil, nil
	}
}
