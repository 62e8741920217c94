package frames

// DataFrame is the base for ordered media and event frames
type DataFrame struct {
	*BaseFrame
}

func (f *DataFrame) Category() FrameCategory {
	return DataCategory
}

// AudioFrame carries a chunk of encoded audio tagged with its origin leg.
// Ordering within a leg must be preserved; frames are never persisted.
type AudioFrame struct {
	*DataFrame
	Data       []byte
	SampleRate int
	Channels   int
	Origin     Leg
}

func NewAudioFrame(data []byte, sampleRate, channels int, origin Leg) *AudioFrame {
	return &AudioFrame{
		DataFrame: &DataFrame{
			BaseFrame: NewBaseFrame("AudioFrame"),
		},
		Data:       data,
		SampleRate: sampleRate,
		Channels:   channels,
		Origin:     origin,
	}
}

// Transcript speaker labels
const (
	SpeakerCaller    = "caller"
	SpeakerAssistant = "assistant"
)

// TranscriptionFrame carries a transcript fragment from the model leg
type TranscriptionFrame struct {
	*DataFrame
	Text    string
	IsFinal bool
	Speaker string // "caller" or "assistant"
}

func NewTranscriptionFrame(text string, isFinal bool, speaker string) *TranscriptionFrame {
	return &TranscriptionFrame{
		DataFrame: &DataFrame{
			BaseFrame: NewBaseFrame("TranscriptionFrame"),
		},
		Text:    text,
		IsFinal: isFinal,
		Speaker: speaker,
	}
}

// ToolCallFrame carries a structured intent/slot event emitted by the model
// leg (a completed function call with JSON-encoded arguments)
type ToolCallFrame struct {
	*DataFrame
	CallID    string
	Tool      string
	Arguments string
}

func NewToolCallFrame(callID, tool, arguments string) *ToolCallFrame {
	return &ToolCallFrame{
		DataFrame: &DataFrame{
			BaseFrame: NewBaseFrame("ToolCallFrame"),
		},
		CallID:    callID,
		Tool:      tool,
		Arguments: arguments,
	}
}
