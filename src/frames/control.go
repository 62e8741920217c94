package frames

// ControlFrame is the base for control/configuration frames
type ControlFrame struct {
	*BaseFrame
}

func (f *ControlFrame) Category() FrameCategory {
	return ControlCategory
}

// ResponseStartedFrame marks the beginning of a model response turn
type ResponseStartedFrame struct {
	*ControlFrame
}

func NewResponseStartedFrame() *ResponseStartedFrame {
	return &ResponseStartedFrame{
		ControlFrame: &ControlFrame{
			BaseFrame: NewBaseFrame("ResponseStartedFrame"),
		},
	}
}

// ResponseDoneFrame marks the end of a model response turn
type ResponseDoneFrame struct {
	*ControlFrame
}

func NewResponseDoneFrame() *ResponseDoneFrame {
	return &ResponseDoneFrame{
		ControlFrame: &ControlFrame{
			BaseFrame: NewBaseFrame("ResponseDoneFrame"),
		},
	}
}

// LanguageSwitchFrame instructs the model leg to respond in a new language
// from the next turn onward
type LanguageSwitchFrame struct {
	*ControlFrame
	Language string // "en" or "fr"
}

func NewLanguageSwitchFrame(language string) *LanguageSwitchFrame {
	return &LanguageSwitchFrame{
		ControlFrame: &ControlFrame{
			BaseFrame: NewBaseFrame("LanguageSwitchFrame"),
		},
		Language: language,
	}
}

// SayFrame instructs the model leg to speak a specific prompt
type SayFrame struct {
	*ControlFrame
	Text string
}

func NewSayFrame(text string) *SayFrame {
	return &SayFrame{
		ControlFrame: &ControlFrame{
			BaseFrame: NewBaseFrame("SayFrame"),
		},
		Text: text,
	}
}

// MarkFrame is a Twilio playback position ack, matched by name against a
// previously sent mark
type MarkFrame struct {
	*ControlFrame
	MarkName string
}

func NewMarkFrame(name string) *MarkFrame {
	return &MarkFrame{
		ControlFrame: &ControlFrame{
			BaseFrame: NewBaseFrame("MarkFrame"),
		},
		MarkName: name,
	}
}

// ClearPlaybackFrame instructs the telephony leg to discard buffered audio
// (sent when the caller interrupts the assistant)
type ClearPlaybackFrame struct {
	*ControlFrame
}

func NewClearPlaybackFrame() *ClearPlaybackFrame {
	return &ClearPlaybackFrame{
		ControlFrame: &ControlFrame{
			BaseFrame: NewBaseFrame("ClearPlaybackFrame"),
		},
	}
}
