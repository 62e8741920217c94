package frames

// SystemFrame is the base for all system-level frames
type SystemFrame struct {
	*BaseFrame
}

func (f *SystemFrame) Category() FrameCategory {
	return SystemCategory
}

// StartFrame signals the beginning of a call's media stream
type StartFrame struct {
	*SystemFrame
	CallSID    string
	StreamSID  string
	FromNumber string
}

func NewStartFrame(callSID, streamSID, fromNumber string) *StartFrame {
	return &StartFrame{
		SystemFrame: &SystemFrame{
			BaseFrame: NewBaseFrame("StartFrame"),
		},
		CallSID:    callSID,
		StreamSID:  streamSID,
		FromNumber: fromNumber,
	}
}

// EndFrame signals graceful end of a leg (caller hangup, stream stop)
type EndFrame struct {
	*SystemFrame
}

func NewEndFrame() *EndFrame {
	return &EndFrame{
		SystemFrame: &SystemFrame{
			BaseFrame: NewBaseFrame("EndFrame"),
		},
	}
}

// CancelFrame signals immediate teardown without flushing
type CancelFrame struct {
	*SystemFrame
}

func NewCancelFrame() *CancelFrame {
	return &CancelFrame{
		SystemFrame: &SystemFrame{
			BaseFrame: NewBaseFrame("CancelFrame"),
		},
	}
}

// ErrorFrame carries a leg-level error to the supervisor
type ErrorFrame struct {
	*SystemFrame
	Error error
}

func NewErrorFrame(err error) *ErrorFrame {
	return &ErrorFrame{
		SystemFrame: &SystemFrame{
			BaseFrame: NewBaseFrame("ErrorFrame"),
		},
		Error: err,
	}
}

// SpeechStartedFrame signals the model's VAD detected caller speech
type SpeechStartedFrame struct {
	*SystemFrame
}

func NewSpeechStartedFrame() *SpeechStartedFrame {
	return &SpeechStartedFrame{
		SystemFrame: &SystemFrame{
			BaseFrame: NewBaseFrame("SpeechStartedFrame"),
		},
	}
}

// SpeechStoppedFrame signals the model's VAD detected end of caller speech
type SpeechStoppedFrame struct {
	*SystemFrame
}

func NewSpeechStoppedFrame() *SpeechStoppedFrame {
	return &SpeechStoppedFrame{
		SystemFrame: &SystemFrame{
			BaseFrame: NewBaseFrame("SpeechStoppedFrame"),
		},
	}
}
