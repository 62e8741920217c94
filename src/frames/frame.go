package frames

import (
	"fmt"
	"sync/atomic"
	"time"
)

var frameCounter uint64

// Leg identifies which side of the audio bridge a frame belongs to
type Leg int

const (
	LegTelephony Leg = iota // Carrier side (Twilio Media Streams)
	LegModel                // Speech-model side (OpenAI Realtime / Gemini Live)
)

func (l Leg) String() string {
	switch l {
	case LegTelephony:
		return "telephony"
	case LegModel:
		return "model"
	default:
		return "unknown"
	}
}

// Frame is the base interface for everything exchanged between legs
type Frame interface {
	ID() uint64
	Name() string
	PTS() time.Time
	Metadata() map[string]interface{}
	SetMetadata(key string, value interface{})
	String() string
}

// BaseFrame provides common frame functionality
type BaseFrame struct {
	id       uint64
	name     string
	pts      time.Time
	metadata map[string]interface{}
}

func NewBaseFrame(name string) *BaseFrame {
	return &BaseFrame{
		id:       atomic.AddUint64(&frameCounter, 1),
		name:     name,
		pts:      time.Now(),
		metadata: make(map[string]interface{}),
	}
}

func (f *BaseFrame) ID() uint64 {
	return f.id
}

func (f *BaseFrame) Name() string {
	return f.name
}

func (f *BaseFrame) PTS() time.Time {
	return f.pts
}

func (f *BaseFrame) Metadata() map[string]interface{} {
	return f.metadata
}

func (f *BaseFrame) SetMetadata(key string, value interface{}) {
	f.metadata[key] = value
}

func (f *BaseFrame) String() string {
	return fmt.Sprintf("%s[id=%d, pts=%v]", f.name, f.id, f.pts.Format("15:04:05.000"))
}

// Frame categories for priority handling
type FrameCategory int

const (
	SystemCategory  FrameCategory = iota // Highest priority, processed immediately
	DataCategory                         // Normal priority, ordered processing
	ControlCategory                      // Ordered processing, configuration
)

func (c FrameCategory) String() string {
	switch c {
	case SystemCategory:
		return "system"
	case DataCategory:
		return "data"
	case ControlCategory:
		return "control"
	default:
		return "unknown"
	}
}

// Categorizable frames can report their category
type Categorizable interface {
	Category() FrameCategory
}
