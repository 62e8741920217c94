package telephony

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/montroyal-labs/frontdesk/src/frames"
	"github.com/montroyal-labs/frontdesk/src/logger"
)

// CallLeg is the telephony side of one call as the call handler sees it.
// *StreamLeg implements it over a live Twilio WebSocket.
type CallLeg interface {
	CallSID() string
	StreamSID() string
	ReadFrame(ctx context.Context) (frames.Frame, error)
	WriteFrame(ctx context.Context, frame frames.Frame) error
	SendMark() (string, error)
	WaitMark(ctx context.Context, name string) error
	Close() error
}

// StreamLeg is the telephony side of a call: one Twilio Media Streams
// WebSocket carrying 8kHz mulaw audio both ways
type StreamLeg struct {
	conn *websocket.Conn
	ser  *Serializer
	log  *logger.Logger

	writeMu sync.Mutex
	in      chan frames.Frame
	marks   chan string

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

func newStreamLeg(conn *websocket.Conn, ser *Serializer) *StreamLeg {
	return &StreamLeg{
		conn:   conn,
		ser:    ser,
		log:    logger.WithCall(ser.CallSID()),
		in:     make(chan frames.Frame, 64),
		marks:  make(chan string, 8),
		closed: make(chan struct{}),
	}
}

// CallSID returns the Twilio call SID for this leg
func (l *StreamLeg) CallSID() string { return l.ser.CallSID() }

// StreamSID returns the Twilio stream SID for this leg
func (l *StreamLeg) StreamSID() string { return l.ser.StreamSID() }

// readLoop pumps WebSocket messages into the frame channel until the
// connection drops or the leg closes
func (l *StreamLeg) readLoop() {
	defer l.closeWith(nil)

	for {
		_, message, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				l.closeWith(fmt.Errorf("twilio websocket read: %w", err))
			}
			return
		}

		frame, err := l.ser.Deserialize(message)
		if err != nil {
			l.log.Warn("Dropping undecodable Twilio message: %v", err)
			continue
		}
		if frame == nil {
			continue
		}

		if mark, ok := frame.(*frames.MarkFrame); ok {
			select {
			case l.marks <- mark.MarkName:
			default:
			}
			continue
		}

		select {
		case l.in <- frame:
		case <-l.closed:
			return
		}

		if _, ok := frame.(*frames.EndFrame); ok {
			return
		}
	}
}

// ReadFrame returns the next frame from the caller. After the stream stops
// it returns the EndFrame once, then errors.
func (l *StreamLeg) ReadFrame(ctx context.Context) (frames.Frame, error) {
	select {
	case frame := <-l.in:
		return frame, nil
	case <-l.closed:
		// Drain frames queued before close
		select {
		case frame := <-l.in:
			return frame, nil
		default:
		}
		if l.closeErr != nil {
			return nil, l.closeErr
		}
		return nil, fmt.Errorf("telephony leg closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WriteFrame sends a frame to the caller. Only audio and clear frames have
// a Twilio representation; others are ignored.
func (l *StreamLeg) WriteFrame(ctx context.Context, frame frames.Frame) error {
	select {
	case <-l.closed:
		return fmt.Errorf("telephony leg closed")
	default:
	}

	data, err := l.ser.Serialize(frame)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("twilio websocket write: %w", err)
	}
	return nil
}

// SendMark sends a named playback mark and returns its name. Twilio echoes
// the mark after all audio queued before it has played.
func (l *StreamLeg) SendMark() (string, error) {
	name := uuid.NewString()
	data, err := l.ser.SerializeMark(name)
	if err != nil {
		return "", err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return "", fmt.Errorf("twilio websocket write: %w", err)
	}
	return name, nil
}

// WaitMark blocks until the named mark is acked, the leg closes, or the
// context expires. Used to let a final prompt finish playing before hangup.
func (l *StreamLeg) WaitMark(ctx context.Context, name string) error {
	for {
		select {
		case acked := <-l.marks:
			if acked == name {
				return nil
			}
		case <-l.closed:
			return fmt.Errorf("telephony leg closed")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *StreamLeg) closeWith(err error) {
	l.closeOnce.Do(func() {
		l.closeErr = err
		close(l.closed)
		l.conn.Close()
	})
}

// Close tears down the WebSocket connection
func (l *StreamLeg) Close() error {
	l.closeWith(nil)
	return nil
}

// Done is closed when the leg is no longer usable
func (l *StreamLeg) Done() <-chan struct{} {
	return l.closed
}
