package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/montroyal-labs/frontdesk/src/audio"
	"github.com/montroyal-labs/frontdesk/src/frames"
	"github.com/montroyal-labs/frontdesk/src/logger"
	"github.com/montroyal-labs/frontdesk/src/model"
)

// Leg is one side of the bridge: a bidirectional ordered frame stream
type Leg interface {
	ReadFrame(ctx context.Context) (frames.Frame, error)
	WriteFrame(ctx context.Context, frame frames.Frame) error
	Close() error
}

// Params tunes the bridge's audio buffering
type Params struct {
	// BufferFrames bounds each direction's relay queue. At 20ms a frame,
	// 50 frames is one second of audio.
	BufferFrames int
}

// DefaultParams returns the default bridge tuning
func DefaultParams() Params {
	return Params{BufferFrames: 50}
}

// Bridge relays audio between the telephony and model legs of one call and
// routes the model's structured frames to the session event channel. When
// either leg fails the bridge shuts the whole call down.
type Bridge struct {
	callID string
	tele   Leg
	mod    model.Leg
	params Params
	log    *logger.Logger

	toModel      chan *frames.AudioFrame
	toTelephony  chan *frames.AudioFrame
	uplinkConv   *audio.Converter // telephony -> model
	downlinkConv *audio.Converter // model -> telephony
	events       chan frames.Frame
	dropped      atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// Open starts relaying between the two legs
func Open(callID string, tele Leg, mod model.Leg, params Params) *Bridge {
	if params.BufferFrames <= 0 {
		params = DefaultParams()
	}
	b := &Bridge{
		callID:       callID,
		tele:         tele,
		mod:          mod,
		params:       params,
		log:          logger.WithCall(callID),
		toModel:      make(chan *frames.AudioFrame, params.BufferFrames),
		toTelephony:  make(chan *frames.AudioFrame, params.BufferFrames),
		uplinkConv:   audio.NewConverter(audio.MulawTelephony, mod.InputFormat()),
		downlinkConv: audio.NewConverter(mod.OutputFormat(), audio.MulawTelephony),
		events:       make(chan frames.Frame, 64),
		done:         make(chan struct{}),
	}

	go b.pumpTelephony()
	go b.pumpModel()
	go b.writeLoop(b.toModel, func(ctx context.Context, f *frames.AudioFrame) error {
		return b.mod.WriteFrame(ctx, f)
	})
	go b.writeLoop(b.toTelephony, func(ctx context.Context, f *frames.AudioFrame) error {
		return b.tele.WriteFrame(ctx, f)
	})

	return b
}

// Events returns the model's structured frames plus the telephony end
// signal, in arrival order
func (b *Bridge) Events() <-chan frames.Frame {
	return b.events
}

// Done is closed when the bridge has shut down
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Err returns the failure that shut the bridge down, if any
func (b *Bridge) Err() error {
	<-b.done
	return b.err
}

// Dropped returns how many audio frames were discarded under backpressure
func (b *Bridge) Dropped() int64 {
	return b.dropped.Load()
}

// pumpTelephony reads caller frames and enqueues audio for the model
func (b *Bridge) pumpTelephony() {
	ctx := context.Background()
	for {
		frame, err := b.tele.ReadFrame(ctx)
		if err != nil {
			b.shutdown(fmt.Errorf("telephony leg: %w", err))
			return
		}

		switch f := frame.(type) {
		case *frames.AudioFrame:
			converted, err := b.uplinkConv.Convert(f.Data)
			if err != nil {
				b.log.Warn("Uplink conversion failed: %v", err)
				continue
			}
			out := frames.NewAudioFrame(converted, b.mod.InputFormat().SampleRate, 1, frames.LegTelephony)
			b.enqueue(b.toModel, out)

		case *frames.EndFrame:
			b.emitEvent(f)
			b.shutdown(nil)
			return

		default:
			b.emitEvent(frame)
		}
	}
}

// pumpModel reads model frames, relaying audio to the caller and routing
// everything structured to the event channel
func (b *Bridge) pumpModel() {
	ctx := context.Background()
	for {
		frame, err := b.mod.ReadFrame(ctx)
		if err != nil {
			b.shutdown(fmt.Errorf("model leg: %w", err))
			return
		}

		switch f := frame.(type) {
		case *frames.AudioFrame:
			converted, err := b.downlinkConv.Convert(f.Data)
			if err != nil {
				b.log.Warn("Downlink conversion failed: %v", err)
				continue
			}
			out := frames.NewAudioFrame(converted, audio.MulawTelephony.SampleRate, 1, frames.LegModel)
			out.SetMetadata("codec", "mulaw")
			b.enqueue(b.toTelephony, out)

		case *frames.SpeechStartedFrame:
			// Caller barge-in: clear queued playback on both sides
			b.drain(b.toTelephony)
			if err := b.tele.WriteFrame(ctx, frames.NewClearPlaybackFrame()); err != nil {
				b.log.Warn("Failed to clear playback: %v", err)
			}
			b.emitEvent(f)

		case *frames.ErrorFrame:
			b.emitEvent(f)
			b.shutdown(f.Error)
			return

		default:
			b.emitEvent(frame)
		}
	}
}

// enqueue adds a frame to a bounded relay queue, discarding the oldest
// queued frame when full. Latest audio wins; stale audio is worthless on a
// live call.
func (b *Bridge) enqueue(ch chan *frames.AudioFrame, f *frames.AudioFrame) {
	for {
		select {
		case ch <- f:
			return
		case <-b.done:
			return
		default:
		}
		select {
		case <-ch:
			b.dropped.Add(1)
		default:
		}
	}
}

func (b *Bridge) drain(ch chan *frames.AudioFrame) {
	for {
		select {
		case <-ch:
			b.dropped.Add(1)
		default:
			return
		}
	}
}

func (b *Bridge) writeLoop(ch chan *frames.AudioFrame, write func(context.Context, *frames.AudioFrame) error) {
	ctx := context.Background()
	for {
		select {
		case f := <-ch:
			if err := write(ctx, f); err != nil {
				b.shutdown(err)
				return
			}
		case <-b.done:
			return
		}
	}
}

// emitEvent blocks until the supervisor takes the frame. Audio may be
// dropped under pressure, structured events may not.
func (b *Bridge) emitEvent(frame frames.Frame) {
	select {
	case b.events <- frame:
	case <-b.done:
	}
}

// shutdown closes both legs exactly once. A failure on either leg ends the
// call rather than leaving one side half-open.
func (b *Bridge) shutdown(err error) {
	b.closeOnce.Do(func() {
		b.err = err
		if err != nil {
			b.log.Warn("Bridge closing: %v", err)
		}
		close(b.done)
		b.tele.Close()
		b.mod.Close()
	})
}

// Close tears the bridge and both legs down
func (b *Bridge) Close() error {
	b.shutdown(nil)
	return nil
}
