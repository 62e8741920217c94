package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/montroyal-labs/frontdesk/src/audio"
	"github.com/montroyal-labs/frontdesk/src/frames"
)

// fakeLeg is a scriptable bridge leg; frames pushed to in come out of
// ReadFrame, frames written land in wrote
type fakeLeg struct {
	in      chan frames.Frame
	gate    chan struct{} // When non-nil, WriteFrame blocks until closed
	writing chan struct{} // When non-nil, signaled as WriteFrame is entered
	mu      sync.Mutex
	wrote   []frames.Frame

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeLeg() *fakeLeg {
	return &fakeLeg{
		in:     make(chan frames.Frame, 256),
		closed: make(chan struct{}),
	}
}

func (l *fakeLeg) ReadFrame(ctx context.Context) (frames.Frame, error) {
	select {
	case f := <-l.in:
		return f, nil
	case <-l.closed:
		return nil, context.Canceled
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *fakeLeg) WriteFrame(ctx context.Context, f frames.Frame) error {
	if l.writing != nil {
		select {
		case l.writing <- struct{}{}:
		default:
		}
	}
	if l.gate != nil {
		<-l.gate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.wrote = append(l.wrote, f)
	return nil
}

func (l *fakeLeg) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *fakeLeg) written() []frames.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]frames.Frame, len(l.wrote))
	copy(out, l.wrote)
	return out
}

func (l *fakeLeg) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

// fakeModelLeg wraps fakeLeg with the model leg's extra surface. Mulaw in
// both directions keeps the conversions identity for these tests.
type fakeModelLeg struct {
	*fakeLeg
}

func (l *fakeModelLeg) SendToolResult(ctx context.Context, callID, result string) error {
	return nil
}
func (l *fakeModelLeg) InputFormat() audio.Format  { return audio.MulawTelephony }
func (l *fakeModelLeg) OutputFormat() audio.Format { return audio.MulawTelephony }

func mulawFrame(seq byte, origin frames.Leg) *frames.AudioFrame {
	f := frames.NewAudioFrame([]byte{seq}, 8000, 1, origin)
	f.SetMetadata("codec", "mulaw")
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAudioRelayPreservesOrder(t *testing.T) {
	tele := newFakeLeg()
	mod := &fakeModelLeg{newFakeLeg()}
	b := Open("CA1", tele, mod, DefaultParams())
	defer b.Close()

	for i := byte(0); i < 10; i++ {
		tele.in <- mulawFrame(i, frames.LegTelephony)
	}

	waitFor(t, "model to receive 10 frames", func() bool {
		return len(mod.written()) == 10
	})

	for i, f := range mod.written() {
		af := f.(*frames.AudioFrame)
		if af.Data[0] != byte(i) {
			t.Fatalf("frame %d payload = %d, out of order", i, af.Data[0])
		}
	}
	if b.Dropped() != 0 {
		t.Fatalf("Dropped() = %d, want 0", b.Dropped())
	}
}

func TestBackpressureDropsOldestFrames(t *testing.T) {
	tele := newFakeLeg()
	tele.gate = make(chan struct{})
	tele.writing = make(chan struct{}, 1)
	mod := &fakeModelLeg{newFakeLeg()}
	b := Open("CA2", tele, mod, Params{BufferFrames: 4})
	defer b.Close()

	// Lodge the first frame in the blocked writer before flooding
	mod.in <- mulawFrame(0, frames.LegModel)
	select {
	case <-tele.writing:
	case <-time.After(2 * time.Second):
		t.Fatal("writer never picked up the first frame")
	}

	// The queue holds 4; the remaining 6 of these 10 must push out the
	// oldest queued frames
	for i := byte(1); i <= 10; i++ {
		mod.in <- mulawFrame(i, frames.LegModel)
	}

	waitFor(t, "6 frames to be dropped", func() bool {
		return b.Dropped() == 6
	})
	close(tele.gate)

	waitFor(t, "telephony to receive 5 frames", func() bool {
		return len(tele.written()) == 5
	})

	got := tele.written()
	prev := -1
	for _, f := range got {
		seq := int(f.(*frames.AudioFrame).Data[0])
		if seq <= prev {
			t.Fatalf("sequence %d after %d, order broken", seq, prev)
		}
		prev = seq
	}
	if prev != 10 {
		t.Fatalf("last relayed frame = %d, want 10 (newest survives)", prev)
	}
}

func TestStructuredFramesRouteToEvents(t *testing.T) {
	tele := newFakeLeg()
	mod := &fakeModelLeg{newFakeLeg()}
	b := Open("CA3", tele, mod, DefaultParams())
	defer b.Close()

	mod.in <- frames.NewTranscriptionFrame("hello", true, frames.SpeakerCaller)
	mod.in <- frames.NewToolCallFrame("call_1", "log_lead", `{}`)

	ev := <-b.Events()
	if _, ok := ev.(*frames.TranscriptionFrame); !ok {
		t.Fatalf("first event = %T, want TranscriptionFrame", ev)
	}
	ev = <-b.Events()
	tc, ok := ev.(*frames.ToolCallFrame)
	if !ok {
		t.Fatalf("second event = %T, want ToolCallFrame", ev)
	}
	if tc.Tool != "log_lead" {
		t.Fatalf("Tool = %q, want log_lead", tc.Tool)
	}
}

func TestCallerInterruptionClearsPlayback(t *testing.T) {
	tele := newFakeLeg()
	mod := &fakeModelLeg{newFakeLeg()}
	b := Open("CA4", tele, mod, DefaultParams())
	defer b.Close()

	mod.in <- frames.NewSpeechStartedFrame()

	ev := <-b.Events()
	if _, ok := ev.(*frames.SpeechStartedFrame); !ok {
		t.Fatalf("event = %T, want SpeechStartedFrame", ev)
	}
	waitFor(t, "clear frame sent to telephony", func() bool {
		for _, f := range tele.written() {
			if _, ok := f.(*frames.ClearPlaybackFrame); ok {
				return true
			}
		}
		return false
	})
}

func TestTelephonyEndClosesBothLegs(t *testing.T) {
	tele := newFakeLeg()
	mod := &fakeModelLeg{newFakeLeg()}
	b := Open("CA5", tele, mod, DefaultParams())

	tele.in <- frames.NewEndFrame()

	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not shut down on telephony end")
	}
	if !tele.isClosed() || !mod.isClosed() {
		t.Fatal("legs left open after shutdown")
	}
	if err := b.Err(); err != nil {
		t.Fatalf("Err() = %v, want nil on clean end", err)
	}
}

func TestModelFailureShutsBridgeDown(t *testing.T) {
	tele := newFakeLeg()
	mod := &fakeModelLeg{newFakeLeg()}
	b := Open("CA6", tele, mod, DefaultParams())

	mod.Close()

	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not shut down on model leg failure")
	}
	if b.Err() == nil {
		t.Fatal("Err() = nil, want the model leg failure")
	}
	if !tele.isClosed() {
		t.Fatal("telephony leg left open after model failure")
	}
}
