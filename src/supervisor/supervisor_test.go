package supervisor

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/montroyal-labs/frontdesk/src/audio"
	"github.com/montroyal-labs/frontdesk/src/config"
	"github.com/montroyal-labs/frontdesk/src/frames"
	"github.com/montroyal-labs/frontdesk/src/model"
	"github.com/montroyal-labs/frontdesk/src/outcome"
	"github.com/montroyal-labs/frontdesk/src/session"
	"github.com/montroyal-labs/frontdesk/src/workflow"
)

func TestLeadEventsMapsPopulatedFields(t *testing.T) {
	args := toolArgs{
		Intent:       "buyer",
		Name:         "Sophie Tremblay",
		AreaInterest: "Plateau",
		Budget:       "650k",
	}

	events := leadEvents(args)
	if len(events) != 4 {
		t.Fatalf("len(events) = %d, want 4", len(events))
	}

	want := map[session.FieldName]string{
		session.FieldRole:       "buyer",
		session.FieldCallerName: "Sophie Tremblay",
		session.FieldArea:       "Plateau",
		session.FieldBudget:     "650k",
	}
	for _, ev := range events {
		fill, ok := ev.(workflow.SlotFillEvent)
		if !ok {
			t.Fatalf("event = %T, want SlotFillEvent", ev)
		}
		if want[fill.Field] != fill.Value {
			t.Fatalf("%s = %q, want %q", fill.Field, fill.Value, want[fill.Field])
		}
		delete(want, fill.Field)
	}
	if len(want) != 0 {
		t.Fatalf("fields never emitted: %v", want)
	}
}

func TestLeadEventsSkipsBlankFields(t *testing.T) {
	events := leadEvents(toolArgs{Name: "  ", Budget: ""})
	if len(events) != 0 {
		t.Fatalf("len(events) = %d, want 0 for blank fields", len(events))
	}
}

func TestLeadEventsCorrectedFlag(t *testing.T) {
	events := leadEvents(toolArgs{Budget: "800k", Corrected: true})
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	corr, ok := events[0].(workflow.SlotCorrectionEvent)
	if !ok {
		t.Fatalf("event = %T, want SlotCorrectionEvent", events[0])
	}
	if corr.Field != session.FieldBudget || corr.Value != "800k" {
		t.Fatalf("correction = %+v, want budget 800k", corr)
	}
}

func TestToolArgsUnmarshal(t *testing.T) {
	raw := `{"date":"2026-09-01","time":"2:00 PM","intent":"seller","corrected":true,"urgency":"high"}`

	var args toolArgs
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if args.Date != "2026-09-01" || args.Time != "2:00 PM" {
		t.Fatalf("args = %+v, missing booking fields", args)
	}
	if args.Intent != "seller" || !args.Corrected || args.Urgency != "high" {
		t.Fatalf("args = %+v, missing lead fields", args)
	}
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	if p.ModelTimeout <= 0 || p.CloseGrace <= 0 {
		t.Fatalf("DefaultParams() = %+v, want positive timeouts", p)
	}
}

// fakeCallLeg stands in for a live Twilio stream: frames pushed to in come
// out of ReadFrame, writes are discarded, marks ack immediately
type fakeCallLeg struct {
	callSID string
	in      chan frames.Frame

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeCallLeg(callSID string) *fakeCallLeg {
	return &fakeCallLeg{
		callSID: callSID,
		in:      make(chan frames.Frame, 64),
		closed:  make(chan struct{}),
	}
}

func (l *fakeCallLeg) CallSID() string   { return l.callSID }
func (l *fakeCallLeg) StreamSID() string { return "MZ" + l.callSID }

func (l *fakeCallLeg) ReadFrame(ctx context.Context) (frames.Frame, error) {
	select {
	case f := <-l.in:
		return f, nil
	case <-l.closed:
		return nil, context.Canceled
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *fakeCallLeg) WriteFrame(ctx context.Context, f frames.Frame) error { return nil }
func (l *fakeCallLeg) SendMark() (string, error)                            { return "m1", nil }
func (l *fakeCallLeg) WaitMark(ctx context.Context, name string) error      { return nil }

func (l *fakeCallLeg) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *fakeCallLeg) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

// fakeModelLeg records the say lines and tool results the supervisor sends.
// failToolAt makes the Nth SendToolResult panic, simulating a client bug
// inside the call goroutine.
type fakeModelLeg struct {
	in         chan frames.Frame
	failToolAt int

	mu          sync.Mutex
	says        []string
	toolResults []string

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeModelLeg() *fakeModelLeg {
	return &fakeModelLeg{
		in:     make(chan frames.Frame, 64),
		closed: make(chan struct{}),
	}
}

func (l *fakeModelLeg) ReadFrame(ctx context.Context) (frames.Frame, error) {
	select {
	case f := <-l.in:
		return f, nil
	case <-l.closed:
		return nil, context.Canceled
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *fakeModelLeg) WriteFrame(ctx context.Context, f frames.Frame) error {
	if say, ok := f.(*frames.SayFrame); ok {
		l.mu.Lock()
		l.says = append(l.says, say.Text)
		l.mu.Unlock()
	}
	return nil
}

func (l *fakeModelLeg) SendToolResult(ctx context.Context, callID, result string) error {
	l.mu.Lock()
	l.toolResults = append(l.toolResults, result)
	n := len(l.toolResults)
	l.mu.Unlock()
	if l.failToolAt > 0 && n == l.failToolAt {
		panic("tool result on a dead connection")
	}
	return nil
}

func (l *fakeModelLeg) InputFormat() audio.Format  { return audio.MulawTelephony }
func (l *fakeModelLeg) OutputFormat() audio.Format { return audio.MulawTelephony }

func (l *fakeModelLeg) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *fakeModelLeg) sayCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.says)
}

func (l *fakeModelLeg) toolResultCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.toolResults)
}

type stubCalendar struct{}

func (stubCalendar) CreateHold(ctx context.Context, dedupKey string, details workflow.BookingDetails, contact outcome.Contact) (string, error) {
	return "evt-1", nil
}

func (stubCalendar) Availability(ctx context.Context, date string) ([]string, error) {
	return []string{"10:00 AM"}, nil
}

type stubNotifier struct{}

func (stubNotifier) SendConfirmation(ctx context.Context, toNumber, message string) error {
	return nil
}

type stubCRM struct {
	mu   sync.Mutex
	rows []outcome.LeadRow
}

func (c *stubCRM) AppendRow(ctx context.Context, row outcome.LeadRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append(c.rows, row)
	return nil
}

func (c *stubCRM) AppendAppointment(ctx context.Context, row outcome.AppointmentRow) error {
	return nil
}

func (c *stubCRM) rowCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rows)
}

type stubTransferer struct{}

func (stubTransferer) Transfer(ctx context.Context, callSID, announcement string) (workflow.TransferResult, error) {
	return workflow.TransferConnected, nil
}

func testParams() *Params {
	return &Params{
		ModelTimeout:   time.Minute,
		CloseGrace:     100 * time.Millisecond,
		PlaybackSettle: time.Millisecond,
	}
}

func newCallFixture(params *Params) (*Supervisor, *session.Store, *stubCRM, *fakeModelLeg) {
	crm := &stubCRM{}
	store := session.NewStore()
	rec := outcome.NewRecorder(stubCalendar{}, stubNotifier{}, crm,
		outcome.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	sup := New(&config.Config{AgentName: "Mark Esposito"}, store, rec, stubTransferer{}, params)

	mod := newFakeModelLeg()
	sup.connect = func(ctx context.Context, cfg *config.Config, language string) (model.Leg, error) {
		return mod, nil
	}
	return sup, store, crm, mod
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

func TestHangupRecordsLeadAndEvicts(t *testing.T) {
	sup, store, crm, mod := newCallFixture(testParams())
	tele := newFakeCallLeg("CA900")

	sup.OnNewCall(tele, "+15145550100")
	waitFor(t, "session registration", func() bool { return store.Len() == 1 })

	mod.in <- frames.NewToolCallFrame("t1", model.ToolLogLead, `{"name":"Julie"}`)
	waitFor(t, "tool result", func() bool { return mod.toolResultCount() == 1 })

	tele.in <- frames.NewEndFrame()

	waitFor(t, "session eviction", func() bool { return store.Len() == 0 })
	waitFor(t, "call deregistration", func() bool { return sup.ActiveCalls() == 0 })
	if !tele.isClosed() {
		t.Fatal("telephony leg left open")
	}
	if crm.rowCount() != 1 {
		t.Fatalf("crm rows = %d, want 1", crm.rowCount())
	}
	if crm.rows[0].Name != "Julie" {
		t.Fatalf("row Name = %q, want Julie", crm.rows[0].Name)
	}
}

func TestPanicStillRecordsAndEvicts(t *testing.T) {
	sup, store, crm, mod := newCallFixture(testParams())
	mod.failToolAt = 2
	tele := newFakeCallLeg("CA901")

	sup.OnNewCall(tele, "+15145550101")
	waitFor(t, "session registration", func() bool { return store.Len() == 1 })

	// First tool call lands the caller's name; the second blows up inside
	// the call goroutine
	mod.in <- frames.NewToolCallFrame("t1", model.ToolLogLead, `{"name":"Marc"}`)
	waitFor(t, "first tool result", func() bool { return mod.toolResultCount() == 1 })
	mod.in <- frames.NewToolCallFrame("t2", model.ToolLogLead, `{"budget":"500k"}`)

	waitFor(t, "session eviction after panic", func() bool { return store.Len() == 0 })
	waitFor(t, "call deregistration", func() bool { return sup.ActiveCalls() == 0 })
	if !tele.isClosed() {
		t.Fatal("telephony leg left open after panic")
	}
	if crm.rowCount() != 1 {
		t.Fatalf("crm rows = %d, want 1 (lead survives the panic)", crm.rowCount())
	}
	if crm.rows[0].Name != "Marc" {
		t.Fatalf("row Name = %q, want Marc", crm.rows[0].Name)
	}
}

func TestModelSilenceTriggersRecoveryPrompt(t *testing.T) {
	params := testParams()
	params.ModelTimeout = 30 * time.Millisecond
	sup, store, _, mod := newCallFixture(params)
	tele := newFakeCallLeg("CA902")

	sup.OnNewCall(tele, "+15145550102")
	waitFor(t, "session registration", func() bool { return store.Len() == 1 })

	// A final caller utterance arms the deadline; the model never answers
	mod.in <- frames.NewTranscriptionFrame("I want to buy a condo downtown", true, frames.SpeakerCaller)

	// Opening prompt plus the recovery line
	waitFor(t, "recovery prompt", func() bool { return mod.sayCount() >= 2 })

	tele.in <- frames.NewEndFrame()
	waitFor(t, "session eviction", func() bool { return store.Len() == 0 })
}

func TestModelLegFailureEvictsSession(t *testing.T) {
	sup, store, _, mod := newCallFixture(testParams())
	tele := newFakeCallLeg("CA903")

	sup.OnNewCall(tele, "")
	waitFor(t, "session registration", func() bool { return store.Len() == 1 })

	mod.Close()

	waitFor(t, "session eviction after leg failure", func() bool { return store.Len() == 0 })
	waitFor(t, "call deregistration", func() bool { return sup.ActiveCalls() == 0 })
	if !tele.isClosed() {
		t.Fatal("telephony leg left open after model leg failure")
	}
}
