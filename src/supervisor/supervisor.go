package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/montroyal-labs/frontdesk/src/bridge"
	"github.com/montroyal-labs/frontdesk/src/config"
	"github.com/montroyal-labs/frontdesk/src/frames"
	"github.com/montroyal-labs/frontdesk/src/language"
	"github.com/montroyal-labs/frontdesk/src/logger"
	"github.com/montroyal-labs/frontdesk/src/model"
	"github.com/montroyal-labs/frontdesk/src/outcome"
	"github.com/montroyal-labs/frontdesk/src/session"
	"github.com/montroyal-labs/frontdesk/src/telephony"
	"github.com/montroyal-labs/frontdesk/src/workflow"
)

// Transferer performs the warm transfer to a human agent
type Transferer interface {
	Transfer(ctx context.Context, callSID, announcement string) (workflow.TransferResult, error)
}

// Params are the supervisor's tunable timeouts
type Params struct {
	// ModelTimeout is how long to wait for the model to start responding
	// after a final caller utterance (default: 7s)
	ModelTimeout time.Duration
	// CloseGrace is how long to let the closing remark play out before the
	// call is torn down (default: 10s)
	CloseGrace time.Duration
	// PlaybackSettle is how long to let the model turn the closing remark
	// into audio before the playback mark is sent (default: 2s)
	PlaybackSettle time.Duration
}

// DefaultParams returns default parameters
func DefaultParams() *Params {
	return &Params{
		ModelTimeout:   7 * time.Second,
		CloseGrace:     10 * time.Second,
		PlaybackSettle: 2 * time.Second,
	}
}

// Supervisor owns one goroutine per live call. It connects the model leg,
// opens the bridge, feeds structured frames through the workflow machine,
// and guarantees that every call, however it ends, is recorded and evicted.
type Supervisor struct {
	cfg        *config.Config
	params     *Params
	store      *session.Store
	recorder   *outcome.Recorder
	transferer Transferer
	log        *logger.Logger

	// connect dials the speech-model leg; tests substitute a fake
	connect func(ctx context.Context, cfg *config.Config, language string) (model.Leg, error)

	mu    sync.Mutex
	calls map[string]*callRun
}

type callRun struct {
	ended chan struct{}
	once  sync.Once
}

func (c *callRun) signalEnd() {
	c.once.Do(func() { close(c.ended) })
}

// New creates a supervisor
func New(cfg *config.Config, store *session.Store, recorder *outcome.Recorder, transferer Transferer, params *Params) *Supervisor {
	if params == nil {
		params = DefaultParams()
	}
	return &Supervisor{
		cfg:        cfg,
		params:     params,
		store:      store,
		recorder:   recorder,
		transferer: transferer,
		log:        logger.WithPrefix("Supervisor"),
		connect:    model.Connect,
		calls:      make(map[string]*callRun),
	}
}

// OnNewCall starts the per-call goroutine for a freshly started media stream
func (s *Supervisor) OnNewCall(leg telephony.CallLeg, fromNumber string) {
	run := &callRun{ended: make(chan struct{})}
	s.mu.Lock()
	s.calls[leg.CallSID()] = run
	s.mu.Unlock()

	go s.runCall(leg, fromNumber, run)
}

// OnCallEnded signals the call goroutine that Twilio reported the call over
func (s *Supervisor) OnCallEnded(callSID string) {
	s.mu.Lock()
	run, ok := s.calls[callSID]
	s.mu.Unlock()
	if ok {
		run.signalEnd()
	}
}

// ActiveCalls returns how many calls are being supervised
func (s *Supervisor) ActiveCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// runCall is the single logical sequence for one call. A panic anywhere in
// it ends that call alone; the session is still recorded and evicted.
func (s *Supervisor) runCall(leg telephony.CallLeg, fromNumber string, run *callRun) {
	callSID := leg.CallSID()
	log := logger.WithCall(callSID)

	sess, err := s.store.Create(callSID, fromNumber)
	if err != nil {
		log.Error("Session create failed: %v", err)
		leg.Close()
		return
	}
	sess.SetStreamSID(leg.StreamSID())

	defer func() {
		if r := recover(); r != nil {
			log.Error("Call goroutine panic: %v\n%s", r, debug.Stack())
		}
		s.finishCall(sess, leg)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	modelLeg, err := s.connect(ctx, s.cfg, string(session.LanguageEnglish))
	if err != nil {
		log.Error("Model connect failed: %v", err)
		return
	}

	br := bridge.Open(callSID, leg, modelLeg, bridge.DefaultParams())
	defer br.Close()

	detector := language.NewDetector(session.LanguageEnglish, nil)
	machine := workflow.NewMachine(sess, nil)

	// Have the assistant open the call rather than waiting in silence
	if err := modelLeg.WriteFrame(ctx, frames.NewSayFrame(
		"Greet the caller, introduce yourself as "+s.cfg.AgentName+"'s AI assistant, and ask how you can help.")); err != nil {
		log.Warn("Opening prompt failed: %v", err)
	}

	// Fires when the model stays silent after a final caller utterance
	modelTimer := time.NewTimer(s.params.ModelTimeout)
	if !modelTimer.Stop() {
		<-modelTimer.C
	}
	timerArmed := false
	defer modelTimer.Stop()

	for {
		select {
		case frame := <-br.Events():
			events := s.handleFrame(ctx, sess, machine, detector, modelLeg, frame, &timerArmed, modelTimer)
			if len(events) > 0 {
				actions := machine.ApplyTurn(events)
				s.execute(ctx, sess, machine, modelLeg, leg, actions)
			}
			if sess.Node() == session.NodeClosing || sess.Node() == session.NodeTerminated {
				return
			}

		case <-modelTimer.C:
			timerArmed = false
			log.Warn("Model silent past deadline, prompting recovery")
			actions := machine.ApplyTurn([]workflow.Event{workflow.ModelTimeoutEvent{}})
			s.execute(ctx, sess, machine, modelLeg, leg, actions)

		case <-run.ended:
			log.Info("Call ended by status callback")
			actions := machine.ApplyTurn([]workflow.Event{workflow.HangupEvent{}})
			s.execute(ctx, sess, machine, modelLeg, leg, actions)
			return

		case <-br.Done():
			if err := br.Err(); err != nil {
				log.Warn("Bridge failed: %v", err)
				machine.ApplyTurn([]workflow.Event{workflow.LegFailureEvent{Err: err}})
			} else {
				machine.ApplyTurn([]workflow.Event{workflow.HangupEvent{}})
			}
			return
		}
	}
}

// handleFrame turns one bridge frame into zero or more workflow events and
// performs the frame's immediate side effects
func (s *Supervisor) handleFrame(ctx context.Context, sess *session.CallSession, machine *workflow.Machine,
	detector *language.Detector, modelLeg model.Leg, frame frames.Frame, timerArmed *bool, modelTimer *time.Timer) []workflow.Event {

	log := logger.WithCall(sess.CallSID)

	switch f := frame.(type) {
	case *frames.TranscriptionFrame:
		if !f.IsFinal {
			return nil
		}
		sess.AppendTranscript(f.Speaker, f.Text)

		if f.Speaker == frames.SpeakerCaller {
			res := detector.Observe(f.Text)
			sess.SetLanguage(res.State)
			if res.Switched {
				log.Info("Caller language switched, responding in %s", res.Respond)
				machine.SetResponseLanguage(res.Respond)
				if err := modelLeg.WriteFrame(ctx, frames.NewLanguageSwitchFrame(string(res.Respond))); err != nil {
					log.Warn("Language switch notify failed: %v", err)
				}
			}
			// Expect the model to answer this utterance
			resetTimer(modelTimer, s.params.ModelTimeout, timerArmed)
		}
		return nil

	case *frames.ResponseStartedFrame, *frames.ResponseDoneFrame:
		stopTimer(modelTimer, timerArmed)
		return nil

	case *frames.ToolCallFrame:
		stopTimer(modelTimer, timerArmed)
		return s.handleToolCall(ctx, sess, machine, modelLeg, f)

	case *frames.EndFrame:
		return []workflow.Event{workflow.HangupEvent{}}

	case *frames.ErrorFrame:
		return []workflow.Event{workflow.LegFailureEvent{Err: f.Error}}

	default:
		return nil
	}
}

// toolArgs covers every tool's argument fields
type toolArgs struct {
	Date            string `json:"date"`
	Time            string `json:"time"`
	Purpose         string `json:"purpose"`
	Location        string `json:"location"`
	Intent          string `json:"intent"`
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	Email           string `json:"email"`
	AreaInterest    string `json:"area_interest"`
	Budget          string `json:"budget"`
	Timeline        string `json:"timeline"`
	PropertyAddress string `json:"property_address"`
	Notes           string `json:"notes"`
	Corrected       bool   `json:"corrected"`
	Reason          string `json:"reason"`
	Urgency         string `json:"urgency"`
	Message         string `json:"message"`
}

// handleToolCall maps a completed model tool call to workflow events and
// answers the model so it can speak the result
func (s *Supervisor) handleToolCall(ctx context.Context, sess *session.CallSession, machine *workflow.Machine,
	modelLeg model.Leg, f *frames.ToolCallFrame) []workflow.Event {
	log := logger.WithCall(sess.CallSID)
	log.Info("Tool call: %s", f.Tool)

	var args toolArgs
	if err := json.Unmarshal([]byte(f.Arguments), &args); err != nil {
		log.Warn("Malformed tool arguments for %s: %v", f.Tool, err)
		s.answerTool(ctx, modelLeg, f.CallID, `{"error":"malformed arguments"}`)
		return nil
	}

	switch f.Tool {
	case model.ToolLogLead:
		events := leadEvents(args)
		s.answerTool(ctx, modelLeg, f.CallID, `{"status":"recorded"}`)
		return events

	case model.ToolCheckAvailability:
		slots, err := s.recorder.Availability(ctx, args.Date)
		if err != nil {
			log.Warn("Availability check failed: %v", err)
			s.answerTool(ctx, modelLeg, f.CallID, `{"error":"calendar unavailable, offer to have the agent call back"}`)
			return nil
		}
		payload, _ := json.Marshal(map[string]any{"date": args.Date, "open_slots": slots})
		s.answerTool(ctx, modelLeg, f.CallID, string(payload))
		return []workflow.Event{workflow.AgreeToScheduleEvent{}}

	case model.ToolBookAppointment:
		// Booking gate: an unqualified caller never reaches the calendar,
		// whatever the model asked for
		if !machine.Qualified() {
			s.answerTool(ctx, modelLeg, f.CallID, `{"error":"finish qualifying the caller before booking"}`)
			return []workflow.Event{workflow.AgreeToScheduleEvent{}}
		}
		details := workflow.BookingDetails{
			Date: args.Date, Time: args.Time,
			Purpose: args.Purpose, Location: args.Location,
		}
		if details.Purpose == "" {
			details.Purpose = "Consultation"
		}
		return []workflow.Event{
			workflow.AgreeToScheduleEvent{},
			workflow.BookingDetailsEvent{Details: details, CallID: f.CallID},
		}

	case model.ToolWarmTransfer:
		s.answerTool(ctx, modelLeg, f.CallID, `{"status":"transferring"}`)
		if args.Urgency == "high" {
			sess.AddNote("Urgent: " + args.Reason)
		}
		return []workflow.Event{workflow.TransferRequestEvent{Reason: args.Reason}}

	case model.ToolLogVoicemail:
		s.answerTool(ctx, modelLeg, f.CallID, `{"status":"saved"}`)
		return []workflow.Event{workflow.VoicemailMessageEvent{Message: args.Message, Urgency: args.Urgency}}

	default:
		log.Warn("Unknown tool: %s", f.Tool)
		s.answerTool(ctx, modelLeg, f.CallID, `{"error":"unknown tool"}`)
		return nil
	}
}

// leadEvents expands a log_lead call into per-field slot events
func leadEvents(args toolArgs) []workflow.Event {
	fields := []struct {
		name  session.FieldName
		value string
	}{
		{session.FieldRole, args.Intent},
		{session.FieldCallerName, args.Name},
		{session.FieldPhone, args.Phone},
		{session.FieldEmail, args.Email},
		{session.FieldArea, args.AreaInterest},
		{session.FieldBudget, args.Budget},
		{session.FieldTimeline, args.Timeline},
		{session.FieldAddress, args.PropertyAddress},
		{session.FieldNotes, args.Notes},
	}

	var events []workflow.Event
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			continue
		}
		if args.Corrected {
			events = append(events, workflow.SlotCorrectionEvent{Field: f.name, Value: f.value})
		} else {
			events = append(events, workflow.SlotFillEvent{Field: f.name, Value: f.value})
		}
	}
	return events
}

func (s *Supervisor) answerTool(ctx context.Context, modelLeg model.Leg, callID, result string) {
	if err := modelLeg.SendToolResult(ctx, callID, result); err != nil {
		s.log.Warn("Tool result delivery failed: %v", err)
	}
}

// execute carries out the machine's actions, feeding side-effect results
// back in as new events until the turn settles
func (s *Supervisor) execute(ctx context.Context, sess *session.CallSession, machine *workflow.Machine,
	modelLeg model.Leg, leg telephony.CallLeg, actions []workflow.Action) {

	log := logger.WithCall(sess.CallSID)

	for len(actions) > 0 {
		var followups []workflow.Event

		for _, a := range actions {
			switch act := a.(type) {
			case workflow.BookAction:
				ev := workflow.BookingResultEvent{}
				err := s.recorder.BookAppointment(ctx, sess, act.Details)
				switch {
				case err == nil:
					ev.Booked = true
					s.answerTool(ctx, modelLeg, act.CallID, `{"status":"booked"}`)
				case errors.Is(err, outcome.ErrSlotConflict):
					ev.Conflict = true
					s.answerTool(ctx, modelLeg, act.CallID, `{"error":"slot taken, offer another time"}`)
				default:
					log.Error("Booking failed: %v", err)
					s.answerTool(ctx, modelLeg, act.CallID, `{"error":"booking failed, the agent will call back to confirm"}`)
				}
				followups = append(followups, ev)

			case workflow.TransferAction:
				sess.AddNote("Transfer requested: " + act.Reason)
				announcement := "Please hold while I connect you with " + s.cfg.AgentName + "."
				result, err := s.transferer.Transfer(ctx, sess.CallSID, announcement)
				if err != nil {
					log.Warn("Transfer attempt failed: %v", err)
				}
				followups = append(followups, workflow.TransferResultEvent{Result: result})

			case workflow.CloseAction:
				s.speak(ctx, modelLeg, act.Remark)
				s.awaitPlayback(leg)
				res := s.recorder.Record(context.WithoutCancel(ctx), sess)
				if res.Degraded {
					log.Warn("Recorded with degraded sub-outcomes")
				}
				machine.Apply(workflow.RecordedEvent{})

			default:
				if line := machine.Render(a); line != "" {
					s.speak(ctx, modelLeg, line)
				}
			}
		}

		if len(followups) == 0 {
			return
		}
		actions = machine.ApplyTurn(followups)
	}
}

// speak asks the model to deliver an exact line
func (s *Supervisor) speak(ctx context.Context, modelLeg model.Leg, text string) {
	if err := modelLeg.WriteFrame(ctx, frames.NewSayFrame(text)); err != nil {
		s.log.Warn("Say failed: %v", err)
	}
}

// awaitPlayback gives the closing remark time to reach the caller before
// the legs are torn down
func (s *Supervisor) awaitPlayback(leg telephony.CallLeg) {
	// The say round-trips through the model first, so give it a moment to
	// produce audio before marking the playback position
	time.Sleep(s.params.PlaybackSettle)

	name, err := leg.SendMark()
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.params.CloseGrace)
	defer cancel()
	leg.WaitMark(ctx, name)
}

// finishCall records whatever state the call reached and releases it.
// Reached on every exit path, including panics.
func (s *Supervisor) finishCall(sess *session.CallSession, leg telephony.CallLeg) {
	log := logger.WithCall(sess.CallSID)

	leg.Close()

	// A call that never reached Closing still settles: qualified leads
	// survive an abrupt hangup
	if sess.Node() != session.NodeTerminated {
		if sess.Outcome() == session.OutcomeNone {
			sess.SetOutcome(session.OutcomeAbandoned)
		}
		if sess.Node() != session.NodeClosing {
			sess.SetNode(session.NodeClosing)
		}
		s.recorder.Record(context.Background(), sess)
		sess.SetNode(session.NodeTerminated)
	}

	s.recorder.Forget(sess.CallSID)
	s.store.Evict(sess.CallSID)

	s.mu.Lock()
	delete(s.calls, sess.CallSID)
	s.mu.Unlock()

	log.Info("Call finished: outcome=%s", sess.Outcome())
}

// resetTimer arms the model response deadline
func resetTimer(t *time.Timer, d time.Duration, armed *bool) {
	stopTimer(t, armed)
	t.Reset(d)
	*armed = true
}

func stopTimer(t *time.Timer, armed *bool) {
	if *armed && !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	*armed = false
}
