package workflow

import (
	"sort"
	"strings"

	"github.com/montroyal-labs/frontdesk/src/logger"
	"github.com/montroyal-labs/frontdesk/src/session"
)

// Params are the tunable workflow knobs
type Params struct {
	// ClarificationAttempts is how many times the machine asks a clarifying
	// question on an ambiguous role before falling back to the generic
	// qualification path (default: 3)
	ClarificationAttempts int
}

// DefaultParams returns default parameters
func DefaultParams() *Params {
	return &Params{
		ClarificationAttempts: 3,
	}
}

// Machine drives one call through the qualification/booking/transfer/
// voicemail workflow. It consumes structured events and emits actions;
// it never performs I/O itself.
//
// Exactly one node is current per session. Transitions are deterministic
// given (current node, event, lead-field completeness). Malformed or
// missing events never cause a transition.
type Machine struct {
	sess    *session.CallSession
	params  *Params
	log     *logger.Logger
	respond session.Language

	role            Role
	clarifyAttempts int

	// Field awaiting its confirmation round-trip: the assistant restated
	// the value and no correction has arrived yet
	pendingConfirm session.FieldName
}

// NewMachine creates a workflow machine bound to a session
func NewMachine(sess *session.CallSession, params *Params) *Machine {
	if params == nil {
		params = DefaultParams()
	}
	return &Machine{
		sess:    sess,
		params:  params,
		log:     logger.WithCall(sess.CallSID),
		respond: session.LanguageEnglish,
	}
}

// SetResponseLanguage tells the machine which language to phrase prompts in
func (m *Machine) SetResponseLanguage(lang session.Language) {
	if lang == session.LanguageFrench || lang == session.LanguageEnglish {
		m.respond = lang
	}
}

// Role returns the detected caller role ("" until disambiguated)
func (m *Machine) Role() Role {
	return m.role
}

// Qualified reports whether every required field for the detected role is
// confirmed
func (m *Machine) Qualified() bool {
	return m.qualified()
}

// ApplyTurn applies all events derived from one caller turn. When a single
// utterance carries several intents, transfer and hangup signals take
// precedence over qualification continuation.
func (m *Machine) ApplyTurn(events []Event) []Action {
	ordered := make([]Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return eventPriority(ordered[i]) < eventPriority(ordered[j])
	})

	var actions []Action
	for _, ev := range ordered {
		actions = append(actions, m.Apply(ev)...)
	}
	return collapseQuestions(actions)
}

// collapseQuestions keeps only the last ask/offer in a turn so a caller who
// filled several slots at once hears a single follow-up question
func collapseQuestions(actions []Action) []Action {
	last := -1
	for i, a := range actions {
		switch a.(type) {
		case AskFieldAction, OfferScheduleAction:
			last = i
		}
	}
	if last < 0 {
		return actions
	}
	out := make([]Action, 0, len(actions))
	for i, a := range actions {
		switch a.(type) {
		case AskFieldAction, OfferScheduleAction:
			if i != last {
				continue
			}
		}
		out = append(out, a)
	}
	return out
}

func eventPriority(ev Event) int {
	switch ev.(type) {
	case HangupEvent, LegFailureEvent:
		return 0
	case TransferRequestEvent:
		return 1
	default:
		return 2
	}
}

// Apply consumes one event and returns the actions to carry out
func (m *Machine) Apply(ev Event) []Action {
	if ev == nil {
		return nil
	}

	node := m.sess.Node()

	// Terminal and closing transitions are shared across nodes
	switch e := ev.(type) {
	case HangupEvent:
		return m.close(node)
	case LegFailureEvent:
		m.log.Warn("[Workflow] Leg failure, closing call: %v", e.Err)
		return m.close(node)
	case ModelTimeoutEvent:
		// Recovery prompt instead of stalling; state unchanged
		return []Action{SayAction{Text: m.prompt(promptRecovery)}}
	case RecordedEvent:
		if node == session.NodeClosing {
			m.transition(session.NodeTerminated)
		}
		return nil
	case VoicemailMessageEvent:
		// A message can be left from any live node (the model may offer
		// voicemail directly when the agent is busy)
		if node == session.NodeClosing || node == session.NodeTerminated {
			return nil
		}
		m.sess.AddNote("Voicemail (" + urgencyOrDefault(e.Urgency) + "): " + e.Message)
		m.sess.SetOutcome(session.OutcomeVoicemailTaken)
		return m.close(node)
	}

	switch node {
	case session.NodeGreeting:
		return m.applyGreeting(ev)
	case session.NodeQualifying:
		return m.applyQualifying(ev)
	case session.NodeBooking:
		return m.applyBooking(ev)
	case session.NodeTransferring:
		return m.applyTransferring(ev)
	case session.NodeVoicemail:
		return m.applyVoicemail(ev)
	default:
		// Closing/Terminated: only Recorded/Hangup matter, handled above
		return nil
	}
}

func (m *Machine) applyGreeting(ev Event) []Action {
	switch e := ev.(type) {
	case IntentEvent:
		// First recognized intent signal moves the call into qualification
		m.transition(session.NodeQualifying)
		return m.handleIntent(e)
	case SlotFillEvent:
		m.transition(session.NodeQualifying)
		return m.handleSlotFill(e)
	case TransferRequestEvent:
		m.transition(session.NodeTransferring)
		return []Action{m.transferAction(e.Reason)}
	default:
		return nil
	}
}

func (m *Machine) applyQualifying(ev Event) []Action {
	switch e := ev.(type) {
	case IntentEvent:
		return m.handleIntent(e)
	case SlotFillEvent:
		return m.handleSlotFill(e)
	case SlotCorrectionEvent:
		// Correction within the confirmation turn: restate the new value
		m.sess.SetField(e.Field, e.Value)
		m.pendingConfirm = e.Field
		return []Action{ConfirmFieldAction{Field: e.Field, Value: e.Value}}
	case TransferRequestEvent:
		// Explicit human request wins regardless of unconfirmed fields
		m.resolvePending()
		m.transition(session.NodeTransferring)
		return []Action{m.transferAction(e.Reason)}
	case AgreeToScheduleEvent:
		m.resolvePending()
		if !m.qualified() {
			// Not all required fields confirmed yet; keep qualifying
			return m.nextQuestion()
		}
		m.transition(session.NodeBooking)
		return nil
	case TransferResultEvent:
		// Destination unavailable while still qualifying (proactive
		// transfer attempt): never bounce back to qualification
		if e.Result != TransferConnected {
			m.transition(session.NodeVoicemail)
			return []Action{SayAction{Text: m.prompt(promptVoicemail)}, TakeVoicemailAction{}}
		}
		return nil
	default:
		return nil
	}
}

func (m *Machine) applyBooking(ev Event) []Action {
	switch e := ev.(type) {
	case BookingDetailsEvent:
		return []Action{BookAction{Details: e.Details, CallID: e.CallID}}
	case BookingResultEvent:
		if e.Booked {
			m.sess.SetOutcome(session.OutcomeAppointmentBooked)
			return m.close(session.NodeBooking)
		}
		if e.Conflict {
			// Slot conflict is a permanent rejection: offer another slot
			return []Action{OfferScheduleAction{}}
		}
		return nil
	case TransferRequestEvent:
		m.transition(session.NodeTransferring)
		return []Action{m.transferAction(e.Reason)}
	case TransferResultEvent:
		if e.Result != TransferConnected {
			m.transition(session.NodeVoicemail)
			return []Action{SayAction{Text: m.prompt(promptVoicemail)}, TakeVoicemailAction{}}
		}
		return nil
	case SlotFillEvent:
		return m.handleSlotFill(e)
	default:
		return nil
	}
}

func (m *Machine) applyTransferring(ev Event) []Action {
	switch e := ev.(type) {
	case TransferResultEvent:
		switch e.Result {
		case TransferConnected:
			m.sess.SetOutcome(session.OutcomeTransferred)
			return m.close(session.NodeTransferring)
		default:
			// Unavailable or timed out: take a message, never resume
			// qualification
			m.transition(session.NodeVoicemail)
			return []Action{SayAction{Text: m.prompt(promptVoicemail)}, TakeVoicemailAction{}}
		}
	default:
		return nil
	}
}

func (m *Machine) applyVoicemail(ev Event) []Action {
	switch e := ev.(type) {
	case SlotFillEvent:
		// Name/number stated while leaving the message still counts
		m.sess.SetField(e.Field, e.Value)
		m.sess.ConfirmField(e.Field)
		return nil
	default:
		return nil
	}
}

func (m *Machine) handleIntent(e IntentEvent) []Action {
	if e.Role == "" {
		// Ambiguous role: ask a clarifying question rather than guess,
		// bounded by the attempt ceiling
		m.clarifyAttempts++
		if m.clarifyAttempts >= m.params.ClarificationAttempts {
			m.log.Info("[Workflow] Role clarification exhausted, using generic path")
			m.role = RoleGeneric
			m.sess.SetField(session.FieldRole, string(RoleGeneric))
			m.sess.ConfirmField(session.FieldRole)
			return m.nextQuestion()
		}
		return []Action{SayAction{Text: m.prompt(promptClarifyRole)}}
	}

	// An explicit role statement is its own confirmation round-trip: the
	// next question restates it ("Great, you're buying...")
	m.role = e.Role
	m.clarifyAttempts = 0
	m.sess.SetField(session.FieldRole, string(e.Role))
	m.sess.ConfirmField(session.FieldRole)
	return m.nextQuestion()
}

func (m *Machine) handleSlotFill(e SlotFillEvent) []Action {
	if e.Field == "" || e.Value == "" {
		return nil
	}

	// A new slot fill that is not a correction settles any pending
	// confirmation: the caller heard the restated value and moved on
	if m.pendingConfirm != "" && m.pendingConfirm != e.Field {
		m.sess.ConfirmField(m.pendingConfirm)
		m.pendingConfirm = ""
	}

	if e.Field == session.FieldRole {
		if role := parseRole(e.Value); role != "" {
			return m.handleIntent(IntentEvent{Role: role, Raw: e.Value})
		}
		return m.handleIntent(IntentEvent{Raw: e.Value})
	}

	m.sess.SetField(e.Field, e.Value)
	m.pendingConfirm = e.Field

	actions := []Action{ConfirmFieldAction{Field: e.Field, Value: e.Value}}

	// Immediate sellers with a firm timeline are high-value: hand them
	// straight to the agent
	if e.Field == session.FieldTimeline && m.role == RoleSeller && urgentTimeline(e.Value) {
		m.resolvePending()
		m.transition(session.NodeTransferring)
		return append(actions, m.transferAction("urgent seller lead"))
	}

	return append(actions, m.nextQuestion()...)
}

// nextQuestion asks for the next unconfirmed required field, or offers to
// schedule once qualification is complete
func (m *Machine) nextQuestion() []Action {
	role := m.role
	if role == "" {
		role = RoleGeneric
	}
	for _, f := range RequiredFields(role) {
		if f == m.pendingConfirm {
			continue
		}
		if fv, ok := m.sess.Field(f); ok {
			if fv.Confirmed {
				continue
			}
			// Stated but unconfirmed: restate it instead of re-asking
			m.pendingConfirm = f
			return []Action{ConfirmFieldAction{Field: f, Value: fv.Value}}
		}
		return []Action{AskFieldAction{Field: f}}
	}
	if m.qualified() {
		return []Action{OfferScheduleAction{}}
	}
	return nil
}

// qualified reports whether every required field for the detected role is
// confirmed. Booking is never reachable before this holds.
func (m *Machine) qualified() bool {
	role := m.role
	if role == "" {
		return false
	}
	return m.sess.Confirmed(RequiredFields(role)...)
}

// resolvePending confirms a field whose restatement went unchallenged
func (m *Machine) resolvePending() {
	if m.pendingConfirm != "" {
		m.sess.ConfirmField(m.pendingConfirm)
		m.pendingConfirm = ""
	}
}

// close moves any node to Closing, settling the outcome if none is set
func (m *Machine) close(from session.Node) []Action {
	if from == session.NodeClosing || from == session.NodeTerminated {
		return nil
	}
	m.resolvePending()

	if m.sess.Outcome() == session.OutcomeNone {
		if m.qualified() {
			m.sess.SetOutcome(session.OutcomeQualifiedLead)
		} else {
			m.sess.SetOutcome(session.OutcomeAbandoned)
		}
	}

	m.transition(session.NodeClosing)
	return []Action{CloseAction{Remark: m.closingRemark()}}
}

func (m *Machine) closingRemark() string {
	switch m.sess.Outcome() {
	case session.OutcomeAppointmentBooked:
		return m.prompt(promptCloseBooked)
	case session.OutcomeQualifiedLead:
		return m.prompt(promptCloseLead)
	default:
		return m.prompt(promptCloseDefault)
	}
}

func (m *Machine) transferAction(reason string) TransferAction {
	var ctx strings.Builder
	for name, f := range m.sess.Fields() {
		if f.Value != "" {
			ctx.WriteString(string(name) + "=" + f.Value + "; ")
		}
	}
	return TransferAction{Reason: reason, Context: strings.TrimSuffix(ctx.String(), "; ")}
}

func (m *Machine) transition(to session.Node) {
	from := m.sess.Node()
	if from == to {
		return
	}
	m.sess.SetNode(to)
	m.log.Debug("[Workflow] %s -> %s", from, to)
}

func parseRole(v string) Role {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "buyer", "buy", "acheteur":
		return RoleBuyer
	case "seller", "sell", "vendeur":
		return RoleSeller
	case "renter", "rent", "locataire":
		return RoleRenter
	case "investor", "invest", "investisseur":
		return RoleInvestor
	default:
		return ""
	}
}

func urgentTimeline(v string) bool {
	v = strings.ToLower(v)
	for _, cue := range []string{"immediate", "asap", "right away", "this week", "now", "urgent", "immédiat", "cette semaine"} {
		if strings.Contains(v, cue) {
			return true
		}
	}
	return false
}

func urgencyOrDefault(u string) string {
	if u == "" {
		return "Medium"
	}
	return u
}
