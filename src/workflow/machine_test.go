package workflow

import (
	"testing"

	"github.com/montroyal-labs/frontdesk/src/session"
)

func newTestMachine(t *testing.T) (*Machine, *session.CallSession) {
	t.Helper()
	sess := session.New("CA0001", "+15145550000")
	return NewMachine(sess, nil), sess
}

// qualifyBuyer walks a buyer through the full confirmation loop
func qualifyBuyer(m *Machine) {
	m.Apply(IntentEvent{Role: RoleBuyer, Raw: "I want to buy"})
	m.Apply(SlotFillEvent{Field: session.FieldArea, Value: "Westmount"})
	m.Apply(SlotFillEvent{Field: session.FieldBudget, Value: "800k"})
	m.Apply(SlotFillEvent{Field: session.FieldTimeline, Value: "three months"})
	m.Apply(SlotFillEvent{Field: session.FieldCallerName, Value: "Sophie Tremblay"})
	// Settle the last pending confirmation (phone is pre-confirmed from
	// caller ID)
	m.Apply(AgreeToScheduleEvent{})
}

func TestExplicitRoleMovesToQualifying(t *testing.T) {
	m, sess := newTestMachine(t)

	actions := m.Apply(IntentEvent{Role: RoleBuyer, Raw: "looking to buy a condo"})
	if sess.Node() != session.NodeQualifying {
		t.Fatalf("node = %v, want %v", sess.Node(), session.NodeQualifying)
	}
	if !sess.Confirmed(session.FieldRole) {
		t.Fatal("explicit role statement was not confirmed")
	}
	if len(actions) != 1 {
		t.Fatalf("len(actions) = %d, want 1", len(actions))
	}
	ask, ok := actions[0].(AskFieldAction)
	if !ok {
		t.Fatalf("actions[0] = %T, want AskFieldAction", actions[0])
	}
	if ask.Field != session.FieldArea {
		t.Fatalf("asked field = %v, want %v", ask.Field, session.FieldArea)
	}
}

func TestMultiSlotUtteranceAsksOneQuestion(t *testing.T) {
	m, _ := newTestMachine(t)

	// "I'd like to buy a condo downtown" fills role and area in one turn;
	// exactly one follow-up question should survive
	actions := m.ApplyTurn([]Event{
		IntentEvent{Role: RoleBuyer, Raw: "buy a condo"},
		SlotFillEvent{Field: session.FieldArea, Value: "downtown"},
	})

	asks := 0
	var lastAsk AskFieldAction
	for _, a := range actions {
		if ask, ok := a.(AskFieldAction); ok {
			asks++
			lastAsk = ask
		}
	}
	if asks != 1 {
		t.Fatalf("ask actions = %d, want 1", asks)
	}
	if lastAsk.Field != session.FieldBudget {
		t.Fatalf("asked field = %v, want %v", lastAsk.Field, session.FieldBudget)
	}
}

func TestSlotFillRequiresConfirmationRoundTrip(t *testing.T) {
	m, sess := newTestMachine(t)
	m.Apply(IntentEvent{Role: RoleBuyer, Raw: "buy"})

	m.Apply(SlotFillEvent{Field: session.FieldArea, Value: "the Plateau"})
	if sess.Confirmed(session.FieldArea) {
		t.Fatal("area confirmed before the restate round-trip")
	}

	// The next uncorrected event settles the pending confirmation
	m.Apply(SlotFillEvent{Field: session.FieldBudget, Value: "600k"})
	if !sess.Confirmed(session.FieldArea) {
		t.Fatal("area not confirmed after an uncontested restate")
	}
}

func TestCorrectionReplacesPendingValue(t *testing.T) {
	m, sess := newTestMachine(t)
	m.Apply(IntentEvent{Role: RoleBuyer, Raw: "buy"})
	m.Apply(SlotFillEvent{Field: session.FieldBudget, Value: "600k"})

	actions := m.Apply(SlotCorrectionEvent{Field: session.FieldBudget, Value: "750k"})

	f, _ := sess.Field(session.FieldBudget)
	if f.Value != "750k" {
		t.Fatalf("budget = %q, want %q", f.Value, "750k")
	}
	if f.Confirmed {
		t.Fatal("corrected value confirmed without a fresh round-trip")
	}
	if len(actions) != 1 {
		t.Fatalf("len(actions) = %d, want 1", len(actions))
	}
	if c, ok := actions[0].(ConfirmFieldAction); !ok || c.Value != "750k" {
		t.Fatalf("actions[0] = %#v, want ConfirmFieldAction restating 750k", actions[0])
	}
}

func TestBookingGateBlocksUnqualified(t *testing.T) {
	m, sess := newTestMachine(t)
	m.Apply(IntentEvent{Role: RoleBuyer, Raw: "buy"})

	m.Apply(AgreeToScheduleEvent{})
	if sess.Node() == session.NodeBooking {
		t.Fatal("reached booking with unconfirmed required fields")
	}
	if m.Qualified() {
		t.Fatal("Qualified() = true with missing fields")
	}
}

func TestQualifiedBuyerReachesBookingAndBooks(t *testing.T) {
	m, sess := newTestMachine(t)
	qualifyBuyer(m)

	if !m.Qualified() {
		t.Fatalf("Qualified() = false, fields: %v", sess.Fields())
	}
	m.Apply(AgreeToScheduleEvent{})
	if sess.Node() != session.NodeBooking {
		t.Fatalf("node = %v, want %v", sess.Node(), session.NodeBooking)
	}

	actions := m.Apply(BookingDetailsEvent{
		Details: BookingDetails{Date: "2026-09-01", Time: "2:00 PM"},
		CallID:  "call_1",
	})
	if len(actions) != 1 {
		t.Fatalf("len(actions) = %d, want 1", len(actions))
	}
	book, ok := actions[0].(BookAction)
	if !ok {
		t.Fatalf("actions[0] = %T, want BookAction", actions[0])
	}
	if book.CallID != "call_1" {
		t.Fatalf("CallID = %q, want %q", book.CallID, "call_1")
	}

	m.Apply(BookingResultEvent{Booked: true})
	if sess.Outcome() != session.OutcomeAppointmentBooked {
		t.Fatalf("outcome = %v, want %v", sess.Outcome(), session.OutcomeAppointmentBooked)
	}
	if sess.Node() != session.NodeClosing {
		t.Fatalf("node = %v, want %v", sess.Node(), session.NodeClosing)
	}
}

func TestSlotConflictOffersAlternative(t *testing.T) {
	m, sess := newTestMachine(t)
	qualifyBuyer(m)
	m.Apply(AgreeToScheduleEvent{})

	actions := m.Apply(BookingResultEvent{Conflict: true})
	if sess.Node() != session.NodeBooking {
		t.Fatalf("node = %v, want to stay in %v", sess.Node(), session.NodeBooking)
	}
	if len(actions) != 1 {
		t.Fatalf("len(actions) = %d, want 1", len(actions))
	}
	if _, ok := actions[0].(OfferScheduleAction); !ok {
		t.Fatalf("actions[0] = %T, want OfferScheduleAction", actions[0])
	}
}

func TestTransferRequestWinsOverQualification(t *testing.T) {
	m, sess := newTestMachine(t)
	m.Apply(IntentEvent{Role: RoleBuyer, Raw: "buy"})

	// Same turn: a slot fill and an explicit human request
	actions := m.ApplyTurn([]Event{
		SlotFillEvent{Field: session.FieldArea, Value: "Griffintown"},
		TransferRequestEvent{Reason: "wants to speak to Mark"},
	})

	if sess.Node() != session.NodeTransferring {
		t.Fatalf("node = %v, want %v", sess.Node(), session.NodeTransferring)
	}
	found := false
	for _, a := range actions {
		if _, ok := a.(TransferAction); ok {
			found = true
		}
	}
	if !found {
		t.Fatal("no TransferAction emitted for explicit human request")
	}
}

func TestTransferUnavailableGoesToVoicemailNotQualifying(t *testing.T) {
	m, sess := newTestMachine(t)
	m.Apply(IntentEvent{Role: RoleBuyer, Raw: "buy"})
	m.Apply(TransferRequestEvent{Reason: "urgent"})

	actions := m.Apply(TransferResultEvent{Result: TransferUnavailable})
	if sess.Node() != session.NodeVoicemail {
		t.Fatalf("node = %v, want %v", sess.Node(), session.NodeVoicemail)
	}
	hasInvite := false
	for _, a := range actions {
		if _, ok := a.(TakeVoicemailAction); ok {
			hasInvite = true
		}
	}
	if !hasInvite {
		t.Fatal("no voicemail invitation after failed transfer")
	}
}

func TestTransferConnectedSettlesOutcome(t *testing.T) {
	m, sess := newTestMachine(t)
	m.Apply(IntentEvent{Role: RoleBuyer, Raw: "buy"})
	m.Apply(TransferRequestEvent{Reason: "asked for Mark"})

	m.Apply(TransferResultEvent{Result: TransferConnected})
	if sess.Outcome() != session.OutcomeTransferred {
		t.Fatalf("outcome = %v, want %v", sess.Outcome(), session.OutcomeTransferred)
	}
}

func TestClarificationCeilingFallsBackToGeneric(t *testing.T) {
	m, sess := newTestMachine(t)

	for i := 0; i < 3; i++ {
		m.Apply(IntentEvent{Raw: "hmm"})
	}

	f, ok := sess.Field(session.FieldRole)
	if !ok || f.Value != string(RoleGeneric) {
		t.Fatalf("role field = %#v, want generic fallback", f)
	}
	if m.Role() != RoleGeneric {
		t.Fatalf("Role() = %v, want %v", m.Role(), RoleGeneric)
	}
}

func TestUrgentSellerTransfersImmediately(t *testing.T) {
	m, sess := newTestMachine(t)
	m.Apply(IntentEvent{Role: RoleSeller, Raw: "need to sell"})
	m.Apply(SlotFillEvent{Field: session.FieldAddress, Value: "4501 rue Sainte-Catherine"})

	m.Apply(SlotFillEvent{Field: session.FieldTimeline, Value: "this week, it's urgent"})
	if sess.Node() != session.NodeTransferring {
		t.Fatalf("node = %v, want %v", sess.Node(), session.NodeTransferring)
	}
}

func TestVoicemailMessageFromAnyLiveNode(t *testing.T) {
	m, sess := newTestMachine(t)
	m.Apply(IntentEvent{Role: RoleBuyer, Raw: "buy"})

	// Model offers voicemail straight from qualification
	m.Apply(VoicemailMessageEvent{Message: "Call me back about the Plateau condo", Urgency: "high"})
	if sess.Outcome() != session.OutcomeVoicemailTaken {
		t.Fatalf("outcome = %v, want %v", sess.Outcome(), session.OutcomeVoicemailTaken)
	}
	notes := sess.Notes()
	if len(notes) != 1 {
		t.Fatalf("len(notes) = %d, want 1", len(notes))
	}
}

func TestHangupBeforeQualificationIsAbandoned(t *testing.T) {
	m, sess := newTestMachine(t)
	m.Apply(IntentEvent{Role: RoleBuyer, Raw: "buy"})

	m.Apply(HangupEvent{})
	if sess.Outcome() != session.OutcomeAbandoned {
		t.Fatalf("outcome = %v, want %v", sess.Outcome(), session.OutcomeAbandoned)
	}
	if sess.Node() != session.NodeClosing {
		t.Fatalf("node = %v, want %v", sess.Node(), session.NodeClosing)
	}
}

func TestHangupAfterQualificationIsQualifiedLead(t *testing.T) {
	m, sess := newTestMachine(t)
	qualifyBuyer(m)

	m.Apply(HangupEvent{})
	if sess.Outcome() != session.OutcomeQualifiedLead {
		t.Fatalf("outcome = %v, want %v", sess.Outcome(), session.OutcomeQualifiedLead)
	}
}

func TestRecordedEventTerminatesFromClosingOnly(t *testing.T) {
	m, sess := newTestMachine(t)

	m.Apply(RecordedEvent{})
	if sess.Node() != session.NodeGreeting {
		t.Fatalf("node = %v, want %v", sess.Node(), session.NodeGreeting)
	}

	m.Apply(HangupEvent{})
	m.Apply(RecordedEvent{})
	if sess.Node() != session.NodeTerminated {
		t.Fatalf("node = %v, want %v", sess.Node(), session.NodeTerminated)
	}
}

func TestMalformedEventsAreNoOps(t *testing.T) {
	m, sess := newTestMachine(t)
	m.Apply(IntentEvent{Role: RoleBuyer, Raw: "buy"})
	before := sess.Node()

	if actions := m.Apply(SlotFillEvent{}); len(actions) != 0 {
		t.Fatalf("empty slot fill produced %d actions", len(actions))
	}
	if actions := m.Apply(nil); len(actions) != 0 {
		t.Fatalf("nil event produced %d actions", len(actions))
	}
	if sess.Node() != before {
		t.Fatalf("node changed to %v on malformed events", sess.Node())
	}
}

func TestFrenchPromptsAfterLanguageSwitch(t *testing.T) {
	m, _ := newTestMachine(t)
	m.SetResponseLanguage(session.LanguageFrench)

	actions := m.Apply(IntentEvent{Raw: "hmm"})
	if len(actions) != 1 {
		t.Fatalf("len(actions) = %d, want 1", len(actions))
	}
	say, ok := actions[0].(SayAction)
	if !ok {
		t.Fatalf("actions[0] = %T, want SayAction", actions[0])
	}
	if say.Text != promptsFR[promptClarifyRole] {
		t.Fatalf("clarification prompt = %q, want the French variant", say.Text)
	}
}
