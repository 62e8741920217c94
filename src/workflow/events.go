package workflow

import "github.com/montroyal-labs/frontdesk/src/session"

// Role is the caller's detected intent category. Required qualification
// fields depend on it.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleSeller   Role = "seller"
	RoleRenter   Role = "renter"
	RoleInvestor Role = "investor"
	// RoleGeneric is the fallback path taken after clarification attempts
	// on an ambiguous role are exhausted
	RoleGeneric Role = "generic"
)

// RequiredFields returns the lead fields that must be confirmed before a
// session of the given role can move to booking. Contact details are asked
// last; the caller's number is usually pre-filled from caller ID.
func RequiredFields(role Role) []session.FieldName {
	switch role {
	case RoleBuyer, RoleRenter:
		return []session.FieldName{
			session.FieldRole, session.FieldArea, session.FieldBudget,
			session.FieldTimeline, session.FieldCallerName, session.FieldPhone,
		}
	case RoleSeller:
		return []session.FieldName{
			session.FieldRole, session.FieldAddress, session.FieldTimeline,
			session.FieldCallerName, session.FieldPhone,
		}
	case RoleInvestor:
		return []session.FieldName{
			session.FieldRole, session.FieldArea, session.FieldBudget,
			session.FieldCallerName, session.FieldPhone,
		}
	default:
		return []session.FieldName{
			session.FieldCallerName, session.FieldPhone, session.FieldNotes,
		}
	}
}

// Event is a structured signal consumed by the state machine. The machine
// only reacts to explicit, well-formed events; anything else is a no-op.
type Event interface {
	event()
}

// IntentEvent reports a recognized caller intent. Role is empty when the
// role signal itself was ambiguous.
type IntentEvent struct {
	Role Role
	Raw  string
}

// SlotFillEvent reports that a lead field was stated by the caller
type SlotFillEvent struct {
	Field session.FieldName
	Value string
}

// SlotCorrectionEvent reports the caller corrected a restated value within
// the same turn, which cancels the field's pending confirmation
type SlotCorrectionEvent struct {
	Field session.FieldName
	Value string
}

// TransferRequestEvent reports the caller explicitly asked for a human
type TransferRequestEvent struct {
	Reason string
}

// AgreeToScheduleEvent reports the caller agreed to book an appointment
type AgreeToScheduleEvent struct{}

// BookingDetails is the transient appointment request between the machine
// producing a booking intent and the recorder confirming it
type BookingDetails struct {
	Date     string // YYYY-MM-DD
	Time     string // HH:MM AM/PM
	Purpose  string
	Location string
}

// BookingDetailsEvent carries a concrete slot chosen by the caller. CallID
// identifies the model tool call awaiting the booking result.
type BookingDetailsEvent struct {
	Details BookingDetails
	CallID  string
}

// BookingResultEvent reports the calendar collaborator's answer
type BookingResultEvent struct {
	Booked   bool
	Conflict bool // slot conflict: offer an alternative rather than fail
}

// TransferResult is the transfer collaborator's answer
type TransferResult int

const (
	TransferConnected TransferResult = iota
	TransferUnavailable
	TransferTimeout
)

// TransferResultEvent reports the outcome of a transfer attempt
type TransferResultEvent struct {
	Result TransferResult
}

// VoicemailMessageEvent carries a recorded message for callback
type VoicemailMessageEvent struct {
	Message string
	Urgency string
}

// HangupEvent reports the caller hung up or used an end-of-call phrase
type HangupEvent struct{}

// LegFailureEvent reports an unrecoverable leg failure; the call ends
type LegFailureEvent struct {
	Err error
}

// ModelTimeoutEvent reports the model leg did not respond to a caller
// utterance within the allowed time
type ModelTimeoutEvent struct{}

// RecordedEvent reports the outcome recorder finished (durably dispatched
// or exhausted retries); the only trigger for Closing -> Terminated
type RecordedEvent struct{}

func (IntentEvent) event()           {}
func (SlotFillEvent) event()         {}
func (SlotCorrectionEvent) event()   {}
func (TransferRequestEvent) event()  {}
func (AgreeToScheduleEvent) event()  {}
func (BookingDetailsEvent) event()   {}
func (BookingResultEvent) event()    {}
func (TransferResultEvent) event()   {}
func (VoicemailMessageEvent) event() {}
func (HangupEvent) event()           {}
func (LegFailureEvent) event()       {}
func (ModelTimeoutEvent) event()     {}
func (RecordedEvent) event()         {}
