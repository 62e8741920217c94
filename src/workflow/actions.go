package workflow

import "github.com/montroyal-labs/frontdesk/src/session"

// Action is an instruction the machine emits for the supervisor to carry
// out: speak a prompt via the model leg, or trigger a collaborator side
// effect.
type Action interface {
	action()
}

// SayAction speaks a prompt (clarification, recovery, voicemail invite)
type SayAction struct {
	Text string
}

// AskFieldAction asks the caller for the next unconfirmed lead field
type AskFieldAction struct {
	Field session.FieldName
}

// ConfirmFieldAction restates a collected value so the caller can correct
// it; the field is confirmed if no correction arrives in the same turn
type ConfirmFieldAction struct {
	Field session.FieldName
	Value string
}

// OfferScheduleAction proposes moving to an appointment once qualification
// is complete
type OfferScheduleAction struct{}

// BookAction asks the recorder to create a calendar hold for the chosen
// slot. CallID is echoed back to the model with the result.
type BookAction struct {
	Details BookingDetails
	CallID  string
}

// TransferAction hands the live call to the agent with gathered context
type TransferAction struct {
	Reason  string
	Context string
}

// TakeVoicemailAction invites the caller to leave a message
type TakeVoicemailAction struct{}

// CloseAction speaks a closing remark and moves the session to outcome
// recording. Callers always get a graceful close, even on internal failure.
type CloseAction struct {
	Remark string
}

func (SayAction) action()           {}
func (AskFieldAction) action()      {}
func (ConfirmFieldAction) action()  {}
func (OfferScheduleAction) action() {}
func (BookAction) action()          {}
func (TransferAction) action()      {}
func (TakeVoicemailAction) action() {}
func (CloseAction) action()         {}
