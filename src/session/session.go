package session

import (
	"sync"
	"time"
)

// Language is the session-level language state
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageFrench  Language = "fr"
	LanguageMixed   Language = "mixed"
)

// Node is the current workflow state of a call
type Node string

const (
	NodeGreeting     Node = "greeting"
	NodeQualifying   Node = "qualifying"
	NodeBooking      Node = "booking"
	NodeTransferring Node = "transferring"
	NodeVoicemail    Node = "voicemail"
	NodeClosing      Node = "closing"
	NodeTerminated   Node = "terminated"
)

// Outcome is the termination outcome of a call
type Outcome string

const (
	OutcomeNone              Outcome = ""
	OutcomeQualifiedLead     Outcome = "qualified-lead"
	OutcomeAppointmentBooked Outcome = "appointment-booked"
	OutcomeTransferred       Outcome = "transferred"
	OutcomeVoicemailTaken    Outcome = "voicemail-taken"
	OutcomeAbandoned         Outcome = "abandoned"
)

// FieldName identifies a lead slot collected during qualification
type FieldName string

const (
	FieldCallerName FieldName = "name"
	FieldPhone      FieldName = "phone"
	FieldEmail      FieldName = "email"
	FieldRole       FieldName = "role"
	FieldArea       FieldName = "area_interest"
	FieldBudget     FieldName = "budget"
	FieldTimeline   FieldName = "timeline"
	FieldAddress    FieldName = "property_address"
	FieldNotes      FieldName = "notes"
)

// LeadField is a collected slot value. Confirmed is set only after the
// assistant restated the value and the caller did not correct it.
type LeadField struct {
	Value     string
	Confirmed bool
}

// TranscriptEntry is one ordered utterance in the call transcript
type TranscriptEntry struct {
	Speaker string // "caller" or "assistant"
	Text    string
	At      time.Time
}

// CallSession is the per-call conversational and business state. It is owned
// by the supervisor for the call's lifetime; other components hold a
// reference while the call is active.
type CallSession struct {
	CallSID    string
	FromNumber string
	CreatedAt  time.Time

	mu         sync.Mutex
	streamSID  string
	language   Language
	node       Node
	fields     map[FieldName]LeadField
	transcript []TranscriptEntry
	outcome    Outcome

	// Free-form notes accumulated during the call (voicemail message,
	// transfer context summary)
	notes []string
}

func New(callSID, fromNumber string) *CallSession {
	s := &CallSession{
		CallSID:    callSID,
		FromNumber: fromNumber,
		CreatedAt:  time.Now(),
		language:   LanguageEnglish,
		node:       NodeGreeting,
		fields:     make(map[FieldName]LeadField),
	}
	if fromNumber != "" {
		s.fields[FieldPhone] = LeadField{Value: fromNumber, Confirmed: true}
	}
	return s
}

func (s *CallSession) SetStreamSID(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamSID = sid
}

func (s *CallSession) StreamSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSID
}

func (s *CallSession) SetLanguage(lang Language) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = lang
}

func (s *CallSession) Language() Language {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

func (s *CallSession) SetNode(node Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.node = node
}

func (s *CallSession) Node() Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.node
}

// SetField records an unconfirmed slot value. Re-stating a field with a new
// value resets its confirmation.
func (s *CallSession) SetField(name FieldName, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.fields[name]
	if ok && existing.Value == value {
		return
	}
	s.fields[name] = LeadField{Value: value}
}

// ConfirmField marks a slot as confirmed after the restate round-trip
func (s *CallSession) ConfirmField(name FieldName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.fields[name]; ok {
		f.Confirmed = true
		s.fields[name] = f
	}
}

func (s *CallSession) Field(name FieldName) (LeadField, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fields[name]
	return f, ok
}

// Confirmed reports whether every named field is present and confirmed
func (s *CallSession) Confirmed(names ...FieldName) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		f, ok := s.fields[name]
		if !ok || !f.Confirmed {
			return false
		}
	}
	return true
}

// Unconfirmed returns the subset of names not yet confirmed, in order
func (s *CallSession) Unconfirmed(names ...FieldName) []FieldName {
	s.mu.Lock()
	defer s.mu.Unlock()
	var missing []FieldName
	for _, name := range names {
		f, ok := s.fields[name]
		if !ok || !f.Confirmed {
			missing = append(missing, name)
		}
	}
	return missing
}

// Fields returns a copy of the collected lead fields
func (s *CallSession) Fields() map[FieldName]LeadField {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[FieldName]LeadField, len(s.fields))
	for k, v := range s.fields {
		out[k] = v
	}
	return out
}

func (s *CallSession) AppendTranscript(speaker, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, TranscriptEntry{Speaker: speaker, Text: text, At: time.Now()})
}

func (s *CallSession) Transcript() []TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TranscriptEntry, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s *CallSession) AddNote(note string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, note)
}

func (s *CallSession) Notes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.notes))
	copy(out, s.notes)
	return out
}

func (s *CallSession) SetOutcome(outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcome = outcome
}

func (s *CallSession) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}
