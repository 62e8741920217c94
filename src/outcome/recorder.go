package outcome

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/montroyal-labs/frontdesk/src/logger"
	"github.com/montroyal-labs/frontdesk/src/session"
	"github.com/montroyal-labs/frontdesk/src/workflow"
)

// Contact is the caller's contact details as gathered during the call
type Contact struct {
	Name  string
	Phone string
	Email string
}

// LeadRow is one structured CRM row, tagged with the call SID for dedup
type LeadRow struct {
	CallSID    string
	Timestamp  time.Time
	Name       string
	Phone      string
	Email      string
	Type       string
	Area       string
	Budget     string
	Timeline   string
	Address    string
	Notes      string
	NextAction string
	Status     string
}

// AppointmentRow is one confirmed-appointment row for the Appointments
// worksheet, mirroring the booking the calendar hold was created for
type AppointmentRow struct {
	CallSID   string
	Timestamp time.Time
	Name      string
	Phone     string
	Email     string
	Purpose   string
	Date      string
	Time      string
	Location  string
	EventID   string
	Status    string
}

// Calendar creates appointment holds. CreateHold must be idempotent with
// respect to dedupKey: repeating a call with the same key never creates a
// second event.
type Calendar interface {
	CreateHold(ctx context.Context, dedupKey string, details workflow.BookingDetails, contact Contact) (string, error)
	Availability(ctx context.Context, date string) ([]string, error)
}

// Notifier sends the appointment confirmation message
type Notifier interface {
	SendConfirmation(ctx context.Context, toNumber, message string) error
}

// CRMLog appends lead and appointment rows. Append-only; rows carry the
// call SID so the collaborator side can dedup.
type CRMLog interface {
	AppendRow(ctx context.Context, row LeadRow) error
	AppendAppointment(ctx context.Context, row AppointmentRow) error
}

// RetryPolicy bounds collaborator retries
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the default bounded exponential backoff
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// Result reports what Record accomplished for a session
type Result struct {
	Outcome  session.Outcome
	Degraded bool     // Some side effect exhausted retries; manual follow-up needed
	Pending  []string // Sub-outcomes that could not be completed
}

// record tracks which sub-outcomes already succeeded for a call, so a
// retry after a crash or a second Record call repeats nothing
type record struct {
	holdID   string
	details  workflow.BookingDetails
	holdDone bool
	smsDone  bool
	apptDone bool
	crmDone  bool
}

// Recorder translates a terminated session's final state into collaborator
// side effects. Safe for concurrent use across calls; per-call state is
// keyed by call SID.
type Recorder struct {
	calendar Calendar
	notifier Notifier
	crm      CRMLog
	policy   RetryPolicy
	log      *logger.Logger

	mu      sync.Mutex
	records map[string]*record
}

// NewRecorder creates a recorder over the three side-effect collaborators
func NewRecorder(calendar Calendar, notifier Notifier, crm CRMLog, policy RetryPolicy) *Recorder {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	return &Recorder{
		calendar: calendar,
		notifier: notifier,
		crm:      crm,
		policy:   policy,
		log:      logger.WithPrefix("OutcomeRecorder"),
		records:  make(map[string]*record),
	}
}

// holdKey derives a deterministic dedup key for a call's calendar hold
func holdKey(callSID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("hold:"+callSID)).String()
}

// BookAppointment creates the calendar hold during the call, so the caller
// can be told immediately whether the slot worked. The sub-outcome is
// tracked: a later Record will not create a second hold.
func (r *Recorder) BookAppointment(ctx context.Context, sess *session.CallSession, details workflow.BookingDetails) error {
	rec := r.recordFor(sess.CallSID)

	r.mu.Lock()
	done := rec.holdDone
	r.mu.Unlock()
	if done {
		return nil
	}

	contact := contactFor(sess)
	var holdID string
	err := r.attempt(ctx, "calendar hold", func(ctx context.Context) error {
		var err error
		holdID, err = r.calendar.CreateHold(ctx, holdKey(sess.CallSID), details, contact)
		return err
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	rec.holdID = holdID
	rec.details = details
	rec.holdDone = true
	r.mu.Unlock()

	sess.AddNote(fmt.Sprintf("Appointment: %s %s (%s) at %s", details.Date, details.Time, details.Purpose, details.Location))
	return nil
}

// Availability lists open slots for a date, with the same retry policy
func (r *Recorder) Availability(ctx context.Context, date string) ([]string, error) {
	var slots []string
	err := r.attempt(ctx, "calendar availability", func(ctx context.Context) error {
		var err error
		slots, err = r.calendar.Availability(ctx, date)
		return err
	})
	return slots, err
}

// Record flushes a terminating session's remaining side effects. Invoked
// once per session at Closing; calling it again (retry after crash) only
// repeats the sub-outcomes that have not succeeded. A lead is never
// silently dropped: exhausted retries yield a degraded result surfaced for
// manual follow-up.
func (r *Recorder) Record(ctx context.Context, sess *session.CallSession) Result {
	res := Result{Outcome: sess.Outcome()}
	rec := r.recordFor(sess.CallSID)
	log := r.log.WithCall(sess.CallSID)

	type step struct {
		name string
		done func() bool
		run  func(context.Context) error
		mark func()
	}

	var steps []step

	if sess.Outcome() == session.OutcomeAppointmentBooked {
		steps = append(steps,
			step{
				name: "calendar hold",
				done: func() bool { return rec.holdDone },
				run: func(ctx context.Context) error {
					details, ok := bookingFromNotes(sess)
					if !ok {
						return fmt.Errorf("booked outcome without booking details")
					}
					holdID, err := r.calendar.CreateHold(ctx, holdKey(sess.CallSID), details, contactFor(sess))
					if err == nil {
						rec.holdID = holdID
						rec.details = details
					}
					return err
				},
				mark: func() { rec.holdDone = true },
			},
			step{
				name: "sms confirmation",
				done: func() bool { return rec.smsDone },
				run: func(ctx context.Context) error {
					contact := contactFor(sess)
					if contact.Phone == "" {
						return nil
					}
					return r.notifier.SendConfirmation(ctx, contact.Phone, confirmationMessage(sess))
				},
				mark: func() { rec.smsDone = true },
			},
			step{
				name: "appointments row",
				done: func() bool { return rec.apptDone },
				run: func(ctx context.Context) error {
					return r.crm.AppendAppointment(ctx, appointmentRowFor(sess, rec))
				},
				mark: func() { rec.apptDone = true },
			},
		)
	}

	// Every terminal outcome leaves a CRM trace except an abandoned call
	// from an anonymous caller
	if sess.Outcome() != session.OutcomeAbandoned || contactFor(sess).Name != "" {
		steps = append(steps, step{
			name: "crm row",
			done: func() bool { return rec.crmDone },
			run: func(ctx context.Context) error {
				return r.crm.AppendRow(ctx, leadRowFor(sess))
			},
			mark: func() { rec.crmDone = true },
		})
	}

	for _, s := range steps {
		r.mu.Lock()
		done := s.done()
		r.mu.Unlock()
		if done {
			continue
		}

		// Recording outlives the session's context: a hangup or teardown
		// must not abort the flush, only the per-attempt timeout bounds it
		if err := r.attempt(context.WithoutCancel(ctx), s.name, s.run); err != nil {
			log.Error("%s failed permanently: %v", s.name, err)
			res.Degraded = true
			res.Pending = append(res.Pending, s.name)
			continue
		}

		r.mu.Lock()
		s.mark()
		r.mu.Unlock()
	}

	if res.Degraded {
		log.Warn("Outcome degraded, manual follow-up required: %s", strings.Join(res.Pending, ", "))
	} else {
		log.Info("Outcome %s recorded", res.Outcome)
	}
	return res
}

// Forget drops the per-call dedup record after the session is evicted
func (r *Recorder) Forget(callSID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, callSID)
}

func (r *Recorder) recordFor(callSID string) *record {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[callSID]
	if !ok {
		rec = &record{}
		r.records[callSID] = rec
	}
	return rec
}

// attempt runs fn with bounded exponential backoff. Transient failures are
// retried up to the policy ceiling; permanent failures surface immediately.
func (r *Recorder) attempt(ctx context.Context, name string, fn func(context.Context) error) error {
	delay := r.policy.BaseDelay
	var lastErr error

	for i := 0; i < r.policy.MaxAttempts; i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err
		if !IsTransient(err) {
			return err
		}

		r.log.Warn("%s attempt %d/%d failed: %v", name, i+1, r.policy.MaxAttempts, err)

		if i == r.policy.MaxAttempts-1 {
			break
		}

		jitter := time.Duration(rand.Int63n(int64(delay) / 2))
		select {
		case <-time.After(delay + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > r.policy.MaxDelay {
			delay = r.policy.MaxDelay
		}
	}
	return fmt.Errorf("%s: retries exhausted: %w", name, lastErr)
}

func contactFor(sess *session.CallSession) Contact {
	c := Contact{Phone: sess.FromNumber}
	if f, ok := sess.Field(session.FieldCallerName); ok {
		c.Name = f.Value
	}
	if f, ok := sess.Field(session.FieldPhone); ok && f.Value != "" {
		c.Phone = f.Value
	}
	if f, ok := sess.Field(session.FieldEmail); ok {
		c.Email = f.Value
	}
	return c
}

func fieldValue(sess *session.CallSession, name session.FieldName) string {
	if f, ok := sess.Field(name); ok {
		return f.Value
	}
	return ""
}

func leadRowFor(sess *session.CallSession) LeadRow {
	notes := append([]string{}, sess.Notes()...)
	nextAction := ""
	switch sess.Outcome() {
	case session.OutcomeQualifiedLead:
		nextAction = "Call back to book"
	case session.OutcomeTransferred:
		nextAction = "Transferred live; follow up as needed"
	case session.OutcomeVoicemailTaken:
		nextAction = "Callback requested within 2 hours"
	case session.OutcomeAbandoned:
		nextAction = "Call ended early; call back to qualify"
	}

	return LeadRow{
		CallSID:    sess.CallSID,
		Timestamp:  time.Now(),
		Name:       fieldValue(sess, session.FieldCallerName),
		Phone:      contactFor(sess).Phone,
		Email:      fieldValue(sess, session.FieldEmail),
		Type:       fieldValue(sess, session.FieldRole),
		Area:       fieldValue(sess, session.FieldArea),
		Budget:     fieldValue(sess, session.FieldBudget),
		Timeline:   fieldValue(sess, session.FieldTimeline),
		Address:    fieldValue(sess, session.FieldAddress),
		Notes:      strings.Join(notes, " | "),
		NextAction: nextAction,
		Status:     "New",
	}
}

func appointmentRowFor(sess *session.CallSession, rec *record) AppointmentRow {
	contact := contactFor(sess)
	return AppointmentRow{
		CallSID:   sess.CallSID,
		Timestamp: time.Now(),
		Name:      contact.Name,
		Phone:     contact.Phone,
		Email:     contact.Email,
		Purpose:   rec.details.Purpose,
		Date:      rec.details.Date,
		Time:      rec.details.Time,
		Location:  rec.details.Location,
		EventID:   rec.holdID,
		Status:    "Confirmed",
	}
}

func confirmationMessage(sess *session.CallSession) string {
	for _, note := range sess.Notes() {
		if strings.HasPrefix(note, "Appointment: ") {
			return fmt.Sprintf("Confirmed: %s with Mark Esposito. Mark will contact you shortly. -BHHS Québec",
				strings.TrimPrefix(note, "Appointment: "))
		}
	}
	return "Your appointment with Mark Esposito is confirmed. -BHHS Québec"
}

// bookingFromNotes reconstructs booking details when Record has to create
// the hold itself (the in-call attempt never ran or never succeeded)
func bookingFromNotes(sess *session.CallSession) (workflow.BookingDetails, bool) {
	for _, note := range sess.Notes() {
		if !strings.HasPrefix(note, "Appointment: ") {
			continue
		}
		// Note shape: "Appointment: DATE TIME (PURPOSE) at LOCATION".
		// TIME may contain a space ("2:00 PM"), so split on the paren first.
		rest := strings.TrimPrefix(note, "Appointment: ")
		when, extra, _ := strings.Cut(rest, " (")
		date, timeOfDay, ok := strings.Cut(when, " ")
		if !ok {
			continue
		}
		d := workflow.BookingDetails{Date: date, Time: timeOfDay, Purpose: "Consultation"}
		if purpose, loc, found := strings.Cut(extra, ") at "); found {
			d.Purpose = purpose
			d.Location = loc
		}
		return d, true
	}
	return workflow.BookingDetails{}, false
}
