package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/montroyal-labs/frontdesk/src/logger"
	"github.com/montroyal-labs/frontdesk/src/outcome"
	"github.com/montroyal-labs/frontdesk/src/workflow"
)

const calendarBaseURL = "https://www.googleapis.com/calendar/v3"

// Business hours offered to callers when a requested slot is taken
var defaultSlots = []string{"10:00 AM", "11:00 AM", "1:00 PM", "2:00 PM", "3:00 PM", "4:00 PM"}

// CalendarClient books consultation holds on the agent's Google Calendar
type CalendarClient struct {
	auth       *googleAuth
	calendarID string
	agentEmail string
	baseURL    string
	log        *logger.Logger
}

// CalendarConfig holds calendar client settings
type CalendarConfig struct {
	CredentialsJSON string
	CalendarID      string
	AgentEmail      string
	BaseURL         string // Defaults to the Google Calendar API; tests override
}

// NewCalendarClient creates a calendar client for the configured calendar
func NewCalendarClient(cfg CalendarConfig) (*CalendarClient, error) {
	ga, err := newGoogleAuth(cfg.CredentialsJSON)
	if err != nil {
		return nil, err
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = calendarBaseURL
	}
	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	return &CalendarClient{
		auth:       ga,
		calendarID: calendarID,
		agentEmail: cfg.AgentEmail,
		baseURL:    baseURL,
		log:        logger.WithPrefix("Calendar"),
	}, nil
}

type calendarEvent struct {
	ID          string         `json:"id,omitempty"`
	Summary     string         `json:"summary"`
	Description string         `json:"description,omitempty"`
	Location    string         `json:"location,omitempty"`
	Start       *calendarTime  `json:"start,omitempty"`
	End         *calendarTime  `json:"end,omitempty"`
	Attendees   []attendeeInfo `json:"attendees,omitempty"`
}

type calendarTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type attendeeInfo struct {
	Email string `json:"email"`
}

// eventID turns a dedup key into a Calendar-legal event ID. The API only
// accepts base32hex characters, which the key's hex digits satisfy once
// the hyphens are stripped.
func eventID(dedupKey string) string {
	return strings.ReplaceAll(dedupKey, "-", "")
}

// CreateHold inserts a one-hour hold event with a client-chosen ID derived
// from the dedup key. A repeat insert with the same key gets a duplicate
// answer from the API and is treated as success, which makes the operation
// safe to retry.
func (c *CalendarClient) CreateHold(ctx context.Context, dedupKey string, details workflow.BookingDetails, contact outcome.Contact) (string, error) {
	start, err := parseSlot(details.Date, details.Time)
	if err != nil {
		return "", fmt.Errorf("%w: %v", outcome.ErrSlotConflict, err)
	}

	id := eventID(dedupKey)
	summary := fmt.Sprintf("%s - %s", details.Purpose, contact.Name)
	if contact.Name == "" {
		summary = details.Purpose
	}
	ev := calendarEvent{
		ID:          id,
		Summary:     summary,
		Description: fmt.Sprintf("Booked by AI receptionist.\nCaller: %s\nPhone: %s", contact.Name, contact.Phone),
		Location:    details.Location,
		Start:       &calendarTime{DateTime: start.Format(time.RFC3339), TimeZone: "America/Toronto"},
		End:         &calendarTime{DateTime: start.Add(time.Hour).Format(time.RFC3339), TimeZone: "America/Toronto"},
	}
	if contact.Email != "" {
		ev.Attendees = append(ev.Attendees, attendeeInfo{Email: contact.Email})
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}

	u := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, url.PathEscape(c.calendarID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.auth.do(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		// A duplicate ID means this hold was already created by an earlier
		// attempt; anything else on 409 is a genuine slot rejection
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if strings.Contains(string(respBody), "duplicate") {
			c.log.Debug("Hold %s already exists", id)
			return id, nil
		}
		return "", fmt.Errorf("%w: %s %s", outcome.ErrSlotConflict, details.Date, details.Time)
	case resp.StatusCode >= 400:
		return "", drainError(resp)
	}

	c.log.Info("Created hold %s for %s %s", id, details.Date, details.Time)
	return id, nil
}

// Availability returns the open slots on a date, checking each business
// hour against existing events
func (c *CalendarClient) Availability(ctx context.Context, date string) ([]string, error) {
	day, err := time.ParseInLocation("2006-01-02", date, montrealTZ())
	if err != nil {
		return nil, fmt.Errorf("bad date %q: %v", date, err)
	}

	u := fmt.Sprintf("%s/calendars/%s/events?timeMin=%s&timeMax=%s&singleEvents=true",
		c.baseURL, url.PathEscape(c.calendarID),
		url.QueryEscape(day.Format(time.RFC3339)),
		url.QueryEscape(day.Add(24*time.Hour).Format(time.RFC3339)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.auth.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, drainError(resp)
	}

	var list struct {
		Items []struct {
			Start *calendarTime `json:"start"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, outcome.Transient(err)
	}

	taken := make(map[string]bool)
	for _, item := range list.Items {
		if item.Start == nil {
			continue
		}
		if t, err := time.Parse(time.RFC3339, item.Start.DateTime); err == nil {
			taken[t.In(montrealTZ()).Format("3:04 PM")] = true
		}
	}

	var open []string
	for _, slot := range defaultSlots {
		if !taken[slot] {
			open = append(open, slot)
		}
	}
	return open, nil
}

// parseSlot combines a date and a spoken time into a concrete start moment
func parseSlot(date, clock string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 3:04 PM", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, date+" "+clock, montrealTZ()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable slot %q %q", date, clock)
}

func montrealTZ() *time.Location {
	if loc, err := time.LoadLocation("America/Toronto"); err == nil {
		return loc
	}
	return time.UTC
}
