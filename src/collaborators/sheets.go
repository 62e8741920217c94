package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/montroyal-labs/frontdesk/src/logger"
	"github.com/montroyal-labs/frontdesk/src/outcome"
)

const sheetsBaseURL = "https://sheets.googleapis.com/v4"

// SheetsClient appends lead rows to the CRM spreadsheet
type SheetsClient struct {
	auth    *googleAuth
	sheetID string
	baseURL string
	log     *logger.Logger
}

// SheetsConfig holds sheets client settings
type SheetsConfig struct {
	CredentialsJSON string
	SheetID         string
	BaseURL         string // Defaults to the Google Sheets API; tests override
}

// NewSheetsClient creates a sheets client for the configured spreadsheet
func NewSheetsClient(cfg SheetsConfig) (*SheetsClient, error) {
	ga, err := newGoogleAuth(cfg.CredentialsJSON)
	if err != nil {
		return nil, err
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sheetsBaseURL
	}
	return &SheetsClient{
		auth:    ga,
		sheetID: cfg.SheetID,
		baseURL: baseURL,
		log:     logger.WithPrefix("Sheets"),
	}, nil
}

// AppendRow appends one lead row to the Leads sheet. The row carries the
// call SID in its last column so duplicate appends can be reconciled.
func (s *SheetsClient) AppendRow(ctx context.Context, row outcome.LeadRow) error {
	values := []string{
		row.Timestamp.Format(time.RFC3339),
		row.Name,
		row.Phone,
		row.Email,
		row.Type,
		row.Area,
		row.Budget,
		row.Timeline,
		row.Address,
		row.Notes,
		row.NextAction,
		"AI Receptionist",
		row.Status,
		row.CallSID,
	}
	if err := s.append(ctx, "Leads!A:N", values); err != nil {
		return err
	}
	s.log.Info("Appended lead row for call %s", row.CallSID)
	return nil
}

// AppendAppointment appends one confirmed appointment to the Appointments
// sheet, mirroring the calendar hold
func (s *SheetsClient) AppendAppointment(ctx context.Context, row outcome.AppointmentRow) error {
	values := []string{
		row.Timestamp.Format(time.RFC3339),
		row.Name,
		row.Phone,
		row.Email,
		row.Purpose,
		row.Date,
		row.Time,
		row.Location,
		row.EventID,
		row.Status,
		row.CallSID,
	}
	if err := s.append(ctx, "Appointments!A:K", values); err != nil {
		return err
	}
	s.log.Info("Appended appointment row for call %s", row.CallSID)
	return nil
}

func (s *SheetsClient) append(ctx context.Context, rangeName string, values []string) error {
	body, err := json.Marshal(map[string]any{"values": [][]string{values}})
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/spreadsheets/%s/values/%s:append?valueInputOption=USER_ENTERED",
		s.baseURL, url.PathEscape(s.sheetID), url.PathEscape(rangeName))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.auth.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return drainError(resp)
	}
	return nil
}
