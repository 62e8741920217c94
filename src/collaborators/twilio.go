package collaborators

import (
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

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

// TwilioClient sends SMS confirmations and performs warm transfers through
// the Twilio REST API
type TwilioClient struct {
	accountSID string
	authToken  string
	fromNumber string
	agentPhone string
	baseURL    string
	client     *http.Client
	log        *logger.Logger
}

// TwilioConfig holds Twilio REST client settings
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	AgentPhone string
	BaseURL    string // Defaults to the Twilio API; tests override
}

// NewTwilioClient creates a Twilio REST client
func NewTwilioClient(cfg TwilioConfig) *TwilioClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = twilioBaseURL
	}
	return &TwilioClient{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.FromNumber,
		agentPhone: cfg.AgentPhone,
		baseURL:    baseURL,
		client:     &http.Client{Timeout: 15 * time.Second},
		log:        logger.WithPrefix("Twilio"),
	}
}

func (t *TwilioClient) post(ctx context.Context, path string, form url.Values) (*http.Response, error) {
	u := fmt.Sprintf("%s/Accounts/%s%s", t.baseURL, t.accountSID, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, outcome.Transient(err)
	}
	return resp, nil
}

// SendConfirmation sends the appointment confirmation SMS
func (t *TwilioClient) SendConfirmation(ctx context.Context, toNumber, message string) error {
	form := url.Values{}
	form.Set("To", toNumber)
	form.Set("From", t.fromNumber)
	form.Set("Body", message)

	resp, err := t.post(ctx, "/Messages.json", form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("twilio sms: %s: %s", resp.Status, string(body))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return outcome.Transient(err)
		}
		return err
	}

	t.log.Info("Sent confirmation SMS to %s", toNumber)
	return nil
}

// Transfer redirects the live call to dial the agent's phone, then polls
// the dialed leg until it is answered or gives up. The caller hears hold
// context while the dial rings.
func (t *TwilioClient) Transfer(ctx context.Context, callSID, announcement string) (workflow.TransferResult, error) {
	if t.agentPhone == "" {
		return workflow.TransferUnavailable, fmt.Errorf("no agent phone configured")
	}

	twiml := fmt.Sprintf(
		`<Response><Say>%s</Say><Dial timeout="20" callerId="%s">%s</Dial></Response>`,
		xmlEscape(announcement), t.fromNumber, t.agentPhone)

	form := url.Values{}
	form.Set("Twiml", twiml)

	resp, err := t.post(ctx, "/Calls/"+callSID+".json", form)
	if err != nil {
		return workflow.TransferUnavailable, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return workflow.TransferUnavailable, fmt.Errorf("twilio redirect: %s: %s", resp.Status, string(body))
	}

	t.log.Info("Dialing agent %s for call %s", t.agentPhone, callSID)
	return t.awaitDial(ctx, callSID)
}

// awaitDial watches the child call created by the redirect's Dial verb
func (t *TwilioClient) awaitDial(ctx context.Context, parentSID string) (workflow.TransferResult, error) {
	deadline := time.NewTimer(25 * time.Second)
	defer deadline.Stop()
	tick := time.NewTicker(2 * time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return workflow.TransferTimeout, ctx.Err()
		case <-deadline.C:
			return workflow.TransferTimeout, nil
		case <-tick.C:
			status, err := t.childCallStatus(ctx, parentSID)
			if err != nil {
				t.log.Warn("Polling dial status: %v", err)
				continue
			}
			switch status {
			case "in-progress", "completed":
				return workflow.TransferConnected, nil
			case "busy", "no-answer", "failed", "canceled":
				return workflow.TransferUnavailable, nil
			}
		}
	}
}

func (t *TwilioClient) childCallStatus(ctx context.Context, parentSID string) (string, error) {
	u := fmt.Sprintf("%s/Accounts/%s/Calls.json?ParentCallSid=%s&PageSize=1",
		t.baseURL, t.accountSID, url.QueryEscape(parentSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(t.accountSID, t.authToken)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("twilio calls list: %s", resp.Status)
	}

	var list struct {
		Calls []struct {
			Status string `json:"status"`
		} `json:"calls"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return "", err
	}
	if len(list.Calls) == 0 {
		return "", nil
	}
	return list.Calls[0].Status, nil
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")
	return r.Replace(s)
}
