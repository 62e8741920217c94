package collaborators

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials"

	"github.com/montroyal-labs/frontdesk/src/outcome"
)

const (
	calendarScope = "https://www.googleapis.com/auth/calendar"
	sheetsScope   = "https://www.googleapis.com/auth/spreadsheets"
)

// googleAuth wraps detected Google credentials and stamps bearer tokens
// onto outgoing REST requests. Shared by the calendar and sheets clients.
type googleAuth struct {
	creds  *auth.Credentials
	client *http.Client
}

// newGoogleAuth detects credentials from the given service-account JSON,
// or from the ambient environment when the JSON is empty
func newGoogleAuth(credentialsJSON string) (*googleAuth, error) {
	opts := &credentials.DetectOptions{
		Scopes: []string{calendarScope, sheetsScope},
	}
	if credentialsJSON != "" {
		opts.CredentialsJSON = []byte(credentialsJSON)
	}
	creds, err := credentials.DetectDefault(opts)
	if err != nil {
		return nil, fmt.Errorf("detecting google credentials: %w", err)
	}
	return &googleAuth{
		creds:  creds,
		client: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// do issues an authenticated request and maps transport and server-side
// failures to the recorder's transient/permanent split
func (g *googleAuth) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	token, err := g.creds.Token(ctx)
	if err != nil {
		return nil, outcome.Transient(fmt.Errorf("fetching google token: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)

	resp, err := g.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, outcome.Transient(err)
	}
	return resp, nil
}

// drainError reads the response body into an error, marking retryable
// statuses as transient
func drainError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	err := fmt.Errorf("google api: %s: %s", resp.Status, string(body))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return outcome.Transient(err)
	}
	return err
}
