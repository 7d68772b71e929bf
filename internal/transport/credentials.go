package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/fitfighter/rigbridge/internal/logging"
)

// Credentials are the short-lived username/password pair used to open the
// broker session. Consumed once per connection attempt.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CredentialsProvider fetches connection credentials scoped to a rig.
type CredentialsProvider interface {
	Credentials(ctx context.Context, rigID string) (Credentials, error)
}

// CredentialError marks a failed credential fetch. It is terminal for the
// connection attempt it belongs to; the session does not retry it on its
// own.
type CredentialError struct {
	RigID string
	Err   error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("fetch credentials for rig %s: %v", e.RigID, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// StaticCredentials is a CredentialsProvider returning a fixed pair, used
// by the bridge itself (its account comes from the environment).
type StaticCredentials Credentials

func (s StaticCredentials) Credentials(context.Context, string) (Credentials, error) {
	return Credentials(s), nil
}

// HTTPCredentials fetches credentials from a bridge token endpoint
// (GET {endpoint}?rigId=...), the exchange the browser client performs
// before opening its own session.
type HTTPCredentials struct {
	Endpoint string
	Client   *http.Client
}

func (h *HTTPCredentials) Credentials(ctx context.Context, rigID string) (Credentials, error) {
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	endpoint := h.Endpoint + "?rigId=" + url.QueryEscape(rigID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Credentials{}, logging.WrapError(err, "build token request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return Credentials{}, logging.WrapError(err, "token request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Credentials{}, fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var creds Credentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return Credentials{}, logging.WrapError(err, "decode token response")
	}
	return creds, nil
}
