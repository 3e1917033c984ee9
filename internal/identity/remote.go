package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const remoteHTTPTimeout = 10 * time.Second

// RemoteVerifier talks to the external identity service over its REST
// contract: session establishment, account creation, sign-out, and
// out-of-band password-reset codes.
type RemoteVerifier struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Verifier = (*RemoteVerifier)(nil)

// NewRemoteVerifier creates a client for the identity service at
// baseURL, authenticating with apiKey.
func NewRemoteVerifier(baseURL, apiKey string) *RemoteVerifier {
	return &RemoteVerifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: remoteHTTPTimeout},
	}
}

// SetHTTPClient overrides the HTTP client (useful for testing).
func (v *RemoteVerifier) SetHTTPClient(c *http.Client) {
	v.httpClient = c
}

type principalPayload struct {
	PrincipalID string `json:"principalId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photoUrl,omitempty"`
}

func (p principalPayload) toPrincipal() *Principal {
	return &Principal{
		ID:       p.PrincipalID,
		Name:     p.DisplayName,
		Email:    p.Email,
		PhotoURL: p.PhotoURL,
	}
}

func (v *RemoteVerifier) Verify(ctx context.Context, email, password string) (*Principal, error) {
	var out principalPayload
	err := v.post(ctx, "/v1/sessions", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.toPrincipal(), nil
}

func (v *RemoteVerifier) CreateAccount(ctx context.Context, name, email, password string) (*Principal, error) {
	var out principalPayload
	err := v.post(ctx, "/v1/accounts", map[string]string{
		"displayName": name,
		"email":       email,
		"password":    password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.toPrincipal(), nil
}

func (v *RemoteVerifier) SignOut(ctx context.Context, principalID string) error {
	return v.post(ctx, "/v1/sessions/revoke", map[string]string{
		"principalId": principalID,
	}, nil)
}

func (v *RemoteVerifier) IssueResetCode(ctx context.Context, email string) (string, error) {
	var out struct {
		OOBCode string `json:"oobCode"`
	}
	err := v.post(ctx, "/v1/reset-codes", map[string]string{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.OOBCode, nil
}

func (v *RemoteVerifier) ConfirmReset(ctx context.Context, oobCode, newPassword string) error {
	err := v.post(ctx, "/v1/reset-codes/confirm", map[string]string{
		"oobCode":     oobCode,
		"newPassword": newPassword,
	}, nil)
	if err != nil && strings.Contains(err.Error(), "status 400") {
		return ErrResetCodeInvalid
	}
	return err
}

func (v *RemoteVerifier) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("identity: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("identity: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", v.apiKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity: call %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("identity: read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrInvalidCredentials
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("identity: %s returned status %d: %s", path, resp.StatusCode, truncate(respBody, 200))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("identity: decode response: %w", err)
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
