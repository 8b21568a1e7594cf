// Package twilio is the Call Control Service client: it places the outbound
// call and redirects it to new control markup mid-flight.
package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appconfig "github.com/tiger/ivr-autopilot/internal/config"
)

// DefaultBaseURL is the Twilio REST API base.
const DefaultBaseURL = "https://api.twilio.com/2010-04-01"

// Config controls client construction.
type Config struct {
	AccountSID string
	AuthToken  string
	BaseURL    string
	Timeout    time.Duration
}

// ConfigFromEnv resolves client settings from the environment. The auth
// token supports secret-ref indirection via IVRNAV_TWILIO_AUTH_TOKEN_REF.
func ConfigFromEnv() Config {
	return Config{
		AccountSID: appconfig.ResolveEnvValue("IVRNAV_TWILIO_ACCOUNT_SID", "IVRNAV_TWILIO_ACCOUNT_SID_REF", ""),
		AuthToken:  appconfig.ResolveEnvValue("IVRNAV_TWILIO_AUTH_TOKEN", "IVRNAV_TWILIO_AUTH_TOKEN_REF", ""),
		BaseURL:    appconfig.ResolveEnvValue("IVRNAV_TWILIO_BASE_URL", "", DefaultBaseURL),
		Timeout:    15 * time.Second,
	}
}

// Client is a thin REST client over the calls resource.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient validates credentials and applies defaults.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" {
		return nil, fmt.Errorf("twilio account sid is required")
	}
	if strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, fmt.Errorf("twilio auth token is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type callResource struct {
	Sid     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// CreateCall starts an outbound call and returns the provider call sid. The
// provider fetches controlURL for the initial markup once the call answers.
func (c *Client) CreateCall(ctx context.Context, from, to, controlURL string) (string, error) {
	if from == "" || to == "" || controlURL == "" {
		return "", fmt.Errorf("from, to, and control url are required")
	}
	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Url", controlURL)
	form.Set("Method", http.MethodPost)

	resource, err := c.postForm(ctx, fmt.Sprintf("%s/Accounts/%s/Calls.json", c.cfg.BaseURL, c.cfg.AccountSID), form)
	if err != nil {
		return "", fmt.Errorf("create call: %w", err)
	}
	if resource.Sid == "" {
		return "", fmt.Errorf("create call: response carries no call sid")
	}
	return resource.Sid, nil
}

// UpdateCall redirects an in-progress call to new control markup.
func (c *Client) UpdateCall(ctx context.Context, callID, controlURL, method string) error {
	if callID == "" || controlURL == "" {
		return fmt.Errorf("call_id and control url are required")
	}
	if method == "" {
		method = http.MethodPost
	}
	form := url.Values{}
	form.Set("Url", controlURL)
	form.Set("Method", method)

	if _, err := c.postForm(ctx, fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", c.cfg.BaseURL, c.cfg.AccountSID, callID), form); err != nil {
		return fmt.Errorf("update call %s: %w", callID, err)
	}
	return nil
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) (callResource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return callResource{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return callResource{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return callResource{}, err
	}
	var resource callResource
	if len(body) > 0 {
		// Error bodies share the resource envelope; decode failures only
		// matter on success responses.
		if err := json.Unmarshal(body, &resource); err != nil && resp.StatusCode < 300 {
			return callResource{}, fmt.Errorf("decode response: %w", err)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resource.Message != "" {
			return callResource{}, fmt.Errorf("status %d: %s (code %d)", resp.StatusCode, resource.Message, resource.Code)
		}
		return callResource{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	return resource, nil
}
