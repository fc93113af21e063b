// ABOUTME: Upstream session client for the Monarch Money API
// ABOUTME: REST login with optional TOTP derivation, then GraphQL calls with a single 401 retry

package monarch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/2389/monarch-gateway/internal/auth"
)

const (
	loginPath   = "/auth/login/"
	graphqlPath = "/graphql"

	// clientPlatform is sent on every upstream request; the API expects it.
	clientPlatform = "web"
)

// Config holds the settings for one session client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client owns exactly one authenticated upstream session. It is
// request-scoped: the token obtained here lives only as long as the
// instance and is never persisted or shared. Not safe for concurrent use;
// each inbound request builds its own.
type Client struct {
	baseURL string
	http    *http.Client
	creds   *auth.Credentials
	logger  *slog.Logger

	token string
}

// New creates a session client for one set of credentials.
func New(cfg Config, creds *auth.Credentials) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		creds:   creds,
		logger:  logger,
	}
}

// loginRequest is the upstream login body. supports_mfa and trusted_device
// are part of the endpoint's contract and always sent.
type loginRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	SupportsMFA   bool   `json:"supports_mfa"`
	TrustedDevice bool   `json:"trusted_device"`
	TOTP          string `json:"totp,omitempty"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login authenticates against the upstream REST endpoint and stores the
// returned bearer token. When the credentials carry an MFA seed, the
// current one-time code is derived from it; the seed wins over any raw
// caller-supplied code.
func (c *Client) Login(ctx context.Context) error {
	body := loginRequest{
		Username:      c.creds.Email,
		Password:      c.creds.Password,
		SupportsMFA:   true,
		TrustedDevice: true,
	}

	code, err := c.currentMFACode()
	if err != nil {
		return err
	}
	body.TOTP = code

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-Platform", clientPlatform)

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Body: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Status: resp.StatusCode, Body: "reading login response", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusForbidden && body.TOTP == "":
		// The upstream signals a missing second factor with a 403.
		return ErrMFARequired
	default:
		return &LoginError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var lr loginResponse
	if err := json.Unmarshal(respBody, &lr); err != nil {
		return fmt.Errorf("decoding login response: %w", err)
	}
	if lr.Token == "" {
		return &LoginError{Status: resp.StatusCode, Body: "login response carried no token"}
	}

	c.token = lr.Token
	c.logger.Debug("upstream login succeeded", "email", auth.MaskEmail(c.creds.Email))
	return nil
}

// currentMFACode resolves the one-time code to send, if any. A configured
// seed takes precedence over a raw code: the seed always yields the current
// 30-second-window value, while a raw code may already be stale.
func (c *Client) currentMFACode() (string, error) {
	if c.creds.MFASecret != "" {
		code, err := totp.GenerateCode(c.creds.MFASecret, time.Now())
		if err != nil {
			return "", &LoginError{Body: fmt.Sprintf("deriving TOTP code from seed: %v", err)}
		}
		return code, nil
	}
	return c.creds.MFACode, nil
}

// graphqlRequest is the wire shape for upstream GraphQL calls.
type graphqlRequest struct {
	OperationName string `json:"operationName"`
	Query         string `json:"query"`
	Variables     any    `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

type graphqlError struct {
	Message string `json:"message"`
}

// Execute runs one named GraphQL operation, authenticating first if no
// token is held yet. A 401 is handled with an explicit two-state retry: the
// token is discarded, a fresh login performed, and the identical call
// replayed exactly once. A second 401 surfaces as ErrAuthExpired. No
// backoff; this is a deterministic re-auth, not a rate-limit condition.
func (c *Client) Execute(ctx context.Context, operation, document string, variables any) (json.RawMessage, error) {
	if c.token == "" {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
	}

	retried := false
	for {
		status, body, err := c.post(ctx, operation, document, variables)
		if err != nil {
			return nil, err
		}

		if status == http.StatusUnauthorized {
			if retried {
				return nil, ErrAuthExpired
			}
			retried = true
			c.logger.Debug("upstream returned 401, re-authenticating", "operation", operation)
			c.token = ""
			if err := c.Login(ctx); err != nil {
				return nil, err
			}
			continue
		}

		if status < 200 || status >= 300 {
			return nil, &TransportError{Status: status, Body: strings.TrimSpace(string(body))}
		}

		return decodeGraphQL(operation, body)
	}
}

// post performs one raw GraphQL exchange and returns the status and body.
// Transport-level failures are returned as errors; HTTP status handling is
// the caller's job so the 401 retry can see the code.
func (c *Client) post(ctx context.Context, operation, document string, variables any) (int, []byte, error) {
	payload, err := json.Marshal(graphqlRequest{
		OperationName: operation,
		Query:         document,
		Variables:     variables,
	})
	if err != nil {
		return 0, nil, fmt.Errorf("encoding %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+graphqlPath, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("creating %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-Platform", clientPlatform)
	// The upstream uses a Token scheme, not Bearer. Do not "correct" this.
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Body: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &TransportError{Status: resp.StatusCode, Body: "reading response body", Err: err}
	}

	return resp.StatusCode, body, nil
}

// decodeGraphQL unpacks the response envelope. A non-empty error list in a
// 2xx response is an application-level failure and surfaces as
// *OperationError carrying the concatenated upstream messages.
func decodeGraphQL(operation string, body []byte) (json.RawMessage, error) {
	var resp graphqlResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", operation, err)
	}

	if len(resp.Errors) > 0 {
		messages := make([]string, len(resp.Errors))
		for i, e := range resp.Errors {
			messages[i] = e.Message
		}
		return nil, &OperationError{Operation: operation, Messages: messages}
	}

	return resp.Data, nil
}

// rootField extracts a single named field from the data payload. When the
// field is absent the whole payload is returned instead of failing: result
// shaping is best-effort and upstream schema drift should not break a call
// that succeeded.
func rootField(data json.RawMessage, name string) json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return data
	}
	if v, ok := fields[name]; ok {
		return v
	}
	return data
}
