package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// TokenFunc supplies the current bearer token. It is consulted on every
// request so a token refreshed mid-session is picked up without
// rebuilding the client.
type TokenFunc func() (string, error)

// Client is a thin HTTP client for the email-assistant backend. It
// handles Bearer token authentication, JSON marshaling, and translating
// transport and status failures into the client error taxonomy.
type Client struct {
	baseURL    string
	token      TokenFunc
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a backend client rooted at baseURL. The token
// function may return an empty string for unauthenticated endpoints.
func NewClient(baseURL string, token TokenFunc, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
}

// SetTimeout overrides the per-request timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

// Chat submits the conversation to the tool-chat endpoint.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage) (*ChatResponse, error) {
	req := ChatRequest{Messages: messages, ToolType: "email"}
	var resp ChatResponse
	if err := c.post(ctx, "/email-tools/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendEmail asks the backend to send an approved composition.
func (c *Client) SendEmail(ctx context.Context, req SendEmailRequest) (*SendEmailResponse, error) {
	var resp SendEmailResponse
	if err := c.post(ctx, "/email-tools/send-email", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LookupContact resolves a free-text name to an email address.
func (c *Client) LookupContact(ctx context.Context, name string) (*LookupResponse, error) {
	var resp LookupResponse
	if err := c.post(ctx, "/lookup-contact/lookup", LookupRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ArchiveEmail archives a single mailbox item by id.
func (c *Client) ArchiveEmail(ctx context.Context, emailID string) (*ArchiveResponse, error) {
	var resp ArchiveResponse
	if err := c.post(ctx, "/email-tools/archive", ArchiveRequest{EmailID: emailID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EmailContent fetches the full (HTML) content of a mailbox item.
func (c *Client) EmailContent(ctx context.Context, emailID string) (*EmailContentResponse, error) {
	var resp EmailContentResponse
	if err := c.get(ctx, "/email-tools/email-content/"+url.PathEscape(emailID), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AvailableTools lists the tools the backend currently exposes.
func (c *Client) AvailableTools(ctx context.Context) (*AvailableToolsResponse, error) {
	var resp AvailableToolsResponse
	if err := c.get(ctx, "/email-tools/tools/available", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login exchanges credentials for a bearer token. The endpoint expects
// form-encoded fields rather than JSON.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/auth/login",
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp LoginResponse
	if err := c.roundTrip(req, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("login response carried no token")
	}
	return &resp, nil
}

// get performs an HTTP GET request and unmarshals the JSON response.
func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// post performs an HTTP POST request with a JSON body and unmarshals
// the JSON response.
func (c *Client) post(ctx context.Context, path string, body, result interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

// do builds the request, attaches auth, and hands off to roundTrip.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body interface{},
	result interface{},
) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.roundTrip(req, result)
}

// roundTrip executes the request and maps the response onto result or
// onto the error taxonomy: 401/403 become ErrUnauthorized, 5xx becomes
// *ServerError, and transport timeouts pass through for IsTimeout.
func (c *Client) roundTrip(req *http.Request, result interface{}) error {
	if c.token != nil {
		tok, err := c.token()
		if err != nil {
			return fmt.Errorf("loading session token: %w", err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, ErrUnauthorized)
	case resp.StatusCode >= 500:
		c.logger.Warn("backend server error",
			"method", req.Method, "path", req.URL.Path, "status", resp.StatusCode)
		return &ServerError{Status: resp.StatusCode, Body: string(respBody)}
	case resp.StatusCode >= 400:
		return fmt.Errorf("%s %s: unexpected status %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, firstLine(respBody))
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("decoding response from %s: %w", req.URL.Path, err)
	}
	return nil
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
