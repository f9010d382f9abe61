package presence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Status values mirror the remote API's vocabulary. The client passes
// them through verbatim; the API is the source of truth for legality.
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusOffline = "offline"
	StatusDND     = "dnd"
)

// ErrMissingField marks a response body that parsed as JSON but lacked
// the field the caller needed.
var ErrMissingField = errors.New("response missing expected field")

type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	body := strings.TrimSpace(e.Body)
	if body != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, body)
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

// Client issues authenticated requests against the presence API. It
// carries no retry policy of its own: the watch loop decides what to
// do with failures.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// New builds a client for the given API root. A zero timeout leaves
// requests unbounded.
func New(baseURL, token string, timeout time.Duration) *Client {
	return NewWithClient(baseURL, token, &http.Client{Timeout: timeout})
}

func NewWithClient(baseURL, token string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

// GetUserID resolves the authenticated user's id. The status update
// endpoint addresses users by concrete id, not a "me" alias, so this
// runs before every update.
func (c *Client) GetUserID(ctx context.Context) (string, error) {
	body, err := c.request(ctx, http.MethodGet, "/users/me", nil)
	if err != nil {
		return "", err
	}
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode user: %w", err)
	}
	if payload.ID == "" {
		return "", fmt.Errorf("%w: id", ErrMissingField)
	}
	return payload.ID, nil
}

func (c *Client) GetStatus(ctx context.Context) (string, error) {
	body, err := c.request(ctx, http.MethodGet, "/users/me/status", nil)
	if err != nil {
		return "", err
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode status: %w", err)
	}
	if payload.Status == "" {
		return "", fmt.Errorf("%w: status", ErrMissingField)
	}
	return payload.Status, nil
}

// SetStatus resolves the user id fresh on every call and issues the
// per-user status PUT. Re-resolving each time keeps the client
// stateless; the extra request per update is deliberate.
func (c *Client) SetStatus(ctx context.Context, status string) error {
	id, err := c.GetUserID(ctx)
	if err != nil {
		return err
	}
	req := map[string]string{
		"user_id": id,
		"status":  status,
	}
	if _, err := c.request(ctx, http.MethodPut, "/users/"+url.PathEscape(id)+"/status", req); err != nil {
		return fmt.Errorf("set status %s: %w", status, err)
	}
	return nil
}

func (c *Client) request(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &RequestError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(payload)),
		}
	}
	return payload, nil
}
