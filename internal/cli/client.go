package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"tides/internal/models"
	"tides/internal/services"
)

// APIError is an error response from the tides server
type APIError struct {
	Status  int
	Message string
	Field   string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Field, e.Message, e.Status)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// Client talks to the tides HTTP API on behalf of one owner
type Client struct {
	baseURL    string
	token      string
	userID     string
	httpClient *http.Client
}

// NewClient creates a client. With no token the user id is sent as
// X-User-ID, which only development servers accept.
func NewClient(baseURL, token, userID string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		userID:  userID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) authHeader() http.Header {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	} else if c.userID != "" {
		header.Set("X-User-ID", c.userID)
	}
	return header
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = c.authHeader()
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
			Field string `json:"field"`
		}
		if json.Unmarshal(data, &errBody) != nil || errBody.Error == "" {
			errBody.Error = strings.TrimSpace(string(data))
			if errBody.Error == "" {
				errBody.Error = http.StatusText(resp.StatusCode)
			}
		}
		return &APIError{Status: resp.StatusCode, Message: errBody.Error, Field: errBody.Field}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func tidePath(tideID string, rest ...string) string {
	path := "/api/tides/" + url.PathEscape(tideID)
	for _, r := range rest {
		path += "/" + r
	}
	return path
}

// CreateTide creates a tide
func (c *Client) CreateTide(ctx context.Context, req models.CreateTideRequest) (*models.Tide, error) {
	var tide models.Tide
	if err := c.do(ctx, http.MethodPost, "/api/tides", req, &tide); err != nil {
		return nil, err
	}
	return &tide, nil
}

// ListTides lists index entries matching filter
func (c *Client) ListTides(ctx context.Context, filter models.ListFilter) ([]models.TideIndexEntry, error) {
	query := url.Values{}
	if filter.FlowType != "" {
		query.Set("flow_type", string(filter.FlowType))
	}
	if filter.ActiveOnly {
		query.Set("active_only", "true")
	}
	path := "/api/tides"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp struct {
		Tides []models.TideIndexEntry `json:"tides"`
		Count int                     `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tides, nil
}

// GetTide fetches a tide document
func (c *Client) GetTide(ctx context.Context, tideID string) (*models.Tide, error) {
	var tide models.Tide
	if err := c.do(ctx, http.MethodGet, tidePath(tideID), nil, &tide); err != nil {
		return nil, err
	}
	return &tide, nil
}

// UpdateTide applies a direct field update
func (c *Client) UpdateTide(ctx context.Context, tideID string, req models.UpdateTideRequest) (*models.Tide, error) {
	var tide models.Tide
	if err := c.do(ctx, http.MethodPatch, tidePath(tideID), req, &tide); err != nil {
		return nil, err
	}
	return &tide, nil
}

// AddFlowSession appends a flow session
func (c *Client) AddFlowSession(ctx context.Context, tideID string, session models.FlowSession) (*models.FlowSession, error) {
	var created models.FlowSession
	if err := c.do(ctx, http.MethodPost, tidePath(tideID, "flow-sessions"), session, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// AddEnergyUpdate appends an energy update
func (c *Client) AddEnergyUpdate(ctx context.Context, tideID string, update models.EnergyUpdate) (*models.EnergyUpdate, error) {
	var created models.EnergyUpdate
	if err := c.do(ctx, http.MethodPost, tidePath(tideID, "energy"), update, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// AddTaskLink appends a task link
func (c *Client) AddTaskLink(ctx context.Context, tideID string, link models.TaskLink) (*models.TaskLink, error) {
	var created models.TaskLink
	if err := c.do(ctx, http.MethodPost, tidePath(tideID, "task-links"), link, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListTaskLinks lists a tide's task links in insertion order
func (c *Client) ListTaskLinks(ctx context.Context, tideID string) ([]models.TaskLink, error) {
	var resp struct {
		TaskLinks []models.TaskLink `json:"task_links"`
		Count     int               `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, tidePath(tideID, "task-links"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.TaskLinks, nil
}

// RemoveTaskLink removes a task link and reports whether it existed
func (c *Client) RemoveTaskLink(ctx context.Context, tideID, linkID string) (bool, error) {
	var resp struct {
		Removed bool `json:"removed"`
	}
	if err := c.do(ctx, http.MethodDelete, tidePath(tideID, "task-links", url.PathEscape(linkID)), nil, &resp); err != nil {
		return false, err
	}
	return resp.Removed, nil
}

// Report fetches the tide report
func (c *Client) Report(ctx context.Context, tideID string) (*models.TideReport, error) {
	var report models.TideReport
	if err := c.do(ctx, http.MethodGet, tidePath(tideID, "report"), nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Insights asks the server for a narrative summary of the tide
func (c *Client) Insights(ctx context.Context, tideID string) (*services.PromptResult, error) {
	var result services.PromptResult
	if err := c.do(ctx, http.MethodPost, tidePath(tideID, "insights"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RebuildIndex asks the server to recompute the owner's index
func (c *Client) RebuildIndex(ctx context.Context) (int, error) {
	var resp struct {
		Entries int `json:"entries"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/tides/index/rebuild", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Entries, nil
}

// liveURL maps the API base URL onto the live WebSocket endpoint
func (c *Client) liveURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/tides"
	return u.String(), nil
}

// Watch streams live events until ctx is done or onEvent returns false
func (c *Client) Watch(ctx context.Context, onEvent func(models.LiveEvent) bool) error {
	wsURL, err := c.liveURL()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, c.authHeader())
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to %s: %w (HTTP %s)", wsURL, err, strconv.Itoa(resp.StatusCode))
		}
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		var event models.LiveEvent
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("live stream closed: %w", err)
		}
		if !onEvent(event) {
			return nil
		}
	}
}
