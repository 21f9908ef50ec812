// Package wabot provides a client for the WhatsApp bot control API.
package wabot

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Client is a control API client.
type Client struct {
	BaseURL    string
	Token      string // control token sent as a bearer token
	HTTPClient *http.Client
}

// NewClient creates a new client.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:3000"
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Msg        string
}

func (e *APIError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("wabot error %d", e.StatusCode)
	}
	return fmt.Sprintf("wabot error %d: %s", e.StatusCode, e.Msg)
}

// Identity is the linked account.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// State is the session state.
type State struct {
	Status    string    `json:"status"`
	QRPayload string    `json:"qrPayload,omitempty"`
	LastError string    `json:"lastError,omitempty"`
	Identity  *Identity `json:"identity,omitempty"`
}

// Check is the result of one health check.
type Check struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the response of the health endpoint.
type HealthResponse struct {
	Status    string           `json:"status"`
	Version   string           `json:"version"`
	Session   string           `json:"session"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// MessagesResponse holds buffered messages. Data holds summaries, or sparse
// raw messages when requested.
type MessagesResponse struct {
	OK     bool              `json:"ok"`
	Number string            `json:"number"`
	Count  int               `json:"count"`
	Data   []json.RawMessage `json:"data"`
}

// Notification is an inbound message event of the live stream.
type Notification struct {
	IsGroup bool   `json:"isGroup"`
	Number  string `json:"number"`
	GroupID string `json:"groupId,omitempty"`
	Text    string `json:"text"`
}

// Event is one frame of the live stream. Exactly one of State or Message is
// set, depending on Name.
type Event struct {
	ID      string
	Name    string
	State   *State
	Message *Notification
}

type result struct {
	OK      bool   `json:"ok"`
	Msg     string `json:"msg,omitempty"`
	Cleared bool   `json:"cleared,omitempty"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp result
		_ = json.Unmarshal(respBody, &errResp)
		return &APIError{StatusCode: resp.StatusCode, Msg: errResp.Msg}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// Status returns the session state.
func (c *Client) Status(ctx context.Context) (*State, error) {
	var s State
	if err := c.do(ctx, http.MethodGet, "/status", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Health returns the service health. A degraded service is reported as an
// APIError with status 503.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var h HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Messages returns up to limit buffered messages of a number, oldest first.
// A limit of 0 uses the server default.
func (c *Client) Messages(ctx context.Context, number string, limit int, raw bool) (*MessagesResponse, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if raw {
		q.Set("raw", "1")
	}
	path := "/messages/" + url.PathEscape(number)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp MessagesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearMessages drops the buffered messages of a number.
func (c *Client) ClearMessages(ctx context.Context, number string) error {
	return c.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(number), nil, nil)
}

// SendTest sends a text message through the bot.
func (c *Client) SendTest(ctx context.Context, to, text string) error {
	body := map[string]string{"to": to, "text": text}
	return c.do(ctx, http.MethodPost, "/send-test", body, nil)
}

// Logout unlinks the device and returns the server message.
func (c *Client) Logout(ctx context.Context) (string, error) {
	var r result
	if err := c.do(ctx, http.MethodPost, "/logout", nil, &r); err != nil {
		return "", err
	}
	return r.Msg, nil
}

// Events follows the live stream and calls fn for every event until ctx is
// done, the stream ends or fn returns an error.
func (c *Client) Events(ctx context.Context, fn func(Event) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/qr-events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream outlives any client timeout.
	httpClient := *c.HTTPClient
	httpClient.Timeout = 0

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode}
	}

	err = readEvents(resp.Body, fn)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// readEvents parses Server-Sent Events frames.
func readEvents(r io.Reader, fn func(Event) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var ev Event
	var data []byte
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if len(data) > 0 {
				if err := decodeEvent(&ev, data); err != nil {
					return err
				}
				if err := fn(ev); err != nil {
					return err
				}
			}
			ev = Event{}
			data = data[:0]
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			ev.ID = value
		case "event":
			ev.Name = value
		case "data":
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, value...)
		}
	}
	return scanner.Err()
}

func decodeEvent(ev *Event, data []byte) error {
	switch ev.Name {
	case "update":
		ev.State = &State{}
		return json.Unmarshal(data, ev.State)
	case "msg":
		ev.Message = &Notification{}
		return json.Unmarshal(data, ev.Message)
	}
	return nil
}
