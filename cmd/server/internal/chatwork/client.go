package chatwork

import (
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

const (
	defaultBaseURL = "https://api.chatwork.com/v2"

	// Chatwork rejects message bodies longer than this. Longer
	// summaries are split into numbered parts.
	maxMessageRunes = 20000

	// partPrefixReserve keeps room for the "[n/total]\n" header so a
	// numbered part never exceeds maxMessageRunes.
	partPrefixReserve = 12
)

// APIError reports a non-2xx response from the Chatwork API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chatwork API status %d: %s", e.StatusCode, e.Body)
}

// Client posts messages to Chatwork rooms.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(token string, log *slog.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

// RoomInfo is the subset of room metadata the service uses.
type RoomInfo struct {
	RoomID int64  `json:"room_id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
}

// Me identifies the account behind the API token.
type Me struct {
	AccountID int64  `json:"account_id"`
	Name      string `json:"name"`
}

// SendMessage posts body to a room. Messages over the API limit are
// split at line boundaries and sent as numbered parts in order; the
// first failed part aborts the remainder.
func (c *Client) SendMessage(ctx context.Context, roomID, body string) error {
	parts := splitMessage(body, maxMessageRunes)
	if len(parts) > 1 {
		parts = splitMessage(body, maxMessageRunes-partPrefixReserve)
	}
	total := len(parts)

	for i, part := range parts {
		text := part
		if total > 1 {
			text = fmt.Sprintf("[%d/%d]\n%s", i+1, total, part)
		}
		if err := c.postMessage(ctx, roomID, text); err != nil {
			if total > 1 {
				return fmt.Errorf("send part %d/%d: %w", i+1, total, err)
			}
			return err
		}
	}

	c.log.Info("message delivered", "room_id", roomID, "parts", total)
	return nil
}

func (c *Client) postMessage(ctx context.Context, roomID, body string) error {
	form := url.Values{"body": {body}}
	endpoint := fmt.Sprintf("%s/rooms/%s/messages", c.baseURL, roomID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("X-ChatWorkToken", c.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chatwork request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// GetRoomInfo fetches room metadata, used to validate mappings.
func (c *Client) GetRoomInfo(ctx context.Context, roomID string) (*RoomInfo, error) {
	var info RoomInfo
	if err := c.getJSON(ctx, fmt.Sprintf("/rooms/%s", roomID), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetMyInfo fetches the token owner, used as a connectivity check.
func (c *Client) GetMyInfo(ctx context.Context) (*Me, error) {
	var me Me
	if err := c.getJSON(ctx, "/me", &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-ChatWorkToken", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chatwork request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// splitMessage breaks text into chunks of at most limit runes,
// preferring line boundaries. A single line longer than the limit is
// cut mid-line.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	var current []rune
	for _, line := range strings.Split(text, "\n") {
		lineRunes := []rune(line)

		// Flush when the next line would overflow the chunk.
		if len(current) > 0 && len(current)+1+len(lineRunes) > limit {
			chunks = append(chunks, string(current))
			current = current[:0]
		}

		for len(lineRunes) > limit {
			chunks = append(chunks, string(lineRunes[:limit]))
			lineRunes = lineRunes[limit:]
		}

		if len(current) > 0 {
			current = append(current, '\n')
		}
		current = append(current, lineRunes...)
	}
	if len(current) > 0 {
		chunks = append(chunks, string(current))
	}
	return chunks
}
