package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/huddle-realtime/internal/auth"
	"github.com/vovakirdan/huddle-realtime/internal/proto"
)

// DefaultPageSize is the page size the conversation screen asks for.
const DefaultPageSize = 20

// ErrStatus is wrapped by errors for non-2xx responses.
var ErrStatus = errors.New("unexpected status")

// Page is one page of room history.
type Page = proto.HistoryPage

// Client fetches message history over the REST API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  auth.TokenProvider
	log     *zerolog.Logger
}

// NewClient builds a history client for the API at baseURL.
func NewClient(baseURL string, tokens auth.TokenProvider, httpClient *http.Client, logger *zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
		log:     logger,
	}
}

// Fetch returns page (1-based) of roomID's messages.
func (c *Client) Fetch(ctx context.Context, roomID int64, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	endpoint := fmt.Sprintf("%s/chat/rooms/%d/messages?%s", c.baseURL, roomID, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("credential: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w %d: %s", ErrStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out Page
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	c.log.Debug().
		Int64("room_id", roomID).
		Int("page", out.Page).
		Int("count", len(out.Messages)).
		Msg("history page fetched")
	return &out, nil
}
