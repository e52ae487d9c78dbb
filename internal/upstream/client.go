package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/unigo-labs/unigo-chat/internal/domain"
)

// maxResponseBytes caps how much of an upstream body is read.
const maxResponseBytes = 4 << 20

var (
	// ErrMalformedResponse is returned when a response lacks required fields
	// or is not valid JSON.
	ErrMalformedResponse = errors.New("malformed upstream response")
	errEmptyBaseURL      = errors.New("upstream base URL is empty")
)

// StatusError is returned for a non-2xx upstream response.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.StatusCode)
}

// ClientConfig holds configuration for the upstream client.
type ClientConfig struct {
	BaseURL string
	// AuthTimeout bounds the auth check. Other calls run on the caller's context.
	AuthTimeout time.Duration
	HTTPClient  *http.Client
}

// Client talks to the remote API over HTTP/JSON.
type Client struct {
	base        *url.URL
	http        *http.Client
	authTimeout time.Duration
	logger      *slog.Logger
}

// NewClient creates a client for the API rooted at cfg.BaseURL.
func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errEmptyBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse upstream URL: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 5 * time.Second
	}
	return &Client{
		base:        base,
		http:        httpClient,
		authTimeout: cfg.AuthTimeout,
		logger:      logger,
	}, nil
}

// Me performs the auth check.
func (c *Client) Me(ctx context.Context) (domain.AuthInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.authTimeout)
	defer cancel()

	var info domain.AuthInfo
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, nil, &info); err != nil {
		return domain.Guest(), err
	}
	return info, nil
}

// History fetches the server-side history.
func (c *Client) History(ctx context.Context) (domain.ChatHistory, error) {
	var resp historyResponse
	if err := c.do(ctx, http.MethodGet, "/api/chat/history", nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.History == nil {
		return domain.ChatHistory{}, nil
	}
	return resp.History, nil
}

// Chat sends a general chat turn.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatReply, error) {
	if req.History == nil {
		req.History = domain.ChatHistory{}
	}
	var resp chatResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat", nil, req, &resp); err != nil {
		return ChatReply{}, err
	}
	if resp.Response == nil {
		return ChatReply{}, fmt.Errorf("%w: chat reply has no response", ErrMalformedResponse)
	}
	return ChatReply{
		Response:       *resp.Response,
		ConversationID: resp.ConversationID.String(),
	}, nil
}

// Recommend submits the onboarding answers.
func (c *Client) Recommend(ctx context.Context, answers map[string]string) (domain.RecommendationResult, error) {
	body := map[string]any{"answers": answers}
	var result domain.RecommendationResult
	if err := c.do(ctx, http.MethodPost, "/api/onboarding", nil, body, &result); err != nil {
		return domain.RecommendationResult{}, err
	}
	return result, nil
}

// Save stores history server-side.
func (c *Client) Save(ctx context.Context, history domain.ChatHistory) error {
	return c.do(ctx, http.MethodPost, "/api/chat/save", nil, map[string]any{"history": history}, nil)
}

// Reset clears the server-side session.
func (c *Client) Reset(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/chat/reset", nil, nil, nil)
}

// ListConversations fetches the saved conversations.
func (c *Client) ListConversations(ctx context.Context) ([]domain.ConversationSummary, error) {
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, "/api/chat/list", nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Conversations == nil {
		return []domain.ConversationSummary{}, nil
	}
	return resp.Conversations, nil
}

// LoadConversation fetches one conversation.
func (c *Client) LoadConversation(ctx context.Context, id string) (domain.Conversation, error) {
	q := url.Values{"conversation_id": {id}}
	var resp loadResponse
	if err := c.do(ctx, http.MethodGet, "/api/chat/load", q, nil, &resp); err != nil {
		return domain.Conversation{}, err
	}
	if resp.Conversation == nil {
		return domain.Conversation{}, fmt.Errorf("%w: load reply has no conversation", ErrMalformedResponse)
	}
	conv := *resp.Conversation
	if conv.Messages == nil {
		conv.Messages = []domain.ChatMessage{}
	}
	return conv, nil
}

// Summarize requests a summary of history.
func (c *Client) Summarize(ctx context.Context, history domain.ChatHistory) (string, error) {
	var resp summarizeResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat/summarize", nil, map[string]any{"history": history}, &resp); err != nil {
		return "", err
	}
	if resp.Summary == nil {
		return "", fmt.Errorf("%w: summarize reply has no summary", ErrMalformedResponse)
	}
	return *resp.Summary, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil || method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	CredentialsFromContext(ctx).apply(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close upstream body", "path", path, "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return &StatusError{Endpoint: path, StatusCode: resp.StatusCode}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, path, err)
	}
	return nil
}
