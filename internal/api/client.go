// Package api is the HTTP client for the remote chat and auth service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/comigor/fastbot-go/internal/config"
)

const (
	// DefaultTimeout applies when the configuration leaves api.timeout unset.
	DefaultTimeout = 60 * time.Second

	// maxResponseSize bounds how much of a response body is read.
	maxResponseSize = 10 << 20
)

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource interface {
	Token() string
}

// Client is a client for the chat API
type Client struct {
	baseURL string
	timeout time.Duration
	tokens  TokenSource
	client  *http.Client
}

// NewClient creates a new Client. tokens may be nil when only the
// unauthenticated auth calls are used.
func NewClient(cfg config.APIConfig, tokens TokenSource) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		timeout: timeout,
		tokens:  tokens,
		client:  &http.Client{},
	}
}

// ListChats returns every conversation of the current user, in server order.
func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	var chats []Chat
	if err := c.do(ctx, "list chats", http.MethodGet, "/chats", true, nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// NewChat asks the service to create an empty conversation.
func (c *Client) NewChat(ctx context.Context) (Chat, error) {
	var chat Chat
	if err := c.do(ctx, "new chat", http.MethodPost, "/chats/new", true, nil, &chat); err != nil {
		return Chat{}, err
	}
	return chat, nil
}

// DeleteChat deletes the conversation with the given id.
func (c *Client) DeleteChat(ctx context.Context, id string) error {
	return c.do(ctx, "delete chat", http.MethodDelete, "/chats/"+url.PathEscape(id), true, nil, nil)
}

// SendMessage posts content to a conversation and returns the assistant reply.
func (c *Client) SendMessage(ctx context.Context, chatID, content string) (Message, error) {
	var resp sendMessageResponse
	req := sendMessageRequest{ChatID: chatID, Content: content}
	if err := c.do(ctx, "send message", http.MethodPost, "/chats/message", true, req, &resp); err != nil {
		return Message{}, err
	}
	if resp.BotMessage == nil {
		return Message{}, &TransportError{Op: "send message", Err: errors.New("response has no bot_message")}
	}
	return *resp.BotMessage, nil
}

// Login exchanges email and password for an access token.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	var resp LoginResponse
	req := loginRequest{Email: email, Password: password}
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", false, req, &resp); err != nil {
		return LoginResponse{}, err
	}
	if resp.AccessToken == "" {
		return LoginResponse{}, &TransportError{Op: "login", Err: errors.New("response has no access_token")}
	}
	return resp, nil
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, email, password, fullName string) error {
	req := signupRequest{Email: email, Password: password, FullName: fullName}
	return c.do(ctx, "signup", http.MethodPost, "/auth/signup", false, req, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, authed bool, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &TransportError{Op: op, Err: err}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		token := ""
		if c.tokens != nil {
			token = c.tokens.Token()
		}
		if token == "" {
			// no credential, nothing the service could accept
			return ErrUnauthorized
		}
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", op, ErrTimeout)
		}
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", op, ErrTimeout)
		}
		return &TransportError{Op: op, Err: err}
	}
	if len(data) > maxResponseSize {
		return &TransportError{Op: op, Err: errors.New("response body too large")}
	}

	if authed && resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Detail: parseDetail(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
