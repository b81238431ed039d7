package client

import (
	"bytes"
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

	"go.uber.org/zap"

	"livechat/pkg/auth"
	"livechat/pkg/chat"
	"livechat/pkg/identity"
	"livechat/pkg/roster"
)

var (
	// ErrInvalidToken means the session must be discarded and re-acquired.
	ErrInvalidToken = errors.New("session is no longer valid, please sign in again")
	// ErrNetwork marks transport failures; callers retry on their next poll tick.
	ErrNetwork     = errors.New("network error")
	ErrRateLimited = errors.New("sending too fast")
)

// APIError is a failure envelope returned by the server.
type APIError struct {
	StatusCode int
	Message    string
	kind       error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.kind }

// Session is the only state a surface keeps between calls: the opaque token
// and the role it was issued for.
type Session struct {
	Token string
	Role  auth.Role
}

func (s Session) Valid() bool { return s.Token != "" }

type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }
func WithLogger(log *zap.Logger) Option    { return func(c *Client) { c.log = log } }

// WithTimeout bounds every request, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = &http.Client{Timeout: d, Transport: c.http.Transport} }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// do sends one request and decodes the envelope's data into out.
// credentialCall marks login endpoints, where 401 means bad credentials
// rather than a dead session.
func (c *Client) do(ctx context.Context, method, path string, s *Session, in, out any, credentialCall bool) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s != nil {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrNetwork, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("unexpected response: %.120s", raw)}
	}
	if resp.StatusCode >= 400 || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		c.log.Debug("api_error", zap.String("path", path), zap.Int("status", resp.StatusCode), zap.String("error", msg))
		return &APIError{StatusCode: resp.StatusCode, Message: msg, kind: classify(resp.StatusCode, credentialCall)}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

func classify(status int, credentialCall bool) error {
	switch {
	case status == http.StatusUnauthorized && credentialCall:
		return auth.ErrInvalidCredentials
	case status == http.StatusUnauthorized:
		return ErrInvalidToken
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusNotFound:
		return chat.ErrConversationNotFound
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		return ErrNetwork
	}
	return nil
}

// Register starts a chat for a first-time contact. For a known address the
// result has IsNewUser false and no token; the caller should switch to Authenticate.
func (c *Client) Register(ctx context.Context, name, email string) (identity.RegisterResult, error) {
	var out identity.RegisterResult
	err := c.do(ctx, http.MethodPost, "/chat/register", nil, map[string]string{"name": name, "email": email}, &out, true)
	return out, err
}

func (c *Client) Authenticate(ctx context.Context, email, secret string) (Session, identity.Identity, error) {
	var out identity.Session
	err := c.do(ctx, http.MethodPost, "/chat/authenticate", nil, map[string]string{"email": email, "secret": secret}, &out, true)
	if err != nil {
		return Session{}, identity.Identity{}, err
	}
	return Session{Token: out.Token, Role: auth.RoleCustomer}, out.Identity, nil
}

type sessionData struct {
	Token    string         `json:"token"`
	Identity auth.Principal `json:"identity"`
	Role     auth.Role      `json:"role"`
}

func (c *Client) AgentLogin(ctx context.Context, email, password string) (Session, auth.Principal, error) {
	var out sessionData
	err := c.do(ctx, http.MethodPost, "/chat/agent/login", nil, map[string]string{"email": email, "password": password}, &out, true)
	if err != nil {
		return Session{}, auth.Principal{}, err
	}
	return Session{Token: out.Token, Role: auth.RoleAgent}, out.Identity, nil
}

// Validate re-resolves the identity behind s.
func (c *Client) Validate(ctx context.Context, s Session) (auth.Principal, error) {
	var out sessionData
	if err := c.do(ctx, http.MethodGet, "/chat/session", &s, nil, &out, false); err != nil {
		return auth.Principal{}, err
	}
	return out.Identity, nil
}

// conversationPath is the caller's own conversation when conversationID is
// empty, otherwise the agent route for that customer.
func conversationPath(conversationID string) string {
	if conversationID == "" {
		return "/chat/conversation"
	}
	return "/chat/conversations/" + url.PathEscape(conversationID)
}

func (c *Client) ListMessages(ctx context.Context, s Session, conversationID string, since int64) (chat.MessageList, error) {
	path := conversationPath(conversationID)
	if since > 0 {
		path += "?since=" + strconv.FormatInt(since, 10)
	}
	var out chat.MessageList
	err := c.do(ctx, http.MethodGet, path, &s, nil, &out, false)
	return out, err
}

// SendMessage rejects an invalid body locally without a network call.
func (c *Client) SendMessage(ctx context.Context, s Session, conversationID, body string) (chat.Message, error) {
	body, err := chat.ValidateBody(body)
	if err != nil {
		return chat.Message{}, err
	}
	var out struct {
		Message chat.Message `json:"message"`
	}
	err = c.do(ctx, http.MethodPost, conversationPath(conversationID), &s, map[string]string{"message": body}, &out, false)
	return out.Message, err
}

func (c *Client) MarkRead(ctx context.Context, s Session, conversationID string) (int, error) {
	var out chat.UnreadState
	err := c.do(ctx, http.MethodPatch, conversationPath(conversationID), &s, map[string]any{"action": chat.ActionMarkRead}, &out, false)
	return out.UnreadCount, err
}

func (c *Client) MarkUnread(ctx context.Context, s Session, conversationID string, count int) (int, error) {
	if count < 0 {
		return 0, chat.ErrInvalidCount
	}
	var out chat.UnreadState
	err := c.do(ctx, http.MethodPatch, conversationPath(conversationID), &s, map[string]any{"action": chat.ActionMarkUnread, "count": count}, &out, false)
	return out.UnreadCount, err
}

func rosterQuery(q roster.Query) string {
	v := url.Values{}
	if q.Filter != "" {
		v.Set("filter", string(q.Filter))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

func (c *Client) Roster(ctx context.Context, s Session, q roster.Query) ([]roster.Entry, error) {
	var out roster.Data
	err := c.do(ctx, http.MethodGet, "/chat/roster"+rosterQuery(q), &s, nil, &out, false)
	return out.Entries, err
}

// ExportRoster streams the roster spreadsheet into w.
func (c *Client) ExportRoster(ctx context.Context, s Session, q roster.Query, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/chat/roster/export"+rosterQuery(q), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var env envelope
		_ = json.NewDecoder(resp.Body).Decode(&env)
		return &APIError{StatusCode: resp.StatusCode, Message: env.Error, kind: classify(resp.StatusCode, false)}
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return nil
}
