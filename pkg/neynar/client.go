// Package neynar is a small client for the Neynar Farcaster REST API. It
// covers the calls Clippy makes outside the browser: searching users and
// casts, publishing casts, liking and following.
//
// The client does not retry; callers decide whether a failed call is worth
// repeating.
package neynar

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
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the Neynar API root.
	DefaultBaseURL = "https://api.neynar.com"
	// DefaultWebBaseURL is the web client profile URLs are built on.
	DefaultWebBaseURL = "https://farcaster.xyz"

	DefaultSearchLimit = 25
	DefaultTimeout     = 15 * time.Second

	// DefaultRequestsPerSecond stays under the free plan's per-key limit.
	DefaultRequestsPerSecond = 5
)

// ErrNoSigner is returned by write calls when no signer UUID is configured.
var ErrNoSigner = errors.New("neynar signer uuid is not configured")

// Config configures the client.
type Config struct {
	APIKey     string        `yaml:"api_key" json:"-"`
	SignerUUID string        `yaml:"signer_uuid" json:"-"`
	BaseURL    string        `yaml:"base_url" json:"base_url"`
	WebBaseURL string        `yaml:"web_base_url" json:"web_base_url"`
	Limit      int           `yaml:"search_limit" json:"search_limit"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`

	// RequestsPerSecond paces outgoing requests. Zero uses the default.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
}

// DefaultConfig returns the default client configuration without credentials.
func DefaultConfig() Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		WebBaseURL: DefaultWebBaseURL,
		Limit:      DefaultSearchLimit,
		Timeout:    DefaultTimeout,

		RequestsPerSecond: DefaultRequestsPerSecond,
	}
}

// Validate checks the configuration. Credentials are not required.
func (c Config) Validate() error {
	if c.Limit < 0 {
		return fmt.Errorf("search_limit must not be negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	return nil
}

// Enabled reports whether an API key is configured.
func (c Config) Enabled() bool {
	return c.APIKey != ""
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("neynar API request failed with status %d: %s", e.StatusCode, e.Message)
}

// User is a Farcaster account as returned by the API.
type User struct {
	FID         int64  `json:"fid"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// Cast is a single post.
type Cast struct {
	Hash   string `json:"hash"`
	Text   string `json:"text"`
	Author User   `json:"author"`
}

// Client calls the Neynar API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	cfg        Config
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client. An API key is required.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("neynar API key is required (provide via config or NEYNAR_API_KEY environment variable)")
	}

	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.WebBaseURL == "" {
		cfg.WebBaseURL = def.WebBaseURL
	}
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.WebBaseURL = strings.TrimRight(cfg.WebBaseURL, "/")

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		cfg:        cfg,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SearchUsers returns accounts matching query.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]User, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(c.cfg.Limit))

	var resp struct {
		Result struct {
			Users []User `json:"users"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/farcaster/user/search", params, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Result.Users, nil
}

// SearchUsersByKeywords returns the web profile URLs of accounts matching the
// space-joined keywords, deduplicated in result order.
func (c *Client) SearchUsersByKeywords(ctx context.Context, keywords []string) ([]string, error) {
	query := joinKeywords(keywords)
	if query == "" {
		return nil, nil
	}

	users, err := c.SearchUsers(ctx, query)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(users))
	urls := make([]string, 0, len(users))
	for _, u := range users {
		if u.Username == "" || seen[u.Username] {
			continue
		}
		seen[u.Username] = true
		urls = append(urls, c.ProfileURL(u.Username))
	}

	c.logger.Debug("user search finished", zap.String("query", query), zap.Int("profiles", len(urls)))
	return urls, nil
}

// SearchCasts returns up to limit casts matching the keywords. A non-positive
// limit uses the configured default.
func (c *Client) SearchCasts(ctx context.Context, keywords []string, limit int) ([]Cast, error) {
	query := joinKeywords(keywords)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = c.cfg.Limit
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))

	var resp struct {
		Result struct {
			Casts []Cast `json:"casts"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/farcaster/cast/search", params, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Result.Casts, nil
}

// PublishCast posts text, as a reply when parentHash is set, and returns the
// new cast hash.
func (c *Client) PublishCast(ctx context.Context, text, parentHash string) (string, error) {
	if c.cfg.SignerUUID == "" {
		return "", ErrNoSigner
	}

	body := map[string]interface{}{
		"signer_uuid": c.cfg.SignerUUID,
		"text":        text,
	}
	if parentHash != "" {
		body["parent"] = parentHash
	}

	var resp struct {
		Success bool `json:"success"`
		Cast    struct {
			Hash string `json:"hash"`
		} `json:"cast"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/farcaster/cast", nil, body, &resp); err != nil {
		return "", err
	}
	return resp.Cast.Hash, nil
}

// LikeCast likes the cast with the given hash.
func (c *Client) LikeCast(ctx context.Context, hash string) error {
	if c.cfg.SignerUUID == "" {
		return ErrNoSigner
	}
	body := map[string]interface{}{
		"signer_uuid":   c.cfg.SignerUUID,
		"reaction_type": "like",
		"target":        hash,
	}
	return c.do(ctx, http.MethodPost, "/v2/farcaster/reaction", nil, body, nil)
}

// FollowUsers follows the accounts with the given FIDs.
func (c *Client) FollowUsers(ctx context.Context, fids []int64) error {
	if c.cfg.SignerUUID == "" {
		return ErrNoSigner
	}
	if len(fids) == 0 {
		return nil
	}
	body := map[string]interface{}{
		"signer_uuid": c.cfg.SignerUUID,
		"target_fids": fids,
	}
	return c.do(ctx, http.MethodPost, "/v2/farcaster/user/follow", nil, body, nil)
}

// ProfileURL returns the web profile URL for username.
func (c *Client) ProfileURL(username string) string {
	return c.cfg.WebBaseURL + "/" + url.PathEscape(username)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := c.cfg.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: apiMessage(data)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// apiMessage extracts the "message" field of an error body, falling back to
// the raw body.
func apiMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(data))
}

func joinKeywords(keywords []string) string {
	parts := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			parts = append(parts, k)
		}
	}
	return strings.Join(parts, " ")
}
