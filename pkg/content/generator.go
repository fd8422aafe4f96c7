// Package content produces cast text with an OpenAI-compatible chat model.
package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// MaxCastBytes is the Farcaster limit on cast text.
const MaxCastBytes = 320

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.9
	DefaultMaxTokens   = 200
	DefaultPersona     = "You are Clippy, a friendly and curious Farcaster regular. " +
		"Write like a person, not a brand: short, concrete, no hashtags, no emoji spam, no quotes around the text."
)

// ErrEmptyCompletion is returned when the model produced no usable text.
var ErrEmptyCompletion = errors.New("model returned no text")

// Config configures the generator.
type Config struct {
	APIKey      string  `yaml:"api_key" json:"-"`
	BaseURL     string  `yaml:"base_url" json:"base_url"`
	Model       string  `yaml:"model" json:"model"`
	Persona     string  `yaml:"persona" json:"persona"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
	// Themes are picked from when a post job has no explicit theme.
	Themes []string `yaml:"themes" json:"themes"`
}

// DefaultConfig returns the default generator configuration.
func DefaultConfig() Config {
	return Config{
		Model:       DefaultModel,
		Persona:     DefaultPersona,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		Themes:      []string{"building onchain", "open social protocols", "small wins from today"},
	}
}

// Enabled reports whether an API key is configured.
func (c Config) Enabled() bool {
	return c.APIKey != ""
}

// Generator writes posts and replies.
type Generator struct {
	client openai.Client
	cfg    Config
	logger *zap.Logger
}

// NewGenerator creates a generator. Extra request options are appended after
// the ones derived from cfg.
func NewGenerator(cfg Config, logger *zap.Logger, opts ...option.RequestOption) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (provide via config or OPENAI_API_KEY environment variable)")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Persona == "" {
		cfg.Persona = def.Persona
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	return &Generator{
		client: openai.NewClient(reqOpts...),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// GeneratePost writes an original cast about theme.
func (g *Generator) GeneratePost(ctx context.Context, theme string) (string, error) {
	prompt := fmt.Sprintf("Write one Farcaster cast about: %s\nKeep it under %d characters.", theme, MaxCastBytes)
	return g.complete(ctx, prompt)
}

// GenerateReply writes a reply to the cast text. extra is optional
// background, for instance the author's name or the thread topic.
func (g *Generator) GenerateReply(ctx context.Context, text, extra string) (string, error) {
	var b strings.Builder
	b.WriteString("Reply to this Farcaster cast in one short, genuine message.\n\nCast:\n")
	b.WriteString(text)
	if extra != "" {
		b.WriteString("\n\nContext:\n")
		b.WriteString(extra)
	}
	fmt.Fprintf(&b, "\n\nKeep it under %d characters.", MaxCastBytes)
	return g.complete(ctx, b.String())
}

func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(g.cfg.Persona),
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(int64(g.cfg.MaxTokens)),
	}
	if g.cfg.Temperature > 0 {
		params.Temperature = openai.Float(g.cfg.Temperature)
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	text := Clean(completion.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}

	g.logger.Debug("generated text",
		zap.String("model", g.cfg.Model), zap.Int("bytes", len(text)))
	return text, nil
}

// Clean trims whitespace and wrapping quotes from model output and truncates
// it to MaxCastBytes on a rune boundary.
func Clean(text string) string {
	text = strings.TrimSpace(text)
	for _, q := range []string{`"`, "'", "“”"} {
		left, right := q, q
		if r := []rune(q); len(r) == 2 {
			left, right = string(r[0]), string(r[1])
		}
		if len(text) >= len(left)+len(right) && strings.HasPrefix(text, left) && strings.HasSuffix(text, right) {
			text = strings.TrimSpace(text[len(left) : len(text)-len(right)])
		}
	}
	return Truncate(text, MaxCastBytes)
}

// Truncate cuts s to at most max bytes without splitting a rune.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut])
}
