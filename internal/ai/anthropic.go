package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/vonshlovens/spokesync/internal/domain"
)

// ProviderName identifies this provider in errors and activity entries
const ProviderName = "anthropic"

// Config configures the Anthropic rewriter
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int64
	Timeout   time.Duration
}

// Anthropic rewrites text through the Anthropic Messages API
type Anthropic struct {
	client anthropic.Client
	cfg    Config
	logger *slog.Logger
}

// NewAnthropic creates a rewriter. Extra request options are appended after the API key.
func NewAnthropic(cfg Config, logger *slog.Logger, opts ...option.RequestOption) *Anthropic {
	all := append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	return &Anthropic{
		client: anthropic.NewClient(all...),
		cfg:    cfg,
		logger: logger.With("component", "ai", "provider", ProviderName),
	}
}

// Rewrite returns text rewritten for one destination's tone and audience
func (a *Anthropic) Rewrite(ctx context.Context, text string, settings domain.AISettings) (string, error) {
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.cfg.Model),
		MaxTokens: a.cfg.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildPrompt(text, settings))),
		},
	})
	if err != nil {
		return "", &domain.ProviderError{Provider: ProviderName, Err: err}
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	result := strings.TrimSpace(out.String())
	if result == "" {
		return "", &domain.ProviderError{Provider: ProviderName, Err: errors.New("empty response")}
	}
	if msg.StopReason == anthropic.StopReasonMaxTokens {
		return "", &domain.ProviderError{Provider: ProviderName, Err: fmt.Errorf("response truncated at %d tokens", a.cfg.MaxTokens)}
	}

	a.logger.Debug("rewrite complete",
		"input_chars", len(text),
		"output_chars", len(result),
		"duration", time.Since(start))
	return result, nil
}

// BuildPrompt renders the rewrite instructions for one piece of text
func BuildPrompt(text string, s domain.AISettings) string {
	var b strings.Builder
	b.WriteString("Rewrite the following content so it reads as an original piece for another website.\n\n")
	if s.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n", s.Tone)
	}
	if s.Audience != "" {
		fmt.Fprintf(&b, "Audience: %s\n", s.Audience)
	}
	if s.Instructions != "" {
		fmt.Fprintf(&b, "Additional instructions: %s\n", s.Instructions)
	}
	b.WriteString(`
Rules:
- Keep the meaning, facts, names and numbers unchanged
- Keep all HTML tags, attributes and block comments exactly as they are; only rewrite the human-readable text
- Keep every <span data-smart-url> and <span data-smart-links> element intact
- Output ONLY the rewritten content, no preamble and no markdown fences

Content:
`)
	b.WriteString(text)
	return b.String()
}

// WordCount counts whitespace-separated words, ignoring markup
func WordCount(text string) int {
	return len(strings.Fields(stripTags(text)))
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
			b.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
