package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vonshlovens/spokesync/internal/domain"
)

func messagesServer(t *testing.T, status int, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = io.WriteString(w, `{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_1",
			"type":        "message",
			"role":        "assistant",
			"model":       "test-model",
			"stop_reason": "end_turn",
			"content":     []map[string]any{{"type": "text", "text": text}},
			"usage":       map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRewriter(srv *httptest.Server) *Anthropic {
	return NewAnthropic(Config{APIKey: "test", Model: "test-model", MaxTokens: 256, Timeout: 5 * time.Second},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
}

func TestAnthropic_Rewrite(t *testing.T) {
	srv := messagesServer(t, http.StatusOK, "  Rewritten text \n")
	out, err := newTestRewriter(srv).Rewrite(context.Background(), "Original", domain.AISettings{Tone: "casual"})
	require.NoError(t, err)
	assert.Equal(t, "Rewritten text", out)
}

func TestAnthropic_ProviderErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		text   string
	}{
		{"server error", http.StatusInternalServerError, ""},
		{"empty response", http.StatusOK, "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := messagesServer(t, tt.status, tt.text)
			_, err := newTestRewriter(srv).Rewrite(context.Background(), "Original", domain.AISettings{})
			var pe *domain.ProviderError
			require.True(t, errors.As(err, &pe), "want ProviderError, got %v", err)
			assert.Equal(t, ProviderName, pe.Provider)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("<p>Body</p>", domain.AISettings{Tone: "formal", Audience: "engineers", Instructions: "be brief"})
	assert.Contains(t, p, "Tone: formal")
	assert.Contains(t, p, "Audience: engineers")
	assert.Contains(t, p, "Additional instructions: be brief")
	assert.Contains(t, p, "<p>Body</p>")

	assert.NotContains(t, BuildPrompt("x", domain.AISettings{}), "Tone:")
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 3, WordCount(`<p class="a b c">one two</p><strong>three</strong>`))
	assert.Equal(t, 0, WordCount(""))
}
