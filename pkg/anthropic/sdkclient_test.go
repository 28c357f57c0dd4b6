package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// messagesStub stands in for the Messages API. It records the last request
// body and replies with the canned message.
type messagesStub struct {
	server   *httptest.Server
	lastBody map[string]any
}

func newMessagesStub(t *testing.T, status int, reply map[string]any) *messagesStub {
	t.Helper()
	stub := &messagesStub{}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &stub.lastBody))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		require.NoError(t, json.NewEncoder(w).Encode(reply))
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *messagesStub) client() *sdkClient {
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey("test-key"),
			option.WithBaseURL(s.server.URL),
			option.WithMaxRetries(0),
		),
	}
}

func assistantReply(id, text string, usage map[string]any) map[string]any {
	return map[string]any{
		"id":          id,
		"type":        "message",
		"role":        "assistant",
		"model":       "claude-haiku-4-5-20251001",
		"stop_reason": "end_turn",
		"content":     []map[string]any{{"type": "text", "text": text}},
		"usage":       usage,
	}
}

func TestSDKClient_CreateMessage(t *testing.T) {
	stub := newMessagesStub(t, http.StatusOK, assistantReply("msg_cls_01", `{"industry":"manufacturing"}`, map[string]any{
		"input_tokens":  840,
		"output_tokens": 36,
	}))

	resp, err := stub.client().CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 1024,
		Messages:  []Message{{Role: "user", Content: "Classify Acme Industrial Fabrication."}},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.Equal(t, "msg_cls_01", resp.ID)
	assert.Equal(t, "claude-haiku-4-5-20251001", resp.Model)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, `{"industry":"manufacturing"}`, resp.Text())
	assert.Equal(t, int64(840), resp.Usage.InputTokens)
	assert.Equal(t, int64(36), resp.Usage.OutputTokens)

	// The stub saw the request the SDK actually sent.
	assert.Equal(t, "claude-haiku-4-5-20251001", stub.lastBody["model"])
	assert.EqualValues(t, 1024, stub.lastBody["max_tokens"])
}

func TestSDKClient_CreateMessage_SystemBlocksOnWire(t *testing.T) {
	stub := newMessagesStub(t, http.StatusOK, assistantReply("msg_sys_01", "Acknowledged", map[string]any{
		"input_tokens":                120,
		"output_tokens":               4,
		"cache_creation_input_tokens": 4200,
	}))

	temp := 0.2
	resp, err := stub.client().CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 256,
		System: []SystemBlock{
			{Text: "You synthesize analysis sections into one report.", CacheControl: &CacheControl{TTL: "1h"}},
		},
		Messages:    []Message{{Role: "user", Content: "Synthesize."}},
		Temperature: &temp,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4200), resp.Usage.CacheCreationInputTokens)

	// System prompt, cache control, and temperature all survive the SDK
	// translation onto the wire.
	system, ok := stub.lastBody["system"].([]any)
	require.True(t, ok, "system should be a block array")
	require.Len(t, system, 1)
	block, ok := system[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "You synthesize analysis sections into one report.", block["text"])
	cc, ok := block["cache_control"].(map[string]any)
	require.True(t, ok, "cache_control should be set on the system block")
	assert.Equal(t, "ephemeral", cc["type"])
	assert.Equal(t, "1h", cc["ttl"])
	assert.InDelta(t, 0.2, stub.lastBody["temperature"], 1e-9)
}

func TestSDKClient_CreateMessage_APIError(t *testing.T) {
	stub := newMessagesStub(t, http.StatusInternalServerError, map[string]any{
		"type": "error",
		"error": map[string]any{
			"type":    "api_error",
			"message": "overloaded",
		},
	})

	_, err := stub.client().CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 64,
		Messages:  []Message{{Role: "user", Content: "Classify."}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: create message")
}
