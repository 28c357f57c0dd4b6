// Package anthropic is the message-API client the analysis workers call.
// It keeps its own request and response types so worker code never touches
// SDK types directly.
package anthropic

import (
	"context"
	"strings"
)

// Client issues message requests to the Anthropic API.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// MessageRequest describes one model call.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      []SystemBlock
	Messages    []Message
	Temperature *float64
}

// SystemBlock is one block of the system prompt. A non-nil CacheControl
// marks it as a prompt cache breakpoint.
type SystemBlock struct {
	Text         string
	CacheControl *CacheControl
}

// CacheControl sets the prompt cache TTL, "5m" or "1h".
type CacheControl struct {
	TTL string
}

// BuildCachedSystemBlocks wraps a system prompt in a single block with a
// 1-hour cache breakpoint. Workers in the same run share one system prompt,
// so the first call warms the prompt cache and the rest read from it.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{Text: text, CacheControl: &CacheControl{TTL: "1h"}},
	}
}

// Message is one turn of the conversation, Role "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// MessageResponse is the decoded model reply.
type MessageResponse struct {
	ID           string
	Model        string
	Content      []ContentBlock
	StopReason   string
	Usage        TokenUsage
	StopSequence string
}

// ContentBlock is one piece of reply content.
type ContentBlock struct {
	Type string
	Text string
}

// Text joins the text blocks of the reply into one string.
func (r *MessageResponse) Text() string {
	var sb strings.Builder
	for _, b := range r.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}
