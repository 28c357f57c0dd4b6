package workers

import (
	"context"

	"github.com/sells-group/insight-engine/pkg/anthropic"
	"github.com/sells-group/insight-engine/pkg/finrecords"
	"github.com/sells-group/insight-engine/pkg/webreader"
	"github.com/sells-group/insight-engine/pkg/websearch"
)

// mockSearchClient implements websearch.Client for testing.
type mockSearchClient struct {
	answer    *websearch.Answer
	err       error
	lastQuery string
}

func (m *mockSearchClient) Search(_ context.Context, query string, _ ...websearch.SearchOption) (*websearch.Answer, error) {
	m.lastQuery = query
	if m.err != nil {
		return nil, m.err
	}
	return m.answer, nil
}

// mockReaderClient implements webreader.Client for testing.
type mockReaderClient struct {
	page    *webreader.Page
	err     error
	lastURL string
}

func (m *mockReaderClient) Read(_ context.Context, targetURL string) (*webreader.Page, error) {
	m.lastURL = targetURL
	if m.err != nil {
		return nil, m.err
	}
	return m.page, nil
}

// mockQuerier implements finrecords.Querier for testing.
type mockQuerier struct {
	matches   []finrecords.AwardMatch
	err       error
	lastName  string
	lastState string
	lastCity  string
}

func (m *mockQuerier) FindAwards(_ context.Context, name, state, city string) ([]finrecords.AwardMatch, error) {
	m.lastName = name
	m.lastState = state
	m.lastCity = city
	if m.err != nil {
		return nil, m.err
	}
	return m.matches, nil
}

func (m *mockQuerier) Close() {}

// mockAnthropicClient implements anthropic.Client for testing.
type mockAnthropicClient struct {
	response *anthropic.MessageResponse
	err      error
	lastReq  anthropic.MessageRequest
}

func (m *mockAnthropicClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

// textResponse builds a single text-block response with the given usage.
func textResponse(text string, usage anthropic.TokenUsage) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   usage,
	}
}
