package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestFindReviewPage_Found(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "review-db", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		filter, ok := req.Filter.(notionapi.PropertyFilter)
		return ok && filter.Property == "Fingerprint" &&
			filter.RichText != nil && filter.RichText.Equals == "abc123"
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "existing-page"}},
	}, nil)

	page, err := FindReviewPage(ctx, mc, "review-db", "abc123")
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, notionapi.ObjectID("existing-page"), page.ID)
	mc.AssertExpectations(t)
}

func TestFindReviewPage_NotFound(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "review-db", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(&notionapi.DatabaseQueryResponse{}, nil)

	page, err := FindReviewPage(ctx, mc, "review-db", "missing")
	require.NoError(t, err)
	assert.Nil(t, page)
	mc.AssertExpectations(t)
}

func TestFindReviewPage_QueryError(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "review-db", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(nil, assert.AnError)

	_, err := FindReviewPage(ctx, mc, "review-db", "abc123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find review page")
	mc.AssertExpectations(t)
}
