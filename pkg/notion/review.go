package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// FindReviewPage looks up an existing review page by its request fingerprint.
// Returns nil (no error) when the database has no page for the fingerprint,
// so repeated analyses of the same subject update one page instead of
// stacking duplicates in the queue.
func FindReviewPage(ctx context.Context, c Client, dbID, fingerprint string) (*notionapi.Page, error) {
	req := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Fingerprint",
			RichText: &notionapi.TextFilterCondition{
				Equals: fingerprint,
			},
		},
		PageSize: 1,
	}

	resp, err := c.QueryDatabase(ctx, dbID, req)
	if err != nil {
		return nil, eris.Wrap(err, "notion: find review page")
	}

	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}
