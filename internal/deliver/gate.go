// Package deliver routes finished analysis reports downstream. Reports at
// or above the confidence threshold sync to the subject's Salesforce
// account; weaker reports land in a Notion review queue for an analyst.
package deliver

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/insight-engine/internal/model"
	"github.com/sells-group/insight-engine/internal/resilience"
	"github.com/sells-group/insight-engine/pkg/notion"
	"github.com/sells-group/insight-engine/pkg/salesforce"
)

// summaryPropertyCap bounds the review page summary. Notion rejects
// rich_text items over 2000 characters.
const summaryPropertyCap = 2000

// Outcome records where a report landed.
type Outcome struct {
	Passed         bool   `json:"passed"`
	AccountID      string `json:"account_id,omitempty"`
	AccountCreated bool   `json:"account_created,omitempty"`
	ReviewPageID   string `json:"review_page_id,omitempty"`
	ReviewResolved bool   `json:"review_resolved,omitempty"`
}

// Gate decides between CRM sync and the review queue. A passing report
// also resolves any review page a weaker earlier run left behind, so the
// queue only ever holds reports still waiting on a human.
type Gate struct {
	sf        salesforce.Client
	notion    notion.Client
	reviewDB  string
	threshold float64
	retry     resilience.RetryConfig
}

// NewGate creates a delivery gate. Either client may be nil, which skips
// that destination.
func NewGate(sf salesforce.Client, nc notion.Client, reviewDB string, threshold float64) *Gate {
	return &Gate{
		sf:        sf,
		notion:    nc,
		reviewDB:  reviewDB,
		threshold: threshold,
		retry:     resilience.DefaultRetryConfig(),
	}
}

// retryLeg runs one delivery leg, retrying transient upstream failures.
// Every leg opens with a lookup, so a repeat after a half-applied attempt
// settles on update rather than duplicating records.
func (g *Gate) retryLeg(ctx context.Context, service, op string, fn func(context.Context) error) error {
	cfg := g.retry
	cfg.OnRetry = resilience.RetryLogger(service, op)
	return resilience.Do(ctx, cfg, fn)
}

// Deliver routes the report. The engine logs delivery errors and moves on;
// delivery never fails an analysis.
func (g *Gate) Deliver(ctx context.Context, report *model.AnalysisReport) error {
	_, err := g.Route(ctx, report)
	return err
}

// Route runs the delivery legs and reports where the report landed.
func (g *Gate) Route(ctx context.Context, report *model.AnalysisReport) (*Outcome, error) {
	out := &Outcome{Passed: report.Confidence >= g.threshold}
	log := zap.L().With(
		zap.String("subject", report.Request.Subject),
		zap.Float64("confidence", report.Confidence),
	)

	if !out.Passed {
		if g.notion == nil || g.reviewDB == "" {
			log.Warn("deliver: review queue not configured, low confidence report kept local only")
			return out, nil
		}
		err := g.retryLeg(ctx, "notion", "queue review", func(ctx context.Context) error {
			return g.queueReview(ctx, report, out)
		})
		if err != nil {
			return out, eris.Wrap(err, "deliver: queue review")
		}
		log.Info("deliver: report queued for review", zap.String("page_id", out.ReviewPageID))
		return out, nil
	}

	// CRM sync and review queue cleanup are independent.
	grp, gCtx := errgroup.WithContext(ctx)

	var reviewErr error
	grp.Go(func() error {
		if g.sf == nil {
			return nil
		}
		err := g.retryLeg(gCtx, "salesforce", "sync account", func(ctx context.Context) error {
			return g.syncAccount(ctx, report, out)
		})
		if err != nil {
			return eris.Wrap(err, "deliver: salesforce sync")
		}
		return nil
	})
	grp.Go(func() error {
		if g.notion == nil || g.reviewDB == "" {
			return nil
		}
		reviewErr = g.retryLeg(gCtx, "notion", "resolve review", func(ctx context.Context) error {
			return g.resolveReview(ctx, report, out)
		})
		return nil
	})

	err := grp.Wait()
	if reviewErr != nil {
		if out.AccountID != "" {
			// The CRM holds the report but its review page is still open.
			log.Error("deliver: account synced but review page not resolved, retrying",
				zap.Error(reviewErr))
			if retryErr := g.resolveReview(ctx, report, out); retryErr != nil {
				log.Error("deliver: review resolve retry failed", zap.Error(retryErr))
			}
		} else {
			log.Warn("deliver: review resolve failed", zap.Error(reviewErr))
		}
	}
	if err != nil {
		return out, err
	}

	log.Info("deliver: report synced",
		zap.String("account_id", out.AccountID),
		zap.Bool("account_created", out.AccountCreated),
		zap.Bool("review_resolved", out.ReviewResolved),
	)
	return out, nil
}

// syncAccount upserts the subject's Account. Matching is by website; a
// subject with no website always creates a fresh account.
func (g *Gate) syncAccount(ctx context.Context, report *model.AnalysisReport, out *Outcome) error {
	fields := buildAccountFields(report)

	var acct *salesforce.Account
	if report.Request.Website != "" {
		var err error
		acct, err = salesforce.FindAccountByWebsite(ctx, g.sf, report.Request.Website)
		if err != nil {
			return err
		}
	}

	if acct != nil {
		if err := salesforce.UpdateAccount(ctx, g.sf, acct.ID, fields); err != nil {
			return err
		}
		out.AccountID = acct.ID
		return nil
	}

	fields["Name"] = report.Request.Subject
	if report.Request.Website != "" {
		fields["Website"] = report.Request.Website
	}
	id, err := salesforce.CreateAccount(ctx, g.sf, fields)
	if err != nil {
		return err
	}
	out.AccountID = id
	out.AccountCreated = true
	return nil
}

func (g *Gate) queueReview(ctx context.Context, report *model.AnalysisReport, out *Outcome) error {
	page, err := notion.FindReviewPage(ctx, g.notion, g.reviewDB, report.Fingerprint)
	if err != nil {
		return err
	}

	props := reviewProperties(report, "Needs Review")
	if page != nil {
		if _, err := g.notion.UpdatePage(ctx, string(page.ID), &notionapi.PageUpdateRequest{
			Properties: props,
		}); err != nil {
			return err
		}
		out.ReviewPageID = string(page.ID)
		return nil
	}

	props["Name"] = notionapi.TitleProperty{
		Type: notionapi.PropertyTypeTitle,
		Title: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: report.Request.Subject}},
		},
	}
	props["Fingerprint"] = notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: report.Fingerprint}},
		},
	}
	created, err := g.notion.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(g.reviewDB),
		},
		Properties: props,
	})
	if err != nil {
		return err
	}
	out.ReviewPageID = string(created.ID)
	return nil
}

// resolveReview closes the fingerprint's review page, if one exists.
func (g *Gate) resolveReview(ctx context.Context, report *model.AnalysisReport, out *Outcome) error {
	page, err := notion.FindReviewPage(ctx, g.notion, g.reviewDB, report.Fingerprint)
	if err != nil {
		return err
	}
	if page == nil {
		return nil
	}

	now := notionapi.Date(time.Now())
	_, err = g.notion.UpdatePage(ctx, string(page.ID), &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{
			"Status": notionapi.StatusProperty{
				Status: notionapi.Status{Name: "Resolved"},
			},
			"Confidence": notionapi.NumberProperty{
				Number: report.Confidence,
			},
			"Last Analyzed": notionapi.DateProperty{
				Date: &notionapi.DateObject{Start: &now},
			},
		},
	})
	if err != nil {
		return eris.Wrap(err, fmt.Sprintf("deliver: resolve review page %s", page.ID))
	}
	out.ReviewResolved = true
	return nil
}

// buildAccountFields flattens report sections into Account fields. Only
// the built-in workers publish values the CRM schema knows about; custom
// worker sections stay in the stored report.
func buildAccountFields(report *model.AnalysisReport) map[string]any {
	fields := map[string]any{
		"Analysis_Confidence__c": report.Confidence,
	}
	if sec := report.Sections["classify"]; sec != nil {
		if v, _ := sec.Data["industry"].(string); v != "" {
			fields["Industry"] = v
		}
		if v, _ := sec.Data["naics_code"].(string); v != "" {
			fields["NAICS_Code__c"] = v
		}
	}
	if sec := report.Sections["risk"]; sec != nil {
		if v, _ := sec.Data["risk_level"].(string); v != "" {
			fields["Risk_Level__c"] = v
		}
	}
	if sec := report.Sections["synthesis"]; sec != nil && sec.Summary != "" {
		fields["Description"] = sec.Summary
	}
	return fields
}

func reviewProperties(report *model.AnalysisReport, status string) notionapi.Properties {
	now := notionapi.Date(time.Now())
	props := notionapi.Properties{
		"Status": notionapi.StatusProperty{
			Status: notionapi.Status{Name: status},
		},
		"Confidence": notionapi.NumberProperty{
			Number: report.Confidence,
		},
		"Failures": notionapi.NumberProperty{
			Number: float64(len(report.Failures)),
		},
		"Cost": notionapi.NumberProperty{
			Number: report.Usage.Cost,
		},
		"Partial": notionapi.CheckboxProperty{
			Checkbox: report.Partial,
		},
		"Last Analyzed": notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &now},
		},
	}
	if sec := report.Sections["synthesis"]; sec != nil && sec.Summary != "" {
		summary := sec.Summary
		if len(summary) > summaryPropertyCap {
			summary = summary[:summaryPropertyCap]
		}
		props["Summary"] = notionapi.RichTextProperty{
			Type: notionapi.PropertyTypeRichText,
			RichText: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: summary}},
			},
		}
	}
	return props
}
