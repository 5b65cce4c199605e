package notionexport

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/avolkov/spendwatch/internal/logger"
	"github.com/avolkov/spendwatch/internal/store"
)

// notionPageSize is the maximum page size the Notion API allows per query.
const notionPageSize = 100

// ExportInsights mirrors a user's current insights into a Notion database.
// Pages whose fingerprint is no longer present in the store (retracted or
// swept insights) are archived; insights without a page are created. The
// fingerprint property keeps the export idempotent across runs.
func ExportInsights(ctx context.Context, insights store.InsightStore, notion NotionService, databaseID, ownerID string, dryRun bool) error {
	log := logger.FromContext(ctx)

	log.Info().
		Str("owner_id", ownerID).
		Bool("dry_run", dryRun).
		Msg("Starting insight export to Notion")

	current, err := insights.QueryInsights(ctx, store.InsightQuery{OwnerID: ownerID, OrderDesc: true})
	if err != nil {
		return fmt.Errorf("ExportInsights: query insights: %w", err)
	}

	validFingerprints := make(map[string]bool, len(current))
	for _, in := range current {
		validFingerprints[in.Fingerprint] = true
	}

	pages, err := queryAllPages(ctx, notion, databaseID)
	if err != nil {
		return fmt.Errorf("ExportInsights: %w", err)
	}

	log.Info().
		Int("insight_count", len(current)).
		Int("notion_page_count", len(pages)).
		Msg("Retrieved current state")

	exported := make(map[string]bool, len(pages))
	var archived int
	for _, page := range pages {
		fp := pageFingerprint(page)
		if fp != "" && validFingerprints[fp] {
			exported[fp] = true
			continue
		}
		// Page has no fingerprint or the insight is gone; archive it.
		if dryRun {
			log.Info().
				Str("fingerprint", fp).
				Str("page_id", string(page.ID)).
				Msg("[DRY RUN] Would archive stale Notion page")
			archived++
			continue
		}
		if err := notion.DeletePage(ctx, string(page.ID)); err != nil {
			log.Warn().
				Err(err).
				Str("fingerprint", fp).
				Str("page_id", string(page.ID)).
				Msg("Failed to archive stale Notion page")
			continue
		}
		archived++
	}

	var created, skipped int
	for _, in := range current {
		if exported[in.Fingerprint] {
			skipped++
			continue
		}
		if dryRun {
			log.Info().
				Str("fingerprint", in.Fingerprint).
				Str("title", in.Title).
				Msg("[DRY RUN] Would create Notion page")
			created++
			continue
		}
		page, err := notion.CreatePage(ctx, databaseID, insightProperties(in))
		if err != nil {
			log.Warn().
				Err(err).
				Str("fingerprint", in.Fingerprint).
				Str("title", in.Title).
				Msg("Failed to create Notion page")
			continue
		}
		log.Info().
			Str("fingerprint", in.Fingerprint).
			Str("page_id", string(page.ID)).
			Msg("Created Notion page")
		created++
	}

	log.Info().
		Int("archived", archived).
		Int("created", created).
		Int("skipped", skipped).
		Int("total", len(current)).
		Msg("Insight export completed")

	return nil
}

// queryAllPages fetches every page in the database, following pagination.
func queryAllPages(ctx context.Context, notion NotionService, databaseID string) ([]notionapi.Page, error) {
	var pages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: notionPageSize}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notion.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllPages: %w", err)
		}

		pages = append(pages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return pages, nil
}
