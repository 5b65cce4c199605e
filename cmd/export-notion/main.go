package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/avolkov/spendwatch/internal/config"
	"github.com/avolkov/spendwatch/internal/logger"
	"github.com/avolkov/spendwatch/internal/notionexport"
	"github.com/avolkov/spendwatch/internal/store/firestore"
)

func main() {
	log := logger.New("spendwatch-export-notion")

	ownerID := flag.String("owner", "", "Owner ID whose insights to export (required)")
	notionToken := flag.String("notion-token", "", "Notion API token (defaults to NOTION_TOKEN)")
	notionDBID := flag.String("notion-db-id", "", "Notion database ID (defaults to NOTION_DB_ID)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without exporting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	token := *notionToken
	if token == "" {
		token = cfg.NotionToken
	}
	dbID := *notionDBID
	if dbID == "" {
		dbID = cfg.NotionDatabaseID
	}

	if *ownerID == "" {
		log.Fatal().Msg("Error: --owner is required")
	}
	if token == "" {
		log.Fatal().Msg("Error: --notion-token or NOTION_TOKEN is required")
	}
	if dbID == "" {
		log.Fatal().Msg("Error: --notion-db-id or NOTION_DB_ID is required")
	}

	// Bound the CLI so it doesn't hang on a stuck API.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	db, err := firestore.New(ctx, cfg.ProjectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Firestore")
	}
	defer db.Close()

	notionClient := notionexport.NewClient(token)

	if err := notionexport.ExportInsights(ctx, db, notionClient, dbID, *ownerID, *dryRun); err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}

	fmt.Println("Export completed successfully.")
}
