// Command insights generates the current insight set for one user from
// their recorded purchase history and prints it as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	infrabq "github.com/nimbly/receipts/internal/infra/bigquery"
	"github.com/nimbly/receipts/internal/insights"
	"github.com/nimbly/receipts/internal/logger"
)

func main() {
	fs := ff.NewFlagSet("receipts-insights")
	var (
		userID    = fs.StringLong("user", "", "User to generate insights for")
		projectID = fs.StringLong("project", "", "BigQuery project ID")
		datasetID = fs.StringLong("dataset", "receipts", "BigQuery dataset ID")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPTS"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New()
	ctx := logger.WithContext(context.Background(), log)

	if *userID == "" {
		log.Fatal().Msg("--user is required")
	}
	if *projectID == "" {
		log.Fatal().Msg("--project is required")
	}

	repo, err := infrabq.NewRepository(ctx, *projectID, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery repository")
	}
	defer repo.Close()

	engine := insights.NewEngine(repo)
	generated, err := engine.Generate(ctx, *userID)
	if err != nil {
		log.Fatal().Err(err).Str("user_id", *userID).Msg("Insight generation failed")
	}

	log.Info().Str("user_id", *userID).Int("insights", len(generated)).Msg("Insights generated")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(generated); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode insights")
	}
}
