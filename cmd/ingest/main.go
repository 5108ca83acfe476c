// Command ingest runs a single local receipt file through the full
// pipeline and prints the outcome. Useful for trying the parser on a
// receipt without standing up the worker.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/nimbly/receipts/internal/alias"
	"github.com/nimbly/receipts/internal/domain"
	"github.com/nimbly/receipts/internal/extract"
	"github.com/nimbly/receipts/internal/gcs"
	"github.com/nimbly/receipts/internal/history"
	infrabq "github.com/nimbly/receipts/internal/infra/bigquery"
	"github.com/nimbly/receipts/internal/logger"
	"github.com/nimbly/receipts/internal/parse"
	"github.com/nimbly/receipts/internal/pipeline"
)

func main() {
	fs := ff.NewFlagSet("receipts-ingest")
	var (
		filePath    = fs.StringLong("file", "", "Receipt file to process (pdf, image or txt)")
		userID      = fs.StringLong("user", "local", "User the receipt belongs to")
		kindFlag    = fs.StringLong("kind", "", "Media kind override: image, pdf or text")
		bucket      = fs.StringLong("bucket", "", "GCS bucket to archive the document in before processing (empty skips upload)")
		projectID   = fs.StringLong("project", "", "BigQuery project ID (empty runs with in-memory history)")
		datasetID   = fs.StringLong("dataset", "receipts", "BigQuery dataset ID")
		aliasDB     = fs.StringLong("alias-db", "aliases.db", "Alias database file path")
		geminiModel = fs.StringLong("gemini-model", extract.DefaultOCRModel, "Gemini model for OCR")
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

	if *filePath == "" {
		log.Fatal().Msg("--file is required")
	}

	kind, err := resolveKind(*kindFlag, *filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot determine media kind")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Str("file", *filePath).Msg("Failed to read file")
	}

	var gcsURI string
	if *bucket != "" {
		documents := gcs.NewService()
		object := gcs.ObjectName(*userID, filepath.Base(*filePath))
		if err := documents.UploadDocument(ctx, *bucket, object, *filePath); err != nil {
			log.Fatal().Err(err).Str("bucket", *bucket).Msg("Failed to archive document")
		}
		gcsURI = gcs.URIFor(*bucket, object)
		log.Info().Str("uri", gcsURI).Msg("Document archived")
	}

	var repo history.Repository
	if *projectID != "" {
		bq, err := infrabq.NewRepository(ctx, *projectID, *datasetID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery repository")
		}
		defer bq.Close()
		repo = bq
	} else {
		repo = history.NewMemoryRepository()
	}

	aliases, err := alias.NewBoltStore(*aliasDB)
	if err != nil {
		log.Fatal().Err(err).Str("path", *aliasDB).Msg("Failed to open alias database")
	}
	defer aliases.Close()

	processor := pipeline.NewProcessor(
		extract.NewExtractor(extract.NewGeminiOCR(*geminiModel)),
		parse.NewParser(),
		aliases,
		repo,
	)

	state, err := processor.ProcessReceipt(ctx, *userID, domain.RawDocument{Bytes: data, Kind: kind})
	if err != nil {
		log.Fatal().Err(err).Msg("Receipt processing failed")
	}

	out := struct {
		ReceiptID    string                    `json:"receipt_id"`
		GCSURI       string                    `json:"gcs_uri,omitempty"`
		StoreKey     domain.Key                `json:"store_key"`
		Parsed       domain.ParsedReceipt      `json:"parsed"`
		Observations []domain.PriceObservation `json:"observations"`
	}{
		ReceiptID:    state.ReceiptID,
		GCSURI:       gcsURI,
		StoreKey:     state.StoreKey,
		Parsed:       state.Parsed,
		Observations: state.Observations,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode result")
	}
}

func resolveKind(flag, file string) (domain.MediaKind, error) {
	switch flag {
	case "image":
		return domain.MediaKindImage, nil
	case "pdf":
		return domain.MediaKindPDF, nil
	case "text":
		return domain.MediaKindText, nil
	case "":
		if kind, ok := gcs.MediaKindForFilename(filepath.Base(file)); ok {
			return kind, nil
		}
		return "", fmt.Errorf("unrecognized extension %q, pass --kind", filepath.Ext(file))
	}
	return "", fmt.Errorf("unknown media kind %q", flag)
}
