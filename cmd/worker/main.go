package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/nimbly/receipts/internal/alias"
	"github.com/nimbly/receipts/internal/domain"
	"github.com/nimbly/receipts/internal/extract"
	"github.com/nimbly/receipts/internal/gcs"
	"github.com/nimbly/receipts/internal/history"
	infrabq "github.com/nimbly/receipts/internal/infra/bigquery"
	"github.com/nimbly/receipts/internal/jobs"
	"github.com/nimbly/receipts/internal/jobs/inmemory"
	"github.com/nimbly/receipts/internal/logger"
	"github.com/nimbly/receipts/internal/parse"
	"github.com/nimbly/receipts/internal/pipeline"
)

func main() {
	fs := ff.NewFlagSet("receipts-worker")
	var (
		projectID   = fs.StringLong("project", "", "BigQuery project ID (empty runs with in-memory history)")
		datasetID   = fs.StringLong("dataset", "receipts", "BigQuery dataset ID")
		aliasDB     = fs.StringLong("alias-db", "aliases.db", "Alias database file path")
		geminiModel = fs.StringLong("gemini-model", extract.DefaultOCRModel, "Gemini model for OCR")
		queueSize   = fs.IntLong("queue-size", 100, "Pending job buffer; submissions beyond it are rejected")
		workers     = fs.IntLong("workers", 4, "Concurrent scan workers, sized to OCR capacity")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPTS"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New()
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	var repo history.Repository
	if *projectID != "" {
		bq, err := infrabq.NewRepository(ctx, *projectID, *datasetID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery repository")
		}
		defer bq.Close()
		repo = bq
	} else {
		log.Warn().Msg("No project configured, history is in-memory only")
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
	documents := gcs.NewService()

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(*queueSize, *workers, jobStore)

	handler := func(ctx context.Context, job jobs.Job) error {
		scanJob, ok := job.(*jobs.ScanReceiptJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", scanJob.JobID).
			Str("user_id", scanJob.UserID).
			Str("gcs_uri", scanJob.GCSURI).
			Msg("Processing scan job")

		doc, err := resolveDocument(ctx, documents, scanJob)
		if err != nil {
			log.Error().Err(err).Str("job_id", scanJob.JobID).Msg("Failed to resolve document")
			return err
		}

		if _, err := processor.ProcessReceipt(ctx, scanJob.UserID, doc); err != nil {
			log.Error().Err(err).Str("job_id", scanJob.JobID).Msg("Receipt processing failed")
			return err
		}
		return nil
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().
		Int("workers", *workers).
		Int("queue_size", *queueSize).
		Msg("Worker service started, waiting for jobs")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}

// resolveDocument produces the raw document for a scan job, either the
// inline bytes or a download from object storage.
func resolveDocument(ctx context.Context, documents gcs.DocumentStore, job *jobs.ScanReceiptJob) (domain.RawDocument, error) {
	if job.Document != nil {
		return *job.Document, nil
	}
	if job.GCSURI == "" {
		return domain.RawDocument{}, fmt.Errorf("job %s carries neither document bytes nor a storage URI", job.JobID)
	}

	data, err := documents.FetchDocument(ctx, job.GCSURI)
	if err != nil {
		return domain.RawDocument{}, fmt.Errorf("fetching %s: %w", job.GCSURI, err)
	}

	kind := job.MediaKind
	if kind == "" {
		inferred, ok := gcs.MediaKindForFilename(documents.FilenameFromURI(job.GCSURI))
		if !ok {
			return domain.RawDocument{}, fmt.Errorf("cannot infer media kind for %s", job.GCSURI)
		}
		kind = inferred
	}
	return domain.RawDocument{Bytes: data, Kind: kind}, nil
}
