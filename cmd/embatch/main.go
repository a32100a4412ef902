// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/embatch/ai"
	aiopenai "github.com/poiesic/embatch/ai/openai"
	"github.com/poiesic/embatch/batchapi"
	batchopenai "github.com/poiesic/embatch/batchapi/openai"
	"github.com/poiesic/embatch/core"
	"github.com/poiesic/embatch/ledger"
	badgerledger "github.com/poiesic/embatch/ledger/badger"
	"github.com/poiesic/embatch/ledger/jsonfile"
	"github.com/poiesic/embatch/pipeline"
	"github.com/poiesic/embatch/store"
	"github.com/poiesic/embatch/store/postgres"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "embatch",
		Usage: "Batch embedding orchestrator for social records",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "estimate",
				Usage:  "Project the submission cost of all pending records",
				Action: estimateCommand,
				Flags:  append(storeFlags(), collectionsFlag()),
			},
			{
				Name:   "submit",
				Usage:  "Chunk pending records and submit them as batch jobs",
				Action: submitCommand,
				Flags: append(append(storeFlags(), ledgerFlags()...),
					collectionsFlag(),
					apiKeyFlag(),
					&cli.StringFlag{
						Name:  "workdir",
						Usage: "Directory for chunk request files",
						Value: "batchwork",
					},
					&cli.StringFlag{
						Name:  "model",
						Usage: "Embedding model name",
						Value: "text-embedding-3-small",
					},
					&cli.IntFlag{
						Name:  "chunk-size",
						Usage: "Maximum records per chunk file",
						Value: 50000,
					},
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Skip the cost confirmation prompt",
					},
				),
			},
			{
				Name:   "status",
				Usage:  "Poll in-flight jobs and print the ledger summary",
				Action: statusCommand,
				Flags: append(ledgerFlags(),
					apiKeyFlag(),
					&cli.BoolFlag{
						Name:  "no-poll",
						Usage: "Print the ledger without contacting the service",
					},
					&cli.StringFlag{
						Name:  "job",
						Usage: "Show full detail for a single job id",
					},
				),
			},
			{
				Name:   "process",
				Usage:  "Apply results of completed jobs to the database",
				Action: processCommand,
				Flags:  append(append(storeFlags(), ledgerFlags()...), apiKeyFlag()),
			},
			{
				Name:   "cleanup",
				Usage:  "Evict failed jobs and their chunk files so they can be resubmitted",
				Action: cleanupCommand,
				Flags:  ledgerFlags(),
			},
			{
				Name:   "embed-sync",
				Usage:  "Embed pending records synchronously, without the batch service",
				Action: embedSyncCommand,
				Flags: append(storeFlags(),
					collectionsFlag(),
					apiKeyFlag(),
					&cli.StringFlag{
						Name:  "embedding-host",
						Usage: "Embedding service host URL",
						Value: "https://api.openai.com/v1",
					},
					&cli.StringFlag{
						Name:  "model",
						Usage: "Embedding model name",
						Value: "text-embedding-3-small",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of records to embed per request",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed requests",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "dsn",
			Usage:   "PostgreSQL connection string",
			EnvVars: []string{"DATABASE_URL"},
		},
	}
}

func ledgerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "ledger",
			Usage: "Path to the job ledger (file or directory, per backend)",
			Value: "batch-ledger.json",
		},
		&cli.StringFlag{
			Name:  "ledger-backend",
			Usage: "Ledger backend (jsonfile, badger)",
			Value: "jsonfile",
		},
	}
}

func collectionsFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "collections",
		Usage: "Comma-separated collections to operate on (posts, events, actors)",
		Value: "posts,events,actors",
	}
}

func apiKeyFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "api-key",
		Usage:   "API key for the external service",
		EnvVars: []string{"OPENAI_API_KEY"},
	}
}

// setup loads .env if present and configures the default logger.
func setup(c *cli.Context) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	levelStr := strings.ToLower(c.String("log-level"))
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

func openLedger(c *cli.Context) (ledger.Store, error) {
	path := c.String("ledger")
	switch backend := c.String("ledger-backend"); backend {
	case "jsonfile":
		return jsonfile.Open(path)
	case "badger":
		return badgerledger.Open(path, false)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q: must be jsonfile or badger", backend)
	}
}

func openStore(ctx context.Context, c *cli.Context) (store.ItemStore, error) {
	dsn := c.String("dsn")
	if dsn == "" {
		return nil, fmt.Errorf("database connection string is required (--dsn or DATABASE_URL)")
	}
	return postgres.New(ctx, dsn)
}

func newService(c *cli.Context) (batchapi.Service, error) {
	return batchopenai.NewClient(batchopenai.Config{
		APIKey: c.String("api-key"),
	})
}

// selectSpecs resolves the --collections flag against the known specs,
// preserving flag order.
func selectSpecs(c *cli.Context) ([]core.CollectionSpec, error) {
	known := core.DefaultSpecs()
	var specs []core.CollectionSpec
	for _, name := range strings.Split(c.String("collections"), ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		spec, ok := known[core.Collection(name)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", core.ErrUnknownCollection, name)
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no collections selected")
	}
	return specs, nil
}

func estimateCommand(c *cli.Context) error {
	ctx := context.Background()

	specs, err := selectSpecs(c)
	if err != nil {
		return err
	}

	items, err := openStore(ctx, c)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer items.Close()

	estimates, err := pipeline.NewEstimator(items).Estimate(ctx, specs)
	if err != nil {
		return err
	}

	printEstimates(os.Stdout, estimates)
	return nil
}

func printEstimates(w *os.File, estimates []pipeline.Estimate) {
	var totalItems int64
	var totalCost float64
	for _, est := range estimates {
		fmt.Fprintf(w, "%-10s %12d items  %14.0f tokens  $%.4f\n",
			est.Collection, est.PendingItems, est.EstimatedTokens, est.EstimatedCost)
		totalItems += est.PendingItems
		totalCost += est.EstimatedCost
	}
	fmt.Fprintf(w, "%-10s %12d items  %31s$%.4f\n", "total", totalItems, "", totalCost)
}

func submitCommand(c *cli.Context) error {
	ctx := context.Background()

	specs, err := selectSpecs(c)
	if err != nil {
		return err
	}

	items, err := openStore(ctx, c)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer items.Close()

	led, err := openLedger(c)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer led.Close()

	svc, err := newService(c)
	if err != nil {
		return err
	}

	// Show the projected cost before anything is uploaded.
	estimates, err := pipeline.NewEstimator(items).Estimate(ctx, specs)
	if err != nil {
		return err
	}
	printEstimates(os.Stderr, estimates)

	if !c.Bool("yes") {
		if !confirm(os.Stdin, os.Stderr, "Submit these records?") {
			fmt.Fprintln(os.Stderr, "Aborted.")
			return nil
		}
	}

	cfg := pipeline.DefaultConfig()
	cfg.Model = c.String("model")
	cfg.MaxItemsPerChunk = c.Int("chunk-size")
	cfg.WorkDir = c.String("workdir")
	if cfg.MaxItemsPerChunk <= 0 {
		return fmt.Errorf("chunk-size must be greater than 0")
	}

	builder := pipeline.NewChunkBuilder(items, cfg)
	submitter := pipeline.NewSubmitter(led, svc)

	for _, spec := range specs {
		built, err := builder.Build(ctx, spec)
		if err != nil {
			return fmt.Errorf("failed to chunk %s: %w", spec.Name, err)
		}
		if len(built.Chunks) == 0 {
			fmt.Fprintf(os.Stderr, "%s: nothing pending\n", spec.Name)
			continue
		}

		result, err := submitter.SubmitChunks(ctx, built.Chunks)
		if err != nil {
			return fmt.Errorf("failed to submit %s: %w", spec.Name, err)
		}
		fmt.Fprintf(os.Stderr, "%s: %d chunks submitted, %d skipped\n",
			spec.Name, result.Submitted, result.Skipped)
	}

	return nil
}

// confirm prompts on w and reads a yes/no answer from r.
func confirm(r *os.File, w *os.File, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

func statusCommand(c *cli.Context) error {
	ctx := context.Background()

	led, err := openLedger(c)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer led.Close()

	if !c.Bool("no-poll") {
		svc, err := newService(c)
		if err != nil {
			return err
		}
		result, err := pipeline.NewTracker(led, svc).Poll(ctx)
		if err != nil {
			return fmt.Errorf("failed to poll jobs: %w", err)
		}
		if result.Unreached > 0 {
			fmt.Fprintf(os.Stderr, "%d jobs unreachable, statuses may be stale\n", result.Unreached)
		}
	}

	jobs, err := led.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}

	if jobID := c.String("job"); jobID != "" {
		i := ledger.FindByID(jobs, jobID)
		if i < 0 {
			return fmt.Errorf("job %s not found in ledger", jobID)
		}
		printJobDetail(os.Stdout, jobs[i])
		return nil
	}

	if len(jobs) == 0 {
		fmt.Println("Ledger is empty.")
		return nil
	}

	counts := make(map[core.JobStatus]int)
	for _, job := range jobs {
		counts[job.Status]++
		processed := ""
		if job.Processed {
			processed = " processed"
		}
		fmt.Printf("%-30s %-8s chunk %-4d %-12s %6d items%s\n",
			job.ID, job.Collection, job.ChunkIndex, job.Status, job.ItemCount, processed)
	}

	fmt.Println()
	for _, status := range []core.JobStatus{
		core.StatusSubmitted, core.StatusInProgress, core.StatusCompleted,
		core.StatusFailed, core.StatusCancelled, core.StatusExpired,
	} {
		if counts[status] > 0 {
			fmt.Printf("%-12s %d\n", status, counts[status])
		}
	}
	return nil
}

func printJobDetail(w *os.File, job core.BatchJob) {
	fmt.Fprintf(w, "id:            %s\n", job.ID)
	fmt.Fprintf(w, "collection:    %s\n", job.Collection)
	fmt.Fprintf(w, "chunk:         %d\n", job.ChunkIndex)
	fmt.Fprintf(w, "items:         %d\n", job.ItemCount)
	fmt.Fprintf(w, "status:        %s\n", job.Status)
	fmt.Fprintf(w, "processed:     %t\n", job.Processed)
	fmt.Fprintf(w, "chunk file:    %s\n", job.ChunkFile)
	if job.InputDigest != "" {
		fmt.Fprintf(w, "digest:        %s\n", job.InputDigest)
	}
	if job.OutputReference != "" {
		fmt.Fprintf(w, "output:        %s\n", job.OutputReference)
	}
	fmt.Fprintf(w, "submitted at:  %s\n", job.SubmittedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Fprintf(w, "completed at:  %s\n", job.CompletedAt.Format(time.RFC3339))
	}
	if job.ProcessedAt != nil {
		fmt.Fprintf(w, "processed at:  %s\n", job.ProcessedAt.Format(time.RFC3339))
	}
}

func processCommand(c *cli.Context) error {
	ctx := context.Background()

	led, err := openLedger(c)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer led.Close()

	items, err := openStore(ctx, c)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer items.Close()

	svc, err := newService(c)
	if err != nil {
		return err
	}

	// Refresh statuses first so jobs that completed since the last run are
	// picked up in the same invocation.
	if _, err := pipeline.NewTracker(led, svc).Poll(ctx); err != nil {
		return fmt.Errorf("failed to poll jobs: %w", err)
	}

	applier := pipeline.NewApplier(led, svc, items, core.DefaultSpecs())
	result, err := applier.Apply(ctx)
	if err != nil {
		return fmt.Errorf("processing failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "%d jobs applied, %d rows updated, %d lines skipped\n",
		result.JobsApplied, result.RowsUpdated, result.LinesSkipped)
	return nil
}

func cleanupCommand(c *cli.Context) error {
	ctx := context.Background()

	led, err := openLedger(c)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer led.Close()

	result, err := pipeline.Cleanup(ctx, led)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "%d jobs removed, %d chunk files deleted\n",
		len(result.Removed), result.FilesDeleted)
	return nil
}

func embedSyncCommand(c *cli.Context) error {
	ctx := context.Background()

	specs, err := selectSpecs(c)
	if err != nil {
		return err
	}

	items, err := openStore(ctx, c)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer items.Close()

	aiConfig := ai.NewConfig(
		ai.WithHost(c.String("embedding-host")),
		ai.WithModel(c.String("model")),
		ai.WithAPIKey(c.String("api-key")),
	)
	if err := aiConfig.Validate(); err != nil {
		return fmt.Errorf("invalid embedding configuration: %w", err)
	}

	embedder, err := aiopenai.NewEmbedder(aiConfig)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	batchSize := c.Int("batch-size")
	if batchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	maxRetries := c.Int("max-retries")
	if maxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}
	retryDelay := c.Duration("retry-delay")

	for _, spec := range specs {
		pending, err := items.CountMissing(ctx, spec)
		if err != nil {
			return fmt.Errorf("failed to count pending %s records: %w", spec.Name, err)
		}
		if pending == 0 {
			fmt.Fprintf(os.Stderr, "%s: nothing pending\n", spec.Name)
			continue
		}

		progress := pipeline.NewProgressTracker(os.Stderr, string(spec.Name), int(pending), 100)
		err = items.FetchMissing(ctx, spec, batchSize, func(batch []core.Item) error {
			texts := make([]string, len(batch))
			for i, item := range batch {
				texts[i] = item.Text
			}

			var vectors [][]float32
			err := pipeline.RetryWithBackoff(ctx, func() error {
				var err error
				vectors, err = embedder.EmbedTexts(ctx, texts)
				return err
			}, maxRetries, retryDelay)
			if err != nil {
				return fmt.Errorf("failed to embed batch: %w", err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
			}

			updates := make([]core.EmbeddingUpdate, len(batch))
			for i, item := range batch {
				updates[i] = core.EmbeddingUpdate{Identity: item.Identity, Vector: vectors[i]}
			}
			if err := items.UpdateEmbeddings(ctx, spec, updates); err != nil {
				return fmt.Errorf("failed to store embeddings: %w", err)
			}

			progress.Increment(len(batch))
			return nil
		})
		if err != nil {
			return fmt.Errorf("embedding %s failed: %w", spec.Name, err)
		}
		progress.Finish()
	}

	return nil
}
