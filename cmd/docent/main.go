// Command docent is a retrieval-augmented QA assistant over a private
// document corpus.
//
// Usage:
//
//	docent ingest <dir>   chunk and index every supported file under dir
//	docent chat           interactive REPL against the indexed corpus
//
// Configuration comes from docent.toml (path via DOCENT_CONFIG) plus
// DOCENT_* environment variables; a .env file in the working directory is
// loaded first.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/docent-ai/docent"
	cpsqlite "github.com/docent-ai/docent/checkpoint/sqlite"
	idxpostgres "github.com/docent-ai/docent/index/postgres"
	idxsqlite "github.com/docent-ai/docent/index/sqlite"
	"github.com/docent-ai/docent/ingest"
	"github.com/docent-ai/docent/internal/config"
	"github.com/docent-ai/docent/observer"
	"github.com/docent-ai/docent/provider/openaicompat"
	"github.com/docent-ai/docent/store/jsonfile"
	"github.com/docent-ai/docent/tools/retrieval"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg := config.Load(os.Getenv("DOCENT_CONFIG"))
	if err := cfg.Validate(); err != nil {
		log.Fatalf("docent: invalid configuration: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	var err error
	switch os.Args[1] {
	case "ingest":
		if len(os.Args) < 3 {
			usage()
			os.Exit(2)
		}
		err = runIngest(ctx, cfg, logger, os.Args[2])
	case "chat":
		err = runChat(ctx, cfg, logger)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("docent: %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: docent <ingest <dir> | chat>")
}

// openIndex builds the configured index backend. The returned cleanup
// closes whatever the backend owns.
func openIndex(ctx context.Context, cfg config.Config, logger *slog.Logger) (docent.Index, func(), error) {
	switch cfg.Index.Backend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Index.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		idx := idxpostgres.New(pool,
			idxpostgres.WithEmbeddingDimension(cfg.Embedding.Dimensions),
			idxpostgres.WithMinScore(float32(cfg.Retrieval.MinScore)),
			idxpostgres.WithKeywordWeight(float32(cfg.Retrieval.KeywordWeight)),
		)
		return idx, pool.Close, nil
	default:
		idx := idxsqlite.New(cfg.Index.Path,
			idxsqlite.WithLogger(logger),
			idxsqlite.WithMinScore(float32(cfg.Retrieval.MinScore)),
			idxsqlite.WithKeywordWeight(float32(cfg.Retrieval.KeywordWeight)),
		)
		return idx, func() { _ = idx.Close() }, nil
	}
}

func runIngest(ctx context.Context, cfg config.Config, logger *slog.Logger, dir string) error {
	index, cleanup, err := openIndex(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	if err := index.Init(ctx); err != nil {
		return err
	}

	parents, err := jsonfile.New(cfg.Store.ParentDir)
	if err != nil {
		return err
	}
	embedding := openaicompat.NewEmbedding(
		cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.BaseURL, cfg.Embedding.Dimensions)

	chunker := ingest.NewHierarchicalChunker(
		ingest.WithParentBounds(cfg.Chunking.MinParentSize, cfg.Chunking.MaxParentSize),
		ingest.WithChildSizing(cfg.Chunking.ChildSize, cfg.Chunking.ChildOverlap),
	)
	pipeline := ingest.NewPipeline(chunker, parents, index, embedding, ingest.WithLogger(logger))

	res, err := pipeline.IngestDir(ctx, dir)
	if err != nil {
		return err
	}
	fmt.Printf("ingested %d documents: %d parent sections, %d fragments\n",
		res.Documents, res.Parents, res.Fragments)
	return nil
}

func runChat(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	index, cleanup, err := openIndex(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	if err := index.Init(ctx); err != nil {
		return err
	}

	parents, err := jsonfile.New(cfg.Store.ParentDir)
	if err != nil {
		return err
	}
	embedding := openaicompat.NewEmbedding(
		cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.BaseURL, cfg.Embedding.Dimensions)
	llm := openaicompat.NewProvider(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)

	checkpoints := cpsqlite.New(cfg.Store.CheckpointPath)
	defer checkpoints.Close()
	if err := checkpoints.Init(ctx); err != nil {
		return err
	}

	opts := []docent.OrchestratorOption{
		docent.WithLogger(logger),
		docent.WithCheckpointer(checkpoints),
	}
	if cfg.Observer.Enabled {
		shutdown, err := observer.Init(ctx, cfg.Observer.Endpoint)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown(ctx)
		opts = append(opts, docent.WithTracer(observer.NewTracer()))
	}

	tool := retrieval.New(index, embedding, parents,
		retrieval.WithTopK(cfg.Retrieval.TopK))
	orch := docent.NewOrchestrator(llm, []docent.Tool{tool}, opts...)
	session := docent.NewSession(orch)

	fmt.Println("docent chat. /reset clears the session, /quit exits.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit", line == "/exit":
			return nil
		case line == "/reset":
			session.Reset(ctx)
			fmt.Println("session reset")
			continue
		}
		fmt.Println(session.Submit(ctx, line))
	}
}
