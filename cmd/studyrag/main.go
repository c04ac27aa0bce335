// Package main provides the studyrag CLI for study material ingestion and
// grounded question answering.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/openai/openai-go"
	"github.com/spf13/cobra"

	"github.com/bookworm-labs/studyrag/internal/chunker"
	"github.com/bookworm-labs/studyrag/internal/config"
	"github.com/bookworm-labs/studyrag/internal/embedding"
	"github.com/bookworm-labs/studyrag/internal/extractor"
	"github.com/bookworm-labs/studyrag/internal/ingest"
	"github.com/bookworm-labs/studyrag/internal/objectstore"
	"github.com/bookworm-labs/studyrag/internal/prompt"
	"github.com/bookworm-labs/studyrag/internal/retrieval"
	"github.com/bookworm-labs/studyrag/internal/store/sqlite"
	"github.com/bookworm-labs/studyrag/internal/vectorindex"
)

var rootCmd = &cobra.Command{
	Use:   "studyrag",
	Short: "Study material ingestion and retrieval tool",
	Long:  "CLI tool for ingesting study materials into Qdrant and answering questions grounded in them",
}

var initCmd = &cobra.Command{
	Use:   "init-collection",
	Short: "Create the chunk collection and payload indexes in Qdrant",
	RunE:  runInit,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <material-id> <object-key>",
	Short: "Run the full pipeline for one material",
	Long: `Fetches the material, extracts text, chunks, embeds and indexes it.

Re-ingesting an already indexed material replaces its chunks; it never
duplicates them.

Environment variables:
  QDRANT_HOST     Qdrant hostname (default: localhost)
  QDRANT_PORT     Qdrant gRPC port (default: 6334)
  DATA_DIR        SQLite data directory (default: ~/.studyrag/data)
  GCS_BUCKET      material bucket name
  MATERIAL_DIR    local material directory, used when GCS_BUCKET is unset
  OPENAI_API_KEY  OpenAI API key for embeddings (required)`,
	Args: cobra.ExactArgs(2),
	RunE: runIngest,
}

var retryCmd = &cobra.Command{
	Use:   "retry <material-id> <object-key>",
	Short: "Re-run ingestion for a failed material from scratch",
	Args:  cobra.ExactArgs(2),
	RunE:  runRetry,
}

var statusCmd = &cobra.Command{
	Use:   "status [material-id]",
	Short: "Show processing status, or all statuses when no ID is given",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question, grounded in a material when one is attached",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var (
	tenantID   string
	askTopK    int
	materialID string
)

func init() {
	ingestCmd.Flags().StringVar(&tenantID, "tenant", "", "tenant owning the material")
	retryCmd.Flags().StringVar(&tenantID, "tenant", "", "tenant owning the material")
	askCmd.Flags().StringVar(&materialID, "material", "", "material to ground the answer in")
	askCmd.Flags().IntVar(&askTopK, "top-k", retrieval.DefaultTopK, "number of chunks to retrieve")

	rootCmd.AddCommand(initCmd, ingestCmd, retryCmd, statusCmd, askCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fmt.Printf("Connecting to Qdrant at %s:%d...\n", cfg.QdrantHost, cfg.QdrantPort)
	index, err := vectorindex.New(cfg.QdrantHost, cfg.QdrantPort)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer index.Close()

	if err := index.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}
	fmt.Printf("Collection %s ready\n", vectorindex.CollectionName)

	count, err := index.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count points: %w", err)
	}
	fmt.Printf("Indexed chunks: %d\n", count)

	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	return ingestMaterial(args[0], args[1], false)
}

func runRetry(cmd *cobra.Command, args []string) error {
	return ingestMaterial(args[0], args[1], true)
}

func ingestMaterial(material, objectKey string, retry bool) error {
	ctx := context.Background()
	start := time.Now()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	kind, err := extractor.KindFromFilename(objectKey)
	if err != nil {
		return err
	}

	objects, err := newObjectStore(ctx, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("Connecting to Qdrant at %s:%d...\n", cfg.QdrantHost, cfg.QdrantPort)
	index, err := vectorindex.New(cfg.QdrantHost, cfg.QdrantPort)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer index.Close()

	if err := index.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}

	embeddingClient, err := embedding.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create embedding client: %w", err)
	}
	embedder := embedding.NewEmbedder(embeddingClient, 0) // Use default shard size

	statuses, err := sqlite.NewStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open status store: %w", err)
	}
	defer statuses.Close()

	orchestrator := ingest.NewOrchestrator(
		objects, extractor.New(), chunker.New(), embedder, index, statuses, nil)

	req := ingest.Request{
		MaterialID: material,
		TenantID:   tenantID,
		ObjectKey:  objectKey,
		Kind:       kind,
	}

	fmt.Println()
	fmt.Printf("Ingesting %s (%s)...\n", material, kind)

	var result *ingest.Result
	if retry {
		result, err = orchestrator.Retry(ctx, req)
	} else {
		result, err = orchestrator.Ingest(ctx, req)
	}
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Ingestion complete!")
	fmt.Printf("  Chunks: %d\n", result.TotalChunks)
	fmt.Printf("  Indexed: %d\n", result.IndexedChunks)
	if result.FailedChunks > 0 {
		fmt.Printf("  Failed embeddings: %d\n", result.FailedChunks)
	}
	if result.PageCount > 0 {
		fmt.Printf("  Pages: %d\n", result.PageCount)
	}
	fmt.Printf("  Duration: %s\n", time.Since(start).Round(time.Millisecond))

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	statuses, err := sqlite.NewStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open status store: %w", err)
	}
	defer statuses.Close()

	if len(args) == 1 {
		status, err := statuses.GetStatus(ctx, args[0])
		if err != nil {
			return err
		}
		printStatus(status)

		chunks, err := statuses.ListChunks(ctx, args[0])
		if err != nil {
			return err
		}
		if len(chunks) > 0 {
			fmt.Println()
			fmt.Println("Chunks:")
			for _, c := range chunks {
				marker := " "
				if !c.Embedded {
					marker = "!"
				}
				fmt.Printf("  %s %3d  %-14s %5d tokens  %s\n",
					marker, c.ChunkIndex, c.ChunkType, c.TokenCount, c.SectionTitle)
			}
		}
		return nil
	}

	all, err := statuses.ListStatuses(ctx)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Println("No materials ingested yet")
		return nil
	}
	for i := range all {
		printStatus(&all[i])
		fmt.Println()
	}
	return nil
}

func printStatus(status *ingest.ProcessingStatus) {
	fmt.Printf("Material: %s\n", status.MaterialID)
	fmt.Printf("  State: %s\n", status.State)
	fmt.Printf("  Chunks: %d indexed / %d total", status.ProcessedChunks, status.TotalChunks)
	if status.FailedChunks > 0 {
		fmt.Printf(" (%d failed)", status.FailedChunks)
	}
	fmt.Println()
	if status.ErrorMessage != "" {
		fmt.Printf("  Error: %s\n", status.ErrorMessage)
	}
	fmt.Printf("  Updated: %s\n", status.UpdatedAt.Local().Format(time.RFC3339))
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	question := args[0]

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	embeddingClient, err := embedding.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create embedding client: %w", err)
	}
	embedder := embedding.NewEmbedder(embeddingClient, 0)

	var results []vectorindex.RetrievalResult
	if materialID != "" {
		index, err := vectorindex.New(cfg.QdrantHost, cfg.QdrantPort)
		if err != nil {
			return fmt.Errorf("failed to connect to Qdrant: %w", err)
		}
		defer index.Close()

		assembler := retrieval.NewAssembler(embedder, index, nil, retrieval.WithTopK(askTopK))
		results = assembler.Assemble(ctx, materialID, question)
		fmt.Printf("Retrieved %d excerpts\n\n", len(results))
	}

	messages := prompt.NewBuilder().Build(materialID != "", results, nil, question)

	resp, err := embeddingClient.Client().Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: toOpenAIMessages(messages),
		Model:    openai.ChatModelGPT4o,
	})
	if err != nil {
		return fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("chat completion returned no choices")
	}

	fmt.Println(resp.Choices[0].Message.Content)
	fmt.Println()
	fmt.Printf("Tokens: %d prompt, %d completion\n",
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	return nil
}

func toOpenAIMessages(messages []prompt.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case prompt.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case prompt.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func newObjectStore(ctx context.Context, cfg *config.Config) (objectstore.Store, error) {
	if cfg.GCSBucket != "" {
		store, err := objectstore.NewGCS(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCS store: %w", err)
		}
		return store, nil
	}
	return objectstore.NewDir(cfg.MaterialDir)
}
