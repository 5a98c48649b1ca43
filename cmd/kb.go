package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/paper2code/internal/progress"
	"github.com/ziadkadry99/paper2code/internal/rag"
	"github.com/ziadkadry99/paper2code/internal/vectordb"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the knowledge base",
	Long:  `The knowledge base holds passages from analyzed papers and ingested reference material (RFCs, P4 and ns-3 documentation) that ground generation and chat answers.`,
}

var kbIngestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Index reference files into the knowledge base",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIngest,
}

var kbSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Semantically search the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	kbIngestCmd.Flags().Int("concurrency", 4, "files embedded in parallel")
	kbSearchCmd.Flags().Int("limit", 5, "maximum number of results")
	kbSearchCmd.Flags().String("source", "", "filter by source: paper_analysis, reference")
	kbSearchCmd.Flags().Bool("json", false, "output results as JSON")
	kbCmd.AddCommand(kbIngestCmd, kbSearchCmd)
	rootCmd.AddCommand(kbCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	root := "."
	if len(args) == 1 {
		root = args[0]
	}
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	vectorDir := filepath.Join(cfg.DataDir, "vectordb")
	store, err := openKnowledgeBase(ctx, cfg, vectorDir)
	if err != nil {
		return err
	}

	aug := rag.New(store, rag.Options{Retry: retryPolicy(cfg)})
	stats, err := aug.Ingest(ctx, root, rag.IngestOptions{
		Include:     cfg.Knowledge.Include,
		Exclude:     cfg.Knowledge.Exclude,
		Concurrency: concurrency,
		Progress:    progress.NewReporter("Ingesting"),
	})
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", root, err)
	}

	if err := store.Persist(ctx, vectorDir); err != nil {
		return fmt.Errorf("persisting knowledge base: %w", err)
	}

	fmt.Printf("Indexed %d file(s) into %d passage(s); %d unchanged.\n", stats.Files-stats.Unchanged, stats.Chunks, stats.Unchanged)
	if verbose {
		fmt.Printf("Knowledge base now holds %d passages in %s\n", store.Count(), vectorDir)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	limit, _ := cmd.Flags().GetInt("limit")
	source, _ := cmd.Flags().GetString("source")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openKnowledgeBase(ctx, cfg, filepath.Join(cfg.DataDir, "vectordb"))
	if err != nil {
		return err
	}
	if store.Count() == 0 {
		fmt.Println("Knowledge base is empty. Analyze a paper or run `paper2code kb ingest` first.")
		return nil
	}

	var filter *vectordb.SearchFilter
	if source != "" {
		st := vectordb.SourceType(source)
		filter = &vectordb.SearchFilter{SourceType: &st}
	}

	results, err := store.Search(ctx, args[0], limit, filter)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if jsonOutput {
		return printSearchResultsJSON(results)
	}
	fmt.Print(vectordb.FormatResults(results))
	return nil
}

type searchResultJSON struct {
	Rank       int     `json:"rank"`
	Similarity float64 `json:"similarity"`
	Title      string  `json:"title,omitempty"`
	Source     string  `json:"source"`
	SourceType string  `json:"source_type"`
	Section    string  `json:"section,omitempty"`
	Summary    string  `json:"summary"`
}

func printSearchResultsJSON(results []vectordb.SearchResult) error {
	out := []searchResultJSON{}
	for i, r := range results {
		md := r.Document.Metadata
		out = append(out, searchResultJSON{
			Rank:       i + 1,
			Similarity: float64(r.Similarity),
			Title:      md.Title,
			Source:     md.SourcePath,
			SourceType: string(md.SourceType),
			Section:    md.ContentType,
			Summary:    truncate(r.Document.Content, 200),
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
