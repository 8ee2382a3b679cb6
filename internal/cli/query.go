package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"regrag/config"
	"regrag/internal/adapter/retriever"
	"regrag/internal/domain"
	"regrag/internal/usecase"
)

// answerThreshold is the lower similarity floor used when synthesizing
// an answer. Weakly related context still helps the model more than an
// empty prompt, so answering admits more than raw search does.
const answerThreshold = 0.2

var (
	queryText      string
	queryDoc       string
	queryTopK      int
	queryThreshold float64
	queryJSON      bool
	querySearch    bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Ask a question against the indexed documents",
	Long: `Search the indexed documents and synthesize a grounded answer with
cited sources. With --search, print the ranked chunks instead of
answering.

Examples:
  regrag query -q "what is the data retention period?"
  regrag query -q "penalty clauses" --doc contract.pdf
  regrag query -q "breach notification" --search --top-k 10 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "question or search text (required)")
	queryCmd.Flags().StringVar(&queryDoc, "doc", "", "restrict to one document (id, title or file name)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().Float64Var(&queryThreshold, "threshold", 0, "minimum similarity score (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.Flags().BoolVar(&querySearch, "search", false, "print ranked chunks without answering")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(config.StoreDBPath(rootDir)); os.IsNotExist(err) {
		return fmt.Errorf("no index found. Run 'regrag process' first")
	}

	p, err := openPipeline(rootDir, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	topK := cfg.Retrieve.TopK
	if queryTopK > 0 {
		topK = queryTopK
	}

	if querySearch {
		threshold := cfg.Retrieve.SimilarityThreshold
		if cmd.Flags().Changed("threshold") {
			threshold = queryThreshold
		}
		return runSearch(p, topK, threshold)
	}

	threshold := answerThreshold
	if cmd.Flags().Changed("threshold") {
		threshold = queryThreshold
	}

	answerUC, err := newAnswerUseCase(p, cfg, logger)
	if err != nil {
		return err
	}

	answer, err := answerUC.Answer(cmd.Context(), queryText, usecase.QueryOptions{
		DocumentFilter: queryDoc,
		TopK:           topK,
		Threshold:      threshold,
	})
	if errors.Is(err, domain.ErrNoRelevantContext) {
		fmt.Println("No relevant content found in the indexed documents.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		output, _ := json.MarshalIndent(answer, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Println(answer.Text)
	fmt.Println()
	if answer.Confidence == domain.ConfidenceLow {
		fmt.Println("(answer service unavailable, showing most relevant passage)")
	}
	if len(answer.Sources) > 0 {
		fmt.Println("Sources:")
		for _, s := range answer.Sources {
			fmt.Printf("  - %s (chunk %d, score %.2f)\n", s.Title, s.ChunkIndex, s.Score)
		}
	}
	return nil
}

func runSearch(p *pipeline, topK int, threshold float64) error {
	docID := ""
	if queryDoc != "" {
		var err error
		docID, err = usecase.ResolveDocument(p.store, queryDoc)
		if err != nil {
			return err
		}
	}

	results, err := p.retriever.Search(queryText, retriever.Options{
		TopK:       topK,
		Threshold:  threshold,
		DocumentID: docID,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if queryJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	fmt.Printf("Found %d results for: %s\n\n", len(results), queryText)
	for i, r := range results {
		fmt.Printf("--- [%d] %s (score: %.2f) ---\n", i+1, r.ChunkID, r.Score)
		text := r.Text
		if len(text) > 500 {
			text = text[:500] + "..."
		}
		fmt.Println(text)
		fmt.Println()
	}
	return nil
}
