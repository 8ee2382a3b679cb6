package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"regrag/config"
	"regrag/internal/usecase"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline state",
	Long:  `Show the processed documents, chunk counts and index size.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(config.StoreDBPath(rootDir)); os.IsNotExist(err) {
		fmt.Println("No documents processed yet. Run 'regrag process' first.")
		return nil
	}

	p, err := openPipeline(rootDir, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	status, err := usecase.NewStatusUseCase(p.store, p.index).Status()
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}

	if statusJSON {
		output, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Documents: %d\n", len(status.Documents))
	fmt.Printf("Chunks:    %d\n", status.TotalChunks)
	fmt.Printf("Vectors:   %d (dimension %d)\n", status.TotalVectors, status.Dimension)

	if len(status.Documents) > 0 {
		fmt.Println()
		for _, d := range status.Documents {
			embedded := "pending"
			if d.Embedded {
				embedded = "embedded"
			}
			fmt.Printf("  %s  %s  type=%s pages=%d chunks=%d tokens=%d %s\n",
				d.Document.ID, d.Document.SourceURI, d.Document.Type,
				d.Document.PageCount, d.ChunkCount, d.TokenTotal, embedded)
		}
	}
	return nil
}
