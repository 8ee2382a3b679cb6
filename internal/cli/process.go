package cli

import (
	"fmt"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process [directory]",
	Short: "Process documents into the index",
	Long: `Extract, chunk, embed and index every supported document under the
directory. Unchanged documents are skipped; changed documents replace
their previous version.

Examples:
  regrag process
  regrag process ./contracts
  regrag process -d ./docs --config ./regrag.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	dir := rootDir
	if len(args) > 0 {
		dir = args[0]
	}

	p, err := openPipeline(dir, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	fmt.Printf("Scanning %s...\n", dir)

	var bar *progressbar.ProgressBar
	var barMu sync.Mutex

	progress := func(done, total int, name string) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Processing[reset]"),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}
		bar.Set(done)
	}

	result, err := p.process.ProcessAll(cmd.Context(), progress)
	if err != nil {
		return fmt.Errorf("processing failed: %w", err)
	}

	fmt.Printf("\nProcessed %d documents: %d succeeded, %d unchanged, %d failed\n",
		result.Total, result.Succeeded, result.Skipped, result.Failed)
	fmt.Printf("Index: %d vectors (dimension %d)\n", p.index.Count(), p.index.Dimension())

	for _, e := range result.Errors {
		fmt.Printf("  FAILED %s: %s\n", e.Name, e.Reason)
	}

	return nil
}
