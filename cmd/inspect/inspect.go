package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/markdave123-py/Pagewise/internal/core/chunker"
	"github.com/markdave123-py/Pagewise/internal/core/extractor"
	"github.com/markdave123-py/Pagewise/internal/core/ingestion_engine"
	"github.com/markdave123-py/Pagewise/internal/core/layout"
	"github.com/markdave123-py/Pagewise/internal/core/sanitizer"
	"github.com/markdave123-py/Pagewise/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "inspect <file.pdf>",
	Short: "Show how a PDF would be read and chunked",
	Long: `Reads a PDF the way the ingestion service does and prints the reconstructed
pages and the chunk plan. Nothing is embedded or stored.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runInspect,
}

var (
	pagesFlag    string
	noChunks     bool
	jsonOutput   bool
	chunkSize    int
	chunkOverlap int
	maxPages     int
	verbose      bool
)

func init() {
	rootCmd.Flags().StringVar(&pagesFlag, "pages", "", "Comma separated 1-based pages to show")
	rootCmd.Flags().BoolVar(&noChunks, "no-chunks", false, "Skip the chunk plan")
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of tables")
	rootCmd.Flags().IntVar(&chunkSize, "chunk-size", chunker.DefaultChunkSize, "Maximum characters per chunk")
	rootCmd.Flags().IntVar(&chunkOverlap, "overlap", chunker.DefaultOverlap, "Overlap characters between chunks")
	rootCmd.Flags().IntVar(&maxPages, "max-pages", 10000, "Refuse documents with more pages")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log reader warnings")
}

type report struct {
	*ingestion_engine.Extraction
	Chunks []chunker.Chunk `json:"chunks,omitempty"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	only, err := parsePages(pagesFlag)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	if err := ingestion_engine.ValidateUpload(data, 0, 0); err != nil {
		return err
	}
	scanner := sanitizer.NewScanner()
	if v := scanner.ScanBytes(data); v.Dangerous {
		return &sanitizer.ThreatError{Reason: v.Reason}
	}

	var log *zap.Logger
	if verbose {
		log = logger.NewOrNop(true)
	}
	ext := extractor.NewPDFExtractor(extractor.NewDocconvExtractor(), log)
	ex, err := ingestion_engine.NewReader(ext, layout.DefaultOptions(), maxPages, log).Read(data, args[0], only, nil)
	if err != nil {
		return err
	}

	rep := report{Extraction: ex}
	if !noChunks {
		c := chunker.New(chunker.WithChunkSize(chunkSize), chunker.WithOverlap(chunkOverlap), chunker.WithScanner(scanner))
		if rep.Chunks, err = c.Chunk(ex.Pages); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	render(out, rep, !noChunks)
	return nil
}

func render(w io.Writer, rep report, withChunks bool) {
	fmt.Fprintf(w, "Title: %s\nPages: %d\n\n", rep.Title, rep.Metadata.NumPages)

	pages := tablewriter.NewWriter(w)
	pages.SetHeader([]string{"Page", "Printed", "Section", "Chars", "Preview"})
	for _, p := range rep.Pages {
		pages.Append([]string{
			strconv.Itoa(p.Index),
			p.PrintedLabel,
			p.Section,
			strconv.Itoa(p.CharCount),
			chunker.Preview(p.Text, 60),
		})
	}
	pages.Render()

	if !withChunks {
		return
	}
	fmt.Fprintf(w, "\nChunks: %d\n\n", len(rep.Chunks))
	chunks := tablewriter.NewWriter(w)
	chunks.SetHeader([]string{"Chunk", "Pages", "Printed", "Sections", "Chars", "Preview"})
	for _, ch := range rep.Chunks {
		chunks.Append([]string{
			strconv.Itoa(ch.Index),
			joinInts(ch.Pages),
			strings.Join(ch.PrintedPages, ","),
			strings.Join(ch.Sections, ","),
			strconv.Itoa(ch.CharCount),
			chunker.Preview(ch.Text, 60),
		})
	}
	chunks.Render()
}

func parsePages(raw string) ([]int, error) {
	if raw == "" {
		return nil, nil
	}
	var out []int
	for _, p := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid page %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

func joinInts(in []int) string {
	s := make([]string, len(in))
	for i, n := range in {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, ",")
}
