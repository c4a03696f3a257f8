package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vmunix/autostrm/internal/config"
	"github.com/vmunix/autostrm/internal/jobs"
	"github.com/vmunix/autostrm/internal/upstream"
)

var parseCmd = &cobra.Command{
	Use:   "parse <name>",
	Short: "Preview where a release would be written",
	Long: `Shows the category a release name would be filed under and the .strm
path it would produce. Works offline from the configured roots; category
overrides stored by the daemon are not applied.`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

var (
	parseCategory string
	parseFile     string
)

func init() {
	parseCmd.Flags().StringVar(&parseCategory, "category", "", "Category (default: guessed from the name)")
	parseCmd.Flags().StringVar(&parseFile, "file", "", "File name inside the release (default: the name itself)")
	rootCmd.AddCommand(parseCmd)
}

// ParseResult is the path preview for one release name.
type ParseResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Naming   string `json:"naming"`
	Root     string `json:"root"`
	Path     string `json:"path"`
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	res, err := previewPath(cfg, args[0], parseCategory, parseFile)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, res)
	}
	printParseResult(out, res)
	return nil
}

func previewPath(cfg *config.Config, name, category, file string) (ParseResult, error) {
	category = jobs.GuessCategory(category, name, cfg.Library.TVCategory, cfg.Library.MoviesCategory)
	if file == "" {
		file = name
	}

	layout := layoutFor(cfg)
	job := &jobs.Job{Name: name, Category: category}
	p, err := layout.OutputPath(job, upstream.File{Path: file})
	if err != nil {
		return ParseResult{}, err
	}

	naming := "movie"
	if layout.IsTV(category) {
		naming = "tv"
	}
	return ParseResult{
		Name:     name,
		Category: category,
		Naming:   naming,
		Root:     layout.Root(category),
		Path:     p,
	}, nil
}

func printParseResult(w io.Writer, r ParseResult) {
	_, _ = fmt.Fprintf(w, "  %-10s %s\n", "Name:", r.Name)
	_, _ = fmt.Fprintf(w, "  %-10s %s (%s naming)\n", "Category:", r.Category, r.Naming)
	_, _ = fmt.Fprintf(w, "  %-10s %s\n", "Root:", r.Root)
	_, _ = fmt.Fprintf(w, "  %-10s %s\n", "Path:", r.Path)
}
