package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/recall/pkg/search"
)

var (
	searchTopK     int
	searchMinScore float64
	searchSource   string
	searchTag      string
	searchKind     string
	searchIndex    bool
	searchDetail   string
	searchRaw      bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Semantic search over indexed memory",
	Long: `Search the vector index. Default output is JSON.

Progressive disclosure keeps token cost down: --index returns id plus
first-line summaries, then --detail <chunk-id> fetches the full content
of the chunks worth reading.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", search.DefaultTopK, "number of results")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", search.DefaultMinScore, "minimum similarity score")
	searchCmd.Flags().StringVarP(&searchSource, "source", "s", "", "filter by source path substring")
	searchCmd.Flags().StringVarP(&searchTag, "tag", "t", "", "filter by observation tag")
	searchCmd.Flags().StringVar(&searchKind, "kind", "", "filter by source kind (memory, observation, archive)")
	searchCmd.Flags().BoolVar(&searchIndex, "index", false, "return summaries only (progressive disclosure step 1)")
	searchCmd.Flags().StringVar(&searchDetail, "detail", "", "return full content for a chunk id (step 2)")
	searchCmd.Flags().BoolVarP(&searchRaw, "raw", "r", false, "human-readable output instead of JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	if searchDetail != "" {
		detail, err := app.engine.GetDetail(cmd.Context(), searchDetail)
		if err != nil {
			return err
		}
		if searchRaw {
			printf("Source: %s\nID: %s\n", detail.Source, detail.ID)
			if detail.Metadata.Tag != "" {
				printf("Tag: %s\n", detail.Metadata.Tag)
			}
			printf("\n%s\n", detail.Content)
			return nil
		}
		return printJSON(detail)
	}

	if len(args) == 0 {
		return errors.New("query is required (unless using --detail)")
	}

	params := search.Params{
		Query:    args[0],
		TopK:     searchTopK,
		MinScore: searchMinScore,
		Source:   searchSource,
		Tag:      searchTag,
		Kind:     searchKind,
	}

	if searchIndex {
		summaries, err := app.engine.SearchIndex(cmd.Context(), params)
		if err != nil {
			return err
		}
		if searchRaw {
			printSummariesRaw(summaries)
			return nil
		}
		return printJSON(summaries)
	}

	hits, err := app.engine.Search(cmd.Context(), params)
	if err != nil {
		return err
	}
	if searchRaw {
		printHitsRaw(hits)
		return nil
	}
	return printJSON(hits)
}

func printHitsRaw(hits []search.Hit) {
	if len(hits) == 0 {
		printf("No results found.\n")
		return
	}
	for i, h := range hits {
		printf("--- Result %d (score: %v) ---\n", i+1, h.Score)
		printf("Source: %s\n", h.Source)
		printf("%s\n\n", h.Content)
	}
}

func printSummariesRaw(summaries []search.Summary) {
	if len(summaries) == 0 {
		printf("No results found.\n")
		return
	}
	for i, s := range summaries {
		tag := ""
		if s.Tag != "" {
			tag = fmt.Sprintf(" [%s]", s.Tag)
		}
		printf("%d. [%v] %s%s\n", i+1, s.Score, s.Source, tag)
		printf("   id: %s\n", s.ID)
		printf("   %s\n\n", s.Summary)
	}
}
