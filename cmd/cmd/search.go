package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"neoalexandria/internal/retrieval"
	"neoalexandria/internal/store"
)

var (
	searchLimit          int
	searchOffset         int
	searchSubject        string
	searchClassification string
	searchSortBy         string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Run a hybrid lexical/dense/sparse search over ingested resources",
	Long: `Fuses the lexical, dense, and sparse retrievers via Reciprocal Rank
Fusion with adaptive per-query weighting, then applies the same
quality/recency/id tie-break the engine uses for equally-ranked
candidates.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := context.Background()
		a, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.reindex(ctx); err != nil {
			return err
		}

		resp, err := a.retrievalEng.Search(ctx, retrieval.SearchRequest{
			Text:   args[0],
			Limit:  searchLimit,
			Offset: searchOffset,
			SortBy: searchSortBy,
			Filters: store.ListFilter{
				Subject:            searchSubject,
				ClassificationCode: searchClassification,
			},
		})
		if err != nil {
			return err
		}

		fmt.Printf("%d results (%d total)\n", len(resp.Results), resp.Total)
		for i, r := range resp.Results {
			fmt.Printf("%2d. %s  fused=%.4f", i+1, r.ResourceID, r.FusedScore)
			if r.Resource != nil {
				fmt.Printf("  class=%s subject=%v", r.Resource.ClassificationCode, r.Resource.Subject)
			}
			fmt.Println()
		}
		for dim, facets := range resp.Facets {
			if len(facets) == 0 {
				continue
			}
			fmt.Printf("facet %s:\n", dim)
			for _, f := range facets {
				fmt.Printf("  %-20s %d\n", f.Value, f.Count)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "maximum results to return")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "pagination offset")
	searchCmd.Flags().StringVar(&searchSubject, "subject", "", "filter to resources tagged with this subject")
	searchCmd.Flags().StringVar(&searchClassification, "classification", "", "filter to resources with this classification code")
	searchCmd.Flags().StringVar(&searchSortBy, "sort-by", "relevance", "relevance, created_at, updated_at, or quality_overall")
}
