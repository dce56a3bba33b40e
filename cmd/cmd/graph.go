package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"neoalexandria/internal/core"
	"neoalexandria/internal/store"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Compute knowledge graph relationships over ingested resources",
}

var graphRankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Recompute citation importance scores via PageRank",
	Long: `Runs the offline PageRank batch job over the full resolved citation
graph (damping 0.85, up to 100 iterations, 1e-6 convergence by default)
and writes each citation's normalized importance score back to the store.`,
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

		if err := a.graphRanker.Run(ctx); err != nil {
			return err
		}
		fmt.Println("pagerank complete")
		return nil
	},
}

var graphNeighborsLimit int

var graphNeighborsCmd = &cobra.Command{
	Use:   "neighbors [resource-id]",
	Short: "List the hybrid-score nearest neighbors of a resource",
	Long: `Scores every other resource against the given one using the hybrid
relationship score: w_v * cosine(embedding) [floored at tau_v] + w_t *
tag jaccard + w_c * same-classification indicator.`,
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

		resource, err := a.store.GetResource(ctx, args[0])
		if err != nil {
			return err
		}
		candidates, err := a.store.ListResources(ctx, store.ListOptions{
			Filter: store.ListFilter{IngestionStatus: core.StatusCompleted},
		})
		if err != nil {
			return err
		}

		neighbors := a.graphFinder.Neighbors(ctx, resource, candidates, graphNeighborsLimit)
		for i, n := range neighbors {
			fmt.Printf("%2d. %s  score=%.4f  cos=%.3f(applied=%v) jaccard=%.3f same_class=%v\n",
				i+1, n.ResourceID, n.Score, n.Signals.VectorSimilarity, n.Signals.VectorTermApplied,
				n.Signals.TagJaccard, n.Signals.SameClassification)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.AddCommand(graphRankCmd)
	graphCmd.AddCommand(graphNeighborsCmd)
	graphNeighborsCmd.Flags().IntVar(&graphNeighborsLimit, "limit", 10, "maximum neighbors to return")
}
