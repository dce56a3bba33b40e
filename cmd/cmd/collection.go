package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"neoalexandria/internal/core"
	"neoalexandria/internal/store"
)

var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Manage collections and their recommendations",
}

var collectionRecomputeEmbeddingCmd = &cobra.Command{
	Use:   "recompute-embedding [collection-id]",
	Short: "Recompute a collection's aggregate embedding",
	Long: `Sets the collection's embedding to the arithmetic mean of its
members' dense embeddings (nil if no member has one), idempotently.`,
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

		if err := a.composer.RecomputeCollectionEmbedding(ctx, args[0]); err != nil {
			return err
		}
		fmt.Println("collection embedding recomputed")
		return nil
	},
}

var collectionRecommendLimit int

var collectionRecommendCmd = &cobra.Command{
	Use:   "recommend [collection-id]",
	Short: "Recommend resources for a collection",
	Long: `Builds a profile resource from the collection's aggregate embedding
plus its members' majority subjects and classification, then ranks
non-member resources against that profile with the same hybrid
relationship score graph neighbors use.`,
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

		candidates, err := a.store.ListResources(ctx, store.ListOptions{
			Filter: store.ListFilter{IngestionStatus: core.StatusCompleted},
		})
		if err != nil {
			return err
		}

		neighbors, err := a.composer.Recommend(ctx, args[0], candidates, collectionRecommendLimit)
		if err != nil {
			return err
		}
		for i, n := range neighbors {
			fmt.Printf("%2d. %s  score=%.4f\n", i+1, n.ResourceID, n.Score)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(collectionCmd)
	collectionCmd.AddCommand(collectionRecomputeEmbeddingCmd)
	collectionCmd.AddCommand(collectionRecommendCmd)
	collectionRecommendCmd.Flags().IntVar(&collectionRecommendLimit, "limit", 10, "maximum recommendations to return")
}
