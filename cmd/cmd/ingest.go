package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"neoalexandria/internal/core"
	"neoalexandria/internal/events"
)

var ingestWaitTimeout time.Duration

var ingestCmd = &cobra.Command{
	Use:   "ingest [url]",
	Short: "Submit a URL for ingestion and wait for it to finish",
	Long: `Submits a URL to the ingestion engine: fetch, parse, archive,
then the concurrent enrichment stages (summarize, tag, classify, embed,
extract citations, extract scholarly metadata), then quality scoring and
index writes. Blocks until the resource reaches completed or failed, or
until --wait elapses.`,
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
		if a.ingestionEng == nil {
			return fmt.Errorf("ingestion requires ai.api_key to be configured (summarize/tag have fallbacks, but classify/embed/scholarly-extract do not)")
		}

		sub, err := a.ingestionEng.Submit(ctx, args[0])
		if err != nil {
			return err
		}
		if sub.Status == core.StatusCompleted {
			fmt.Printf("already completed: %s\n", sub.ResourceID)
			return nil
		}

		ch, unsubscribe := a.bus.Subscribe(16)
		defer unsubscribe()

		fmt.Printf("submitted resource %s (job %s), waiting up to %s...\n", sub.ResourceID, sub.JobID, ingestWaitTimeout)
		deadline := time.After(ingestWaitTimeout)
		for {
			select {
			case evt := <-ch:
				if evt.ResourceID != sub.ResourceID {
					continue
				}
				switch evt.Name {
				case events.ResourceCompleted:
					resource, err := a.store.GetResource(ctx, sub.ResourceID)
					if err != nil {
						return err
					}
					printResource(resource)
					return nil
				case events.ResourceFailed:
					resource, _ := a.store.GetResource(ctx, sub.ResourceID)
					if resource != nil {
						return fmt.Errorf("ingestion failed for %s", resource.Source)
					}
					return fmt.Errorf("ingestion failed for resource %s", sub.ResourceID)
				}
			case <-deadline:
				return fmt.Errorf("timed out after %s waiting for resource %s; it is still processing in the background", ingestWaitTimeout, sub.ResourceID)
			}
		}
	},
}

func printResource(r *core.Resource) {
	fmt.Printf("completed: %s\n", r.ID)
	fmt.Printf("  source:          %s\n", r.Source)
	fmt.Printf("  title:           %s\n", r.Title)
	fmt.Printf("  description:     %s\n", truncateForPrint(r.Description, 200))
	fmt.Printf("  subject:         %v\n", r.Subject)
	fmt.Printf("  classification:  %s\n", r.ClassificationCode)
	if r.QualityOverall != nil {
		fmt.Printf("  quality_overall: %.3f\n", *r.QualityOverall)
	}
	if r.NeedsReview {
		fmt.Println("  needs_review:    true")
	}
}

func truncateForPrint(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().DurationVar(&ingestWaitTimeout, "wait", 2*time.Minute, "how long to wait for the ingestion job to finish")
}
