package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"neoalexandria/internal/annotation"
)

var (
	annotateOwnerID     string
	annotateStart       int
	annotateEnd         int
	annotateTextLength  int
	annotateNote        string
	annotateTags        string
	annotateColor       string
	annotateHighlighted string
	annotateShared      bool
)

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Manage highlight annotations on ingested resources",
}

var annotateAddCmd = &cobra.Command{
	Use:   "add [resource-id]",
	Short: "Add a highlight annotation to a resource",
	Long: `Creates an annotation over [start, end) of a resource's text. Enforces
0 <= start < end <= text-length, at most 20 tags of at most 50 characters
each, and a 7-character hex color. If --note is set and a model client
is configured, the note is embedded; embedding failure degrades to a nil
note embedding rather than failing the annotation.`,
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

		var tags []string
		if annotateTags != "" {
			tags = strings.Split(annotateTags, ",")
		}

		ann, err := a.annotationSvc.Create(ctx, annotation.CreateInput{
			ResourceID:      args[0],
			OwnerID:         annotateOwnerID,
			StartOffset:     annotateStart,
			EndOffset:       annotateEnd,
			TextLength:      annotateTextLength,
			HighlightedText: annotateHighlighted,
			Note:            annotateNote,
			Tags:            tags,
			Color:           annotateColor,
			IsShared:        annotateShared,
		})
		if err != nil {
			return err
		}
		fmt.Printf("annotation created: %s\n", ann.ID)
		return nil
	},
}

var annotateListOwnerID string

var annotateListCmd = &cobra.Command{
	Use:   "list [resource-id]",
	Short: "List annotations on a resource",
	Args:  cobra.ExactArgs(1),
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

		anns, err := a.annotationSvc.List(ctx, args[0], annotateListOwnerID)
		if err != nil {
			return err
		}
		for _, ann := range anns {
			fmt.Printf("%s  [%d,%d)  %q\n", ann.ID, ann.StartOffset, ann.EndOffset, ann.HighlightedText)
			if ann.Note != "" {
				fmt.Printf("    note: %s\n", ann.Note)
			}
		}
		return nil
	},
}

var annotateDeleteCmd = &cobra.Command{
	Use:   "delete [annotation-id]",
	Short: "Delete an annotation",
	Args:  cobra.ExactArgs(1),
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

		if err := a.annotationSvc.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Println("annotation deleted")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(annotateCmd)
	annotateCmd.AddCommand(annotateAddCmd)
	annotateCmd.AddCommand(annotateListCmd)
	annotateCmd.AddCommand(annotateDeleteCmd)
	annotateListCmd.Flags().StringVar(&annotateListOwnerID, "owner", "", "restrict to annotations owned by this user (default: all)")
	annotateAddCmd.Flags().StringVar(&annotateOwnerID, "owner", "", "owning user id")
	annotateAddCmd.Flags().IntVar(&annotateStart, "start", 0, "start offset into the resource's extracted text")
	annotateAddCmd.Flags().IntVar(&annotateEnd, "end", 0, "end offset (exclusive)")
	annotateAddCmd.Flags().IntVar(&annotateTextLength, "text-length", 0, "length of the resource's extracted text, for bounds validation")
	annotateAddCmd.Flags().StringVar(&annotateHighlighted, "text", "", "the highlighted text itself")
	annotateAddCmd.Flags().StringVar(&annotateNote, "note", "", "an optional note attached to the highlight")
	annotateAddCmd.Flags().StringVar(&annotateTags, "tags", "", "comma-separated tags, at most 20 of at most 50 characters each")
	annotateAddCmd.Flags().StringVar(&annotateColor, "color", "", "a 7-character hex color, e.g. #ffcc00")
	annotateAddCmd.Flags().BoolVar(&annotateShared, "shared", false, "whether the annotation is visible to other users")
	_ = annotateAddCmd.MarkFlagRequired("owner")
}
