package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/facewatch/internal/imageio"
	"github.com/spf13/cobra"
)

var findOpts Options

var findCmd = &cobra.Command{
	Use:   "find <image_path>",
	Short: "Search the sighting log for the face in a photo",
	Long: "Describes the first face in the photo and lists the recorded sightings with the " +
		"closest descriptors, whatever label they were given at the time.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runFind(cmd.Context(), args[0], findOpts)
	},
}

func init() {
	findCmd.Flags().Float64VarP(&findOpts.Threshold, "max-distance", "t", 0.2, "Maximum cosine distance of a match")
	findCmd.Flags().IntVarP(&findOpts.Limit, "limit", "n", 20, "Maximum number of sightings to show")
	rootCmd.AddCommand(findCmd)
}

func runFind(ctx context.Context, imagePath string, opts Options) error {
	if opts.Limit < 1 {
		return fmt.Errorf("invalid limit: must be >= 1, got %d", opts.Limit)
	}
	if err := openStore(ctx); err != nil {
		return err
	}

	img, err := imageio.Load(imagePath)
	defer img.Close()
	if err != nil {
		return err
	}

	r, err := newRecognizer()
	if err != nil {
		return err
	}
	defer r.engine.Close()

	fmt.Fprintln(os.Stderr, "🔍 Analyzing face...")
	d, _, err := r.engine.Describe(img)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "🗄️  Searching sighting log...")
	sightings, err := DB.NearestSightings(ctx, d, opts.Limit, opts.Threshold)
	if err != nil {
		return fmt.Errorf("database search failed: %w", err)
	}

	printSightings(os.Stdout, sightings, true)
	return nil
}
