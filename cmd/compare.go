package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/facewatch/internal/descriptor"
	"github.com/andresmejia3/facewatch/internal/imageio"
	"github.com/spf13/cobra"
)

var compareOpts Options

var compareCmd = &cobra.Command{
	Use:   "compare <image_a> <image_b>",
	Short: "Decide whether the faces in two photos belong to the same person",
	Long: "Describes the first face of each photo and declares a match when the cosine " +
		"similarity exceeds the threshold and the euclidean distance is below 1 - threshold.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runCompare(args[0], args[1], compareOpts)
	},
}

func init() {
	compareCmd.Flags().Float64VarP(&compareOpts.Threshold, "threshold", "t", 0.9, "Similarity threshold")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(pathA, pathB string, opts Options) error {
	if opts.Threshold < -1 || opts.Threshold > 1 {
		return fmt.Errorf("threshold must be between -1 and 1, got %f", opts.Threshold)
	}

	r, err := newRecognizer()
	if err != nil {
		return err
	}
	defer r.engine.Close()

	var descs [2]descriptor.Descriptor
	for i, path := range []string{pathA, pathB} {
		img, err := imageio.Load(path)
		if err != nil {
			img.Close()
			return err
		}
		d, _, err := r.engine.Describe(img)
		img.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		descs[i] = d
	}

	printComparison(os.Stdout, descriptor.Compare(descs[0], descs[1], opts.Threshold))
	return nil
}

func printComparison(out io.Writer, c descriptor.Comparison) {
	verdict := "❌ Different people"
	if c.Match {
		verdict = "✅ Same person"
	}
	fmt.Fprintf(out, "%s\n", verdict)
	fmt.Fprintf(out, "   similarity: %.4f (needs > %.2f)\n", c.Similarity, c.Threshold)
	fmt.Fprintf(out, "   distance:   %.4f (needs < %.2f)\n", c.Distance, 1-c.Threshold)
}
