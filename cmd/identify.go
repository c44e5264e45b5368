package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/facewatch/internal/imageio"
	"github.com/andresmejia3/facewatch/internal/pipeline"
	"github.com/andresmejia3/facewatch/internal/render"
	"github.com/andresmejia3/facewatch/internal/types"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

var identifyOpts Options

var identifyCmd = &cobra.Command{
	Use:   "identify <image_path>",
	Short: "Identify every face in a photo against the gallery",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runIdentify(cmd, args[0], identifyOpts)
	},
}

func init() {
	identifyCmd.Flags().StringVarP(&identifyOpts.GalleryDir, "gallery", "g", "pictures", "Directory of labeled face photos to enroll")
	identifyCmd.Flags().BoolVar(&identifyOpts.JSON, "json", false, "Print the detections as JSON")
	identifyCmd.Flags().StringVarP(&identifyOpts.Annotate, "annotate", "a", "", "Write a copy of the photo with boxes and labels to this path")
	rootCmd.AddCommand(identifyCmd)
}

func runIdentify(cmd *cobra.Command, imagePath string, opts Options) error {
	img, err := imageio.Load(imagePath)
	if err != nil {
		img.Close()
		return err
	}
	defer img.Close()

	r, err := newRecognizer()
	if err != nil {
		return err
	}
	defer r.engine.Close()

	g, err := r.loadGallery(cmd.Context(), opts.GalleryDir)
	if err != nil {
		return err
	}

	recs, err := r.engine.Process(img, g)
	if err != nil {
		return fmt.Errorf("recognition failed: %w", err)
	}

	if opts.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(types.FromRecognitions(recs)); err != nil {
			return err
		}
	} else {
		printRecognitions(os.Stdout, recs)
	}

	if opts.Annotate != "" {
		render.Draw(&img, recs)
		if ok := gocv.IMWrite(opts.Annotate, img); !ok {
			return fmt.Errorf("failed to write annotated image %s", opts.Annotate)
		}
		fmt.Fprintf(os.Stderr, "🖼️  Annotated image written to %s\n", opts.Annotate)
	}
	return nil
}

func printRecognitions(out io.Writer, recs []pipeline.Recognition) {
	if len(recs) == 0 {
		fmt.Fprintln(out, "❌ No faces detected in the provided image.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "#\tLABEL\tSIMILARITY\tTHRESHOLD\tBOX")
	fmt.Fprintln(w, "-\t-----\t----------\t---------\t---")
	for i, r := range recs {
		label := r.Label()
		if r.Match.LowConfidence {
			label += " (low confidence)"
		}
		if !r.Match.Accepted && r.Match.BestLabel != "" {
			label += fmt.Sprintf(" (closest: %s)", r.Match.BestLabel)
		}
		b := types.BoxFromRect(r.Region)
		fmt.Fprintf(w, "%d\t%s\t%.3f\t%.2f\t%dx%d+%d+%d\n",
			i+1, label, r.Match.BestSimilarity, r.Match.Threshold, b.Width, b.Height, b.X, b.Y)
	}
	w.Flush()
}
