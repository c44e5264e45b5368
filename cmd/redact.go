package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/andresmejia3/facewatch/internal/gallery"
	"github.com/andresmejia3/facewatch/internal/imageio"
	"github.com/andresmejia3/facewatch/internal/pipeline"
	"github.com/andresmejia3/facewatch/internal/render"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

// Redaction modes.
const (
	redactAll      = "all"
	redactUnknown  = "unknown"
	redactTargeted = "targeted"
)

var redactOpts struct {
	Options
	output   string
	mode     string
	targets  string
	style    string
	strength int
}

var redactCmd = &cobra.Command{
	Use:   "redact <image_path>",
	Short: "Hide faces in a photo based on detection or identity",
	Long: "Modes: 'all' hides every detected face, 'unknown' hides faces the gallery " +
		"does not recognize, 'targeted' hides only the labels given with --target.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := validateRedactFlags(); err != nil {
			return err
		}
		return runRedact(cmd, args[0])
	},
}

func init() {
	redactCmd.Flags().StringVarP(&redactOpts.output, "output", "o", "redacted.jpg", "Path of the redacted image")
	redactCmd.Flags().StringVarP(&redactOpts.mode, "mode", "m", redactAll, "Redaction mode: all, unknown, targeted")
	redactCmd.Flags().StringVar(&redactOpts.targets, "target", "", "Comma-separated list of labels to redact (for targeted mode)")
	redactCmd.Flags().StringVar(&redactOpts.style, "style", render.StyleBlack, "Redaction style: "+strings.Join(render.Styles, ", "))
	redactCmd.Flags().IntVarP(&redactOpts.strength, "strength", "s", 15, "Pixel block size or blur radius")
	redactCmd.Flags().StringVarP(&redactOpts.GalleryDir, "gallery", "g", "pictures", "Directory of labeled face photos (unknown and targeted modes)")
	rootCmd.AddCommand(redactCmd)
}

func runRedact(cmd *cobra.Command, imagePath string) error {
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

	// Without a gallery every face matches as unknown, which is all 'all' needs.
	var g *gallery.Gallery
	if redactOpts.mode != redactAll {
		if g, err = r.loadGallery(cmd.Context(), redactOpts.GalleryDir); err != nil {
			return err
		}
	}

	recs, err := r.engine.Process(img, g)
	if err != nil {
		return fmt.Errorf("recognition failed: %w", err)
	}

	targets := parseTargets(redactOpts.targets)
	redacted := 0
	for _, rec := range recs {
		if !shouldRedact(rec, redactOpts.mode, targets) {
			continue
		}
		if err := render.Redact(&img, rec.Region, redactOpts.style, redactOpts.strength); err != nil {
			return err
		}
		redacted++
	}

	if ok := gocv.IMWrite(redactOpts.output, img); !ok {
		return fmt.Errorf("failed to write %s", redactOpts.output)
	}
	fmt.Fprintf(os.Stderr, "🕶️  Redacted %d of %d faces -> %s\n", redacted, len(recs), redactOpts.output)
	return nil
}

// shouldRedact decides whether one recognized face is hidden under mode.
func shouldRedact(rec pipeline.Recognition, mode string, targets map[string]bool) bool {
	switch mode {
	case redactAll:
		return true
	case redactUnknown:
		return !rec.Match.Accepted
	case redactTargeted:
		return rec.Match.Accepted && targets[rec.Match.Label]
	}
	return false
}

func parseTargets(list string) map[string]bool {
	targets := make(map[string]bool)
	for _, t := range strings.Split(list, ",") {
		if t = strings.TrimSpace(t); t != "" {
			targets[t] = true
		}
	}
	return targets
}

func validateRedactFlags() error {
	switch redactOpts.mode {
	case redactAll, redactUnknown, redactTargeted:
	default:
		return fmt.Errorf("invalid mode '%s'. Must be 'all', 'unknown' or 'targeted'", redactOpts.mode)
	}
	if !render.ValidStyle(redactOpts.style) {
		return fmt.Errorf("invalid style '%s'. Must be one of: %s", redactOpts.style, strings.Join(render.Styles, ", "))
	}
	if redactOpts.mode == redactTargeted && len(parseTargets(redactOpts.targets)) == 0 {
		return fmt.Errorf("targeted mode requires --target list of labels")
	}
	if redactOpts.strength < 1 {
		return fmt.Errorf("invalid strength: must be >= 1, got %d", redactOpts.strength)
	}
	return nil
}
