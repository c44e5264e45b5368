package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/andresmejia3/facewatch/internal/framesource"
	"github.com/andresmejia3/facewatch/internal/pipeline"
	"github.com/andresmejia3/facewatch/internal/render"
	"github.com/andresmejia3/facewatch/internal/store"
	"github.com/andresmejia3/facewatch/internal/types"
	"github.com/andresmejia3/facewatch/internal/utils"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const escKey = 27

var watchOpts Options

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Identify faces in a live camera or a video file against the gallery",
	Run: func(cmd *cobra.Command, args []string) {
		if err := validateWatchFlags(&watchOpts); err != nil {
			utils.Die("Invalid flags", err, nil)
		}
		runWatch(cmd.Context(), watchOpts)
	},
}

func init() {
	watchCmd.Flags().StringVarP(&watchOpts.GalleryDir, "gallery", "g", "pictures", "Directory of labeled face photos to enroll")
	watchCmd.Flags().StringVarP(&watchOpts.InputPath, "input", "i", "", "Path to a video file (decoded with ffmpeg)")
	watchCmd.Flags().IntVarP(&watchOpts.Device, "device", "d", -1, "Capture device id (e.g. 0 for the default webcam)")
	watchCmd.Flags().IntVarP(&watchOpts.NthFrame, "nth-frame", "n", 1, "Process every nth frame of a video file")
	watchCmd.Flags().BoolVar(&watchOpts.Headless, "headless", false, "Do not open a preview window")
	watchCmd.Flags().BoolVar(&watchOpts.Record, "record", false, "Record sightings to the database")
	watchCmd.Flags().BoolVar(&watchOpts.JSON, "json", false, "Print one JSON line per processed frame to stdout")
	rootCmd.AddCommand(watchCmd)
}

// frameResult is the JSON line printed for every processed frame.
type frameResult struct {
	Frame      int               `json:"frame"`
	Detections []types.Detection `json:"detections"`
}

func runWatch(ctx context.Context, opts Options) {
	r, err := newRecognizer()
	if err != nil {
		utils.Die("Failed to start recognizer", err, nil)
	}
	defer r.engine.Close()

	g, err := r.loadGallery(ctx, opts.GalleryDir)
	if err != nil {
		utils.Die("Failed to build gallery", err, nil)
	}

	src, sourceName, totalFrames, err := openSource(opts)
	if err != nil {
		utils.Die("Failed to open frame source", err, nil)
	}
	defer src.Close()

	var sessionID uuid.UUID
	if opts.Record {
		if err := openStore(ctx); err != nil {
			utils.Die("Recording requires a database", err, nil)
		}
		sessionID, err = DB.StartSession(ctx, sourceName, g.Len())
		if err != nil {
			utils.Die("Failed to register watch session", err, nil)
		}
		fmt.Fprintf(os.Stderr, "📼 Recording session %s\n", sessionID.String()[:8])
	}

	var window *gocv.Window
	if !opts.Headless {
		window = gocv.NewWindow("facewatch")
		defer window.Close()
		fmt.Fprintln(os.Stderr, "👁️  Watching... press ESC in the preview window to quit")
	}

	// Video files report progress; cameras have no end.
	stream, isStream := src.(*framesource.Stream)
	var bar *progressbar.ProgressBar
	if isStream && !opts.JSON {
		if totalFrames <= 0 {
			totalFrames = -1
		}
		bar = progressbar.NewOptions(totalFrames,
			progressbar.OptionSetDescription("🔍 facewatch"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
	}

	enc := json.NewEncoder(os.Stdout)
	summary := newWatchSummary()
	processed := 0

	for {
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			break
		}
		if errors.Is(err, framesource.ErrCorruptFrame) {
			logger.Warn("skipping frame", zap.Error(err))
			continue
		}
		if err != nil {
			var cmd *utils.SafeCommand
			if isStream {
				cmd = stream.Command()
			}
			utils.Die("Frame source failed", err, cmd)
		}

		index := processed + 1
		if isStream {
			index = stream.Index()
		}
		if bar != nil {
			bar.Set(stream.FramesRead())
		}

		recs, err := r.engine.Process(frame, g)
		if err != nil {
			frame.Close()
			utils.Die("Frame processing failed", err, nil)
		}
		processed++
		summary.add(index, recs)

		if opts.Record && len(recs) > 0 {
			if err := DB.InsertSightings(ctx, store.SightingsFromRecognitions(sessionID, index, recs)); err != nil {
				frame.Close()
				utils.Die("Failed to record sightings", err, nil)
			}
		}
		if opts.JSON {
			enc.Encode(frameResult{Frame: index, Detections: types.FromRecognitions(recs)})
		}

		quit := false
		if window != nil {
			render.Draw(&frame, recs)
			window.IMShow(frame)
			quit = window.WaitKey(10) == escKey
		}
		frame.Close()
		if quit {
			break
		}
	}

	if bar != nil {
		bar.Finish()
	}
	if opts.Record {
		// The command context may already be cancelled by Ctrl+C.
		if err := DB.FinishSession(context.Background(), sessionID, processed); err != nil {
			logger.Error("failed to close watch session", zap.Error(err))
		}
	}

	summary.print(os.Stderr, processed)
}

// openSource opens the camera or the video file named in opts. It returns
// the source, a name for the session log and the expected frame count
// (0 when unknown).
func openSource(opts Options) (framesource.Source, string, int, error) {
	if opts.InputPath != "" {
		total := framesource.TotalFrames(opts.InputPath)
		s, err := framesource.OpenFile(opts.InputPath, opts.NthFrame)
		if err != nil {
			return nil, "", 0, err
		}
		return s, opts.InputPath, total, nil
	}

	d, err := framesource.OpenDevice(opts.Device)
	if err != nil {
		return nil, "", 0, err
	}
	return d, fmt.Sprintf("device:%d", opts.Device), 0, nil
}

// labelStats tracks where a label was seen.
type labelStats struct {
	Sightings  int
	FirstFrame int
	LastFrame  int
	Best       float64
}

// watchSummary aggregates recognitions over a watch run.
type watchSummary struct {
	labels     map[string]*labelStats
	detections int
	unknown    int
	lowConf    int
}

func newWatchSummary() *watchSummary {
	return &watchSummary{labels: make(map[string]*labelStats)}
}

func (s *watchSummary) add(frame int, recs []pipeline.Recognition) {
	for _, r := range recs {
		s.detections++
		if !r.Match.Accepted {
			s.unknown++
			continue
		}
		if r.Match.LowConfidence {
			s.lowConf++
		}
		st, ok := s.labels[r.Label()]
		if !ok {
			st = &labelStats{FirstFrame: frame}
			s.labels[r.Label()] = st
		}
		st.Sightings++
		st.LastFrame = frame
		st.Best = max(st.Best, r.Match.BestSimilarity)
	}
}

func (s *watchSummary) print(out io.Writer, frames int) {
	fmt.Fprintf(out, "\n---------------------------------------------------------\n")
	fmt.Fprintf(out, "📊 WATCH SUMMARY\n")
	fmt.Fprintf(out, "---------------------------------------------------------\n")

	labels := make([]string, 0, len(s.labels))
	for l := range s.labels {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	for _, l := range labels {
		st := s.labels[l]
		fmt.Fprintf(out, "\n👤 %s: %d sightings, frames %d -> %d, best %.3f\n",
			l, st.Sightings, st.FirstFrame, st.LastFrame, st.Best)
	}

	fmt.Fprintf(out, "\n---------------------------------------------------------\n")
	fmt.Fprintf(out, "🎞️  Frames Processed:        %d\n", frames)
	fmt.Fprintf(out, "👁️  Total Face Detections:   %d\n", s.detections)
	fmt.Fprintf(out, "❓ Unknown Faces:            %d\n", s.unknown)
	fmt.Fprintf(out, "⚠️  Low-confidence Matches:  %d\n", s.lowConf)
	fmt.Fprintf(out, "---------------------------------------------------------\n")
}

// validateWatchFlags checks the CLI arguments before any heavy setup.
func validateWatchFlags(opts *Options) error {
	if (opts.InputPath == "") == (opts.Device < 0) {
		return fmt.Errorf("exactly one of --input or --device is required")
	}
	if opts.InputPath != "" {
		info, err := os.Stat(opts.InputPath)
		if err != nil {
			return fmt.Errorf("input file: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("input path %s is a directory, expected a video file", opts.InputPath)
		}
	}
	if opts.NthFrame < 1 {
		return fmt.Errorf("invalid nth-frame interval: must be >= 1, got %d", opts.NthFrame)
	}
	info, err := os.Stat(opts.GalleryDir)
	if err != nil {
		return fmt.Errorf("gallery directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("gallery path %s is not a directory", opts.GalleryDir)
	}
	return nil
}
