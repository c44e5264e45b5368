package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/facewatch/internal/web"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveAddr string
	serveOpts Options
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the recognition engine over HTTP",
	Long: "Enrolls the gallery once and exposes identify and compare endpoints under /api/v1. " +
		"When a database is configured the recorded sightings are served as well.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		r, err := newRecognizer()
		if err != nil {
			return err
		}
		defer r.engine.Close()

		g, err := r.loadGallery(ctx, serveOpts.GalleryDir)
		if err != nil {
			return err
		}

		opts := web.Options{Addr: serveAddr, CompareThreshold: serveOpts.Threshold}
		switch err := openStore(ctx); {
		case err == nil:
			opts.Sightings = DB
		case errors.Is(err, errNoDatabase):
			logger.Info("no database configured; sightings endpoint disabled")
		default:
			logger.Warn("sightings endpoint disabled", zap.Error(err))
		}

		fmt.Fprintf(os.Stderr, "🌐 Listening on %s\n", serveAddr)
		return web.NewServer(r.engine, g, opts, logger).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Address to listen on")
	serveCmd.Flags().StringVarP(&serveOpts.GalleryDir, "gallery", "g", "pictures", "Directory of labeled face photos to enroll")
	serveCmd.Flags().Float64VarP(&serveOpts.Threshold, "threshold", "t", 0.9, "Default similarity threshold for /compare")
	rootCmd.AddCommand(serveCmd)
}
