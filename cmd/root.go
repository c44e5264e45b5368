package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/facewatch/internal/config"
	"github.com/andresmejia3/facewatch/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options holds the flags shared by the recognition commands.
type Options struct {
	GalleryDir string
	InputPath  string
	Device     int
	NthFrame   int
	Headless   bool
	Record     bool
	JSON       bool
	Annotate   string
	Threshold  float64
	Limit      int
}

var (
	// DB is the sighting store shared by subcommands; nil unless a command opened it.
	DB *store.Store
	// dbURL is the connection string
	dbURL string

	configPath  string
	cascadePath string
	logLevel    string

	logger *zap.Logger
	tuning *config.Tuning
)

// errNoDatabase is returned when a command needs the store and none is configured.
var errNoDatabase = errors.New("no database configured (use --db or POSTGRES_HOST)")

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "facewatch",
	Short:   "Open-set face identification for cameras, videos and photos",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = newLogger(logLevel)
		if err != nil {
			return err
		}

		tuning, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cascadePath != "" {
			tuning.Detector.CascadePath = cascadePath
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			DB.Close()
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadEnv)

	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for the sighting log (default: built from POSTGRES_* env vars)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("FACEWATCH_CONFIG"), "YAML tuning file overriding the built-in constants")
	rootCmd.PersistentFlags().StringVar(&cascadePath, "cascade", "", "Haar cascade XML used for face detection")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

// loadEnv reads a .env file from the working directory when one exists.
func loadEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to load .env: %v\n", err)
	}
}

// newLogger builds the console logger used by every command. Logs go to stderr.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg.Build()
}

// databaseURL returns the --db flag, or a URL built from the POSTGRES_*
// environment, or "" when neither is set.
func databaseURL() string {
	if dbURL != "" {
		return dbURL
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}

// openStore connects the global DB. Without a configured database it
// returns errNoDatabase.
func openStore(ctx context.Context) error {
	if DB != nil {
		return nil
	}
	url := databaseURL()
	if url == "" {
		return errNoDatabase
	}

	var err error
	DB, err = store.New(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return nil
}
