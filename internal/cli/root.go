// Package cli provides the command-line interface for the datasets tool.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tangram-vision/datasets-cli/internal/cloud/download"
	"github.com/tangram-vision/datasets-cli/internal/cloud/providers/s3"
	"github.com/tangram-vision/datasets-cli/internal/config"
	"github.com/tangram-vision/datasets-cli/internal/dataset"
	"github.com/tangram-vision/datasets-cli/internal/logging"
	"github.com/tangram-vision/datasets-cli/internal/progress"
)

var (
	// Global flags
	apiBaseURL     string
	authToken      string
	tokenFile      string
	bucket         string
	region         string
	spacesEndpoint string
	debug          bool

	// Global logger
	logger *logging.Logger
)

// Version is set by the main package at startup.
var Version = "v1.0.0-dev"

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "datasets",
		Short:   "Manage sensor-dataset artifacts in cloud object storage",
		Version: Version,
		Long: `datasets creates logical datasets in the Tangram metadata service,
uploads local files into S3-compatible object storage under a deterministic
key prefix, and downloads them back preserving the on-disk layout.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewLogger()
			if debug {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&apiBaseURL, "api-url", "", "metadata service base URL (or TANGRAM_API_URL)")
	pf.StringVar(&authToken, "token", "", "bearer token (or TANGRAM_AUTH_TOKEN)")
	pf.StringVar(&tokenFile, "token-file", "", "file containing the bearer token")
	pf.StringVar(&bucket, "bucket", "tangram-vision-datasets", "object-store bucket")
	pf.StringVar(&region, "region", "us-west-1", "AWS region for the bucket")
	pf.StringVar(&spacesEndpoint, "spaces-endpoint", "", "DigitalOcean Spaces endpoint (switches provider)")
	pf.BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newListCmd())

	return rootCmd
}

// Execute runs the CLI and returns the process exit code. SIGINT and
// SIGTERM cancel the command context, which aborts in-flight transfers.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger == nil {
			logger = logging.NewLogger()
		}
		logger.Error().Msg(err.Error())
		return 1
	}
	return 0
}

// loadConfig assembles the invocation config from flags and environment.
func loadConfig() (*config.Config, error) {
	token := authToken
	if token == "" && tokenFile != "" {
		raw, err := os.ReadFile(tokenFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read token file: %w", err)
		}
		token = strings.TrimSpace(string(raw))
	}
	if token == "" {
		token = os.Getenv("TANGRAM_AUTH_TOKEN")
	}

	baseURL := apiBaseURL
	if baseURL == "" {
		baseURL = os.Getenv("TANGRAM_API_URL")
	}

	storage := config.StorageProfile{
		Provider: config.ProviderAWS,
		Bucket:   bucket,
		Region:   region,
	}
	if spacesEndpoint != "" {
		storage.Provider = config.ProviderDigitalOcean
		storage.Endpoint = spacesEndpoint
		storage.AccessKeyID = os.Getenv("SPACES_KEY")
		storage.SecretAccessKey = os.Getenv("SPACES_SECRET")
	}

	cfg := &config.Config{
		APIBaseURL: baseURL,
		AuthToken:  token,
		Storage:    storage,
		Profiles:   []config.StorageProfile{storage},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newDownloaderFactory maps registered object URLs to download engines,
// one per storage profile, created lazily and reused across files.
func newDownloaderFactory(ctx context.Context, cfg *config.Config) func(objectURL string) (dataset.Downloader, error) {
	var mu sync.Mutex
	engines := make(map[string]*download.Engine)

	return func(objectURL string) (dataset.Downloader, error) {
		profile, err := cfg.ProfileForURL(objectURL)
		if err != nil {
			return nil, err
		}

		mu.Lock()
		defer mu.Unlock()

		if engine, ok := engines[profile.Host()]; ok {
			return engine, nil
		}

		store, err := s3.NewClient(ctx, profile)
		if err != nil {
			return nil, err
		}
		engine := download.NewEngine(store, logger)
		engines[profile.Host()] = engine
		return engine, nil
	}
}

// uiAdapter exposes a TransferUI as the coordinator's ProgressUI.
type uiAdapter struct {
	ui *progress.TransferUI
}

func (a uiAdapter) AddFile(path string, size int64) dataset.FileProgress {
	return a.ui.AddFileBar(path, size)
}
