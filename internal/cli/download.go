package cli

import (
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tangram-vision/datasets-cli/internal/api"
	"github.com/tangram-vision/datasets-cli/internal/auth"
	"github.com/tangram-vision/datasets-cli/internal/dataset"
	"github.com/tangram-vision/datasets-cli/internal/progress"
)

func newDownloadCmd() *cobra.Command {
	var (
		destDir string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "download <dataset-id> [prefix]...",
		Short: "Download a dataset's files, preserving their layout",
		Long: `Lists the dataset's registered files (optionally narrowed to path
prefixes) and downloads them under the destination directory, recreating
the uploaded layout. Existing files prompt before being overwritten.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			datasetID, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if _, err := auth.UserID(cfg.AuthToken); err != nil {
				return err
			}

			apiClient := api.NewClient(cfg)
			coord := dataset.NewCoordinator(apiClient, nil, newDownloaderFactory(cmd.Context(), cfg), uuid.Nil, logger)

			overwrite := func(path string) (bool, error) {
				if force {
					return true, nil
				}
				return confirm(path + " exists, overwrite?")
			}

			req := dataset.DownloadRequest{
				DatasetID: datasetID,
				Prefixes:  args[1:],
				DestDir:   destDir,
				Overwrite: overwrite,
			}

			files, err := apiClient.ListFiles(cmd.Context(), datasetID, args[1:])
			if err != nil {
				return err
			}

			ui := progress.NewTransferUI(len(files))
			logger.SetOutput(ui.LogWriter())

			err = coord.DownloadFiles(cmd.Context(), req, files, uiAdapter{ui})

			ui.Wait()
			logger.SetOutput(os.Stderr)
			return err
		},
	}

	cmd.Flags().StringVar(&destDir, "dest", ".", "destination directory")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing files without prompting")
	return cmd
}
