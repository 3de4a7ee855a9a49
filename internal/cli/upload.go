package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tangram-vision/datasets-cli/internal/api"
	"github.com/tangram-vision/datasets-cli/internal/auth"
	"github.com/tangram-vision/datasets-cli/internal/cloud/providers/s3"
	"github.com/tangram-vision/datasets-cli/internal/cloud/upload"
	"github.com/tangram-vision/datasets-cli/internal/dataset"
	"github.com/tangram-vision/datasets-cli/internal/progress"
)

func newUploadCmd() *cobra.Command {
	var metadataJSON string

	cmd := &cobra.Command{
		Use:   "upload <system-id> <file>...",
		Short: "Create a dataset and upload files into it",
		Long: `Creates a dataset for the given system id, uploads each file under
the key prefix {user-id}/{dataset-id}/, registers every committed object,
and seals the dataset. Paths must be relative and become part of the key.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			systemID, paths := args[0], args[1:]

			var metadata json.RawMessage
			if metadataJSON != "" {
				if !json.Valid([]byte(metadataJSON)) {
					return fmt.Errorf("--metadata is not valid JSON")
				}
				metadata = json.RawMessage(metadataJSON)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			userID, err := auth.UserID(cfg.AuthToken)
			if err != nil {
				return err
			}

			store, err := s3.NewClient(cmd.Context(), cfg.Storage)
			if err != nil {
				return err
			}

			apiClient := api.NewClient(cfg)
			engine := upload.NewEngine(store, logger)
			coord := dataset.NewCoordinator(apiClient, engine, newDownloaderFactory(cmd.Context(), cfg), userID, logger)

			ui := progress.NewTransferUI(len(paths))
			logger.SetOutput(ui.LogWriter())

			ds, err := coord.Upload(cmd.Context(), dataset.UploadRequest{
				SystemID: systemID,
				Paths:    paths,
				Metadata: metadata,
			}, uiAdapter{ui})

			// Let the bars finish cleanly before anything else prints.
			ui.Wait()
			logger.SetOutput(os.Stderr)

			if err != nil {
				return err
			}

			fmt.Println(ds.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&metadataJSON, "metadata", "", "dataset metadata as a JSON object")
	return cmd
}
