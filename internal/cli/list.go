package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/tangram-vision/datasets-cli/internal/api"
	"github.com/tangram-vision/datasets-cli/internal/cloud/download"
	"github.com/tangram-vision/datasets-cli/internal/models"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List datasets and their files",
	}
	cmd.AddCommand(newListDatasetsCmd())
	cmd.AddCommand(newListFilesCmd())
	return cmd
}

func newListDatasetsCmd() *cobra.Command {
	var (
		datasetID string
		systemID  string
		before    string
		after     string
		limit     int
		offset    int
		desc      bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "List datasets, optionally filtered",
		Long: `Lists datasets with their registered files. Date filters take
YYYY-MM-DD values; --before is exclusive and --after is inclusive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := api.DatasetFilter{
				SystemID:        systemID,
				Before:          before,
				After:           after,
				OrderDescending: desc,
				Limit:           limit,
				Offset:          offset,
			}
			if datasetID != "" {
				id, err := uuid.Parse(datasetID)
				if err != nil {
					return fmt.Errorf("invalid --id: %w", err)
				}
				filter.DatasetID = &id
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			datasets, err := api.NewClient(cfg).ListDatasets(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(os.Stdout, datasets)
			}

			table := newTable(os.Stdout, "DATASET ID", "SYSTEM", "CREATED", "FILES", "SIZE")
			for _, ds := range datasets {
				var total int64
				for _, f := range ds.Files {
					total += f.Filesize
				}
				table.Append([]string{
					ds.ID.String(),
					ds.SystemID,
					ds.CreatedDate.Format("2006-01-02 15:04:05"),
					fmt.Sprintf("%d", len(ds.Files)),
					humanize.Bytes(uint64(total)),
				})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&datasetID, "id", "", "show a single dataset by id")
	cmd.Flags().StringVar(&systemID, "system-id", "", "filter by system id")
	cmd.Flags().StringVar(&before, "before", "", "only datasets created before this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&after, "after", "", "only datasets created on or after this date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of datasets to return (1-100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of datasets to skip")
	cmd.Flags().BoolVar(&desc, "desc", false, "sort newest first")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit raw JSON instead of a table")
	return cmd
}

func newListFilesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "files <dataset-id> [prefix]...",
		Short: "List a dataset's files, optionally narrowed to path prefixes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			datasetID, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			files, err := api.NewClient(cfg).ListFiles(cmd.Context(), datasetID, args[1:])
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(os.Stdout, files)
			}

			table := newTable(os.Stdout, "PATH", "SIZE", "VERSION", "CREATED")
			for _, f := range files {
				table.Append([]string{
					filePathColumn(f, datasetID),
					humanize.Bytes(uint64(f.Filesize)),
					f.Version,
					f.CreatedDate.Format("2006-01-02 15:04:05"),
				})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit raw JSON instead of a table")
	return cmd
}

// filePathColumn shows the file's path within the dataset, falling back
// to the raw object URL when it doesn't parse.
func filePathColumn(f models.UploadedFile, datasetID uuid.UUID) string {
	rel, err := download.RelativePath(f.URL, datasetID)
	if err != nil {
		return f.URL
	}
	return rel
}

func newTable(w io.Writer, headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
