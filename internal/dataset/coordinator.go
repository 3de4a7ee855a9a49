// Package dataset sequences whole-dataset operations: create, transfer,
// register, seal.
package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tangram-vision/datasets-cli/internal/cloud/download"
	"github.com/tangram-vision/datasets-cli/internal/cloud/upload"
	"github.com/tangram-vision/datasets-cli/internal/constants"
	"github.com/tangram-vision/datasets-cli/internal/logging"
	"github.com/tangram-vision/datasets-cli/internal/models"
	"github.com/tangram-vision/datasets-cli/internal/progress"
	"github.com/tangram-vision/datasets-cli/internal/validation"
)

// API is the slice of the metadata-service client the coordinator drives.
type API interface {
	CreateDataset(ctx context.Context, systemID string, metadata json.RawMessage) (*models.Dataset, error)
	RegisterFile(ctx context.Context, datasetID uuid.UUID, objectURL string, size int64, version string, metadata json.RawMessage) (*models.UploadedFile, error)
	ListFiles(ctx context.Context, datasetID uuid.UUID, prefixes []string) ([]models.UploadedFile, error)
	NotifyUploadComplete(ctx context.Context, datasetID uuid.UUID, plexFileID, objectSpaceFileID *uuid.UUID) error
}

// Uploader transfers one local file into the object store.
type Uploader interface {
	UploadFile(ctx context.Context, localPath, objectKey string, sink progress.Sink) (*upload.Result, error)
}

// Downloader streams one object onto disk.
type Downloader interface {
	DownloadFile(ctx context.Context, objectURL, destPath string, sink progress.Sink) error
}

// ProgressUI hands out one progress sink per file transfer.
type ProgressUI interface {
	AddFile(path string, size int64) FileProgress
}

// FileProgress is a per-file sink that is told how the transfer ended.
type FileProgress interface {
	progress.Sink
	Complete(err error)
}

// Coordinator owns a dataset from creation through the upload-complete
// notification.
type Coordinator struct {
	api           API
	uploader      Uploader
	newDownloader func(objectURL string) (Downloader, error)
	userID        uuid.UUID
	logger        *logging.Logger
}

// NewCoordinator wires a coordinator. newDownloader maps a registered
// object URL to a downloader for whichever storage provider serves it.
func NewCoordinator(api API, uploader Uploader, newDownloader func(objectURL string) (Downloader, error), userID uuid.UUID, logger *logging.Logger) *Coordinator {
	return &Coordinator{
		api:           api,
		uploader:      uploader,
		newDownloader: newDownloader,
		userID:        userID,
		logger:        logger,
	}
}

// UploadRequest describes one upload command.
type UploadRequest struct {
	// SystemID is the opaque user-supplied system identifier.
	SystemID string

	// Paths are the files to upload, relative to the working directory.
	// Each path doubles as the tail of the file's object key.
	Paths []string

	// Metadata is free-form dataset metadata.
	Metadata json.RawMessage
}

// Upload runs the full upload sequence: validate, create the dataset,
// transfer files with bounded concurrency, register each committed
// object, then seal the dataset.
//
// The upload-complete notification strictly happens after every
// registration. On any failure the first error is surfaced and the
// notification is never sent, so a partly transferred dataset stays
// unsealed.
func (c *Coordinator) Upload(ctx context.Context, req UploadRequest, ui ProgressUI) (*models.Dataset, error) {
	if err := validation.ValidateUploadSet(req.Paths); err != nil {
		return nil, err
	}
	if ui == nil {
		ui = NopUI{}
	}

	// Stat everything up front so input problems (missing files, files
	// over the size limit) surface before any network activity.
	sizes := make(map[string]int64, len(req.Paths))
	for _, p := range req.Paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", p, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory, expected a file", p)
		}
		if _, err := upload.DeriveChunkSize(info.Size()); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		sizes[p] = info.Size()
	}

	ds, err := c.api.CreateDataset(ctx, req.SystemID, req.Metadata)
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("dataset_id", ds.ID.String()).
		Str("system_id", req.SystemID).
		Int("files", len(req.Paths)).
		Msg("created dataset")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.MaxFilesConcurrently)

	for _, path := range req.Paths {
		g.Go(func() error {
			key := fmt.Sprintf("%s/%s/%s", c.userID, ds.ID, filepath.ToSlash(path))
			bar := ui.AddFile(path, sizes[path])

			res, err := c.uploader.UploadFile(gctx, path, key, bar)
			if err != nil {
				bar.Complete(err)
				return err
			}

			if _, err := c.api.RegisterFile(gctx, ds.ID, res.URL, res.Size, res.Version, nil); err != nil {
				bar.Complete(err)
				return fmt.Errorf("uploaded %s but failed to register it: %w", path, err)
			}

			bar.Complete(nil)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := c.api.NotifyUploadComplete(ctx, ds.ID, nil, nil); err != nil {
		return nil, err
	}

	c.logger.Info().Str("dataset_id", ds.ID.String()).Msg("dataset upload complete")
	return ds, nil
}

// DownloadRequest describes one download command.
type DownloadRequest struct {
	DatasetID uuid.UUID

	// Prefixes narrow the file listing; empty means the whole dataset.
	Prefixes []string

	// DestDir is the root the dataset's layout is recreated under.
	DestDir string

	// Overwrite decides whether an existing destination file may be
	// replaced. Nil always overwrites.
	Overwrite func(path string) (bool, error)
}

// Download lists the dataset's files and fetches them.
func (c *Coordinator) Download(ctx context.Context, req DownloadRequest, ui ProgressUI) error {
	files, err := c.api.ListFiles(ctx, req.DatasetID, req.Prefixes)
	if err != nil {
		return err
	}
	return c.DownloadFiles(ctx, req, files, ui)
}

// DownloadFiles fetches an already-listed set of files with bounded
// concurrency, recreating the uploaded layout under DestDir. Files whose
// destinations are declined by the overwrite policy are skipped.
func (c *Coordinator) DownloadFiles(ctx context.Context, req DownloadRequest, files []models.UploadedFile, ui ProgressUI) error {
	if len(files) == 0 {
		return fmt.Errorf("dataset %s has no files matching the given prefixes", req.DatasetID)
	}
	if ui == nil {
		ui = NopUI{}
	}

	type job struct {
		file models.UploadedFile
		dest string
	}
	jobs := make([]job, 0, len(files))
	for _, f := range files {
		rel, err := download.RelativePath(f.URL, req.DatasetID)
		if err != nil {
			return err
		}
		dest := filepath.Join(req.DestDir, filepath.FromSlash(rel))

		if req.Overwrite != nil {
			if _, statErr := os.Stat(dest); statErr == nil {
				ok, err := req.Overwrite(dest)
				if err != nil {
					return err
				}
				if !ok {
					c.logger.Info().Str("dest", dest).Msg("skipping existing file")
					continue
				}
			}
		}
		jobs = append(jobs, job{file: f, dest: dest})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.MaxFilesConcurrently)

	for _, j := range jobs {
		g.Go(func() error {
			dl, err := c.newDownloader(j.file.URL)
			if err != nil {
				return err
			}

			bar := ui.AddFile(j.dest, j.file.Filesize)
			if err := dl.DownloadFile(gctx, j.file.URL, j.dest, bar); err != nil {
				bar.Complete(err)
				return fmt.Errorf("download %s: %w", j.file.URL, err)
			}
			bar.Complete(nil)
			return nil
		})
	}

	return g.Wait()
}

// NopUI satisfies ProgressUI without rendering anything.
type NopUI struct{}

type nopFile struct{}

func (nopFile) Add(int64)      {}
func (nopFile) Complete(error) {}

// AddFile implements ProgressUI.
func (NopUI) AddFile(string, int64) FileProgress { return nopFile{} }
