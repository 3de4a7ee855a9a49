// Package download implements the download half of the transfer engine.
package download

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/tangram-vision/datasets-cli/internal/cloud/providers/s3"
	"github.com/tangram-vision/datasets-cli/internal/constants"
	"github.com/tangram-vision/datasets-cli/internal/logging"
	"github.com/tangram-vision/datasets-cli/internal/progress"
)

// Engine streams objects out of the object store onto disk.
type Engine struct {
	store  *s3.Client
	logger *logging.Logger
}

// NewEngine creates a download engine over the given object-store client.
func NewEngine(store *s3.Client, logger *logging.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// DownloadFile streams the object behind objectURL into destPath,
// creating parent directories as needed. Bytes are copied in fixed-size
// blocks with a byte-count delta to sink per block, so multi-gigabyte
// objects never sit in memory.
//
// On error a partial destination file is left in place; cleaning it up is
// the caller's choice.
func (e *Engine) DownloadFile(ctx context.Context, objectURL, destPath string, sink progress.Sink) error {
	if sink == nil {
		sink = progress.Discard
	}

	key, err := ObjectKey(objectURL, e.store.Bucket())
	if err != nil {
		return err
	}

	if dir := filepath.Dir(destPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	body, size, err := e.store.GetObject(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()

	e.logger.Debug().
		Str("key", key).
		Int64("size", size).
		Str("dest", destPath).
		Msg("downloading object")

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}
	defer out.Close()

	buf := make([]byte, constants.DownloadBufferSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("failed to write %s: %w", destPath, writeErr)
			}
			sink.Add(int64(n))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("failed to read object %q: %w", key, readErr)
		}
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", destPath, err)
	}
	return nil
}

// ObjectKey extracts the object key from a stored object URL.
//
// Virtual-host-style URLs (bucket in the hostname) carry the key as the
// whole path; path-style URLs carry the bucket as the first path segment.
func ObjectKey(objectURL, bucket string) (string, error) {
	u, err := url.Parse(objectURL)
	if err != nil {
		return "", fmt.Errorf("invalid object URL %q: %w", objectURL, err)
	}

	path := strings.TrimPrefix(u.Path, "/")
	if path == "" {
		return "", fmt.Errorf("object URL %q has no key", objectURL)
	}

	if strings.HasPrefix(u.Host, bucket+".") {
		return path, nil
	}
	// Path-style: drop the leading bucket segment.
	if rest, ok := strings.CutPrefix(path, bucket+"/"); ok && rest != "" {
		return rest, nil
	}
	return path, nil
}

// RelativePath derives the on-disk relative path of a registered file from
// its object URL: everything after the dataset-id segment of the key. Keys
// follow {user_id}/{dataset_id}/{relative_path}.
func RelativePath(objectURL string, datasetID uuid.UUID) (string, error) {
	u, err := url.Parse(objectURL)
	if err != nil {
		return "", fmt.Errorf("invalid object URL %q: %w", objectURL, err)
	}

	segments := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
	for i, seg := range segments {
		if seg == datasetID.String() && i+1 < len(segments) {
			return strings.Join(segments[i+1:], "/"), nil
		}
	}
	return "", fmt.Errorf("object URL %q does not contain dataset id %s", objectURL, datasetID)
}
