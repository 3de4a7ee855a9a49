// Package upload implements the upload half of the transfer engine:
// chunked reads, the one-shot path for small files, and the concurrent
// multipart path for everything else.
package upload

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/tangram-vision/datasets-cli/internal/cloud/providers/s3"
	"github.com/tangram-vision/datasets-cli/internal/constants"
	"github.com/tangram-vision/datasets-cli/internal/logging"
	"github.com/tangram-vision/datasets-cli/internal/progress"
)

// Engine uploads local files to the object store. One Engine handles one
// file at a time; the coordinator runs several engines' worth of calls
// concurrently.
type Engine struct {
	store  *s3.Client
	logger *logging.Logger
}

// NewEngine creates an upload engine over the given object-store client.
func NewEngine(store *s3.Client, logger *logging.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// Result describes one durably committed object.
type Result struct {
	// URL is the object's https URL, registered with the metadata service.
	URL string

	// Version is the opaque version string the store returned at commit.
	Version string

	// Size is the object's byte size.
	Size int64
}

// UploadFile uploads the file at localPath to objectKey.
//
// Files below OneshotThreshold go up in a single checksummed PutObject;
// larger files use a concurrent multipart upload. Size-limit violations
// are reported before any network call. Byte progress flows to sink as
// parts complete.
func (e *Engine) UploadFile(ctx context.Context, localPath, objectKey string, sink progress.Sink) (*Result, error) {
	if sink == nil {
		sink = progress.Discard
	}

	file, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", localPath, err)
	}
	size := info.Size()

	var version string
	if size < constants.OneshotThreshold {
		version, err = e.putOneshot(ctx, file, objectKey, size, sink)
	} else {
		var chunkSize int64
		chunkSize, err = DeriveChunkSize(size)
		if err == nil {
			version, err = e.uploadMultipartConcurrent(ctx, file, objectKey, size, chunkSize, sink)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", localPath, err)
	}

	return &Result{
		URL:     e.store.ObjectURL(objectKey),
		Version: version,
		Size:    size,
	}, nil
}

// putOneshot uploads the whole file in one request. The MD5 is computed
// by streaming the file once, then the file is rewound for the transfer;
// nothing is buffered in memory.
func (e *Engine) putOneshot(ctx context.Context, file *os.File, objectKey string, size int64, sink progress.Sink) (string, error) {
	md5sum, err := streamMD5Base64(file)
	if err != nil {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind after hashing: %w", err)
	}

	body := &sinkReader{r: io.LimitReader(file, size), sink: sink}
	return e.store.PutObject(ctx, objectKey, body, md5sum, size)
}

// sinkReader forwards read byte counts to a progress sink.
type sinkReader struct {
	r    io.Reader
	sink progress.Sink
}

func (sr *sinkReader) Read(p []byte) (int, error) {
	n, err := sr.r.Read(p)
	if n > 0 {
		sr.sink.Add(int64(n))
	}
	return n, err
}
