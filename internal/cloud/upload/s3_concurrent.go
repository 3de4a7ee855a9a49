package upload

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/tangram-vision/datasets-cli/internal/constants"
	"github.com/tangram-vision/datasets-cli/internal/progress"
)

// uploadMultipartConcurrent uploads one file as a multipart upload with
// concurrent part uploads.
//
// A single producer drains the ChunkReader in part-number order and feeds
// a fixed pool of ConcurrentRequestLimit workers over an unbuffered
// channel, so the producer suspends whenever the pool is saturated. Parts
// may complete out of order; the commit list is re-sorted ascending before
// CompleteMultipartUpload, which AWS requires.
//
// On the first error no new chunks are dispatched, in-flight workers are
// drained (their results discarded), and the upload id is best-effort
// aborted so the provider does not accumulate orphaned parts.
func (e *Engine) uploadMultipartConcurrent(ctx context.Context, file io.Reader, objectKey string, totalSize, chunkSize int64, sink progress.Sink) (version string, err error) {
	totalParts := int((totalSize + chunkSize - 1) / chunkSize)

	uploadID, err := e.store.CreateMultipart(ctx, objectKey)
	if err != nil {
		return "", err
	}

	e.logger.Debug().
		Str("key", objectKey).
		Int("parts", totalParts).
		Int64("chunk_size", chunkSize).
		Msg("starting multipart upload")

	defer func() {
		if err == nil {
			return
		}
		// The surrounding context may already be cancelled; give the
		// abort its own deadline.
		abortCtx, cancel := context.WithTimeout(context.Background(), constants.AbortTimeout)
		defer cancel()
		if abortErr := e.store.AbortMultipart(abortCtx, objectKey, uploadID); abortErr != nil {
			e.logger.Warn().Str("key", objectKey).Err(abortErr).Msg("failed to abort multipart upload")
		}
	}()

	// jobs is unbuffered: the producer blocks once every worker is busy,
	// bounding peak memory to ConcurrentRequestLimit chunks (plus the one
	// in the producer's hand).
	jobs := make(chan *FileChunk)
	results := make(chan types.CompletedPart, totalParts)
	quit := make(chan struct{})

	var (
		failOnce sync.Once
		failErr  error
	)
	fail := func(cause error) {
		failOnce.Do(func() {
			failErr = cause
			close(quit)
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < constants.ConcurrentRequestLimit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range jobs {
				select {
				case <-quit:
					return
				case <-ctx.Done():
					fail(ctx.Err())
					return
				default:
				}

				etag, uploadErr := e.store.UploadPart(ctx, objectKey, uploadID, chunk.PartNumber, chunk.Data, md5Base64(chunk.Data))
				if uploadErr != nil {
					fail(uploadErr)
					return
				}

				sink.Add(int64(len(chunk.Data)))
				results <- types.CompletedPart{
					ETag:       aws.String(etag),
					PartNumber: aws.Int32(chunk.PartNumber),
				}
			}
		}()
	}

	reader := NewChunkReader(file, totalSize, chunkSize)
	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		defer close(jobs)
		for {
			chunk, readErr := reader.Next()
			if readErr == io.EOF {
				return
			}
			if readErr != nil {
				fail(readErr)
				return
			}
			select {
			case jobs <- chunk:
			case <-quit:
				return
			}
		}
	}()

	<-producerDone
	wg.Wait()
	close(results)

	select {
	case <-quit:
		// Workers were drained above; any results they produced before
		// the failure are discarded with the channel.
		err = failErr
		return "", err
	default:
	}

	parts := make([]types.CompletedPart, 0, totalParts)
	for part := range results {
		parts = append(parts, part)
	}
	sort.Slice(parts, func(i, j int) bool {
		return aws.ToInt32(parts[i].PartNumber) < aws.ToInt32(parts[j].PartNumber)
	})

	version, err = e.store.CompleteMultipart(ctx, objectKey, uploadID, parts)
	return version, err
}
