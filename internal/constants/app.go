package constants

import (
	"time"
)

// Transfer thresholds
const (
	// OneshotThreshold - files below this size are uploaded with a single
	// PutObject call instead of a multipart upload (64 MiB)
	OneshotThreshold = 64 * 1024 * 1024

	// DefaultChunkSize - base size of each multipart chunk (16 MiB)
	//
	// Small files keep 16 MiB parts so a transient failure costs little
	// re-work. Files approaching multi-terabyte scale get larger parts via
	// DeriveChunkSize to stay within MaxParts.
	DefaultChunkSize = 16 * 1024 * 1024

	// MaxFileSize - largest file accepted for upload (5000 GiB)
	// With MaxParts = 1000 this keeps every part under the S3 5 GiB cap.
	MaxFileSize = 5000 * 1024 * 1024 * 1024

	// MaxParts - self-imposed cap on parts per multipart upload.
	// S3 allows 10000; staying at 1000 keeps ListParts pagination trivial
	// and the completion envelope small.
	MaxParts = 1000

	// MinPartSize - S3 minimum part size, except the final part (5 MiB)
	MinPartSize = 5 * 1024 * 1024

	// MaxPartSize - S3 maximum part size (5 GiB)
	MaxPartSize = 5 * 1024 * 1024 * 1024

	// MaxPartNumber - S3 part numbers must fall in [1, 10000]
	MaxPartNumber = 10000

	// DownloadBufferSize - copy-block size for streamed downloads (2 MiB)
	DownloadBufferSize = 2 * 1024 * 1024
)

// Concurrency bounds
const (
	// ConcurrentRequestLimit - part uploads in flight per file.
	// Peak RAM per file is ConcurrentRequestLimit x chunk size
	// (10 x 16 MiB = 160 MiB at the default chunk size).
	ConcurrentRequestLimit = 10

	// MaxFilesConcurrently - file transfers in flight per command
	MaxFilesConcurrently = 4

	// UploadMaxFilesAllowed - maximum files accepted by a single upload
	UploadMaxFilesAllowed = 200
)

// Metadata-service client settings
const (
	// APITimeout - per-request timeout for metadata-service calls (30s)
	APITimeout = 30 * time.Second

	// APIRetryMax - transient-failure retries for metadata-service calls.
	// The transfer path never retries parts; this only covers the small
	// JSON requests to the metadata service.
	APIRetryMax = 3

	// APIRetryWaitMin / APIRetryWaitMax - retry backoff bounds
	APIRetryWaitMin = 500 * time.Millisecond
	APIRetryWaitMax = 10 * time.Second

	// ListLimitMax - PostgREST page-size ceiling for listings
	ListLimitMax = 100
)

// HTTP transport settings for object-store transfers
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90s)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (30s)
	HTTPTLSHandshakeTimeout = 30 * time.Second

	// HTTPDialTimeout - timeout for establishing a connection (30s)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for the dialer (30s)
	HTTPDialKeepAlive = 30 * time.Second

	// AbortTimeout - budget for the best-effort AbortMultipartUpload that
	// follows a failed upload (30s)
	AbortTimeout = 30 * time.Second
)

// Progress UI
const (
	// ProgressRefreshRate - refresh interval for the multi-bar renderer
	ProgressRefreshRate = 300 * time.Millisecond
)
