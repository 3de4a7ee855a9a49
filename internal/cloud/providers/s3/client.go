// Package s3 is the object-store client. Both provider profiles (AWS S3
// and DigitalOcean Spaces) speak the S3 wire protocol, so one client
// serves both; Spaces is reached through a base-endpoint override.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/tangram-vision/datasets-cli/internal/config"
	"github.com/tangram-vision/datasets-cli/internal/constants"
	"github.com/tangram-vision/datasets-cli/internal/httputil"
)

// S3API is the subset of the AWS SDK client the transfer engine uses.
// Kept narrow so tests can substitute a fake.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Client wraps the AWS SDK client for one storage profile.
//
// Safe to share across workers; the underlying SDK client carries a pooled
// HTTP transport sized to the part-upload concurrency.
type Client struct {
	api     S3API
	profile config.StorageProfile
}

// NewClient creates an object-store client for the given profile.
// When the profile carries static credentials they are used as-is;
// otherwise the AWS default credential chain applies.
func NewClient(ctx context.Context, profile config.StorageProfile) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(profile.Region),
		awsconfig.WithHTTPClient(httputil.NewTransferClient()),
	}
	if profile.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(profile.AccessKeyID, profile.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	api := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if profile.Endpoint != "" {
			o.BaseEndpoint = aws.String(profile.Endpoint)
		}
	})

	return &Client{api: api, profile: profile}, nil
}

// NewClientWithAPI wires an explicit S3API implementation. Tests use this
// to inject fakes.
func NewClientWithAPI(api S3API, profile config.StorageProfile) *Client {
	return &Client{api: api, profile: profile}
}

// Bucket returns the profile's bucket name.
func (c *Client) Bucket() string {
	return c.profile.Bucket
}

// Profile returns the storage profile this client serves.
func (c *Client) Profile() config.StorageProfile {
	return c.profile
}

// ObjectURL returns the https URL for a key in this client's bucket.
func (c *Client) ObjectURL(key string) string {
	return c.profile.ObjectURL(key)
}

// PutObject uploads a whole object in one request. The body must supply
// exactly length bytes and md5 must be the base64 MD5 of those bytes; the
// store rejects mismatches.
func (c *Client) PutObject(ctx context.Context, key string, body io.Reader, md5 string, length int64) (string, error) {
	out, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.profile.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentMD5:    aws.String(md5),
		ContentLength: aws.Int64(length),
	})
	if err != nil {
		return "", fmt.Errorf("put object %q: %w", key, err)
	}
	if out.VersionId == nil {
		return "", fmt.Errorf("put object %q: response missing VersionId (is bucket versioning enabled?)", key)
	}
	return *out.VersionId, nil
}

// CreateMultipart begins a multipart upload and returns its upload id.
func (c *Client) CreateMultipart(ctx context.Context, key string) (string, error) {
	out, err := c.api.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(c.profile.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("create multipart upload %q: %w", key, err)
	}
	if out.UploadId == nil {
		return "", fmt.Errorf("create multipart upload %q: response missing UploadId", key)
	}
	return *out.UploadId, nil
}

// UploadPart sends one chunk of a multipart upload and returns its entity
// tag. Part numbers must fall in [1, 10000]; sizes above the 5 GiB part
// cap are rejected before the request goes out.
func (c *Client) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body []byte, md5 string) (string, error) {
	if partNumber < 1 || partNumber > constants.MaxPartNumber {
		return "", fmt.Errorf("upload part %q: part number %d outside [1, %d]", key, partNumber, constants.MaxPartNumber)
	}
	if int64(len(body)) > constants.MaxPartSize {
		return "", fmt.Errorf("upload part %q: part %d is %d bytes, above the %d byte cap", key, partNumber, len(body), int64(constants.MaxPartSize))
	}

	out, err := c.api.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(c.profile.Bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          bytes.NewReader(body),
		ContentMD5:    aws.String(md5),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return "", fmt.Errorf("upload part %d of %q: %w", partNumber, key, err)
	}
	if out.ETag == nil {
		return "", fmt.Errorf("upload part %d of %q: response missing ETag", partNumber, key)
	}
	return *out.ETag, nil
}

// CompleteMultipart commits a multipart upload. Parts must be sorted
// ascending by part number; AWS rejects out-of-order commit lists.
func (c *Client) CompleteMultipart(ctx context.Context, key, uploadID string, parts []types.CompletedPart) (string, error) {
	out, err := c.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(c.profile.Bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		return "", fmt.Errorf("complete multipart upload %q: %w", key, err)
	}
	if out.VersionId == nil {
		return "", fmt.Errorf("complete multipart upload %q: response missing VersionId (is bucket versioning enabled?)", key)
	}
	return *out.VersionId, nil
}

// AbortMultipart abandons a multipart upload so the provider does not
// accumulate orphaned parts.
func (c *Client) AbortMultipart(ctx context.Context, key, uploadID string) error {
	_, err := c.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(c.profile.Bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("abort multipart upload %q: %w", key, err)
	}
	return nil
}

// GetObject streams an object's bytes. The caller owns the returned body
// and must close it; the second return is the object size when known
// (-1 otherwise).
func (c *Client) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.profile.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("get object %q: %w", key, err)
	}

	length := int64(-1)
	if out.ContentLength != nil {
		length = *out.ContentLength
	}
	return out.Body, length, nil
}
