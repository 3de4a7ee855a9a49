package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tangram-vision/datasets-cli/internal/cloud/providers/s3"
	"github.com/tangram-vision/datasets-cli/internal/config"
	"github.com/tangram-vision/datasets-cli/internal/constants"
	"github.com/tangram-vision/datasets-cli/internal/logging"
)

// fakeS3 records calls and serves canned responses. Part bodies are kept
// so tests can reassemble the object.
type fakeS3 struct {
	mu sync.Mutex

	putKey     string
	putMD5     string
	putLength  int64
	putBody    []byte
	putCalls   int
	putErr     error
	createdKey string
	uploadID   string
	parts      map[int32][]byte
	partMD5s   map[int32]string
	partErrOn  int32
	completed  []int32
	aborted    int
	versionID  string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		uploadID:  "upload-123",
		versionID: "version-abc",
		parts:     make(map[int32][]byte),
		partMD5s:  make(map[int32]string),
	}
}

func (f *fakeS3) PutObject(ctx context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.putKey = aws.ToString(in.Key)
	f.putMD5 = aws.ToString(in.ContentMD5)
	f.putLength = aws.ToInt64(in.ContentLength)
	f.putBody = body
	return &awss3.PutObjectOutput{VersionId: aws.String(f.versionID)}, nil
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, in *awss3.CreateMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdKey = aws.ToString(in.Key)
	return &awss3.CreateMultipartUploadOutput{UploadId: aws.String(f.uploadID)}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, in *awss3.UploadPartInput, _ ...func(*awss3.Options)) (*awss3.UploadPartOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	partNumber := aws.ToInt32(in.PartNumber)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.partErrOn != 0 && partNumber == f.partErrOn {
		return nil, errors.New("injected part failure")
	}
	f.parts[partNumber] = body
	f.partMD5s[partNumber] = aws.ToString(in.ContentMD5)
	return &awss3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("etag-%d", partNumber))}, nil
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, in *awss3.CompleteMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range in.MultipartUpload.Parts {
		f.completed = append(f.completed, aws.ToInt32(p.PartNumber))
	}
	return &awss3.CompleteMultipartUploadOutput{VersionId: aws.String(f.versionID)}, nil
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, in *awss3.AbortMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted++
	return &awss3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body := f.putBody
	return &awss3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: aws.Int64(int64(len(body))),
	}, nil
}

func testProfile() config.StorageProfile {
	return config.StorageProfile{
		Provider: config.ProviderAWS,
		Bucket:   "test-bucket",
		Region:   "us-west-1",
	}
}

func newTestEngine(fake *fakeS3) *Engine {
	logger := logging.NewLogger()
	logger.SetOutput(io.Discard)
	return NewEngine(s3.NewClientWithAPI(fake, testProfile()), logger)
}

// countingSink tallies reported progress bytes.
type countingSink struct {
	mu    sync.Mutex
	total int64
}

func (s *countingSink) Add(delta int64) {
	s.mu.Lock()
	s.total += delta
	s.mu.Unlock()
}

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestUploadFile_OneshotSmallFile(t *testing.T) {
	data := []byte("a small sensor log")
	path := writeTempFile(t, data)
	fake := newFakeS3()
	engine := newTestEngine(fake)
	sink := &countingSink{}

	res, err := engine.UploadFile(context.Background(), path, "user/ds/payload.bin", sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fake.putCalls != 1 {
		t.Fatalf("expected 1 PutObject call, got %d", fake.putCalls)
	}
	if fake.createdKey != "" {
		t.Error("small file should not start a multipart upload")
	}
	if fake.putKey != "user/ds/payload.bin" {
		t.Errorf("unexpected key %q", fake.putKey)
	}
	if !bytes.Equal(fake.putBody, data) {
		t.Error("uploaded body does not match the file")
	}
	if fake.putMD5 != md5Base64(data) {
		t.Errorf("ContentMD5 = %q, want %q", fake.putMD5, md5Base64(data))
	}
	if fake.putLength != int64(len(data)) {
		t.Errorf("ContentLength = %d, want %d", fake.putLength, len(data))
	}
	if res.Version != fake.versionID {
		t.Errorf("version = %q, want %q", res.Version, fake.versionID)
	}
	if res.Size != int64(len(data)) {
		t.Errorf("size = %d, want %d", res.Size, len(data))
	}
	if want := "https://test-bucket.s3.us-west-1.amazonaws.com/user/ds/payload.bin"; res.URL != want {
		t.Errorf("URL = %q, want %q", res.URL, want)
	}
	if sink.total != int64(len(data)) {
		t.Errorf("progress total = %d, want %d", sink.total, len(data))
	}
}

func TestUploadFile_ZeroByteFile(t *testing.T) {
	path := writeTempFile(t, nil)
	fake := newFakeS3()
	engine := newTestEngine(fake)

	res, err := engine.UploadFile(context.Background(), path, "user/ds/empty", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.putCalls != 1 {
		t.Fatalf("expected the one-shot path, got %d PutObject calls", fake.putCalls)
	}
	if len(fake.putBody) != 0 {
		t.Errorf("expected an empty body, got %d bytes", len(fake.putBody))
	}
	if res.Size != 0 {
		t.Errorf("size = %d, want 0", res.Size)
	}
}

func TestUploadFile_OneshotBoundary(t *testing.T) {
	// One byte under the threshold stays on the one-shot path; at the
	// threshold the upload switches to multipart.
	buf := make([]byte, constants.OneshotThreshold)

	t.Run("under threshold", func(t *testing.T) {
		path := writeTempFile(t, buf[:constants.OneshotThreshold-1])
		fake := newFakeS3()
		engine := newTestEngine(fake)

		res, err := engine.UploadFile(context.Background(), path, "user/ds/under.bin", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fake.putCalls != 1 {
			t.Errorf("expected the one-shot path, got %d PutObject calls", fake.putCalls)
		}
		if fake.createdKey != "" {
			t.Error("file under the threshold must not start a multipart upload")
		}
		if res.Size != constants.OneshotThreshold-1 {
			t.Errorf("size = %d", res.Size)
		}
	})

	t.Run("at threshold", func(t *testing.T) {
		path := writeTempFile(t, buf)
		fake := newFakeS3()
		engine := newTestEngine(fake)
		sink := &countingSink{}

		res, err := engine.UploadFile(context.Background(), path, "user/ds/at.bin", sink)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fake.putCalls != 0 {
			t.Errorf("expected the multipart path, got %d PutObject calls", fake.putCalls)
		}
		if fake.createdKey != "user/ds/at.bin" {
			t.Errorf("multipart created for key %q", fake.createdKey)
		}
		// 64 MiB at the default 16 MiB chunk size commits four full parts.
		if len(fake.completed) != 4 {
			t.Errorf("expected 4 completed parts, got %d", len(fake.completed))
		}
		for n := int32(1); n <= 4; n++ {
			if int64(len(fake.parts[n])) != constants.DefaultChunkSize {
				t.Errorf("part %d: %d bytes, want %d", n, len(fake.parts[n]), int64(constants.DefaultChunkSize))
			}
		}
		if sink.total != constants.OneshotThreshold {
			t.Errorf("progress total = %d, want %d", sink.total, int64(constants.OneshotThreshold))
		}
		if res.Version != fake.versionID {
			t.Errorf("version = %q, want %q", res.Version, fake.versionID)
		}
	})
}

func TestUploadFile_MissingFile(t *testing.T) {
	engine := newTestEngine(newFakeS3())
	if _, err := engine.UploadFile(context.Background(), filepath.Join(t.TempDir(), "nope"), "k", nil); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestMultipart_PartAssembly(t *testing.T) {
	// 100 bytes in 16-byte chunks: parts 1-6 hold 16 bytes, part 7 holds 4.
	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}
	fake := newFakeS3()
	engine := newTestEngine(fake)
	sink := &countingSink{}

	version, err := engine.uploadMultipartConcurrent(context.Background(), bytes.NewReader(data), "user/ds/big.bin", 100, 16, sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != fake.versionID {
		t.Errorf("version = %q, want %q", version, fake.versionID)
	}
	if fake.createdKey != "user/ds/big.bin" {
		t.Errorf("multipart created for key %q", fake.createdKey)
	}

	if len(fake.parts) != 7 {
		t.Fatalf("expected 7 parts, got %d", len(fake.parts))
	}
	for n := int32(1); n <= 6; n++ {
		if len(fake.parts[n]) != 16 {
			t.Errorf("part %d: expected 16 bytes, got %d", n, len(fake.parts[n]))
		}
	}
	if len(fake.parts[7]) != 4 {
		t.Errorf("final part: expected 4 bytes, got %d", len(fake.parts[7]))
	}

	// The commit list must be ascending and gap-free.
	if len(fake.completed) != 7 {
		t.Fatalf("expected 7 completed parts, got %d", len(fake.completed))
	}
	for i, n := range fake.completed {
		if n != int32(i+1) {
			t.Fatalf("completed parts out of order: %v", fake.completed)
		}
	}

	// Reassembling the parts reproduces the input.
	var assembled []byte
	for n := int32(1); n <= 7; n++ {
		assembled = append(assembled, fake.parts[n]...)
		if fake.partMD5s[n] != md5Base64(fake.parts[n]) {
			t.Errorf("part %d: wrong ContentMD5", n)
		}
	}
	if !bytes.Equal(assembled, data) {
		t.Error("reassembled parts do not match the input")
	}

	if sink.total != 100 {
		t.Errorf("progress total = %d, want 100", sink.total)
	}
	if fake.aborted != 0 {
		t.Errorf("successful upload should not abort, got %d aborts", fake.aborted)
	}
}

func TestMultipart_SinglePartRemainder(t *testing.T) {
	// Total smaller than the chunk size still commits as a one-part upload.
	data := []byte("tiny")
	fake := newFakeS3()
	engine := newTestEngine(fake)
	sink := &countingSink{}

	if _, err := engine.uploadMultipartConcurrent(context.Background(), bytes.NewReader(data), "k", int64(len(data)), 16, sink); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.parts) != 1 || len(fake.parts[1]) != len(data) {
		t.Fatalf("expected one %d-byte part, got %v", len(data), fake.parts)
	}
}

func TestMultipart_PartFailureAborts(t *testing.T) {
	data := make([]byte, 100)
	fake := newFakeS3()
	fake.partErrOn = 3
	engine := newTestEngine(fake)
	sink := &countingSink{}

	_, err := engine.uploadMultipartConcurrent(context.Background(), bytes.NewReader(data), "k", 100, 16, sink)
	if err == nil {
		t.Fatal("expected the injected part failure to surface")
	}
	if len(fake.completed) != 0 {
		t.Error("failed upload must not be completed")
	}
	if fake.aborted != 1 {
		t.Errorf("expected exactly one abort, got %d", fake.aborted)
	}
}

func TestMultipart_ReadFailureAborts(t *testing.T) {
	// Reader delivers fewer bytes than promised; the short read must fail
	// the upload and trigger an abort.
	fake := newFakeS3()
	engine := newTestEngine(fake)
	sink := &countingSink{}

	_, err := engine.uploadMultipartConcurrent(context.Background(), bytes.NewReader(make([]byte, 20)), "k", 100, 16, sink)
	if err == nil {
		t.Fatal("expected an error for the truncated reader")
	}
	if len(fake.completed) != 0 {
		t.Error("failed upload must not be completed")
	}
	if fake.aborted != 1 {
		t.Errorf("expected exactly one abort, got %d", fake.aborted)
	}
}

func TestMultipart_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := newFakeS3()
	engine := newTestEngine(fake)
	sink := &countingSink{}

	if _, err := engine.uploadMultipartConcurrent(ctx, bytes.NewReader(make([]byte, 100)), "k", 100, 16, sink); err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
	if len(fake.completed) != 0 {
		t.Error("cancelled upload must not be completed")
	}
}
