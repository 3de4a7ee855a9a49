package upload

import (
	"crypto/md5"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/tangram-vision/datasets-cli/internal/constants"
)

func TestDeriveChunkSize(t *testing.T) {
	tests := []struct {
		name      string
		totalSize int64
		want      int64
	}{
		{"empty file", 0, constants.DefaultChunkSize},
		{"small file", 1024, constants.DefaultChunkSize},
		{"exactly at the default chunk size", constants.DefaultChunkSize, constants.DefaultChunkSize},
		// 1000 parts of 16 MiB fit exactly; the default holds.
		{"largest default-chunk file", constants.DefaultChunkSize * constants.MaxParts, constants.DefaultChunkSize},
		// One byte more forces 17 MiB parts (rounded up to a whole MiB).
		{"one byte over", constants.DefaultChunkSize*constants.MaxParts + 1, 17 * mib},
		{"needs much larger chunks", 100 * mib * constants.MaxParts, 100 * mib},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeriveChunkSize(tt.totalSize)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("DeriveChunkSize(%d) = %d, want %d", tt.totalSize, got, tt.want)
			}
		})
	}
}

func TestDeriveChunkSize_PartCountBound(t *testing.T) {
	// Whatever the input, the derived chunk size must keep the part count
	// at or below MaxParts.
	for _, size := range []int64{
		constants.DefaultChunkSize * constants.MaxParts,
		constants.DefaultChunkSize*constants.MaxParts + 1,
		constants.MaxFileSize,
	} {
		chunk, err := DeriveChunkSize(size)
		if err != nil {
			t.Fatalf("size %d: unexpected error: %v", size, err)
		}
		parts := (size + chunk - 1) / chunk
		if parts > constants.MaxParts {
			t.Errorf("size %d: %d parts of %d bytes exceeds the %d part cap", size, parts, chunk, constants.MaxParts)
		}
	}
}

func TestDeriveChunkSize_RejectsOversizedFile(t *testing.T) {
	if _, err := DeriveChunkSize(constants.MaxFileSize + 1); err == nil {
		t.Fatal("expected an error for a file above the size limit")
	}
}

func TestMD5Base64(t *testing.T) {
	data := []byte("hello multipart world")
	sum := md5.Sum(data)
	want := base64.StdEncoding.EncodeToString(sum[:])

	if got := md5Base64(data); got != want {
		t.Errorf("md5Base64 = %q, want %q", got, want)
	}

	streamed, err := streamMD5Base64(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if streamed != want {
		t.Errorf("streamMD5Base64 = %q, want %q", streamed, want)
	}
}
