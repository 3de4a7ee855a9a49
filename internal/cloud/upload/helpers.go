package upload

import (
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/tangram-vision/datasets-cli/internal/constants"
)

const mib = 1024 * 1024

// DeriveChunkSize picks the multipart chunk size for a file of totalSize
// bytes: the default 16 MiB, scaled up in whole mebibytes when the file
// would otherwise exceed MaxParts parts.
//
// Files above MaxFileSize are rejected here, before any network activity.
func DeriveChunkSize(totalSize int64) (int64, error) {
	if totalSize > constants.MaxFileSize {
		return 0, fmt.Errorf("file size %s exceeds the %s upload limit",
			humanize.IBytes(uint64(totalSize)), humanize.IBytes(uint64(constants.MaxFileSize)))
	}

	perPart := (totalSize + constants.MaxParts - 1) / constants.MaxParts
	perPart = (perPart + mib - 1) / mib * mib
	if perPart < constants.DefaultChunkSize {
		perPart = constants.DefaultChunkSize
	}
	return perPart, nil
}

// md5Base64 returns the base64 MD5 of buf, as the Content-MD5 header wants.
func md5Base64(buf []byte) string {
	sum := md5.Sum(buf)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// streamMD5Base64 computes the base64 MD5 of r without buffering it.
func streamMD5Base64(r io.Reader) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}
