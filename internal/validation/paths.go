// Package validation enforces the upload path policy.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/tangram-vision/datasets-cli/internal/constants"
)

// ValidateUploadPath checks one upload path against the key policy:
// the path becomes the tail of the object key, so it must be relative,
// free of "." and ".." components, and valid UTF-8.
func ValidateUploadPath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	if !utf8.ValidString(path) {
		return fmt.Errorf("path %q must be valid UTF-8", path)
	}

	slashed := filepath.ToSlash(path)
	if filepath.IsAbs(path) || strings.HasPrefix(slashed, "/") {
		return fmt.Errorf("path %q must be relative", path)
	}

	for _, component := range strings.Split(slashed, "/") {
		if component == "." || component == ".." {
			return fmt.Errorf("path %q must not contain './' or '../' components", path)
		}
	}

	return nil
}

// ValidateUploadSet checks a whole upload's worth of paths, including the
// file-count cap. All violations are reported before any network activity.
func ValidateUploadSet(paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no files to upload")
	}
	if len(paths) > constants.UploadMaxFilesAllowed {
		return fmt.Errorf("too many files: %d exceeds the limit of %d", len(paths), constants.UploadMaxFilesAllowed)
	}

	for _, p := range paths {
		if err := ValidateUploadPath(p); err != nil {
			return err
		}
	}
	return nil
}
