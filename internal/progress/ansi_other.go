//go:build !windows

package progress

import "os"

// enableANSI is a no-op outside Windows; ANSI is assumed available.
func enableANSI(*os.File) {}
