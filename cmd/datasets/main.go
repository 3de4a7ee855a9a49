// Command datasets manages sensor-dataset artifacts: it creates datasets
// in the metadata service, uploads files to cloud object storage, and
// lists and downloads them back.
package main

import (
	"os"

	"github.com/tangram-vision/datasets-cli/internal/cli"
)

// Version is stamped by the release build via -ldflags.
var Version = "v1.0.0-dev"

func main() {
	cli.Version = Version
	os.Exit(cli.Execute())
}
