package main

import (
	"os"

	cli "github.com/tooldock/tooldock/cmd/tooldock"
)

// Version is populated by build ldflags in CI/release builds. Default
// value is "dev" for local builds.
var Version = "dev"

func main() {
	cli.SetVersion(Version)
	cli.Run(os.Args[1:])
}
