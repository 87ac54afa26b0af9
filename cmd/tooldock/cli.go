// Package tooldock implements the CLI entrypoint: serve (run the three
// frontends), reload (trigger a hot-reload), and servers
// (list/install/start/stop/delete external MCP servers). A thin
// main.go at the module root sets the build-time version and calls
// Run with the process arguments.
package tooldock

import (
	"fmt"
	"log"
	"os"

	"github.com/jessevdk/go-flags"
)

// Run parses flags and executes the selected command.
func Run(args []string) {
	opts := &Options{}
	var first string
	if len(args) > 0 {
		first = args[0]
	}
	opts.Init(first)

	if hasVersionFlag(args) {
		fmt.Println(Version())
		os.Exit(0)
	}

	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		log.Fatalf("%v", err)
	}

	if opts.Version {
		fmt.Println(Version())
		os.Exit(0)
	}
}

func hasVersionFlag(args []string) bool {
	for _, a := range args {
		if a == "-v" || a == "--version" {
			return true
		}
	}
	return false
}
