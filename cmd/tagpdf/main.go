// Command tagpdf converts HTML or Markdown into tagged PDF/UA documents and
// processes queued conversion requests.
package main

import (
	"os"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/wudi/tagpdf/composer"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	// maxprocs.Set only fails on an invalid GOMAXPROCS, where runtime
	// defaults apply.
	_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))
	if Version != "dev" {
		composer.Version = Version
	}
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
