// Package cli implements the rjs command-line interface.
//
// This package provides the "install" command: resolving a project's
// dependencies against an npm registry, downloading and extracting the
// resulting graph into node_modules, and writing rjs-lock.json. The CLI
// is built using cobra and supports verbose logging via the
// charmbracelet/log library.
//
// # Logging
//
// install supports --verbose (-v) for debug-level logging.
//
// # Example
//
//	import "github.com/rjspm/rjs/internal/cli"
//
//	func main() {
//	    c := cli.New(os.Stderr, cli.LogInfo)
//	    if err := c.RootCommand().Execute(); err != nil {
//	        os.Exit(1)
//	    }
//	}
package cli

import (
	"time"

	"github.com/charmbracelet/log"
)

// progress tracks the start time of an operation and logs completion with elapsed duration.
// It is safe for sequential use by a single goroutine; concurrent calls to done will race.
type progress struct {
	logger *log.Logger
	start  time.Time
}

// newProgress creates a progress tracker that captures the current time as start.
// The returned progress should call done when the operation completes.
func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time since progress was created.
// The duration is rounded to the nearest millisecond.
// Example output: "Resolved 42 packages (1.234s)"
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}
