// Command mentor-metrics uploads teaching-session videos to the MentorMetrics
// backend, follows their analysis, and fetches the results.
package main

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/fpang/mentor-metrics-cli/internal/cli"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

func main() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
		fang.WithErrorHandler(func(w io.Writer, _ fang.Styles, err error) {
			cli.Notify(w, err)
		}),
	); err != nil {
		os.Exit(1)
	}
}
