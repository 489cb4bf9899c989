// Command epiq is the CLI companion to epiqd: it fetches shows from
// TMDB, runs local fits, generates calibration datasets and talks to a
// running server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
