// Command mtrsplit splits the MTR inventory table into filled and empty
// tables, enriched from the GOST and ED_IZM reference tables.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/mtrsplit/internal/core"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Cancelled on SIGINT/SIGTERM; the pipeline stops between rows.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("mtrsplit failed", "error", err)
		if msg := core.FormatUserError(err); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		stop()
		os.Exit(1)
	}
}
