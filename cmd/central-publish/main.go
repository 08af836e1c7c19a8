// central-publish uploads bundles to the Maven Central Publisher Portal and
// follows the resulting deployments until they validate or publish.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"centralpublisher/cmd/central-publish/app"
	"centralpublisher/internal/apperrors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.NewRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(apperrors.ExitCode(err))
	}
}
