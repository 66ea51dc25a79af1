// Command univers exports historical device telemetry from Poseidon (EnOS)
// projects to CSV.
//
// It runs either as a one-shot CLI or as an HTTP service with scheduled
// exports.
//
// Usage:
//
//	univers projects
//	univers models --project Concorde
//	univers export --project Concorde --all --start 2024-01-01 --end 2024-01-08 --interval 15
//	univers serve
//
// Projects are read from config.yaml (see --config). A one-off project can be
// given with --access-key, --secret-key, --api-gateway and --org-id.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tejusbharadwaj/univers/internal/ferrors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		if ferrors.IsCredentialProblem(err) {
			fmt.Fprintf(os.Stderr, "%s %s\n", yellow("Hint:"), ferrors.CredentialHint)
		}
		if errors.Is(err, ferrors.ErrCanceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
