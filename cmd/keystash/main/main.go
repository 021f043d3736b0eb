package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arthur-debert/keystash/cmd/keystash"
	"github.com/arthur-debert/keystash/pkg/errors"
	"github.com/arthur-debert/keystash/pkg/ui/styles"
)

func main() {
	// Interrupting a backup cancels the run so staged files are cleaned up
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := keystash.NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		msg := fmt.Sprintf("Error: %v", err)
		if code := errors.GetErrorCode(err); code != errors.ErrUnknown {
			msg = fmt.Sprintf("Error [%s]: %v", code, err)
		}
		fmt.Fprintln(os.Stderr, styles.Render(os.Stderr, "Error", msg))
		stop()
		os.Exit(1)
	}
}
