package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	os.Exit(execute(context.Background(), os.Args[1:]))
}

// execute runs the CLI and returns the process exit code. Cancellation by
// SIGINT/SIGTERM during serve or run is a clean exit.
func execute(ctx context.Context, args []string) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	default:
		fmt.Fprintf(os.Stderr, "slidewright: %v\n", err)
		return 1
	}
}
