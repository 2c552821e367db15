// Command taskdeskctl is a command-line client for a taskdesk server. The
// session is kept in a file between invocations and every call goes through
// a session.Coordinator, so an expired access credential is renewed on the
// fly.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
