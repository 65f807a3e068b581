// Command watch prints the realtime directory events of one session.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

func main() {
	server := flag.String("server", "http://localhost:8375", "API server base URL")
	token := flag.String("token", os.Getenv("MEMBERDIR_TOKEN"), "session token (defaults to $MEMBERDIR_TOKEN)")
	types := flag.String("types", "", "comma-separated event types to show (default all)")
	flag.Parse()

	if *token == "" {
		log.Fatal("a session token is required: pass -token or set MEMBERDIR_TOKEN")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := &watcher{
		server: strings.TrimRight(*server, "/"),
		token:  *token,
		only:   parseTypes(*types),
		out:    os.Stdout,
	}
	if err := w.run(ctx); err != nil {
		log.Fatalf("watch: %v", err)
	}
}
