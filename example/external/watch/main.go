package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/matthewmueller/autorefresh"
	"github.com/matthewmueller/socket"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx := context.Background()
	log := slog.Default()
	fsys := os.DirFS(".")
	tracker := autorefresh.NewTracker(log, fsys)
	if _, err := tracker.Scan(ctx); err != nil {
		log.Error("Error scanning files", "error", err)
		return
	}
	ar := autorefresh.New(log, fsys, tracker)
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return ar.Watch(ctx)
	})
	eg.Go(func() error {
		log.Info("Server started at http://localhost:8747")
		return socket.ListenAndServe(ctx, ":8747", ar)
	})
	if err := eg.Wait(); err != nil {
		log.Error("Error in server", "error", err)
		return
	}
}
