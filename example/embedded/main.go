package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/livebud/mux"
	"github.com/matthewmueller/autorefresh"
	"github.com/matthewmueller/socket"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx := context.Background()
	dir := "example/embedded/public"
	public := os.DirFS(dir)
	tracker := autorefresh.NewTracker(slog.Default(), public)
	if _, err := tracker.Scan(ctx); err != nil {
		slog.Error("Error scanning files", "error", err)
		return
	}
	ar := autorefresh.New(slog.Default(), public, tracker)
	router := mux.New()
	router.Get("/", http.FileServer(http.FS(public)).ServeHTTP)
	router.Get("/about", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "<html><body><h1>About Page</h1></body></html>")
	})
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return ar.Watch(ctx)
	})
	eg.Go(func() error {
		return tracker.Notify(ctx, dir)
	})
	eg.Go(func() error {
		fmt.Println("Server started at http://localhost:3000")
		return socket.ListenAndServe(ctx, ":3000", ar.Middleware(router))
	})
	if err := eg.Wait(); err != nil {
		slog.Error("Error in server", "error", err)
		return
	}
}
