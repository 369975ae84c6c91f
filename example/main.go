package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/matthewmueller/autorefresh"
)

func main() {
	ctx := context.Background()
	fsys := os.DirFS("example/public")
	tracker := autorefresh.NewTracker(slog.Default(), fsys)
	if _, err := tracker.Scan(ctx); err != nil {
		slog.Error("Error scanning files", "error", err)
		return
	}
	ar := autorefresh.New(slog.Default(), fsys, tracker)
	fmt.Println("Server started at http://localhost:3000")
	go ar.Watch(ctx)
	http.ListenAndServe(":3000", ar)
}
