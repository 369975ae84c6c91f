package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/livebud/mux"
	"github.com/matthewmueller/autorefresh"
)

func main() {
	fsys := http.FileServer(http.Dir("example/external/public"))
	// Polls the status endpoint of example/external/watch across origins
	script := autorefresh.ScriptFor("http://localhost:8747/__refresh_check__", 500*time.Millisecond)
	router := mux.New()
	router.Get("/", fsys.ServeHTTP)
	router.Get("/about", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><body><h1>About</h1>%s</body></html>\n", script)
	})
	fmt.Println("Server started at http://localhost:3000")
	if err := http.ListenAndServe(":3000", router); err != nil {
		slog.Error("Error in server", "error", err)
		return
	}
}
