package autorefresh

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/livebud/sse"
	"github.com/matthewmueller/httpbuf"
)

// Event is an server-sent event (SSE) that gets sent to subscribed clients
type Event = sse.Event

// New server that serves fsys and reports changes seen by the tracker
func New(log *slog.Logger, fsys fs.FS, tracker *Tracker) *Server {
	return &Server{
		Path:    "/__refresh_check__",
		Index:   "index.html",
		log:     log,
		fsys:    fsys,
		tracker: tracker,
		sse:     sse.New(log),
		static:  http.FileServer(http.FS(fsys)),
	}
}

type Server struct {
	Path  string // status endpoint polled by the refresh script
	Index string // default document for directory requests

	log     *slog.Logger
	fsys    fs.FS
	tracker *Tracker
	sse     *sse.Handler
	static  http.Handler
}

// Status is the body returned by the status endpoint
type Status struct {
	LastChange float64 `json:"lastChange"`
}

func seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// ServeHTTP routes the status endpoint, then HTML pages, then everything else
// to the static file server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	urlPath := r.URL.Path
	switch {
	case urlPath == s.Path:
		s.serveStatus(w, r)
	case urlPath == "" || strings.HasSuffix(urlPath, "/"):
		s.serveHTML(w, r, path.Join(urlPath, s.Index))
	case strings.HasSuffix(urlPath, ".html"):
		s.serveHTML(w, r, urlPath)
	default:
		s.static.ServeHTTP(w, r)
	}
}

func (s *Server) serveStatus(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Accept") == "text/event-stream" {
		s.sse.ServeHTTP(w, r)
		return
	}
	body, err := json.Marshal(Status{seconds(s.tracker.LastChange())})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) serveHTML(w http.ResponseWriter, r *http.Request, urlPath string) {
	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if !fs.ValidPath(name) {
		http.NotFound(w, r)
		return
	}
	data, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		s.log.Debug("autorefresh: unable to read html", "path", name, "error", err)
		http.Error(w, fmt.Sprintf("Error serving file: %s", err), http.StatusInternalServerError)
		return
	}
	body := Inject(data, s.Script())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	// Don't cache re-written responses
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// Middleware that rewrites HTML responses from next to include the refresh
// script. It also serves the status endpoint at the server's path.
func (s *Server) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == s.Path {
			s.serveStatus(w, req)
			return
		}
		// Wrap the response writer to capture the response body
		rw := httpbuf.Wrap(w)
		defer rw.Flush()
		next.ServeHTTP(rw, req)
		contentType := rw.Header().Get("Content-Type")
		if contentType == "" {
			contentType = http.DetectContentType(rw.Body)
		}
		if !strings.HasPrefix(contentType, "text/html") {
			return
		}
		body := Inject(rw.Body, s.Script())
		rw.Body = body
		rw.Header().Set("Content-Length", strconv.Itoa(len(body)))
		rw.Header().Set("Content-Type", "text/html; charset=utf-8")
		rw.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		rw.Header().Set("Last-Modified", "0")
	})
}

// Publish a change to the clients subscribed to the event stream
func (s *Server) Publish(ctx context.Context, change Change) error {
	data, err := json.Marshal(struct {
		Status
		Paths []string `json:"paths"`
	}{Status{seconds(change.Time)}, change.Paths})
	if err != nil {
		return err
	}
	return s.sse.Publish(ctx, &Event{
		Type: "change",
		Data: data,
	})
}

// Watch runs the tracker and publishes every change it sees
func (s *Server) Watch(ctx context.Context) error {
	return s.tracker.Run(ctx, func(change Change) {
		if err := s.Publish(ctx, change); err != nil {
			s.log.Error("autorefresh: failed to publish change", "error", err, "paths", change.Paths)
		}
	})
}

// Script returns the client-side refresh script injected into HTML pages
func (s *Server) Script() string {
	return ScriptFor(s.Path, s.tracker.interval())
}

// ScriptFor returns a refresh script that polls the status endpoint at url
// every interval. Pages served from another origin can embed it with an
// absolute url.
func ScriptFor(url string, interval time.Duration) string {
	if interval <= 0 {
		interval = defaultInterval
	}
	return fmt.Sprintf(refreshScript, url, interval.Milliseconds())
}

// Client-side script that polls the status endpoint and reloads the page once
// something changed after it was loaded
const refreshScript = `
<script>
(function() {
	let lastCheck = Date.now() / 1000;
	let checkInterval = setInterval(function() {
		fetch(%[1]q)
			.then(response => response.json())
			.then(data => {
				if (data.lastChange > lastCheck) {
					console.log("autorefresh: file changed, reloading...");
					clearInterval(checkInterval);
					window.location.reload();
				}
			})
			.catch(err => console.error("autorefresh: refresh check failed:", err));
	}, %[2]d);
})();
</script>
`

var closingBody = []byte("</body>")

// Inject script right before the last closing body tag, or at the end of the
// document if there isn't one. The data slice is left untouched.
func Inject(data []byte, script string) []byte {
	index := bytes.LastIndex(data, closingBody)
	if index < 0 {
		index = len(data)
	}
	out := make([]byte, 0, len(data)+len(script))
	out = append(out, data[:index]...)
	out = append(out, script...)
	return append(out, data[index:]...)
}
