package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/matthewmueller/autorefresh"
	"github.com/matthewmueller/socket"
	"golang.org/x/sync/errgroup"
)

func main() {
	cmd := new(command)
	flags := flag.NewFlagSet("autorefresh", flag.ExitOnError)
	cmd.Flags(flags)
	flags.Parse(os.Args[1:])
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type command struct {
	addr     string
	dir      string
	path     string
	exts     string
	interval time.Duration
	notify   bool
	debug    bool

	// used in tests
	stdout    io.Writer
	listening func(url string)
}

func (c *command) Flags(fs *flag.FlagSet) {
	fs.StringVar(&c.addr, "addr", "0.0.0.0:8747", "Listen on `host:port`.")
	fs.StringVar(&c.dir, "dir", ".", "Serve and watch the files in `dir`.")
	fs.StringVar(&c.path, "path", "/__refresh_check__", "Status endpoint `path` polled by pages.")
	fs.StringVar(&c.exts, "ext", ".html,.css,.js", "Comma-separated file `extensions` to watch.")
	fs.DurationVar(&c.interval, "interval", 500*time.Millisecond, "How often to check for changes.")
	fs.BoolVar(&c.notify, "notify", false, "Also check for changes as soon as the OS reports filesystem events.")
	fs.BoolVar(&c.debug, "debug", false, "Log debug messages.")
}

func (c *command) Run(ctx context.Context) error {
	if c.interval <= 0 {
		return fmt.Errorf("autorefresh: interval must be positive, got %s", c.interval)
	}
	stdout := c.stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	level := slog.LevelInfo
	if c.debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{Level: level}))
	fsys := os.DirFS(c.dir)

	tracker := autorefresh.NewTracker(log, fsys)
	tracker.Extensions = splitExtensions(c.exts)
	tracker.Interval = c.interval
	// Record the starting point before serving anything
	if _, err := tracker.Scan(ctx); err != nil {
		return err
	}

	server := autorefresh.New(log, fsys, tracker)
	server.Path = c.path

	listener, err := socket.Listen(c.addr)
	if err != nil {
		return fmt.Errorf("autorefresh: unable to listen on %q: %w", c.addr, err)
	}
	url := serverURL(listener.Addr().String())
	fmt.Fprintf(stdout, "Server running at %s\n", url)
	fmt.Fprintf(stdout, "Watching for changes in %s files...\n", strings.Join(tracker.Extensions, ", "))
	fmt.Fprintln(stdout, "Press Ctrl+C to stop the server")
	if c.listening != nil {
		c.listening(url)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return server.Watch(ctx)
	})
	if c.notify {
		eg.Go(func() error {
			return tracker.Notify(ctx, c.dir)
		})
	}
	eg.Go(func() error {
		return socket.Serve(ctx, listener, server)
	})
	err = eg.Wait()
	fmt.Fprintln(stdout, "\nShutting down server...")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func splitExtensions(s string) (exts []string) {
	for _, ext := range strings.Split(s, ",") {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	return exts
}

func serverURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}
