package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/aaquib90/livequest"
	"github.com/aaquib90/livequest/embed"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "seed":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: livequest seed <liveblog-id> <updates.json>")
			os.Exit(1)
		}
		if err := runSeed(os.Args[2], os.Args[3]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "render":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: livequest render <page.html> [api-base-url]")
			os.Exit(1)
		}
		if err := runRender(os.Args[2], apiArg()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "watch":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: livequest watch <page.html> [api-base-url]")
			os.Exit(1)
		}
		if err := runWatch(os.Args[2], apiArg()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("livequest %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServe() error {
	cfg, err := livequest.LoadConfig(livequest.EnvOr("LIVEQUEST_CONFIG", ""))
	if err != nil {
		return err
	}
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	app := livequest.New(cfg, log)
	defer app.Close()
	return app.Start()
}

// runSeed loads updates from a JSON file into one liveblog. The file holds
// an array of rows in the snapshot wire shape.
func runSeed(liveblogID, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var rows []livequest.StoredUpdate
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	cfg, err := livequest.LoadConfig(livequest.EnvOr("LIVEQUEST_CONFIG", ""))
	if err != nil {
		return err
	}
	store, err := livequest.NewStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, row := range rows {
		row.LiveblogID = liveblogID
		if row.PublishedAt == nil {
			row.PublishedAt = livequest.PublishedNow()
		}
		if _, err := store.SaveUpdate(row); err != nil {
			return fmt.Errorf("save %s: %w", row.ID, err)
		}
	}
	fmt.Printf("seeded %d updates into %s\n", len(rows), liveblogID)
	return nil
}

// apiArg returns the optional trailing api-base-url argument.
func apiArg() string {
	if len(os.Args) > 3 {
		return os.Args[3]
	}
	return "http://localhost:8080"
}

// runWatch keeps the page's widgets attached and reprints their markup on
// every feed mutation until interrupted.
func runWatch(pagePath, apiBase string) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		<-stop
		close(done)
	}()
	return watchPage(pagePath, apiBase, os.Stdout, done)
}

// watchPage attaches to every mount in the host page, streams rendered
// markup to out as the feeds change, and blocks until done closes.
func watchPage(pagePath, apiBase string, out io.Writer, done <-chan struct{}) error {
	f, err := os.Open(pagePath)
	if err != nil {
		return err
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	embeds, err := embed.Attach(ctx, f, embed.Options{
		APIBaseURL: apiBase,
		Logger:     &log,
		OnRender: func(liveblogID, html string) {
			mu.Lock()
			fmt.Fprintf(out, "<!-- liveblog %s @ %s -->\n%s\n", liveblogID, time.Now().Format("15:04:05"), html)
			mu.Unlock()
		},
	})
	f.Close()
	if err != nil {
		return err
	}
	if len(embeds) == 0 {
		fmt.Fprintln(out, "no liveblog mounts found")
		return nil
	}

	<-done
	for _, e := range embeds {
		e.Close()
	}
	return nil
}

// runRender scans a host page for liveblog mounts, attaches a widget to
// each, and prints the rendered markup once the feeds settle.
func runRender(pagePath, apiBase string) error {
	f, err := os.Open(pagePath)
	if err != nil {
		return err
	}
	defer f.Close()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	embeds, err := embed.Attach(ctx, f, embed.Options{
		APIBaseURL: apiBase,
		Logger:     &log,
	})
	if err != nil {
		return err
	}
	if len(embeds) == 0 {
		fmt.Println("no liveblog mounts found")
		return nil
	}

	// Give native mounts a moment to pull their first snapshot.
	time.Sleep(2 * time.Second)
	for _, e := range embeds {
		cfg := e.Config()
		fmt.Printf("<!-- liveblog %s (%s) -->\n", cfg.LiveblogID, cfg.Mode)
		fmt.Println(e.HTML())
		e.Close()
	}
	return nil
}

func printUsage() {
	fmt.Println(`livequest - embeddable liveblog widget and serving backend

Usage:
  livequest <command> [arguments]

Commands:
  serve                       Run the backend server
  seed <id> <updates.json>    Load updates into a liveblog
  render <page.html> [api]    Render the widgets a host page would mount
  watch <page.html> [api]     Like render, but keep following feed changes
  version                     Print the livequest version
  help                        Show this help message

Examples:
  livequest serve
  livequest seed matchday-42 fixtures/updates.json
  livequest render testdata/host.html http://localhost:8080
  livequest watch testdata/host.html http://localhost:8080`)
}
