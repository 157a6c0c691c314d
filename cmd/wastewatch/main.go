package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"mime"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/wastewatch/console/internal/config"
	"github.com/wastewatch/console/internal/controller"
	"github.com/wastewatch/console/internal/engine"
	"github.com/wastewatch/console/internal/enginemock"
	"github.com/wastewatch/console/internal/export"
	"github.com/wastewatch/console/internal/ledger"
	"github.com/wastewatch/console/internal/wire"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	videoPath := flag.String("video", "", "Video file to submit for analysis")
	engineURL := flag.String("engine", "", "Override engine base URL")
	mockMode := flag.Bool("mock", false, "Run against a built-in mock engine")
	exportIDs := flag.String("export", "", "Event ids to export as CSV (comma-separated, or \"all\")")
	reports := flag.Bool("reports", false, "Also save a per-event incident report for exported events")
	outDir := flag.String("out", "", "Override export output directory")
	timeout := flag.Duration("timeout", 10*time.Minute, "Give up if the session is not terminal by then")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *engineURL != "" {
		cfg.Engine.BaseURL = *engineURL
	}
	if *outDir != "" {
		cfg.Export.OutputDir = *outDir
	}

	if *videoPath == "" {
		fmt.Fprintln(os.Stderr, "wastewatch: -video is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *mockMode {
		addr, stop, err := startMockEngine()
		if err != nil {
			log.Fatalf("Failed to start mock engine: %v", err)
		}
		defer stop()
		cfg.Engine.BaseURL = "http://" + addr
		log.Printf("Mock engine listening on %s", cfg.Engine.BaseURL)
	}

	client := engine.New(cfg.Engine.BaseURL, cfg.Engine.Timeout)
	lg := ledger.New()
	listener := newCLIListener(os.Stdout)
	ctl := controller.New(client, lg, cfg.Progress, listener)
	defer ctl.Shutdown()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Interrupted, shutting down")
		cancel()
		ctl.Shutdown()
		os.Exit(1)
	}()

	if err := runSession(ctx, ctl, cfg, *videoPath, *timeout, listener); err != nil {
		log.Fatalf("Session failed: %v", err)
	}

	events := lg.All()
	if len(events) > 0 {
		fmt.Println(renderEventTable(events))
	} else {
		fmt.Println("No detections reported.")
	}

	if *exportIDs != "" {
		if err := runExport(ctx, client, lg, cfg, *exportIDs, *reports); err != nil {
			log.Fatalf("Export failed: %v", err)
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	// The default config path is optional; anything explicit must exist.
	if os.IsNotExist(err) && path == "config.yaml" {
		return config.Default(), nil
	}
	return nil, err
}

func runSession(ctx context.Context, ctl *controller.Controller, cfg *config.Config, videoPath string, timeout time.Duration, listener *cliListener) error {
	f, err := os.Open(videoPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if cfg.Upload.MaxBytes > 0 && info.Size() > cfg.Upload.MaxBytes {
		return fmt.Errorf("%s is %d bytes, limit is %d", videoPath, info.Size(), cfg.Upload.MaxBytes)
	}

	in := controller.Input{
		Name:        filepath.Base(videoPath),
		ContentType: mime.TypeByExtension(filepath.Ext(videoPath)),
		Data:        f,
	}
	if err := ctl.Start(ctx, in); err != nil {
		return err
	}

	select {
	case <-listener.done:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return fmt.Errorf("no result after %s", timeout)
	}

	snap := ctl.Snapshot()
	if snap.Status == controller.Failed {
		return snap.Failure
	}
	if snap.Summary != nil {
		log.Printf("Processing complete: %d event(s) detected", snap.Summary.EventsDetected)
	}
	return nil
}

func runExport(ctx context.Context, client *engine.Client, lg *ledger.Ledger, cfg *config.Config, sel string, reports bool) error {
	if err := selectEvents(lg, sel); err != nil {
		return err
	}
	ids := lg.SelectedIDs()

	saver, err := export.NewDirSaver(cfg.Export.OutputDir)
	if err != nil {
		return err
	}
	exp := export.New(client, saver)

	path, err := exp.SaveEvents(ctx, ids)
	if err != nil {
		return err
	}
	log.Printf("Saved %s (events %s)", path, formatIDs(ids))

	if reports {
		paths, err := exp.SaveReports(ctx, ids)
		for _, p := range paths {
			log.Printf("Saved %s", p)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func selectEvents(lg *ledger.Ledger, sel string) error {
	if strings.EqualFold(sel, "all") {
		lg.SelectAll(true)
		return nil
	}
	for _, part := range strings.Split(sel, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return fmt.Errorf("bad event id %q", part)
		}
		lg.SetSelected(id, true)
	}
	if len(lg.SelectedIDs()) == 0 {
		return fmt.Errorf("no known events matched %q", sel)
	}
	return nil
}

func startMockEngine() (addr string, stop func(), err error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}
	srv := &http.Server{Handler: enginemock.New(enginemock.DefaultScript()).Handler()}
	go srv.Serve(ln)
	return ln.Addr().String(), func() { srv.Close() }, nil
}

// cliListener renders session activity to the terminal. Callbacks arrive from
// the controller goroutine; the mutex keeps lines from interleaving.
type cliListener struct {
	mu       sync.Mutex
	out      *os.File
	terminal bool
	color    bool
	done     chan struct{}
	once     sync.Once
}

func newCLIListener(out *os.File) *cliListener {
	return &cliListener{
		out:      out,
		terminal: shouldColorize(out),
		color:    shouldColorize(out),
		done:     make(chan struct{}),
	}
}

func (l *cliListener) StatusChanged(s controller.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.terminal {
		fmt.Fprint(l.out, "\r\x1b[2K")
	}
	switch s {
	case controller.Completed:
		fmt.Fprintln(l.out, colorize("Analysis complete", ansiGreen, l.color))
	case controller.Failed:
		fmt.Fprintln(l.out, colorize("Analysis failed", ansiRed, l.color))
	default:
		fmt.Fprintf(l.out, "%s\n", s)
	}
}

func (l *cliListener) Progress(pct int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	renderProgressLine(l.out, "Uploading", pct, l.terminal)
}

func (l *cliListener) Frame(f controller.FrameSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.terminal {
		fmt.Fprintf(l.out, "\r\x1b[2KAnalyzing frame %d", f.FrameCount)
	}
}

func (l *cliListener) EventsAppended(count int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.terminal {
		fmt.Fprint(l.out, "\r\x1b[2K")
	}
	fmt.Fprintln(l.out, colorize(fmt.Sprintf("%d new detection(s)", count), ansiYellow, l.color))
}

func (l *cliListener) Completed(summary wire.CompletePayload) {
	l.once.Do(func() { close(l.done) })
}

func (l *cliListener) Failed(err *controller.SessionError) {
	l.once.Do(func() { close(l.done) })
}
