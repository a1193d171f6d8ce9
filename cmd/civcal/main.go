package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civcal/internal/api"
	"civcal/internal/calendar"
	"civcal/internal/config"
	"civcal/internal/export"
	appLog "civcal/internal/log"
	"civcal/internal/model"
	"civcal/internal/notify"
	"civcal/internal/storage"
	"civcal/internal/ui"
	"civcal/internal/web"
)

const (
	version = "0.1.0"

	// Delivered reminders older than this are dropped from the ledger.
	ledgerRetention = 7 * 24 * time.Hour
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath  string
	listen      string
	once        bool
	exportICS   string
	exportPDF   string
	importICS   string
	download    string
	downloadOut string
	login       string
	logout      bool
}

// oneShot reports whether the flags ask for a single pass instead of the
// long-running agent.
func (f flagConfig) oneShot() bool {
	return f.once || f.exportICS != "" || f.exportPDF != "" || f.importICS != "" || f.download != ""
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	defer appLog.Sync()

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("civcal starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"api_base_url", conf.APIBaseURL,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"range_days", conf.RangeDays,
		"notifications", conf.Notifications,
		"db_path", conf.DBPath,
		"token_file", conf.TokenFile,
		"once", flags.once,
	)

	if err := run(conf, flags); err != nil {
		appLog.Error("civcal failed", err)
		appLog.Sync()
		os.Exit(1)
	}
	appLog.Info("civcal exiting")
}

func run(conf *config.Config, flags flagConfig) error {
	store, err := storage.Open(conf.DBPath)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer store.Close()
	store.UseTokenFile(conf.TokenFile)

	switch {
	case flags.login != "":
		if err := store.SetToken(flags.login); err != nil {
			return err
		}
		appLog.Info("credential saved")
		return nil
	case flags.logout:
		if err := store.ClearToken(); err != nil {
			return err
		}
		appLog.Info("credential cleared")
		return nil
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	var creds api.Credentials = store
	if conf.Token != "" {
		creds = api.StaticToken(conf.Token)
	}

	board := ui.NewBoard(0)
	client := api.NewClient(conf.APIBaseURL, creds,
		api.WithToaster(board),
		api.WithLoadingIndicator(&ui.Indicator{}),
		api.WithLocation(conf.Location()),
	)
	client.OnUnauthenticated = func() {
		appLog.Info("sign-in required; run civcal -login <token> or update the token file")
	}
	downloader := export.NewDownloader(creds,
		export.WithCacheEntries(conf.PDFCacheEntries),
		export.WithWorker(),
	)
	defer downloader.Close()

	if flags.oneShot() {
		return runOnce(ctx, conf, flags, client, board, downloader)
	}
	return runAgent(ctx, conf, store, client, board, downloader)
}

// runAgent loads the configured range and keeps it fresh until ctx is
// cancelled: periodic refresh, reminders, credential watch and the web
// server.
func runAgent(ctx context.Context, conf *config.Config, store *storage.Store, client *api.Client, board *ui.Board, downloader *export.Downloader) error {
	loc := conf.Location()

	if n, err := store.PruneDeliveries(time.Now().Add(-ledgerRetention)); err != nil {
		appLog.Error("failed to prune reminder ledger", err)
	} else if n > 0 {
		appLog.Debug("pruned reminder ledger", "rows", n)
	}

	gate := notify.NewGate(notify.DesktopPermission(conf.Notifications))
	gate.Allowed()
	scheduler := notify.NewScheduler(notify.NewDesktop("civcal", ""),
		notify.WithLedger(store),
		notify.WithGate(gate),
	)
	defer scheduler.Stop()

	cal := calendar.New(client,
		calendar.WithToaster(board),
		calendar.WithScheduler(scheduler),
		calendar.WithSearchDebounce(conf.SearchDebounce()),
	)
	defer cal.Close()

	start, end := calendar.DaysRange(time.Now().In(loc), conf.RangeDays)
	cal.SetRange(ctx, start, end)

	if err := cal.StartAutoRefresh(conf.RefreshCron, loc); err != nil {
		return err
	}

	// A new token written by the login flow reloads the range. An
	// environment token takes precedence, so the file is not watched then.
	if tf := store.TokenFile(); tf != "" && conf.Token == "" {
		w, err := storage.WatchFile(tf, func(string) {
			appLog.Info("credential file changed; reloading calendar")
			rctx, rcancel := context.WithTimeout(ctx, 30*time.Second)
			defer rcancel()
			cal.Refetch(rctx)
		})
		if err != nil {
			appLog.Error("failed to watch credential file", err, "path", tf)
		} else {
			defer w.Close()
		}
	}

	srv := web.NewServer(conf, cal,
		web.WithToasts(board),
		web.WithReminders(scheduler),
		web.WithDocuments(downloader),
	)
	return srv.Run(ctx)
}

// runOnce performs the requested one-shot actions in order: import,
// download, then load the range for the exports and the text agenda.
func runOnce(ctx context.Context, conf *config.Config, flags flagConfig, client *api.Client, board *ui.Board, downloader *export.Downloader) error {
	loc := conf.Location()

	if flags.importICS != "" {
		if err := importICS(ctx, client, flags.importICS, loc); err != nil {
			return err
		}
	}

	if flags.download != "" {
		if err := downloader.Download(ctx, flags.download, flags.downloadOut); err != nil {
			return err
		}
	}
	if !flags.once && flags.exportICS == "" && flags.exportPDF == "" {
		return nil
	}

	cal := calendar.New(client, calendar.WithToaster(board))
	defer cal.Close()

	failures := board.Count(ui.LevelError)
	start, end := calendar.DaysRange(time.Now().In(loc), conf.RangeDays)
	cal.SetRange(ctx, start, end)
	if board.Count(ui.LevelError) > failures {
		return errors.New("failed to load the calendar range")
	}

	var visible []calendar.Visible
	for _, v := range cal.Events() {
		if !v.Hidden {
			visible = append(visible, v)
		}
	}

	if flags.exportICS != "" {
		if err := writeICSFile(flags.exportICS, visible); err != nil {
			return err
		}
	}
	if flags.exportPDF != "" {
		srv := web.NewServer(conf, cal)
		if err := printPDF(ctx, srv, flags.exportPDF); err != nil {
			return err
		}
	}
	if flags.once {
		printAgenda(os.Stdout, visible, loc)
	}
	return nil
}

func importICS(ctx context.Context, client *api.Client, path string, loc *time.Location) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	payloads, err := export.ReadICS(f, loc)
	if err != nil {
		return err
	}

	var errs []error
	for _, p := range payloads {
		if _, err := client.Create(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Title, err))
		}
	}
	appLog.Info("calendar import finished", "path", path, "events", len(payloads), "failed", len(errs))
	return errors.Join(errs...)
}

func writeICSFile(path string, visible []calendar.Visible) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	events := make([]model.DisplayEvent, 0, len(visible))
	for _, v := range visible {
		events = append(events, v.DisplayEvent)
	}
	if err := export.WriteICS(f, "État civil", events); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	appLog.Info("calendar exported", "path", path, "events", len(events))
	return nil
}

// printPDF serves the agenda page on a loopback port just long enough
// for headless Chromium to print it.
func printPDF(ctx context.Context, srv *web.Server, dest string) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	hs := &http.Server{Handler: srv.PrintHandler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("print server failed", err)
		}
	}()
	defer hs.Close()

	return export.RenderPDF(ctx, export.PDFOptions{
		URL:        "http://" + ln.Addr().String() + "/calendar",
		OutputPath: dest,
	})
}

func printAgenda(w io.Writer, visible []calendar.Visible, loc *time.Location) {
	if len(visible) == 0 {
		fmt.Fprintln(w, "Aucun événement sur la période.")
		return
	}
	for _, v := range visible {
		fmt.Fprintf(w, "%s  %-18s  %-10s  %s\n",
			v.Start.In(loc).Format("2006-01-02"), v.TimeLabel, v.Badge, v.Title)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/civcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Load the configured range, print it and exit")
	flag.StringVar(&cfg.exportICS, "export-ics", "", "Write the loaded range as an iCalendar file and exit")
	flag.StringVar(&cfg.exportPDF, "export-pdf", "", "Print the loaded range to a PDF file and exit")
	flag.StringVar(&cfg.importICS, "import-ics", "", "Create the events of an iCalendar file on the backend")
	flag.StringVar(&cfg.download, "download", "", "Download a backend PDF document by URL and exit")
	flag.StringVar(&cfg.downloadOut, "download-out", "document.pdf", "Destination of -download")
	flag.StringVar(&cfg.login, "login", "", "Store a bearer token in the local store and exit")
	flag.BoolVar(&cfg.logout, "logout", false, "Remove the stored bearer token and exit")

	flag.Parse()

	return cfg
}
