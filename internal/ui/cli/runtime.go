package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"pyscope/internal/core/app"
	"pyscope/internal/core/config"
	"pyscope/internal/core/ports"
	"pyscope/internal/data/history"
	"pyscope/internal/shared/observability"
	"pyscope/internal/shared/util"
	"pyscope/internal/ui/report"
)

// Run is the batch/watch entry point. Exit codes: 0 clean, 1 error-severity
// diagnostics or a runtime failure, 2 bad usage.
func Run(args []string) int {
	opts, err := parseOptions(args)
	if err != nil {
		return 2
	}

	if opts.version {
		fmt.Printf("pyscope v%s\n", versionString)
		return 0
	}
	if err := validateOptions(opts); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to detect working directory:", err)
		return 1
	}

	cfg, base, err := loadConfig(opts.configPath, cwd)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return 1
	}
	config.ApplyEnvOverrides(cfg)

	if len(opts.args) > 0 {
		cfg.Search.Roots = append([]string(nil), opts.args...)
	}

	cleanupLogs := configureLogging(cfg, opts.ui, opts.verbose)
	defer cleanupLogs()

	paths, err := config.ResolvePaths(cfg, base)
	if err != nil {
		slog.Error("failed to resolve runtime paths", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Observability.TracingEnabled() {
		shutdown, err := observability.InitTracing(ctx, cfg.Observability.OTLPEndpoint)
		if err != nil {
			slog.Error("failed to initialize tracing", "error", err)
			return 1
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	var store ports.HistoryStore
	if cfg.History.Enabled() {
		s, err := history.Open(paths.HistoryPath, cfg.History.BusyTimeout, cfg.History.Keep)
		if err != nil {
			slog.Error("failed to open history store", "error", err, "path", paths.HistoryPath)
			return 1
		}
		defer s.Close()
		store = s
	}

	if opts.trends {
		return runTrends(ctx, opts, store)
	}

	analyzer, err := app.New(cfg, paths)
	if err != nil {
		slog.Error("failed to initialize analyzer", "error", err)
		return 1
	}

	var obsServer *ObservabilityServer
	if cfg.Observability.MetricsEnabled() {
		obsServer = NewObservabilityServer(cfg.Observability.MetricsAddr, healthFunc(analyzer, store))
		if err := obsServer.Start(ctx); err != nil {
			slog.Error("failed to start observability server", "error", err)
			return 1
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = obsServer.Stop(stopCtx)
		}()
	}

	svc := app.NewService(analyzer, store)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := svc.Close(closeCtx); err != nil {
			slog.Warn("service shutdown incomplete", "error", err)
		}
	}()

	// The diff baseline must be read before this run is recorded.
	var previous []ports.Diagnostic
	var havePrevious bool
	if opts.diff && store != nil {
		_, prevDiags, ok, err := store.LastRun(ctx)
		if err != nil {
			slog.Error("failed to read previous run", "error", err)
			return 1
		}
		previous, havePrevious = prevDiags, ok
	}

	update, err := svc.RunOnce(ctx)
	if err != nil {
		slog.Error("analysis failed", "error", err)
		return 1
	}

	if opts.sarifPath != "" {
		raw, err := report.RenderSARIF(paths.ProjectRoot, update.Diagnostics)
		if err != nil {
			slog.Error("failed to render SARIF", "error", err)
			return 1
		}
		if err := util.WriteFileWithDirs(opts.sarifPath, raw, 0o644); err != nil {
			slog.Error("failed to write SARIF", "error", err, "path", opts.sarifPath)
			return 1
		}
	}

	if !opts.ui {
		if err := report.RenderText(os.Stdout, paths.ProjectRoot, update.Diagnostics, update.Files, update.Duration); err != nil {
			slog.Error("failed to render report", "error", err)
			return 1
		}
		if opts.diff {
			if !havePrevious {
				fmt.Println("No previous run to diff against.")
			} else if err := report.RenderDiff(os.Stdout, paths.ProjectRoot, ports.DiffDiagnostics(previous, update.Diagnostics)); err != nil {
				slog.Error("failed to render diff", "error", err)
				return 1
			}
		}
	}

	if !opts.watch {
		return exitCode(update.Diagnostics)
	}

	if err := svc.Watch(ctx); err != nil {
		slog.Error("failed to start watcher", "error", err)
		return 1
	}

	if opts.ui {
		if err := runUI(ctx, svc, trendReportIfAny(ctx, store)); err != nil {
			slog.Error("failed to run UI", "error", err)
			return 1
		}
		return 0
	}

	slog.Info("watching for changes", "roots", strings.Join(paths.SourceRoots, ", "))
	svc.SetUpdateHandler(func(u app.Update) {
		_ = report.RenderText(os.Stdout, paths.ProjectRoot, u.Diagnostics, u.Files, u.Duration)
	})
	<-ctx.Done()
	return 0
}

func validateOptions(opts cliOptions) error {
	if opts.trends && (opts.watch || opts.ui || opts.diff || opts.sarifPath != "") {
		return fmt.Errorf("-trends cannot be combined with -watch, -ui, -diff or -sarif")
	}
	if (opts.trendJSON != "" || opts.trendTSV != "") && !opts.trends {
		return fmt.Errorf("-trend-json/-trend-tsv require -trends")
	}
	if opts.trends {
		if _, err := parseWindow(opts.trendWindow); err != nil {
			return err
		}
	}
	if _, err := parseSince(opts.since); err != nil {
		return err
	}
	return nil
}

func runTrends(ctx context.Context, opts cliOptions, store ports.HistoryStore) int {
	if store == nil {
		fmt.Fprintln(os.Stderr, "-trends requires history.path to be configured")
		return 2
	}
	since, _ := parseSince(opts.since)
	window, _ := parseWindow(opts.trendWindow)

	runs, err := store.Runs(ctx, since, 0)
	if err != nil {
		slog.Error("failed to load run history", "error", err)
		return 1
	}
	if len(runs) == 0 {
		fmt.Println("History: no runs matched the requested time window.")
		return 0
	}

	trend, err := history.BuildTrendReport(runs, window)
	if err != nil {
		slog.Error("failed to build trend report", "error", err)
		return 1
	}

	fmt.Printf("History: %d runs from %s to %s\n",
		trend.RunCount,
		trend.Since.Format("2006-01-02 15:04:05"),
		trend.Until.Format("2006-01-02 15:04:05"),
	)
	latest := trend.Points[len(trend.Points)-1]
	fmt.Printf("Trend latest: files=%d (%+d), diagnostics=%d (%+d), avg=%.2f over %s\n",
		latest.Files, latest.DeltaFiles,
		latest.Diagnostics, latest.DeltaDiagnostics,
		latest.AvgDiagnostics, trend.Window,
	)

	if opts.trendJSON != "" {
		raw, err := report.RenderTrendJSON(trend)
		if err != nil {
			slog.Error("failed to render trend JSON", "error", err)
			return 1
		}
		if err := util.WriteFileWithDirs(opts.trendJSON, raw, 0o644); err != nil {
			slog.Error("failed to write trend JSON", "error", err, "path", opts.trendJSON)
			return 1
		}
	}
	if opts.trendTSV != "" {
		raw, err := report.RenderTrendTSV(trend)
		if err != nil {
			slog.Error("failed to render trend TSV", "error", err)
			return 1
		}
		if err := util.WriteFileWithDirs(opts.trendTSV, raw, 0o644); err != nil {
			slog.Error("failed to write trend TSV", "error", err, "path", opts.trendTSV)
			return 1
		}
	}
	return 0
}

// trendReportIfAny loads the trend overlay data for the TUI; watch mode
// works fine without history, so failures just disable the overlay.
func trendReportIfAny(ctx context.Context, store ports.HistoryStore) *history.TrendReport {
	if store == nil {
		return nil
	}
	runs, err := store.Runs(ctx, time.Time{}, 0)
	if err != nil || len(runs) == 0 {
		return nil
	}
	trend, err := history.BuildTrendReport(runs, 24*time.Hour)
	if err != nil {
		return nil
	}
	return &trend
}

// loadConfig returns the configuration plus the base directory all relative
// paths resolve against: the config file's directory, or cwd for defaults.
func loadConfig(path, cwd string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		return cfg, filepath.Dir(abs), nil
	}
	if found, ok := config.Find(cwd); ok {
		cfg, err := config.Load(found)
		if err != nil {
			return nil, "", err
		}
		return cfg, filepath.Dir(found), nil
	}
	return config.Default(), cwd, nil
}

func exitCode(diags []ports.Diagnostic) int {
	for _, d := range diags {
		if d.Severity == ports.SeverityError {
			return 1
		}
	}
	return 0
}

func parseSince(value string) (time.Time, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("-since must be RFC3339 or YYYY-MM-DD, got %q", value)
}

func parseWindow(value string) (time.Duration, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("-trend-window must be a positive Go duration (example: 24h), got %q", value)
	}
	return d, nil
}

func configureLogging(cfg *config.Config, uiMode, verbose bool) func() {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	output := os.Stderr
	closeFn := func() {}
	if uiMode {
		// In UI mode, stray log lines corrupt the alternate screen.
		logPath := resolveLogPath()
		if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err == nil {
			if f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600); err == nil {
				output = f
				closeFn = func() { _ = f.Close() }
			}
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Log.Format, "json") {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	slog.SetDefault(slog.New(handler))
	return closeFn
}

func resolveLogPath() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "pyscope", "pyscope.log")
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".local", "state", "pyscope", "pyscope.log")
	}
	return "pyscope.log"
}
