package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"nextmeet/internal/config"
	"nextmeet/internal/ics"
	appLog "nextmeet/internal/log"
	"nextmeet/internal/meeting"
	"nextmeet/internal/metrics"
	"nextmeet/internal/refresh"
	"nextmeet/internal/schedule"
	"nextmeet/internal/web"
)

// outputLayout is the printed form of a resolved occurrence.
const outputLayout = "2006-01-02T15:04:05Z07:00"

type flagConfig struct {
	configPath string
	listen     string
	now        string
	debug      bool
	serve      bool
	group      string
}

func main() {
	os.Exit(run())
}

func run() int {
	flags, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		return 2
	}
	defer appLog.Sync()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		return 1
	}
	configureLogging(conf, flags.debug)

	appLog.Debug("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"cache_dir", conf.CacheDir,
		"meetings", len(conf.Meetings),
		"serve", flags.serve,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sink := metrics.NewPrometheusSink(reg)
	fetcher := ics.NewFetcher(conf.CacheDir, ics.WithObserver(sink))
	svc := meeting.NewService(conf, fetcher, sink)

	if flags.serve {
		return serve(ctx, conf, svc, reg)
	}
	return resolveOnce(ctx, conf, svc, flags)
}

func resolveOnce(ctx context.Context, conf *config.Config, svc *meeting.Service, flags flagConfig) int {
	ref := time.Now()
	if flags.now != "" {
		t, err := time.Parse(time.RFC3339, flags.now)
		if err != nil {
			appLog.Error("invalid -now", err, "value", flags.now)
			return 2
		}
		ref = t
	}

	res, err := svc.Next(ctx, flags.group, ref)
	switch {
	case err == nil:
		appLog.Debug("resolved occurrence",
			"group", res.Group,
			"uid", res.Occurrence.UID,
			"summary", res.Occurrence.Summary,
			"id", res.ID.String(),
		)
		fmt.Println(res.Occurrence.Start.In(conf.Location()).Format(outputLayout))
		return 0
	case schedule.IsNoMatch(err):
		// Routine for biweekly meetings in their off week.
		appLog.Info(err.Error(), "group", flags.group)
		return 0
	case errors.Is(err, meeting.ErrUnknownGroup):
		appLog.Error("unknown meeting group", err, "known", strings.Join(groupNames(conf), ","))
		return 1
	default:
		appLog.Error("failed to resolve next meeting", err, "group", flags.group)
		return 1
	}
}

func serve(ctx context.Context, conf *config.Config, svc *meeting.Service, reg *prometheus.Registry) int {
	refresher, err := refresh.New(conf.RefreshCron, conf.Location(), groupNames(conf), svc)
	if err != nil {
		appLog.Error("failed to create refresher", err)
		return 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		refresher.Run(ctx)
	}()

	srv := web.NewServer(conf, svc, reg)
	err = srv.Run(ctx)
	if err != nil {
		appLog.Error("HTTP server failed", err, "listen", conf.Listen)
	}
	cancel()
	wg.Wait()

	appLog.Info("nextmeet exiting")
	if err != nil {
		return 1
	}
	return 0
}

func configureLogging(conf *config.Config, debug bool) {
	if debug {
		appLog.SetLevel(appLog.LevelDebug)
		return
	}
	lvl, err := appLog.ParseLevel(conf.LogLevel)
	if err != nil {
		appLog.Warn("unknown log_level, using INFO", "log_level", conf.LogLevel)
		lvl = appLog.LevelInfo
	}
	appLog.SetLevel(lvl)
}

func groupNames(conf *config.Config) []string {
	names := make([]string, 0, len(conf.Meetings))
	for _, m := range conf.Meetings {
		names = append(names, m.Group)
	}
	return names
}

func parseFlags() (flagConfig, error) {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./nextmeet.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.now, "now", "", "Reference instant (RFC3339) instead of the current time")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&cfg.serve, "serve", false, "Serve the HTTP API and refresh on the configured schedule")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <group>\n       %s -serve [flags]\n", os.Args[0], os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()

	if cfg.serve {
		return cfg, nil
	}
	if flag.NArg() != 1 {
		return cfg, errors.New("exactly one meeting group is required")
	}
	cfg.group = flag.Arg(0)
	return cfg, nil
}
