package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"opscal/internal/api"
	"opscal/internal/capture"
	"opscal/internal/config"
	"opscal/internal/ics"
	appLog "opscal/internal/log"
	"opscal/internal/source"
	"opscal/internal/web"
)

type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	once       bool
	snapshot   bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if err := conf.ApplyEnv(flags.envFile); err != nil {
		appLog.Error("failed to load env file", err, "env_file", flags.envFile)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("opscal starting",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"api", conf.API.BaseURL != "",
		"ics_count", len(conf.ICS),
		"pixels_per_hour", conf.Grid.PixelsPerHour,
	)

	var client *api.Client
	if conf.API.BaseURL != "" {
		client = api.NewClient(conf.API.BaseURL, conf.API.Token, conf.API.Timeout())
	} else {
		appLog.Warn("no api.base_url configured; drag commits are disabled")
	}
	opts := web.Options{Fetcher: newAggregator(conf, client)}
	if client != nil {
		opts.Updater = client
	}
	srv := web.NewServer(conf, opts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Refetch(ctx); err != nil {
		appLog.Error("initial fetch failed", err)
	}

	httpSrv := &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", conf.Listen)
	if err != nil {
		appLog.Error("failed to listen", err, "listen", conf.Listen)
		os.Exit(1)
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("http server listening", "addr", "http://"+conf.Listen)
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	snapshot := func() {
		err := capture.GridPNG(ctx, capture.Options{
			URL:        gridURL(conf),
			OutputPath: srv.PreviewPath(),
		})
		if err != nil {
			appLog.Error("grid snapshot failed", err)
		}
	}

	if flags.once {
		if flags.snapshot {
			snapshot()
		}
		shutdown(httpSrv, srv)
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(conf.RefreshCron, func() {
		if err := srv.Refetch(ctx); err != nil {
			appLog.Error("scheduled refetch failed", err)
			return
		}
		if flags.snapshot {
			snapshot()
		}
	}); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	c.Start()

	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case err := <-errCh:
		appLog.Error("http server failed", err)
	}
	<-c.Stop().Done()
	shutdown(httpSrv, srv)
}

func newAggregator(conf *config.Config, client *api.Client) *source.Aggregator {
	agg := &source.Aggregator{
		CalendarIDs: conf.CalendarIDs,
		Fetcher:     ics.NewFetcher(conf.API.Timeout()),
	}
	if client != nil {
		agg.API = client
	}
	for _, f := range conf.ICS {
		agg.Feeds = append(agg.Feeds, ics.Source{ID: f.ID, Name: f.Name, URL: f.URL, Color: f.Color})
	}
	return agg
}

// gridURL points the snapshot browser at the local listener, carrying
// basic auth credentials when they are configured.
func gridURL(conf *config.Config) string {
	host := conf.Listen
	if strings.HasPrefix(host, ":") || strings.HasPrefix(host, "0.0.0.0:") {
		host = "127.0.0.1" + host[strings.LastIndex(host, ":"):]
	}
	u := url.URL{Scheme: "http", Host: host, Path: "/grid"}
	if ba := conf.BasicAuth; ba != nil && ba.Username != "" {
		u.User = url.UserPassword(ba.Username, ba.Password)
	}
	return u.String()
}

func shutdown(httpSrv *http.Server, srv *web.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		appLog.Error("http shutdown failed", err)
	}
	srv.Wait()
	appLog.Info("opscal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/opscal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env", ".env", "Optional dotenv file with OPSCAL_* overrides")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Fetch the current window once and exit")
	flag.BoolVar(&cfg.snapshot, "snapshot", false, "Write a PNG of /grid to the cache dir after each fetch")

	flag.Parse()

	return cfg
}
