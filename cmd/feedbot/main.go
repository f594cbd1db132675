// Command feedbot runs the feed-aggregator bot: a scheduler that polls
// subscribed feeds and posts new items into Matrix rooms, plus the chat
// command facade that manages subscriptions.
//
// Grounded on goneb.go's setup()/envVars/main shape: env-driven wiring, an
// "X (%+v)" startup log line, and http.ListenAndServe serving a small
// non-admin HTTP surface alongside the main process.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	_ "github.com/mattn/go-sqlite3"
	"github.com/matrix-org/util"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"

	"github.com/matrix-org/feedbot/internal/command"
	"github.com/matrix-org/feedbot/internal/config"
	"github.com/matrix-org/feedbot/internal/discover"
	"github.com/matrix-org/feedbot/internal/fetch"
	"github.com/matrix-org/feedbot/internal/publish"
	"github.com/matrix-org/feedbot/internal/scheduler"
	"github.com/matrix-org/feedbot/internal/store"
	"github.com/matrix-org/feedbot/internal/worker"
)

// heartbeat implements util.JSONRequestHandler, mirroring
// api/handlers/heartbeat.go's liveness probe.
type heartbeat struct{}

func (heartbeat) OnIncomingRequest(req *http.Request) util.JSONResponse {
	return util.JSONResponse{Code: http.StatusOK, JSON: struct{}{}}
}

// discovererAdapter adapts the discover package's free function plus an
// *http.Client into the command.Discoverer interface.
type discovererAdapter struct {
	client *http.Client
}

func (d discovererAdapter) Discover(ctx context.Context, pageURL string) (string, error) {
	return discover.Discover(ctx, pageURL, d.client, discoverTimeout)
}

const discoverTimeout = 10 * time.Second

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.WithError(err).Fatal("feedbot: failed to load configuration")
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.WithFields(cfg.LogFields()).Info("feedbot: starting")

	st, err := store.Open(cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("feedbot: failed to open database")
	}
	defer st.Close()

	matrixClient, err := mautrix.NewClient(cfg.MatrixHomeserverURL, id.UserID(cfg.MatrixUserID), cfg.MatrixAccessToken)
	if err != nil {
		log.WithError(err).Fatal("feedbot: failed to construct matrix client")
	}
	sink := publish.NewMatrixSink(matrixClient)

	fetcher := fetch.New(cfg.UserAgent)
	httpClient := discover.NewClient(cfg.UserAgent)

	limits := worker.Limits{
		DefaultPollInterval: cfg.DefaultPollInterval,
		MinPollInterval:     cfg.MinPollInterval,
		MaxPollInterval:     cfg.MaxPollInterval,
		MaxItemsPerPoll:     cfg.MaxItemsPerPoll,
	}

	facade := &command.Facade{
		Store:             st,
		Discoverer:        discovererAdapter{client: httpClient},
		Fetcher:           fetcher,
		Sink:              sink,
		Limits:            limits,
		InitialItemsCount: cfg.InitialItemsCount,
	}
	commands := command.Commands(facade)

	sched := scheduler.New(st, fetcher, sink, limits)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.WithField("signal", sig).Info("feedbot: received shutdown signal")
		cancel()
	}()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/healthz", util.MakeJSONAPI(heartbeat{}))
		log.WithField("addr", cfg.MetricsAddr).Info("feedbot: serving /healthz and /metrics")
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("feedbot: metrics server stopped")
		}
	}()

	startSync(matrixClient, commands)

	sched.Run(ctx)
	log.Info("feedbot: exited")
}
