// Command pushrepl runs a single push replication session against a
// CouchDB-compatible remote, for local experimentation and manual testing of
// the replicator package (SPEC_FULL.md §2). It is not the product: the real
// deployment embeds pkg/replicator inside a host application's own local
// store and lifecycle, the way spec.md §1 describes.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/couchbase-lite-go/pushrepl/pkg/metrics"
	"github.com/couchbase-lite-go/pushrepl/pkg/replicator"
	"github.com/couchbase-lite-go/pushrepl/pkg/store"
	"github.com/couchbase-lite-go/pushrepl/pkg/transport"
)

// CLI is the kong command model for pushrepl.
type CLI struct {
	Remote       string        `help:"Remote CouchDB-compatible database URL (e.g. https://host/dbname)." required:""`
	LocalDBUUID  string        `help:"Identifier for the local database, used to derive the checkpoint session ID." required:""`
	CreateTarget bool          `help:"Create the remote database before replicating, if it does not already exist."`
	Continuous   bool          `help:"Keep replicating new local changes after the initial scan completes."`
	Filter       string        `help:"Name of a filter registered on the local store to restrict which revisions are pushed."`
	DocIDs       []string      `help:"Restrict replication to the given document IDs."`
	Username     string        `help:"HTTP Basic auth username, if the remote requires authentication."`
	Password     string        `help:"HTTP Basic auth password, if the remote requires authentication." env:"PUSHREPL_PASSWORD"`
	MaxRetries   int           `help:"Maximum transport-level retry attempts per request." default:"5"`
	BatchCap     int           `help:"Inbox batch capacity override." default:"0"`
	FlushEvery   time.Duration `help:"Inbox batch flush interval override." default:"0s"`
	MetricsAddr  string        `help:"HTTP listen address for Prometheus metrics (empty disables it)." default:""`
	Debug        bool          `help:"Enable debug-level logging."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("pushrepl"),
		kong.Description("Push a local document store's changes to a remote CouchDB-compatible database."),
		kong.UsageOnError(),
	)

	logger := logrus.New()
	if cli.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	runID := uuid.NewString()
	logger.Infof("pushrepl: run_id=%s", runID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	// PrometheusSink hardcodes its own "pushrepl" subsystem, so the
	// namespace here stays empty to avoid a pushrepl_pushrepl_* stutter.
	sink := metrics.NewPrometheusSink(registry, "")

	if cli.MetricsAddr != "" {
		go serveMetrics(cli.MetricsAddr, registry, logger)
	}

	var authorizer transport.Authorizer = transport.NopAuthorizer{}
	if cli.Username != "" {
		authorizer = transport.BasicAuthorizer{Username: cli.Username, Password: cli.Password}
	}

	t, err := transport.NewRetryingHTTP(cli.Remote, authorizer, logger, cli.MaxRetries)
	kctx.FatalIfErrorf(err)

	// MemStore stands in for the host application's real local document
	// store; see its doc comment in pkg/store.
	localStore := store.NewMemStore()
	if cli.Filter != "" {
		logger.Warnf("pushrepl: no local filters are registered on the in-memory reference store; %q will resolve to an error at Start", cli.Filter)
	}

	cfg := replicator.Config{
		LocalDBUUID:        cli.LocalDBUUID,
		RemoteURL:          cli.Remote,
		CreateTarget:       cli.CreateTarget,
		Continuous:         cli.Continuous,
		FilterName:         cli.Filter,
		DocIDs:             cli.DocIDs,
		BatchCapacity:      cli.BatchCap,
		BatchFlushInterval: cli.FlushEvery,
	}

	pusher, err := replicator.NewPusher(cfg, localStore, t, logger, sink)
	kctx.FatalIfErrorf(err)

	if err := pusher.Start(ctx); err != nil {
		logger.Fatalf("pushrepl: start failed: %v", err)
	}
	logger.Infof("pushrepl: replicating %s -> %s (continuous=%v)", cli.LocalDBUUID, cli.Remote, cli.Continuous)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("pushrepl: shutdown signal received")
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := pusher.Stop(stopCtx); err != nil {
				logger.Warnf("pushrepl: stop: %v", err)
			}
			cancel()
			return
		case <-ticker.C:
			status := pusher.Status()
			logger.Infof("pushrepl: state=%s lastSeq=%d processed=%d/%d", status.State, status.LastSequence, status.ChangesProcessed, status.ChangesTotal)
			if !status.Running {
				if status.Err != nil {
					logger.Errorf("pushrepl: stopped with error: %v", status.Err)
					os.Exit(1)
				}
				logger.Info("pushrepl: replication finished")
				return
			}
		}
	}
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	logger.Infof("pushrepl: metrics listening on %s%s", strings.TrimPrefix(addr, ":"), "/metrics")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warnf("pushrepl: metrics server: %v", err)
	}
}
