// Command balancercore-demo wires every collaborator of the upstream
// load-balancing core together against in-memory fakes, seeds one upstream
// with two weighted targets, and serves a tiny net/http front door that
// calls Core.Execute per request. It is not a gateway: protocol parsing,
// TLS, and request forwarding itself are explicitly out of this core's
// scope.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apexgate/upstreamcore/internal/balancer"
	"github.com/apexgate/upstreamcore/internal/cache"
	"github.com/apexgate/upstreamcore/internal/config"
	"github.com/apexgate/upstreamcore/internal/dnsclient"
	"github.com/apexgate/upstreamcore/internal/eventbus"
	"github.com/apexgate/upstreamcore/internal/log"
	"github.com/apexgate/upstreamcore/internal/metrics"
	"github.com/apexgate/upstreamcore/internal/store/memstore"
	"github.com/apexgate/upstreamcore/internal/tracing"
	"github.com/apexgate/upstreamcore/internal/types"
)

func main() {
	configFile := flag.String("config", "", "path to a YAML config file (optional)")
	addr := flag.String("addr", ":8088", "demo HTTP listen address")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, err := log.NewZap(log.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}

	tracerProvider, err := tracing.NewTracerProvider(&cfg.Tracing)
	if err != nil {
		logger.Error("tracing init failed", log.Err(err))
		os.Exit(1)
	}
	defer func() { _ = tracerProvider.Shutdown(context.Background()) }()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer, cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	}

	dao := memstore.New()
	seedUpstream(dao)

	c := balancer.New(
		dao,
		cache.New(nil),
		eventbus.NewLocal(),
		dnsclient.New(cfg.DNS.CacheTTL, cfg.DNS.Timeout),
		logger,
		m,
		cfg,
	)
	c.Tracer = tracerProvider

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Init(ctx); err != nil {
		logger.Error("init failed", log.Err(err))
		os.Exit(1)
	}
	logger.Info("balancer core initialised")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/resolve", resolveHandler(c, logger))

	server := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		logger.Info("demo server listening", log.String("addr", *addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", log.Err(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}

// seedUpstream loads one upstream ("demo-svc", hash_on none) with two
// weighted targets directly into the memory store, the way a real
// deployment's config store would already hold them before this core starts.
func seedUpstream(dao *memstore.Store) {
	upstream := dao.PutUpstream(&types.Upstream{
		Name:      "demo-svc",
		Slots:     256,
		HashOn:    types.HashNone,
		CreatedAt: time.Now().Unix(),
	})

	_, _ = dao.AppendTarget(&types.Target{
		UpstreamID: upstream.ID,
		CreatedAt:  time.Now().Unix(),
		Raw:        "127.0.0.1:9001",
		Weight:     10,
	})
	_, _ = dao.AppendTarget(&types.Target{
		UpstreamID: upstream.ID,
		CreatedAt:  time.Now().Unix(),
		Raw:        "127.0.0.1:9002",
		Weight:     20,
	})
}

// resolveHandler exercises Execute end-to-end: ?host= selects the upstream
// (or a plain-DNS target). Every request is resolved as a first attempt
// (TryCount 0); the handler has no way to simulate a retry.
func resolveHandler(c *balancer.Core, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host := r.URL.Query().Get("host")
		if host == "" {
			http.Error(w, "missing host query param", http.StatusBadRequest)
			return
		}

		rec := &types.TargetRecord{
			Host:       host,
			Type:       types.TargetTypeName,
			RemoteAddr: r.RemoteAddr,
			Headers:    r.Header,
		}

		err := c.Execute(r.Context(), rec)
		balancer.LogExecuteOutcome(logger, rec, err)
		if err != nil {
			if execErr, ok := err.(*balancer.ExecError); ok {
				http.Error(w, execErr.Message, execErr.Status)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"ip":       rec.IP,
			"port":     rec.OutPort,
			"hostname": rec.Hostname,
		})
	}
}
