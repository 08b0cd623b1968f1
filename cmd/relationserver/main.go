// Command relationserver starts the RelationService HTTP + GraphQL
// edge, wiring the config, graph store, upstream registry, dispatch
// engine and query layer together. CLI flag handling follows the
// teacher's own geth-style urfave/cli/v2 entrypoint shape.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/nextdotid/relation-server-go/internal/config"
	"github.com/nextdotid/relation-server-go/internal/dispatch"
	"github.com/nextdotid/relation-server-go/internal/domain"
	"github.com/nextdotid/relation-server-go/internal/metrics"
	"github.com/nextdotid/relation-server-go/internal/query"
	"github.com/nextdotid/relation-server-go/internal/store"
	"github.com/nextdotid/relation-server-go/internal/store/httpstore"
	"github.com/nextdotid/relation-server-go/internal/store/sqlitestore"
	transportgraphql "github.com/nextdotid/relation-server-go/internal/transport/graphql"
	"github.com/nextdotid/relation-server-go/internal/upstream"
	"github.com/nextdotid/relation-server-go/internal/upstream/dotbit"
	"github.com/nextdotid/relation-server-go/internal/upstream/ens"
	"github.com/nextdotid/relation-server-go/internal/upstream/farcaster"
	"github.com/nextdotid/relation-server-go/internal/upstream/lens"
	"github.com/nextdotid/relation-server-go/internal/upstream/rss3"
	"github.com/nextdotid/relation-server-go/internal/upstream/sybillist"
	"github.com/nextdotid/relation-server-go/internal/upstream/thegraph"
)

var configFlag = &cli.StringFlag{
	Name:  "config",
	Usage: "path to a TOML configuration file",
}

func main() {
	app := &cli.App{
		Name:  "relationserver",
		Usage: "RelationService identity-graph aggregation server",
		Flags: []cli.Flag{configFlag},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Crit("relationserver exited", "err", err)
	}
}

func run(c *cli.Context) error {
	cfg := config.DefaultConfig
	if path := c.String(configFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = *loaded
	} else {
		config.ApplyDefaults(&cfg)
	}

	graph, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := buildRegistry(cfg.Upstream)
	engine := dispatch.New(graph, registry, cfg.Dispatch.MaxConcurrentFetches)

	svc := query.New(graph, engine, domain.DefaultTTLTable(), query.Config{
		MaxDepth:      cfg.Dispatch.MaxDepth,
		DebounceDelay: *cfg.Refetch.DebounceDelay,
		Workers:       cfg.Refetch.Workers,
		QueueSize:     cfg.Refetch.QueueSize,
	})
	defer svc.Close()

	gqlHandler, err := transportgraphql.NewHandler(svc, *cfg.Refetch.DebounceDelay)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", gqlHandler)
	mux.Handle("/metrics", metrics.PrometheusHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		log.Info("relationserver listening", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-sigCh:
		log.Info("relationserver shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
	return nil
}

func openStore(cfg config.StoreConfig) (store.GraphStore, func(), error) {
	switch cfg.Driver {
	case "http":
		return httpstore.New(cfg.Endpoint, cfg.Graph, cfg.Token, *cfg.RequestTimeout), func() {}, nil
	default:
		s, err := sqlitestore.Open(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
}

func buildRegistry(cfg config.UpstreamConfig) *upstream.Registry {
	timeout := 15 * time.Second
	if cfg.Timeout != nil {
		timeout = *cfg.Timeout
	}

	fetchers := []upstream.Fetcher{
		sybillist.New(timeout),
		rss3.New("https://hub.rss3.io", timeout),
		thegraph.New("https://api.thegraph.com/subgraphs/name/ensdomains/ens", timeout),
		lens.New("https://api.lens.dev", timeout),
		dotbit.New("https://indexer-v1.did.id", timeout),
		farcaster.New("https://nemes.farcaster.xyz:2281", timeout),
	}
	if cfg.EthereumRPC != "" {
		if ensFetcher, err := ens.New(cfg.EthereumRPC); err != nil {
			log.Warn("ens fetcher disabled", "err", err)
		} else {
			fetchers = append(fetchers, ensFetcher)
		}
	}
	return upstream.NewRegistry(fetchers...)
}
