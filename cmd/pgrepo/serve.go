package pgrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/edgeflare/pgrepo/pkg/events"
	"github.com/edgeflare/pgrepo/pkg/httputil"
	mw "github.com/edgeflare/pgrepo/pkg/httputil/middleware"
	"github.com/edgeflare/pgrepo/pkg/metrics"
	"github.com/edgeflare/pgrepo/pkg/model"
	pg "github.com/edgeflare/pgrepo/pkg/pgx"
	"github.com/edgeflare/pgrepo/pkg/repository"
	"github.com/edgeflare/pgrepo/pkg/rest"
	"github.com/edgeflare/pgrepo/pkg/store"
	"github.com/edgeflare/pgrepo/pkg/store/memory"
	"github.com/edgeflare/pgrepo/pkg/store/postgres"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Starts a REST API server exposing the configured entities`,
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("rest.pg.connString", "c", "", "PostgreSQL connection string")
	f.StringP("rest.listenAddr", "l", "", "REST server listen address")
	f.String("rest.baseURL", "", "Base URL for API endpoints")
	f.Bool("metrics.enabled", false, "Serve Prometheus metrics")
	f.String("metrics.addr", "", "Prometheus metrics listen address")
	f.Bool("memory", false, "Use the in-process store instead of PostgreSQL")
	f.String("seed", "", "JSON file of {entity_or_pivot: [rows]} loaded into the in-process store")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg, rules, err := cfg.Registry()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	useMemory, _ := cmd.Flags().GetBool("memory")
	seed, _ := cmd.Flags().GetString("seed")
	s, closeStore, err := openStore(ctx, reg, useMemory, seed, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var repoOpts []repository.Option
	pub, err := events.Open(cfg.Events)
	if err != nil {
		return err
	}
	if pub != nil {
		defer pub.Close()
		repoOpts = append(repoOpts, repository.WithPublisher(pub))
		logger.Info("publishing write events")
	}

	server := rest.NewServer(repositories(s, reg, rules, logger, repoOpts...),
		rest.WithLogger(logger),
		rest.WithBaseURL(cfg.REST.BaseURL),
		rest.WithMiddleware(middleware(logger)...),
	)

	var wg sync.WaitGroup
	if cfg.Metrics.Enabled {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{Addr: cfg.Metrics.Addr, Logger: logger})
	}

	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(cfg.REST.ListenAddr); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.REST.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	wg.Wait()
	logger.Info("server gracefully stopped")
	return nil
}

func openStore(ctx context.Context, reg *model.Registry, useMemory bool, seed string, logger *zap.Logger) (store.Store, func(), error) {
	if useMemory {
		s := memory.New()
		if seed != "" {
			if err := loadSeed(s, reg, seed); err != nil {
				return nil, nil, err
			}
		}
		logger.Info("using in-process store", zap.String("seed", seed))
		return s, func() {}, nil
	}

	if cfg.REST.PG.ConnString == "" {
		return nil, nil, errors.New("PostgreSQL connection string required (rest.pg.connString or --memory)")
	}
	pool, err := pg.Connect(ctx, cfg.REST.PG.ConnString, pg.ConnectOptions{
		MaxElapsed: cfg.REST.PG.ConnectTimeout,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return postgres.New(pool, postgres.WithLogger(logger)), pool.Close, nil
}

func loadSeed(s *memory.Store, reg *model.Registry, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	var data map[string][]model.Entity
	if err := json.Unmarshal(b, &data); err != nil {
		return fmt.Errorf("seed %s: %w", path, err)
	}
	return s.Load(reg, data)
}

func repositories(s store.Store, reg *model.Registry, rules map[string]repository.Rules, logger *zap.Logger, extra ...repository.Option) []*repository.Repository {
	repos := make([]*repository.Repository, 0, len(reg.Names()))
	for _, name := range reg.Names() {
		t, _ := reg.Get(name)
		opts := append([]repository.Option{
			repository.WithValidator(rules[name]),
			repository.WithLogger(logger),
			repository.WithPaginateLimits(cfg.REST.Paginate.Lower, cfg.REST.Paginate.Higher),
		}, extra...)
		repos = append(repos, repository.New(s, t, opts...))
	}
	return repos
}

// middleware returns the request pipeline, outermost first. The logger
// middleware is left out at log level none.
func middleware(logger *zap.Logger) []httputil.Middleware {
	mws := []httputil.Middleware{mw.RequestID, mw.CORSWithOptions(cfg.REST.CORS)}
	if logLevel != "none" {
		mws = append(mws, mw.LoggerWithOptions(&mw.LoggerOptions{Logger: logger}))
	}
	return mws
}
