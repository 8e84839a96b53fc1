package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"fibermap/internal/application"
	"fibermap/internal/config"
	"fibermap/internal/infrastructure/memory"
	"fibermap/internal/infrastructure/repositories"
	"fibermap/internal/infrastructure/storage"
	"fibermap/internal/logging"
	"fibermap/internal/observability"
	"fibermap/internal/ports"
	"fibermap/internal/ports/api"
	"fibermap/internal/ports/ws"
	"fibermap/pkg/localization"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api-gateway: %v\n", err)
		os.Exit(1)
	}
}

// repositorySet - сховища, з якими працюють сервіси
type repositorySet struct {
	liaisons   ports.LiaisonRepository
	topologies ports.TopologyRepository
	readings   ports.ReadingRepository
	faults     ports.FaultRepository
	close      func() error
}

func run() error {
	fs := flag.NewFlagSet("api-gateway", flag.ExitOnError)
	flags := config.RegisterFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, path, err := config.Load(flags.ConfigPath)
	if err != nil {
		return err
	}
	if err := flags.Apply(fs, cfg); err != nil {
		return err
	}

	log := logging.New(cfg.Logging)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if path != "" {
		log.Info(ctx, "configuration loaded", logging.String("path", path))
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	metrics, err := observability.NewCollector(nil)
	if err != nil {
		return err
	}

	repos, err := openRepositories(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer repos.close()

	var sinks []ports.NotificationSink
	var feed *ws.FaultFeed
	if cfg.Notifications.Websocket {
		feed = ws.NewFaultFeed(cfg.Server.AllowedOrigins, log)
		defer feed.Close()
		sinks = append(sinks, feed)
	}
	var archive ports.IncidentArchive
	if cfg.MinIO.Enabled {
		a, err := storage.NewIncidentArchive(ctx, cfg.MinIO.Endpoint, cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, cfg.MinIO.Bucket, cfg.MinIO.UseSSL)
		if err != nil {
			return fmt.Errorf("error initializing incident archive: %w", err)
		}
		archive = a
		sinks = append(sinks, a)
		log.Info(ctx, "incident archive enabled",
			logging.String("endpoint", cfg.MinIO.Endpoint), logging.String("bucket", cfg.MinIO.Bucket))
	}

	notifier := application.NewFanoutNotifier(cfg.Notifications.Timeout, log, metrics, sinks...)
	defer notifier.Wait()

	topologyService := application.NewTopologyService(repos.topologies, repos.liaisons, cfg.Topology.CableSlackFactor, log, metrics)
	faultService := application.NewFaultService(
		repos.topologies, repos.liaisons, repos.readings, repos.faults,
		localization.NewEngine(cfg.Localization), notifier, log, metrics,
	)
	navigationService := application.NewNavigationService(repos.topologies, repos.faults)

	router := api.NewRouter(api.RouterDeps{
		Topology:       topologyService,
		Faults:         faultService,
		Navigation:     navigationService,
		Archive:        archive,
		Feed:           feed,
		Metrics:        metrics,
		Log:            log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsSrv := &http.Server{
		Addr:              cfg.Server.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting server", logging.String("addr", srv.Addr), logging.String("store", cfg.Database.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error starting server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info(gctx, "starting metrics server", logging.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error starting metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), metricsSrv.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info(context.Background(), "server gracefully stopped")
	return nil
}

func openRepositories(ctx context.Context, cfg *config.Config, log logging.Logger) (*repositorySet, error) {
	if cfg.Database.Store == config.StoreMemory {
		log.Warn(ctx, "using in-memory store, data is lost on restart")
		store := memory.NewStore()
		return &repositorySet{
			liaisons:   store,
			topologies: store,
			readings:   store.Readings(),
			faults:     store.Faults(),
			close:      func() error { return nil },
		}, nil
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if cfg.Database.InitSchema {
		if err := repositories.InitializeSchema(ctx, db); err != nil {
			log.Warn(ctx, "error initializing database schema", logging.Err(err))
		}
	}

	topologies := repositories.NewPostgresTopologyRepository(db)
	return &repositorySet{
		liaisons:   topologies,
		topologies: topologies,
		readings:   repositories.NewPostgresReadingRepository(db),
		faults:     repositories.NewPostgresFaultRepository(db),
		close:      db.Close,
	}, nil
}
