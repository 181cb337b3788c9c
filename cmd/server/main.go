package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/loan-sdk/internal/server"
	"github.com/iota-uz/loan-sdk/modules"
	"github.com/iota-uz/loan-sdk/modules/loan/services"
	"github.com/iota-uz/loan-sdk/pkg/application"
	"github.com/iota-uz/loan-sdk/pkg/configuration"
	"github.com/iota-uz/loan-sdk/pkg/logging"
	"github.com/iota-uz/loan-sdk/pkg/metrics"
	"github.com/iota-uz/loan-sdk/pkg/migrations"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	if conf.OpenTelemetry.Enabled {
		tracingCleanup := logging.SetupTracing(
			context.Background(),
			conf.OpenTelemetry.ServiceName,
			conf.OpenTelemetry.TempoURL,
		)
		defer tracingCleanup()
		logger.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()
	pool, err := pgxpool.New(connectCtx, conf.Database.Opts)
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	if conf.MigrateOnStart {
		migrator, err := migrations.New(pool)
		if err != nil {
			log.Fatalf("failed to open migrations: %v", err)
		}
		results, err := migrator.Up(ctx)
		_ = migrator.Close()
		if err != nil {
			log.Fatalf("failed to apply migrations: %v", err)
		}
		logger.WithField("applied", len(results)).Info("migrations applied")
	}

	spec, err := services.ResolveSpec(conf.Import.SpecPath, conf.Import.NamespaceURI)
	if err != nil {
		log.Fatalf("failed to load import spec: %v", err)
	}

	tasks, err := server.NewTaskBackend(conf, pool, logger)
	if err != nil {
		log.Fatalf("failed to create task backend: %v", err)
	}

	app := application.New(&application.ApplicationOptions{
		Pool:   pool,
		Logger: logger,
	})
	builtIn := modules.BuiltInModules(modules.BuiltInOptions{
		Configuration: conf,
		Spec:          spec,
		Queue:         tasks.Enqueuer,
		Router:        tasks.Router,
	})
	if err := modules.Load(app, builtIn...); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path, nil))
	}

	if err := tasks.Start(ctx); err != nil {
		log.Fatalf("failed to start task workers: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := tasks.Stop(stopCtx); err != nil {
			logger.WithError(err).Warn("task workers did not drain")
		}
	}()

	serverInstance, err := server.Default(&server.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   app,
		Pool:          pool,
	})
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}
	log.Printf("Listening on: %s\n", conf.Origin)
	if err := serverInstance.Start(ctx, conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
