// cmd/reservation-reaper/main.go
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"stockledger/internal/pkg/bootstrap"
	"stockledger/internal/pkg/httpclient"
	"stockledger/internal/pkg/logger"
	"stockledger/internal/pkg/metrics"
	"stockledger/internal/pkg/mq"
	"stockledger/internal/pkg/tracing"
	"stockledger/internal/service/inventory/application"
	"stockledger/internal/service/inventory/client"
	"stockledger/internal/service/inventory/domain/port"
	"stockledger/internal/service/inventory/infrastructure"
	"stockledger/internal/zookeeper"
)

const serviceName = "reservation-reaper"

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults to $INVENTORY_CONFIG)")
	once := flag.Bool("once", false, "run a single sweep and exit")
	remote := flag.String("remote", "", "base URL of a running inventory-service; sweep through its HTTP API instead of the database")
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(serviceName, cfg.Log.Level, cfg.Log.Pretty)

	tp, err := tracing.InitTracerProvider(serviceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("shutdown tracer provider")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sweeper application.Sweeper
	if *remote != "" {
		sweeper = client.NewInventoryClient(*remote, httpclient.NewClient(otel.Tracer(serviceName)))
		log.Info().Str("remote", *remote).Msg("sweeping through inventory-service API")
	} else {
		db, err := infrastructure.OpenDatabase(cfg.MySQL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open database")
		}

		opts := []application.Option{
			application.WithTracer(otel.Tracer(serviceName)),
			application.WithMetrics(metrics.New(prometheus.DefaultRegisterer)),
			application.WithRetry(cfg.App.RetryAttempts, infrastructure.IsRetryable),
			application.WithReapBatchLimit(cfg.Reaper.BatchLimit),
		}
		if cfg.Kafka.Enabled {
			publisher := infrastructure.NewKafkaEventPublisher(
				mq.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.MovementTopic),
				mq.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.AlertTopic),
			)
			defer publisher.Close()
			opts = append(opts, application.WithEventPublisher(publisher))
		}
		sweeper = application.NewReservationService(infrastructure.NewGormStore(db), opts...)
	}

	// 多个清理进程通过 ZooKeeper 锁互斥
	var locker port.Locker
	if len(cfg.Reaper.ZKServers) > 0 {
		conn, err := zookeeper.Connect(cfg.Reaper.ZKServers, 10*time.Second)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect zookeeper")
		}
		defer conn.Close()
		lock, err := zookeeper.NewDistributedLock(conn, cfg.Reaper.LockResource)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to prepare reaper lock")
		}
		locker = lock
	} else {
		log.Warn().Msg("no zookeeper servers configured, running reaper without distributed lock")
	}

	reaper := application.NewReaper(sweeper, locker, cfg.Reaper.Interval)
	if *once {
		n, err := reaper.RunOnce(ctx)
		if err != nil {
			log.Error().Err(err).Msg("reap failed")
			return
		}
		log.Info().Int("released", n).Msg("reap finished")
		return
	}

	if err := reaper.Run(ctx); err != nil {
		log.Error().Err(err).Msg("reaper exited with error")
	}
}
