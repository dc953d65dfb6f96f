// cmd/inventory-service/main.go
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"stockledger/internal/pkg/bootstrap"
	"stockledger/internal/pkg/logger"
	"stockledger/internal/pkg/metrics"
	"stockledger/internal/pkg/mq"
	"stockledger/internal/pkg/redis"
	"stockledger/internal/service/inventory/application"
	"stockledger/internal/service/inventory/domain/port"
	"stockledger/internal/service/inventory/infrastructure"
	"stockledger/internal/service/inventory/interfaces"
	"stockledger/internal/zookeeper"
)

const serviceName = "inventory-service"

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults to $INVENTORY_CONFIG)")
	seedPath := flag.String("seed", "", "CSV file with initial stock rows to upsert before serving")
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.App.Name, cfg.Log.Level, cfg.Log.Pretty)

	ctx := context.Background()

	db, err := infrastructure.OpenDatabase(cfg.MySQL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	store := infrastructure.NewGormStore(db)
	if cfg.MySQL.AutoMigrate {
		if err := store.AutoMigrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
	}

	alertRule, err := infrastructure.NewCELAlertRule(cfg.Alerts.Expression)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid low stock alert expression")
	}

	opts := []application.Option{
		application.WithTracer(otel.Tracer(serviceName)),
		application.WithMetrics(metrics.New(prometheus.DefaultRegisterer)),
		application.WithRetry(cfg.App.RetryAttempts, infrastructure.IsRetryable),
		application.WithDefaultTTL(cfg.DefaultTTL()),
		application.WithReapBatchLimit(cfg.Reaper.BatchLimit),
		application.WithAlertRule(alertRule),
	}
	var cleanup []func(ctx context.Context)

	if cfg.Redis.Enabled {
		client, err := redis.NewClient(ctx, cfg.Redis.Addrs, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis")
		}
		opts = append(opts, application.WithStockCache(infrastructure.NewRedisStockCache(client, cfg.Redis.CacheTTL)))
		cleanup = append(cleanup, func(context.Context) { _ = client.Close() })
	}

	if cfg.Kafka.Enabled {
		publisher := infrastructure.NewKafkaEventPublisher(
			mq.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.MovementTopic),
			mq.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.AlertTopic),
		)
		opts = append(opts, application.WithEventPublisher(publisher))
		cleanup = append(cleanup, func(context.Context) {
			if err := publisher.Close(); err != nil {
				log.Error().Err(err).Msg("close kafka publisher")
			}
		})
	}

	svc := application.NewReservationService(store, opts...)

	if *seedPath != "" {
		if err := loadSeed(ctx, svc, *seedPath); err != nil {
			log.Fatal().Err(err).Str("seed", *seedPath).Msg("failed to load seed")
		}
	}

	var background []func(ctx context.Context) error

	if cfg.Kafka.Enabled && cfg.Kafka.CommandTopic != "" {
		consumer := interfaces.NewCommandConsumerAdapter(
			mq.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.CommandTopic, cfg.Kafka.GroupID),
			svc,
		)
		background = append(background, consumer.Run)
		cleanup = append(cleanup, func(context.Context) { consumer.Stop() })
	}

	if cfg.Reaper.Enabled {
		var locker port.Locker
		if len(cfg.Reaper.ZKServers) > 0 {
			conn, err := zookeeper.Connect(cfg.Reaper.ZKServers, 10*time.Second)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to connect zookeeper")
			}
			lock, err := zookeeper.NewDistributedLock(conn, cfg.Reaper.LockResource)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to prepare reaper lock")
			}
			locker = lock
			cleanup = append(cleanup, func(context.Context) { conn.Close() })
		}
		background = append(background, application.NewReaper(svc, locker, cfg.Reaper.Interval).Run)
	}

	handler := interfaces.NewInventoryHandler(svc, prometheus.DefaultGatherer)
	err = bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: cfg.App.Name,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		Background: background,
		Cleanup:    cleanup,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("service exited with error")
	}
}

func loadSeed(ctx context.Context, svc *application.ReservationService, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := infrastructure.ParseSeedCSV(f)
	if err != nil {
		return err
	}
	n, err := svc.ProvisionAll(ctx, records)
	if err != nil {
		return err
	}
	log.Info().Int("rows", n).Str("seed", path).Msg("seed loaded")
	return nil
}
