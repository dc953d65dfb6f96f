// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"stockledger/internal/pkg/nacos"
	"stockledger/internal/pkg/tracing"
	"stockledger/internal/pkg/utils"
)

type AppCtx struct {
	Mux    *http.ServeMux
	Config *Config
}

// AppInfo 包含了启动一个服务所需的特定信息
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx) // 注册服务自己的 HTTP 路由

	// Background 中的函数和 HTTP Server 一起运行，ctx 在收到退出信号时取消。
	// 任何一个返回非 nil 错误都会触发整个进程退出。
	Background []func(ctx context.Context) error

	// Cleanup 在 HTTP Server 关闭且所有 Background 返回之后按注册顺序执行
	Cleanup []func(ctx context.Context)
}

// StartService 封装了通用的启动和优雅关停逻辑，阻塞直到收到退出信号
func StartService(info AppInfo) error {
	cfg := GetCurrentConfig()

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		return err
	}

	var (
		namingClient *nacos.Client
		ip           string
	)
	if cfg.Infra.Nacos.Enabled {
		namingClient, err = nacos.NewNacosClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			return err
		}
		if ip, err = utils.GetOutboundIP(); err != nil {
			return err
		}
		if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Config: cfg})
	}
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(info.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = serve(ctx, server, info, func() {
		// 先从注册中心摘除，再停止接收请求
		if namingClient != nil {
			if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
				log.Error().Err(err).Msg("deregister from nacos")
			}
			namingClient.Close()
		}
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown tracer provider")
	}
	log.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
	return err
}

// serve 运行 HTTP Server 和后台任务直到 ctx 取消或任一任务出错。
// Cleanup 只在所有后台任务返回之后执行，后台任务仍可安全使用被清理的客户端。
func serve(ctx context.Context, server *http.Server, info AppInfo, beforeShutdown func()) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Msgf("%s listening on %s", info.ServiceName, server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	var background sync.WaitGroup
	for _, run := range info.Background {
		background.Add(1)
		g.Go(func() error {
			defer background.Done()
			return run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msgf("Shutting down service %s...", info.ServiceName)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if beforeShutdown != nil {
			beforeShutdown()
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown http server")
		}
		background.Wait()
		for _, fn := range info.Cleanup {
			fn(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}
