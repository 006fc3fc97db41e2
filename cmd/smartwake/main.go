package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartwake/internal/config"
	httpapi "smartwake/internal/http"
	"smartwake/internal/logger"
	"smartwake/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "smartwake")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 创建服务
	wakeService, err := service.NewSmartWakeService(cfg, log)
	if err != nil {
		log.Fatal("Failed to create smartwake service",
			zap.Error(err),
		)
	}
	defer wakeService.Stop()

	// 4. 创建上下文（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. 启动自适应循环（在 goroutine 中）
	serviceErrChan := make(chan error, 1)
	go func() {
		if err := wakeService.Start(ctx); err != nil {
			serviceErrChan <- err
		}
	}()

	// 6. 启动 HTTP API
	handler := httpapi.NewAlarmHandler(wakeService, log)
	router := httpapi.NewRouter(log)
	router.RegisterWakeRoutes(handler)
	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	httpErrChan := make(chan error, 1)
	go func() {
		httpErrChan <- srv.Start()
	}()

	// 7. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
		cancel() // 取消上下文，停止自适应循环
	case err := <-serviceErrChan:
		log.Error("Adaptation loop error", zap.Error(err))
		cancel()
	case err := <-httpErrChan:
		log.Error("HTTP server error", zap.Error(err))
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("Smartwake service stopped")
}
