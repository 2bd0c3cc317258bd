package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"listing-watcher/internal/app"
	"listing-watcher/internal/app/watcher"
	"listing-watcher/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	bootstrap, err := app.NewBootstrap(cfg)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}

	application, err := watcher.NewApp(context.Background(), bootstrap)
	if err != nil {
		log.Fatalf("创建 watcher 应用失败: %v", err)
	}
	if err := application.Start(); err != nil {
		log.Fatalf("启动失败: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil {
		log.Printf("关闭失败: %v", err)
	}
	log.Println("watcher 已关闭")
}
