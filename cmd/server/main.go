// Package main 是 HTTP 服务的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"rag-qa-go/internal/bootstrap"
	"rag-qa-go/internal/config"
	"rag-qa-go/internal/handler"
	"rag-qa-go/pkg/kafka"
	"rag-qa-go/pkg/log"
	"rag-qa-go/pkg/vectorindex"
)

func main() {
	configPath := flag.String("config", envOr("RAG_CONFIG", "./configs/config.yaml"), "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. 组装依赖
	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatal("初始化应用失败", err)
	}
	defer app.Close()

	// 4. 启动时保证向量集合与当前 embedding 维度一致
	res, err := app.Admin.EnsureIndex(ctx)
	if err != nil {
		log.Fatal("初始化向量集合失败", err)
	}
	if res.Action == vectorindex.SchemaRecreated.String() {
		log.Warnw("向量集合维度不一致，已重建，已有文档需要重新索引", "dimensions", res.Dimensions)
	} else {
		log.Infow("向量集合就绪", "dimensions", res.Dimensions, "action", res.Action)
	}

	// 5. 后台任务: Kafka 消费者与初始化导入
	var wg sync.WaitGroup
	if cfg.Kafka.Brokers != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kafka.StartConsumer(ctx, cfg.Kafka, app.Processor, app.Redis)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		bootstrap.ImportSeedDir(ctx, app, cfg.Server.SeedDir)
	}()

	// 6. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(app.RouterDeps())

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 通知消费者与导入任务退出，再释放连接
	cancel()
	wg.Wait()
	log.Info("服务已优雅关闭")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
