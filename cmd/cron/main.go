package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"panel-service/internal/biz"
	"panel-service/internal/conf"
	"panel-service/internal/metrics"

	"github.com/gaoyong06/go-pkg/logger"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
	_ "go.uber.org/automaxprocs"
)

var (
	flagconf string
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

// CronApp Cron 应用结构
type CronApp struct {
	RenewalUsecase *biz.RenewalUseCase
}

func main() {
	flag.Parse()

	// 初始化配置
	c := config.New(
		config.WithSource(
			file.NewSource(flagconf),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		panic(err)
	}

	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		panic(err)
	}

	// 初始化日志 (使用 go-pkg/logger)
	logConfig := &logger.Config{
		Level:         "info",
		Format:        "json",
		Output:        "stdout",
		FilePath:      "logs/panel-cron.log",
		MaxSize:       100,
		MaxAge:        30,
		MaxBackups:    10,
		Compress:      true,
		EnableConsole: true,
	}

	loggerInstance := logger.NewLogger(logConfig)

	// 添加基本字段
	loggerInstance = log.With(loggerInstance,
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.name", "panel-cron",
	)

	logHelper := log.NewHelper(loggerInstance)

	// 初始化全局指标
	metrics.InitMetrics()

	// 初始化应用
	app, cleanup, err := wireApp(&bc, loggerInstance)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// 创建定时任务调度器（支持秒级调度）
	cronScheduler := cron.New(cron.WithSeconds())

	// 信用点订阅续费扫描 - 每5分钟执行
	_, err = cronScheduler.AddFunc("0 */5 * * * *", func() {
		logHelper.Info("[CRON] Starting credit renewal scan...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		published, err := app.RenewalUsecase.PublishDueRenewals(ctx)
		if err != nil {
			logHelper.Errorf("[CRON] Error publishing due renewals: %v", err)
		} else {
			logHelper.Infof("[CRON] Credit renewal scan completed: published=%d", published)
		}
	})
	if err != nil {
		logHelper.Errorf("Failed to add credit renewal job: %v", err)
	}

	// 到期订阅清理 - 每小时执行
	_, err = cronScheduler.AddFunc("0 0 * * * *", func() {
		logHelper.Info("[CRON] Starting expired subscription enforcement...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		enforced, err := app.RenewalUsecase.EnforceExpirations(ctx)
		if err != nil {
			logHelper.Errorf("[CRON] Error enforcing expirations: %v", err)
		} else {
			logHelper.Infof("[CRON] Expired subscription enforcement completed: enforced=%d", enforced)
		}
	})
	if err != nil {
		logHelper.Errorf("Failed to add expiration enforcement job: %v", err)
	}

	// 启动定时任务
	cronScheduler.Start()
	logHelper.Info("========================================")
	logHelper.Info("Cron jobs started successfully")
	logHelper.Info("Scheduled jobs:")
	logHelper.Info("  - Credit renewal scan: Every 5 minutes")
	logHelper.Info("  - Expired subscription enforcement: Every hour")
	logHelper.Info("========================================")

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logHelper.Info("Shutting down gracefully...")

	// 停止定时任务
	ctx := cronScheduler.Stop()
	select {
	case <-ctx.Done():
		logHelper.Info("Cron jobs stopped gracefully")
	case <-time.After(5 * time.Second):
		logHelper.Info("Cron jobs forced to stop after timeout")
	}
}
