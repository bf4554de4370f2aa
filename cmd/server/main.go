package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/chainpay-next/internal/app"
	"github.com/chainpay-next/internal/config"
	"github.com/chainpay-next/internal/ledger"
	"github.com/chainpay-next/internal/logger"
	"github.com/chainpay-next/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiDim   = "\033[2m"
	ansiGreen = "\033[32m"
	ansiBlue  = "\033[34m"
	ansiCyan  = "\033[36m"
)

func main() {
	printStartupBanner()

	// 加载配置
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()

	if !ledger.IsAddress(cfg.Ledger.ReceiverAddress) {
		if cfg.Server.Mode == "release" {
			stdLog.Fatalf("收款地址未配置或格式不正确，请在生产环境中设置 ledger.receiver_address")
		}
		stdLog.Printf("警告: 收款地址未配置或格式不正确，校验请求将无法通过收款方检查")
	}

	// 初始化数据库；memory 驱动使用进程内存储，跳过数据库初始化
	if !isMemoryDriver(cfg.Database.Driver) {
		if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
			MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
			MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
			ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
			ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
		}); err != nil {
			stdLog.Fatalf("数据库初始化失败: %v", err)
		}

		// 自动迁移数据库表
		if err := models.AutoMigrate(); err != nil {
			stdLog.Fatalf("数据库迁移失败: %v", err)
		}
	}

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 解析命令行参数
	var mode string
	flag.StringVar(&mode, "mode", app.ModeAll, "启动模式: all (默认), api, worker")
	flag.Parse()

	if err := app.Run(app.Options{
		Config:  cfg,
		Logger:  logger.S(),
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		Mode:    mode,
	}); err != nil {
		stdLog.Fatalf("服务运行失败: %v", err)
	}
}

func isMemoryDriver(driver string) bool {
	return strings.EqualFold(strings.TrimSpace(driver), "memory")
}

func printStartupBanner() {
	fmt.Println(ansiCyan + " ██████╗██╗  ██╗ █████╗ ██╗███╗   ██╗██████╗  █████╗ ██╗   ██╗" + ansiReset)
	fmt.Println(ansiCyan + "██╔════╝██║  ██║██╔══██╗██║████╗  ██║██╔══██╗██╔══██╗╚██╗ ██╔╝" + ansiReset)
	fmt.Println(ansiCyan + "██║     ███████║███████║██║██╔██╗ ██║██████╔╝███████║ ╚████╔╝ " + ansiReset)
	fmt.Println(ansiCyan + "██║     ██╔══██║██╔══██║██║██║╚██╗██║██╔═══╝ ██╔══██║  ╚██╔╝  " + ansiReset)
	fmt.Println(ansiCyan + "╚██████╗██║  ██║██║  ██║██║██║ ╚████║██║     ██║  ██║   ██║   " + ansiReset)
	fmt.Println(ansiCyan + " ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝╚═╝╚═╝  ╚═══╝╚═╝     ╚═╝  ╚═╝   ╚═╝   " + ansiReset)
	fmt.Println(ansiGreen + ansiBold + "ChainPay-Next API" + ansiReset)
	fmt.Println(ansiBlue + "• Repo: https://github.com/chainpay-next" + ansiReset)
	fmt.Println(ansiDim + "--------------------------------------------------------------" + ansiReset)
}
