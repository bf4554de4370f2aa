package main

import (
	"time"

	"github.com/chainpay-next/internal/config"
	"github.com/chainpay-next/internal/constants"
	"github.com/chainpay-next/internal/logger"
	"github.com/chainpay-next/internal/models"
	"github.com/chainpay-next/internal/repository"

	"github.com/shopspring/decimal"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	repo := repository.NewPaymentRepository(models.DB)

	// 添加演示用的待支付记录
	seeds := []struct {
		amount      string
		description string
	}{
		{"0.05", "演示订单：小额充值"},
		{"1.5", "演示订单：会员年费"},
		{"12", "演示订单：企业服务"},
	}

	for _, seed := range seeds {
		amountDec, err := decimal.NewFromString(seed.amount)
		if err != nil {
			stdLog.Printf("Invalid seed amount %s: %v", seed.amount, err)
			continue
		}
		amount := models.NewAmountFromDecimal(amountDec)
		wei, err := amount.Wei()
		if err != nil {
			stdLog.Printf("Failed to convert amount %s: %v", seed.amount, err)
			continue
		}

		payment := &models.Payment{
			AmountEth:       amount,
			AmountWei:       wei,
			Description:     seed.description,
			Status:          constants.PaymentStatusPending,
			ReceiverAddress: cfg.Ledger.ReceiverAddress,
			CreatedAt:       time.Now(),
		}
		if err := repo.Create(payment); err != nil {
			stdLog.Printf("Failed to create payment (%s): %v", seed.description, err)
			continue
		}
		stdLog.Printf("Created payment: id=%s amount=%s wei=%s", payment.ID, payment.AmountEth.String(), payment.AmountWei.String())
	}

	stdLog.Println("Seed completed")
}
