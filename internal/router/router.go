package router

import (
	"fmt"
	"strings"

	"github.com/chainpay-next/internal/cache"
	"github.com/chainpay-next/internal/config"
	publichandlers "github.com/chainpay-next/internal/http/handlers/public"
	"github.com/chainpay-next/internal/logger"
	"github.com/chainpay-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)

	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "cp"
	}
	redisClient := cache.Client()
	apiRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:api", redisPrefix),
		WindowSeconds: cfg.Security.APIRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.APIRateLimit.MaxRequests,
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		payments := apiV1.Group("/payments")
		{
			// 写接口带限流，状态查询不限
			payments.POST("", RateLimitMiddleware(redisClient, apiRule, KeyByIP), publicHandler.CreatePayment)
			payments.POST("/:id/verify", RateLimitMiddleware(redisClient, apiRule, KeyByIP), publicHandler.VerifyPayment)
			payments.GET("/:id", publicHandler.GetPayment)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
