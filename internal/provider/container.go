package provider

import (
	"strings"
	"time"

	"github.com/chainpay-next/internal/cache"
	"github.com/chainpay-next/internal/config"
	"github.com/chainpay-next/internal/ledger"
	"github.com/chainpay-next/internal/logger"
	"github.com/chainpay-next/internal/models"
	"github.com/chainpay-next/internal/queue"
	"github.com/chainpay-next/internal/repository"
	"github.com/chainpay-next/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	PaymentRepo repository.PaymentRepository

	// Clients
	LedgerClient ledger.Client

	// Services
	PaymentService *service.PaymentService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	c.initRepositories()
	c.initClients()
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	driver := strings.ToLower(strings.TrimSpace(c.Config.Database.Driver))
	if driver == "" || driver == "memory" {
		c.PaymentRepo = repository.NewMemoryPaymentRepository()
		return
	}
	c.PaymentRepo = repository.NewPaymentRepository(models.DB)
}

func (c *Container) initClients() {
	timeout := time.Duration(c.Config.Ledger.RequestTimeoutMS) * time.Millisecond
	rpcClient, err := ledger.NewRPCClient(c.Config.Ledger.RPCURL, timeout)
	if err != nil {
		logger.Errorw("provider_init_ledger_client_failed", "error", err)
		panic(err)
	}
	if cache.Enabled() {
		ttl := time.Duration(c.Config.Ledger.TxCacheTTLSeconds) * time.Second
		c.LedgerClient = ledger.NewCachedClient(rpcClient, ttl)
		return
	}
	c.LedgerClient = rpcClient
}

func (c *Container) initServices() {
	c.PaymentService = service.NewPaymentService(
		c.PaymentRepo,
		c.LedgerClient,
		c.QueueClient,
		c.Config.Ledger,
		c.Config.Payment,
	)
}
