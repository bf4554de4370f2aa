package worker

import (
	"context"
	"errors"
	"time"

	"github.com/chainpay-next/internal/config"
	"github.com/chainpay-next/internal/constants"
	"github.com/chainpay-next/internal/logger"
	"github.com/chainpay-next/internal/queue"

	"github.com/hibiken/asynq"
)

const pendingStatsInterval = time.Minute

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil && s.consumer.PaymentRepo != nil {
		go s.runPendingStatsLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runPendingStatsLoop 周期性输出待支付记录数，便于观察确认积压
func (s *Service) runPendingStatsLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.PaymentRepo == nil {
		return
	}
	runOnce := func() {
		pending, err := s.consumer.PaymentRepo.CountByStatus(constants.PaymentStatusPending)
		if err != nil {
			logger.Warnw("worker_pending_stats_failed", "error", err)
			return
		}
		logger.Debugw("worker_pending_stats", "pending_count", pending)
	}
	runOnce()

	ticker := time.NewTicker(pendingStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
