package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/chainpay-next/internal/cache"
	"github.com/chainpay-next/internal/logger"
)

const defaultTxCacheTTL = 10 * time.Minute

// CachedClient 带交易查询缓存的账本客户端。
// 已上链交易的提交数据不可变，可以安全缓存；回执状态不缓存，
// 避免把"尚无回执"的中间态固化。
type CachedClient struct {
	inner Client
	ttl   time.Duration
}

// NewCachedClient 包装账本客户端，为交易查询加读穿缓存
func NewCachedClient(inner Client, ttl time.Duration) *CachedClient {
	if ttl <= 0 {
		ttl = defaultTxCacheTTL
	}
	return &CachedClient{inner: inner, ttl: ttl}
}

type cachedTransaction struct {
	Hash     string `json:"hash"`
	To       string `json:"to"`
	ValueWei string `json:"value_wei"`
}

// GetTransaction 查询交易，命中缓存时不访问 RPC 节点
func (c *CachedClient) GetTransaction(ctx context.Context, txHash string) (*Transaction, error) {
	key := txCacheKey(txHash)

	var cached cachedTransaction
	if hit, err := cache.GetJSON(ctx, key, &cached); err == nil && hit {
		tx, err := cached.toTransaction()
		if err == nil {
			return tx, nil
		}
		logger.Warnw("ledger_tx_cache_decode_failed", "tx_hash", txHash, "error", err)
	}

	tx, err := c.inner.GetTransaction(ctx, txHash)
	if err != nil || tx == nil {
		return tx, err
	}

	if err := cache.SetJSON(ctx, key, cachedTransaction{
		Hash:     tx.Hash,
		To:       tx.To,
		ValueWei: tx.ValueWei.String(),
	}, c.ttl); err != nil {
		logger.Debugw("ledger_tx_cache_set_failed", "tx_hash", txHash, "error", err)
	}
	return tx, nil
}

// GetTransactionReceipt 查询回执，始终透传
func (c *CachedClient) GetTransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	return c.inner.GetTransactionReceipt(ctx, txHash)
}

func (t cachedTransaction) toTransaction() (*Transaction, error) {
	value, err := parseDecimalQuantity(t.ValueWei)
	if err != nil {
		return nil, err
	}
	return &Transaction{Hash: t.Hash, To: t.To, ValueWei: value}, nil
}

func txCacheKey(txHash string) string {
	return fmt.Sprintf("ledger:tx:%s", txHash)
}
