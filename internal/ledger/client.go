package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"regexp"
	"strings"
	"time"
)

var (
	ErrConfigInvalid   = errors.New("ledger config invalid")
	ErrRequestFailed   = errors.New("ledger request failed")
	ErrResponseInvalid = errors.New("ledger response invalid")
)

const defaultRequestTimeout = 10 * time.Second

var (
	txHashPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// Transaction 链上交易的提交数据
type Transaction struct {
	Hash     string   // 交易哈希
	To       string   // 目标地址
	ValueWei *big.Int // 转账金额（wei）
}

// Receipt 交易执行回执
type Receipt struct {
	Success bool // 执行是否成功
}

// Client 账本查询接口
type Client interface {
	// GetTransaction 查询交易；未找到（含格式非法、未上链）返回 (nil, nil)
	GetTransaction(ctx context.Context, txHash string) (*Transaction, error)
	// GetTransactionReceipt 查询回执；未找到返回 (nil, nil)
	GetTransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)
}

// RPCClient 基于以太坊 JSON-RPC 的账本客户端
type RPCClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewRPCClient 创建 JSON-RPC 账本客户端
func NewRPCClient(endpoint string, timeout time.Duration) (*RPCClient, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("%w: rpc endpoint is required", ErrConfigInvalid)
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &RPCClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// IsTxHash 判断是否为合法交易哈希
func IsTxHash(txHash string) bool {
	return txHashPattern.MatchString(strings.TrimSpace(txHash))
}

// IsAddress 判断是否为合法账户地址
func IsAddress(address string) bool {
	return addressPattern.MatchString(strings.TrimSpace(address))
}

// GetTransaction 查询交易提交数据
func (c *RPCClient) GetTransaction(ctx context.Context, txHash string) (*Transaction, error) {
	txHash = strings.TrimSpace(txHash)
	if !IsTxHash(txHash) {
		// 非法引用视为账本上不存在
		return nil, nil
	}

	var result struct {
		Hash  string `json:"hash"`
		To    string `json:"to"`
		Value string `json:"value"`
	}
	found, err := c.call(ctx, "eth_getTransactionByHash", []interface{}{txHash}, &result)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	value, err := parseHexQuantity(result.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: transaction value %q", ErrResponseInvalid, result.Value)
	}
	return &Transaction{
		Hash:     result.Hash,
		To:       result.To,
		ValueWei: value,
	}, nil
}

// GetTransactionReceipt 查询交易执行回执
func (c *RPCClient) GetTransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	txHash = strings.TrimSpace(txHash)
	if !IsTxHash(txHash) {
		return nil, nil
	}

	var result struct {
		Status string `json:"status"`
	}
	found, err := c.call(ctx, "eth_getTransactionReceipt", []interface{}{txHash}, &result)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	status, err := parseHexQuantity(result.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: receipt status %q", ErrResponseInvalid, result.Status)
	}
	return &Receipt{Success: status.Sign() == 1}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call 执行一次 JSON-RPC 调用；result 为 null 时返回 found=false
func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}) (bool, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(string(body)))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("%w: http status %d", ErrRequestFailed, resp.StatusCode)
	}

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &envelope); err != nil {
		return false, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if envelope.Error != nil {
		return false, fmt.Errorf("%w: rpc error %d: %s", ErrResponseInvalid, envelope.Error.Code, envelope.Error.Message)
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return false, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	return true, nil
}

// parseDecimalQuantity 解析十进制数
func parseDecimalQuantity(s string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal quantity: %q", s)
	}
	return value, nil
}

// parseHexQuantity 解析 0x 前缀的十六进制数
func parseHexQuantity(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return big.NewInt(0), nil
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("missing 0x prefix: %q", s)
	}
	digits := s[2:]
	if digits == "" {
		return nil, fmt.Errorf("empty hex quantity: %q", s)
	}
	value, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity: %q", s)
	}
	return value, nil
}
