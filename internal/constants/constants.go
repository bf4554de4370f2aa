package constants

// 支付状态常量
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
)

// 校验拒绝原因常量（接口返回的机器可读原因码）
const (
	ReasonPaymentNotFound     = "payment_not_found"
	ReasonTransactionNotFound = "transaction_not_found"
	ReasonIncorrectReceiver   = "incorrect_receiver"
	ReasonInsufficientAmount  = "insufficient_amount"
	ReasonTransactionFailed   = "transaction_failed"
	ReasonLedgerUnavailable   = "ledger_unavailable"
)

// 队列常量
const (
	QueueDefault = "default"
)

// 异步任务类型常量
const (
	TaskPaymentVerify = "payment:verify"
)

// 账本单位常量：1 ETH = 10^18 wei
const (
	LedgerUnitDecimals = 18
)
