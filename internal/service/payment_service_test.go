package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/chainpay-next/internal/config"
	"github.com/chainpay-next/internal/ledger"
	"github.com/chainpay-next/internal/models"
	"github.com/chainpay-next/internal/queue"
	"github.com/chainpay-next/internal/repository"

	"github.com/shopspring/decimal"
)

const (
	testReceiver = "0x52908400098527886E0F7030069857D2E4169EE7"
	testTxHash   = "0xabcdef1234567890abcdef1234567890abcdef1234567890abcdef1234567890"
)

// fakeLedgerClient 测试替身，按预置数据应答
type fakeLedgerClient struct {
	mu           sync.Mutex
	tx           *ledger.Transaction
	receipt      *ledger.Receipt
	txErr        error
	receiptErr   error
	txCalls      int
	receiptCalls int
}

func (f *fakeLedgerClient) GetTransaction(ctx context.Context, txHash string) (*ledger.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCalls++
	if f.txErr != nil {
		return nil, f.txErr
	}
	return f.tx, nil
}

func (f *fakeLedgerClient) GetTransactionReceipt(ctx context.Context, txHash string) (*ledger.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiptCalls++
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return f.receipt, nil
}

func newTestService(t *testing.T, fake *fakeLedgerClient) *PaymentService {
	t.Helper()
	queueClient, err := queue.NewClient(nil)
	if err != nil {
		t.Fatalf("new queue client failed: %v", err)
	}
	return NewPaymentService(
		repository.NewMemoryPaymentRepository(),
		fake,
		queueClient,
		config.LedgerConfig{ReceiverAddress: testReceiver, RequestTimeoutMS: 2000},
		config.PaymentConfig{VerifyMaxRetry: 3, VerifyRetryDelaySeconds: 1},
	)
}

func createTestPayment(t *testing.T, svc *PaymentService, amount string) *models.Payment {
	t.Helper()
	d, err := decimal.NewFromString(amount)
	if err != nil {
		t.Fatalf("parse amount failed: %v", err)
	}
	payment, err := svc.CreatePayment(CreatePaymentInput{Amount: d, Description: "test"})
	if err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	return payment
}

func weiFromEth(t *testing.T, amount string) *big.Int {
	t.Helper()
	d, err := decimal.NewFromString(amount)
	if err != nil {
		t.Fatalf("parse amount failed: %v", err)
	}
	wei, err := models.NewAmountFromDecimal(d).Wei()
	if err != nil {
		t.Fatalf("convert wei failed: %v", err)
	}
	return wei.BigInt()
}

func TestCreatePaymentConvertsToWei(t *testing.T) {
	svc := newTestService(t, &fakeLedgerClient{})

	payment := createTestPayment(t, svc, "1.5")
	if payment.AmountWei.String() != "1500000000000000000" {
		t.Fatalf("amount_wei want 1500000000000000000 got %s", payment.AmountWei.String())
	}
	if payment.Status != "pending" {
		t.Fatalf("status want pending got %s", payment.Status)
	}
	if payment.ReceiverAddress != testReceiver {
		t.Fatalf("receiver should be snapshotted, got %s", payment.ReceiverAddress)
	}
	if payment.TxHash != "" || payment.CompletedAt != nil {
		t.Fatalf("new payment should have no tx_hash / completed_at")
	}
}

func TestCreatePaymentRejectsInvalidAmount(t *testing.T) {
	svc := newTestService(t, &fakeLedgerClient{})

	for _, amount := range []string{"0", "-1"} {
		d, _ := decimal.NewFromString(amount)
		if _, err := svc.CreatePayment(CreatePaymentInput{Amount: d}); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %s should fail with ErrInvalidAmount, got %v", amount, err)
		}
	}

	// 小数位超过 18 位：换算会丢精度，直接拒绝
	d, err := decimal.NewFromString("0.0000000000000000001")
	if err != nil {
		t.Fatalf("parse decimal failed: %v", err)
	}
	if _, err := svc.CreatePayment(CreatePaymentInput{Amount: d}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("excess precision should fail with ErrInvalidAmount, got %v", err)
	}
}

func TestGetPaymentNotFound(t *testing.T) {
	svc := newTestService(t, &fakeLedgerClient{})
	if _, err := svc.GetPayment("ffffffffffffffff"); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("want ErrPaymentNotFound got %v", err)
	}
}

func TestVerifyPaymentSuccess(t *testing.T) {
	fake := &fakeLedgerClient{
		tx:      &ledger.Transaction{Hash: testTxHash, To: testReceiver, ValueWei: weiFromEth(t, "1.5")},
		receipt: &ledger.Receipt{Success: true},
	}
	svc := newTestService(t, fake)
	payment := createTestPayment(t, svc, "1.5")

	result, err := svc.VerifyPayment(context.Background(), payment.ID, testTxHash)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if result.AlreadyCompleted {
		t.Fatalf("first verification should not report already completed")
	}
	if !result.Payment.Completed() {
		t.Fatalf("payment should be completed")
	}
	if result.Payment.TxHash != testTxHash {
		t.Fatalf("tx_hash want %s got %s", testTxHash, result.Payment.TxHash)
	}
	if result.Payment.CompletedAt == nil {
		t.Fatalf("completed_at should be set")
	}
}

func TestVerifyPaymentReceiverCaseInsensitive(t *testing.T) {
	fake := &fakeLedgerClient{
		tx:      &ledger.Transaction{Hash: testTxHash, To: "0x52908400098527886e0f7030069857d2e4169ee7", ValueWei: weiFromEth(t, "1")},
		receipt: &ledger.Receipt{Success: true},
	}
	svc := newTestService(t, fake)
	payment := createTestPayment(t, svc, "1")

	result, err := svc.VerifyPayment(context.Background(), payment.ID, testTxHash)
	if err != nil {
		t.Fatalf("lowercased receiver should verify, got %v", err)
	}
	if !result.Payment.Completed() {
		t.Fatalf("payment should be completed")
	}
}

func TestVerifyPaymentOverpaymentAccepted(t *testing.T) {
	fake := &fakeLedgerClient{
		tx:      &ledger.Transaction{Hash: testTxHash, To: testReceiver, ValueWei: weiFromEth(t, "2")},
		receipt: &ledger.Receipt{Success: true},
	}
	svc := newTestService(t, fake)
	payment := createTestPayment(t, svc, "1.5")

	if _, err := svc.VerifyPayment(context.Background(), payment.ID, testTxHash); err != nil {
		t.Fatalf("overpayment should verify, got %v", err)
	}
}

func TestVerifyPaymentRejections(t *testing.T) {
	cases := []struct {
		name    string
		fake    *fakeLedgerClient
		wantErr error
	}{
		{
			name:    "transaction_not_found",
			fake:    &fakeLedgerClient{},
			wantErr: ErrTransactionNotFound,
		},
		{
			name: "incorrect_receiver",
			fake: &fakeLedgerClient{
				tx: &ledger.Transaction{Hash: testTxHash, To: "0x0000000000000000000000000000000000000001", ValueWei: weiFromEth(t, "1.5")},
			},
			wantErr: ErrIncorrectReceiver,
		},
		{
			name: "insufficient_amount",
			fake: &fakeLedgerClient{
				tx: &ledger.Transaction{Hash: testTxHash, To: testReceiver, ValueWei: weiFromEth(t, "1.499999999999999999")},
			},
			wantErr: ErrInsufficientAmount,
		},
		{
			name: "transaction_failed",
			fake: &fakeLedgerClient{
				tx:      &ledger.Transaction{Hash: testTxHash, To: testReceiver, ValueWei: weiFromEth(t, "1.5")},
				receipt: &ledger.Receipt{Success: false},
			},
			wantErr: ErrTransactionFailed,
		},
		{
			name: "receipt_missing",
			fake: &fakeLedgerClient{
				tx: &ledger.Transaction{Hash: testTxHash, To: testReceiver, ValueWei: weiFromEth(t, "1.5")},
			},
			wantErr: ErrTransactionFailed,
		},
		{
			name:    "ledger_unavailable",
			fake:    &fakeLedgerClient{txErr: errors.New("connection refused")},
			wantErr: ErrLedgerUnavailable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(t, tc.fake)
			payment := createTestPayment(t, svc, "1.5")

			_, err := svc.VerifyPayment(context.Background(), payment.ID, testTxHash)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v got %v", tc.wantErr, err)
			}

			// 被拒绝的记录保持待支付状态
			got, getErr := svc.GetPayment(payment.ID)
			if getErr != nil {
				t.Fatalf("get payment failed: %v", getErr)
			}
			if got.Completed() {
				t.Fatalf("rejected payment should stay pending")
			}
		})
	}
}

func TestVerifyPaymentChecksReceiverBeforeReceipt(t *testing.T) {
	fake := &fakeLedgerClient{
		tx: &ledger.Transaction{Hash: testTxHash, To: "0x0000000000000000000000000000000000000001", ValueWei: weiFromEth(t, "1.5")},
	}
	svc := newTestService(t, fake)
	payment := createTestPayment(t, svc, "1.5")

	if _, err := svc.VerifyPayment(context.Background(), payment.ID, testTxHash); !errors.Is(err, ErrIncorrectReceiver) {
		t.Fatalf("want ErrIncorrectReceiver got %v", err)
	}
	if fake.receiptCalls != 0 {
		t.Fatalf("receipt should not be queried after receiver rejection, got %d calls", fake.receiptCalls)
	}
}

func TestVerifyPaymentUnknownPayment(t *testing.T) {
	svc := newTestService(t, &fakeLedgerClient{})
	_, err := svc.VerifyPayment(context.Background(), "ffffffffffffffff", testTxHash)
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("want ErrPaymentNotFound got %v", err)
	}
}

func TestVerifyPaymentIdempotentWhenCompleted(t *testing.T) {
	fake := &fakeLedgerClient{
		tx:      &ledger.Transaction{Hash: testTxHash, To: testReceiver, ValueWei: weiFromEth(t, "1")},
		receipt: &ledger.Receipt{Success: true},
	}
	svc := newTestService(t, fake)
	payment := createTestPayment(t, svc, "1")

	first, err := svc.VerifyPayment(context.Background(), payment.ID, testTxHash)
	if err != nil {
		t.Fatalf("first verify failed: %v", err)
	}
	ledgerCallsAfterFirst := fake.txCalls

	// 重复校验：幂等成功，不再查询账本，记录字段不变
	second, err := svc.VerifyPayment(context.Background(), payment.ID, "0x1111111111111111111111111111111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("second verify failed: %v", err)
	}
	if !second.AlreadyCompleted {
		t.Fatalf("second verify should report already completed")
	}
	if fake.txCalls != ledgerCallsAfterFirst {
		t.Fatalf("completed payment should not hit the ledger again")
	}
	if second.Payment.TxHash != first.Payment.TxHash {
		t.Fatalf("tx_hash must not change, want %s got %s", first.Payment.TxHash, second.Payment.TxHash)
	}
	if !second.Payment.CompletedAt.Equal(*first.Payment.CompletedAt) {
		t.Fatalf("completed_at must not change")
	}
}

func TestVerifyPaymentConcurrentSingleCompletion(t *testing.T) {
	fake := &fakeLedgerClient{
		tx:      &ledger.Transaction{Hash: testTxHash, To: testReceiver, ValueWei: weiFromEth(t, "1")},
		receipt: &ledger.Receipt{Success: true},
	}
	svc := newTestService(t, fake)
	payment := createTestPayment(t, svc, "1")

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	transitions := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.VerifyPayment(context.Background(), payment.ID, testTxHash)
			if err != nil {
				t.Errorf("verify failed: %v", err)
				return
			}
			if !result.AlreadyCompleted {
				mu.Lock()
				transitions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if transitions != 1 {
		t.Fatalf("want exactly 1 transition got %d", transitions)
	}
}

func TestEnqueueVerifyDisabledQueue(t *testing.T) {
	svc := newTestService(t, &fakeLedgerClient{})
	if svc.AsyncVerifyEnabled() {
		t.Fatalf("queue should be disabled in tests")
	}
	if err := svc.EnqueueVerify("id", testTxHash); !errors.Is(err, ErrAsyncVerifyDisabled) {
		t.Fatalf("want ErrAsyncVerifyDisabled got %v", err)
	}
}
