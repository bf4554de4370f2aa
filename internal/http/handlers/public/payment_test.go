package public

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chainpay-next/internal/config"
	"github.com/chainpay-next/internal/constants"
	"github.com/chainpay-next/internal/http/response"
	"github.com/chainpay-next/internal/ledger"
	"github.com/chainpay-next/internal/models"
	"github.com/chainpay-next/internal/provider"
	"github.com/chainpay-next/internal/queue"
	"github.com/chainpay-next/internal/repository"
	"github.com/chainpay-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const (
	testReceiver = "0x52908400098527886E0F7030069857D2E4169EE7"
	testTxHash   = "0xabcdef1234567890abcdef1234567890abcdef1234567890abcdef1234567890"
)

type stubLedgerClient struct {
	tx      *ledger.Transaction
	receipt *ledger.Receipt
	err     error
}

func (s *stubLedgerClient) GetTransaction(ctx context.Context, txHash string) (*ledger.Transaction, error) {
	return s.tx, s.err
}

func (s *stubLedgerClient) GetTransactionReceipt(ctx context.Context, txHash string) (*ledger.Receipt, error) {
	return s.receipt, s.err
}

func setupPaymentHandlerTest(t *testing.T, stub *stubLedgerClient) (*gin.Engine, *service.PaymentService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	queueClient, err := queue.NewClient(nil)
	if err != nil {
		t.Fatalf("new queue client failed: %v", err)
	}
	svc := service.NewPaymentService(
		repository.NewMemoryPaymentRepository(),
		stub,
		queueClient,
		config.LedgerConfig{ReceiverAddress: testReceiver, RequestTimeoutMS: 2000},
		config.PaymentConfig{},
	)
	h := New(&provider.Container{PaymentService: svc})

	r := gin.New()
	r.POST("/api/v1/payments", h.CreatePayment)
	r.GET("/api/v1/payments/:id", h.GetPayment)
	r.POST("/api/v1/payments/:id/verify", h.VerifyPayment)
	return r, svc
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) response.Response {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("http status want 200 got %d", w.Code)
	}
	var resp response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	return resp
}

func dataField(t *testing.T, resp response.Response, key string) interface{} {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data should be an object, got %T", resp.Data)
	}
	return data[key]
}

func ethWei(t *testing.T, amount string) *big.Int {
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

func createPendingPayment(t *testing.T, svc *service.PaymentService, amount string) *models.Payment {
	t.Helper()
	d, err := decimal.NewFromString(amount)
	if err != nil {
		t.Fatalf("parse amount failed: %v", err)
	}
	payment, err := svc.CreatePayment(service.CreatePaymentInput{Amount: d, Description: "handler test"})
	if err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	return payment
}

func TestCreatePaymentHandler(t *testing.T) {
	r, _ := setupPaymentHandlerTest(t, &stubLedgerClient{})

	resp := doJSON(t, r, http.MethodPost, "/api/v1/payments", `{"amount":"1.5","description":"vps"}`)
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("status_code want 0 got %d (msg=%s)", resp.StatusCode, resp.Msg)
	}
	if got := dataField(t, resp, "amount_wei"); got != "1500000000000000000" {
		t.Fatalf("amount_wei want 1500000000000000000 got %v", got)
	}
	if got := dataField(t, resp, "status"); got != constants.PaymentStatusPending {
		t.Fatalf("status want pending got %v", got)
	}
	id, _ := dataField(t, resp, "id").(string)
	if len(id) != 16 {
		t.Fatalf("id length want 16 got %d (%s)", len(id), id)
	}

	// 数字形式的金额同样接受
	resp = doJSON(t, r, http.MethodPost, "/api/v1/payments", `{"amount":0.25}`)
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("numeric amount should succeed, got code %d", resp.StatusCode)
	}
	if got := dataField(t, resp, "amount_wei"); got != "250000000000000000" {
		t.Fatalf("amount_wei want 250000000000000000 got %v", got)
	}
}

func TestCreatePaymentHandlerInvalidAmount(t *testing.T) {
	r, _ := setupPaymentHandlerTest(t, &stubLedgerClient{})

	for _, body := range []string{`{"amount":"0"}`, `{"amount":"-3"}`, `{}`} {
		resp := doJSON(t, r, http.MethodPost, "/api/v1/payments", body)
		if resp.StatusCode != response.CodeBadRequest {
			t.Fatalf("body %s want code 400 got %d", body, resp.StatusCode)
		}
	}
}

func TestGetPaymentHandler(t *testing.T) {
	r, svc := setupPaymentHandlerTest(t, &stubLedgerClient{})
	payment := createPendingPayment(t, svc, "2")

	resp := doJSON(t, r, http.MethodGet, "/api/v1/payments/"+payment.ID, "")
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("status_code want 0 got %d", resp.StatusCode)
	}
	if got := dataField(t, resp, "id"); got != payment.ID {
		t.Fatalf("id want %s got %v", payment.ID, got)
	}

	resp = doJSON(t, r, http.MethodGet, "/api/v1/payments/ffffffffffffffff", "")
	if resp.StatusCode != response.CodeNotFound {
		t.Fatalf("unknown id want code 404 got %d", resp.StatusCode)
	}
	if got := dataField(t, resp, "reason"); got != constants.ReasonPaymentNotFound {
		t.Fatalf("reason want %s got %v", constants.ReasonPaymentNotFound, got)
	}
}

func TestVerifyPaymentHandlerSuccess(t *testing.T) {
	stub := &stubLedgerClient{
		tx:      &ledger.Transaction{Hash: testTxHash, To: testReceiver, ValueWei: ethWei(t, "1.5")},
		receipt: &ledger.Receipt{Success: true},
	}
	r, svc := setupPaymentHandlerTest(t, stub)
	payment := createPendingPayment(t, svc, "1.5")

	body := fmt.Sprintf(`{"tx_hash":%q}`, testTxHash)
	resp := doJSON(t, r, http.MethodPost, "/api/v1/payments/"+payment.ID+"/verify", body)
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("status_code want 0 got %d (msg=%s)", resp.StatusCode, resp.Msg)
	}
	if got := dataField(t, resp, "already_completed"); got != false {
		t.Fatalf("already_completed want false got %v", got)
	}
	inner, ok := dataField(t, resp, "payment").(map[string]interface{})
	if !ok {
		t.Fatalf("payment field should be an object")
	}
	if inner["status"] != constants.PaymentStatusCompleted {
		t.Fatalf("status want completed got %v", inner["status"])
	}
	if inner["tx_hash"] != testTxHash {
		t.Fatalf("tx_hash want %s got %v", testTxHash, inner["tx_hash"])
	}

	// 幂等：重复提交返回已完成
	resp = doJSON(t, r, http.MethodPost, "/api/v1/payments/"+payment.ID+"/verify", body)
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("repeat verify want code 0 got %d", resp.StatusCode)
	}
	if got := dataField(t, resp, "already_completed"); got != true {
		t.Fatalf("already_completed want true got %v", got)
	}
}

func TestVerifyPaymentHandlerRejections(t *testing.T) {
	cases := []struct {
		name       string
		stub       *stubLedgerClient
		wantCode   int
		wantReason string
	}{
		{
			name:       "transaction_not_found",
			stub:       &stubLedgerClient{},
			wantCode:   response.CodeBadRequest,
			wantReason: constants.ReasonTransactionNotFound,
		},
		{
			name: "incorrect_receiver",
			stub: &stubLedgerClient{
				tx: &ledger.Transaction{Hash: testTxHash, To: "0x0000000000000000000000000000000000000001", ValueWei: ethWei(t, "1.5")},
			},
			wantCode:   response.CodeBadRequest,
			wantReason: constants.ReasonIncorrectReceiver,
		},
		{
			name: "insufficient_amount",
			stub: &stubLedgerClient{
				tx: &ledger.Transaction{Hash: testTxHash, To: testReceiver, ValueWei: ethWei(t, "1")},
			},
			wantCode:   response.CodeBadRequest,
			wantReason: constants.ReasonInsufficientAmount,
		},
		{
			name: "transaction_failed",
			stub: &stubLedgerClient{
				tx:      &ledger.Transaction{Hash: testTxHash, To: testReceiver, ValueWei: ethWei(t, "1.5")},
				receipt: &ledger.Receipt{Success: false},
			},
			wantCode:   response.CodeBadRequest,
			wantReason: constants.ReasonTransactionFailed,
		},
		{
			name:       "ledger_unavailable",
			stub:       &stubLedgerClient{err: fmt.Errorf("connection refused")},
			wantCode:   response.CodeUpstream,
			wantReason: constants.ReasonLedgerUnavailable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, svc := setupPaymentHandlerTest(t, tc.stub)
			payment := createPendingPayment(t, svc, "1.5")

			body := fmt.Sprintf(`{"tx_hash":%q}`, testTxHash)
			resp := doJSON(t, r, http.MethodPost, "/api/v1/payments/"+payment.ID+"/verify", body)
			if resp.StatusCode != tc.wantCode {
				t.Fatalf("status_code want %d got %d", tc.wantCode, resp.StatusCode)
			}
			if got := dataField(t, resp, "reason"); got != tc.wantReason {
				t.Fatalf("reason want %s got %v", tc.wantReason, got)
			}
		})
	}
}

func TestVerifyPaymentHandlerValidation(t *testing.T) {
	r, svc := setupPaymentHandlerTest(t, &stubLedgerClient{})
	payment := createPendingPayment(t, svc, "1")

	// tx_hash 必填
	resp := doJSON(t, r, http.MethodPost, "/api/v1/payments/"+payment.ID+"/verify", `{}`)
	if resp.StatusCode != response.CodeBadRequest {
		t.Fatalf("missing tx_hash want code 400 got %d", resp.StatusCode)
	}

	// 未知记录
	resp = doJSON(t, r, http.MethodPost, "/api/v1/payments/ffffffffffffffff/verify", fmt.Sprintf(`{"tx_hash":%q}`, testTxHash))
	if resp.StatusCode != response.CodeNotFound {
		t.Fatalf("unknown payment want code 404 got %d", resp.StatusCode)
	}
}

func TestVerifyPaymentHandlerAsyncDisabled(t *testing.T) {
	r, svc := setupPaymentHandlerTest(t, &stubLedgerClient{})
	payment := createPendingPayment(t, svc, "1")

	body := fmt.Sprintf(`{"tx_hash":%q,"async":true}`, testTxHash)
	resp := doJSON(t, r, http.MethodPost, "/api/v1/payments/"+payment.ID+"/verify", body)
	if resp.StatusCode != response.CodeBadRequest {
		t.Fatalf("async with disabled queue want code 400 got %d", resp.StatusCode)
	}
	if resp.Msg != "async verify disabled" {
		t.Fatalf("msg want 'async verify disabled' got %q", resp.Msg)
	}
}
