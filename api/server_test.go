package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wagerbook/config"
	"wagerbook/models"
	"wagerbook/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	server     *Server
	cfg        *config.Config
	users      *mockUserService
	wagers     *mockWagerService
	wallet     *mockWalletService
	reconciler *mockReconciler
	disputes   *mockMediator
}

func newTestServer() *testServer {
	gin.SetMode(gin.TestMode)
	ts := &testServer{
		cfg:        config.NewTestConfig(),
		users:      new(mockUserService),
		wagers:     new(mockWagerService),
		wallet:     new(mockWalletService),
		reconciler: new(mockReconciler),
		disputes:   new(mockMediator),
	}
	ts.server = NewServer(ts.cfg, Services{
		Users:      ts.users,
		Wagers:     ts.wagers,
		Wallet:     ts.wallet,
		Reconciler: ts.reconciler,
		Disputes:   ts.disputes,
	})
	return ts
}

type requestOption func(*http.Request)

func asUser(id int64) requestOption {
	return func(r *http.Request) { r.Header.Set(HeaderUserID, fmt.Sprint(id)) }
}

func withHeader(key, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func (ts *testServer) do(method, path string, body any, opts ...requestOption) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestFiatWebhook(t *testing.T) {
	payload := []byte(`{"event":"charge.success","data":{"reference":"ref-1","amount":"12.50","currency":"USD","recipient":"ACCT_platform","sender":"ACCT_alice"}}`)

	t.Run("valid signature is applied", func(t *testing.T) {
		ts := newTestServer()
		ts.reconciler.On("ApplyFiatEvent", mock.Anything, mock.MatchedBy(func(e models.FiatEvent) bool {
			return e.Event == models.FiatEventChargeSuccess &&
				e.Data.Reference == "ref-1" &&
				e.Data.Amount.Equal(decimal.RequireFromString("12.5"))
		})).Return(nil)

		w := ts.do(http.MethodPost, "/v1/webhooks/fiat", payload, withHeader(HeaderSignature, SignWebhook("test-secret", payload)))

		assert.Equal(t, http.StatusOK, w.Code)
		ts.reconciler.AssertExpectations(t)
	})

	t.Run("bad signature is dropped silently", func(t *testing.T) {
		ts := newTestServer()

		w := ts.do(http.MethodPost, "/v1/webhooks/fiat", payload, withHeader(HeaderSignature, SignWebhook("wrong-secret", payload)))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ignored", decodeBody(t, w)["status"])
		ts.reconciler.AssertNotCalled(t, "ApplyFiatEvent", mock.Anything, mock.Anything)
	})

	t.Run("missing signature is dropped silently", func(t *testing.T) {
		ts := newTestServer()

		w := ts.do(http.MethodPost, "/v1/webhooks/fiat", payload)

		assert.Equal(t, http.StatusOK, w.Code)
		ts.reconciler.AssertNotCalled(t, "ApplyFiatEvent", mock.Anything, mock.Anything)
	})

	t.Run("transient failure asks for redelivery", func(t *testing.T) {
		ts := newTestServer()
		ts.reconciler.On("ApplyFiatEvent", mock.Anything, mock.Anything).Return(fmt.Errorf("db: %w", service.ErrRailUnavailable))

		w := ts.do(http.MethodPost, "/v1/webhooks/fiat", payload, withHeader(HeaderSignature, SignWebhook("test-secret", payload)))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("business rejection is acknowledged", func(t *testing.T) {
		ts := newTestServer()
		ts.reconciler.On("ApplyFiatEvent", mock.Anything, mock.Anything).Return(service.ErrInvalidRequest)

		w := ts.do(http.MethodPost, "/v1/webhooks/fiat", payload, withHeader(HeaderSignature, SignWebhook("test-secret", payload)))

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestWithdraw(t *testing.T) {
	body := map[string]any{"rail": "FIAT", "amount": 2500, "destination": "ACCT_alice"}

	t.Run("requires idempotency key", func(t *testing.T) {
		ts := newTestServer()

		w := ts.do(http.MethodPost, "/v1/wallet/withdrawals", body, asUser(10))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		ts.wallet.AssertNotCalled(t, "Withdraw", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("starts withdrawal", func(t *testing.T) {
		ts := newTestServer()
		expected := service.WithdrawalRequest{Rail: models.RailFiat, Amount: 2500, Destination: "ACCT_alice", IdempotencyKey: "k1"}
		ts.wallet.On("Withdraw", mock.Anything, int64(10), expected).Return(&service.WithdrawalOutcome{
			Transaction: &models.Transaction{ID: 5, Amount: 2500, Rail: models.RailFiat, Status: models.TransactionStatusPending, CreatedAt: time.Now()},
		}, nil)

		w := ts.do(http.MethodPost, "/v1/wallet/withdrawals", body, asUser(10), withHeader(HeaderIdempotencyKey, "k1"))

		assert.Equal(t, http.StatusAccepted, w.Code)
		resp := decodeBody(t, w)
		assert.Equal(t, "pending", resp["status"])
		assert.Equal(t, float64(5), resp["transaction"].(map[string]any)["id"])
	})

	t.Run("duplicate key reports processing", func(t *testing.T) {
		ts := newTestServer()
		ts.wallet.On("Withdraw", mock.Anything, int64(10), mock.Anything).Return(&service.WithdrawalOutcome{Duplicate: true}, nil)

		w := ts.do(http.MethodPost, "/v1/wallet/withdrawals", body, asUser(10), withHeader(HeaderIdempotencyKey, "k1"))

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "processing", decodeBody(t, w)["status"])
	})

	t.Run("wallet rail rejected by validation", func(t *testing.T) {
		ts := newTestServer()
		invalid := map[string]any{"rail": "WALLET", "amount": 2500, "destination": "x"}

		w := ts.do(http.MethodPost, "/v1/wallet/withdrawals", invalid, asUser(10), withHeader(HeaderIdempotencyKey, "k1"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "oneof", decodeBody(t, w)["fields"].(map[string]any)["Rail"])
	})

	t.Run("insufficient balance is a conflict", func(t *testing.T) {
		ts := newTestServer()
		ts.wallet.On("Withdraw", mock.Anything, int64(10), mock.Anything).Return(nil, service.ErrInsufficientBalance)

		w := ts.do(http.MethodPost, "/v1/wallet/withdrawals", body, asUser(10), withHeader(HeaderIdempotencyKey, "k1"))

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "conflict", decodeBody(t, w)["kind"])
	})
}

func TestWalletReads(t *testing.T) {
	ts := newTestServer()
	ts.wallet.On("Balance", mock.Anything, int64(10)).Return(&models.User{ID: 10, Balance: 4200}, nil)
	ts.wallet.On("History", mock.Anything, int64(10), 20).Return([]*models.Transaction{
		{ID: 1, Amount: 100, Kind: models.TransactionKindDeposit, Status: models.TransactionStatusSuccess},
	}, nil)

	w := ts.do(http.MethodGet, "/v1/wallet/balance", nil, asUser(10))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(4200), decodeBody(t, w)["balance"])

	w = ts.do(http.MethodGet, "/v1/wallet/transactions?limit=20", nil, asUser(10))
	require.Equal(t, http.StatusOK, w.Code)
	var history []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Len(t, history, 1)

	w = ts.do(http.MethodGet, "/v1/wallet/transactions?limit=abc", nil, asUser(10))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeposit(t *testing.T) {
	ts := newTestServer()
	ts.wallet.On("Deposit", mock.Anything, int64(10), mock.MatchedBy(func(r service.DepositRequest) bool {
		return r.Rail == models.RailCrypto && r.Amount.Equal(decimal.RequireFromString("12.5")) && r.Reference == "0xabc"
	})).Return(&models.Transaction{ID: 77, Status: models.TransactionStatusPending}, nil)

	w := ts.do(http.MethodPost, "/v1/wallet/deposits", map[string]any{
		"rail": "CRYPTO", "amount": "12.5", "reference": "0xabc", "source": "0xALICE",
	}, asUser(10))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, float64(77), decodeBody(t, w)["id"])
}

func TestUserAuth(t *testing.T) {
	ts := newTestServer()

	for _, header := range []string{"", "abc", "-4"} {
		w := ts.do(http.MethodGet, "/v1/wallet/balance", nil, withHeader(HeaderUserID, header))
		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
	}
}

func TestWagerRoutes(t *testing.T) {
	playerTwo := int64(11)
	active := &models.Wager{ID: 3, PlayerOne: 10, PlayerTwo: &playerTwo, Stake: 1000, Amount: 2000, Status: models.WagerStatusActive, InviteCode: "ABCD1234"}

	t.Run("create", func(t *testing.T) {
		ts := newTestServer()
		ts.wagers.On("Create", mock.Anything, int64(10), service.CreateWagerRequest{Stake: 1000, Category: "chess"}).
			Return(&models.Wager{ID: 3, PlayerOne: 10, Stake: 1000, Amount: 2000, Category: "chess", Status: models.WagerStatusPending}, nil)

		w := ts.do(http.MethodPost, "/v1/wagers", map[string]any{"stake": 1000, "category": "chess"}, asUser(10))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "PENDING", decodeBody(t, w)["status"])
	})

	t.Run("create without stake", func(t *testing.T) {
		ts := newTestServer()

		w := ts.do(http.MethodPost, "/v1/wagers", map[string]any{"category": "chess"}, asUser(10))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("status mapping", func(t *testing.T) {
		tests := []struct {
			path   string
			method string
			err    error
			status int
		}{
			{"/v1/wagers/3/claim", "Claim", service.ErrForbidden, http.StatusForbidden},
			{"/v1/wagers/3/accept", "AcceptClaim", service.ErrAlreadySettled, http.StatusConflict},
			{"/v1/wagers/3/contest", "ContestClaim", fmt.Errorf("assign: %w", service.ErrNoEligibleAdmin), http.StatusConflict},
			{"/v1/wagers/3/join", "Join", service.ErrNotFound, http.StatusNotFound},
			{"/v1/wagers/3/claim", "Claim", fmt.Errorf("connection refused"), http.StatusInternalServerError},
		}

		for _, tt := range tests {
			t.Run(tt.method+" "+tt.err.Error(), func(t *testing.T) {
				ts := newTestServer()
				ts.wagers.On(tt.method, mock.Anything, int64(11), int64(3)).Return(nil, tt.err)

				w := ts.do(http.MethodPost, tt.path, nil, asUser(11))

				assert.Equal(t, tt.status, w.Code)
			})
		}
	})

	t.Run("internal errors are not echoed", func(t *testing.T) {
		ts := newTestServer()
		ts.wagers.On("Get", mock.Anything, int64(3)).Return(nil, fmt.Errorf("pq: password authentication failed"))

		w := ts.do(http.MethodGet, "/v1/wagers/3", nil, asUser(10))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "internal error", decodeBody(t, w)["error"])
	})

	t.Run("claim", func(t *testing.T) {
		ts := newTestServer()
		claimed := *active
		claimed.Winner = &playerTwo
		ts.wagers.On("Claim", mock.Anything, int64(11), int64(3)).Return(&claimed, nil)

		w := ts.do(http.MethodPost, "/v1/wagers/3/claim", nil, asUser(11))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(11), decodeBody(t, w)["winner"])
	})

	t.Run("join by invite", func(t *testing.T) {
		ts := newTestServer()
		ts.wagers.On("JoinByInvite", mock.Anything, int64(11), "abcd1234").Return(active, nil)

		w := ts.do(http.MethodPost, "/v1/wagers/invite/abcd1234/join", nil, asUser(11))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("delete", func(t *testing.T) {
		ts := newTestServer()
		ts.wagers.On("Delete", mock.Anything, int64(10), int64(3)).Return(nil)

		w := ts.do(http.MethodDelete, "/v1/wagers/3", nil, asUser(10))

		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		ts := newTestServer()

		w := ts.do(http.MethodGet, "/v1/wagers/zero", nil, asUser(10))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAdminRoutes(t *testing.T) {
	t.Run("resolve requires admin key", func(t *testing.T) {
		ts := newTestServer()

		w := ts.do(http.MethodPost, "/v1/admin/wagers/3/resolve", map[string]any{"winner": "alice"})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		ts.wagers.AssertNotCalled(t, "ResolveDispute", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("resolve", func(t *testing.T) {
		ts := newTestServer()
		ts.wagers.On("ResolveDispute", mock.Anything, int64(3), "alice").
			Return(&models.Wager{ID: 3, Status: models.WagerStatusSettled}, nil)

		w := ts.do(http.MethodPost, "/v1/admin/wagers/3/resolve", map[string]any{"winner": "alice"}, withHeader(HeaderAdminKey, "test-admin-key"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "SETTLED", decodeBody(t, w)["status"])
	})

	t.Run("unknown winner", func(t *testing.T) {
		ts := newTestServer()
		ts.wagers.On("ResolveDispute", mock.Anything, int64(3), "mallory").Return(nil, service.ErrInvalidUsername)

		w := ts.do(http.MethodPost, "/v1/admin/wagers/3/resolve", map[string]any{"winner": "mallory"}, withHeader(HeaderAdminKey, "test-admin-key"))

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("system message", func(t *testing.T) {
		ts := newTestServer()
		ts.disputes.On("PostMessage", mock.Anything, int64(8), (*int64)(nil), "Please upload evidence").
			Return(&models.DisputeMessage{ID: 1, ChatID: 8, Body: "Please upload evidence"}, nil)

		w := ts.do(http.MethodPost, "/v1/admin/disputes/8/messages", map[string]any{"body": "Please upload evidence"}, withHeader(HeaderAdminKey, "test-admin-key"))

		assert.Equal(t, http.StatusCreated, w.Code)
	})
}

func TestDisputeMessage(t *testing.T) {
	ts := newTestServer()
	ts.disputes.On("PostMessage", mock.Anything, int64(8), mock.MatchedBy(func(id *int64) bool {
		return id != nil && *id == 10
	}), "I won fair and square").Return(&models.DisputeMessage{ID: 2, ChatID: 8, Body: "I won fair and square"}, nil)

	w := ts.do(http.MethodPost, "/v1/disputes/8/messages", map[string]any{"body": "I won fair and square"}, asUser(10))

	assert.Equal(t, http.StatusCreated, w.Code)
	ts.disputes.AssertExpectations(t)
}

func TestRegisterUser(t *testing.T) {
	ts := newTestServer()
	ts.users.On("Register", mock.Anything, mock.MatchedBy(func(r service.RegisterUserRequest) bool {
		return r.Username == "alice"
	})).Return(&models.User{ID: 10, Username: "alice"}, nil)

	w := ts.do(http.MethodPost, "/v1/users", map[string]any{"username": "alice", "email": "alice@example.com"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(http.MethodPost, "/v1/users", map[string]any{"username": "a!", "email": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignWebhook(t *testing.T) {
	body := []byte(`{"event":"transfer.success"}`)
	signature := SignWebhook("s3cret", body)

	assert.Len(t, signature, 128)
	assert.True(t, validSignature("s3cret", body, signature))
	assert.False(t, validSignature("s3cret", append(body, ' '), signature))
	assert.False(t, validSignature("", body, signature))
	assert.False(t, validSignature("s3cret", body, "zz"))
}
