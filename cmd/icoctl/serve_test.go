package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-sale/internal/discovery"
	"solana-token-sale/internal/domain"
	"solana-token-sale/internal/eligibility"
	"solana-token-sale/internal/ledger/stub"
	"solana-token-sale/internal/observability"
	"solana-token-sale/internal/pda"
	"solana-token-sale/internal/session"
)

func testState() session.State {
	admin := solana.NewWallet().PublicKey()
	return session.State{
		Phase:  session.PhaseBuyer,
		Signer: solana.NewWallet().PublicKey(),
		Role:   domain.RoleBuyer,
		Snapshot: domain.NewSaleSnapshot(domain.SaleRecord{
			Address:     solana.NewWallet().PublicKey(),
			Admin:       admin,
			TotalSupply: 2000,
			Sold:        150,
			TokenPrice:  1_000_000,
		}, nil),
		Holding:       domain.Holding{Exists: true, Whole: 40},
		Purchased:     50,
		NativeBalance: 2_500_000_000,
		LastError:     errors.New("node unavailable"),
	}
}

func TestStatusResponse(t *testing.T) {
	st := testState()
	resp := statusResponse(st, 90*time.Second)

	assert.Equal(t, "running", resp.Status)
	assert.Equal(t, "1m30s", resp.Uptime)
	assert.Equal(t, "BUYER", resp.Phase)
	assert.Equal(t, "BUYER", resp.Role)
	assert.Equal(t, st.Signer.String(), resp.Signer)
	assert.Equal(t, uint64(40), resp.Holding)
	assert.Equal(t, uint64(50), resp.Purchased)
	assert.Equal(t, "node unavailable", resp.LastError)
	require.NotNil(t, resp.Sale)
	assert.Equal(t, uint64(1850), resp.Sale.Remaining)
	assert.Empty(t, resp.Sale.Competing)

	detached := statusResponse(session.State{Phase: session.PhaseDisconnected}, 0)
	assert.Empty(t, detached.Signer)
	assert.Nil(t, detached.Sale)
}

func TestStatusServer_Routes(t *testing.T) {
	srv := &statusServer{started: time.Now()}
	h := srv.routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type slotFunc func(ctx context.Context) (int64, error)

func (f slotFunc) GetSlot(ctx context.Context) (int64, error) { return f(ctx) }

func TestStatusServer_HealthChecksNode(t *testing.T) {
	var nodeErr error
	srv := &statusServer{
		node: slotFunc(func(context.Context) (int64, error) {
			return 42, nodeErr
		}),
		started: time.Now(),
		log:     observability.NopLogger(),
	}
	h := srv.routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	nodeErr = errors.New("connection refused")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "rpc unavailable")
}

func TestStartReadOnly_ToleratesLedgerOutage(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	program := stub.NewProgram(programID, mint)
	deriver := pda.NewDeriver(programID, mint)
	log := observability.NopLogger()

	ctrl, err := session.New(session.Options{
		Query:     program,
		Submitter: noSubmitter{},
		Discovery: discovery.NewService(program, deriver, discovery.WithLogger(log)),
		Engine:    eligibility.NewEngine(eligibility.Config{PricePerToken: decimal.NewFromInt(1_000_000), MaxUserTotal: 2000}),
		Deriver:   deriver,
		Logger:    log,
	})
	require.NoError(t, err)

	program.SetQueryError(errors.New("node unavailable"))
	require.NoError(t, startReadOnly(context.Background(), ctrl, log))

	st := ctrl.State()
	assert.Nil(t, st.Snapshot)
	require.Error(t, st.LastError)
	assert.Contains(t, st.LastError.Error(), "node unavailable")
}

func TestStatusResponse_JSON(t *testing.T) {
	data, err := json.Marshal(statusResponse(testState(), time.Second))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(2_500_000_000), decoded["balance_lamports"])
	sale, ok := decoded["sale"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2000), sale["total_supply"])
}

func TestPrintSession(t *testing.T) {
	engine := eligibility.NewEngine(eligibility.Config{
		PricePerToken: decimal.NewFromInt(1_000_000),
		MaxUserTotal:  2000,
	})

	var buf bytes.Buffer
	printSession(&buf, testState(), engine)
	out := buf.String()

	assert.Contains(t, out, "Phase:       BUYER")
	assert.Contains(t, out, "Balance:     2.5 SOL")
	assert.Contains(t, out, "Allowance:   1950 tokens")
	assert.Contains(t, out, "Remaining:   1850 tokens")
	assert.Contains(t, out, "Price:       0.001 SOL per token")
	assert.Contains(t, out, "Warning:     node unavailable")

	buf.Reset()
	printSale(&buf, nil)
	assert.Equal(t, "No sale found.\n", buf.String())
}

func TestParseAmount(t *testing.T) {
	amount, err := parseAmount("150")
	require.NoError(t, err)
	assert.Equal(t, int64(150), amount)

	amount, err = parseAmount("-3")
	require.NoError(t, err)
	assert.Equal(t, int64(-3), amount)

	_, err = parseAmount("ten")
	assert.Error(t, err)
}
