package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"solana-token-sale/internal/composer"
	"solana-token-sale/internal/discovery"
	"solana-token-sale/internal/domain"
	"solana-token-sale/internal/observability"
	"solana-token-sale/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch the sale and serve /health, /metrics and /status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := newApp(ctx, appOptions{
			withStores: true,
			withWS:     true,
			metrics:    observability.DefaultMetrics,
		})
		if err != nil {
			return err
		}
		defer a.Close()

		var ctrl *session.Controller
		if cfg.KeypairPath != "" {
			ctrl, err = a.attach(ctx)
		} else {
			ctrl, err = a.controller(noSubmitter{})
			if err == nil {
				err = startReadOnly(ctx, ctrl, logger.WithField("type", "icoctl/serve"))
			}
		}
		if err != nil {
			return err
		}

		srv := &statusServer{
			ctrl:    ctrl,
			node:    a.rpc,
			started: time.Now(),
			log:     logger.WithField("type", "icoctl/serve"),
		}
		httpSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: srv.routes()}
		go func() {
			srv.log.WithField("addr", cfg.MetricsAddr).Info("starting HTTP server")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srv.log.WithError(err).Error("HTTP server error")
				cancel()
			}
		}()

		err = ctrl.Watch(ctx, cfg.PollInterval)

		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = httpSrv.Shutdown(shutdownCtx)

		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		srv.log.Info("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().Duration("poll-interval", 0, "reconcile interval")
	serveCmd.Flags().String("metrics-addr", "", "HTTP listen address")
	_ = v.BindPFlag("poll_interval", serveCmd.Flags().Lookup("poll-interval"))
	_ = v.BindPFlag("metrics_addr", serveCmd.Flags().Lookup("metrics-addr"))
}

// noSubmitter backs a read-only session without a keypair.
type noSubmitter struct{}

func (noSubmitter) Submit(context.Context, []composer.OperationIntent, solana.PublicKey) (*domain.Receipt, error) {
	return nil, session.ErrNoSigner
}

// startReadOnly loads the initial sale snapshot. A failed ledger read is
// logged and left to the watch loop to retry.
func startReadOnly(ctx context.Context, ctrl *session.Controller, log logrus.FieldLogger) error {
	err := ctrl.Start(ctx)
	var soft *discovery.SoftQueryError
	if errors.As(err, &soft) {
		log.WithError(err).Warn("initial sale refresh failed, retrying on next poll")
		return nil
	}
	return err
}

// slotReader reports the node's current slot.
type slotReader interface {
	GetSlot(ctx context.Context) (int64, error)
}

const healthTimeout = 3 * time.Second

type statusServer struct {
	ctrl    *session.Controller
	node    slotReader
	started time.Time
	log     logrus.FieldLogger
}

func (s *statusServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status    string        `json:"status"`
	Uptime    string        `json:"uptime"`
	Phase     string        `json:"phase"`
	Signer    string        `json:"signer,omitempty"`
	Role      string        `json:"role"`
	Holding   uint64        `json:"holding"`
	Purchased uint64        `json:"purchased"`
	Balance   uint64        `json:"balance_lamports"`
	Sale      *SaleResponse `json:"sale,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

// SaleResponse describes the adopted sale.
type SaleResponse struct {
	Address   string   `json:"address"`
	Admin     string   `json:"admin"`
	Total     uint64   `json:"total_supply"`
	Sold      uint64   `json:"sold"`
	Remaining uint64   `json:"remaining"`
	Competing []string `json:"competing,omitempty"`
}

func statusResponse(st session.State, uptime time.Duration) StatusResponse {
	resp := StatusResponse{
		Status:    "running",
		Uptime:    uptime.Round(time.Second).String(),
		Phase:     st.Phase.String(),
		Role:      st.Role.String(),
		Holding:   st.Holding.Whole,
		Purchased: st.Purchased,
		Balance:   st.NativeBalance,
	}
	if st.Attached() {
		resp.Signer = st.Signer.String()
	}
	if st.LastError != nil {
		resp.LastError = st.LastError.Error()
	}
	if snap := st.Snapshot; snap != nil {
		resp.Sale = &SaleResponse{
			Address:   snap.Address.String(),
			Admin:     snap.Admin.String(),
			Total:     snap.TotalSupply,
			Sold:      snap.Sold,
			Remaining: snap.Remaining(),
		}
		for _, other := range snap.CompetingSales {
			resp.Sale.Competing = append(resp.Sale.Competing, other.String())
		}
	}
	return resp
}

func (s *statusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.node != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if _, err := s.node.GetSlot(ctx); err != nil {
			s.log.WithError(err).Warn("health check: rpc unavailable")
			http.Error(w, "rpc unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *statusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse(s.ctrl.State(), time.Since(s.started))
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.WithError(err).Warn("failed to encode status")
	}
}
