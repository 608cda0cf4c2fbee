package main

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"

	"solana-token-sale/internal/discovery"
	"solana-token-sale/internal/eligibility"
	"solana-token-sale/internal/ledger"
	"solana-token-sale/internal/observability"
	"solana-token-sale/internal/pda"
	"solana-token-sale/internal/session"
	solrpc "solana-token-sale/internal/solana"
	"solana-token-sale/internal/storage"
	chstore "solana-token-sale/internal/storage/clickhouse"
	"solana-token-sale/internal/storage/memory"
	"solana-token-sale/internal/storage/migrations"
	pgstore "solana-token-sale/internal/storage/postgres"
)

// app holds the components shared by every command.
type app struct {
	rpc       *solrpc.HTTPClient
	ws        solrpc.WSClient
	deriver   *pda.Deriver
	query     *ledger.RPCQuery
	discovery *discovery.Service
	engine    *eligibility.Engine
	metrics   *observability.Metrics

	journal storage.ActionJournal
	history storage.SnapshotHistoryStore

	closers []func()
}

type appOptions struct {
	// withStores opens the journal and history stores.
	withStores bool
	// withWS connects the WebSocket endpoint if one is configured.
	withWS bool
	// metrics is shared with the /metrics handler; nil uses a private registry.
	metrics *observability.Metrics
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	if err := cfg.ValidateRead(); err != nil {
		return nil, err
	}

	programID, err := cfg.ProgramKey()
	if err != nil {
		return nil, err
	}
	mint, err := cfg.MintKey()
	if err != nil {
		return nil, err
	}
	expectedAdmin, err := cfg.ExpectedAdminKey()
	if err != nil {
		return nil, err
	}
	commitment, err := cfg.CommitmentLevel()
	if err != nil {
		return nil, err
	}
	limits, err := cfg.Eligibility()
	if err != nil {
		return nil, err
	}

	metrics := opts.metrics
	if metrics == nil {
		metrics = observability.NewMetricsWith(prometheus.NewRegistry(), "")
	}

	a := &app{
		rpc: solrpc.NewHTTPClient(cfg.RPCEndpoint,
			solrpc.WithCommitment(commitment),
			solrpc.WithObserver(metrics.RecordRPCCall)),
		deriver: pda.NewDeriver(programID, mint),
		engine:  eligibility.NewEngine(limits),
		metrics: metrics,
	}
	a.query = ledger.NewRPCQuery(a.rpc, programID,
		ledger.WithQueryLogger(logger.WithField("type", "ledger/query")))

	discoveryOpts := []discovery.Option{
		discovery.WithTokenDecimals(cfg.TokenDecimals),
		discovery.WithMetrics(metrics),
		discovery.WithLogger(logger.WithField("type", "discovery/service")),
	}
	if !expectedAdmin.IsZero() {
		discoveryOpts = append(discoveryOpts, discovery.WithExpectedAdmin(expectedAdmin))
	}
	a.discovery = discovery.NewService(a.query, a.deriver, discoveryOpts...)

	if opts.withWS && cfg.WSEndpoint != "" {
		wsCfg := solrpc.DefaultWSConfig()
		wsCfg.Commitment = commitment
		wsCfg.OnNotification = metrics.RecordWSNotification
		wsCfg.Logger = logger.WithField("type", "solana/ws")
		ws, err := solrpc.NewWSClient(ctx, cfg.WSEndpoint, &wsCfg)
		if err != nil {
			return nil, fmt.Errorf("connect websocket: %w", err)
		}
		a.ws = ws
		a.closers = append(a.closers, func() { _ = ws.Close() })
	}

	if opts.withStores {
		if err := a.openStores(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

// openStores follows use_memory: in-memory stores, or PostgreSQL for the
// journal and ClickHouse for history with migrations applied.
func (a *app) openStores(ctx context.Context) error {
	if cfg.UseMemory {
		a.journal = memory.NewActionJournal()
		a.history = memory.NewSnapshotHistoryStore()
		return nil
	}
	if cfg.PostgresDSN == "" || cfg.ClickhouseDSN == "" {
		return fmt.Errorf("postgres_dsn and clickhouse_dsn are required (use --use-memory for in-memory storage)")
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	if err != nil {
		return fmt.Errorf("clickhouse migrations: %w", err)
	}
	a.closers = append(a.closers, func() { _ = chConn.Close() })

	a.journal = pgstore.NewActionJournal(pool)
	a.history = chstore.NewSnapshotHistoryStore(chConn)
	return nil
}

// wallet loads the configured keypair and a submitter signing with it.
func (a *app) wallet() (*ledger.WalletSubmitter, error) {
	if cfg.KeypairPath == "" {
		return nil, fmt.Errorf("keypair_path is required")
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
	if err != nil {
		return nil, fmt.Errorf("load keypair: %w", err)
	}
	commitment, err := cfg.CommitmentLevel()
	if err != nil {
		return nil, err
	}

	opts := []ledger.SubmitterOption{
		ledger.WithConfirmation(commitment, cfg.ConfirmTimeout),
		ledger.WithSubmitterLogger(logger.WithField("type", "ledger/submitter")),
	}
	if a.ws != nil {
		opts = append(opts, ledger.WithWebSocket(a.ws))
	}
	return ledger.NewWalletSubmitter(a.rpc, key, opts...), nil
}

// controller builds a session controller submitting through submitter.
func (a *app) controller(submitter ledger.Submitter) (*session.Controller, error) {
	opts := session.Options{
		Query:     a.query,
		Submitter: submitter,
		Discovery: a.discovery,
		Engine:    a.engine,
		Deriver:   a.deriver,
		Journal:   a.journal,
		History:   a.history,
		Metrics:   a.metrics,
		Logger:    logger.WithField("type", "session/controller"),
	}
	if a.ws != nil {
		opts.WS = a.ws
	}
	return session.New(opts)
}

// attach builds a controller for the configured keypair and runs discovery.
func (a *app) attach(ctx context.Context) (*session.Controller, error) {
	submitter, err := a.wallet()
	if err != nil {
		return nil, err
	}
	ctrl, err := a.controller(submitter)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Attach(ctx, submitter.PublicKey()); err != nil {
		logger.WithError(err).Warn("discovery incomplete")
		if ctrl.State().Phase == session.PhaseDiscovering {
			return nil, err
		}
	}
	return ctrl, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
