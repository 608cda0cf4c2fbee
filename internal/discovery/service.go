// Package discovery finds the sale on chain and classifies the caller's role.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solana-token-sale/internal/domain"
	"solana-token-sale/internal/icoprogram"
	"solana-token-sale/internal/ledger"
	"solana-token-sale/internal/observability"
	"solana-token-sale/internal/pda"
)

// RoleResult is the outcome of RefreshRole.
type RoleResult struct {
	Role     domain.Role
	Snapshot *domain.SaleSnapshot // nil when no sale exists
}

// Service keeps the current sale snapshot.
type Service struct {
	query   ledger.Query
	deriver *pda.Deriver
	metrics *observability.Metrics
	log     logrus.FieldLogger

	expectedAdmin solana.PublicKey
	decimals      int32

	mu       sync.RWMutex
	snapshot *domain.SaleSnapshot
}

// Option configures a Service.
type Option func(*Service)

// WithExpectedAdmin prefers the sale created by admin when several exist.
func WithExpectedAdmin(admin solana.PublicKey) Option {
	return func(s *Service) {
		s.expectedAdmin = admin
	}
}

// WithTokenDecimals sets the mint decimals used to scale holdings.
func WithTokenDecimals(decimals int32) Option {
	return func(s *Service) {
		s.decimals = decimals
	}
}

// WithMetrics records refresh outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// NewService creates a discovery service.
func NewService(query ledger.Query, deriver *pda.Deriver, opts ...Option) *Service {
	s := &Service{
		query:    query,
		deriver:  deriver,
		decimals: icoprogram.DefaultTokenDecimals,
		log:      logrus.StandardLogger().WithField("type", "discovery/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the last adopted snapshot, nil if no sale was found.
func (s *Service) Snapshot() *domain.SaleSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// RefreshSaleSnapshot lists sale records and adopts one. On a query error the
// prior snapshot is returned with a *SoftQueryError.
func (s *Service) RefreshSaleSnapshot(ctx context.Context) (*domain.SaleSnapshot, error) {
	log := s.log.WithField("method", "RefreshSaleSnapshot")

	records, err := s.query.ListSaleRecords(ctx)
	if err != nil {
		s.record(observability.RefreshSoftError)
		log.WithError(err).Warn("failed to list sale records, keeping prior snapshot")
		return s.Snapshot(), &SoftQueryError{Op: "list sale records", Err: err}
	}

	snapshot := s.choose(records)
	switch {
	case snapshot == nil:
		s.record(observability.RefreshEmpty)
	case len(snapshot.CompetingSales) > 0:
		s.record(observability.RefreshAmbiguous)
		log.WithFields(logrus.Fields{
			"adopted":   snapshot.Address.String(),
			"competing": len(snapshot.CompetingSales),
		}).Warn("multiple sale records found")
	default:
		s.record(observability.RefreshFound)
	}

	s.set(snapshot)
	return snapshot, nil
}

// RefreshRole classifies signer. A record at the signer's own record address
// naming them admin makes them Administrator and becomes the snapshot. Otherwise
// the sale is rediscovered: none means AdministratorCandidate, one means Buyer.
// Failures to read the signer's record are treated as absence. When the sale
// list cannot be read and no snapshot is known, the role stays Unknown.
func (s *Service) RefreshRole(ctx context.Context, signer solana.PublicKey) (RoleResult, error) {
	log := s.log.WithFields(logrus.Fields{
		"method": "RefreshRole",
		"signer": signer.String(),
	})

	own, err := s.deriver.SaleRecord(signer)
	if err != nil {
		return RoleResult{}, fmt.Errorf("derive sale record: %w", err)
	}

	rec, err := s.query.FetchSaleRecord(ctx, own.Address)
	switch {
	case err == nil && rec.Admin.Equals(signer):
		snapshot := domain.NewSaleSnapshot(*rec, s.competingWith(rec.Address))
		s.set(snapshot)
		s.record(observability.RefreshFound)
		return RoleResult{Role: domain.RoleAdministrator, Snapshot: snapshot}, nil
	case err != nil && !errors.Is(err, ledger.ErrAccountNotFound):
		log.WithError(err).Debug("own sale record unreadable, treating as absent")
	}

	snapshot, err := s.RefreshSaleSnapshot(ctx)
	result := RoleResult{Snapshot: snapshot}
	switch {
	case snapshot == nil && err != nil:
		// An unreadable sale list is not an empty one.
		result.Role = domain.RoleUnknown
	case snapshot == nil:
		result.Role = domain.RoleAdministratorCandidate
	case snapshot.Admin.Equals(signer):
		result.Role = domain.RoleAdministrator
	default:
		result.Role = domain.RoleBuyer
	}
	return result, err
}

// FetchUserHolding reads owner's associated token account. A missing account
// is a zero holding.
func (s *Service) FetchUserHolding(ctx context.Context, owner solana.PublicKey) (domain.Holding, error) {
	ata, err := s.deriver.UserTokenAccount(owner)
	if err != nil {
		return domain.Holding{}, fmt.Errorf("derive token account: %w", err)
	}

	holding := domain.Holding{Owner: owner, TokenAccount: ata}
	acc, err := s.query.FetchTokenAccount(ctx, ata)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return holding, nil
	}
	if err != nil {
		return holding, &SoftQueryError{Op: "fetch token account", Err: err}
	}

	holding.Exists = true
	holding.Raw = acc.Amount
	holding.Whole = WholeTokens(acc.Amount, s.decimals)
	return holding, nil
}

// UserPurchased returns owner's lifetime purchases in snapshot.
func UserPurchased(snapshot *domain.SaleSnapshot, owner solana.PublicKey) uint64 {
	if snapshot == nil {
		return 0
	}
	return snapshot.PurchasedBy(owner)
}

// WholeTokens scales raw units down by decimals, truncating.
func WholeTokens(raw uint64, decimals int32) uint64 {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(raw), 0).Shift(-decimals).Floor()
	return d.BigInt().Uint64()
}

// choose applies the adoption policy to records sorted by address: the
// expected admin's record if present, else the first.
func (s *Service) choose(records []domain.SaleRecord) *domain.SaleSnapshot {
	if len(records) == 0 {
		return nil
	}
	sorted := make([]domain.SaleRecord, len(records))
	copy(sorted, records)
	domain.SortSaleRecords(sorted)

	chosen := 0
	if !s.expectedAdmin.IsZero() {
		for i, rec := range sorted {
			if rec.Admin.Equals(s.expectedAdmin) {
				chosen = i
				break
			}
		}
	}

	var competing []solana.PublicKey
	for i, rec := range sorted {
		if i != chosen {
			competing = append(competing, rec.Address)
		}
	}
	return domain.NewSaleSnapshot(sorted[chosen], competing)
}

// competingWith returns the other sale addresses from the current snapshot.
func (s *Service) competingWith(address solana.PublicKey) []solana.PublicKey {
	prior := s.Snapshot()
	if prior == nil {
		return nil
	}
	var out []solana.PublicKey
	if !prior.Address.Equals(address) {
		out = append(out, prior.Address)
	}
	for _, other := range prior.CompetingSales {
		if !other.Equals(address) {
			out = append(out, other)
		}
	}
	return out
}

func (s *Service) set(snapshot *domain.SaleSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot
}

func (s *Service) record(result string) {
	if s.metrics != nil {
		s.metrics.RecordDiscoveryRefresh(result)
	}
}
