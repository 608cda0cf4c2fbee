package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"solana-token-sale/internal/composer"
	"solana-token-sale/internal/discovery"
	"solana-token-sale/internal/domain"
	"solana-token-sale/internal/eligibility"
	"solana-token-sale/internal/idhash"
	"solana-token-sale/internal/ledger"
	"solana-token-sale/internal/observability"
	"solana-token-sale/internal/pda"
	solrpc "solana-token-sale/internal/solana"
	"solana-token-sale/internal/storage"
)

// Options for creating a Controller.
type Options struct {
	// Required
	Query     ledger.Query
	Submitter ledger.Submitter
	Discovery *discovery.Service
	Engine    *eligibility.Engine
	Deriver   *pda.Deriver

	// Optional persistence
	Journal storage.ActionJournal
	History storage.SnapshotHistoryStore

	// Optional account subscriptions for Watch
	WS solrpc.WSClient

	Metrics *observability.Metrics
	Logger  logrus.FieldLogger
	Now     func() time.Time
}

// Controller owns the session state. It is the only writer; every update
// replaces the state under the lock and is published to subscribers.
type Controller struct {
	query     ledger.Query
	submitter ledger.Submitter
	discovery *discovery.Service
	engine    *eligibility.Engine
	deriver   *pda.Deriver
	journal   storage.ActionJournal
	history   storage.SnapshotHistoryStore
	ws        solrpc.WSClient
	metrics   *observability.Metrics
	log       logrus.FieldLogger
	now       func() time.Time

	mu      sync.Mutex
	state   State
	gen     uint64 // bumped on attach and detach; refreshes for another signer are dropped
	seq     uint64 // last refresh started
	applied uint64 // last refresh applied; older results are dropped
	subs    map[int]chan State
	nextSub int
}

// New creates a Controller in the Disconnected phase.
func New(opts Options) (*Controller, error) {
	if opts.Query == nil || opts.Submitter == nil || opts.Discovery == nil || opts.Engine == nil || opts.Deriver == nil {
		return nil, errors.New("session: query, submitter, discovery, engine and deriver are required")
	}

	c := &Controller{
		query:     opts.Query,
		submitter: opts.Submitter,
		discovery: opts.Discovery,
		engine:    opts.Engine,
		deriver:   opts.Deriver,
		journal:   opts.Journal,
		history:   opts.History,
		ws:        opts.WS,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		now:       opts.Now,
		state:     State{Phase: PhaseDisconnected},
		subs:      make(map[int]chan State),
	}
	if c.log == nil {
		c.log = logrus.StandardLogger().WithField("type", "session/controller")
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns a channel receiving every replacement state. Slow readers
// only see the latest state. Call the returned func to unsubscribe.
func (c *Controller) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan State, 1)
	ch <- c.state
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
}

// Start loads the sale snapshot without a signer.
func (c *Controller) Start(ctx context.Context) error {
	seq := c.nextRefresh()
	snapshot, err := c.discovery.RefreshSaleSnapshot(ctx)

	c.mu.Lock()
	if !c.claimRefreshLocked(seq) {
		c.mu.Unlock()
		return err
	}
	c.state.Snapshot = snapshot
	c.state.LastError = err
	c.publishLocked()
	c.mu.Unlock()

	c.observeSale(ctx, snapshot)
	return err
}

// Attach sets the signer and runs role discovery.
func (c *Controller) Attach(ctx context.Context, signer solana.PublicKey) error {
	if signer.IsZero() {
		return ErrNoSigner
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	prev := c.state
	c.state = State{
		Phase:    PhaseDiscovering,
		Signer:   signer,
		Snapshot: prev.Snapshot,
	}
	c.publishLocked()
	c.mu.Unlock()

	c.log.WithField("signer", signer.String()).Info("signer attached")
	return c.refresh(ctx, signer, gen)
}

// Detach clears the signer. The sale snapshot is kept for read-only display.
func (c *Controller) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	prev := c.state
	c.state = State{Phase: PhaseDisconnected, Snapshot: prev.Snapshot}
	c.publishLocked()

	if prev.Attached() {
		c.log.WithField("signer", prev.Signer.String()).Info("signer detached")
	}
}

// Reconcile re-reads the sale and, when attached, the signer's role and balances.
func (c *Controller) Reconcile(ctx context.Context) error {
	c.mu.Lock()
	signer, gen := c.state.Signer, c.gen
	c.mu.Unlock()

	if signer.IsZero() {
		return c.Start(ctx)
	}
	return c.refresh(ctx, signer, gen)
}

// Buy validates and submits a purchase of amount whole tokens.
func (c *Controller) Buy(ctx context.Context, amount int64) (*domain.Receipt, error) {
	st, release, err := c.begin(State.CanBuy)
	if err != nil {
		return nil, err
	}
	defer release()

	// Read fresh: the token account decides whether create-ATA is prepended.
	holding, err := c.discovery.FetchUserHolding(ctx, st.Signer)
	if err != nil {
		return nil, c.abort(domain.ActionPurchase, err)
	}
	balance, err := c.query.GetNativeBalance(ctx, st.Signer)
	if err != nil {
		return nil, c.abort(domain.ActionPurchase, &discovery.SoftQueryError{Op: "get native balance", Err: err})
	}
	st.Holding, st.NativeBalance = holding, balance
	c.update(func(s *State) {
		s.Holding, s.NativeBalance = holding, balance
	})

	intent := domain.PurchaseIntent{
		RequestedAmount:    amount,
		Signer:             st.Signer,
		CurrentUserHolding: st.CapHolding(),
	}
	validated, err := c.engine.ValidatePurchase(intent, st.Snapshot, st.NativeBalance)
	if err != nil {
		return nil, c.reject(domain.ActionPurchase, err)
	}

	addresses, err := c.deriver.Addresses(st.Snapshot.Admin, st.Signer)
	if err != nil {
		return nil, c.abort(domain.ActionPurchase, fmt.Errorf("derive addresses: %w", err))
	}
	intents, err := composer.BuildPurchase(validated, addresses, st.Holding.Exists)
	if err != nil {
		return nil, c.abort(domain.ActionPurchase, err)
	}

	return c.submit(ctx, st, domain.ActionPurchase, validated.Amount, intents)
}

// InitializeSale creates the sale with amount whole tokens from the signer.
func (c *Controller) InitializeSale(ctx context.Context, amount int64) (*domain.Receipt, error) {
	st, release, err := c.begin(State.CanInitialize)
	if err != nil {
		return nil, err
	}
	defer release()

	tokens, err := c.engine.ValidateAmount(amount)
	if err != nil {
		return nil, c.reject(domain.ActionInitialization, err)
	}

	addresses, err := c.deriver.Addresses(st.Signer, st.Signer)
	if err != nil {
		return nil, c.abort(domain.ActionInitialization, fmt.Errorf("derive addresses: %w", err))
	}
	intents, err := composer.BuildSaleInitialization(tokens, addresses)
	if err != nil {
		return nil, c.abort(domain.ActionInitialization, err)
	}

	return c.submit(ctx, st, domain.ActionInitialization, tokens, intents)
}

// Deposit adds amount whole tokens to the signer's sale.
func (c *Controller) Deposit(ctx context.Context, amount int64) (*domain.Receipt, error) {
	st, release, err := c.begin(State.CanDeposit)
	if err != nil {
		return nil, err
	}
	defer release()

	tokens, err := c.engine.ValidateAmount(amount)
	if err != nil {
		return nil, c.reject(domain.ActionDeposit, err)
	}

	addresses, err := c.deriver.Addresses(st.Snapshot.Admin, st.Signer)
	if err != nil {
		return nil, c.abort(domain.ActionDeposit, fmt.Errorf("derive addresses: %w", err))
	}
	intents, err := composer.BuildDeposit(tokens, addresses)
	if err != nil {
		return nil, c.abort(domain.ActionDeposit, err)
	}

	return c.submit(ctx, st, domain.ActionDeposit, tokens, intents)
}

// begin claims the single action slot if a signer is attached and allowed
// permits the action in the current state.
func (c *Controller) begin(allowed func(State) bool) (State, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Attached() {
		return State{}, nil, ErrNoSigner
	}
	if c.state.Loading {
		return State{}, nil, ErrActionInFlight
	}
	if !allowed(c.state) {
		return State{}, nil, fmt.Errorf("%w: %s", ErrActionNotAllowed, c.state.Phase)
	}

	c.state.Loading = true
	c.state.LastError = nil
	c.publishLocked()

	release := func() {
		c.update(func(s *State) { s.Loading = false })
	}
	return c.state, release, nil
}

// reject records a pre-validation failure. Nothing has been submitted.
func (c *Controller) reject(kind domain.ActionKind, err error) error {
	if rej, ok := eligibility.AsRejection(err); ok && c.metrics != nil {
		c.metrics.RecordRejection(string(rej.Kind))
	}
	if c.metrics != nil {
		c.metrics.RecordAction(string(kind), observability.OutcomeRejected)
	}
	c.log.WithError(err).WithField("kind", kind).Info("action rejected")
	c.update(func(s *State) { s.LastError = err })
	return err
}

// abort records a failure to build the action. Nothing has been submitted.
func (c *Controller) abort(kind domain.ActionKind, err error) error {
	c.log.WithError(err).WithField("kind", kind).Warn("action aborted")
	c.update(func(s *State) { s.LastError = err })
	return err
}

// submit journals, submits once, and reconciles whatever the outcome.
func (c *Controller) submit(ctx context.Context, st State, kind domain.ActionKind, amount uint64, intents []composer.OperationIntent) (*domain.Receipt, error) {
	start := c.now()
	log := c.log.WithFields(logrus.Fields{
		"kind":   kind,
		"signer": st.Signer.String(),
		"amount": amount,
	})

	actionID := idhash.ComputeActionID(
		c.deriver.ProgramID().String(),
		c.deriver.Mint().String(),
		kind,
		st.Signer.String(),
		amount,
		requestID(ctx, start),
	)
	if err := c.beginJournal(ctx, actionID, kind, st.Signer, amount, start); err != nil {
		return nil, c.abort(kind, err)
	}

	receipt, err := c.submitter.Submit(ctx, intents, st.Signer)

	outcome := observability.OutcomeConfirmed
	if err != nil {
		outcome = observability.OutcomeFailed
		log.WithError(err).Warn("action failed")
	} else {
		log.WithField("signature", receipt.Signature.String()).Info("action confirmed")
	}
	c.finishJournal(ctx, actionID, receipt, err)
	if c.metrics != nil {
		c.metrics.RecordAction(string(kind), outcome)
		c.metrics.RecordActionDuration(string(kind), c.now().Sub(start))
	}

	c.update(func(s *State) {
		s.LastError = err
		if receipt != nil {
			s.LastReceipt = receipt
		}
	})

	if rerr := c.Reconcile(context.WithoutCancel(ctx)); rerr != nil {
		log.WithError(rerr).Warn("reconcile after action failed")
	}
	if err != nil {
		c.update(func(s *State) { s.LastError = err })
	}
	return receipt, err
}

func (c *Controller) beginJournal(ctx context.Context, actionID string, kind domain.ActionKind, signer solana.PublicKey, amount uint64, at time.Time) error {
	if c.journal == nil {
		return nil
	}
	err := c.journal.Begin(ctx, &domain.ActionRecord{
		ActionID:  actionID,
		Kind:      kind,
		Signer:    signer.String(),
		Amount:    amount,
		Status:    domain.ActionStatusPending,
		CreatedAt: at.UnixMilli(),
		UpdatedAt: at.UnixMilli(),
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		return ErrDuplicateRequest
	}
	if err != nil {
		return fmt.Errorf("journal action: %w", err)
	}
	return nil
}

func (c *Controller) finishJournal(ctx context.Context, actionID string, receipt *domain.Receipt, submitErr error) {
	if c.journal == nil {
		return
	}

	status := domain.ActionStatusConfirmed
	var signature, errText *string
	if receipt != nil {
		sig := receipt.Signature.String()
		signature = &sig
	}
	if submitErr != nil {
		status = domain.ActionStatusFailed
		text := submitErr.Error()
		errText = &text
		if se, ok := ledger.AsSubmissionError(submitErr); ok && se.Signature != "" {
			signature = &se.Signature
		}
	}

	err := c.journal.Finish(context.WithoutCancel(ctx), actionID, status, signature, errText, c.now().UnixMilli())
	if err != nil {
		c.log.WithError(err).WithField("action_id", actionID).Warn("failed to finish journal entry")
	}
}

// refresh re-runs discovery for signer and applies the result unless an
// attach, detach or later refresh happened meanwhile.
func (c *Controller) refresh(ctx context.Context, signer solana.PublicKey, gen uint64) error {
	log := c.log.WithField("signer", signer.String())
	seq := c.nextRefresh()

	role, roleErr := c.discovery.RefreshRole(ctx, signer)
	if roleErr != nil && role.Role == domain.RoleUnknown {
		// Nothing was learned about the role; keep the phase and role as they are.
		c.mu.Lock()
		if c.gen == gen && c.claimRefreshLocked(seq) {
			c.state.LastError = roleErr
			c.publishLocked()
		}
		c.mu.Unlock()
		log.WithError(roleErr).Warn("role discovery incomplete")
		return roleErr
	}

	holding, holdingErr := c.discovery.FetchUserHolding(ctx, signer)
	balance, balanceErr := c.query.GetNativeBalance(ctx, signer)
	err := errors.Join(roleErr, holdingErr, balanceErr)
	if err != nil {
		log.WithError(err).Warn("refresh incomplete")
	}

	c.mu.Lock()
	if c.gen != gen || !c.claimRefreshLocked(seq) {
		c.mu.Unlock()
		log.Debug("dropping stale refresh")
		return err
	}
	prev := c.state
	next := prev
	next.Role = role.Role
	next.Snapshot = role.Snapshot
	next.Phase = phaseFor(role.Role, role.Snapshot)
	next.Purchased = discovery.UserPurchased(role.Snapshot, signer)
	if holdingErr == nil {
		next.Holding = holding
	}
	if balanceErr == nil {
		next.NativeBalance = balance
	}
	if err != nil {
		next.LastError = err
	}
	c.state = next
	c.publishLocked()
	c.mu.Unlock()

	if next.Phase != prev.Phase {
		log.WithFields(logrus.Fields{"from": prev.Phase, "to": next.Phase}).Info("phase changed")
		if c.metrics != nil {
			c.metrics.RecordPhase(next.Phase.String())
		}
	}
	c.observeSale(ctx, next.Snapshot)
	return err
}

// nextRefresh numbers a refresh in start order.
func (c *Controller) nextRefresh() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// claimRefreshLocked reports whether the refresh numbered seq is newer than
// the last one applied, and marks it applied.
func (c *Controller) claimRefreshLocked(seq uint64) bool {
	if seq <= c.applied {
		return false
	}
	c.applied = seq
	return true
}

// observeSale updates gauges and appends the snapshot to history.
func (c *Controller) observeSale(ctx context.Context, snapshot *domain.SaleSnapshot) {
	now := c.now()
	if c.metrics != nil {
		c.metrics.RecordReconcile(now)
		if snapshot != nil {
			c.metrics.UpdateSale(snapshot.TotalSupply, snapshot.Sold)
		}
	}
	if c.history == nil || snapshot == nil {
		return
	}

	err := c.history.Append(ctx, &domain.SnapshotObservation{
		SaleAddress: snapshot.Address.String(),
		Admin:       snapshot.Admin.String(),
		TotalSupply: snapshot.TotalSupply,
		Sold:        snapshot.Sold,
		ObservedAt:  now.UnixMilli(),
	})
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		c.log.WithError(err).Warn("failed to append snapshot history")
	}
}

// update applies fn to a copy of the state and publishes it.
func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.state
	fn(&next)
	c.state = next
	c.publishLocked()
}

// publishLocked sends the current state to subscribers, replacing any unread state.
func (c *Controller) publishLocked() {
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- c.state
	}
}

type requestIDKey struct{}

// WithRequestID tags ctx with a caller-chosen request id. Submitting the same
// action twice under one id is refused when a journal is configured.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context, at time.Time) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return strconv.FormatInt(at.UnixNano(), 10)
}
