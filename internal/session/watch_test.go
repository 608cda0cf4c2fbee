package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-sale/internal/composer"
	"solana-token-sale/internal/eligibility"
	solrpc "solana-token-sale/internal/solana"
)

// fakeWS hands out one channel per account subscription.
type fakeWS struct {
	mu   sync.Mutex
	subs map[string]chan solrpc.AccountNotification
}

func newFakeWS() *fakeWS {
	return &fakeWS{subs: make(map[string]chan solrpc.AccountNotification)}
}

func (w *fakeWS) SubscribeSignature(context.Context, string) (<-chan solrpc.SignatureNotification, error) {
	return nil, errors.New("not supported")
}

func (w *fakeWS) SubscribeAccount(ctx context.Context, pubkey string) (<-chan solrpc.AccountNotification, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(chan solrpc.AccountNotification, 1)
	w.subs[pubkey] = ch
	go func() {
		<-ctx.Done()
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.subs[pubkey] == ch {
			delete(w.subs, pubkey)
		}
	}()
	return ch, nil
}

func (w *fakeWS) Close() error { return nil }

func (w *fakeWS) subscribed(account solana.PublicKey) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.subs[account.String()]
	return ok
}

func (w *fakeWS) notify(account solana.PublicKey, slot uint64) {
	w.mu.Lock()
	ch := w.subs[account.String()]
	w.mu.Unlock()
	ch <- solrpc.AccountNotification{Pubkey: account.String(), Slot: slot}
}

func TestWatch_NothingToWatch(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t)
	assert.ErrorIs(t, c.Watch(context.Background(), 0), ErrNothingToWatch)
}

func TestWatch_ReconcilesOnAccountChange(t *testing.T) {
	f := newFixture(t)
	f.initializedSale(t, 2000)
	f.ws = newFakeWS()
	c := f.controller(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Attach(ctx, f.buyer))
	sale := c.State().Snapshot.Address

	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx, 0) }()
	require.Eventually(t, func() bool { return f.ws.subscribed(sale) }, time.Second, 5*time.Millisecond)

	// Another buyer purchases outside this session.
	other := solana.NewWallet().PublicKey()
	f.program.Fund(other, 1_000_000_000)
	a, err := f.deriver.Addresses(f.admin, other)
	require.NoError(t, err)
	intents, err := composer.BuildPurchase(&eligibility.ValidatedPurchase{Signer: other, Amount: 25}, a, false)
	require.NoError(t, err)
	_, err = f.program.Submit(ctx, intents, other)
	require.NoError(t, err)

	f.ws.notify(sale, 42)
	require.Eventually(t, func() bool { return c.State().Snapshot.Sold == 25 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatch_FollowsInitialization(t *testing.T) {
	f := newFixture(t)
	f.ws = newFakeWS()
	c := f.controller(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Attach(ctx, f.admin))
	require.Equal(t, PhaseAdministratorNoSale, c.State().Phase)

	own, err := f.deriver.SaleRecord(f.admin)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx, 0) }()
	require.Eventually(t, func() bool { return f.ws.subscribed(own.Address) }, time.Second, 5*time.Millisecond)

	// The sale is created from another client holding the same key.
	f.initializedSale(t, 2000)
	f.ws.notify(own.Address, 7)

	require.Eventually(t, func() bool {
		return c.State().Phase == PhaseAdministratorWithSale
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestWatch_PollsOnInterval(t *testing.T) {
	f := newFixture(t)
	f.initializedSale(t, 2000)
	c := f.controller(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))

	go func() { _ = c.Watch(ctx, 10*time.Millisecond) }()

	other := solana.NewWallet().PublicKey()
	f.program.Fund(other, 1_000_000_000)
	a, err := f.deriver.Addresses(f.admin, other)
	require.NoError(t, err)
	intents, err := composer.BuildPurchase(&eligibility.ValidatedPurchase{Signer: other, Amount: 3}, a, false)
	require.NoError(t, err)
	_, err = f.program.Submit(ctx, intents, other)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return c.State().Snapshot.Sold == 3 }, time.Second, 5*time.Millisecond)
}
