package session

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"

	solrpc "solana-token-sale/internal/solana"
)

// resubscribeDelay bounds how often a dropped subscription is retried.
const resubscribeDelay = time.Second

// Watch reconciles on every change to the sale record and, if interval is
// positive, on every tick. Before a sale exists the signer's own record
// address is watched so that initialization is picked up. Watch returns
// when ctx is done.
func (c *Controller) Watch(ctx context.Context, interval time.Duration) error {
	if c.ws == nil && interval <= 0 {
		return ErrNothingToWatch
	}

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var (
		target  solana.PublicKey
		notify  <-chan solrpc.AccountNotification
		cancel  context.CancelFunc = func() {}
		retryAt time.Time
	)
	defer func() { cancel() }()

	for {
		if c.ws != nil {
			next := c.watchTarget()
			if next != target || (notify == nil && !next.IsZero() && !time.Now().Before(retryAt)) {
				cancel()
				notify, cancel = c.subscribe(ctx, next)
				target = next
				if notify == nil {
					retryAt = time.Now().Add(resubscribeDelay)
				}
			}
		}

		var retry <-chan time.Time
		if notify == nil && tick == nil {
			retry = time.After(resubscribeDelay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notify:
			if !ok {
				c.log.WithField("account", target.String()).Warn("account subscription closed")
				notify = nil
				retryAt = time.Now().Add(resubscribeDelay)
				continue
			}
			c.log.WithField("slot", n.Slot).Debug("sale account changed")
		case <-tick:
		case <-retry:
			continue
		}

		if err := c.Reconcile(ctx); err != nil {
			c.log.WithError(err).Warn("reconcile failed")
		}
	}
}

// watchTarget is the sale record in the snapshot, else the attached signer's
// own record address, else zero.
func (c *Controller) watchTarget() solana.PublicKey {
	st := c.State()
	if st.Snapshot != nil {
		return st.Snapshot.Address
	}
	if !st.Attached() {
		return solana.PublicKey{}
	}
	own, err := c.deriver.SaleRecord(st.Signer)
	if err != nil {
		return solana.PublicKey{}
	}
	return own.Address
}

func (c *Controller) subscribe(ctx context.Context, account solana.PublicKey) (<-chan solrpc.AccountNotification, context.CancelFunc) {
	if account.IsZero() {
		return nil, func() {}
	}

	subCtx, cancel := context.WithCancel(ctx)
	ch, err := c.ws.SubscribeAccount(subCtx, account.String())
	if err != nil {
		cancel()
		c.log.WithError(err).WithField("account", account.String()).Warn("account subscription failed")
		return nil, func() {}
	}
	c.log.WithField("account", account.String()).Debug("watching account")
	return ch, cancel
}
