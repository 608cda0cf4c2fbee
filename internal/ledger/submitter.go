package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"solana-token-sale/internal/composer"
	"solana-token-sale/internal/domain"
	solrpc "solana-token-sale/internal/solana"
)

const (
	defaultConfirmTimeout = 60 * time.Second
	defaultPollInterval   = 500 * time.Millisecond
)

// WalletSubmitter signs with a local keypair and submits through RPC.
// Confirmation uses signatureSubscribe when a WebSocket client is configured,
// with getSignatureStatuses polling alongside it.
type WalletSubmitter struct {
	rpc solrpc.RPCClient
	ws  solrpc.WSClient
	key solana.PrivateKey
	log logrus.FieldLogger

	commitment     solrpc.Commitment
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

// SubmitterOption configures a WalletSubmitter.
type SubmitterOption func(*WalletSubmitter)

// WithWebSocket enables signature subscriptions for confirmation.
func WithWebSocket(ws solrpc.WSClient) SubmitterOption {
	return func(s *WalletSubmitter) {
		s.ws = ws
	}
}

// WithSubmitterLogger sets the logger.
func WithSubmitterLogger(log logrus.FieldLogger) SubmitterOption {
	return func(s *WalletSubmitter) {
		s.log = log
	}
}

// WithConfirmation sets the commitment to wait for and how long to wait.
func WithConfirmation(c solrpc.Commitment, timeout time.Duration) SubmitterOption {
	return func(s *WalletSubmitter) {
		s.commitment = c
		s.confirmTimeout = timeout
	}
}

// WithPollInterval sets the getSignatureStatuses polling interval.
func WithPollInterval(d time.Duration) SubmitterOption {
	return func(s *WalletSubmitter) {
		s.pollInterval = d
	}
}

// NewWalletSubmitter creates a submitter signing with key.
func NewWalletSubmitter(rpc solrpc.RPCClient, key solana.PrivateKey, opts ...SubmitterOption) *WalletSubmitter {
	s := &WalletSubmitter{
		rpc:            rpc,
		key:            key,
		log:            logrus.StandardLogger().WithField("type", "ledger/submitter"),
		commitment:     solrpc.CommitmentConfirmed,
		confirmTimeout: defaultConfirmTimeout,
		pollInterval:   defaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Submitter = (*WalletSubmitter)(nil)

// PublicKey returns the wallet identity.
func (s *WalletSubmitter) PublicKey() solana.PublicKey {
	return s.key.PublicKey()
}

// Submit builds one transaction from intents, signs it, sends it once and
// waits for confirmation.
func (s *WalletSubmitter) Submit(ctx context.Context, intents []composer.OperationIntent, signer solana.PublicKey) (*domain.Receipt, error) {
	if len(intents) == 0 {
		return nil, ErrNoIntents
	}
	wallet := s.key.PublicKey()
	if !signer.Equals(wallet) {
		return nil, fmt.Errorf("%w: %s", ErrSignerMismatch, signer)
	}

	log := s.log.WithFields(logrus.Fields{
		"method":  "Submit",
		"signer":  signer.String(),
		"intents": len(intents),
	})

	raw, sig, err := s.sign(ctx, intents, wallet)
	if err != nil {
		return nil, err
	}

	sent, err := s.rpc.SendTransaction(ctx, raw)
	if err != nil {
		subErr := &SubmissionError{Err: err}
		var rpcErr *solrpc.RPCError
		if errors.As(err, &rpcErr) {
			subErr.Logs = rpcErr.Logs()
		}
		log.WithError(err).Warn("transaction rejected")
		return nil, subErr
	}
	if sent != "" && sent != sig.String() {
		log.WithField("returned", sent).Warn("node returned unexpected signature")
		if parsed, perr := solana.SignatureFromBase58(sent); perr == nil {
			sig = parsed
		}
	}

	log = log.WithField("signature", sig.String())
	log.Debug("transaction sent")

	status, err := s.await(ctx, sig.String())
	if err != nil {
		log.WithError(err).Warn("transaction not confirmed")
		return nil, &SubmissionError{Signature: sig.String(), Err: err}
	}
	if status.Err != nil {
		subErr := &SubmissionError{
			Signature: sig.String(),
			Err:       fmt.Errorf("%w: %v", ErrTransactionFailed, status.Err),
			Logs:      s.fetchLogs(ctx, sig.String()),
		}
		log.WithError(subErr.Err).Warn("transaction failed")
		return nil, subErr
	}

	log.WithField("slot", status.Slot).Info("transaction confirmed")
	return &domain.Receipt{
		Signature:          sig,
		Slot:               status.Slot,
		ConfirmationStatus: status.ConfirmationStatus,
	}, nil
}

func (s *WalletSubmitter) sign(ctx context.Context, intents []composer.OperationIntent, payer solana.PublicKey) ([]byte, solana.Signature, error) {
	bh, err := s.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	hash, err := solana.HashFromBase58(bh.Hash)
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("parse blockhash %q: %w", bh.Hash, err)
	}

	tx, err := solana.NewTransaction(composer.Instructions(intents), hash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer) {
			return &s.key
		}
		return nil
	})
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("serialize transaction: %w", err)
	}
	return raw, tx.Signatures[0], nil
}

// await waits for the signature to reach the configured commitment.
func (s *WalletSubmitter) await(ctx context.Context, signature string) (*solrpc.SignatureStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	var notifications <-chan solrpc.SignatureNotification
	if s.ws != nil {
		ch, err := s.ws.SubscribeSignature(ctx, signature)
		if err != nil {
			s.log.WithError(err).WithField("signature", signature).Warn("signature subscription failed, polling")
		} else {
			notifications = ch
		}
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if status, err := s.poll(ctx, signature); err != nil {
			s.log.WithError(err).WithField("signature", signature).Debug("status poll failed")
		} else if status != nil {
			return status, nil
		}

		select {
		case n, ok := <-notifications:
			if !ok {
				notifications = nil
				continue
			}
			return &solrpc.SignatureStatus{
				Slot:               n.Slot,
				Err:                n.Err,
				ConfirmationStatus: string(s.commitment),
			}, nil
		case <-ticker.C:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w after %s", ErrConfirmationTimeout, s.confirmTimeout)
			}
			return nil, ctx.Err()
		}
	}
}

// poll returns the status once it reached the commitment or failed, nil otherwise.
func (s *WalletSubmitter) poll(ctx context.Context, signature string) (*solrpc.SignatureStatus, error) {
	statuses, err := s.rpc.GetSignatureStatuses(ctx, signature)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return nil, nil
	}
	st := statuses[0]
	if st.Err != nil || st.Reached(s.commitment) {
		return st, nil
	}
	return nil, nil
}

// fetchLogs returns program logs of a landed transaction, best effort.
func (s *WalletSubmitter) fetchLogs(ctx context.Context, signature string) []string {
	tx, err := s.rpc.GetTransaction(ctx, signature)
	if err != nil || tx == nil || tx.Meta == nil {
		return nil
	}
	return tx.Meta.LogMessages
}
