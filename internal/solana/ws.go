package solana

import "context"

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeSignature notifies once when signature reaches the client commitment.
	// The channel is closed after the notification or when ctx is done.
	SubscribeSignature(ctx context.Context, signature string) (<-chan SignatureNotification, error)

	// SubscribeAccount notifies on every change to the account until ctx is done.
	SubscribeAccount(ctx context.Context, pubkey string) (<-chan AccountNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureNotification represents a signatureSubscribe message.
type SignatureNotification struct {
	Signature string
	Slot      uint64
	Err       interface{} // nil on success
}

// AccountNotification represents an accountSubscribe message.
type AccountNotification struct {
	Pubkey  string
	Slot    uint64
	Account *AccountInfo // nil if the account was closed
}
