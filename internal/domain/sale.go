package domain

import (
	"sort"

	"github.com/gagliardetto/solana-go"
)

// UserPurchase is one entry of a sale record's per-buyer ledger.
type UserPurchase struct {
	Owner  solana.PublicKey
	Amount uint64 // whole tokens bought over the buyer's lifetime
}

// SaleRecord is the external program's persisted sale account, as decoded from chain.
type SaleRecord struct {
	Address     solana.PublicKey // address of the record account
	Admin       solana.PublicKey // account that created the sale
	TotalSupply uint64           // whole tokens allocated to the sale
	Sold        uint64           // whole tokens sold so far
	TokenPrice  uint64           // lamports per whole token, as recorded by the program
	Purchases   []UserPurchase   // sorted by owner
}

// SaleSnapshot is the controller's view of the current sale.
// It is replaced wholesale on every refresh and never mutated in place.
type SaleSnapshot struct {
	SaleRecord

	// CompetingSales lists other sale records observed during discovery.
	// Non-empty means more than one sale exists for the program.
	CompetingSales []solana.PublicKey
}

// NewSaleSnapshot builds a snapshot from a record. The purchase ledger is copied
// and sorted so that repeated refreshes of the same state compare equal.
func NewSaleSnapshot(rec SaleRecord, competing []solana.PublicKey) *SaleSnapshot {
	purchases := make([]UserPurchase, len(rec.Purchases))
	copy(purchases, rec.Purchases)
	SortPurchases(purchases)
	rec.Purchases = purchases

	var others []solana.PublicKey
	if len(competing) > 0 {
		others = make([]solana.PublicKey, len(competing))
		copy(others, competing)
		SortKeys(others)
	}

	return &SaleSnapshot{SaleRecord: rec, CompetingSales: others}
}

// Remaining returns TotalSupply - Sold, or zero if the record is inconsistent.
func (s *SaleSnapshot) Remaining() uint64 {
	if s == nil || s.Sold >= s.TotalSupply {
		return 0
	}
	return s.TotalSupply - s.Sold
}

// PurchasedBy returns the lifetime purchases recorded for owner.
func (r SaleRecord) PurchasedBy(owner solana.PublicKey) uint64 {
	for _, p := range r.Purchases {
		if p.Owner.Equals(owner) {
			return p.Amount
		}
	}
	return 0
}

// SortPurchases orders purchases by owner key bytes.
func SortPurchases(p []UserPurchase) {
	sort.Slice(p, func(i, j int) bool {
		return lessKey(p[i].Owner, p[j].Owner)
	})
}

// SortSaleRecords orders records by address.
func SortSaleRecords(r []SaleRecord) {
	sort.Slice(r, func(i, j int) bool {
		return lessKey(r[i].Address, r[j].Address)
	})
}

// SortKeys orders public keys by their bytes.
func SortKeys(keys []solana.PublicKey) {
	sort.Slice(keys, func(i, j int) bool {
		return lessKey(keys[i], keys[j])
	})
}

func lessKey(a, b solana.PublicKey) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
