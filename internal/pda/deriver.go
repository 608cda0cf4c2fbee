package pda

import (
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"

	"solana-token-sale/internal/domain"
)

// Seed labels shared with the sale program.
const (
	// SaleRecordSeed prefixes the per-owner sale record: ["data", owner].
	SaleRecordSeed = "data"

	// SaleVaultSeed prefixes the vault: [label, mint]. The deployed program uses no
	// label, and an empty seed does not change the hash.
	SaleVaultSeed = ""
)

// Derived is a program address and the bump that produced it.
type Derived struct {
	Address solana.PublicKey
	Bump    uint8
}

// Deriver computes the sale's addresses for one program and mint.
// Results are memoised; the cache never changes a result, only skips the search.
type Deriver struct {
	programID solana.PublicKey
	mint      solana.PublicKey

	mu    sync.RWMutex
	cache map[cacheKey]Derived
}

type cacheKey struct {
	label string
	key   solana.PublicKey
}

// NewDeriver creates a Deriver for the given program and mint.
func NewDeriver(programID, mint solana.PublicKey) *Deriver {
	return &Deriver{
		programID: programID,
		mint:      mint,
		cache:     make(map[cacheKey]Derived),
	}
}

// ProgramID returns the program the addresses belong to.
func (d *Deriver) ProgramID() solana.PublicKey { return d.programID }

// Mint returns the sale token mint.
func (d *Deriver) Mint() solana.PublicKey { return d.mint }

// SaleVault derives the program-owned token account holding unsold tokens.
func (d *Deriver) SaleVault() (Derived, error) {
	derived, err := d.derive(SaleVaultSeed, d.mint)
	if err != nil {
		return Derived{}, fmt.Errorf("derive sale vault: %w", err)
	}
	return derived, nil
}

// SaleRecord derives the sale record created by owner.
func (d *Deriver) SaleRecord(owner solana.PublicKey) (Derived, error) {
	derived, err := d.derive(SaleRecordSeed, owner)
	if err != nil {
		return Derived{}, fmt.Errorf("derive sale record for %s: %w", owner, err)
	}
	return derived, nil
}

// UserTokenAccount returns owner's associated token account for the sale mint.
// The derivation belongs to the associated token account program.
func (d *Deriver) UserTokenAccount(owner solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, d.mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive token account for %s: %w", owner, err)
	}
	return ata, nil
}

// Addresses derives every address an action needs. admin identifies the sale
// (its record is derived from the admin key); user is the acting signer.
func (d *Deriver) Addresses(admin, user solana.PublicKey) (domain.DerivedAddresses, error) {
	vault, err := d.SaleVault()
	if err != nil {
		return domain.DerivedAddresses{}, err
	}
	record, err := d.SaleRecord(admin)
	if err != nil {
		return domain.DerivedAddresses{}, err
	}
	userATA, err := d.UserTokenAccount(user)
	if err != nil {
		return domain.DerivedAddresses{}, err
	}

	return domain.DerivedAddresses{
		ProgramID:        d.programID,
		Mint:             d.mint,
		SaleVault:        vault.Address,
		SaleVaultBump:    vault.Bump,
		SaleAdmin:        admin,
		SaleRecord:       record.Address,
		SaleRecordBump:   record.Bump,
		User:             user,
		UserTokenAccount: userATA,
	}, nil
}

func (d *Deriver) derive(label string, key solana.PublicKey) (Derived, error) {
	ck := cacheKey{label: label, key: key}

	d.mu.RLock()
	cached, ok := d.cache[ck]
	d.mu.RUnlock()
	if ok {
		return cached, nil
	}

	seeds := make([][]byte, 0, 2)
	if label != "" {
		seeds = append(seeds, []byte(label))
	}
	seeds = append(seeds, key.Bytes())

	addr, bump, err := FindProgramAddress(d.programID, seeds...)
	if err != nil {
		return Derived{}, err
	}

	derived := Derived{Address: addr, Bump: bump}
	d.mu.Lock()
	d.cache[ck] = derived
	d.mu.Unlock()
	return derived, nil
}
