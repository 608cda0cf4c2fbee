// Package stub provides an in-memory sale program implementing ledger.Query and
// ledger.Submitter for tests.
package stub

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/gagliardetto/solana-go"

	"solana-token-sale/internal/composer"
	"solana-token-sale/internal/domain"
	"solana-token-sale/internal/icoprogram"
	"solana-token-sale/internal/ledger"
	"solana-token-sale/internal/pda"
)

// DefaultFee is the lamport fee charged per transaction.
const DefaultFee = 5000

var (
	errAccountInUse          = errors.New("account already in use")
	errAccountNotInitialized = errors.New("AccountNotInitialized: the program expected this account to be already initialized")
	errConstraintSeeds       = errors.New("ConstraintSeeds: a seeds constraint was violated")
	errInsufficientTokens    = errors.New("insufficient funds")
	errInsufficientLamports  = errors.New("insufficient lamports")
	errUnknownProgram        = errors.New("unknown program")
)

// Program is an in-memory sale program with the deployed program's rules:
// per-user cap, supply moved through the vault, and all-or-nothing transactions.
type Program struct {
	mu sync.Mutex

	programID solana.PublicKey
	mint      solana.PublicKey
	deriver   *pda.Deriver
	rawPerTok uint64

	st    state
	fee   uint64
	slot  uint64
	seq   uint64
	count int

	queryErr error
	failNext error
}

type state struct {
	records  map[solana.PublicKey][]byte // encoded sale records
	tokens   map[solana.PublicKey]ledger.TokenAccount
	lamports map[solana.PublicKey]uint64
}

// NewProgram creates an empty program for programID and mint.
func NewProgram(programID, mint solana.PublicKey) *Program {
	return &Program{
		programID: programID,
		mint:      mint,
		deriver:   pda.NewDeriver(programID, mint),
		rawPerTok: pow10(icoprogram.DefaultTokenDecimals),
		st: state{
			records:  make(map[solana.PublicKey][]byte),
			tokens:   make(map[solana.PublicKey]ledger.TokenAccount),
			lamports: make(map[solana.PublicKey]uint64),
		},
		fee:  DefaultFee,
		slot: 1,
	}
}

var (
	_ ledger.Query     = (*Program)(nil)
	_ ledger.Submitter = (*Program)(nil)
)

// Fund credits lamports to owner.
func (p *Program) Fund(owner solana.PublicKey, lamports uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.st.lamports[owner] += lamports
}

// MintTo credits whole tokens to owner's associated token account, creating it if needed.
func (p *Program) MintTo(owner solana.PublicKey, whole uint64) solana.PublicKey {
	p.mu.Lock()
	defer p.mu.Unlock()

	ata, _, err := solana.FindAssociatedTokenAddress(owner, p.mint)
	if err != nil {
		panic(fmt.Sprintf("stub: derive token account: %v", err))
	}
	acc, ok := p.st.tokens[ata]
	if !ok {
		acc = ledger.TokenAccount{Address: ata, Mint: p.mint, Owner: owner}
	}
	acc.Amount += whole * p.rawPerTok
	p.st.tokens[ata] = acc
	return ata
}

// SetFee sets the per-transaction fee.
func (p *Program) SetFee(lamports uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fee = lamports
}

// SetQueryError makes every query fail with err until cleared with nil.
func (p *Program) SetQueryError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queryErr = err
}

// FailNext makes the next submission be rejected by the node with err.
func (p *Program) FailNext(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = err
}

// Submissions returns how many times Submit was called.
func (p *Program) Submissions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Lamports returns the native balance of owner.
func (p *Program) Lamports(owner solana.PublicKey) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st.lamports[owner]
}

// TokenBalance returns the raw token amount in account, zero if absent.
func (p *Program) TokenBalance(account solana.PublicKey) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st.tokens[account].Amount
}

// PutSaleRecord stores a record as is, bypassing program rules.
func (p *Program) PutSaleRecord(rec domain.SaleRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, err := icoprogram.EncodeSaleRecord(rec, icoprogram.SaleRecordSpace)
	if err != nil {
		panic(fmt.Sprintf("stub: encode sale record: %v", err))
	}
	p.st.records[rec.Address] = data
}

// ListSaleRecords implements ledger.Query.
func (p *Program) ListSaleRecords(_ context.Context) ([]domain.SaleRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queryErr != nil {
		return nil, p.queryErr
	}

	records := make([]domain.SaleRecord, 0, len(p.st.records))
	for addr, data := range p.st.records {
		rec, err := icoprogram.DecodeSaleRecord(addr, data)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	domain.SortSaleRecords(records)
	return records, nil
}

// FetchSaleRecord implements ledger.Query.
func (p *Program) FetchSaleRecord(_ context.Context, address solana.PublicKey) (*domain.SaleRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	data, ok := p.st.records[address]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return icoprogram.DecodeSaleRecord(address, data)
}

// FetchTokenAccount implements ledger.Query.
func (p *Program) FetchTokenAccount(_ context.Context, address solana.PublicKey) (*ledger.TokenAccount, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	acc, ok := p.st.tokens[address]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return &acc, nil
}

// GetNativeBalance implements ledger.Query.
func (p *Program) GetNativeBalance(_ context.Context, identity solana.PublicKey) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queryErr != nil {
		return 0, p.queryErr
	}
	return p.st.lamports[identity], nil
}

// Submit implements ledger.Submitter. Intents apply in order against a copy of
// the state; the copy is committed only if every intent succeeds. A failed
// transaction still pays the fee.
func (p *Program) Submit(ctx context.Context, intents []composer.OperationIntent, signer solana.PublicKey) (*domain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++

	if len(intents) == 0 {
		return nil, ledger.ErrNoIntents
	}
	if p.failNext != nil {
		err := p.failNext
		p.failNext = nil
		return nil, &ledger.SubmissionError{Err: err}
	}
	for _, in := range intents {
		for _, s := range in.Signers() {
			if !s.Equals(signer) {
				return nil, fmt.Errorf("%w: intent requires %s", ledger.ErrSignerMismatch, s)
			}
		}
	}
	if p.st.lamports[signer] < p.fee {
		return nil, &ledger.SubmissionError{Err: errors.New("insufficient funds for fee")}
	}

	sig := p.nextSignature()
	p.slot++

	next := p.st.clone()
	next.lamports[signer] -= p.fee

	var logs []string
	for i, in := range intents {
		entry, err := p.apply(&next, in, signer)
		if entry != "" {
			logs = append(logs, entry)
		}
		if err != nil {
			p.st.lamports[signer] -= p.fee
			var perr *icoprogram.ProgramError
			if errors.As(err, &perr) {
				logs = append(logs, icoprogram.CustomErrorLog(in.ProgramID(), perr))
			} else {
				logs = append(logs, fmt.Sprintf("Program %s failed: %v", in.ProgramID(), err))
			}
			return nil, &ledger.SubmissionError{
				Signature: sig.String(),
				Err:       fmt.Errorf("%w: instruction %d: %v", ledger.ErrTransactionFailed, i, err),
				Logs:      logs,
			}
		}
	}

	p.st = next
	return &domain.Receipt{
		Signature:          sig,
		Slot:               p.slot,
		ConfirmationStatus: "confirmed",
	}, nil
}

func (p *Program) apply(st *state, in composer.OperationIntent, signer solana.PublicKey) (string, error) {
	a := in.Addresses
	switch in.ProgramID() {
	case solana.SPLAssociatedTokenAccountProgramID:
		return "Program log: Create", p.createTokenAccount(st, a)
	case p.programID:
	default:
		return "", fmt.Errorf("%w: %s", errUnknownProgram, in.ProgramID())
	}

	data, err := in.Data()
	if err != nil {
		return "", err
	}
	disc, err := icoprogram.InstructionDiscriminator(data)
	if err != nil {
		return "", err
	}
	entry := "Program log: Instruction: " + disc.Name()

	switch disc {
	case icoprogram.InstructionCreateSale:
		_, amount, err := icoprogram.AmountArgs(data)
		if err != nil {
			return entry, err
		}
		return entry, p.createSale(st, a, signer, amount)
	case icoprogram.InstructionDeposit:
		_, amount, err := icoprogram.AmountArgs(data)
		if err != nil {
			return entry, err
		}
		return entry, p.deposit(st, a, signer, amount)
	case icoprogram.InstructionBuyTokens:
		bump, amount, err := icoprogram.BuyTokensArgs(data)
		if err != nil {
			return entry, err
		}
		return entry, p.buy(st, a, signer, bump, amount)
	default:
		return entry, fmt.Errorf("%w: %x", icoprogram.ErrUnknownInstruction, disc[:])
	}
}

func (p *Program) createTokenAccount(st *state, a domain.DerivedAddresses) error {
	ata, _, err := solana.FindAssociatedTokenAddress(a.User, a.Mint)
	if err != nil {
		return err
	}
	if !ata.Equals(a.UserTokenAccount) {
		return fmt.Errorf("%w: associated token account", errConstraintSeeds)
	}
	if _, ok := st.tokens[ata]; ok {
		return fmt.Errorf("%w: %s", errAccountInUse, ata)
	}
	st.tokens[ata] = ledger.TokenAccount{Address: ata, Mint: a.Mint, Owner: a.User}
	return nil
}

func (p *Program) createSale(st *state, a domain.DerivedAddresses, signer solana.PublicKey, amount uint64) error {
	if err := p.checkVault(a, nil); err != nil {
		return err
	}
	record, err := p.deriver.SaleRecord(signer)
	if err != nil {
		return err
	}
	if !record.Address.Equals(a.SaleRecord) {
		return fmt.Errorf("%w: sale record", errConstraintSeeds)
	}
	if _, ok := st.records[a.SaleRecord]; ok {
		return fmt.Errorf("%w: %s", errAccountInUse, a.SaleRecord)
	}
	if _, ok := st.tokens[a.SaleVault]; ok {
		return fmt.Errorf("%w: %s", errAccountInUse, a.SaleVault)
	}

	raw, err := p.toRaw(amount)
	if err != nil {
		return err
	}
	st.tokens[a.SaleVault] = ledger.TokenAccount{Address: a.SaleVault, Mint: p.mint, Owner: a.SaleVault}
	if err := st.transfer(a.UserTokenAccount, a.SaleVault, signer, raw); err != nil {
		return err
	}

	return st.putRecord(domain.SaleRecord{
		Address:     a.SaleRecord,
		Admin:       signer,
		TotalSupply: amount,
		TokenPrice:  icoprogram.DefaultLamportsPerToken,
	})
}

func (p *Program) deposit(st *state, a domain.DerivedAddresses, signer solana.PublicKey, amount uint64) error {
	rec, err := st.record(a.SaleRecord)
	if err != nil {
		return err
	}
	if !rec.Admin.Equals(signer) {
		return icoprogram.ErrProgramInvalidAdmin
	}
	if _, ok := st.tokens[a.SaleVault]; !ok {
		return errAccountNotInitialized
	}

	raw, err := p.toRaw(amount)
	if err != nil {
		return err
	}
	if err := st.transfer(a.UserTokenAccount, a.SaleVault, signer, raw); err != nil {
		return err
	}

	if rec.TotalSupply > math.MaxUint64-amount {
		return icoprogram.ErrProgramOverflow
	}
	rec.TotalSupply += amount
	return st.putRecord(*rec)
}

func (p *Program) buy(st *state, a domain.DerivedAddresses, signer solana.PublicKey, bump uint8, amount uint64) error {
	if err := p.checkVault(a, &bump); err != nil {
		return err
	}
	if _, ok := st.tokens[a.SaleVault]; !ok {
		return errAccountNotInitialized
	}
	rec, err := st.record(a.SaleRecord)
	if err != nil {
		return err
	}
	if _, ok := st.tokens[a.UserTokenAccount]; !ok {
		return errAccountNotInitialized
	}

	userTotal := rec.PurchasedBy(signer)
	if userTotal > math.MaxUint64-amount {
		return icoprogram.ErrProgramOverflow
	}
	if userTotal+amount > icoprogram.DefaultMaxUserTotal {
		return icoprogram.ErrProgramUserLimit
	}

	raw, err := p.toRaw(amount)
	if err != nil {
		return err
	}
	if amount > math.MaxUint64/icoprogram.DefaultLamportsPerToken {
		return icoprogram.ErrProgramOverflow
	}
	cost := amount * icoprogram.DefaultLamportsPerToken

	if st.lamports[signer] < cost {
		return errInsufficientLamports
	}
	st.lamports[signer] -= cost
	st.lamports[a.SaleAdmin] += cost

	if err := st.transfer(a.SaleVault, a.UserTokenAccount, a.SaleVault, raw); err != nil {
		return err
	}

	rec.Purchases = setPurchase(rec.Purchases, signer, userTotal+amount)
	if rec.Sold > math.MaxUint64-amount {
		return icoprogram.ErrProgramOverflow
	}
	rec.Sold += amount
	return st.putRecord(*rec)
}

// checkVault verifies the vault seeds and, when given, the caller's bump.
func (p *Program) checkVault(a domain.DerivedAddresses, bump *uint8) error {
	vault, err := p.deriver.SaleVault()
	if err != nil {
		return err
	}
	if !vault.Address.Equals(a.SaleVault) || (bump != nil && *bump != vault.Bump) {
		return fmt.Errorf("%w: vault", errConstraintSeeds)
	}
	if !a.Mint.Equals(p.mint) {
		return fmt.Errorf("mint %s does not match sale mint", a.Mint)
	}
	return nil
}

func (p *Program) toRaw(amount uint64) (uint64, error) {
	if amount > math.MaxUint64/p.rawPerTok {
		return 0, icoprogram.ErrProgramOverflow
	}
	return amount * p.rawPerTok, nil
}

func (p *Program) nextSignature() solana.Signature {
	p.seq++
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], p.seq)
	first := sha256.Sum256(append([]byte("stub-signature"), seed[:]...))
	second := sha256.Sum256(first[:])

	var sig solana.Signature
	copy(sig[:32], first[:])
	copy(sig[32:], second[:])
	return sig
}

func (s state) clone() state {
	out := state{
		records:  make(map[solana.PublicKey][]byte, len(s.records)),
		tokens:   make(map[solana.PublicKey]ledger.TokenAccount, len(s.tokens)),
		lamports: make(map[solana.PublicKey]uint64, len(s.lamports)),
	}
	for k, v := range s.records {
		out.records[k] = append([]byte(nil), v...)
	}
	for k, v := range s.tokens {
		out.tokens[k] = v
	}
	for k, v := range s.lamports {
		out.lamports[k] = v
	}
	return out
}

func (s *state) record(address solana.PublicKey) (*domain.SaleRecord, error) {
	data, ok := s.records[address]
	if !ok {
		return nil, errAccountNotInitialized
	}
	return icoprogram.DecodeSaleRecord(address, data)
}

func (s *state) putRecord(rec domain.SaleRecord) error {
	data, err := icoprogram.EncodeSaleRecord(rec, icoprogram.SaleRecordSpace)
	if err != nil {
		return err
	}
	s.records[rec.Address] = data
	return nil
}

// transfer moves raw tokens; authority must own the source account.
func (s *state) transfer(from, to, authority solana.PublicKey, raw uint64) error {
	src, ok := s.tokens[from]
	if !ok {
		return errAccountNotInitialized
	}
	dst, ok := s.tokens[to]
	if !ok {
		return errAccountNotInitialized
	}
	if !src.Owner.Equals(authority) {
		return fmt.Errorf("owner does not match for %s", from)
	}
	if src.Amount < raw {
		return errInsufficientTokens
	}
	src.Amount -= raw
	dst.Amount += raw
	s.tokens[from] = src
	s.tokens[to] = dst
	return nil
}

func setPurchase(purchases []domain.UserPurchase, owner solana.PublicKey, total uint64) []domain.UserPurchase {
	out := make([]domain.UserPurchase, 0, len(purchases)+1)
	found := false
	for _, p := range purchases {
		if p.Owner.Equals(owner) {
			p.Amount = total
			found = true
		}
		out = append(out, p)
	}
	if !found {
		out = append(out, domain.UserPurchase{Owner: owner, Amount: total})
	}
	domain.SortPurchases(out)
	return out
}

func pow10(n int) uint64 {
	v := uint64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}
