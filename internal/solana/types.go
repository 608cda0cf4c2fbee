package solana

// Commitment is the RPC commitment level.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Data       []byte // decoded from base64
	Executable bool
	RentEpoch  uint64
}

// ProgramAccount is one result of getProgramAccounts.
type ProgramAccount struct {
	Pubkey  string
	Account AccountInfo
}

// MemcmpFilter matches accounts whose data at Offset equals Bytes.
type MemcmpFilter struct {
	Offset uint64
	Bytes  []byte
}

// ProgramAccountsOpts filters getProgramAccounts.
type ProgramAccountsOpts struct {
	Memcmp   []MemcmpFilter
	DataSize uint64 // 0 = no size filter
}

// Blockhash is a recent blockhash and the last block height it is valid for.
type Blockhash struct {
	Hash                 string
	LastValidBlockHeight uint64
}

// SignatureStatus from getSignatureStatuses.
type SignatureStatus struct {
	Slot               uint64
	Confirmations      *uint64 // nil once rooted
	Err                interface{}
	ConfirmationStatus string
}

// Reached reports whether the status is at least the given commitment.
func (s *SignatureStatus) Reached(c Commitment) bool {
	if s == nil {
		return false
	}
	return commitmentRank(Commitment(s.ConfirmationStatus)) >= commitmentRank(c)
}

func commitmentRank(c Commitment) int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	default:
		return 0
	}
}
