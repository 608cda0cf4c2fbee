package icoprogram

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"solana-token-sale/internal/domain"
)

// NewCreateSaleInstruction builds create_ico_ata: moves amount tokens from the
// admin's token account into the vault and creates the admin's sale record.
func NewCreateSaleInstruction(amount uint64, a domain.DerivedAddresses) (solana.Instruction, error) {
	data, err := encodeArgs(InstructionCreateSale, func(enc *bin.Encoder) error {
		return enc.WriteUint64(amount, bin.LE)
	})
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(a.SaleVault, true, false),
		solana.NewAccountMeta(a.SaleRecord, true, false),
		solana.NewAccountMeta(a.Mint, false, false),
		solana.NewAccountMeta(a.UserTokenAccount, true, false),
		solana.NewAccountMeta(a.User, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
	}
	return solana.NewInstruction(a.ProgramID, accounts, data), nil
}

// NewDepositInstruction builds deposit_ico_in_ata: tops up the vault from the
// admin's token account.
func NewDepositInstruction(amount uint64, a domain.DerivedAddresses) (solana.Instruction, error) {
	data, err := encodeArgs(InstructionDeposit, func(enc *bin.Encoder) error {
		return enc.WriteUint64(amount, bin.LE)
	})
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(a.SaleVault, true, false),
		solana.NewAccountMeta(a.SaleRecord, true, false),
		solana.NewAccountMeta(a.Mint, false, false),
		solana.NewAccountMeta(a.UserTokenAccount, true, false),
		solana.NewAccountMeta(a.User, true, true),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}
	return solana.NewInstruction(a.ProgramID, accounts, data), nil
}

// NewBuyTokensInstruction builds buy_tokens(bump, amount). The buyer pays the
// admin in lamports and receives tokens from the vault.
func NewBuyTokensInstruction(amount uint64, a domain.DerivedAddresses) (solana.Instruction, error) {
	data, err := encodeArgs(InstructionBuyTokens, func(enc *bin.Encoder) error {
		if err := enc.WriteUint8(a.SaleVaultBump); err != nil {
			return err
		}
		return enc.WriteUint64(amount, bin.LE)
	})
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(a.SaleVault, true, false),
		solana.NewAccountMeta(a.SaleRecord, true, false),
		solana.NewAccountMeta(a.Mint, false, false),
		solana.NewAccountMeta(a.UserTokenAccount, true, false),
		solana.NewAccountMeta(a.User, true, true),
		solana.NewAccountMeta(a.SaleAdmin, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(a.ProgramID, accounts, data), nil
}

// AmountArgs decodes the single u64 argument of create_ico_ata and deposit_ico_in_ata.
func AmountArgs(data []byte) (Discriminator, uint64, error) {
	disc, dec, err := splitData(data)
	if err != nil {
		return disc, 0, err
	}
	if disc != InstructionCreateSale && disc != InstructionDeposit {
		return disc, 0, fmt.Errorf("%w: %x", ErrUnknownInstruction, disc[:])
	}
	amount, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return disc, 0, fmt.Errorf("read amount: %w", err)
	}
	return disc, amount, nil
}

// BuyTokensArgs decodes buy_tokens(bump u8, token_amount u64).
func BuyTokensArgs(data []byte) (uint8, uint64, error) {
	disc, dec, err := splitData(data)
	if err != nil {
		return 0, 0, err
	}
	if disc != InstructionBuyTokens {
		return 0, 0, fmt.Errorf("%w: %x", ErrUnknownInstruction, disc[:])
	}
	bump, err := dec.ReadUint8()
	if err != nil {
		return 0, 0, fmt.Errorf("read bump: %w", err)
	}
	amount, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return 0, 0, fmt.Errorf("read amount: %w", err)
	}
	return bump, amount, nil
}

// InstructionDiscriminator returns the first 8 bytes of instruction data.
func InstructionDiscriminator(data []byte) (Discriminator, error) {
	disc, _, err := splitData(data)
	return disc, err
}

func splitData(data []byte) (Discriminator, *bin.Decoder, error) {
	var disc Discriminator
	if len(data) < len(disc) {
		return disc, nil, fmt.Errorf("instruction data too short: %d", len(data))
	}
	copy(disc[:], data[:len(disc)])
	return disc, bin.NewBorshDecoder(data[len(disc):]), nil
}

func encodeArgs(disc Discriminator, write func(enc *bin.Encoder) error) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	if err := enc.WriteBytes(disc[:], false); err != nil {
		return nil, fmt.Errorf("write %s discriminator: %w", disc.Name(), err)
	}
	if err := write(enc); err != nil {
		return nil, fmt.Errorf("encode %s args: %w", disc.Name(), err)
	}
	return buf.Bytes(), nil
}
