package icoprogram

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"solana-token-sale/internal/domain"
)

// Sale record layout after the discriminator:
// admin(32) | total_tokens(u64) | tokens_sold(u64) | user_purchases(u32 len, (Pubkey,u64)*) | token_price(u64)
// The account is allocated with slack, so trailing zero bytes are expected.

// maxPurchaseEntries bounds the map length read from chain data.
const maxPurchaseEntries = 1 << 16

// DecodeSaleRecord decodes raw account data stored at address.
func DecodeSaleRecord(address solana.PublicKey, data []byte) (*domain.SaleRecord, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: data too short: %d", ErrNotSaleRecord, len(data))
	}
	var disc Discriminator
	copy(disc[:], data[:8])
	if disc != AccountSaleRecord {
		return nil, fmt.Errorf("%w: discriminator %x", ErrNotSaleRecord, disc[:])
	}

	dec := bin.NewBorshDecoder(data[8:])

	adminBytes, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, fmt.Errorf("read admin: %w", err)
	}
	total, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return nil, fmt.Errorf("read total_tokens: %w", err)
	}
	sold, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return nil, fmt.Errorf("read tokens_sold: %w", err)
	}
	count, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return nil, fmt.Errorf("read user_purchases length: %w", err)
	}
	if count > maxPurchaseEntries {
		return nil, fmt.Errorf("user_purchases length %d exceeds limit", count)
	}

	purchases := make([]domain.UserPurchase, 0, count)
	for i := uint32(0); i < count; i++ {
		owner, err := dec.ReadNBytes(32)
		if err != nil {
			return nil, fmt.Errorf("read purchase %d owner: %w", i, err)
		}
		amount, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return nil, fmt.Errorf("read purchase %d amount: %w", i, err)
		}
		purchases = append(purchases, domain.UserPurchase{
			Owner:  solana.PublicKeyFromBytes(owner),
			Amount: amount,
		})
	}

	price, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return nil, fmt.Errorf("read token_price: %w", err)
	}

	domain.SortPurchases(purchases)
	return &domain.SaleRecord{
		Address:     address,
		Admin:       solana.PublicKeyFromBytes(adminBytes),
		TotalSupply: total,
		Sold:        sold,
		TokenPrice:  price,
		Purchases:   purchases,
	}, nil
}

// EncodeSaleRecord produces account data for rec, padded with zeros to size
// when size is larger than the encoding.
func EncodeSaleRecord(rec domain.SaleRecord, size int) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	purchases := make([]domain.UserPurchase, len(rec.Purchases))
	copy(purchases, rec.Purchases)
	domain.SortPurchases(purchases)

	if err := enc.WriteBytes(AccountSaleRecord[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(rec.Admin[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(rec.TotalSupply, bin.LE); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(rec.Sold, bin.LE); err != nil {
		return nil, err
	}
	if err := enc.WriteUint32(uint32(len(purchases)), bin.LE); err != nil {
		return nil, err
	}
	for _, p := range purchases {
		if err := enc.WriteBytes(p.Owner[:], false); err != nil {
			return nil, err
		}
		if err := enc.WriteUint64(p.Amount, bin.LE); err != nil {
			return nil, err
		}
	}
	if err := enc.WriteUint64(rec.TokenPrice, bin.LE); err != nil {
		return nil, err
	}

	out := buf.Bytes()
	if len(out) < size {
		out = append(out, make([]byte, size-len(out))...)
	}
	return out, nil
}

// SaleRecordSpace is the account size the program allocates for a sale record:
// discriminator + admin + total + sold + price + 1000 bytes of map space.
const SaleRecordSpace = 8 + 32 + 8 + 8 + 8 + 1000
