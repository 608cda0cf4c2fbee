package icoprogram

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-sale/internal/domain"
)

func TestDecodeSaleRecord_HandBuiltLayout(t *testing.T) {
	admin := solana.NewWallet().PublicKey()
	buyer := solana.NewWallet().PublicKey()
	addr := solana.NewWallet().PublicKey()

	data := append([]byte{}, AccountSaleRecord[:]...)
	data = append(data, admin[:]...)
	data = binary.LittleEndian.AppendUint64(data, 1000)
	data = binary.LittleEndian.AppendUint64(data, 200)
	data = binary.LittleEndian.AppendUint32(data, 1)
	data = append(data, buyer[:]...)
	data = binary.LittleEndian.AppendUint64(data, 200)
	data = binary.LittleEndian.AppendUint64(data, DefaultLamportsPerToken)
	data = append(data, make([]byte, 64)...) // allocation slack

	rec, err := DecodeSaleRecord(addr, data)
	require.NoError(t, err)

	assert.Equal(t, addr, rec.Address)
	assert.Equal(t, admin, rec.Admin)
	assert.Equal(t, uint64(1000), rec.TotalSupply)
	assert.Equal(t, uint64(200), rec.Sold)
	assert.Equal(t, uint64(DefaultLamportsPerToken), rec.TokenPrice)
	require.Len(t, rec.Purchases, 1)
	assert.Equal(t, buyer, rec.Purchases[0].Owner)
	assert.Equal(t, uint64(200), rec.PurchasedBy(buyer))
	assert.Equal(t, uint64(0), rec.PurchasedBy(admin))
}

func TestEncodeSaleRecord_RoundTripWithPadding(t *testing.T) {
	rec := domain.SaleRecord{
		Address:     solana.NewWallet().PublicKey(),
		Admin:       solana.NewWallet().PublicKey(),
		TotalSupply: 5000,
		Sold:        30,
		TokenPrice:  DefaultLamportsPerToken,
		Purchases: []domain.UserPurchase{
			{Owner: solana.NewWallet().PublicKey(), Amount: 10},
			{Owner: solana.NewWallet().PublicKey(), Amount: 20},
		},
	}

	data, err := EncodeSaleRecord(rec, SaleRecordSpace)
	require.NoError(t, err)
	assert.Len(t, data, SaleRecordSpace)

	decoded, err := DecodeSaleRecord(rec.Address, data)
	require.NoError(t, err)

	domain.SortPurchases(rec.Purchases)
	assert.Equal(t, rec, *decoded)
}

func TestDecodeSaleRecord_Rejects(t *testing.T) {
	addr := solana.NewWallet().PublicKey()

	_, err := DecodeSaleRecord(addr, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrNotSaleRecord)

	wrong := make([]byte, SaleRecordSpace)
	_, err = DecodeSaleRecord(addr, wrong)
	assert.ErrorIs(t, err, ErrNotSaleRecord)

	truncated := append([]byte{}, AccountSaleRecord[:]...)
	truncated = append(truncated, make([]byte, 20)...)
	_, err = DecodeSaleRecord(addr, truncated)
	assert.Error(t, err)
}
