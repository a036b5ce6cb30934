package test

import (
	"encoding/binary"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/carbledger/pkg/devkey"
)

var (
	ownerA = common.HexToAddress("0xbe70c6f915433ed968fa7a1e63d5bc98a186e562")
	ownerB = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func TestCommitmentPreimageLayout(t *testing.T) {
	pre := devkey.Preimage(0xDEADBEEF, ownerA)

	// device ID sits big-endian at the end of the first 32-byte word
	require.Equal(t, uint64(0xDEADBEEF), binary.BigEndian.Uint64(pre[24:32]))
	for _, b := range pre[:24] {
		require.Zero(t, b)
	}

	// the wallet fills the last 20 bytes of the second word
	require.Equal(t, ownerA.Bytes(), pre[44:64])
	for _, b := range pre[32:44] {
		require.Zero(t, b)
	}
}

func TestCommitmentMatchesKeccak(t *testing.T) {
	pre := devkey.Preimage(6969, ownerA)
	require.Equal(t, crypto.Keccak256Hash(pre[:]), devkey.Calc(6969, ownerA))
}

func TestCommitmentBindsOwner(t *testing.T) {
	require.NotEqual(t, devkey.Calc(6969, ownerA), devkey.Calc(6969, ownerB))
	require.NotEqual(t, devkey.Calc(6969, ownerA), devkey.Calc(6970, ownerA))
}

func TestFieldReducedIntoScalarField(t *testing.T) {
	f := devkey.Field(6969, ownerA)
	require.Negative(t, f.Cmp(ecc.BN254.ScalarField()))
	require.GreaterOrEqual(t, f.Sign(), 0)
}
