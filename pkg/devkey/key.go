package devkey

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/consensys/gnark-crypto/ecc"
)

// Preimage returns pad32(deviceID) ‖ pad32(wallet), the 64-byte buffer the
// commitment is computed over. The same layout is hashed inside the
// emission-report circuit, which is what lets a verified proof carry the
// commitment as a public input.
func Preimage(deviceID uint64, wallet common.Address) [64]byte {
	var buf [64]byte

	// first 32 bytes = deviceID (big-endian)
	new(big.Int).SetUint64(deviceID).FillBytes(buf[:32])

	// last 32 bytes = wallet, left-padded to a full word
	copy(buf[44:64], wallet.Bytes())
	return buf
}

// Calc returns keccak256( pad32(deviceID) ‖ pad32(wallet) ).
func Calc(deviceID uint64, wallet common.Address) common.Hash {
	buf := Preimage(deviceID, wallet)
	return crypto.Keccak256Hash(buf[:]) // legacy Keccak-256
}

// Field reduces the commitment into the BN254 scalar field, matching the
// in-circuit big-endian accumulation of the digest bytes.
func Field(deviceID uint64, wallet common.Address) *big.Int {
	h := Calc(deviceID, wallet)
	v := new(big.Int).SetBytes(h[:])
	return v.Mod(v, ecc.BN254.ScalarField())
}
