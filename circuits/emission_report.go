package circuits

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/math/uints"

	"github.com/yourorg/carbledger/internal/keccak"
)

func Curve() ecc.ID { return ecc.BN254 }

// EmissionReportCircuit proves that a tracked-CO2 report originates from a
// registered device without revealing the owning wallet. The public DeviceKey
// is keccak256( pad32(deviceID) ‖ pad32(wallet) ); the 64-byte preimage stays
// private and is re-hashed in-circuit.
type EmissionReportCircuit struct {
	DeviceID   frontend.Variable `gnark:",public"`
	TrackedCO2 frontend.Variable `gnark:",public"`
	DeviceKey  frontend.Variable `gnark:",public"`

	Preimage [64]uints.U8
}

func (c *EmissionReportCircuit) Define(api frontend.API) error {
	// the first preimage word must encode the public device ID
	id := frontend.Variable(0)
	for i := 0; i < 32; i++ {
		id = api.Add(api.Mul(id, 256), c.Preimage[i].Val)
	}
	api.AssertIsEqual(id, c.DeviceID)

	// digest bytes accumulate big-endian into the field, reduced mod r; the
	// off-circuit side (pkg/devkey.Field) applies the same reduction
	h := keccak.New(api)
	h.Write(c.Preimage[:])
	digest := h.Sum()

	acc := frontend.Variable(0)
	for _, b := range digest {
		acc = api.Add(api.Mul(acc, 256), b.Val)
	}
	api.AssertIsEqual(acc, c.DeviceKey)

	// tracked CO2 is a kg quantity, far below 2^64
	maxUint64 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 64), big.NewInt(1))
	api.AssertIsLessOrEqual(c.TrackedCO2, maxUint64)
	api.AssertIsLessOrEqual(c.DeviceID, maxUint64)
	return nil
}

// Assign builds a full witness assignment for the circuit.
func Assign(deviceID uint64, trackedCO2 *big.Int, deviceKey *big.Int, preimage [64]byte) *EmissionReportCircuit {
	w := &EmissionReportCircuit{
		DeviceID:   deviceID,
		TrackedCO2: trackedCO2,
		DeviceKey:  deviceKey,
	}
	for i, b := range preimage {
		w.Preimage[i] = uints.NewU8(b)
	}
	return w
}
