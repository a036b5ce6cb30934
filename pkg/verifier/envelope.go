package verifier

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/consensys/gnark/backend/plonk"

	"github.com/yourorg/carbledger/circuits"
)

// Envelope is the proof payload submitted by a device gateway: a PLONK proof
// (curve-point commitments, the scalar evaluation vector and the batched KZG
// opening proofs, in gnark's canonical serialization) plus the public-input
// vector the proof opens against. Envelopes are transient; nothing here is
// persisted beyond the verification result.
type Envelope struct {
	Proof        plonk.Proof
	PublicInputs []*big.Int
}

// envelopeJSON is the on-disk form: the proof blob base64-encoded, public
// inputs as decimal strings (uint256-style, like the teacher bundles them).
type envelopeJSON struct {
	Proof  string   `json:"proof"`
	Inputs []string `json:"inputs"`
}

// Load reads an envelope from a JSON file.
func Load(path string) (*Envelope, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read envelope: %w", err)
	}
	var ej envelopeJSON
	if err := json.Unmarshal(raw, &ej); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	blob, err := base64.StdEncoding.DecodeString(ej.Proof)
	if err != nil {
		return nil, fmt.Errorf("decode proof: %w", err)
	}
	proof := plonk.NewProof(circuits.Curve())
	if _, err := proof.ReadFrom(bytes.NewReader(blob)); err != nil {
		return nil, fmt.Errorf("parse proof: %w", err)
	}

	inputs := make([]*big.Int, len(ej.Inputs))
	for i, s := range ej.Inputs {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("parse input %d: %q is not a decimal integer", i, s)
		}
		inputs[i] = v
	}
	return &Envelope{Proof: proof, PublicInputs: inputs}, nil
}

// Save writes the envelope next to the verifying key artifacts.
func (e *Envelope) Save(path string) error {
	var buf bytes.Buffer
	if _, err := e.Proof.WriteTo(&buf); err != nil {
		return fmt.Errorf("serialize proof: %w", err)
	}
	ej := envelopeJSON{
		Proof:  base64.StdEncoding.EncodeToString(buf.Bytes()),
		Inputs: make([]string, len(e.PublicInputs)),
	}
	for i, v := range e.PublicInputs {
		ej.Inputs[i] = v.String()
	}
	out, err := json.MarshalIndent(ej, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}
