// Package verifier wraps the PLONK verification of emission-report proofs.
// The gate is pure: it validates an envelope against the deployed verifying
// key and hands the now-trusted public inputs back to the caller. It never
// touches ledger state; the allowance ledger decides what to do with an
// accepted report.
package verifier

import (
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/backend/witness"
	"github.com/rs/zerolog"

	"github.com/yourorg/carbledger/circuits"
	"github.com/yourorg/carbledger/pkg/events"
)

var (
	// ErrMalformedInput means the envelope failed shape validation before any
	// pairing work was attempted.
	ErrMalformedInput = errors.New("malformed input")
	// ErrVerificationFailed means the proof was cryptographically rejected.
	ErrVerificationFailed = errors.New("verification failed")
)

// EmissionInputCount is the emission-report circuit's declared public-input
// count: deviceID, trackedCO2, deviceKey.
const EmissionInputCount = 3

// Result carries the verdict and the verified public inputs, consumed
// immediately by the ledger and never stored.
type Result struct {
	Accepted bool
	Inputs   []*big.Int
}

type Gate struct {
	vk       plonk.VerifyingKey
	nbInputs int
	sink     events.Sink
	log      zerolog.Logger
}

type Option func(*Gate)

func WithSink(s events.Sink) Option { return func(g *Gate) { g.sink = s } }
func WithLogger(l zerolog.Logger) Option { return func(g *Gate) { g.log = l } }

// NewGate builds a verifier gate around a deployed verifying key and the
// circuit's declared public-input count.
func NewGate(vk plonk.VerifyingKey, nbInputs int, opts ...Option) *Gate {
	g := &Gate{vk: vk, nbInputs: nbInputs, log: zerolog.Nop()}
	for _, o := range opts {
		o(g)
	}
	g.log = g.log.With().Str("component", "verifier").Logger()
	return g
}

// VerifyTx validates the envelope. Stateless per call: the verdict is a pure
// function of (verifying key, proof, inputs).
func (g *Gate) VerifyTx(env Envelope) (Result, error) {
	if len(env.PublicInputs) != g.nbInputs {
		return Result{}, fmt.Errorf("%w: got %d public inputs, circuit declares %d",
			ErrMalformedInput, len(env.PublicInputs), g.nbInputs)
	}
	if env.Proof == nil {
		return Result{}, fmt.Errorf("%w: missing proof", ErrMalformedInput)
	}

	pub, err := publicWitness(env.PublicInputs)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	if err := plonk.Verify(env.Proof, g.vk, pub); err != nil {
		g.log.Warn().Err(err).Msg("proof rejected")
		return Result{}, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	inputs := make([]*big.Int, len(env.PublicInputs))
	for i, v := range env.PublicInputs {
		inputs[i] = new(big.Int).Set(v)
	}
	g.log.Info().Int("inputs", len(inputs)).Msg("proof accepted")
	events.Emit(g.sink, events.Verified, map[string]any{"accepted": true})
	return Result{Accepted: true, Inputs: inputs}, nil
}

func publicWitness(values []*big.Int) (witness.Witness, error) {
	w, err := witness.New(circuits.Curve().ScalarField())
	if err != nil {
		return nil, err
	}
	ch := make(chan any, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)
	if err := w.Fill(len(values), 0, ch); err != nil {
		return nil, err
	}
	return w, nil
}

// LoadVerifyingKey reads a serialized verifying key from disk.
func LoadVerifyingKey(path string) (plonk.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open verifying key: %w", err)
	}
	defer f.Close()

	vk := plonk.NewVerifyingKey(circuits.Curve())
	if _, err := vk.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("parse verifying key: %w", err)
	}
	return vk, nil
}
