package allowance

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yourorg/carbledger/pkg/access"
	"github.com/yourorg/carbledger/pkg/devkey"
	"github.com/yourorg/carbledger/pkg/verifier"
)

// stubGate stands in for the PLONK gate: the accounting step is tested
// against pre-verified inputs, independent of proof derivation.
type stubGate struct {
	result verifier.Result
	err    error
	calls  int
}

func (s *stubGate) VerifyTx(verifier.Envelope) (verifier.Result, error) {
	s.calls++
	if s.err != nil {
		return verifier.Result{}, s.err
	}
	return s.result, nil
}

func newVerifiedFixture(t *testing.T, gate ProofGate) *fixture {
	t.Helper()
	f := newFixture(t)
	f.ledger.gate = gate
	require.NoError(t, f.ledger.acl.Grant(admin, access.RoleVerifier, operator))
	return f
}

func TestSettleVerifiedHappy(t *testing.T) {
	gate := &stubGate{result: verifier.Result{
		Accepted: true,
		Inputs: []*big.Int{
			new(big.Int).SetUint64(deviceID),
			big.NewInt(3000),
			devkey.Field(deviceID, companyB),
		},
	}}
	f := newVerifiedFixture(t, gate)
	require.NoError(t, f.ledger.AddCompany(admin, companyB, big.NewInt(5000)))

	s, err := f.ledger.SettleVerified(operator, verifier.Envelope{})
	require.NoError(t, err)
	require.True(t, s.Success)
	require.Equal(t, big.NewInt(2000), s.Savings)
	require.Equal(t, 1, gate.calls)
}

func TestSettleVerifiedRejectedProof(t *testing.T) {
	gate := &stubGate{err: verifier.ErrVerificationFailed}
	f := newVerifiedFixture(t, gate)
	require.NoError(t, f.ledger.AddCompany(admin, companyB, big.NewInt(5000)))

	_, err := f.ledger.SettleVerified(operator, verifier.Envelope{})
	require.ErrorIs(t, err, verifier.ErrVerificationFailed)

	// no state change: nothing staged, allowance intact
	stats, _ := f.ledger.CompanyStats(companyB)
	require.False(t, stats.ReportPending)
	require.Equal(t, "5000", stats.AllowanceRemaining)
}

func TestSettleVerifiedCommitmentMismatch(t *testing.T) {
	// verified key opens to a different wallet than the registry resolves
	gate := &stubGate{result: verifier.Result{
		Accepted: true,
		Inputs: []*big.Int{
			new(big.Int).SetUint64(deviceID),
			big.NewInt(3000),
			devkey.Field(deviceID, companyD),
		},
	}}
	f := newVerifiedFixture(t, gate)
	require.NoError(t, f.ledger.AddCompany(admin, companyB, big.NewInt(5000)))

	_, err := f.ledger.SettleVerified(operator, verifier.Envelope{})
	require.ErrorIs(t, err, ErrOwnershipMismatch)
}

func TestSettleVerifiedRequiresVerifierRole(t *testing.T) {
	gate := &stubGate{}
	f := newVerifiedFixture(t, gate)

	outsider := companyD
	_, err := f.ledger.SettleVerified(outsider, verifier.Envelope{})
	require.ErrorIs(t, err, access.ErrUnauthorized)
	require.Zero(t, gate.calls) // gated before any verification work
}
