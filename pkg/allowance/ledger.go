// Package allowance implements the company emissions ledger: per-company
// allowance accounts, two-phase report ingestion (stage, then settle) and the
// offset path that converts recorded deficits into burned credits plus an
// offset certificate.
package allowance

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/yourorg/carbledger/pkg/access"
	"github.com/yourorg/carbledger/pkg/certificate"
	"github.com/yourorg/carbledger/pkg/devkey"
	"github.com/yourorg/carbledger/pkg/events"
	"github.com/yourorg/carbledger/pkg/registry"
	"github.com/yourorg/carbledger/pkg/verifier"
)

var (
	ErrUnknownEntity     = errors.New("unknown entity")
	ErrDuplicateEntity   = errors.New("duplicate entity")
	ErrOwnershipMismatch = errors.New("ownership mismatch")
	ErrNoPendingReport   = errors.New("no pending report")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// Resolver is the read capability the registry exposes to the ledger.
type Resolver interface {
	Resolve(deviceID uint64) registry.Resolution
}

// CreditToken is the mint/burn capability granted to the ledger at setup.
type CreditToken interface {
	Mint(caller, to common.Address, amount *big.Int) error
	Burn(caller, from common.Address, amount *big.Int) error
}

// CertIssuer mints offset certificates.
type CertIssuer interface {
	Mint(caller, to common.Address, payload certificate.Payload) (uint64, error)
}

// ProofGate validates an emission-report proof envelope.
type ProofGate interface {
	VerifyTx(env verifier.Envelope) (verifier.Result, error)
}

// PendingReport is a staged, not yet settled, device report.
type PendingReport struct {
	DeviceID   uint64
	TrackedCO2 *big.Int
	Ready      bool
}

// Company is the unit of accounting.
type Company struct {
	Wallet             common.Address
	AllowanceRemaining *big.Int
	VehicleCount       uint64
	Deficit            *big.Int // excess emissions recorded by soft-deduct settlements
	Pending            *PendingReport
}

// Stats is the read-only view of a company account.
type Stats struct {
	Wallet             common.Address `json:"wallet"`
	AllowanceRemaining string         `json:"allowanceRemaining"`
	VehicleCount       uint64         `json:"vehicleCount"`
	Deficit            string         `json:"deficit"`
	ReportPending      bool           `json:"reportPending"`
}

// Settlement is the structured outcome of consuming a staged report.
type Settlement struct {
	Company common.Address
	Savings *big.Int // minted reward, zero when the allowance was exceeded
	Deficit *big.Int // newly recorded excess, zero on success
	Success bool
}

// OffsetResult reports a completed deficit offset.
type OffsetResult struct {
	Company       common.Address
	BurnedAmount  *big.Int
	CertificateID uint64
}

type Ledger struct {
	mu        sync.Mutex
	acl       *access.Controller
	self      common.Address // identity the ledger uses toward token/certificate stores
	resolver  Resolver
	token     CreditToken
	certs     CertIssuer
	gate      ProofGate
	companies map[common.Address]*Company
	sink      events.Sink
	log       zerolog.Logger
}

type Option func(*Ledger)

func WithSink(s events.Sink) Option { return func(l *Ledger) { l.sink = s } }
func WithLogger(lg zerolog.Logger) Option { return func(l *Ledger) { l.log = lg } }
func WithGate(g ProofGate) Option { return func(l *Ledger) { l.gate = g } }

// New wires the ledger against its collaborators. self is the address under
// which the ledger exercises its minter/burner grants.
func New(acl *access.Controller, self common.Address, resolver Resolver, tok CreditToken, certs CertIssuer, opts ...Option) *Ledger {
	l := &Ledger{
		acl:       acl,
		self:      self,
		resolver:  resolver,
		token:     tok,
		certs:     certs,
		companies: make(map[common.Address]*Company),
		log:       zerolog.Nop(),
	}
	for _, o := range opts {
		o(l)
	}
	l.log = l.log.With().Str("component", "allowance").Logger()
	return l
}

// AddCompany opens an account. Admin-only; a wallet gets exactly one account.
func (l *Ledger) AddCompany(caller, wallet common.Address, allowance *big.Int) error {
	if err := l.acl.Require(access.RoleAdmin, caller); err != nil {
		return err
	}
	if allowance == nil || allowance.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.companies[wallet]; ok {
		return ErrDuplicateEntity
	}
	l.companies[wallet] = &Company{
		Wallet:             wallet,
		AllowanceRemaining: new(big.Int).Set(allowance),
		Deficit:            new(big.Int),
	}
	l.log.Info().Stringer("wallet", wallet).Str("allowance", allowance.String()).Msg("company added")
	events.Emit(l.sink, events.CompanyAdded, map[string]any{
		"wallet": wallet.Hex(), "allowance": allowance.String(),
	})
	return nil
}

// EmissionReport stages a device report on the resolved company account.
// Policy: last-write-wins, a single outstanding report per company.
func (l *Ledger) EmissionReport(caller common.Address, deviceID uint64, claimedCompany common.Address, trackedCO2 *big.Int) error {
	if err := l.acl.RequireAny(caller, access.RoleOperator, access.RoleVerifier); err != nil {
		return err
	}
	if trackedCO2 == nil || trackedCO2.Sign() < 0 {
		return ErrInvalidAmount
	}
	res := l.resolver.Resolve(deviceID)
	if !res.Exists {
		return ErrUnknownEntity
	}
	// a caller must not attribute emissions to an arbitrary company
	if res.Wallet != claimedCompany {
		return ErrOwnershipMismatch
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.companies[res.Wallet]
	if !ok {
		return ErrUnknownEntity
	}
	c.Pending = &PendingReport{
		DeviceID:   deviceID,
		TrackedCO2: new(big.Int).Set(trackedCO2),
		Ready:      true,
	}
	l.log.Info().Uint64("device", deviceID).Stringer("company", res.Wallet).
		Str("trackedCO2", trackedCO2.String()).Msg("report staged")
	events.Emit(l.sink, events.CompanyDataReady, map[string]any{
		"deviceId": deviceID, "company": res.Wallet.Hex(), "trackedCO2": trackedCO2.String(),
	})
	return nil
}

// CheckAllowance settles the staged report against the company's remaining
// allowance. Soft-deduct policy: settlement always completes and consumes the
// report; emissions above the allowance accrue to an explicit deficit instead
// of failing the call. The surplus of a compliant report is minted as credit.
func (l *Ledger) CheckAllowance(caller, company common.Address) (Settlement, error) {
	if err := l.acl.RequireAny(caller, access.RoleOperator, access.RoleVerifier); err != nil {
		return Settlement{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.companies[company]
	if !ok {
		return Settlement{}, ErrUnknownEntity
	}
	if c.Pending == nil || !c.Pending.Ready {
		return Settlement{}, ErrNoPendingReport
	}

	tracked := c.Pending.TrackedCO2
	s := Settlement{Company: company, Savings: new(big.Int), Deficit: new(big.Int)}

	if tracked.Cmp(c.AllowanceRemaining) < 0 {
		s.Savings.Sub(c.AllowanceRemaining, tracked)
		// mint before touching the account so a failure leaves it unchanged
		if err := l.token.Mint(l.self, company, s.Savings); err != nil {
			return Settlement{}, err
		}
		s.Success = true
		c.AllowanceRemaining.Sub(c.AllowanceRemaining, tracked)
	} else {
		s.Deficit.Sub(tracked, c.AllowanceRemaining)
		c.AllowanceRemaining.SetInt64(0)
		c.Deficit.Add(c.Deficit, s.Deficit)
	}

	// at-most-once: the staged report is consumed regardless of outcome
	c.Pending = nil

	l.log.Info().Stringer("company", company).Bool("success", s.Success).
		Str("savings", s.Savings.String()).Str("deficit", s.Deficit.String()).Msg("report settled")
	events.Emit(l.sink, events.EmissionReportReceived, map[string]any{
		"company": company.Hex(), "savings": s.Savings.String(), "success": s.Success,
	})
	return s, nil
}

// SettleVerified runs the full proof-gated settlement: verify the envelope,
// cross-check the verified device commitment against the registry, then stage
// and settle in one call. This is the path the original system drove through
// its verifier contract.
func (l *Ledger) SettleVerified(caller common.Address, env verifier.Envelope) (Settlement, error) {
	if err := l.acl.Require(access.RoleVerifier, caller); err != nil {
		return Settlement{}, err
	}
	if l.gate == nil {
		return Settlement{}, errors.New("no proof gate wired")
	}
	res, err := l.gate.VerifyTx(env)
	if err != nil {
		return Settlement{}, err
	}
	if len(res.Inputs) != verifier.EmissionInputCount {
		return Settlement{}, verifier.ErrMalformedInput
	}

	deviceID := res.Inputs[0].Uint64()
	tracked := res.Inputs[1]
	key := res.Inputs[2]

	dev := l.resolver.Resolve(deviceID)
	if !dev.Exists {
		return Settlement{}, ErrUnknownEntity
	}
	// the proven commitment must open to the registered (device, wallet) pair
	if key.Cmp(devkey.Field(deviceID, dev.Wallet)) != 0 {
		return Settlement{}, ErrOwnershipMismatch
	}

	if err := l.EmissionReport(caller, deviceID, dev.Wallet, tracked); err != nil {
		return Settlement{}, err
	}
	return l.CheckAllowance(caller, dev.Wallet)
}

// AdjustAllowance sets a company's remaining allowance directly.
func (l *Ledger) AdjustAllowance(caller, company common.Address, newAllowance *big.Int) error {
	if err := l.acl.Require(access.RoleAdmin, caller); err != nil {
		return err
	}
	if newAllowance == nil || newAllowance.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.companies[company]
	if !ok {
		return ErrUnknownEntity
	}
	c.AllowanceRemaining.Set(newAllowance)
	return nil
}

func (l *Ledger) IncreaseVehicleCount(caller, company common.Address) error {
	if err := l.acl.RequireAny(caller, access.RoleAdmin, access.RoleOperator); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.companies[company]
	if !ok {
		return ErrUnknownEntity
	}
	c.VehicleCount++
	return nil
}

func (l *Ledger) DecreaseVehicleCount(caller, company common.Address) error {
	if err := l.acl.RequireAny(caller, access.RoleAdmin, access.RoleOperator); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.companies[company]
	if !ok {
		return ErrUnknownEntity
	}
	if c.VehicleCount == 0 {
		return ErrInvalidAmount
	}
	c.VehicleCount--
	return nil
}

// ResetCompanyData clears the staged report and the counters; the remaining
// allowance is preserved.
func (l *Ledger) ResetCompanyData(caller, company common.Address) error {
	if err := l.acl.RequireAny(caller, access.RoleAdmin, access.RoleOperator); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.companies[company]
	if !ok {
		return ErrUnknownEntity
	}
	c.Pending = nil
	c.VehicleCount = 0
	c.Deficit.SetInt64(0)
	return nil
}

// OffsetExcess burns credits from the calling company equal to its recorded
// deficit and mints an offset certificate. The caller's balance must cover
// the burn; otherwise nothing changes.
func (l *Ledger) OffsetExcess(caller common.Address) (OffsetResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.companies[caller]
	if !ok {
		return OffsetResult{}, ErrUnknownEntity
	}
	if c.Deficit.Sign() <= 0 {
		return OffsetResult{}, ErrInvalidAmount
	}
	amount := new(big.Int).Set(c.Deficit)

	if err := l.token.Burn(l.self, caller, amount); err != nil {
		return OffsetResult{}, err
	}
	id, err := l.certs.Mint(l.self, caller, certificate.Payload{
		Company:      caller,
		OffsetAmount: amount,
		IssuedAt:     time.Now().UTC(),
		Note:         "emission deficit offset",
	})
	if err != nil {
		// restore the burned credits so the failed offset leaves no trace
		if mintErr := l.token.Mint(l.self, caller, amount); mintErr != nil {
			l.log.Error().Err(mintErr).Stringer("company", caller).Msg("restoring burned credits failed")
			return OffsetResult{}, fmt.Errorf("certificate mint failed (%w), restore failed: %v", err, mintErr)
		}
		return OffsetResult{}, err
	}
	c.Deficit.SetInt64(0)

	l.log.Info().Stringer("company", caller).Str("burned", amount.String()).Uint64("certificate", id).Msg("deficit offset")
	return OffsetResult{Company: caller, BurnedAmount: amount, CertificateID: id}, nil
}

// CompanyStats returns the read-only account view.
func (l *Ledger) CompanyStats(company common.Address) (Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.companies[company]
	if !ok {
		return Stats{}, ErrUnknownEntity
	}
	return Stats{
		Wallet:             c.Wallet,
		AllowanceRemaining: c.AllowanceRemaining.String(),
		VehicleCount:       c.VehicleCount,
		Deficit:            c.Deficit.String(),
		ReportPending:      c.Pending != nil && c.Pending.Ready,
	}, nil
}
