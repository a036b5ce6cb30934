// Package ranking implements the round-based emissions ranking: a fixed
// cohort of companies reports (CO2, distance) once per round, the engine
// freezes the cohort average once everyone reported and mints proportional
// reward tokens to companies that beat it.
package ranking

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/yourorg/carbledger/internal/fixedpoint"
	"github.com/yourorg/carbledger/pkg/access"
	"github.com/yourorg/carbledger/pkg/events"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrDuplicateSubmission = errors.New("duplicate submission")
	ErrRoundClosed         = errors.New("round closed")
	ErrRoundNotClosed      = errors.New("round not closed")
	ErrRoundConsumed       = errors.New("round already consumed")
	ErrRoundInProgress     = errors.New("round in progress")
)

// RewardMinter is the mint capability granted to the engine at setup.
type RewardMinter interface {
	Mint(caller, to common.Address, amount *big.Int) error
}

type roundState int

const (
	roundIdle roundState = iota
	roundOpen
	roundClosed
	roundConsumed
)

type report struct {
	co2      *big.Int
	distance *big.Int
}

// Savings is one company's computed reward for a round.
type Savings struct {
	Company common.Address
	Amount  *big.Int // positive amounts were minted; zero or below mint nothing
	Minted  bool
}

type Engine struct {
	mu             sync.Mutex
	acl            *access.Controller
	self           common.Address // identity toward the token store
	minter         RewardMinter
	totalCompanies int
	reports        map[common.Address]report
	order          []common.Address // submission order, for deterministic payout iteration
	state          roundState
	avgCO2PerKm    *big.Int // fixed-point, scaled by 1e18; frozen per round
	sink           events.Sink
	log            zerolog.Logger
}

type Option func(*Engine)

func WithSink(s events.Sink) Option { return func(e *Engine) { e.sink = s } }
func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.log = l } }

func New(acl *access.Controller, self common.Address, minter RewardMinter, opts ...Option) *Engine {
	e := &Engine{
		acl:    acl,
		self:   self,
		minter: minter,
		log:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(e)
	}
	e.log = e.log.With().Str("component", "ranking").Logger()
	return e
}

// SetTotalCompanies opens a fresh round for a cohort of n companies. It
// refuses to discard in-flight reports; call ResetRound first if the current
// round must be abandoned.
func (e *Engine) SetTotalCompanies(caller common.Address, n int) error {
	if err := e.acl.Require(access.RoleAdmin, caller); err != nil {
		return err
	}
	if n <= 0 {
		return ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == roundOpen && len(e.reports) > 0 {
		return ErrRoundInProgress
	}
	e.openRound(n)
	events.Emit(e.sink, events.RoundOpened, map[string]any{"totalCompanies": n})
	return nil
}

// ResetRound explicitly discards the current round, in-flight data included.
func (e *Engine) ResetRound(caller common.Address) error {
	if err := e.acl.Require(access.RoleAdmin, caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.totalCompanies
	if n > 0 {
		e.openRound(n)
	} else {
		e.state = roundIdle
		e.reports = nil
		e.order = nil
		e.avgCO2PerKm = nil
	}
	events.Emit(e.sink, events.RoundReset, map[string]any{"totalCompanies": n})
	return nil
}

// openRound allocates fresh per-round storage; stale data from a previous
// round can never leak into the next one.
func (e *Engine) openRound(n int) {
	e.totalCompanies = n
	e.reports = make(map[common.Address]report, n)
	e.order = make([]common.Address, 0, n)
	e.avgCO2PerKm = nil
	e.state = roundOpen
}

// SetRankingRole grants a company the per-round submission capability.
func (e *Engine) SetRankingRole(caller, addr common.Address) error {
	return e.acl.Grant(caller, access.RoleRanking, addr)
}

// ReceiveData records one company's (co2, distance) tuple for the round.
// The call that completes the cohort closes the round and returns last=true.
func (e *Engine) ReceiveData(caller, company common.Address, co2, distance *big.Int) (last bool, err error) {
	if err := e.acl.Require(access.RoleRanking, caller); err != nil {
		return false, err
	}
	if co2 == nil || co2.Sign() < 0 || distance == nil || distance.Sign() <= 0 {
		return false, ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != roundOpen {
		return false, ErrRoundClosed
	}
	if _, ok := e.reports[company]; ok {
		return false, ErrDuplicateSubmission
	}
	e.reports[company] = report{co2: new(big.Int).Set(co2), distance: new(big.Int).Set(distance)}
	e.order = append(e.order, company)

	last = len(e.reports) == e.totalCompanies
	if last {
		e.state = roundClosed
	}
	e.log.Info().Stringer("company", company).Bool("lastCompany", last).
		Int("reports", len(e.reports)).Msg("round data received")
	events.Emit(e.sink, events.CompanyDataReceived, map[string]any{
		"company": company.Hex(), "lastCompany": last,
	})
	return last, nil
}

// ReportCount returns how many companies reported this round.
func (e *Engine) ReportCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.reports)
}

func (e *Engine) TotalCompanies() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalCompanies
}

// CalculateRanking freezes the cohort average once the round is closed:
// avgCO2PerKm = floor(Σco2 · 1e18 / Σdistance). Idempotent on the frozen
// value while the round stays closed; rejected before the round closes and
// after it is consumed (AvgCO2PerKm still reads the frozen value).
func (e *Engine) CalculateRanking(caller common.Address) (*big.Int, error) {
	if err := e.acl.Require(access.RoleAdmin, caller); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case roundIdle, roundOpen:
		return nil, ErrRoundNotClosed
	case roundConsumed:
		return nil, ErrRoundConsumed
	}
	if e.avgCO2PerKm == nil {
		totalCO2 := new(big.Int)
		totalDist := new(big.Int)
		for _, r := range e.reports {
			totalCO2.Add(totalCO2, r.co2)
			totalDist.Add(totalDist, r.distance)
		}
		e.avgCO2PerKm = fixedpoint.Ratio(totalCO2, totalDist)
		e.log.Info().Str("avgCO2PerKm", e.avgCO2PerKm.String()).Msg("ranking calculated")
	}
	return new(big.Int).Set(e.avgCO2PerKm), nil
}

// CalcCO2Savings computes every company's distance-proportional savings
// against the frozen average and mints rewards for the positive ones:
// savings = ceil(avg · distance / 1e18) − co2. Ceiling rounding biases in
// favour of the reporting company. Consumes the round.
func (e *Engine) CalcCO2Savings(caller common.Address) ([]Savings, error) {
	if err := e.acl.Require(access.RoleAdmin, caller); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case roundIdle, roundOpen:
		return nil, ErrRoundNotClosed
	case roundConsumed:
		return nil, ErrRoundConsumed
	}
	if e.avgCO2PerKm == nil {
		totalCO2 := new(big.Int)
		totalDist := new(big.Int)
		for _, r := range e.reports {
			totalCO2.Add(totalCO2, r.co2)
			totalDist.Add(totalDist, r.distance)
		}
		e.avgCO2PerKm = fixedpoint.Ratio(totalCO2, totalDist)
	}

	out := make([]Savings, 0, len(e.order))
	for _, company := range e.order {
		r := e.reports[company]
		expected := fixedpoint.MulDivCeil(e.avgCO2PerKm, r.distance, fixedpoint.Scale)
		savings := new(big.Int).Sub(expected, r.co2)

		s := Savings{Company: company, Amount: savings}
		if savings.Sign() > 0 {
			if err := e.minter.Mint(e.self, company, savings); err != nil {
				return nil, err
			}
			s.Minted = true
			events.Emit(e.sink, events.SavingsCalculated, map[string]any{
				"company": company.Hex(), "savings": savings.String(),
			})
		}
		out = append(out, s)
	}
	e.state = roundConsumed
	e.log.Info().Int("companies", len(out)).Msg("savings settled")
	return out, nil
}

// AvgCO2PerKm returns the frozen average, nil before CalculateRanking.
func (e *Engine) AvgCO2PerKm() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.avgCO2PerKm == nil {
		return nil
	}
	return new(big.Int).Set(e.avgCO2PerKm)
}
