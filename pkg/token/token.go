// Package token implements the fungible carbon-credit balance store. Minting
// and burning are capability-gated; the ledger and the ranking engine are
// granted those roles at setup time.
package token

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/yourorg/carbledger/pkg/access"
	"github.com/yourorg/carbledger/pkg/events"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

type Token struct {
	mu          sync.Mutex
	acl         *access.Controller
	balances    map[common.Address]*big.Int
	totalMinted *big.Int
	totalBurned *big.Int
	sink        events.Sink
	log         zerolog.Logger
}

type Option func(*Token)

func WithSink(s events.Sink) Option { return func(t *Token) { t.sink = s } }
func WithLogger(l zerolog.Logger) Option { return func(t *Token) { t.log = l } }

func New(acl *access.Controller, opts ...Option) *Token {
	t := &Token{
		acl:         acl,
		balances:    make(map[common.Address]*big.Int),
		totalMinted: new(big.Int),
		totalBurned: new(big.Int),
		log:         zerolog.Nop(),
	}
	for _, o := range opts {
		o(t)
	}
	t.log = t.log.With().Str("component", "token").Logger()
	return t
}

// Mint credits amount to `to`. MINTER-gated.
func (t *Token) Mint(caller, to common.Address, amount *big.Int) error {
	if err := t.acl.Require(access.RoleMinter, caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit(to, amount)
	t.totalMinted.Add(t.totalMinted, amount)
	t.log.Info().Stringer("to", to).Str("amount", amount.String()).Msg("minted")
	events.Emit(t.sink, events.Minted, map[string]any{"to": to.Hex(), "amount": amount.String()})
	return nil
}

// Burn debits amount from `from`. BURNER-gated; fails without touching the
// balance when it cannot be covered.
func (t *Token) Burn(caller, from common.Address, amount *big.Int) error {
	if err := t.acl.Require(access.RoleBurner, caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.debit(from, amount); err != nil {
		return err
	}
	t.totalBurned.Add(t.totalBurned, amount)
	t.log.Info().Stringer("from", from).Str("amount", amount.String()).Msg("burned")
	events.Emit(t.sink, events.Burned, map[string]any{"from": from.Hex(), "amount": amount.String()})
	return nil
}

// Transfer moves amount from the caller to `to`. Open to any holder.
func (t *Token) Transfer(caller, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.debit(caller, amount); err != nil {
		return err
	}
	t.credit(to, amount)
	events.Emit(t.sink, events.Transferred, map[string]any{
		"from": caller.Hex(), "to": to.Hex(), "amount": amount.String(),
	})
	return nil
}

// BalanceOf returns a copy of the account balance.
func (t *Token) BalanceOf(addr common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (t *Token) TotalMinted() *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.totalMinted)
}

func (t *Token) TotalBurned() *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.totalBurned)
}

// TotalSupply = total minted − total burned = Σ balances.
func (t *Token) TotalSupply() *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Sub(t.totalMinted, t.totalBurned)
}

func (t *Token) credit(addr common.Address, amount *big.Int) {
	b, ok := t.balances[addr]
	if !ok {
		b = new(big.Int)
		t.balances[addr] = b
	}
	b.Add(b, amount)
}

func (t *Token) debit(addr common.Address, amount *big.Int) error {
	b, ok := t.balances[addr]
	if !ok || b.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	b.Sub(b, amount)
	return nil
}
