// Package certificate implements the non-fungible offset-certificate store.
// One certificate is minted per qualifying offset event; holders can
// enumerate their certificates and read the offset metadata back.
package certificate

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/yourorg/carbledger/pkg/access"
	"github.com/yourorg/carbledger/pkg/events"
)

var ErrUnknownEntity = errors.New("unknown entity")

// Payload is the emission-offset metadata attached to a certificate.
type Payload struct {
	Company      common.Address `json:"company"`
	OffsetAmount *big.Int       `json:"offsetAmount"` // kg CO2 offset
	IssuedAt     time.Time      `json:"issuedAt"`
	Note         string         `json:"note,omitempty"`
}

type Store struct {
	mu      sync.Mutex
	acl     *access.Controller
	data    map[uint64]Payload
	owners  map[uint64]common.Address
	byOwner map[common.Address][]uint64
	nextID  uint64
	sink    events.Sink
	log     zerolog.Logger
}

type Option func(*Store)

func WithSink(s events.Sink) Option { return func(st *Store) { st.sink = s } }
func WithLogger(l zerolog.Logger) Option { return func(st *Store) { st.log = l } }

func New(acl *access.Controller, opts ...Option) *Store {
	st := &Store{
		acl:     acl,
		data:    make(map[uint64]Payload),
		owners:  make(map[uint64]common.Address),
		byOwner: make(map[common.Address][]uint64),
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(st)
	}
	st.log = st.log.With().Str("component", "certificate").Logger()
	return st
}

// Mint issues a certificate to `to` and returns its token ID. Restricted to
// the designated minter (the allowance ledger in the standard wiring).
func (st *Store) Mint(caller, to common.Address, payload Payload) (uint64, error) {
	if err := st.acl.Require(access.RoleMinter, caller); err != nil {
		return 0, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	id := st.nextID
	st.nextID++
	st.data[id] = payload
	st.owners[id] = to
	st.byOwner[to] = append(st.byOwner[to], id)
	st.log.Info().Uint64("tokenId", id).Stringer("to", to).Msg("certificate minted")
	events.Emit(st.sink, events.CertificateMinted, map[string]any{
		"tokenId": id, "to": to.Hex(), "offsetAmount": payload.OffsetAmount.String(),
	})
	return id, nil
}

// TokensOfOwner enumerates the certificate IDs held by owner.
func (st *Store) TokensOfOwner(owner common.Address) []uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]uint64, len(st.byOwner[owner]))
	copy(out, st.byOwner[owner])
	return out
}

// GetData returns the offset metadata of a certificate.
func (st *Store) GetData(tokenID uint64) (Payload, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	p, ok := st.data[tokenID]
	if !ok {
		return Payload{}, ErrUnknownEntity
	}
	return p, nil
}

// OwnerOf returns the certificate holder.
func (st *Store) OwnerOf(tokenID uint64) (common.Address, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	o, ok := st.owners[tokenID]
	if !ok {
		return common.Address{}, ErrUnknownEntity
	}
	return o, nil
}
