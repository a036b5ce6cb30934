package token

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/carbledger/pkg/access"
	"github.com/yourorg/carbledger/pkg/events"
)

var (
	admin  = common.HexToAddress("0xA0")
	minter = common.HexToAddress("0xA1")
	alice  = common.HexToAddress("0xB1")
	bob    = common.HexToAddress("0xB2")
)

func newToken(t *testing.T) (*Token, *events.Recorder) {
	t.Helper()
	acl := access.NewController(admin)
	require.NoError(t, acl.Grant(admin, access.RoleMinter, minter))
	require.NoError(t, acl.Grant(admin, access.RoleBurner, minter))
	rec := events.NewRecorder()
	return New(acl, WithSink(rec)), rec
}

func TestMintAndBalance(t *testing.T) {
	tok, rec := newToken(t)

	require.NoError(t, tok.Mint(minter, alice, big.NewInt(100)))
	require.Equal(t, big.NewInt(100), tok.BalanceOf(alice))

	ev := rec.ByKind(events.Minted)
	require.Len(t, ev, 1)
	require.Equal(t, alice.Hex(), ev[0].Fields["to"])
	require.Equal(t, "100", ev[0].Fields["amount"])
}

func TestMintRequiresRole(t *testing.T) {
	tok, _ := newToken(t)
	require.ErrorIs(t, tok.Mint(alice, alice, big.NewInt(1)), access.ErrUnauthorized)
	require.Zero(t, tok.BalanceOf(alice).Sign())
}

func TestBurnFailsWithoutBalance(t *testing.T) {
	tok, _ := newToken(t)
	require.NoError(t, tok.Mint(minter, alice, big.NewInt(50)))
	require.ErrorIs(t, tok.Burn(minter, alice, big.NewInt(51)), ErrInsufficientBalance)
	// nothing changed
	require.Equal(t, big.NewInt(50), tok.BalanceOf(alice))
	require.Equal(t, big.NewInt(0).String(), tok.TotalBurned().String())
}

func TestNonPositiveAmountsRejected(t *testing.T) {
	tok, _ := newToken(t)
	require.ErrorIs(t, tok.Mint(minter, alice, big.NewInt(0)), ErrInvalidAmount)
	require.ErrorIs(t, tok.Mint(minter, alice, big.NewInt(-5)), ErrInvalidAmount)
	require.ErrorIs(t, tok.Transfer(alice, bob, nil), ErrInvalidAmount)
}

func TestConservation(t *testing.T) {
	tok, _ := newToken(t)

	require.NoError(t, tok.Mint(minter, alice, big.NewInt(300)))
	require.NoError(t, tok.Mint(minter, bob, big.NewInt(200)))
	require.NoError(t, tok.Transfer(alice, bob, big.NewInt(120)))
	require.NoError(t, tok.Burn(minter, bob, big.NewInt(70)))

	sum := new(big.Int).Add(tok.BalanceOf(alice), tok.BalanceOf(bob))
	require.Equal(t, tok.TotalSupply(), sum)
	require.Equal(t, new(big.Int).Sub(tok.TotalMinted(), tok.TotalBurned()), sum)
}

func TestTransferInsufficient(t *testing.T) {
	tok, _ := newToken(t)
	require.ErrorIs(t, tok.Transfer(alice, bob, big.NewInt(10)), ErrInsufficientBalance)
}
