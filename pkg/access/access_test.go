package access

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	admin    = common.HexToAddress("0x01")
	operator = common.HexToAddress("0x02")
	intruder = common.HexToAddress("0x03")
)

func TestAdminSeededOnConstruction(t *testing.T) {
	c := NewController(admin)
	require.True(t, c.HasRole(RoleAdmin, admin))
	require.False(t, c.HasRole(RoleAdmin, operator))
}

func TestGrantRevoke(t *testing.T) {
	c := NewController(admin)

	require.NoError(t, c.Grant(admin, RoleOperator, operator))
	require.True(t, c.HasRole(RoleOperator, operator))

	require.NoError(t, c.Revoke(admin, RoleOperator, operator))
	require.False(t, c.HasRole(RoleOperator, operator))
}

func TestGrantRequiresAdmin(t *testing.T) {
	c := NewController(admin)
	require.ErrorIs(t, c.Grant(intruder, RoleMinter, intruder), ErrUnauthorized)
	require.False(t, c.HasRole(RoleMinter, intruder))
}

func TestRequireAny(t *testing.T) {
	c := NewController(admin)
	require.NoError(t, c.Grant(admin, RoleVerifier, operator))

	require.NoError(t, c.RequireAny(operator, RoleOperator, RoleVerifier))
	require.ErrorIs(t, c.RequireAny(intruder, RoleOperator, RoleVerifier), ErrUnauthorized)
}
