// Package access implements the capability layer shared by the ledger, the
// registry, the token stores and the ranking engine. A grant is an explicit
// (role, address) pair handed out by an admin at setup time; there is no
// ambient trust between components.
package access

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnauthorized is returned whenever a caller lacks the required role. The
// failing operation performs no state change.
var ErrUnauthorized = errors.New("unauthorized")

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleOperator Role = "OPERATOR"
	RoleVerifier Role = "VERIFIER"
	RoleMinter   Role = "MINTER"
	RoleBurner   Role = "BURNER"
	RoleRanking  Role = "RANKING"
)

// Controller tracks role grants for one component.
type Controller struct {
	mu     sync.Mutex
	grants map[Role]map[common.Address]struct{}
}

// NewController seeds the controller with the given admin.
func NewController(admin common.Address) *Controller {
	c := &Controller{grants: make(map[Role]map[common.Address]struct{})}
	c.grants[RoleAdmin] = map[common.Address]struct{}{admin: {}}
	return c
}

// Grant gives addr the role. Admin-only.
func (c *Controller) Grant(caller common.Address, role Role, addr common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasRole(RoleAdmin, caller) {
		return ErrUnauthorized
	}
	set, ok := c.grants[role]
	if !ok {
		set = make(map[common.Address]struct{})
		c.grants[role] = set
	}
	set[addr] = struct{}{}
	return nil
}

// Revoke removes the role from addr. Admin-only.
func (c *Controller) Revoke(caller common.Address, role Role, addr common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasRole(RoleAdmin, caller) {
		return ErrUnauthorized
	}
	if set, ok := c.grants[role]; ok {
		delete(set, addr)
	}
	return nil
}

// HasRole reports whether addr holds the role.
func (c *Controller) HasRole(role Role, addr common.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasRole(role, addr)
}

// Require returns ErrUnauthorized unless caller holds the role.
func (c *Controller) Require(role Role, caller common.Address) error {
	if !c.HasRole(role, caller) {
		return ErrUnauthorized
	}
	return nil
}

// RequireAny returns nil if caller holds at least one of the roles.
func (c *Controller) RequireAny(caller common.Address, roles ...Role) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range roles {
		if c.hasRole(r, caller) {
			return nil
		}
	}
	return ErrUnauthorized
}

func (c *Controller) hasRole(role Role, addr common.Address) bool {
	set, ok := c.grants[role]
	if !ok {
		return false
	}
	_, ok = set[addr]
	return ok
}
