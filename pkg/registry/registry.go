// Package registry owns the device → vehicle → wallet identity mapping. The
// allowance ledger consumes it through the read-only Resolve capability.
package registry

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/yourorg/carbledger/pkg/access"
	"github.com/yourorg/carbledger/pkg/devkey"
	"github.com/yourorg/carbledger/pkg/events"
)

var (
	ErrUnknownEntity   = errors.New("unknown entity")
	ErrDuplicateEntity = errors.New("duplicate entity")
)

// VehicleProfile is immutable once set except by an admin re-registration.
type VehicleProfile struct {
	VehicleID         uint64 `json:"vehicleId"`
	VehicleType       string `json:"vehicleType"`
	AvgEmissionFactor uint64 `json:"avgEmissionFactor"` // gCO2 per km
}

type Device struct {
	DeviceID   uint64         `json:"deviceId"`
	VehicleID  uint64         `json:"vehicleId"`
	Owner      common.Address `json:"owner"`
	Registered bool           `json:"registered"`
}

// Resolution is the read capability handed to the ledger.
type Resolution struct {
	VehicleID uint64
	Wallet    common.Address
	Exists    bool
}

type Registry struct {
	mu       sync.Mutex
	acl      *access.Controller
	devices  map[uint64]*Device
	vehicles map[uint64]VehicleProfile
	byWallet map[common.Address][]uint64
	sink     events.Sink
	log      zerolog.Logger
}

type Option func(*Registry)

func WithSink(s events.Sink) Option { return func(r *Registry) { r.sink = s } }
func WithLogger(l zerolog.Logger) Option { return func(r *Registry) { r.log = l } }

func New(acl *access.Controller, opts ...Option) *Registry {
	r := &Registry{
		acl:      acl,
		devices:  make(map[uint64]*Device),
		vehicles: make(map[uint64]VehicleProfile),
		byWallet: make(map[common.Address][]uint64),
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.With().Str("component", "registry").Logger()
	return r
}

// RegisterVehicle records a vehicle profile. Admin-only; re-registering an
// existing vehicleID overwrites the profile (that is the admin escape hatch
// for an otherwise immutable record).
func (r *Registry) RegisterVehicle(caller common.Address, vehicleID uint64, vehicleType string, avgFactor uint64) error {
	if err := r.acl.Require(access.RoleAdmin, caller); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vehicles[vehicleID] = VehicleProfile{VehicleID: vehicleID, VehicleType: vehicleType, AvgEmissionFactor: avgFactor}
	r.log.Info().Uint64("vehicle", vehicleID).Str("type", vehicleType).Msg("vehicle registered")
	events.Emit(r.sink, events.VehicleRegistered, map[string]any{
		"vehicleId": vehicleID, "vehicleType": vehicleType,
	})
	return nil
}

// RegisterDevice binds a device to a known vehicle and an owning wallet.
func (r *Registry) RegisterDevice(caller common.Address, deviceID, vehicleID uint64, wallet common.Address) error {
	if err := r.acl.RequireAny(caller, access.RoleAdmin, access.RoleOperator); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vehicles[vehicleID]; !ok {
		return ErrUnknownEntity
	}
	if d, ok := r.devices[deviceID]; ok {
		if d.Registered {
			return ErrDuplicateEntity
		}
		// re-registration: drop the stale wallet index entry first
		r.byWallet[d.Owner] = removeID(r.byWallet[d.Owner], deviceID)
	}
	r.devices[deviceID] = &Device{DeviceID: deviceID, VehicleID: vehicleID, Owner: wallet, Registered: true}
	r.byWallet[wallet] = append(r.byWallet[wallet], deviceID)
	r.log.Info().Uint64("device", deviceID).Uint64("vehicle", vehicleID).Stringer("wallet", wallet).Msg("device registered")
	events.Emit(r.sink, events.DeviceRegistered, map[string]any{
		"deviceId": deviceID, "vehicleId": vehicleID, "wallet": wallet.Hex(),
	})
	return nil
}

func removeID(ids []uint64, id uint64) []uint64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// UnregisterDevice soft-deletes a device: the record survives but no longer
// resolves.
func (r *Registry) UnregisterDevice(caller common.Address, deviceID uint64) error {
	if err := r.acl.RequireAny(caller, access.RoleAdmin, access.RoleOperator); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok || !d.Registered {
		return ErrUnknownEntity
	}
	d.Registered = false
	events.Emit(r.sink, events.DeviceUnregistered, map[string]any{"deviceId": deviceID})
	return nil
}

// Resolve is the read-only capability consumed by the allowance ledger.
func (r *Registry) Resolve(deviceID uint64) Resolution {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok || !d.Registered {
		return Resolution{}
	}
	return Resolution{VehicleID: d.VehicleID, Wallet: d.Owner, Exists: true}
}

// DeviceKey returns the keccak commitment binding the device to its owner.
// The emission-report circuit exposes the same value as a public input.
func (r *Registry) DeviceKey(deviceID uint64) (common.Hash, error) {
	res := r.Resolve(deviceID)
	if !res.Exists {
		return common.Hash{}, ErrUnknownEntity
	}
	return devkey.Calc(deviceID, res.Wallet), nil
}

func (r *Registry) DeviceData(deviceID uint64) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return Device{}, ErrUnknownEntity
	}
	return *d, nil
}

func (r *Registry) VehicleData(vehicleID uint64) (VehicleProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vehicles[vehicleID]
	if !ok {
		return VehicleProfile{}, ErrUnknownEntity
	}
	return v, nil
}

// DevicesByWallet lists the device IDs whose latest registration binds them
// to the wallet.
func (r *Registry) DevicesByWallet(wallet common.Address) []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, len(r.byWallet[wallet]))
	copy(out, r.byWallet[wallet])
	return out
}
