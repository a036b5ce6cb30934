package registry

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/carbledger/pkg/access"
	"github.com/yourorg/carbledger/pkg/devkey"
	"github.com/yourorg/carbledger/pkg/events"
)

var (
	admin  = common.HexToAddress("0xA0")
	wallet = common.HexToAddress("0xB1")
)

func newRegistry(t *testing.T) (*Registry, *events.Recorder) {
	t.Helper()
	rec := events.NewRecorder()
	return New(access.NewController(admin), WithSink(rec)), rec
}

func TestRegisterResolve(t *testing.T) {
	r, rec := newRegistry(t)

	require.NoError(t, r.RegisterVehicle(admin, 1234, "bike", 90))
	require.NoError(t, r.RegisterDevice(admin, 6969, 1234, wallet))

	res := r.Resolve(6969)
	require.True(t, res.Exists)
	require.Equal(t, wallet, res.Wallet)
	require.Equal(t, uint64(1234), res.VehicleID)

	require.Len(t, rec.ByKind(events.DeviceRegistered), 1)
}

func TestRegisterDeviceUnknownVehicle(t *testing.T) {
	r, _ := newRegistry(t)
	require.ErrorIs(t, r.RegisterDevice(admin, 6969, 42, wallet), ErrUnknownEntity)
}

func TestRegisterDeviceDuplicate(t *testing.T) {
	r, _ := newRegistry(t)
	require.NoError(t, r.RegisterVehicle(admin, 1234, "truck", 800))
	require.NoError(t, r.RegisterDevice(admin, 6969, 1234, wallet))
	require.ErrorIs(t, r.RegisterDevice(admin, 6969, 1234, wallet), ErrDuplicateEntity)
}

func TestUnregisterSoftDeletes(t *testing.T) {
	r, _ := newRegistry(t)
	require.NoError(t, r.RegisterVehicle(admin, 1234, "bike", 90))
	require.NoError(t, r.RegisterDevice(admin, 6969, 1234, wallet))
	require.NoError(t, r.UnregisterDevice(admin, 6969))

	require.False(t, r.Resolve(6969).Exists)

	// the record itself survives
	d, err := r.DeviceData(6969)
	require.NoError(t, err)
	require.False(t, d.Registered)
}

func TestUnauthorizedMutationsRejected(t *testing.T) {
	r, _ := newRegistry(t)
	outsider := common.HexToAddress("0xEE")
	require.ErrorIs(t, r.RegisterVehicle(outsider, 1, "car", 120), access.ErrUnauthorized)
	require.ErrorIs(t, r.RegisterDevice(outsider, 1, 1, wallet), access.ErrUnauthorized)
}

func TestDeviceKeyMatchesCommitment(t *testing.T) {
	r, _ := newRegistry(t)
	require.NoError(t, r.RegisterVehicle(admin, 1234, "bike", 90))
	require.NoError(t, r.RegisterDevice(admin, 6969, 1234, wallet))

	key, err := r.DeviceKey(6969)
	require.NoError(t, err)
	require.Equal(t, devkey.Calc(6969, wallet), key)

	_, err = r.DeviceKey(404)
	require.ErrorIs(t, err, ErrUnknownEntity)
}

func TestDevicesByWallet(t *testing.T) {
	r, _ := newRegistry(t)
	require.NoError(t, r.RegisterVehicle(admin, 1, "car", 120))
	require.NoError(t, r.RegisterDevice(admin, 10, 1, wallet))
	require.NoError(t, r.RegisterDevice(admin, 11, 1, wallet))
	require.Equal(t, []uint64{10, 11}, r.DevicesByWallet(wallet))
}

func TestReRegisterKeepsWalletIndexClean(t *testing.T) {
	r, _ := newRegistry(t)
	require.NoError(t, r.RegisterVehicle(admin, 1, "car", 120))
	require.NoError(t, r.RegisterDevice(admin, 10, 1, wallet))

	// re-registering under the same wallet must not duplicate the index entry
	require.NoError(t, r.UnregisterDevice(admin, 10))
	require.NoError(t, r.RegisterDevice(admin, 10, 1, wallet))
	require.Equal(t, []uint64{10}, r.DevicesByWallet(wallet))

	// moving the device to a new owner removes it from the old wallet
	other := common.HexToAddress("0xB2")
	require.NoError(t, r.UnregisterDevice(admin, 10))
	require.NoError(t, r.RegisterDevice(admin, 10, 1, other))
	require.Empty(t, r.DevicesByWallet(wallet))
	require.Equal(t, []uint64{10}, r.DevicesByWallet(other))
	require.Equal(t, other, r.Resolve(10).Wallet)
}
