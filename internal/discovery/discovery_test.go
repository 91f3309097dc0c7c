package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/veselov/unilight/internal/light"
	"github.com/veselov/unilight/internal/protocol"
	"github.com/veselov/unilight/internal/registry"
)

type fakeHue struct {
	bridges   []protocol.BridgeInfo
	lights    map[string]protocol.DeviceInfo
	err       error
	pairUser  string
	pairCalls int
}

func (f *fakeHue) Discover(_ context.Context) ([]protocol.BridgeInfo, error) {
	return f.bridges, f.err
}

// Pair succeeds only when the fixture carries a user, mimicking a bridge
// whose link button was pressed.
func (f *fakeHue) Pair(_ context.Context, _, _ string) (string, error) {
	f.pairCalls++
	if f.pairUser == "" {
		return "", errors.New("link button not pressed")
	}
	return f.pairUser, nil
}

func (f *fakeHue) GetLights(_ context.Context, _ protocol.BridgeInfo) (map[string]protocol.DeviceInfo, error) {
	return f.lights, nil
}

func (f *fakeHue) GetState(_ context.Context, _ protocol.BridgeInfo, _ string) (light.State, error) {
	return light.State{}, nil
}

func (f *fakeHue) SetState(_ context.Context, _ protocol.BridgeInfo, _ string, patch light.State) (light.State, error) {
	return patch, nil
}

type fakeLifx struct {
	lights []protocol.DeviceInfo
	err    error
}

func (f *fakeLifx) Discover(_ context.Context) ([]protocol.DeviceInfo, error) {
	return f.lights, f.err
}

func (f *fakeLifx) GetState(_ context.Context, _ string) (light.State, error) {
	return light.State{Reachable: light.Bool(true)}, nil
}

func (f *fakeLifx) SetState(_ context.Context, _ string, patch light.State) (light.State, error) {
	return patch, nil
}

func newFixture(hue *fakeHue, lifx *fakeLifx) (*Service, *registry.Registry) {
	reg := registry.New(nil, nil, hue, lifx, rate.Inf)
	return New(reg, nil, hue, lifx, "unilightd"), reg
}

func TestRunFeedsRegistry(t *testing.T) {
	hue := &fakeHue{
		bridges: []protocol.BridgeInfo{{ID: "b1", IP: "192.168.1.2", Username: "user"}},
		lights:  map[string]protocol.DeviceInfo{"1": {ID: "1", Name: "Desk"}},
	}
	lifx := &fakeLifx{lights: []protocol.DeviceInfo{{ID: "d073d5f1f9e2", Name: "Living Room"}}}
	svc, reg := newFixture(hue, lifx)

	require.True(t, svc.Run(context.Background()))

	_, ok := reg.Device(protocol.Hue, "b1_1")
	assert.True(t, ok)
	_, ok = reg.Device(protocol.Lifx, "d073d5f1f9e2")
	assert.True(t, ok)
	_, ok = reg.Bridge("b1")
	assert.True(t, ok)
}

func TestRunSucceedsWhenOneProtocolFails(t *testing.T) {
	hue := &fakeHue{err: errors.New("meethue unreachable")}
	lifx := &fakeLifx{lights: []protocol.DeviceInfo{{ID: "x"}}}
	svc, _ := newFixture(hue, lifx)

	assert.True(t, svc.Run(context.Background()))
}

func TestRunFailsWhenNothingFound(t *testing.T) {
	svc, _ := newFixture(&fakeHue{}, &fakeLifx{})
	assert.False(t, svc.Run(context.Background()))
}

func TestRunPreservesPairingCredentials(t *testing.T) {
	hue := &fakeHue{bridges: []protocol.BridgeInfo{{ID: "b1", IP: "192.168.1.2"}}}
	svc, reg := newFixture(hue, &fakeLifx{})
	reg.AddOrUpdateBridge(context.Background(), protocol.BridgeInfo{ID: "b1", IP: "192.168.1.2", Username: "paired"})

	require.True(t, svc.Run(context.Background()))

	b, _ := reg.Bridge("b1")
	assert.Equal(t, "paired", b.Username, "rediscovery must not wipe the stored username")
	assert.Zero(t, hue.pairCalls, "a bridge with stored credentials must not re-pair")
}

func TestRunPairsUnpairedBridge(t *testing.T) {
	hue := &fakeHue{
		bridges:  []protocol.BridgeInfo{{ID: "b1", IP: "192.168.1.2"}},
		pairUser: "newuser",
		lights:   map[string]protocol.DeviceInfo{"1": {ID: "1", Name: "Desk"}},
	}
	svc, reg := newFixture(hue, &fakeLifx{})

	require.True(t, svc.Run(context.Background()))

	b, ok := reg.Bridge("b1")
	require.True(t, ok)
	assert.Equal(t, "newuser", b.Username)
	assert.Equal(t, 1, hue.pairCalls)

	_, ok = reg.Device(protocol.Hue, "b1_1")
	assert.True(t, ok, "pairing unlocks the light fetch")
}

func TestRunToleratesPairingFailure(t *testing.T) {
	hue := &fakeHue{bridges: []protocol.BridgeInfo{{ID: "b1", IP: "192.168.1.2"}}}
	svc, reg := newFixture(hue, &fakeLifx{})

	require.True(t, svc.Run(context.Background()))

	b, ok := reg.Bridge("b1")
	require.True(t, ok)
	assert.Empty(t, b.Username, "bridge is tracked even while unpaired")
	assert.Equal(t, 1, hue.pairCalls)
}

func TestSingleFlight(t *testing.T) {
	svc, _ := newFixture(&fakeHue{}, &fakeLifx{})

	svc.active.Store(true)
	assert.False(t, svc.Run(context.Background()))
	assert.False(t, svc.Start(context.Background()))
	svc.active.Store(false)

	assert.False(t, svc.Run(context.Background()), "runs again once the previous sweep ended")
}
