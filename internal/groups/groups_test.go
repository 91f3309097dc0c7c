package groups

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/veselov/unilight/internal/light"
	"github.com/veselov/unilight/internal/store"
)

// fakeRegistry accepts writes for the devices it knows about and records the
// order members were addressed in.
type fakeRegistry struct {
	known map[string]bool
	calls []string
}

func (f *fakeRegistry) SetState(_ context.Context, proto, id string, _ light.State) bool {
	key := proto + ":" + id
	f.calls = append(f.calls, key)
	return f.known[key]
}

func newTestCoordinator(reg *fakeRegistry) *Coordinator {
	return New(nil, reg, rate.Inf)
}

func TestCreateValidation(t *testing.T) {
	c := newTestCoordinator(&fakeRegistry{})

	_, ok := c.Create("", []Member{{Protocol: "lifx", DeviceID: "x"}})
	assert.False(t, ok, "empty name rejected")

	_, ok = c.Create("Living Room", nil)
	assert.False(t, ok, "empty members rejected")

	id, ok := c.Create("Living Room", []Member{{Protocol: "lifx", DeviceID: "x"}})
	require.True(t, ok)
	assert.NotEmpty(t, id)

	g, found := c.Get(id)
	require.True(t, found)
	assert.Equal(t, "Living Room", g.Name)
	assert.Len(t, g.Members, 1)
}

func TestCreateGeneratesUniqueIDs(t *testing.T) {
	c := newTestCoordinator(&fakeRegistry{})
	members := []Member{{Protocol: "lifx", DeviceID: "x"}}

	a, _ := c.Create("A", members)
	b, _ := c.Create("B", members)
	assert.NotEqual(t, a, b)
}

func TestUpdatePartial(t *testing.T) {
	c := newTestCoordinator(&fakeRegistry{})
	id, _ := c.Create("Old", []Member{{Protocol: "lifx", DeviceID: "x"}})

	name := "New"
	require.True(t, c.Update(id, &name, nil))

	g, _ := c.Get(id)
	assert.Equal(t, "New", g.Name)
	assert.Len(t, g.Members, 1, "members untouched")

	members := []Member{{Protocol: "hue", DeviceID: "b1_1"}, {Protocol: "lifx", DeviceID: "y"}}
	require.True(t, c.Update(id, nil, &members))

	g, _ = c.Get(id)
	assert.Equal(t, "New", g.Name)
	assert.Len(t, g.Members, 2)
}

func TestUpdateUnknownGroup(t *testing.T) {
	c := newTestCoordinator(&fakeRegistry{})
	name := "x"
	assert.False(t, c.Update("nope", &name, nil))
}

func TestDelete(t *testing.T) {
	c := newTestCoordinator(&fakeRegistry{})
	id, _ := c.Create("G", []Member{{Protocol: "lifx", DeviceID: "x"}})

	assert.True(t, c.Delete(id))
	assert.False(t, c.Delete(id))
	_, found := c.Get(id)
	assert.False(t, found)
}

func TestMutationsKeepCacheWhenPersistFails(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "groups.db"))
	require.NoError(t, err)
	c := New(st, &fakeRegistry{}, rate.Inf)

	members := []Member{{Protocol: "lifx", DeviceID: "x"}}
	id, ok := c.Create("Living Room", members)
	require.True(t, ok)

	// Every write now fails, so each mutation must be rejected with the
	// cache left exactly as it was.
	require.NoError(t, st.Close())

	_, ok = c.Create("Bedroom", members)
	assert.False(t, ok)
	assert.Len(t, c.List(), 1)

	name := "Lounge"
	assert.False(t, c.Update(id, &name, nil))
	g, _ := c.Get(id)
	assert.Equal(t, "Living Room", g.Name)

	assert.False(t, c.Delete(id))
	_, found := c.Get(id)
	assert.True(t, found)
}

func TestListOrderedByName(t *testing.T) {
	c := newTestCoordinator(&fakeRegistry{})
	members := []Member{{Protocol: "lifx", DeviceID: "x"}}
	c.Create("Kitchen", members)
	c.Create("Bedroom", members)

	groups := c.List()
	require.Len(t, groups, 2)
	assert.Equal(t, "Bedroom", groups[0].Name)
	assert.Equal(t, "Kitchen", groups[1].Name)
}

func TestSetGroupStateFansOutInOrder(t *testing.T) {
	reg := &fakeRegistry{known: map[string]bool{"lifx:x": true, "hue:b1_1": true}}
	c := newTestCoordinator(reg)
	id, _ := c.Create("G", []Member{
		{Protocol: "hue", DeviceID: "b1_1"},
		{Protocol: "lifx", DeviceID: "x"},
	})

	ok := c.SetGroupState(context.Background(), id, light.State{On: light.Bool(true)})

	assert.True(t, ok)
	assert.Equal(t, []string{"hue:b1_1", "lifx:x"}, reg.calls)
}

func TestSetGroupStateDanglingMember(t *testing.T) {
	reg := &fakeRegistry{known: map[string]bool{"lifx:x": true}}
	c := newTestCoordinator(reg)
	id, _ := c.Create("G", []Member{
		{Protocol: "lifx", DeviceID: "x"},
		{Protocol: "lifx", DeviceID: "removed"},
	})

	ok := c.SetGroupState(context.Background(), id, light.State{On: light.Bool(true)})

	assert.False(t, ok, "dangling member fails the aggregate")
	assert.Len(t, reg.calls, 2, "valid member still written, sweep completes")
}

func TestSetGroupStateUnknownGroup(t *testing.T) {
	reg := &fakeRegistry{}
	c := newTestCoordinator(reg)

	assert.False(t, c.SetGroupState(context.Background(), "nope", light.State{}))
	assert.Empty(t, reg.calls)
}
