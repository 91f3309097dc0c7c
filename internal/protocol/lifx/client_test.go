package lifx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veselov/unilight/internal/color"
	"github.com/veselov/unilight/internal/light"
)

func newTestClient() *Client {
	c := NewClient()
	c.probeDelay = 0
	return c
}

func TestNormalizeDerivesHSVFromRGB(t *testing.T) {
	s := Normalize(light.State{RGB: light.Color(color.RGB{R: 255, G: 0, B: 0})})

	require.NotNil(t, s.Hue)
	require.NotNil(t, s.Saturation)
	assert.Equal(t, 0, *s.Hue)
	assert.Equal(t, 100, *s.Saturation)
	// Value channel fills brightness when the record has none.
	require.NotNil(t, s.Brightness)
	assert.Equal(t, 100, *s.Brightness)
}

func TestNormalizeDerivesRGBFromHSV(t *testing.T) {
	s := Normalize(light.State{
		Hue:        light.Int(120),
		Saturation: light.Int(100),
		Brightness: light.Int(100),
	})

	require.NotNil(t, s.RGB)
	assert.Equal(t, color.RGB{R: 0, G: 255, B: 0}, *s.RGB)
}

func TestNormalizeKeepsExistingBrightness(t *testing.T) {
	s := Normalize(light.State{
		RGB:        light.Color(color.RGB{R: 255, G: 255, B: 255}),
		Brightness: light.Int(30),
	})
	assert.Equal(t, 30, *s.Brightness)
}

func TestNormalizeLoneHueLeftAlone(t *testing.T) {
	s := Normalize(light.State{Hue: light.Int(120)})
	assert.Nil(t, s.RGB)
	assert.Nil(t, s.Saturation)
}

func TestDiscoverReturnsSimulatedBulbs(t *testing.T) {
	c := newTestClient()

	found, err := c.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 2)

	byID := map[string]bool{}
	for _, d := range found {
		byID[d.ID] = true
	}
	assert.True(t, byID["d073d5f1f9e2"])
	assert.True(t, byID["d073d5f1f9e3"])
}

func TestDiscoverUsesCache(t *testing.T) {
	c := newTestClient()

	_, err := c.Discover(context.Background())
	require.NoError(t, err)
	first := c.lastDiscovery

	_, err = c.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, c.lastDiscovery, "second sweep inside the TTL should not probe again")
}

func TestDiscoverHonorsContext(t *testing.T) {
	c := NewClient() // keep the probe delay
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Discover(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetStateUnknownDevice(t *testing.T) {
	c := newTestClient()
	_, err := c.GetState(context.Background(), "nope")
	assert.Error(t, err)
}

func TestSetStateMergesIntoCachedState(t *testing.T) {
	c := newTestClient()
	ctx := context.Background()

	echo, err := c.SetState(ctx, "d073d5f1f9e2", light.State{Brightness: light.Int(25)})
	require.NoError(t, err)
	assert.Equal(t, 25, *echo.Brightness)
	assert.Nil(t, echo.On)

	s, err := c.GetState(ctx, "d073d5f1f9e2")
	require.NoError(t, err)
	assert.Equal(t, 25, *s.Brightness)
	assert.Equal(t, true, *s.On, "untouched fields survive the merge")
}

func TestSetStateColorTempFallbackToRGB(t *testing.T) {
	c := newTestClient()
	ctx := context.Background()

	// A bulb with color but no color-temperature channel.
	c.devices["rgbonly"] = c.devices["d073d5f1f9e2"]
	d := c.devices["rgbonly"]
	d.ID = "rgbonly"
	d.State = light.State{
		On:        light.Bool(true),
		RGB:       light.Color(color.RGB{R: 255, G: 255, B: 255}),
		Reachable: light.Bool(true),
	}
	c.devices["rgbonly"] = d

	echo, err := c.SetState(ctx, "rgbonly", light.State{ColorTemp: light.Int(2700)})
	require.NoError(t, err)
	assert.Nil(t, echo.ColorTemp)
	require.NotNil(t, echo.RGB)
	warm := color.KelvinToRGB(2700)
	assert.Equal(t, warm, *echo.RGB)
}
