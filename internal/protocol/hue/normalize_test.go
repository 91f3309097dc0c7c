package hue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veselov/unilight/internal/color"
	"github.com/veselov/unilight/internal/light"
)

func u8(v uint8) *uint8    { return &v }
func u16(v uint16) *uint16 { return &v }

func TestNormalizeFullState(t *testing.T) {
	on := true
	reachable := true
	raw := LightState{
		On:        &on,
		Bri:       u8(254),
		Hue:       u16(32768),
		Sat:       u8(127),
		Ct:        u16(370),
		Reachable: &reachable,
	}

	s := Normalize(raw)

	assert.Equal(t, true, *s.On)
	assert.Equal(t, true, *s.Reachable)
	assert.Equal(t, 100, *s.Brightness)
	assert.Equal(t, 2703, *s.ColorTemp)
	assert.Equal(t, 180, *s.Hue)
	assert.Equal(t, 50, *s.Saturation)
	assert.Nil(t, s.RGB)
}

func TestNormalizeSkipsUnreported(t *testing.T) {
	s := Normalize(LightState{Bri: u8(127)})

	assert.Equal(t, 50, *s.Brightness)
	assert.Nil(t, s.On)
	assert.Nil(t, s.ColorTemp)
	assert.Nil(t, s.Hue)
	assert.Nil(t, s.Saturation)
	assert.Nil(t, s.Reachable)
}

func TestNormalizeZeroMirekIgnored(t *testing.T) {
	s := Normalize(LightState{Ct: u16(0)})
	assert.Nil(t, s.ColorTemp)
}

func TestNormalizeLoneHueIgnored(t *testing.T) {
	s := Normalize(LightState{Hue: u16(10000)})
	assert.Nil(t, s.Hue)
	assert.Nil(t, s.Saturation)

	s = Normalize(LightState{Sat: u8(100)})
	assert.Nil(t, s.Hue)
	assert.Nil(t, s.Saturation)
}

func TestNormalizeXY(t *testing.T) {
	s := Normalize(LightState{Xy: []float32{0.3127, 0.329}})
	if assert.NotNil(t, s.RGB) {
		// D65 white point lands near full white at brightness 1.0.
		assert.InDelta(t, 255, int(s.RGB.R), 10)
		assert.InDelta(t, 255, int(s.RGB.G), 10)
		assert.InDelta(t, 255, int(s.RGB.B), 10)
	}
}

func TestDenormalizeOnlySetFields(t *testing.T) {
	raw := Denormalize(light.State{Brightness: light.Int(100)})

	assert.Nil(t, raw.On)
	assert.Nil(t, raw.Hue)
	assert.Nil(t, raw.Sat)
	assert.Nil(t, raw.Ct)
	assert.Nil(t, raw.Xy)
	if assert.NotNil(t, raw.Bri) {
		assert.Equal(t, uint8(254), *raw.Bri)
	}
}

func TestDenormalizeZeroBrightness(t *testing.T) {
	// bri 0 would vanish from the SDK's write payload, so 0% lands on the
	// dimmest step instead of being lost.
	raw := Denormalize(light.State{Brightness: light.Int(0)})
	if assert.NotNil(t, raw.Bri) {
		assert.Equal(t, uint8(1), *raw.Bri)
	}

	echo := Echo(light.State{Brightness: light.Int(0)})
	if assert.NotNil(t, echo.Brightness) {
		assert.Equal(t, 0, *echo.Brightness)
	}
}

func TestDenormalizePairRule(t *testing.T) {
	raw := Denormalize(light.State{Hue: light.Int(180)})
	assert.Nil(t, raw.Hue)
	assert.Nil(t, raw.Sat)

	raw = Denormalize(light.State{Hue: light.Int(180), Saturation: light.Int(50)})
	if assert.NotNil(t, raw.Hue) && assert.NotNil(t, raw.Sat) {
		assert.Equal(t, uint16(32768), *raw.Hue)
		assert.Equal(t, uint8(127), *raw.Sat)
	}
}

func TestDenormalizeColorTemp(t *testing.T) {
	raw := Denormalize(light.State{ColorTemp: light.Int(2700)})
	if assert.NotNil(t, raw.Ct) {
		assert.Equal(t, uint16(370), *raw.Ct)
	}
}

func TestDenormalizeRGB(t *testing.T) {
	raw := Denormalize(light.State{RGB: light.Color(color.RGB{R: 255, G: 0, B: 0})})
	if assert.Len(t, raw.Xy, 2) {
		assert.InDelta(t, 0.70, float64(raw.Xy[0]), 0.05)
		assert.InDelta(t, 0.30, float64(raw.Xy[1]), 0.05)
	}
}

func TestEchoQuantizes(t *testing.T) {
	patch := light.State{
		On:         light.Bool(true),
		Brightness: light.Int(73),
		ColorTemp:  light.Int(4000),
	}

	echo := Echo(patch)

	assert.Equal(t, true, *echo.On)
	assert.InDelta(t, 73, *echo.Brightness, 1)
	assert.InDelta(t, 4000, *echo.ColorTemp, 25)
	assert.Nil(t, echo.Hue)
	assert.Nil(t, echo.RGB)
}
