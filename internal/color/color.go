// Package color provides conversions between protocol-native light units and
// the canonical unit set (percent brightness, Kelvin, degrees, 8-bit RGB).
// All functions are pure; round trips are approximate due to integer rounding.
package color

import "math"

// Hue bridge v1 API ranges.
const (
	HueBriMax = 254
	HueHueMax = 65535
	HueSatMax = 254
)

// RGB is an 8-bit sRGB triple.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// RGBToXY converts an sRGB color to CIE xy chromaticity using the Wide RGB D65
// matrix published in the Hue developer documentation. Returns (0, 0) for
// pure black (degenerate X+Y+Z).
func RGBToXY(c RGB) (x, y float64) {
	r := gamma(float64(c.R) / 255.0)
	g := gamma(float64(c.G) / 255.0)
	b := gamma(float64(c.B) / 255.0)

	X := r*0.649926 + g*0.103455 + b*0.197109
	Y := r*0.234327 + g*0.743075 + b*0.022598
	Z := g*0.053077 + b*1.035763

	sum := X + Y + Z
	if sum == 0 {
		return 0, 0
	}
	return X / sum, Y / sum
}

// XYToRGB converts CIE xy chromaticity back to sRGB. brightness scales the
// Y component and is expected in [0, 1]. Returns black when y is zero.
func XYToRGB(x, y, brightness float64) RGB {
	if y == 0 {
		return RGB{}
	}

	Y := brightness
	X := (Y / y) * x
	Z := (Y / y) * (1 - x - y)

	r := X*1.656492 - Y*0.354851 - Z*0.255038
	g := -X*0.707196 + Y*1.655397 + Z*0.036152
	b := X*0.051713 - Y*0.121364 + Z*1.011530

	return RGB{
		R: clamp8(reverseGamma(r) * 255),
		G: clamp8(reverseGamma(g) * 255),
		B: clamp8(reverseGamma(b) * 255),
	}
}

// RGBToHSV converts sRGB to hue (degrees, [0, 360)), saturation and value
// (both [0, 1]).
func RGBToHSV(c RGB) (h, s, v float64) {
	r := float64(c.R) / 255.0
	g := float64(c.G) / 255.0
	b := float64(c.B) / 255.0

	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	d := max - min

	v = max
	if max > 0 {
		s = d / max
	}

	switch {
	case d == 0:
		h = 0
	case max == r:
		h = 60 * math.Mod((g-b)/d, 6)
	case max == g:
		h = 60 * ((b-r)/d + 2)
	default:
		h = 60 * ((r-g)/d + 4)
	}
	if h < 0 {
		h += 360
	}
	return h, s, v
}

// HSVToRGB converts hue (degrees), saturation and value (both [0, 1]) to sRGB.
func HSVToRGB(h, s, v float64) RGB {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}

	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return RGB{
		R: clamp8((r + m) * 255),
		G: clamp8((g + m) * 255),
		B: clamp8((b + m) * 255),
	}
}

// KelvinToMirek converts a color temperature in Kelvin to Hue mirek
// (reciprocal megakelvin). Returns 0 for non-positive input.
func KelvinToMirek(kelvin int) int {
	if kelvin <= 0 {
		return 0
	}
	return int(math.Round(1_000_000 / float64(kelvin)))
}

// MirekToKelvin converts Hue mirek back to Kelvin. Returns 0 for non-positive
// input (the division-by-zero guard).
func MirekToKelvin(mirek int) int {
	if mirek <= 0 {
		return 0
	}
	return int(math.Round(1_000_000 / float64(mirek)))
}

// BriToPercent converts a Hue 0-254 brightness to canonical percent.
func BriToPercent(bri uint8) int {
	return int(math.Round(float64(bri) / HueBriMax * 100))
}

// PercentToBri converts canonical percent brightness to the Hue 0-254 scale.
func PercentToBri(pct int) uint8 {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return uint8(math.Round(float64(pct) / 100 * HueBriMax))
}

// HueToDegrees converts a Hue 0-65535 hue value to canonical degrees.
func HueToDegrees(hue uint16) int {
	return int(math.Round(float64(hue) / HueHueMax * 360))
}

// DegreesToHue converts canonical degrees to the Hue 0-65535 scale.
func DegreesToHue(deg int) uint16 {
	if deg < 0 {
		deg = 0
	}
	if deg > 360 {
		deg = 360
	}
	return uint16(math.Round(float64(deg) / 360 * HueHueMax))
}

// SatToPercent converts a Hue 0-254 saturation to canonical percent.
func SatToPercent(sat uint8) int {
	return int(math.Round(float64(sat) / HueSatMax * 100))
}

// PercentToSat converts canonical percent saturation to the Hue 0-254 scale.
func PercentToSat(pct int) uint8 {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return uint8(math.Round(float64(pct) / 100 * HueSatMax))
}

// KelvinToRGB approximates the sRGB color of a black-body radiator at the
// given temperature. Valid for 1000K-40000K; input is clamped. Based on
// Tanner Helland's curve fit.
func KelvinToRGB(kelvin int) RGB {
	t := float64(kelvin)
	if t < 1000 {
		t = 1000
	}
	if t > 40000 {
		t = 40000
	}
	t /= 100

	var r, g, b float64

	if t <= 66 {
		r = 255
	} else {
		r = 329.698727446 * math.Pow(t-60, -0.1332047592)
	}

	if t <= 66 {
		g = 99.4708025861*math.Log(t) - 161.1195681661
	} else {
		g = 288.1221695283 * math.Pow(t-60, -0.0755148492)
	}

	switch {
	case t >= 66:
		b = 255
	case t <= 19:
		b = 0
	default:
		b = 138.5177312231*math.Log(t-10) - 305.0447927307
	}

	return RGB{R: clamp8(r), G: clamp8(g), B: clamp8(b)}
}

// RGBToKelvin estimates color temperature from an sRGB triple. This is a
// coarse bucketed estimate derived from the red/blue ratio, not a colorimetric
// calculation.
func RGBToKelvin(c RGB) int {
	if c.B == 0 {
		return 2000
	}
	ratio := float64(c.R) / float64(c.B)

	switch {
	case ratio > 2.5:
		return 2000
	case ratio > 2.0:
		return 2500
	case ratio > 1.5:
		return 3000
	case ratio > 1.2:
		return 3500
	case ratio > 1.0:
		return 4000
	case ratio > 0.8:
		return 4500
	case ratio > 0.6:
		return 5000
	case ratio > 0.5:
		return 5500
	case ratio > 0.4:
		return 6000
	default:
		return 6500
	}
}

// gamma applies the sRGB electro-optical transfer function.
func gamma(v float64) float64 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}

// reverseGamma applies the inverse sRGB transfer function.
func reverseGamma(v float64) float64 {
	if v <= 0.0031308 {
		return v * 12.92
	}
	return 1.055*math.Pow(v, 1/2.4) - 0.055
}

func clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
