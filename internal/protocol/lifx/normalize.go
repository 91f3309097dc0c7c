// Package lifx implements the LIFX protocol client and state normalizer.
// LIFX reports brightness in percent, color temperature in Kelvin, and hue in
// degrees, so the wire units already match the canonical record; the
// normalizer's job is cross-deriving the RGB and HSV encodings so a record
// carries both whenever either is supplied.
//
// The client is a LAN simulation. The real binary UDP protocol
// (GetService/SetColor messages) is out of scope here and would slot in
// behind the same surface.
package lifx

import (
	"github.com/veselov/unilight/internal/color"
	"github.com/veselov/unilight/internal/light"
)

// Normalize maps a LIFX state to the canonical record. Units pass through;
// missing color encodings are derived from the one present.
func Normalize(raw light.State) light.State {
	return crossDerive(raw)
}

// Denormalize maps a canonical patch to the LIFX encoding. The dual of
// Normalize with the same cross-derivation, so a write carries both color
// encodings when either is in the patch.
func Denormalize(patch light.State) light.State {
	return crossDerive(patch)
}

// Echo round-trips a canonical patch through the protocol encoding. LIFX
// units are lossless, so the echo is the patch plus any derived encoding.
func Echo(patch light.State) light.State {
	return Normalize(Denormalize(patch))
}

// crossDerive fills in whichever of the RGB / hue+saturation encodings is
// absent, using the other. Brightness doubles as the HSV value channel; when
// deriving HSV from RGB it is filled in only if the record lacks one.
func crossDerive(s light.State) light.State {
	hasHS := s.Hue != nil && s.Saturation != nil

	if s.RGB != nil && !hasHS {
		h, sat, v := color.RGBToHSV(*s.RGB)
		s.Hue = light.Int(int(h))
		s.Saturation = light.Int(int(sat * 100))
		if s.Brightness == nil {
			s.Brightness = light.Int(int(v * 100))
		}
		return s
	}

	if hasHS && s.RGB == nil {
		v := 1.0
		if s.Brightness != nil {
			v = float64(*s.Brightness) / 100
		}
		rgb := color.HSVToRGB(float64(*s.Hue), float64(*s.Saturation)/100, v)
		s.RGB = light.Color(rgb)
	}

	return s
}
