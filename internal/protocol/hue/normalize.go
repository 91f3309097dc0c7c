package hue

import (
	"github.com/veselov/unilight/internal/color"
	"github.com/veselov/unilight/internal/light"
)

// LightState is the Hue v1 API state with presence semantics: nil means the
// bridge did not report the field. Units are protocol-native (bri/sat 0-254,
// hue 0-65535, ct in mirek).
type LightState struct {
	On        *bool     `json:"on,omitempty"`
	Bri       *uint8    `json:"bri,omitempty"`
	Hue       *uint16   `json:"hue,omitempty"`
	Sat       *uint8    `json:"sat,omitempty"`
	Xy        []float32 `json:"xy,omitempty"`
	Ct        *uint16   `json:"ct,omitempty"`
	Reachable *bool     `json:"reachable,omitempty"`
}

// Normalize maps a Hue v1 state to the canonical record. Only reported fields
// are carried over; a mirek of zero is treated as unreported (the
// division-by-zero guard).
func Normalize(raw LightState) light.State {
	var s light.State

	if raw.On != nil {
		s.On = light.Bool(*raw.On)
	}
	if raw.Reachable != nil {
		s.Reachable = light.Bool(*raw.Reachable)
	}
	if raw.Bri != nil {
		s.Brightness = light.Int(color.BriToPercent(*raw.Bri))
	}
	if raw.Ct != nil && *raw.Ct > 0 {
		s.ColorTemp = light.Int(color.MirekToKelvin(int(*raw.Ct)))
	}
	if len(raw.Xy) == 2 {
		s.RGB = light.Color(color.XYToRGB(float64(raw.Xy[0]), float64(raw.Xy[1]), 1.0))
	}
	// A lone hue or sat is meaningless in the v1 API; require the pair.
	if raw.Hue != nil && raw.Sat != nil {
		s.Hue = light.Int(color.HueToDegrees(*raw.Hue))
		s.Saturation = light.Int(color.SatToPercent(*raw.Sat))
	}

	return s
}

// Denormalize maps a canonical patch to the Hue v1 encoding. Only fields set
// in the patch are emitted; a hue/saturation pair is emitted only when both
// halves are present.
func Denormalize(patch light.State) LightState {
	var raw LightState

	if patch.On != nil {
		raw.On = boolPtr(*patch.On)
	}
	if patch.Brightness != nil {
		bri := color.PercentToBri(*patch.Brightness)
		// The v1 API bri range is 1-254 and the SDK drops a zero value from
		// the wire payload, so 0% maps to the dimmest step.
		if bri == 0 {
			bri = 1
		}
		raw.Bri = &bri
	}
	if patch.ColorTemp != nil && *patch.ColorTemp > 0 {
		ct := uint16(color.KelvinToMirek(*patch.ColorTemp))
		raw.Ct = &ct
	}
	if patch.RGB != nil {
		x, y := color.RGBToXY(*patch.RGB)
		raw.Xy = []float32{float32(x), float32(y)}
	}
	if patch.Hue != nil && patch.Saturation != nil {
		hue := color.DegreesToHue(*patch.Hue)
		sat := color.PercentToSat(*patch.Saturation)
		raw.Hue = &hue
		raw.Sat = &sat
	}

	return raw
}

// Echo round-trips a canonical patch through the protocol encoding, yielding
// the state the device will actually hold after the write (including Hue's
// fixed-point quantization). The registry merges this into the stored record.
func Echo(patch light.State) light.State {
	return Normalize(Denormalize(patch))
}

func boolPtr(b bool) *bool { return &b }
