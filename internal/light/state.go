// Package light defines the canonical, vendor-neutral light state record used
// for all cross-protocol operations.
package light

import (
	"fmt"
	"strings"

	"github.com/veselov/unilight/internal/color"
)

// State is the canonical light state. Every field is optional; nil means the
// device did not report the value (or, in a patch, that the field is
// unchanged). Hue/Saturation and RGB are alternate encodings of the same
// chrominance and may drift by a couple of units across conversion round
// trips.
type State struct {
	On         *bool      `json:"on,omitempty"`
	Brightness *int       `json:"brightness,omitempty"` // 0-100 percent
	ColorTemp  *int       `json:"color_temp,omitempty"` // Kelvin
	Hue        *int       `json:"hue,omitempty"`        // 0-360 degrees
	Saturation *int       `json:"saturation,omitempty"` // 0-100 percent
	RGB        *color.RGB `json:"rgb,omitempty"`
	Reachable  *bool      `json:"reachable,omitempty"`
}

// Merge applies every non-nil field of patch onto s, field by field. Fields
// absent from the patch are left untouched; this is the shallow merge the
// normalizers rely on.
func (s *State) Merge(patch State) {
	if patch.On != nil {
		s.On = patch.On
	}
	if patch.Brightness != nil {
		s.Brightness = patch.Brightness
	}
	if patch.ColorTemp != nil {
		s.ColorTemp = patch.ColorTemp
	}
	if patch.Hue != nil {
		s.Hue = patch.Hue
	}
	if patch.Saturation != nil {
		s.Saturation = patch.Saturation
	}
	if patch.RGB != nil {
		s.RGB = patch.RGB
	}
	if patch.Reachable != nil {
		s.Reachable = patch.Reachable
	}
}

// IsZero reports whether no field is set.
func (s State) IsZero() bool {
	return s.On == nil && s.Brightness == nil && s.ColorTemp == nil &&
		s.Hue == nil && s.Saturation == nil && s.RGB == nil && s.Reachable == nil
}

// IsReachable reports the last known reachability, defaulting to false when
// the device never reported it.
func (s State) IsReachable() bool {
	return s.Reachable != nil && *s.Reachable
}

// String renders the set fields only, for logs.
func (s State) String() string {
	var parts []string
	if s.On != nil {
		parts = append(parts, fmt.Sprintf("on=%t", *s.On))
	}
	if s.Brightness != nil {
		parts = append(parts, fmt.Sprintf("bri=%d%%", *s.Brightness))
	}
	if s.ColorTemp != nil {
		parts = append(parts, fmt.Sprintf("ct=%dK", *s.ColorTemp))
	}
	if s.Hue != nil {
		parts = append(parts, fmt.Sprintf("hue=%d", *s.Hue))
	}
	if s.Saturation != nil {
		parts = append(parts, fmt.Sprintf("sat=%d%%", *s.Saturation))
	}
	if s.RGB != nil {
		parts = append(parts, fmt.Sprintf("rgb=(%d,%d,%d)", s.RGB.R, s.RGB.G, s.RGB.B))
	}
	if s.Reachable != nil {
		parts = append(parts, fmt.Sprintf("reachable=%t", *s.Reachable))
	}
	if len(parts) == 0 {
		return "{}"
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Color returns a pointer to c.
func Color(c color.RGB) *color.RGB { return &c }
