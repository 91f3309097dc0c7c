// Package protocol defines the shared types exchanged between protocol
// clients and the device registry.
package protocol

import "github.com/veselov/unilight/internal/light"

// Protocol identifiers.
const (
	Hue  = "hue"
	Lifx = "lifx"
)

// Supported lists every protocol the registry understands.
var Supported = []string{Hue, Lifx}

// BridgeInfo describes a Hue bridge as reported by discovery or configured by
// the user. Username is the bridge-local API key; without IP and Username the
// bridge's lights cannot be controlled.
type BridgeInfo struct {
	ID       string `json:"id"`
	IP       string `json:"ip,omitempty"`
	Name     string `json:"name,omitempty"`
	Model    string `json:"model,omitempty"`
	Firmware string `json:"firmware,omitempty"`
	Username string `json:"username,omitempty"`
}

// Controllable reports whether the bridge record carries everything needed
// for state reads and writes.
func (b BridgeInfo) Controllable() bool {
	return b.IP != "" && b.Username != ""
}

// DeviceInfo is the normalized identity and metadata a protocol client
// reports for a single light.
type DeviceInfo struct {
	ID           string      `json:"id"`
	Name         string      `json:"name,omitempty"`
	Model        string      `json:"model,omitempty"`
	Manufacturer string      `json:"manufacturer,omitempty"`
	Firmware     string      `json:"firmware,omitempty"`
	IP           string      `json:"ip,omitempty"`
	MAC          string      `json:"mac,omitempty"`
	State        light.State `json:"state"`
}
