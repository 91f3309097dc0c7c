package light

import (
	"encoding/json"
	"testing"

	"github.com/veselov/unilight/internal/color"
)

func TestMergeAppliesOnlySetFields(t *testing.T) {
	s := State{
		On:         Bool(true),
		Brightness: Int(80),
		ColorTemp:  Int(3500),
	}

	s.Merge(State{Brightness: Int(40)})

	if s.Brightness == nil || *s.Brightness != 40 {
		t.Errorf("brightness not merged: %v", s)
	}
	if s.On == nil || !*s.On {
		t.Errorf("on should be untouched: %v", s)
	}
	if s.ColorTemp == nil || *s.ColorTemp != 3500 {
		t.Errorf("color temp should be untouched: %v", s)
	}
}

func TestMergeEmptyPatchIsNoop(t *testing.T) {
	s := State{On: Bool(false), Hue: Int(120)}
	s.Merge(State{})
	if *s.Hue != 120 || *s.On {
		t.Errorf("empty merge changed state: %v", s)
	}
}

func TestMergeAddsNewFields(t *testing.T) {
	s := State{On: Bool(true)}
	s.Merge(State{RGB: Color(color.RGB{R: 10, G: 20, B: 30}), Reachable: Bool(true)})
	if s.RGB == nil || s.RGB.G != 20 {
		t.Errorf("rgb not merged: %v", s)
	}
	if !s.IsReachable() {
		t.Error("reachable not merged")
	}
}

func TestJSONOmitsUnsetFields(t *testing.T) {
	raw, err := json.Marshal(State{Brightness: Int(55)})
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"brightness":55}` {
		t.Errorf("unexpected JSON shape: %s", raw)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	in := State{
		On:         Bool(true),
		Brightness: Int(75),
		ColorTemp:  Int(2700),
		Hue:        Int(240),
		Saturation: Int(40),
		RGB:        Color(color.RGB{R: 153, G: 153, B: 255}),
		Reachable:  Bool(true),
	}

	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out State
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}

	if *out.Brightness != 75 || *out.ColorTemp != 2700 || *out.Hue != 240 {
		t.Errorf("round trip lost fields: %v", out)
	}
	if out.RGB == nil || out.RGB.B != 255 {
		t.Errorf("round trip lost rgb: %v", out)
	}
}

func TestIsZero(t *testing.T) {
	if !(State{}).IsZero() {
		t.Error("empty state should be zero")
	}
	if (State{On: Bool(false)}).IsZero() {
		t.Error("state with on=false set should not be zero")
	}
}
