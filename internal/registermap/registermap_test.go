package registermap

import (
	"math"
	"testing"
)

// TestScaleRoundTrip covers invariant 5 (spec.md §8): decode(encode(v)) = v
// within the scale's precision, for every scale actually used in the map.
func TestScaleRoundTrip(t *testing.T) {
	scales := map[int]bool{}
	for _, h := range holdings {
		if h != nil {
			scales[h.Scale] = true
		}
	}

	for scale := range scales {
		for _, v := range []float64{0, 1.2, 12.5, 99.99, 150, 7.25, -0.05} {
			wire := EncodeHolding(v, scale)
			got := DecodeHolding(wire, scale)
			if math.Abs(got-v) > 1/float64(scale) {
				t.Errorf("scale %d: decode(encode(%v))=%v, outside 1/%d tolerance", scale, v, got, scale)
			}
		}
	}
}

func TestCoilLookup(t *testing.T) {
	if _, ok := Coil(-1); ok {
		t.Error("Coil(-1) should not be defined")
	}
	if _, ok := Coil(CoilCount); ok {
		t.Error("Coil(CoilCount) should not be defined")
	}
	entry, ok := Coil(0)
	if !ok || entry.Name != "wellfield_on" {
		t.Errorf("Coil(0) = %+v, ok=%v, want wellfield_on", entry, ok)
	}
}

func TestHoldingGaps(t *testing.T) {
	for _, addr := range []int{3, 4, 5, 6, 7, 8, 9, 25, 26, 27, 28, 29} {
		if _, ok := Holding(addr); ok {
			t.Errorf("Holding(%d) should be undefined (register gap)", addr)
		}
	}
	if _, ok := Holding(-1); ok {
		t.Error("Holding(-1) should not be defined")
	}
	if _, ok := Holding(HoldingSpan); ok {
		t.Error("Holding(HoldingSpan) should not be defined")
	}
}

func TestHoldingDirections(t *testing.T) {
	for _, addr := range []int{0, 1, 2} {
		e, ok := Holding(addr)
		if !ok || e.Direction != RW {
			t.Errorf("Holding(%d) direction = %v, ok=%v, want RW", addr, e, ok)
		}
	}
	for _, addr := range []int{10, 20, 36} {
		e, ok := Holding(addr)
		if !ok || e.Direction != RO {
			t.Errorf("Holding(%d) direction = %v, ok=%v, want RO", addr, e, ok)
		}
	}
}
