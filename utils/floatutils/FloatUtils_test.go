package floatutils

import (
	"math"
	"testing"
)

func TestClip(t *testing.T) {
	tests := []struct {
		value, min, max, expected float64
	}{
		{0.5, 0, 1, 0.5},
		{-2, 0, 1, 0},
		{7, 0, 1, 1},
		{0, 0, 1, 0},
		{1, 0, 1, 1},
	}
	for _, test := range tests {
		have := Clip(test.value, test.min, test.max)
		if have != test.expected {
			t.Errorf("clip(%v, %v, %v) \n\twant(%v)\n\thave(%v)",
				test.value, test.min, test.max, test.expected, have)
		}
	}
}

func TestCountNonFinite(t *testing.T) {
	values := []float64{1, math.NaN(), -2, math.Inf(1), math.Inf(-1), 0}
	if have := CountNonFinite(values); have != 3 {
		t.Errorf("non-finite count \n\twant(3)\n\thave(%v)", have)
	}
	if have := CountNonFinite(nil); have != 0 {
		t.Errorf("non-finite count of no values \n\twant(0)\n\thave(%v)",
			have)
	}
}

func TestMean(t *testing.T) {
	if have := Mean(1, 2, 3, 4); have != 2.5 {
		t.Errorf("mean \n\twant(2.5)\n\thave(%v)", have)
	}
}

func TestOnes(t *testing.T) {
	ones := Ones(4)
	if len(ones) != 4 {
		t.Fatalf("length \n\twant(4)\n\thave(%v)", len(ones))
	}
	for i, one := range ones {
		if one != 1 {
			t.Errorf("element %v \n\twant(1)\n\thave(%v)", i, one)
		}
	}
}
