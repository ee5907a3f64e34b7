package intmath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloorDivMod(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a, b    int64
		div     int64
		mod     int64
		ceilDiv int64
	}{
		{7, 3, 2, 1, 3},
		{-7, 3, -3, 2, -2},
		{7, -3, -3, -2, -2},
		{-7, -3, 2, -1, 3},
		{6, 3, 2, 0, 2},
		{-6, 3, -2, 0, -2},
		{0, 5, 0, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.div, FloorDiv(tt.a, tt.b), "floordiv(%d, %d)", tt.a, tt.b)
		assert.Equal(t, tt.mod, FloorMod(tt.a, tt.b), "floormod(%d, %d)", tt.a, tt.b)
		assert.Equal(t, tt.ceilDiv, CeilDiv(tt.a, tt.b), "ceildiv(%d, %d)", tt.a, tt.b)
	}
}

func TestGCDAndLCM(t *testing.T) {
	t.Parallel()
	assert.Equal(t, int64(6), GCD[int64](12, -18))
	assert.Equal(t, int64(5), GCD[int64](0, -5))
	assert.Equal(t, int64(0), GCD[int64](0, 0))
	assert.Equal(t, int64(36), LCM[int64](12, -18))
	assert.Equal(t, int64(0), LCM[int64](0, 7))
}

func TestXGCD(t *testing.T) {
	t.Parallel()
	for a := int64(-12); a <= 12; a++ {
		for b := int64(-12); b <= 12; b++ {
			g, x, y := XGCD(a, b)
			assert.Equal(t, GCD(a, b), g, "gcd(%d, %d)", a, b)
			assert.Equal(t, g, a*x+b*y, "bezout(%d, %d)", a, b)
		}
	}
}
