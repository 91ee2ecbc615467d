package kinematics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSmooth(t *testing.T) {
	t.Run("bootstrap", func(t *testing.T) {
		for _, f := range []float64{0.01, 0.3, 1} {
			for _, x := range []float64{-90, 0, 37.5, 359.9} {
				assert.Equal(t, x, Smooth(nil, x, f))
			}
		}
	})

	t.Run("convex combination", func(t *testing.T) {
		prev := 100.0
		for _, f := range []float64{0.1, 0.3, 0.5, 0.9} {
			got := Smooth(&prev, 40, f)
			assert.GreaterOrEqual(t, got, 40.0)
			assert.LessOrEqual(t, got, 100.0)
			assert.InDelta(t, 100*(1-f)+40*f, got, 1e-12)
		}
	})

	t.Run("factor one", func(t *testing.T) {
		prev := 100.0
		assert.Equal(t, 40.0, Smooth(&prev, 40, 1))
	})

	t.Run("factor near zero", func(t *testing.T) {
		prev := 100.0
		assert.InDelta(t, 100, Smooth(&prev, 40, 1e-9), 1e-6)
	})
}

func TestValidateFactor(t *testing.T) {
	for _, f := range []float64{1e-6, 0.3, 1} {
		assert.NoError(t, ValidateFactor(f), "factor %v", f)
	}
	for _, f := range []float64{0, -0.1, 1.0001, math.NaN()} {
		assert.Error(t, ValidateFactor(f), "factor %v", f)
	}
}

func TestEMA(t *testing.T) {
	e := NewEMA(0.5)
	_, ok := e.Value()
	assert.False(t, ok)

	assert.Equal(t, 10.0, e.Update(10))
	assert.Equal(t, 15.0, e.Update(20))
	assert.Equal(t, 17.5, e.Update(20))

	e.Reset()
	_, ok = e.Value()
	assert.False(t, ok)
	assert.Equal(t, 90.0, e.Update(90))
}
