package kmath

import (
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func approx(t *testing.T, expected, actual float64) {
	t.Helper()
	if math.Abs(expected-actual) > 1e-9 {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

func TestPolynomial(t *testing.T) {
	p := Poly(1, 2, 3) // 1 + 2x + 3x^2

	t.Run("eval", func(t *testing.T) {
		approx(t, 1, p.Eval(0))
		approx(t, 6, p.Eval(1))
		approx(t, 17, p.Eval(2))
	})

	t.Run("integral", func(t *testing.T) {
		assert.Equal(t, Poly(0, 1, 1, 1), p.Integral())
		assert.Equal(t, Poly(0, 5), Poly(5).Integral())
		assert.Equal(t, 0, len(Poly().Integral()))
	})

	t.Run("derivative undoes integral", func(t *testing.T) {
		assert.Equal(t, p, p.Integral().Derivative())
	})

	t.Run("algebra", func(t *testing.T) {
		assert.Equal(t, Poly(2, 2, 3), p.Add(Poly(1)))
		assert.Equal(t, Poly(1, 2), p.Add(Poly(0, 0, -3)))
		assert.Equal(t, Poly(2, 4, 6), p.Scale(2))
		assert.Equal(t, Poly(1, 3, 5, 3), p.Mul(Poly(1, 1)))
		assert.Equal(t, 2, p.Degree())
		assert.Equal(t, -1, Poly(0, 0).Degree())
	})

	t.Run("compose", func(t *testing.T) {
		// p(x+1) = 1 + 2(x+1) + 3(x+1)^2 = 6 + 8x + 3x^2
		assert.Equal(t, Poly(6, 8, 3), p.Compose(Poly(1, 1)))
	})

	t.Run("string", func(t *testing.T) {
		assert.Equal(t, "1 + 2*x + 3*x^2", p.String())
		assert.Equal(t, "0", Poly().String())
	})
}

func TestSimpson(t *testing.T) {
	t.Run("constant", func(t *testing.T) {
		approx(t, 7.5, Simpson(func(float64) float64 { return 3 }, 0, 2.5, 4))
	})

	t.Run("exact for cubics", func(t *testing.T) {
		p := Poly(1, -2, 0.5, 4)
		want := p.Integral().Eval(3) - p.Integral().Eval(-1)
		approx(t, want, Simpson(p.Eval, -1, 3, 2))
	})

	t.Run("sine", func(t *testing.T) {
		got := Simpson(math.Sin, 0, math.Pi, 64)
		if math.Abs(got-2) > 1e-6 {
			t.Fatalf("expected ~2, got %v", got)
		}
	})

	t.Run("odd n rounds up", func(t *testing.T) {
		f := func(x float64) float64 { return x * x * x * x }
		assert.Equal(t, Simpson(f, 0, 1, 4), Simpson(f, 0, 1, 3))
	})

	t.Run("ascending evaluation", func(t *testing.T) {
		var xs []float64
		Simpson(func(x float64) float64 {
			xs = append(xs, x)
			return x
		}, 0, 1, 6)
		assert.Equal(t, 7, len(xs))
		for i := 1; i < len(xs); i++ {
			assert.True(t, xs[i] > xs[i-1])
		}
	})

	t.Run("empty interval", func(t *testing.T) {
		assert.Equal(t, 0.0, Simpson(math.Exp, 1, 1, 8))
	})
}

func TestSubintervals(t *testing.T) {
	assert.Equal(t, 2, Subintervals(0))
	assert.Equal(t, 2, Subintervals(150))
	assert.Equal(t, 4, Subintervals(151))
	assert.Equal(t, 14, Subintervals(1000))
}
