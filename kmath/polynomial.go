// Package kmath holds the numeric pieces of the behavior layer: exact
// polynomial algebra and a composite Simpson's-rule integrator.
package kmath

import (
	"fmt"
	"strings"
)

// Polynomial is a polynomial in one variable with coefficients in ascending
// order: Polynomial{c0, c1, c2} is c0 + c1*x + c2*x^2.
type Polynomial []float64

// Poly builds a polynomial from ascending coefficients.
func Poly(coefficients ...float64) Polynomial {
	return Polynomial(coefficients).trim()
}

// Degree returns the degree, -1 for the zero polynomial.
func (p Polynomial) Degree() int {
	return len(p.trim()) - 1
}

// Eval evaluates p at x using Horner's scheme.
func (p Polynomial) Eval(x float64) float64 {
	var result float64
	for i := len(p) - 1; i >= 0; i-- {
		result = result*x + p[i]
	}
	return result
}

func (p Polynomial) Add(q Polynomial) Polynomial {
	n := max(len(p), len(q))
	out := make(Polynomial, n)
	for i := range out {
		if i < len(p) {
			out[i] += p[i]
		}
		if i < len(q) {
			out[i] += q[i]
		}
	}
	return out.trim()
}

func (p Polynomial) Scale(k float64) Polynomial {
	out := make(Polynomial, len(p))
	for i, c := range p {
		out[i] = c * k
	}
	return out.trim()
}

func (p Polynomial) Mul(q Polynomial) Polynomial {
	if len(p) == 0 || len(q) == 0 {
		return Polynomial{}
	}
	out := make(Polynomial, len(p)+len(q)-1)
	for i, a := range p {
		for j, b := range q {
			out[i+j] += a * b
		}
	}
	return out.trim()
}

// Derivative returns dp/dx.
func (p Polynomial) Derivative() Polynomial {
	if len(p) <= 1 {
		return Polynomial{}
	}
	out := make(Polynomial, len(p)-1)
	for i := 1; i < len(p); i++ {
		out[i-1] = p[i] * float64(i)
	}
	return out.trim()
}

// Integral returns the antiderivative with zero constant term:
// [c0, c1, ..., cn] becomes [0, c0, c1/2, ..., cn/(n+1)].
func (p Polynomial) Integral() Polynomial {
	out := make(Polynomial, len(p)+1)
	for i, c := range p {
		out[i+1] = c / float64(i+1)
	}
	return out.trim()
}

// Compose returns p(q(x)).
func (p Polynomial) Compose(q Polynomial) Polynomial {
	result := Polynomial{}
	for i := len(p) - 1; i >= 0; i-- {
		result = result.Mul(q).Add(Polynomial{p[i]})
	}
	return result
}

// trim drops trailing zero coefficients.
func (p Polynomial) trim() Polynomial {
	n := len(p)
	for n > 0 && p[n-1] == 0 {
		n--
	}
	return p[:n]
}

func (p Polynomial) String() string {
	if len(p.trim()) == 0 {
		return "0"
	}
	var terms []string
	for i, c := range p.trim() {
		if c == 0 {
			continue
		}
		switch i {
		case 0:
			terms = append(terms, fmt.Sprintf("%g", c))
		case 1:
			terms = append(terms, fmt.Sprintf("%g*x", c))
		default:
			terms = append(terms, fmt.Sprintf("%g*x^%d", c, i))
		}
	}
	return strings.Join(terms, " + ")
}
