package physics

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/smctune/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// State indices for the double inverted pendulum on a cart.
const (
	IdxX = iota
	IdxTheta1
	IdxTheta2
	IdxXDot
	IdxTheta1Dot
	IdxTheta2Dot

	StateDim = 6
)

// singularDet bounds the mass-matrix determinant below which the plant
// refuses to produce a derivative.
const singularDet = 1e-12

// Params holds the physical parameters of the cart and two uniform links.
// Angles are measured from the upright vertical and are positive when a
// link leans towards -x, so a positive cart force raises θ̈.
type Params struct {
	CartMass      float64 `yaml:"cart_mass" mapstructure:"cart_mass"`
	Mass1         float64 `yaml:"mass1" mapstructure:"mass1"`
	Mass2         float64 `yaml:"mass2" mapstructure:"mass2"`
	Length1       float64 `yaml:"length1" mapstructure:"length1"`
	Length2       float64 `yaml:"length2" mapstructure:"length2"`
	Gravity       float64 `yaml:"gravity" mapstructure:"gravity"`
	CartFriction  float64 `yaml:"cart_friction" mapstructure:"cart_friction"`
	JointFriction float64 `yaml:"joint_friction" mapstructure:"joint_friction"`
}

func DefaultParams() Params {
	return Params{
		CartMass:      1.0,
		Mass1:         0.1,
		Mass2:         0.1,
		Length1:       0.5,
		Length2:       0.5,
		Gravity:       9.81,
		CartFriction:  0.1,
		JointFriction: 0.001,
	}
}

// ErrInvalidParams reports a non-physical parameter set.
var ErrInvalidParams = errors.New("physics: invalid parameters")

func (p Params) Validate() error {
	positive := []struct {
		name string
		v    float64
	}{
		{"cart_mass", p.CartMass},
		{"mass1", p.Mass1},
		{"mass2", p.Mass2},
		{"length1", p.Length1},
		{"length2", p.Length2},
		{"gravity", p.Gravity},
	}
	for _, f := range positive {
		if !(f.v > 0) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s must be positive and finite, got %g", ErrInvalidParams, f.name, f.v)
		}
	}
	if !(p.CartFriction >= 0) || !(p.JointFriction >= 0) {
		return fmt.Errorf("%w: friction coefficients must be non-negative", ErrInvalidParams)
	}
	return nil
}

// DoubleInvertedPendulum is a cart carrying two serial uniform links.
// State: [x, θ1, θ2, ẋ, θ̇1, θ̇2], control: [force on cart].
type DoubleInvertedPendulum struct {
	p Params

	// derived constants
	lc1, lc2 float64 // centre-of-mass distances
	i1, i2   float64 // inertias about the centres of mass
	a1       float64 // m1·lc1 + m2·L1
	m22, m33 float64
	m23      float64 // m2·L1·lc2
	mTotal   float64
}

func NewDoubleInvertedPendulum(p Params) *DoubleInvertedPendulum {
	d := &DoubleInvertedPendulum{p: p}
	d.lc1 = p.Length1 / 2
	d.lc2 = p.Length2 / 2
	d.i1 = p.Mass1 * p.Length1 * p.Length1 / 12
	d.i2 = p.Mass2 * p.Length2 * p.Length2 / 12
	d.a1 = p.Mass1*d.lc1 + p.Mass2*p.Length1
	d.m22 = p.Mass1*d.lc1*d.lc1 + p.Mass2*p.Length1*p.Length1 + d.i1
	d.m33 = p.Mass2*d.lc2*d.lc2 + d.i2
	d.m23 = p.Mass2 * p.Length1 * d.lc2
	d.mTotal = p.CartMass + p.Mass1 + p.Mass2
	return d
}

func (d *DoubleInvertedPendulum) Params() Params  { return d.p }
func (d *DoubleInvertedPendulum) StateDim() int   { return StateDim }
func (d *DoubleInvertedPendulum) ControlDim() int { return 1 }

func (d *DoubleInvertedPendulum) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	dx := make(dynamo.State, StateDim)
	force := 0.0
	if len(u) > 0 {
		force = u[0]
	}
	d.derive(x, force, dx)
	return dx
}

// DeriveBatch implements dynamo.BatchSystem over row-major particle blocks.
func (d *DoubleInvertedPendulum) DeriveBatch(x, u []float64, t float64, alive []bool, dx []float64) {
	for p := range alive {
		if !alive[p] {
			continue
		}
		off := p * StateDim
		d.derive(x[off:off+StateDim], u[p], dx[off:off+StateDim])
	}
}

func (d *DoubleInvertedPendulum) derive(x []float64, force float64, out []float64) {
	th1, th2 := x[IdxTheta1], x[IdxTheta2]
	xd, w1, w2 := x[IdxXDot], x[IdxTheta1Dot], x[IdxTheta2Dot]

	s1, c1 := math.Sincos(th1)
	s2, c2 := math.Sincos(th2)
	s12, c12 := math.Sincos(th1 - th2)

	m2l2 := d.p.Mass2 * d.lc2
	g := d.p.Gravity

	// Symmetric mass matrix.
	m11 := d.mTotal
	m12 := -d.a1 * c1
	m13 := -m2l2 * c2
	m22 := d.m22
	m23 := d.m23 * c12
	m33 := d.m33

	// Right-hand side τ - h(q, q̇).
	r1 := force - d.a1*s1*w1*w1 - m2l2*s2*w2*w2 - d.p.CartFriction*xd
	r2 := -d.m23*s12*w2*w2 + d.a1*g*s1 - d.p.JointFriction*w1
	r3 := d.m23*s12*w1*w1 + m2l2*g*s2 - d.p.JointFriction*w2

	// Cramer's rule on the 3x3 system.
	c11 := m22*m33 - m23*m23
	c12m := m13*m23 - m12*m33
	c13 := m12*m23 - m13*m22
	det := m11*c11 + m12*c12m + m13*c13

	out[IdxX] = xd
	out[IdxTheta1] = w1
	out[IdxTheta2] = w2

	if math.Abs(det) < singularDet {
		nan := math.NaN()
		out[IdxXDot], out[IdxTheta1Dot], out[IdxTheta2Dot] = nan, nan, nan
		return
	}

	c22 := m11*m33 - m13*m13
	c23 := m12*m13 - m11*m23
	c33 := m11*m22 - m12*m12

	inv := 1.0 / det
	out[IdxXDot] = (c11*r1 + c12m*r2 + c13*r3) * inv
	out[IdxTheta1Dot] = (c12m*r1 + c22*r2 + c23*r3) * inv
	out[IdxTheta2Dot] = (c13*r1 + c23*r2 + c33*r3) * inv
}

// Inertia returns the 3x3 generalized mass matrix M(q).
func (d *DoubleInvertedPendulum) Inertia(x dynamo.State) *mat.Dense {
	c1 := math.Cos(x[IdxTheta1])
	c2 := math.Cos(x[IdxTheta2])
	c12 := math.Cos(x[IdxTheta1] - x[IdxTheta2])
	m12 := -d.a1 * c1
	m13 := -d.p.Mass2 * d.lc2 * c2
	m23 := d.m23 * c12
	return mat.NewDense(3, 3, []float64{
		d.mTotal, m12, m13,
		m12, d.m22, m23,
		m13, m23, d.m33,
	})
}

// Linearize returns the Jacobians A = ∂f/∂x and B = ∂f/∂u by central
// differences around (x, u).
func (d *DoubleInvertedPendulum) Linearize(x dynamo.State, u dynamo.Control) (*mat.Dense, *mat.Dense) {
	const h = 1e-6
	force := 0.0
	if len(u) > 0 {
		force = u[0]
	}

	a := mat.NewDense(StateDim, StateDim, nil)
	b := mat.NewDense(StateDim, 1, nil)

	xp := make([]float64, StateDim)
	xm := make([]float64, StateDim)
	fp := make([]float64, StateDim)
	fm := make([]float64, StateDim)

	for j := 0; j < StateDim; j++ {
		copy(xp, x)
		copy(xm, x)
		xp[j] += h
		xm[j] -= h
		d.derive(xp, force, fp)
		d.derive(xm, force, fm)
		for i := 0; i < StateDim; i++ {
			a.Set(i, j, (fp[i]-fm[i])/(2*h))
		}
	}

	d.inputColumn(x, force, b.RawMatrix().Data, fp, fm)
	return a, b
}

// InputColumn returns ∂f/∂u at (x, u), the only column of B.
func (d *DoubleInvertedPendulum) InputColumn(x dynamo.State, u dynamo.Control) dynamo.State {
	force := 0.0
	if len(u) > 0 {
		force = u[0]
	}
	col := make(dynamo.State, StateDim)
	d.inputColumn(x, force, col, make([]float64, StateDim), make([]float64, StateDim))
	return col
}

func (d *DoubleInvertedPendulum) inputColumn(x []float64, force float64, col, fp, fm []float64) {
	const h = 1e-6
	d.derive(x, force+h, fp)
	d.derive(x, force-h, fm)
	for i := range col {
		col[i] = (fp[i] - fm[i]) / (2 * h)
	}
}

// Energy returns kinetic plus potential energy, with the potential zero
// at the pivot height.
func (d *DoubleInvertedPendulum) Energy(x dynamo.State) float64 {
	th1, th2 := x[IdxTheta1], x[IdxTheta2]
	xd, w1, w2 := x[IdxXDot], x[IdxTheta1Dot], x[IdxTheta2Dot]
	c1, c2 := math.Cos(th1), math.Cos(th2)
	c12 := math.Cos(th1 - th2)

	m2l2 := d.p.Mass2 * d.lc2
	ke := 0.5*d.mTotal*xd*xd +
		0.5*d.m22*w1*w1 +
		0.5*d.m33*w2*w2 -
		d.a1*c1*xd*w1 -
		m2l2*c2*xd*w2 +
		d.m23*c12*w1*w2
	pe := d.p.Gravity * (d.a1*c1 + m2l2*c2)
	return ke + pe
}

// UprightEnergy is the potential energy of the balanced configuration.
func (d *DoubleInvertedPendulum) UprightEnergy() float64 {
	return d.p.Gravity * (d.a1 + d.p.Mass2*d.lc2)
}
