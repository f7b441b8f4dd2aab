package cell

import "math"

// BeelerReuterName is the registry name of the Beeler-Reuter model.
const BeelerReuterName = "br"

// Beeler-Reuter 1977 rate constants, one row per gate rate in the form
// (C1*exp(C2*(V+C3)) + C4*(V+C5)) / (exp(C6*(V+C3)) + C7).
var (
	brAlphaX1 = [7]float64{0.0005, 0.083, 50, 0, 0, 0.057, 1}
	brBetaX1  = [7]float64{0.0013, -0.06, 20, 0, 0, -0.04, 1}
	brAlphaM  = [7]float64{0, 0, 47, -1, 47, -0.1, -1}
	brBetaM   = [7]float64{40, -0.056, 72, 0, 0, 0, 0}
	brAlphaH  = [7]float64{0.126, -0.25, 77, 0, 0, 0, 0}
	brBetaH   = [7]float64{1.7, 0, 22.5, 0, 0, -0.082, 1}
	brAlphaJ  = [7]float64{0.055, -0.25, 78, 0, 0, -0.2, 1}
	brBetaJ   = [7]float64{0.3, 0, 32, 0, 0, -0.1, 1}
	brAlphaD  = [7]float64{0.095, -0.01, -5, 0, 0, -0.072, 1}
	brBetaD   = [7]float64{0.07, -0.017, 44, 0, 0, 0.05, 1}
	brAlphaF  = [7]float64{0.012, -0.008, 28, 0, 0, 0.15, 1}
	brBetaF   = [7]float64{0.0065, -0.02, 30, 0, 0, -0.2, 1}
)

const (
	brRestV   = -84.624
	brRestCai = 1e-7
	brENa     = 50.0
	brGNa     = 4.0
	brGNaC    = 0.003
	brGs      = 0.09
	brMinCai  = 1e-12
)

// BeelerReuter is a population of Beeler-Reuter ventricular cells.
// Gates are advanced with the Rush-Larsen exponential update; voltage and
// intracellular calcium with forward Euler.
type BeelerReuter struct {
	paramSet

	v, x1, m, h, j, d, f, cai []float64
}

// NewBeelerReuter returns n cells at rest with every conductance factor at 1.
func NewBeelerReuter(n int) *BeelerReuter {
	br := &BeelerReuter{
		paramSet: newParamSet(n, map[string]float64{
			"gnafac": 1,
			"gsfac":  1,
			"gk1fac": 1,
			"gx1fac": 1,
		}),
		v:   fill(n, brRestV),
		x1:  fill(n, brSteady(brAlphaX1, brBetaX1, brRestV)),
		m:   fill(n, brSteady(brAlphaM, brBetaM, brRestV)),
		h:   fill(n, brSteady(brAlphaH, brBetaH, brRestV)),
		j:   fill(n, brSteady(brAlphaJ, brBetaJ, brRestV)),
		d:   fill(n, brSteady(brAlphaD, brBetaD, brRestV)),
		f:   fill(n, brSteady(brAlphaF, brBetaF, brRestV)),
		cai: fill(n, brRestCai),
	}
	return br
}

func (br *BeelerReuter) Len() int { return len(br.v) }

func (br *BeelerReuter) Voltage(id int) float64 { return br.v[id] }

// IonicNames reports the snapshot variables: intracellular calcium (M).
func (br *BeelerReuter) IonicNames() []string { return []string{"cai"} }

func (br *BeelerReuter) Ionic(id, k int) float64 {
	switch k {
	case 0:
		return br.cai[id]
	default:
		return math.NaN()
	}
}

// Step advances cell id by dt ms with applied current stim (uA/cm^2).
func (br *BeelerReuter) Step(id int, dt, stim float64) {
	v := br.v[id]
	cai := br.cai[id]

	gna := br.values["gnafac"][id]
	gs := br.values["gsfac"][id]
	gk1 := br.values["gk1fac"][id]
	gx1 := br.values["gx1fac"][id]

	m := br.m[id]
	ik1 := gk1 * brIK1(v)
	ix1 := gx1 * br.x1[id] * 0.8 * (math.Exp(0.04*(v+77)) - 1) / math.Exp(0.04*(v+35))
	ina := (gna*brGNa*m*m*m*br.h[id]*br.j[id] + brGNaC) * (v - brENa)
	es := -82.3 - 13.0287*math.Log(cai)
	is := gs * brGs * br.d[id] * br.f[id] * (v - es)

	br.v[id] = v - dt*(ik1+ix1+ina+is+stim)
	cai += dt * (-1e-7*is + 0.07*(brRestCai-cai))
	if cai < brMinCai {
		cai = brMinCai
	}
	br.cai[id] = cai

	br.x1[id] = rushLarsen(br.x1[id], brRate(brAlphaX1, v), brRate(brBetaX1, v), dt)
	br.m[id] = rushLarsen(m, brRate(brAlphaM, v), brRate(brBetaM, v), dt)
	br.h[id] = rushLarsen(br.h[id], brRate(brAlphaH, v), brRate(brBetaH, v), dt)
	br.j[id] = rushLarsen(br.j[id], brRate(brAlphaJ, v), brRate(brBetaJ, v), dt)
	br.d[id] = rushLarsen(br.d[id], brRate(brAlphaD, v), brRate(brBetaD, v), dt)
	br.f[id] = rushLarsen(br.f[id], brRate(brAlphaF, v), brRate(brBetaF, v), dt)
}

// brIK1 is the time-independent potassium current at unit conductance.
func brIK1(v float64) float64 {
	a := 4 * (math.Exp(0.04*(v+85)) - 1) / (math.Exp(0.08*(v+53)) + math.Exp(0.04*(v+53)))
	var b float64
	if x := v + 23; math.Abs(x) < 1e-7 {
		b = 0.2 / 0.04
	} else {
		b = 0.2 * x / (1 - math.Exp(-0.04*x))
	}
	return 0.35 * (a + b)
}

func brRate(c [7]float64, v float64) float64 {
	num := c[0]*math.Exp(c[1]*(v+c[2])) + c[3]*(v+c[4])
	den := math.Exp(c[5]*(v+c[2])) + c[6]
	if math.Abs(den) < 1e-12 {
		// alpha_m at V = -47 mV, limit of -(V+47)/(exp(-0.1(V+47))-1)
		return -c[3] / -c[5]
	}
	return num / den
}

func brSteady(alpha, beta [7]float64, v float64) float64 {
	a, b := brRate(alpha, v), brRate(beta, v)
	return a / (a + b)
}

// rushLarsen advances a Hodgkin-Huxley gate y with rates a, b exactly over dt
// assuming the voltage is constant for the step.
func rushLarsen(y, a, b, dt float64) float64 {
	sum := a + b
	inf := a / sum
	return inf - (inf-y)*math.Exp(-dt*sum)
}
