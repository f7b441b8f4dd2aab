package cell

import "math"

// MitchellSchaefferName is the registry name of the Mitchell-Schaeffer model.
const MitchellSchaefferName = "ms"

const (
	msVMin = -85.0
	msSpan = 100.0
)

// MitchellSchaeffer is a population of Mitchell-Schaeffer cells. The
// dimensionless membrane variable u in [0,1] is mapped onto
// V = -85 + 100u mV so voltage thresholds and stimulus amplitudes are
// comparable with the ionic models.
type MitchellSchaeffer struct {
	paramSet

	u, h []float64
}

// NewMitchellSchaeffer returns n resting cells with the published time
// constants (tau_in 0.3, tau_out 6, tau_open 120, tau_close 150 ms, v_gate 0.13).
func NewMitchellSchaeffer(n int) *MitchellSchaeffer {
	return &MitchellSchaeffer{
		paramSet: newParamSet(n, map[string]float64{
			"tauin":    0.3,
			"tauout":   6,
			"tauopen":  120,
			"tauclose": 150,
			"vgate":    0.13,
		}),
		u: make([]float64, n),
		h: fill(n, 1),
	}
}

func (ms *MitchellSchaeffer) Len() int { return len(ms.u) }

func (ms *MitchellSchaeffer) Voltage(id int) float64 { return msVMin + msSpan*ms.u[id] }

func (ms *MitchellSchaeffer) IonicNames() []string { return []string{"h"} }

func (ms *MitchellSchaeffer) Ionic(id, k int) float64 {
	if k != 0 {
		return math.NaN()
	}
	return ms.h[id]
}

func (ms *MitchellSchaeffer) Step(id int, dt, stim float64) {
	u, h := ms.u[id], ms.h[id]
	tauIn := ms.values["tauin"][id]
	tauOut := ms.values["tauout"][id]

	du := h*u*u*(1-u)/tauIn - u/tauOut - stim/msSpan
	var dh float64
	if u < ms.values["vgate"][id] {
		dh = (1 - h) / ms.values["tauopen"][id]
	} else {
		dh = -h / ms.values["tauclose"][id]
	}

	ms.u[id] = u + dt*du
	ms.h[id] = h + dt*dh
}
