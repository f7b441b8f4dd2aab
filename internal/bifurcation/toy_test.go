package bifurcation

import "math"

const (
	toyRest      = -90.0
	toyPlateau   = -40.0
	toyThreshold = -75.0
)

// squareCell is a toy population for exercising the tracker. A stimulus
// lifts a resting cell to a plateau above threshold, where it stays for a
// fixed number of steps before dropping back to rest. Its single ionic
// variable counts the steps taken, so snapshots identify the exact step they
// were captured in.
type squareCell struct {
	v         []float64
	remaining []int
	steps     []float64
	hold      int
}

func newSquareCell(n int, apd, dt float64) *squareCell {
	c := &squareCell{
		v:         make([]float64, n),
		remaining: make([]int, n),
		steps:     make([]float64, n),
		hold:      int(math.Round(apd / dt)),
	}
	for i := range c.v {
		c.v[i] = toyRest
	}
	return c
}

func (c *squareCell) Len() int               { return len(c.v) }
func (c *squareCell) Voltage(id int) float64 { return c.v[id] }
func (c *squareCell) IonicNames() []string   { return []string{"steps"} }
func (c *squareCell) Ionic(id, _ int) float64 {
	return c.steps[id]
}

func (c *squareCell) Step(id int, _, stim float64) {
	c.steps[id]++
	if c.v[id] < toyThreshold {
		if stim != 0 {
			c.v[id] = toyPlateau
			c.remaining[id] = c.hold
		}
		return
	}
	c.remaining[id]--
	if c.remaining[id] <= 0 {
		c.v[id] = toyRest
	}
}

// plainCell hides the ionic accessors of squareCell.
type plainCell struct{ c *squareCell }

func (p plainCell) Len() int                      { return p.c.Len() }
func (p plainCell) Voltage(id int) float64        { return p.c.Voltage(id) }
func (p plainCell) Step(id int, dt, stim float64) { p.c.Step(id, dt, stim) }
