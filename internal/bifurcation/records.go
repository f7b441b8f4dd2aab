package bifurcation

import "github.com/banshee-data/apdbif/internal/cell"

// Records holds the APD of every (cell, beat) slot in one dense slice,
// indexed by cell*BeatsPerCell + beat.
type Records struct {
	Cells        int
	BeatsPerCell int
	APD          []float64
}

func newRecords(cells, beats int) *Records {
	return &Records{
		Cells:        cells,
		BeatsPerCell: beats,
		APD:          make([]float64, cells*beats),
	}
}

// Index returns the slot of the given beat of cell id.
func (r *Records) Index(id, beat int) int { return id*r.BeatsPerCell + beat }

// Cell returns the APD series of cell id. The slice aliases the record
// storage.
func (r *Records) Cell(id int) []float64 {
	return r.APD[id*r.BeatsPerCell : (id+1)*r.BeatsPerCell]
}

// Retained returns the APD series of cell id with the first discard beats
// dropped.
func (r *Records) Retained(id, discard int) []float64 {
	return r.Cell(id)[discard:]
}

// Snapshots holds start/end values of tracked ionic variables. For each
// variable k, Values[k] interleaves start and end per beat: the start of beat
// b of cell id is at 2*(id*BeatsPerCell+b) and its end at the next slot.
type Snapshots struct {
	Names        []string
	BeatsPerCell int
	Values       [][]float64
}

func newSnapshots(names []string, cells, beats int) *Snapshots {
	s := &Snapshots{
		Names:        names,
		BeatsPerCell: beats,
		Values:       make([][]float64, len(names)),
	}
	for k := range s.Values {
		s.Values[k] = make([]float64, 2*cells*beats)
	}
	return s
}

// StartIndex returns the slot holding the start-of-beat snapshot.
func (s *Snapshots) StartIndex(id, beat int) int { return 2 * (id*s.BeatsPerCell + beat) }

// EndIndex returns the slot holding the end-of-beat snapshot.
func (s *Snapshots) EndIndex(id, beat int) int { return 2*(id*s.BeatsPerCell+beat) + 1 }

// Variable returns the index of the named variable.
func (s *Snapshots) Variable(name string) (int, bool) {
	for k, n := range s.Names {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// Cell returns the interleaved start/end series of variable k for cell id.
func (s *Snapshots) Cell(k, id int) []float64 {
	return s.Values[k][2*id*s.BeatsPerCell : 2*(id+1)*s.BeatsPerCell]
}

// Retained returns Cell(k, id) with the first discard beats (2*discard
// values) dropped.
func (s *Snapshots) Retained(k, id, discard int) []float64 {
	return s.Cell(k, id)[2*discard:]
}

func (s *Snapshots) capture(m cell.IonicModel, id, slot int) {
	for k := range s.Values {
		s.Values[k][slot] = m.Ionic(id, k)
	}
}
