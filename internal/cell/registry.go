package cell

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a population of n cells at their resting state.
type Factory func(n int) Model

// Definition describes a registered cell model.
type Definition struct {
	Name        string
	Description string
	New         Factory
}

// Info summarises a registered model for listings.
type Info struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Params      []string           `json:"params"`
	Defaults    map[string]float64 `json:"defaults,omitempty"`
	Ionic       []string           `json:"ionic"`
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*Definition)
)

// Register adds a model definition. A later registration under the same
// name replaces the earlier one.
func Register(def *Definition) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[def.Name] = def
}

// New builds n cells of the named model.
func New(name string, n int) (Model, error) {
	if n <= 0 {
		return nil, fmt.Errorf("cell count must be positive, got %d", n)
	}
	registryMu.RLock()
	def, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown cell model %q (available: %v)", name, Names())
	}
	return def.New(n), nil
}

// Names returns the registered model names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Models returns a summary of every registered model, sorted by name.
// Each model is instantiated with a single cell to read its parameter and
// ionic variable names.
func Models() []Info {
	names := Names()
	infos := make([]Info, 0, len(names))
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, name := range names {
		def := registry[name]
		info := Info{Name: def.Name, Description: def.Description}
		m := def.New(1)
		if t, ok := m.(Tunable); ok {
			info.Params = t.Params()
			info.Defaults = make(map[string]float64, len(info.Params))
			for _, p := range info.Params {
				info.Defaults[p], _ = t.Param(0, p)
			}
		}
		if im, ok := m.(IonicModel); ok {
			info.Ionic = im.IonicNames()
		}
		infos = append(infos, info)
	}
	return infos
}

func init() {
	Register(&Definition{
		Name:        BeelerReuterName,
		Description: "Beeler-Reuter 1977 ventricular myocyte (8 state variables, tracks intracellular Ca)",
		New:         func(n int) Model { return NewBeelerReuter(n) },
	})
	Register(&Definition{
		Name:        MitchellSchaefferName,
		Description: "Mitchell-Schaeffer 2003 two-variable model rescaled to mV (tracks gate h)",
		New:         func(n int) Model { return NewMitchellSchaeffer(n) },
	})
}
