package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/MeKo-Tech/ballotcount/internal/ballot"
	"gopkg.in/yaml.v3"
)

// Auto asks Select to pick the template from the input path.
const Auto = "auto"

// Builtin calibrations for the two printed form versions in circulation.
var Builtin = map[string]Calibration{
	"data1": {YMin: 208, YMax: 2225, Columns: []int{385, 974, 1233, 1481}},
	"data2": {YMin: 204, YMax: 2128, Columns: []int{268, 1009, 1339, 1648}},
}

// Registry resolves template ids to validated templates. Templates are built
// when registered, so a bad calibration fails at startup rather than mid-run.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewRegistry returns a registry holding the builtin templates.
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[string]*Template)}
	for id, cal := range Builtin {
		if err := r.Register(id, cal); err != nil {
			panic(err) // builtin calibrations are covered by tests
		}
	}
	return r
}

// Register builds and stores a template, replacing any previous one with the same id.
func (r *Registry) Register(id string, cal Calibration) error {
	t, err := Build(id, cal)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.templates[id] = t
	r.mu.Unlock()
	return nil
}

// Resolve returns the template for id or ballot.ErrTemplateNotFound.
func (r *Registry) Resolve(id string) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, ballot.ErrTemplateNotFound)
	}
	return t, nil
}

// IDs lists registered template ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Selection is the outcome of choosing a template for one input.
type Selection struct {
	Template *Template
	Fallback bool // true when the caller's default was used because nothing matched
}

// Select resolves id for the input at path. When id is Auto the template whose
// id appears in the path's directory or file name is used; longer ids win so
// "data10" is not mistaken for "data1". If none matches, fallback is used and
// the selection is flagged. An empty fallback turns a miss into
// ballot.ErrTemplateNotFound.
func (r *Registry) Select(id, path, fallback string) (Selection, error) {
	if id != Auto {
		t, err := r.Resolve(id)
		return Selection{Template: t}, err
	}

	ids := r.IDs()
	slices.SortStableFunc(ids, func(a, b string) int { return len(b) - len(a) })
	parts := strings.Split(filepath.ToSlash(path), "/")
	for _, cand := range ids {
		for _, p := range parts {
			if strings.Contains(p, cand) {
				t, err := r.Resolve(cand)
				return Selection{Template: t}, err
			}
		}
	}
	if fallback == "" {
		return Selection{}, fmt.Errorf("no template id in %q: %w", path, ballot.ErrTemplateNotFound)
	}
	t, err := r.Resolve(fallback)
	return Selection{Template: t, Fallback: true}, err
}

// File is the on-disk format for additional calibrations.
type File struct {
	Templates map[string]Calibration `yaml:"templates"`
}

// LoadFile registers every calibration in a YAML file:
//
//	templates:
//	  data3:
//	    y_min: 210
//	    y_max: 2230
//	    columns: [150, 390, 980, 1240, 1490]
//	    skip_columns: 1
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied template file
	if err != nil {
		return fmt.Errorf("layout: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("layout: parse %s: %w", path, err)
	}
	ids := make([]string, 0, len(f.Templates))
	for id := range f.Templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := r.Register(id, f.Templates[id]); err != nil {
			return fmt.Errorf("layout: %s: %w", path, err)
		}
	}
	return nil
}
