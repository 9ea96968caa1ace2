// Package param provides named, persistable tuning parameters.
//
// Cells are registered in groups; each cell has a storage index that is
// stable within its group, so values written by older builds keep their
// meaning. Values are persisted as a flat YAML map keyed by full name
// (GROUP_NAME); the index is part of the registered schema, not the file
// format, and exists so the on-disk layout can be migrated without
// renumbering.
package param

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Info describes one registered parameter.
type Info struct {
	Group   string
	Name    string
	Index   int
	Default float64
}

// Store owns the parameter cells of one engine instance.
//
// Registration and Load happen at startup; after that the tick loop only
// reads cells, and writes come from a single control-surface caller.
// No internal locking.
type Store struct {
	path   string
	loaded map[string]float64
	cells  map[string]*Float
	index  map[string]map[int]string
}

// NewStore creates a store persisting to path. An empty path keeps the store
// in memory only.
func NewStore(path string) *Store {
	return &Store{
		path:   path,
		loaded: make(map[string]float64),
		cells:  make(map[string]*Float),
		index:  make(map[string]map[int]string),
	}
}

// Load reads previously saved values. Cells registered afterwards pick up
// their saved value; a missing file is not an error.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("param: load: %w", err)
	}
	vals := make(map[string]float64)
	if err := yaml.Unmarshal(b, &vals); err != nil {
		return fmt.Errorf("param: load %s: %w", s.path, err)
	}
	s.loaded = vals
	for name, v := range vals {
		if c, ok := s.cells[name]; ok {
			c.value = v
		}
	}
	return nil
}

// Save writes all registered cells.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}
	vals := make(map[string]float64, len(s.cells))
	for name, c := range s.cells {
		vals[name] = c.value
	}
	b, err := yaml.Marshal(vals)
	if err != nil {
		return fmt.Errorf("param: save: %w", err)
	}
	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		return fmt.Errorf("param: save %s: %w", s.path, err)
	}
	return nil
}

// Group returns a registration handle whose cells are named GROUP_NAME and
// whose indices are unique within the group.
func (s *Store) Group(name string) *Group {
	if _, ok := s.index[name]; !ok {
		s.index[name] = make(map[int]string)
	}
	return &Group{store: s, name: name}
}

// Set assigns a registered cell by full name.
func (s *Store) Set(name string, v float64) error {
	c, ok := s.cells[name]
	if !ok {
		return fmt.Errorf("param: unknown parameter %q", name)
	}
	c.value = v
	return nil
}

// Schema returns the registered parameter descriptions.
func (s *Store) Schema() []Info {
	infos := make([]Info, 0, len(s.cells))
	for _, c := range s.cells {
		infos = append(infos, Info{Group: c.group, Name: c.name, Index: c.index, Default: c.def})
	}
	return infos
}

// Group registers cells into one parameter table.
type Group struct {
	store *Store
	name  string
}

// Float registers a float cell. Duplicate names or indices within the group
// are programming errors and panic at startup.
func (g *Group) Float(name string, index int, def float64) *Float {
	full := g.name + "_" + name
	if _, ok := g.store.cells[full]; ok {
		panic(fmt.Sprintf("param: duplicate name %q", full))
	}
	idx := g.store.index[g.name]
	if prev, ok := idx[index]; ok {
		panic(fmt.Sprintf("param: %s index %d already used by %q", g.name, index, prev))
	}
	c := &Float{store: g.store, group: g.name, name: name, index: index, def: def, value: def}
	if v, ok := g.store.loaded[full]; ok {
		c.value = v
	}
	g.store.cells[full] = c
	idx[index] = name
	return c
}

// Float is one tunable value.
type Float struct {
	store *Store
	group string
	name  string
	index int
	def   float64
	value float64
}

func (f *Float) Get() float64 { return f.value }

func (f *Float) Set(v float64) { f.value = v }

// SetAndSave updates the cell and persists the store. Persistence is
// best-effort; a write failure leaves the in-memory value in place.
func (f *Float) SetAndSave(v float64) {
	f.value = v
	_ = f.store.Save()
}

// Name returns the full persisted name.
func (f *Float) Name() string { return f.group + "_" + f.name }

func (f *Float) Index() int { return f.index }
