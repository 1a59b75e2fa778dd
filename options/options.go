package options

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// ValueKind tags the lexical form a value was written in
type ValueKind int

const (
	String ValueKind = iota
	QuotedString
	Number
)

// String implements the Stringer interface for ValueKind
func (k ValueKind) String() string {
	switch k {
	case QuotedString:
		return "quoted"
	case Number:
		return "number"
	default:
		return "string"
	}
}

// Value is a single typed directive value. Text holds the value as written,
// with quotes removed and escapes resolved.
type Value struct {
	Kind ValueKind
	Text string
}

func (v Value) String() string {
	return v.Text
}

// Directive is one parsed flag occurrence
type Directive struct {
	Name   string
	Values []Value
}

// Set maps option names to their value lists
type Set struct {
	directives []Directive
	values     map[string][]Value
	order      []string
}

// NewSet creates an empty Set
func NewSet() *Set {
	return &Set{values: make(map[string][]Value)}
}

func (s *Set) add(d Directive) {
	s.directives = append(s.directives, d)
	if _, ok := s.values[d.Name]; !ok {
		s.order = append(s.order, d.Name)
	}
	s.values[d.Name] = d.Values
}

// Directives returns every directive in encounter order, including repeated names
func (s *Set) Directives() []Directive {
	return slices.Clone(s.directives)
}

// Names returns the unique option names in order of first appearance
func (s *Set) Names() []string {
	return slices.Clone(s.order)
}

// Get returns the value list of an option and whether it was given at all
func (s *Set) Get(name string) ([]Value, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Strings returns the values of an option as plain strings
func (s *Set) Strings(name string) []string {
	values := s.values[name]
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.Text
	}
	return out
}

// UnknownBesides returns the names of every option not in allowed
func (s *Set) UnknownBesides(allowed ...string) ([]string, bool) {
	var unknown []string
	for _, name := range s.order {
		if !slices.Contains(allowed, name) {
			unknown = append(unknown, name)
		}
	}
	return unknown, len(unknown) > 0
}

// Merge adds the directives of other to s; other wins on name collision
func (s *Set) Merge(other *Set) {
	if other == nil {
		return
	}
	for _, d := range other.directives {
		s.add(d)
	}
}

// LoadMore parses relPath, resolved against baseDir, and merges it into s
func (s *Set) LoadMore(baseDir, relPath string) error {
	more, err := Load(ResolvePath(baseDir, relPath))
	if err != nil {
		return err
	}
	s.Merge(more)
	return nil
}

// Load reads and parses a configuration file
func Load(path string) (*Set, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	set, err := Parse(string(content))
	if err != nil {
		if perr, ok := err.(*ParseError); ok {
			perr.Path = path
		}
		return nil, err
	}
	return set, nil
}

// ResolvePath resolves p against dir unless it is already absolute
func ResolvePath(dir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}
