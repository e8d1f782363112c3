package providers

import "fmt"

// Set holds the configured provider variants and the default selection.
// The native provider is always present; it is the fallback target.
type Set struct {
	byName map[string]Provider
	def    string
	native Provider
}

// NewSet builds a provider set. native must be non-nil; the rest are
// optional variants.
func NewSet(defaultName string, native Provider, others ...Provider) *Set {
	s := &Set{
		byName: map[string]Provider{native.Name(): native},
		def:    defaultName,
		native: native,
	}
	for _, p := range others {
		if p != nil {
			s.byName[p.Name()] = p
		}
	}
	if _, ok := s.byName[s.def]; !ok || s.def == "" {
		s.def = native.Name()
	}
	return s
}

// Get resolves a provider by name; the empty string selects the default.
func (s *Set) Get(name string) (Provider, error) {
	if name == "" {
		name = s.def
	}
	p, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return p, nil
}

// Native returns the fallback provider.
func (s *Set) Native() Provider { return s.native }

// Names lists the registered provider names.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.byName))
	for n := range s.byName {
		out = append(out, n)
	}
	return out
}
