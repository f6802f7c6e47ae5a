package fhir

import (
	"sort"
	"strings"
)

// Path is a required-field path split into its segments. "study.reference"
// becomes ["study", "reference"].
type Path []string

// ParsePath splits a dot-separated field path. Empty segments are dropped.
func ParsePath(s string) Path {
	var p Path
	for _, seg := range strings.Split(s, ".") {
		if seg != "" {
			p = append(p, seg)
		}
	}
	return p
}

func (p Path) String() string { return strings.Join(p, ".") }

// Schema describes what a resource kind requires.
type Schema struct {
	Kind          string
	RequiredPaths []Path
}

// Registry maps resource kinds to their schemas. It is data only; adding a
// kind means adding a row, not touching the Validator.
type Registry struct {
	schemas map[string]Schema
}

// defaultRequiredFields is the registry table for the supported kinds.
var defaultRequiredFields = map[string][]string{
	KindPatient:               {},
	KindResearchStudy:         {"status"},
	KindResearchSubject:       {"status", "study.reference", "individual.reference"},
	KindObservation:           {"status", "code", "subject.reference"},
	KindQuestionnaireResponse: {"status"},
	KindBundle:                {"type"},
	KindOrganization:          {},
	KindPractitioner:          {},
}

// NewRegistry builds a Registry from a kind -> dot-path table.
func NewRegistry(table map[string][]string) *Registry {
	r := &Registry{schemas: make(map[string]Schema, len(table))}
	for kind, fields := range table {
		s := Schema{Kind: kind}
		for _, f := range fields {
			if p := ParsePath(f); len(p) > 0 {
				s.RequiredPaths = append(s.RequiredPaths, p)
			}
		}
		r.schemas[kind] = s
	}
	return r
}

// DefaultRegistry returns the registry for the portal's supported kinds.
func DefaultRegistry() *Registry {
	return NewRegistry(defaultRequiredFields)
}

// Lookup returns the schema for kind and whether the kind is known.
func (r *Registry) Lookup(kind string) (Schema, bool) {
	s, ok := r.schemas[kind]
	return s, ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.schemas))
	for k := range r.schemas {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
