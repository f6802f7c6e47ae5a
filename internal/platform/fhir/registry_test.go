package fhir

import (
	"reflect"
	"testing"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		in   string
		want Path
	}{
		{"status", Path{"status"}},
		{"study.reference", Path{"study", "reference"}},
		{"a..b.", Path{"a", "b"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParsePath(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParsePath(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDefaultRegistry_Kinds(t *testing.T) {
	want := []string{
		"Bundle", "Observation", "Organization", "Patient",
		"Practitioner", "QuestionnaireResponse", "ResearchStudy", "ResearchSubject",
	}
	if got := DefaultRegistry().Kinds(); !reflect.DeepEqual(got, want) {
		t.Errorf("Kinds() = %v, want %v", got, want)
	}
}

func TestDefaultRegistry_Lookup(t *testing.T) {
	reg := DefaultRegistry()

	s, ok := reg.Lookup("ResearchSubject")
	if !ok {
		t.Fatal("expected ResearchSubject to be registered")
	}
	want := []Path{{"status"}, {"study", "reference"}, {"individual", "reference"}}
	if !reflect.DeepEqual(s.RequiredPaths, want) {
		t.Errorf("unexpected required paths %v", s.RequiredPaths)
	}

	if s, ok := reg.Lookup("Patient"); !ok || len(s.RequiredPaths) != 0 {
		t.Errorf("expected Patient with no required paths, got %v %v", s, ok)
	}
	if _, ok := reg.Lookup("Encounter"); ok {
		t.Error("expected Encounter to be unknown")
	}
}

func TestCodeSets(t *testing.T) {
	tests := []struct {
		set  CodeSet
		size int
	}{
		{AdministrativeGender, 4},
		{ResearchStudyStatus, 11},
		{ResearchSubjectStatus, 13},
		{ObservationStatus, 8},
		{QuestionnaireResponseStatus, 5},
		{BundleType, 9},
		{ImportableKinds, 5},
	}
	for _, tt := range tests {
		t.Run(tt.set.Name(), func(t *testing.T) {
			if tt.set.Len() != tt.size {
				t.Errorf("expected %d values, got %d", tt.size, tt.set.Len())
			}
			for _, v := range tt.set.Values() {
				if !tt.set.Contains(v) {
					t.Errorf("set does not contain its own value %q", v)
				}
			}
		})
	}
	if ImportableKinds.Contains(KindBundle) {
		t.Error("Bundle must not be importable as an entry")
	}
}

func TestCodeSet_ValuesIsCopy(t *testing.T) {
	v := AdministrativeGender.Values()
	v[0] = "mutated"
	if !AdministrativeGender.Contains("male") || AdministrativeGender.Values()[0] != "male" {
		t.Error("Values() must not expose internal storage")
	}
}
