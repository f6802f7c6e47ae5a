package trial

import (
	"fmt"

	"github.com/trialportal/portal/internal/platform/fhir"
)

// StatusCollapse maps the portal's internal statuses onto a FHIR status code.
// It is total: statuses missing from the table fall back to the default and
// come back with a warning.
type StatusCollapse struct {
	name     string
	table    map[string]string
	fallback string
	target   fhir.CodeSet
}

// Apply returns the FHIR code for status and a warning when status was not in
// the table.
func (s StatusCollapse) Apply(status string) (string, string) {
	if code, ok := s.table[status]; ok {
		return code, ""
	}
	return s.fallback, fmt.Sprintf("unmapped %s status %q; using %q", s.name, status, s.fallback)
}

// Target is the value set every result belongs to.
func (s StatusCollapse) Target() fhir.CodeSet { return s.target }

// Codes returns every code the table can produce, fallback included.
func (s StatusCollapse) Codes() []string {
	out := []string{s.fallback}
	for _, code := range s.table {
		out = append(out, code)
	}
	return out
}

// StudyStatusCollapse: only "active" stays active; every other lifecycle
// state reads as completed.
var StudyStatusCollapse = StatusCollapse{
	name: "study",
	table: map[string]string{
		"active":    "active",
		"draft":     "completed",
		"paused":    "completed",
		"completed": "completed",
		"cancelled": "completed",
		"closed":    "completed",
	},
	fallback: "completed",
	target:   fhir.ResearchStudyStatus,
}

// EnrollmentStatusCollapse: "active" is on-study, everything else withdrawn.
var EnrollmentStatusCollapse = StatusCollapse{
	name: "enrollment",
	table: map[string]string{
		"active":        "on-study",
		"screening":     "withdrawn",
		"completed":     "withdrawn",
		"withdrawn":     "withdrawn",
		"screen_failed": "withdrawn",
		"lost":          "withdrawn",
	},
	fallback: "withdrawn",
	target:   fhir.ResearchSubjectStatus,
}
