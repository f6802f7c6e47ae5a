package fhir

import "strings"

// CodeSet is a fixed, ordered set of allowed code values. Every value set used
// by both the mappers and the Validator is declared once in this file.
type CodeSet struct {
	name   string
	values []string
	index  map[string]bool
}

// NewCodeSet builds a CodeSet from its values in declaration order.
func NewCodeSet(name string, values ...string) CodeSet {
	idx := make(map[string]bool, len(values))
	for _, v := range values {
		idx[v] = true
	}
	return CodeSet{name: name, values: values, index: idx}
}

// Name returns the set's descriptive name.
func (s CodeSet) Name() string { return s.name }

// Contains reports whether code is a member of the set.
func (s CodeSet) Contains(code string) bool { return s.index[code] }

// Values returns a copy of the set's members in declaration order.
func (s CodeSet) Values() []string {
	out := make([]string, len(s.values))
	copy(out, s.values)
	return out
}

// Len returns the number of members.
func (s CodeSet) Len() int { return len(s.values) }

func (s CodeSet) String() string { return strings.Join(s.values, ", ") }

// Resource kinds.
const (
	KindPatient               = "Patient"
	KindResearchStudy         = "ResearchStudy"
	KindResearchSubject       = "ResearchSubject"
	KindObservation           = "Observation"
	KindQuestionnaireResponse = "QuestionnaireResponse"
	KindBundle                = "Bundle"
	KindOrganization          = "Organization"
	KindPractitioner          = "Practitioner"
)

var (
	// AdministrativeGender is the FHIR administrative-gender value set.
	AdministrativeGender = NewCodeSet("administrative-gender",
		"male", "female", "other", "unknown")

	// ResearchStudyStatus is the FHIR R4 research-study-status value set.
	ResearchStudyStatus = NewCodeSet("research-study-status",
		"active",
		"administratively-completed",
		"approved",
		"closed-to-accrual",
		"closed-to-accrual-and-intervention",
		"completed",
		"disapproved",
		"in-review",
		"temporarily-closed-to-accrual",
		"temporarily-closed-to-accrual-and-intervention",
		"withdrawn",
	)

	// ResearchSubjectStatus is the FHIR R4 research-subject-status value set.
	ResearchSubjectStatus = NewCodeSet("research-subject-status",
		"candidate",
		"eligible",
		"follow-up",
		"ineligible",
		"not-registered",
		"off-study",
		"on-study",
		"on-study-intervention",
		"on-study-observation",
		"pending-on-study",
		"potential-candidate",
		"screening",
		"withdrawn",
	)

	// ObservationStatus is the FHIR R4 observation-status value set.
	ObservationStatus = NewCodeSet("observation-status",
		"registered", "preliminary", "final", "amended",
		"corrected", "cancelled", "entered-in-error", "unknown")

	// QuestionnaireResponseStatus is the FHIR R4 questionnaire-answers-status value set.
	QuestionnaireResponseStatus = NewCodeSet("questionnaire-answers-status",
		"in-progress", "completed", "amended", "entered-in-error", "stopped")

	// BundleType is the FHIR R4 bundle-type value set.
	BundleType = NewCodeSet("bundle-type",
		"document", "message", "transaction", "transaction-response",
		"batch", "batch-response", "history", "searchset", "collection")

	// ImportableKinds are the resource kinds the bundle importer accepts.
	ImportableKinds = NewCodeSet("importable-kinds",
		KindPatient, KindResearchStudy, KindResearchSubject,
		KindObservation, KindQuestionnaireResponse)
)

// Code systems used when building resources.
const (
	SystemResearchStudyPhase = "http://terminology.hl7.org/CodeSystem/research-study-phase"
	SystemObservationCat     = "http://terminology.hl7.org/CodeSystem/observation-category"
	SystemLOINC              = "http://loinc.org"
	SystemUCUM               = "http://unitsofmeasure.org"
	SystemSubjectID          = "urn:trialportal:subject-id"
	SystemProtocol           = "urn:trialportal:protocol"
)
