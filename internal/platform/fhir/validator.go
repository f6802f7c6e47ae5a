package fhir

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// birthDatePattern checks shape only; "1990-13-45" passes.
var birthDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// IssueCode classifies a validation problem.
type IssueCode string

const (
	IssueUnsupportedType      IssueCode = "unsupported-type"
	IssueRequiredFieldMissing IssueCode = "required-field-missing"
	IssueEnumerationViolation IssueCode = "enumeration-violation"
	IssueInvalidFormat        IssueCode = "invalid-format"
	IssueInvalidStructure     IssueCode = "invalid-structure"
	IssueMissingReference     IssueCode = "missing-reference"
	IssueRecommendedMissing   IssueCode = "recommended-field-missing"
)

// Issue is one accumulated validation finding.
type Issue struct {
	Severity string    `json:"severity"`
	Code     IssueCode `json:"code"`
	Path     string    `json:"path,omitempty"`
	Message  string    `json:"message"`
}

// ValidationResult holds the outcome of validating one resource.
// Valid is false whenever Errors is non-empty.
type ValidationResult struct {
	Valid        bool     `json:"valid"`
	Errors       []string `json:"errors"`
	Warnings     []string `json:"warnings"`
	Issues       []Issue  `json:"issues"`
	ResourceType string   `json:"resourceType,omitempty"`
	ResourceID   string   `json:"resourceId,omitempty"`
}

func newValidationResult() *ValidationResult {
	return &ValidationResult{
		Valid:    true,
		Errors:   []string{},
		Warnings: []string{},
		Issues:   []Issue{},
	}
}

func (r *ValidationResult) addError(code IssueCode, path, msg string) {
	r.Valid = false
	r.Errors = append(r.Errors, msg)
	r.Issues = append(r.Issues, Issue{Severity: IssueSeverityError, Code: code, Path: path, Message: msg})
}

func (r *ValidationResult) addWarning(code IssueCode, path, msg string) {
	r.Warnings = append(r.Warnings, msg)
	r.Issues = append(r.Issues, Issue{Severity: IssueSeverityWarning, Code: code, Path: path, Message: msg})
}

// IssuesWithCode returns the issues carrying the given code.
func (r *ValidationResult) IssuesWithCode(code IssueCode) []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if is.Code == code {
			out = append(out, is)
		}
	}
	return out
}

// kindRule applies the business rules of one resource kind.
type kindRule func(obj Object, r *ValidationResult)

// Validator checks resources against a Registry plus per-kind rules.
// It holds no mutable state and is safe for concurrent use.
type Validator struct {
	registry *Registry
	rules    map[string]kindRule
}

// NewValidator creates a Validator over the default registry.
func NewValidator() *Validator {
	return NewValidatorWithRegistry(DefaultRegistry())
}

// NewValidatorWithRegistry creates a Validator over a custom registry. Kinds
// without business rules are checked for required fields only.
func NewValidatorWithRegistry(reg *Registry) *Validator {
	return &Validator{
		registry: reg,
		rules: map[string]kindRule{
			KindPatient:               validatePatient,
			KindResearchStudy:         validateResearchStudy,
			KindResearchSubject:       validateResearchSubject,
			KindObservation:           validateObservation,
			KindQuestionnaireResponse: validateQuestionnaireResponse,
			KindBundle:                validateBundle,
		},
	}
}

// Registry returns the registry the validator checks against.
func (v *Validator) Registry() *Registry { return v.registry }

// ValidateJSON decodes data and validates it. The error is non-nil only when
// data is not a JSON object.
func (v *Validator) ValidateJSON(data []byte) (*ValidationResult, error) {
	obj, err := DecodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	return v.Validate(obj), nil
}

// Validate runs the kind check, the required-field check and the kind rules,
// accumulating every problem instead of stopping at the first.
func (v *Validator) Validate(obj Object) *ValidationResult {
	result := newValidationResult()
	if obj == nil {
		result.addError(IssueUnsupportedType, "resourceType", "resourceType is required")
		return result
	}

	result.ResourceID = IDOf(obj)

	raw, present := obj["resourceType"]
	kind, isString := raw.(string)
	switch {
	case !present || raw == nil:
		result.addError(IssueUnsupportedType, "resourceType", "resourceType is required")
	case !isString:
		result.addError(IssueUnsupportedType, "resourceType", "resourceType must be a string")
	default:
		result.ResourceType = kind
	}

	schema, known := v.registry.Lookup(kind)
	if isString && !known {
		result.addError(IssueUnsupportedType, "resourceType",
			fmt.Sprintf("Unsupported resource type: %s", kind))
	}
	if !known {
		return result
	}

	for _, p := range schema.RequiredPaths {
		if !Has(obj, p) {
			result.addError(IssueRequiredFieldMissing, p.String(),
				fmt.Sprintf("Missing required field: %s", p))
		}
	}

	if rule, ok := v.rules[kind]; ok {
		rule(obj, result)
	}
	return result
}

// checkCode validates an optional coded string field against set. Absence is
// left to the required-field check.
func checkCode(obj Object, field string, set CodeSet, kind string, r *ValidationResult) {
	raw, ok := Resolve(obj, Path{field})
	if !ok {
		return
	}
	s, isString := raw.(string)
	if !isString {
		r.addError(IssueEnumerationViolation, field,
			fmt.Sprintf("%s %s must be a string", kind, field))
		return
	}
	if !set.Contains(s) {
		r.addError(IssueEnumerationViolation, field,
			fmt.Sprintf("Invalid %s %s %q; valid values: %s", kind, field, s, set))
	}
}

// checkReference requires path to hold a non-empty reference string.
func checkReference(obj Object, path Path, kind, target string, r *ValidationResult) {
	if raw, ok := Resolve(obj, path); ok {
		if _, isString := raw.(string); isString {
			return
		}
	}
	r.addError(IssueMissingReference, path.String(),
		fmt.Sprintf("%s must reference a %s (%s)", kind, target, path))
}

func validatePatient(obj Object, r *ValidationResult) {
	if raw, ok := Resolve(obj, Path{"gender"}); ok {
		g, isString := raw.(string)
		if !isString || !AdministrativeGender.Contains(g) {
			r.addError(IssueEnumerationViolation, "gender",
				fmt.Sprintf("Invalid gender value %v; valid values: %s", raw, AdministrativeGender))
		}
	}
	if raw, ok := Resolve(obj, Path{"birthDate"}); ok {
		s, isString := raw.(string)
		if !isString || !birthDatePattern.MatchString(s) {
			r.addError(IssueInvalidFormat, "birthDate",
				fmt.Sprintf("Invalid birthDate %v; expected YYYY-MM-DD", raw))
		}
	}
	if raw, ok := Resolve(obj, Path{"name"}); ok {
		if _, isArray := raw.([]interface{}); !isArray {
			r.addError(IssueInvalidStructure, "name", "Patient name must be an array")
		}
	} else {
		r.addWarning(IssueRecommendedMissing, "name", "Patient has no name")
	}
	if !Has(obj, Path{"identifier"}) {
		r.addWarning(IssueRecommendedMissing, "identifier", "Patient has no identifier")
	}
}

func validateResearchStudy(obj Object, r *ValidationResult) {
	checkCode(obj, "status", ResearchStudyStatus, KindResearchStudy, r)
	if !Has(obj, Path{"title"}) {
		r.addWarning(IssueRecommendedMissing, "title", "ResearchStudy has no title")
	}
}

func validateResearchSubject(obj Object, r *ValidationResult) {
	checkCode(obj, "status", ResearchSubjectStatus, KindResearchSubject, r)
	checkReference(obj, Path{"study", "reference"}, KindResearchSubject, "study", r)
	checkReference(obj, Path{"individual", "reference"}, KindResearchSubject, "individual", r)
}

func validateObservation(obj Object, r *ValidationResult) {
	checkCode(obj, "status", ObservationStatus, KindObservation, r)
	checkReference(obj, Path{"subject", "reference"}, KindObservation, "subject", r)
	if !Has(obj, Path{"effectiveDateTime"}) && !Has(obj, Path{"effectivePeriod"}) {
		r.addWarning(IssueRecommendedMissing, "effective[x]", "Observation has no effective time")
	}
}

func validateQuestionnaireResponse(obj Object, r *ValidationResult) {
	checkCode(obj, "status", QuestionnaireResponseStatus, KindQuestionnaireResponse, r)
}

func validateBundle(obj Object, r *ValidationResult) {
	checkCode(obj, "type", BundleType, KindBundle, r)
	if raw, present := obj["entry"]; present && raw != nil {
		if _, isArray := raw.([]interface{}); !isArray {
			r.addError(IssueInvalidStructure, "entry", "Bundle entry must be an array")
		}
	}
}

// MarshalJSON keeps the slices non-null on the wire.
func (r ValidationResult) MarshalJSON() ([]byte, error) {
	type alias ValidationResult
	if r.Errors == nil {
		r.Errors = []string{}
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
	if r.Issues == nil {
		r.Issues = []Issue{}
	}
	return json.Marshal(alias(r))
}
