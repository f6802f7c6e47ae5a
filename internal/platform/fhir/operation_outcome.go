package fhir

// OperationOutcome severity levels per FHIR R4 spec.
const (
	IssueSeverityFatal       = "fatal"
	IssueSeverityError       = "error"
	IssueSeverityWarning     = "warning"
	IssueSeverityInformation = "information"
)

// OperationOutcome issue type codes per FHIR R4 spec.
const (
	IssueTypeInvalid       = "invalid"
	IssueTypeStructure     = "structure"
	IssueTypeRequired      = "required"
	IssueTypeValue         = "value"
	IssueTypeProcessing    = "processing"
	IssueTypeNotSupported  = "not-supported"
	IssueTypeException     = "exception"
	IssueTypeCodeInvalid   = "code-invalid"
	IssueTypeInformational = "informational"
)

// OperationOutcome represents a FHIR OperationOutcome.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string           `json:"severity"`
	Code        string           `json:"code"`
	Details     *CodeableConcept `json:"details,omitempty"`
	Diagnostics string           `json:"diagnostics,omitempty"`
	Expression  []string         `json:"expression,omitempty"`
}

func NewOperationOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{
				Severity:    severity,
				Code:        code,
				Diagnostics: diagnostics,
			},
		},
	}
}

// HasErrors returns true if the outcome contains any error or fatal issues.
func (o *OperationOutcome) HasErrors() bool {
	for _, issue := range o.Issue {
		if issue.Severity == IssueSeverityError || issue.Severity == IssueSeverityFatal {
			return true
		}
	}
	return false
}

// issueTypeFor maps validation issue codes onto FHIR issue-type codes.
var issueTypeFor = map[IssueCode]string{
	IssueUnsupportedType:      IssueTypeNotSupported,
	IssueRequiredFieldMissing: IssueTypeRequired,
	IssueEnumerationViolation: IssueTypeCodeInvalid,
	IssueInvalidFormat:        IssueTypeValue,
	IssueInvalidStructure:     IssueTypeStructure,
	IssueMissingReference:     IssueTypeRequired,
	IssueRecommendedMissing:   IssueTypeInformational,
}

// ToOperationOutcome converts a ValidationResult into an OperationOutcome. A
// clean result yields a single informational issue, as FHIR requires at least one.
func (r *ValidationResult) ToOperationOutcome() *OperationOutcome {
	if len(r.Issues) == 0 {
		return NewOperationOutcome(IssueSeverityInformation, IssueTypeInformational, "All OK")
	}
	oo := &OperationOutcome{ResourceType: "OperationOutcome"}
	for _, is := range r.Issues {
		code, ok := issueTypeFor[is.Code]
		if !ok {
			code = IssueTypeInvalid
		}
		issue := OperationOutcomeIssue{
			Severity:    is.Severity,
			Code:        code,
			Diagnostics: is.Message,
		}
		if is.Path != "" {
			issue.Expression = []string{is.Path}
		}
		oo.Issue = append(oo.Issue, issue)
	}
	return oo
}
