package fhir

import (
	"encoding/json"
	"testing"
)

func TestNewOperationOutcome(t *testing.T) {
	oo := NewOperationOutcome("error", "processing", "something went wrong")

	if oo.ResourceType != "OperationOutcome" {
		t.Errorf("expected resourceType OperationOutcome, got %s", oo.ResourceType)
	}
	if len(oo.Issue) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(oo.Issue))
	}
	if oo.Issue[0].Severity != "error" {
		t.Errorf("expected severity error, got %s", oo.Issue[0].Severity)
	}
	if oo.Issue[0].Diagnostics != "something went wrong" {
		t.Errorf("expected diagnostics 'something went wrong', got %s", oo.Issue[0].Diagnostics)
	}
}

func TestOperationOutcome_HasErrors(t *testing.T) {
	tests := []struct {
		severity string
		want     bool
	}{
		{IssueSeverityFatal, true},
		{IssueSeverityError, true},
		{IssueSeverityWarning, false},
		{IssueSeverityInformation, false},
	}
	for _, tt := range tests {
		t.Run(tt.severity, func(t *testing.T) {
			oo := NewOperationOutcome(tt.severity, IssueTypeProcessing, "x")
			if got := oo.HasErrors(); got != tt.want {
				t.Errorf("HasErrors() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToOperationOutcome_CleanResult(t *testing.T) {
	r := NewValidator().Validate(Object{"resourceType": "Organization"})
	oo := r.ToOperationOutcome()
	if len(oo.Issue) != 1 {
		t.Fatalf("expected a single informational issue, got %d", len(oo.Issue))
	}
	if oo.Issue[0].Severity != IssueSeverityInformation || oo.Issue[0].Code != IssueTypeInformational {
		t.Errorf("unexpected issue %+v", oo.Issue[0])
	}
	if oo.HasErrors() {
		t.Error("clean result must not report errors")
	}
}

func TestToOperationOutcome_MapsIssueCodes(t *testing.T) {
	r := NewValidator().Validate(Object{
		"resourceType": "ResearchSubject",
		"status":       "bogus",
	})
	oo := r.ToOperationOutcome()
	if !oo.HasErrors() {
		t.Fatal("expected errors")
	}
	if len(oo.Issue) != len(r.Issues) {
		t.Fatalf("expected %d issues, got %d", len(r.Issues), len(oo.Issue))
	}

	codes := map[string]int{}
	for _, is := range oo.Issue {
		codes[is.Code]++
		if len(is.Expression) != 1 {
			t.Errorf("expected expression on %+v", is)
		}
	}
	if codes[IssueTypeCodeInvalid] != 1 {
		t.Errorf("expected one code-invalid issue, got %v", codes)
	}
	// two required paths plus two reference rules
	if codes[IssueTypeRequired] != 4 {
		t.Errorf("expected four required issues, got %v", codes)
	}
}

func TestToOperationOutcome_WarningsKeepSeverity(t *testing.T) {
	r := NewValidator().Validate(Object{"resourceType": "Patient"})
	oo := r.ToOperationOutcome()
	for _, is := range oo.Issue {
		if is.Severity != IssueSeverityWarning {
			t.Errorf("expected warning severity, got %s", is.Severity)
		}
	}
	if oo.HasErrors() {
		t.Error("warnings only must not report errors")
	}
}

func TestOperationOutcome_JSON(t *testing.T) {
	oo := NewOperationOutcome(IssueSeverityError, IssueTypeInvalid, "bad")
	data, err := json.Marshal(oo)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["resourceType"] != "OperationOutcome" {
		t.Errorf("expected resourceType OperationOutcome, got %v", m["resourceType"])
	}
	issues, ok := m["issue"].([]interface{})
	if !ok || len(issues) != 1 {
		t.Fatalf("expected one issue, got %v", m["issue"])
	}
	issue := issues[0].(map[string]interface{})
	if _, has := issue["expression"]; has {
		t.Error("expression should be omitted when empty")
	}
}
