package trial

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/trialportal/portal/internal/platform/fhir"
)

func testMapper() *Mapper {
	return NewMapperWithClock(func() time.Time { return fixedNow })
}

func mustValidate(t *testing.T, obj fhir.Object) *fhir.ValidationResult {
	t.Helper()
	norm, err := fhir.Normalize(obj)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return fhir.NewValidator().Validate(norm)
}

func TestMapper_Patient(t *testing.T) {
	f := newFixture()
	p, _ := f.repos.Participants.GetByID(context.Background(), p1ID)
	obj := testMapper().Patient(p)

	if obj["resourceType"] != "Patient" || obj["id"] != p1ID.String() {
		t.Errorf("unexpected header %v %v", obj["resourceType"], obj["id"])
	}
	ids := obj["identifier"].([]fhir.Identifier)
	if ids[0].Value != "S-001" || ids[0].System != fhir.SystemSubjectID {
		t.Errorf("unexpected identifier %+v", ids[0])
	}
	if obj["active"] != true {
		t.Error("expected active patient")
	}
	names := obj["name"].([]fhir.HumanName)
	if names[0].Family != "García" || len(names[0].Given) != 1 || names[0].Given[0] != "Ana" {
		t.Errorf("unexpected name %+v", names[0])
	}
	telecom := obj["telecom"].([]fhir.ContactPoint)
	if telecom[0].System != "email" || telecom[0].Value != "ana@example.org" {
		t.Errorf("unexpected telecom %+v", telecom)
	}
	if obj["gender"] != "female" {
		t.Errorf("expected lower-cased gender, got %v", obj["gender"])
	}
	if obj["birthDate"] != "1985-06-01" {
		t.Errorf("unexpected birthDate %v", obj["birthDate"])
	}
	addr := obj["address"].([]fhir.Address)
	if addr[0].City != "Madrid" || addr[0].PostalCode != "28001" || addr[0].Country != "es" || addr[0].State != "" {
		t.Errorf("unexpected address %+v", addr[0])
	}

	if r := mustValidate(t, obj); !r.Valid {
		t.Errorf("expected mapped patient to validate, got %v", r.Errors)
	}
}

func TestMapper_PatientMinimal(t *testing.T) {
	id := uuid.New()
	obj := testMapper().Patient(&Participant{ID: id, LastName: "Soto", Status: "withdrawn"})

	ids := obj["identifier"].([]fhir.Identifier)
	if ids[0].Value != id.String() {
		t.Errorf("expected id fallback, got %q", ids[0].Value)
	}
	if obj["active"] != false {
		t.Error("expected inactive patient")
	}
	for _, key := range []string{"telecom", "address", "gender", "birthDate"} {
		if _, ok := obj[key]; ok {
			t.Errorf("expected no %s", key)
		}
	}
	if names := obj["name"].([]fhir.HumanName); names[0].Given != nil {
		t.Errorf("expected no given names, got %v", names[0].Given)
	}
}

func TestMapper_PatientInvalidGenderPassesThrough(t *testing.T) {
	obj := testMapper().Patient(&Participant{ID: uuid.New(), Gender: strPtr("Desconocido")})
	if obj["gender"] != "desconocido" {
		t.Fatalf("expected gender to pass through, got %v", obj["gender"])
	}
	r := mustValidate(t, obj)
	if r.Valid {
		t.Fatal("expected validator to reject the gender")
	}
	if got := len(r.IssuesWithCode(fhir.IssueEnumerationViolation)); got != 1 {
		t.Errorf("expected 1 enumeration violation, got %d", got)
	}
}

func TestMapper_ResearchStudy(t *testing.T) {
	f := newFixture()
	st, _ := f.repos.Studies.GetByID(context.Background(), studyID)
	obj, warnings := testMapper().ResearchStudy(st)

	if len(warnings) != 0 {
		t.Errorf("unexpected warnings %v", warnings)
	}
	if obj["status"] != "active" {
		t.Errorf("expected active, got %v", obj["status"])
	}
	ids := obj["identifier"].([]fhir.Identifier)
	if ids[0].Value != "ONC-001" || ids[0].System != fhir.SystemProtocol {
		t.Errorf("unexpected identifier %+v", ids[0])
	}
	phase := obj["phase"].(fhir.CodeableConcept)
	if phase.Coding[0].Code != "phase-2" || phase.Text != "Phase II" {
		t.Errorf("expected default phase, got %+v", phase)
	}
	if obj["sponsor"].(fhir.Reference).Display != "Fundación Salud" {
		t.Errorf("unexpected sponsor %v", obj["sponsor"])
	}
	if r := mustValidate(t, obj); !r.Valid {
		t.Errorf("expected mapped study to validate, got %v", r.Errors)
	}
}

func TestMapper_ResearchStudyStatusAndPhase(t *testing.T) {
	tests := []struct {
		status, phase         string
		wantStatus, wantPhase string
		wantDisplay           string
		wantWarnings          int
	}{
		{"completed", "phase_3", "completed", "phase-3", "Phase III", 0},
		{"paused", "Phase 1 Phase 2", "completed", "phase-1-phase-2", "Phase I/II", 0},
		{"archived", "", "completed", "phase-2", "Phase II", 1},
		{"active", "pilot", "active", "pilot", "pilot", 0},
	}
	for _, tt := range tests {
		t.Run(tt.status+"/"+tt.phase, func(t *testing.T) {
			st := &Study{ID: uuid.New(), Protocol: "P", Title: "T", Status: tt.status, Phase: strPtr(tt.phase)}
			obj, warnings := testMapper().ResearchStudy(st)
			if obj["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %s", obj["status"], tt.wantStatus)
			}
			phase := obj["phase"].(fhir.CodeableConcept)
			if phase.Coding[0].Code != tt.wantPhase || phase.Coding[0].Display != tt.wantDisplay {
				t.Errorf("phase = %+v, want %s/%s", phase.Coding[0], tt.wantPhase, tt.wantDisplay)
			}
			if len(warnings) != tt.wantWarnings {
				t.Errorf("warnings = %v, want %d", warnings, tt.wantWarnings)
			}
		})
	}
}

func TestMapper_ResearchSubject(t *testing.T) {
	e := &Enrollment{ParticipantID: p1ID, StudyID: studyID, Status: "active"}
	obj, warnings := testMapper().ResearchSubject(e)

	if obj["id"] != p1ID.String()+"-"+studyID.String() {
		t.Errorf("unexpected id %v", obj["id"])
	}
	if obj["status"] != "on-study" {
		t.Errorf("expected on-study, got %v", obj["status"])
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings %v", warnings)
	}
	if obj["study"].(fhir.Reference).Reference != "ResearchStudy/"+studyID.String() {
		t.Errorf("unexpected study ref %v", obj["study"])
	}
	if obj["individual"].(fhir.Reference).Reference != "Patient/"+p1ID.String() {
		t.Errorf("unexpected individual ref %v", obj["individual"])
	}
	if r := mustValidate(t, obj); !r.Valid {
		t.Errorf("expected mapped subject to validate, got %v", r.Errors)
	}

	e.Status = "lost_contact"
	obj, warnings = testMapper().ResearchSubject(e)
	if obj["status"] != "withdrawn" || len(warnings) != 1 {
		t.Errorf("expected withdrawn with warning, got %v %v", obj["status"], warnings)
	}
}

func TestMapper_QuestionnaireResponse(t *testing.T) {
	r := &QuestionnaireResponse{
		ID:            uuid.New(),
		ParticipantID: p1ID,
		Answers: map[string]interface{}{
			"q2":    float64(7),
			"q1":    "yes",
			"q3":    []interface{}{"a", "b"},
			"q4":    true,
			"extra": map[string]interface{}{"k": "v"},
		},
	}
	obj := testMapper().QuestionnaireResponse(r)

	if obj["authored"] != "2024-03-10T12:00:00Z" {
		t.Errorf("expected clock default for authored, got %v", obj["authored"])
	}
	if obj["status"] != "completed" {
		t.Errorf("expected default status completed, got %v", obj["status"])
	}
	items := obj["item"].([]questionnaireItem)
	want := []struct{ link, value string }{
		{"extra", `{"k":"v"}`},
		{"q1", "yes"},
		{"q2", "7"},
		{"q3", `["a","b"]`},
		{"q4", "true"},
	}
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(items))
	}
	for i, w := range want {
		if items[i].LinkID != w.link || items[i].Answer[0].ValueString != w.value {
			t.Errorf("item %d = %+v, want %s=%s", i, items[i], w.link, w.value)
		}
	}
	if res := mustValidate(t, obj); !res.Valid {
		t.Errorf("expected mapped response to validate, got %v", res.Errors)
	}
}

func TestMapper_QuestionnaireResponseSubmitted(t *testing.T) {
	submitted := time.Date(2024, 2, 1, 8, 30, 0, 0, time.FixedZone("CET", 3600))
	obj := testMapper().QuestionnaireResponse(&QuestionnaireResponse{ID: uuid.New(), Status: "in-progress", SubmittedAt: &submitted})
	if obj["authored"] != "2024-02-01T07:30:00Z" {
		t.Errorf("unexpected authored %v", obj["authored"])
	}
	if obj["status"] != "in-progress" {
		t.Errorf("unexpected status %v", obj["status"])
	}
	if items := obj["item"].([]questionnaireItem); len(items) != 0 {
		t.Errorf("expected no items, got %d", len(items))
	}
}

func TestMapper_Observation(t *testing.T) {
	v := &VitalSign{ID: uuid.New(), ParticipantID: p1ID, Type: "heart_rate", Value: 72, RecordedAt: fixedNow}
	obj := testMapper().Observation(v)

	code := obj["code"].(fhir.CodeableConcept)
	if code.Coding[0].System != fhir.SystemLOINC || code.Coding[0].Code != "8867-4" {
		t.Errorf("unexpected code %+v", code)
	}
	qty := obj["valueQuantity"].(fhir.Quantity)
	if qty.Value != 72 || qty.Unit != "/min" || qty.System != fhir.SystemUCUM {
		t.Errorf("unexpected quantity %+v", qty)
	}
	if obj["effectiveDateTime"] != "2024-03-10T12:00:00Z" {
		t.Errorf("unexpected effective %v", obj["effectiveDateTime"])
	}
	if r := mustValidate(t, obj); !r.Valid || len(r.Warnings) != 0 {
		t.Errorf("expected clean validation, got %v %v", r.Errors, r.Warnings)
	}

	obj = testMapper().Observation(&VitalSign{ID: uuid.New(), ParticipantID: p1ID, Type: "glucose", Value: 5.4, Unit: "mmol/L", RecordedAt: fixedNow})
	code = obj["code"].(fhir.CodeableConcept)
	if len(code.Coding) != 0 || code.Text != "glucose" {
		t.Errorf("expected text-only code, got %+v", code)
	}
	if qty := obj["valueQuantity"].(fhir.Quantity); qty.Unit != "mmol/L" || qty.System != "" {
		t.Errorf("unexpected quantity %+v", qty)
	}
}
