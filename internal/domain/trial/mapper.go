package trial

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/trialportal/portal/internal/platform/fhir"
)

// Mapper turns trial records into FHIR resources. Mapping is one way; there
// is no inverse.
type Mapper struct {
	now func() time.Time
}

func NewMapper() *Mapper {
	return &Mapper{now: time.Now}
}

// NewMapperWithClock uses now as the default authored time of questionnaire
// responses without a submission time.
func NewMapperWithClock(now func() time.Time) *Mapper {
	return &Mapper{now: now}
}

// questionnaireItem and questionnaireAnswer are the item shapes of a
// QuestionnaireResponse.
type questionnaireItem struct {
	LinkID string                `json:"linkId"`
	Answer []questionnaireAnswer `json:"answer"`
}

type questionnaireAnswer struct {
	ValueString string `json:"valueString"`
}

var phaseDisplay = map[string]string{
	"early-phase-1":   "Early Phase I",
	"phase-1":         "Phase I",
	"phase-1-phase-2": "Phase I/II",
	"phase-2":         "Phase II",
	"phase-2-phase-3": "Phase II/III",
	"phase-3":         "Phase III",
	"phase-4":         "Phase IV",
	"n-a":             "N/A",
}

const (
	defaultPhase        = "phase-2"
	defaultPhaseDisplay = "Phase II"
)

// Patient maps a participant. Gender is lower-cased but not checked here.
func (m *Mapper) Patient(p *Participant) fhir.Object {
	id := p.ID.String()
	name := fhir.HumanName{Use: "official", Family: p.LastName}
	if p.FirstName != "" {
		name.Given = []string{p.FirstName}
	}

	res := fhir.Object{
		"resourceType": fhir.KindPatient,
		"id":           id,
		"identifier": []fhir.Identifier{{
			Use:    "usual",
			System: fhir.SystemSubjectID,
			Value:  p.DisplaySubjectID(),
		}},
		"active": p.Status == "active",
		"name":   []fhir.HumanName{name},
	}
	if !p.UpdatedAt.IsZero() {
		updated := p.UpdatedAt.UTC()
		res["meta"] = fhir.Meta{LastUpdated: &updated}
	}
	if p.Email != nil && *p.Email != "" {
		res["telecom"] = []fhir.ContactPoint{{System: "email", Value: *p.Email, Use: "home"}}
	}
	if p.Gender != nil && *p.Gender != "" {
		res["gender"] = strings.ToLower(*p.Gender)
	}
	if p.BirthDate != nil {
		res["birthDate"] = fhir.FormatDate(*p.BirthDate)
	}
	if p.Address != nil && *p.Address != "" {
		res["address"] = []fhir.Address{{
			Use:        "home",
			Line:       []string{*p.Address},
			City:       deref(p.City),
			State:      deref(p.State),
			PostalCode: deref(p.ZipCode),
			Country:    deref(p.Country),
		}}
	}
	return res
}

// ResearchStudy maps a study. The returned warnings name statuses the
// collapse table did not know.
func (m *Mapper) ResearchStudy(s *Study) (fhir.Object, []string) {
	var warnings []string
	status, warn := StudyStatusCollapse.Apply(s.Status)
	if warn != "" {
		warnings = append(warnings, warn)
	}

	phase, display := studyPhase(s.Phase)
	res := fhir.Object{
		"resourceType": fhir.KindResearchStudy,
		"id":           s.ID.String(),
		"identifier": []fhir.Identifier{{
			Use:    "official",
			System: fhir.SystemProtocol,
			Value:  s.Protocol,
		}},
		"title":  s.Title,
		"status": status,
		"phase": fhir.CodeableConcept{
			Coding: []fhir.Coding{{System: fhir.SystemResearchStudyPhase, Code: phase, Display: display}},
			Text:   display,
		},
	}
	if s.Description != nil && *s.Description != "" {
		res["description"] = *s.Description
	}
	if s.Sponsor != nil && *s.Sponsor != "" {
		res["sponsor"] = fhir.Reference{Display: *s.Sponsor}
	}
	if s.StartDate != nil || s.EndDate != nil {
		res["period"] = fhir.Period{Start: s.StartDate, End: s.EndDate}
	}
	return res, warnings
}

func studyPhase(raw *string) (string, string) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return defaultPhase, defaultPhaseDisplay
	}
	code := strings.ToLower(strings.TrimSpace(*raw))
	code = strings.NewReplacer("_", "-", " ", "-").Replace(code)
	if display, ok := phaseDisplay[code]; ok {
		return code, display
	}
	return code, *raw
}

// ResearchSubject maps an enrollment. Its id is "{participantId}-{studyId}".
func (m *Mapper) ResearchSubject(e *Enrollment) (fhir.Object, []string) {
	var warnings []string
	status, warn := EnrollmentStatusCollapse.Apply(e.Status)
	if warn != "" {
		warnings = append(warnings, warn)
	}

	res := fhir.Object{
		"resourceType": fhir.KindResearchSubject,
		"id":           SubjectResourceID(e),
		"status":       status,
		"study":        fhir.Reference{Reference: fhir.FormatReference(fhir.KindResearchStudy, e.StudyID.String())},
		"individual":   fhir.Reference{Reference: fhir.FormatReference(fhir.KindPatient, e.ParticipantID.String())},
	}
	if e.EnrolledAt != nil {
		res["period"] = fhir.Period{Start: e.EnrolledAt}
	}
	return res, warnings
}

// SubjectResourceID is the ResearchSubject id of an enrollment.
func SubjectResourceID(e *Enrollment) string {
	return fmt.Sprintf("%s-%s", e.ParticipantID, e.StudyID)
}

// QuestionnaireResponse maps a questionnaire submission. Items follow the
// answer keys in sorted order; non-string answers carry their JSON text.
func (m *Mapper) QuestionnaireResponse(r *QuestionnaireResponse) fhir.Object {
	authored := m.now()
	if r.SubmittedAt != nil {
		authored = *r.SubmittedAt
	}
	status := r.Status
	if status == "" {
		status = "completed"
	}

	keys := make([]string, 0, len(r.Answers))
	for k := range r.Answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	items := make([]questionnaireItem, 0, len(keys))
	for _, k := range keys {
		items = append(items, questionnaireItem{
			LinkID: k,
			Answer: []questionnaireAnswer{{ValueString: answerString(r.Answers[k])}},
		})
	}

	res := fhir.Object{
		"resourceType": fhir.KindQuestionnaireResponse,
		"id":           r.ID.String(),
		"status":       status,
		"subject":      fhir.Reference{Reference: fhir.FormatReference(fhir.KindPatient, r.ParticipantID.String())},
		"authored":     fhir.FormatDateTime(authored),
		"item":         items,
	}
	if r.QuestionnaireID != "" {
		res["questionnaire"] = r.QuestionnaireID
	}
	return res
}

func answerString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// Observation maps a vital sign. Types outside VitalTypes keep only a text
// code.
func (m *Mapper) Observation(v *VitalSign) fhir.Object {
	vt, known := VitalTypes[v.Type]
	code := fhir.CodeableConcept{Text: v.Type}
	qty := fhir.Quantity{Value: v.Value, Unit: v.Unit}
	if known {
		code = fhir.CodeableConcept{
			Coding: []fhir.Coding{{System: fhir.SystemLOINC, Code: vt.LOINC, Display: vt.Display}},
			Text:   vt.Display,
		}
		if qty.Unit == "" {
			qty.Unit = vt.UCUM
		}
		qty.System = fhir.SystemUCUM
		qty.Code = vt.UCUM
	}

	return fhir.Object{
		"resourceType": fhir.KindObservation,
		"id":           v.ID.String(),
		"status":       "final",
		"category": []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{System: fhir.SystemObservationCat, Code: "vital-signs", Display: "Vital Signs"}},
		}},
		"code":              code,
		"subject":           fhir.Reference{Reference: fhir.FormatReference(fhir.KindPatient, v.ParticipantID.String())},
		"effectiveDateTime": fhir.FormatDateTime(v.RecordedAt),
		"valueQuantity":     qty,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
