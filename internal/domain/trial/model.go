// Package trial holds the portal's study records (participants, studies,
// enrollments, questionnaires, vital signs, adverse events), maps them to FHIR
// resources and renders study exports.
package trial

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

// Participant maps to the participants table.
type Participant struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	SubjectID *string    `db:"subject_id" json:"subject_id,omitempty"`
	FirstName string     `db:"first_name" json:"first_name"`
	LastName  string     `db:"last_name" json:"last_name"`
	Email     *string    `db:"email" json:"email,omitempty"`
	Phone     *string    `db:"phone" json:"phone,omitempty"`
	Gender    *string    `db:"gender" json:"gender,omitempty"`
	BirthDate *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Status    string     `db:"status" json:"status"`
	Address   *string    `db:"address" json:"address,omitempty"`
	City      *string    `db:"city" json:"city,omitempty"`
	State     *string    `db:"state" json:"state,omitempty"`
	ZipCode   *string    `db:"zip_code" json:"zip_code,omitempty"`
	Country   *string    `db:"country" json:"country,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// DisplaySubjectID is the subject code shown in exports, falling back to the
// record id.
func (p *Participant) DisplaySubjectID() string {
	if p.SubjectID != nil && *p.SubjectID != "" {
		return *p.SubjectID
	}
	return p.ID.String()
}

// Study maps to the studies table.
type Study struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Protocol    string     `db:"protocol" json:"protocol"`
	Title       string     `db:"title" json:"title"`
	Description *string    `db:"description" json:"description,omitempty"`
	Status      string     `db:"status" json:"status"`
	Phase       *string    `db:"phase" json:"phase,omitempty"`
	Sponsor     *string    `db:"sponsor" json:"sponsor,omitempty"`
	StartDate   *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate     *time.Time `db:"end_date" json:"end_date,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Enrollment links a participant to a study (study_participants table).
type Enrollment struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	ParticipantID   uuid.UUID  `db:"participant_id" json:"participant_id"`
	StudyID         uuid.UUID  `db:"study_id" json:"study_id"`
	Status          string     `db:"status" json:"status"`
	EnrolledAt      *time.Time `db:"enrolled_at" json:"enrolled_at,omitempty"`
	StatusChangedAt *time.Time `db:"status_changed_at" json:"status_changed_at,omitempty"`
}

// QuestionnaireResponse is a submitted questionnaire; Answers is the raw
// jsonb answer object keyed by question id.
type QuestionnaireResponse struct {
	ID              uuid.UUID              `db:"id" json:"id"`
	ParticipantID   uuid.UUID              `db:"participant_id" json:"participant_id"`
	StudyID         uuid.UUID              `db:"study_id" json:"study_id"`
	QuestionnaireID string                 `db:"questionnaire_id" json:"questionnaire_id"`
	Status          string                 `db:"status" json:"status"`
	Answers         map[string]interface{} `db:"answers" json:"answers"`
	SubmittedAt     *time.Time             `db:"submitted_at" json:"submitted_at,omitempty"`
}

// VitalSign is one measurement recorded by a participant or site staff.
type VitalSign struct {
	ID            uuid.UUID `db:"id" json:"id"`
	ParticipantID uuid.UUID `db:"participant_id" json:"participant_id"`
	StudyID       uuid.UUID `db:"study_id" json:"study_id"`
	Type          string    `db:"type" json:"type"`
	Value         float64   `db:"value" json:"value"`
	Unit          string    `db:"unit" json:"unit"`
	RecordedAt    time.Time `db:"recorded_at" json:"recorded_at"`
}

type AdverseEvent struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	ParticipantID uuid.UUID  `db:"participant_id" json:"participant_id"`
	StudyID       uuid.UUID  `db:"study_id" json:"study_id"`
	Term          string     `db:"term" json:"term"`
	Severity      string     `db:"severity" json:"severity"`
	Serious       bool       `db:"serious" json:"serious"`
	OnsetAt       *time.Time `db:"onset_at" json:"onset_at,omitempty"`
	Description   *string    `db:"description" json:"description,omitempty"`
}

// VitalType describes how a vital sign type is coded.
type VitalType struct {
	LOINC    string
	Display  string
	UCUM     string
	SDTMCode string
	Label    string
}

// VitalTypes is keyed by the portal's vital sign type.
var VitalTypes = map[string]VitalType{
	"heart_rate":        {LOINC: "8867-4", Display: "Heart rate", UCUM: "/min", SDTMCode: "HR", Label: "Frecuencia cardiaca"},
	"systolic_bp":       {LOINC: "8480-6", Display: "Systolic blood pressure", UCUM: "mm[Hg]", SDTMCode: "SYSBP", Label: "Presión sistólica"},
	"diastolic_bp":      {LOINC: "8462-4", Display: "Diastolic blood pressure", UCUM: "mm[Hg]", SDTMCode: "DIABP", Label: "Presión diastólica"},
	"temperature":       {LOINC: "8310-5", Display: "Body temperature", UCUM: "Cel", SDTMCode: "TEMP", Label: "Temperatura"},
	"weight":            {LOINC: "29463-7", Display: "Body weight", UCUM: "kg", SDTMCode: "WEIGHT", Label: "Peso"},
	"height":            {LOINC: "8302-2", Display: "Body height", UCUM: "cm", SDTMCode: "HEIGHT", Label: "Altura"},
	"respiratory_rate":  {LOINC: "9279-1", Display: "Respiratory rate", UCUM: "/min", SDTMCode: "RESP", Label: "Frecuencia respiratoria"},
	"oxygen_saturation": {LOINC: "2708-6", Display: "Oxygen saturation in Arterial blood", UCUM: "%", SDTMCode: "OXYSAT", Label: "Saturación de oxígeno"},
}
