package trial

import (
	"time"

	"github.com/trialportal/portal/internal/platform/export"
)

var (
	studyHeaders         = []string{"Protocolo", "Título", "Estado", "Fase", "Patrocinador", "Fecha inicio", "Fecha fin", "Descripción"}
	participantHeaders   = []string{"ID sujeto", "Nombre", "Apellido", "Email", "Género", "Fecha nacimiento", "Estado", "Fecha inscripción", "Ciudad", "País"}
	questionnaireHeaders = []string{"ID sujeto", "Cuestionario", "Estado", "Fecha envío", "Respuestas"}
	vitalHeaders         = []string{"ID sujeto", "Tipo", "Valor", "Unidad", "Fecha"}
)

const exportDate = "2006-01-02"

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(exportDate)
}

// workbookSheets builds the investigator workbook. Participants follow
// enrollment order.
func workbookSheets(d *studyData) []export.Sheet {
	st := d.study
	study := export.Sheet{Name: "Estudio", Headers: studyHeaders, Rows: []map[string]interface{}{{
		"Protocolo":    st.Protocol,
		"Título":       st.Title,
		"Estado":       st.Status,
		"Fase":         st.Phase,
		"Patrocinador": st.Sponsor,
		"Fecha inicio": formatDate(st.StartDate),
		"Fecha fin":    formatDate(st.EndDate),
		"Descripción":  st.Description,
	}}}

	participants := export.Sheet{Name: "Participantes", Headers: participantHeaders}
	for _, e := range d.enrollments {
		p, ok := d.participants[e.ParticipantID]
		if !ok {
			continue
		}
		participants.Rows = append(participants.Rows, map[string]interface{}{
			"ID sujeto":         p.DisplaySubjectID(),
			"Nombre":            p.FirstName,
			"Apellido":          p.LastName,
			"Email":             p.Email,
			"Género":            p.Gender,
			"Fecha nacimiento":  formatDate(p.BirthDate),
			"Estado":            e.Status,
			"Fecha inscripción": formatDate(e.EnrolledAt),
			"Ciudad":            p.City,
			"País":              p.Country,
		})
	}

	questionnaires := export.Sheet{Name: "Cuestionarios", Headers: questionnaireHeaders}
	for _, q := range d.questionnaires {
		var answers interface{}
		if len(q.Answers) > 0 {
			answers = q.Answers
		}
		questionnaires.Rows = append(questionnaires.Rows, map[string]interface{}{
			"ID sujeto":    d.subjectID(q.ParticipantID),
			"Cuestionario": q.QuestionnaireID,
			"Estado":       q.Status,
			"Fecha envío":  q.SubmittedAt,
			"Respuestas":   answers,
		})
	}

	vitals := export.Sheet{Name: "Signos vitales", Headers: vitalHeaders}
	for _, v := range d.vitals {
		label := v.Type
		if vt, ok := VitalTypes[v.Type]; ok {
			label = vt.Label
		}
		vitals.Rows = append(vitals.Rows, map[string]interface{}{
			"ID sujeto": d.subjectID(v.ParticipantID),
			"Tipo":      label,
			"Valor":     v.Value,
			"Unidad":    v.Unit,
			"Fecha":     v.RecordedAt,
		})
	}

	return []export.Sheet{study, participants, questionnaires, vitals}
}

// sdtmInput reshapes the study for the SDTM builders. STUDYID is the
// protocol code.
func sdtmInput(d *studyData) export.SDTMInput {
	in := export.SDTMInput{StudyID: d.study.Protocol}
	for _, e := range d.enrollments {
		p, ok := d.participants[e.ParticipantID]
		if !ok {
			continue
		}
		in.Subjects = append(in.Subjects, export.SDTMSubject{
			SubjectID:  p.DisplaySubjectID(),
			BirthDate:  p.BirthDate,
			Gender:     deref(p.Gender),
			Country:    deref(p.Country),
			EnrolledAt: e.EnrolledAt,
			Status:     e.Status,
			StatusAt:   e.StatusChangedAt,
		})
	}
	for _, q := range d.questionnaires {
		in.Questionnaires = append(in.Questionnaires, export.SDTMQuestionnaire{
			SubjectID:   d.subjectID(q.ParticipantID),
			Answers:     q.Answers,
			SubmittedAt: q.SubmittedAt,
		})
	}
	for _, v := range d.vitals {
		code := export.TestCode(v.Type)
		unit := v.Unit
		if vt, ok := VitalTypes[v.Type]; ok {
			code = vt.SDTMCode
			if unit == "" {
				unit = vt.UCUM
			}
		}
		in.Vitals = append(in.Vitals, export.SDTMVital{
			SubjectID:  d.subjectID(v.ParticipantID),
			TestCode:   code,
			Value:      v.Value,
			Unit:       unit,
			RecordedAt: v.RecordedAt,
		})
	}
	for _, ae := range d.adverseEvents {
		in.AdverseEvents = append(in.AdverseEvents, export.SDTMAdverseEvent{
			SubjectID: d.subjectID(ae.ParticipantID),
			Term:      ae.Term,
			Severity:  ae.Severity,
			Serious:   ae.Serious,
			OnsetAt:   ae.OnsetAt,
		})
	}
	return in
}
