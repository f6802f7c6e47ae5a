package export

import (
	"sort"
	"strings"
	"time"
)

// SDTM date formats (ISO 8601).
const (
	sdtmDate     = "2006-01-02"
	sdtmDateTime = "2006-01-02T15:04:05"
)

// SDTMSubject is one enrolled participant as the DM and DS domains see it.
type SDTMSubject struct {
	SubjectID  string
	BirthDate  *time.Time
	Gender     string
	Country    string
	EnrolledAt *time.Time
	Status     string
	StatusAt   *time.Time
}

// SDTMQuestionnaire is one submitted questionnaire.
type SDTMQuestionnaire struct {
	SubjectID   string
	Answers     map[string]interface{}
	SubmittedAt *time.Time
}

// SDTMVital is one vital-sign measurement with its SDTM test code.
type SDTMVital struct {
	SubjectID  string
	TestCode   string
	Value      float64
	Unit       string
	RecordedAt time.Time
}

// SDTMAdverseEvent is one reported adverse event.
type SDTMAdverseEvent struct {
	SubjectID string
	Term      string
	Severity  string
	Serious   bool
	OnsetAt   *time.Time
}

// SDTMInput is everything the SDTM export of one study needs.
type SDTMInput struct {
	StudyID        string
	Subjects       []SDTMSubject
	Questionnaires []SDTMQuestionnaire
	Vitals         []SDTMVital
	AdverseEvents  []SDTMAdverseEvent
}

var (
	dmHeaders = []string{"STUDYID", "DOMAIN", "USUBJID", "SUBJID", "RFSTDTC", "BRTHDTC", "SEX", "COUNTRY"}
	dsHeaders = []string{"STUDYID", "DOMAIN", "USUBJID", "DSSEQ", "DSTERM", "DSDECOD", "DSSTDTC"}
	qsHeaders = []string{"STUDYID", "DOMAIN", "USUBJID", "QSSEQ", "QSTESTCD", "QSORRES", "QSDTC"}
	vsHeaders = []string{"STUDYID", "DOMAIN", "USUBJID", "VSSEQ", "VSTESTCD", "VSORRES", "VSORRESU", "VSDTC"}
	aeHeaders = []string{"STUDYID", "DOMAIN", "USUBJID", "AESEQ", "AETERM", "AESEV", "AESER", "AESTDTC"}
)

// sdtmSex maps administrative gender to the SDTM SEX codelist.
var sdtmSex = map[string]string{
	"male":   "M",
	"female": "F",
}

// dispositionDecode maps enrollment statuses to DSDECOD terms.
var dispositionDecode = map[string]string{
	"screening":     "INFORMED CONSENT OBTAINED",
	"active":        "ENROLLED",
	"completed":     "COMPLETED",
	"withdrawn":     "WITHDRAWAL BY SUBJECT",
	"screen_failed": "SCREEN FAILURE",
	"lost":          "LOST TO FOLLOW-UP",
}

// USUBJID builds the unique subject identifier "{study}-{subject}".
func USUBJID(studyID, subjectID string) string {
	return studyID + "-" + subjectID
}

// SDTMSex returns M, F or U.
func SDTMSex(gender string) string {
	if s, ok := sdtmSex[strings.ToLower(gender)]; ok {
		return s
	}
	return "U"
}

// SDTMSheets builds the DM, DS, QS, VS and AE domains in that order.
func SDTMSheets(in SDTMInput) []Sheet {
	return []Sheet{
		DMSheet(in),
		DSSheet(in),
		QSSheet(in),
		VSSheet(in),
		AESheet(in),
	}
}

// DMSheet builds the demographics domain, one row per subject.
func DMSheet(in SDTMInput) Sheet {
	s := Sheet{Name: "DM", Headers: dmHeaders}
	for _, sub := range in.Subjects {
		s.Rows = append(s.Rows, map[string]interface{}{
			"STUDYID": in.StudyID,
			"DOMAIN":  "DM",
			"USUBJID": USUBJID(in.StudyID, sub.SubjectID),
			"SUBJID":  sub.SubjectID,
			"RFSTDTC": formatDTC(sub.EnrolledAt, sdtmDate),
			"BRTHDTC": formatDTC(sub.BirthDate, sdtmDate),
			"SEX":     SDTMSex(sub.Gender),
			"COUNTRY": strings.ToUpper(sub.Country),
		})
	}
	return s
}

// DSSheet builds the disposition domain, one row per subject.
func DSSheet(in SDTMInput) Sheet {
	s := Sheet{Name: "DS", Headers: dsHeaders}
	seq := newSequencer()
	for _, sub := range in.Subjects {
		decod, ok := dispositionDecode[sub.Status]
		if !ok {
			decod = strings.ToUpper(sub.Status)
		}
		at := sub.StatusAt
		if at == nil {
			at = sub.EnrolledAt
		}
		s.Rows = append(s.Rows, map[string]interface{}{
			"STUDYID": in.StudyID,
			"DOMAIN":  "DS",
			"USUBJID": USUBJID(in.StudyID, sub.SubjectID),
			"DSSEQ":   seq.next(sub.SubjectID),
			"DSTERM":  sub.Status,
			"DSDECOD": decod,
			"DSSTDTC": formatDTC(at, sdtmDate),
		})
	}
	return s
}

// QSSheet builds the questionnaires domain, one row per answer. Answers are
// emitted in key order.
func QSSheet(in SDTMInput) Sheet {
	s := Sheet{Name: "QS", Headers: qsHeaders}
	seq := newSequencer()
	for _, q := range in.Questionnaires {
		keys := make([]string, 0, len(q.Answers))
		for k := range q.Answers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			s.Rows = append(s.Rows, map[string]interface{}{
				"STUDYID":  in.StudyID,
				"DOMAIN":   "QS",
				"USUBJID":  USUBJID(in.StudyID, q.SubjectID),
				"QSSEQ":    seq.next(q.SubjectID),
				"QSTESTCD": TestCode(k),
				"QSORRES":  CellString(q.Answers[k]),
				"QSDTC":    formatDTC(q.SubmittedAt, sdtmDateTime),
			})
		}
	}
	return s
}

// VSSheet builds the vital signs domain.
func VSSheet(in SDTMInput) Sheet {
	s := Sheet{Name: "VS", Headers: vsHeaders}
	seq := newSequencer()
	for _, v := range in.Vitals {
		recorded := v.RecordedAt
		s.Rows = append(s.Rows, map[string]interface{}{
			"STUDYID":  in.StudyID,
			"DOMAIN":   "VS",
			"USUBJID":  USUBJID(in.StudyID, v.SubjectID),
			"VSSEQ":    seq.next(v.SubjectID),
			"VSTESTCD": v.TestCode,
			"VSORRES":  v.Value,
			"VSORRESU": v.Unit,
			"VSDTC":    formatDTC(&recorded, sdtmDateTime),
		})
	}
	return s
}

// AESheet builds the adverse events domain.
func AESheet(in SDTMInput) Sheet {
	s := Sheet{Name: "AE", Headers: aeHeaders}
	seq := newSequencer()
	for _, ae := range in.AdverseEvents {
		serious := "N"
		if ae.Serious {
			serious = "Y"
		}
		s.Rows = append(s.Rows, map[string]interface{}{
			"STUDYID": in.StudyID,
			"DOMAIN":  "AE",
			"USUBJID": USUBJID(in.StudyID, ae.SubjectID),
			"AESEQ":   seq.next(ae.SubjectID),
			"AETERM":  ae.Term,
			"AESEV":   strings.ToUpper(ae.Severity),
			"AESER":   serious,
			"AESTDTC": formatDTC(ae.OnsetAt, sdtmDate),
		})
	}
	return s
}

// TestCode turns a free-form key into an SDTM test code: upper case,
// alphanumerics only, at most 8 characters.
func TestCode(key string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(key) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == 8 {
				break
			}
		}
	}
	return b.String()
}

func formatDTC(t *time.Time, layout string) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(layout)
}

// sequencer hands out per-subject sequence numbers starting at 1.
type sequencer map[string]int

func newSequencer() sequencer { return sequencer{} }

func (s sequencer) next(subject string) int {
	s[subject]++
	return s[subject]
}
