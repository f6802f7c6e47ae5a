package trial

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ── Mock Repositories ──

type mockParticipantRepo struct {
	data  map[uuid.UUID]*Participant
	order []uuid.UUID
}

func (m *mockParticipantRepo) GetByID(_ context.Context, id uuid.UUID) (*Participant, error) {
	if p, ok := m.data[id]; ok {
		return p, nil
	}
	return nil, ErrNotFound
}
func (m *mockParticipantRepo) ListByStudy(_ context.Context, _ uuid.UUID) ([]*Participant, error) {
	var out []*Participant
	for _, id := range m.order {
		out = append(out, m.data[id])
	}
	return out, nil
}

type mockStudyRepo struct {
	data map[uuid.UUID]*Study
}

func (m *mockStudyRepo) GetByID(_ context.Context, id uuid.UUID) (*Study, error) {
	if s, ok := m.data[id]; ok {
		return s, nil
	}
	return nil, ErrNotFound
}

type mockEnrollmentRepo struct{ items []*Enrollment }

func (m *mockEnrollmentRepo) ListByStudy(_ context.Context, studyID uuid.UUID) ([]*Enrollment, error) {
	var out []*Enrollment
	for _, e := range m.items {
		if e.StudyID == studyID {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockQuestionnaireRepo struct{ items []*QuestionnaireResponse }

func (m *mockQuestionnaireRepo) ListByStudy(_ context.Context, _ uuid.UUID) ([]*QuestionnaireResponse, error) {
	return m.items, nil
}

type mockVitalRepo struct {
	items []*VitalSign
	err   error
}

func (m *mockVitalRepo) ListByStudy(_ context.Context, _ uuid.UUID) ([]*VitalSign, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.items, nil
}

type mockAdverseEventRepo struct{ items []*AdverseEvent }

func (m *mockAdverseEventRepo) ListByStudy(_ context.Context, _ uuid.UUID) ([]*AdverseEvent, error) {
	return m.items, nil
}

// ── Fixture ──

var (
	fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	studyID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	p1ID    = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	p2ID    = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

type fixture struct {
	repos Repositories
	vital *mockVitalRepo
}

// newFixture builds one active study with two participants: S-001 is active
// and fully populated; the second has no subject code, an unknown enrollment
// status and an invalid gender.
func newFixture() *fixture {
	enrolled := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	submitted := time.Date(2024, 2, 1, 8, 30, 0, 0, time.UTC)

	participants := &mockParticipantRepo{
		data: map[uuid.UUID]*Participant{
			p1ID: {
				ID:        p1ID,
				SubjectID: strPtr("S-001"),
				FirstName: "Ana",
				LastName:  "García",
				Email:     strPtr("ana@example.org"),
				Gender:    strPtr("Female"),
				BirthDate: timePtr(time.Date(1985, 6, 1, 0, 0, 0, 0, time.UTC)),
				Status:    "active",
				Address:   strPtr("Calle Mayor 1"),
				City:      strPtr("Madrid"),
				ZipCode:   strPtr("28001"),
				Country:   strPtr("es"),
			},
			p2ID: {
				ID:        p2ID,
				FirstName: "Luis",
				LastName:  "Pérez",
				Gender:    strPtr("Desconocido"),
				Status:    "inactive",
			},
		},
		order: []uuid.UUID{p1ID, p2ID},
	}

	vitals := &mockVitalRepo{items: []*VitalSign{
		{ID: uuid.New(), ParticipantID: p1ID, StudyID: studyID, Type: "heart_rate", Value: 72, Unit: "lpm", RecordedAt: submitted},
		{ID: uuid.New(), ParticipantID: p1ID, StudyID: studyID, Type: "glucose", Value: 5.4, Unit: "mmol/L", RecordedAt: submitted},
	}}

	return &fixture{
		vital: vitals,
		repos: Repositories{
			Participants: participants,
			Studies: &mockStudyRepo{data: map[uuid.UUID]*Study{
				studyID: {
					ID:        studyID,
					Protocol:  "ONC-001",
					Title:     "Estudio de fatiga oncológica",
					Status:    "active",
					Sponsor:   strPtr("Fundación Salud"),
					StartDate: timePtr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
				},
			}},
			Enrollments: &mockEnrollmentRepo{items: []*Enrollment{
				{ID: uuid.New(), ParticipantID: p1ID, StudyID: studyID, Status: "active", EnrolledAt: &enrolled},
				{ID: uuid.New(), ParticipantID: p2ID, StudyID: studyID, Status: "lost_contact", EnrolledAt: &enrolled},
			}},
			Questionnaires: &mockQuestionnaireRepo{items: []*QuestionnaireResponse{
				{
					ID:              uuid.New(),
					ParticipantID:   p1ID,
					StudyID:         studyID,
					QuestionnaireID: "fatigue-v1",
					Status:          "completed",
					Answers:         map[string]interface{}{"pain": float64(7), "mood": "good"},
					SubmittedAt:     &submitted,
				},
			}},
			Vitals: vitals,
			AdverseEvents: &mockAdverseEventRepo{items: []*AdverseEvent{
				{ID: uuid.New(), ParticipantID: p1ID, StudyID: studyID, Term: "Headache", Severity: "mild", OnsetAt: &submitted},
			}},
		},
	}
}

func newTestService(f *fixture) *Service {
	svc := NewService(f.repos, nil)
	svc.now = func() time.Time { return fixedNow }
	svc.newID = func() string { return "bundle-1" }
	svc.mapper = NewMapperWithClock(func() time.Time { return fixedNow })
	return svc
}

var errDB = errors.New("connection reset")
