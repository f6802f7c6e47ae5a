package trial

import (
	"context"

	"github.com/google/uuid"
)

type ParticipantRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Participant, error)
	ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*Participant, error)
}

type StudyRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Study, error)
}

type EnrollmentRepository interface {
	ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*Enrollment, error)
}

type QuestionnaireRepository interface {
	ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*QuestionnaireResponse, error)
}

type VitalSignRepository interface {
	ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*VitalSign, error)
}

type AdverseEventRepository interface {
	ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*AdverseEvent, error)
}

// Repositories groups the stores the Service reads from.
type Repositories struct {
	Participants   ParticipantRepository
	Studies        StudyRepository
	Enrollments    EnrollmentRepository
	Questionnaires QuestionnaireRepository
	Vitals         VitalSignRepository
	AdverseEvents  AdverseEventRepository
}
