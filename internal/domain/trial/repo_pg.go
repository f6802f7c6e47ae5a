package trial

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trialportal/portal/internal/platform/db"
)

// NewRepositoriesPG returns pgx-backed repositories sharing pool. Queries run
// on the transaction in the context when there is one.
func NewRepositoriesPG(pool *pgxpool.Pool) Repositories {
	base := pgBase{pool: pool}
	return Repositories{
		Participants:   &participantRepoPG{base},
		Studies:        &studyRepoPG{base},
		Enrollments:    &enrollmentRepoPG{base},
		Questionnaires: &questionnaireRepoPG{base},
		Vitals:         &vitalRepoPG{base},
		AdverseEvents:  &adverseEventRepoPG{base},
	}
}

type pgBase struct{ pool *pgxpool.Pool }

func (b pgBase) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return b.pool
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// collect scans every row with scan and closes rows.
func collect[T any](rows pgx.Rows, err error, scan func(pgx.Row) (*T, error)) ([]*T, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// =========== Participants ===========

type participantRepoPG struct{ pgBase }

const participantCols = `p.id, p.subject_id, p.first_name, p.last_name, p.email, p.phone, p.gender,
	p.birth_date, p.status, p.address, p.city, p.state, p.zip_code, p.country, p.created_at, p.updated_at`

func scanParticipant(row pgx.Row) (*Participant, error) {
	var p Participant
	err := row.Scan(&p.ID, &p.SubjectID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.Gender,
		&p.BirthDate, &p.Status, &p.Address, &p.City, &p.State, &p.ZipCode, &p.Country, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *participantRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Participant, error) {
	p, err := scanParticipant(r.conn(ctx).QueryRow(ctx,
		`SELECT `+participantCols+` FROM participants p WHERE p.id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (r *participantRepoPG) ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*Participant, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+participantCols+`
		FROM participants p
		JOIN study_participants sp ON sp.participant_id = p.id
		WHERE sp.study_id = $1
		ORDER BY sp.enrolled_at NULLS LAST, p.created_at`, studyID)
	return collect(rows, err, scanParticipant)
}

// =========== Studies ===========

type studyRepoPG struct{ pgBase }

func (r *studyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Study, error) {
	var s Study
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, protocol, title, description, status, phase, sponsor, start_date, end_date, created_at, updated_at
		FROM studies WHERE id = $1`, id).
		Scan(&s.ID, &s.Protocol, &s.Title, &s.Description, &s.Status, &s.Phase, &s.Sponsor,
			&s.StartDate, &s.EndDate, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// =========== Enrollments ===========

type enrollmentRepoPG struct{ pgBase }

func (r *enrollmentRepoPG) ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*Enrollment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, participant_id, study_id, status, enrolled_at, status_changed_at
		FROM study_participants WHERE study_id = $1
		ORDER BY enrolled_at NULLS LAST, id`, studyID)
	return collect(rows, err, func(row pgx.Row) (*Enrollment, error) {
		var e Enrollment
		err := row.Scan(&e.ID, &e.ParticipantID, &e.StudyID, &e.Status, &e.EnrolledAt, &e.StatusChangedAt)
		return &e, err
	})
}

// =========== Questionnaire responses ===========

type questionnaireRepoPG struct{ pgBase }

func (r *questionnaireRepoPG) ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*QuestionnaireResponse, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, participant_id, study_id, questionnaire_id, status, answers, submitted_at
		FROM questionnaire_responses WHERE study_id = $1
		ORDER BY submitted_at NULLS LAST, id`, studyID)
	return collect(rows, err, func(row pgx.Row) (*QuestionnaireResponse, error) {
		var q QuestionnaireResponse
		err := row.Scan(&q.ID, &q.ParticipantID, &q.StudyID, &q.QuestionnaireID, &q.Status, &q.Answers, &q.SubmittedAt)
		return &q, err
	})
}

// =========== Vital signs ===========

type vitalRepoPG struct{ pgBase }

func (r *vitalRepoPG) ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*VitalSign, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, participant_id, study_id, type, value, unit, recorded_at
		FROM vital_signs WHERE study_id = $1
		ORDER BY recorded_at, id`, studyID)
	return collect(rows, err, func(row pgx.Row) (*VitalSign, error) {
		var v VitalSign
		err := row.Scan(&v.ID, &v.ParticipantID, &v.StudyID, &v.Type, &v.Value, &v.Unit, &v.RecordedAt)
		return &v, err
	})
}

// =========== Adverse events ===========

type adverseEventRepoPG struct{ pgBase }

func (r *adverseEventRepoPG) ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*AdverseEvent, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, participant_id, study_id, term, severity, serious, onset_at, description
		FROM adverse_events WHERE study_id = $1
		ORDER BY onset_at NULLS LAST, id`, studyID)
	return collect(rows, err, func(row pgx.Row) (*AdverseEvent, error) {
		var ae AdverseEvent
		err := row.Scan(&ae.ID, &ae.ParticipantID, &ae.StudyID, &ae.Term, &ae.Severity, &ae.Serious, &ae.OnsetAt, &ae.Description)
		return &ae, err
	})
}
