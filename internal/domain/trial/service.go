package trial

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/trialportal/portal/internal/platform/blobstore"
	"github.com/trialportal/portal/internal/platform/db"
	"github.com/trialportal/portal/internal/platform/export"
	"github.com/trialportal/portal/internal/platform/fhir"
	"github.com/trialportal/portal/internal/platform/telemetry"
)

// Export formats.
const (
	FormatXLSX = "xlsx"
	FormatSDTM = "sdtm"
	FormatFHIR = "fhir"
)

const contentTypeFHIRJSON = "application/fhir+json"

var ErrUnsupportedFormat = errors.New("unsupported export format")

var archiveCategory = map[string]string{
	FormatXLSX: blobstore.CategoryWorkbook,
	FormatSDTM: blobstore.CategorySDTM,
	FormatFHIR: blobstore.CategoryFHIR,
}

// ExportFile is a generated download.
type ExportFile struct {
	FileName    string
	ContentType string
	Data        []byte
	Warnings    []string
}

type Service struct {
	repos     Repositories
	mapper    *Mapper
	validator *fhir.Validator
	archive   blobstore.BlobStore
	metrics   *telemetry.Collector
	tx        db.TxRunner
	now       func() time.Time
	newID     func() string
}

func NewService(repos Repositories, validator *fhir.Validator) *Service {
	if validator == nil {
		validator = fhir.NewValidator()
	}
	return &Service{
		repos:     repos,
		mapper:    NewMapper(),
		validator: validator,
		tx:        db.NoTx,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// SetArchive stores every generated export in store.
func (s *Service) SetArchive(store blobstore.BlobStore) { s.archive = store }

func (s *Service) SetMetrics(m *telemetry.Collector) { s.metrics = m }

// SetTxRunner makes multi-table reads run inside run, typically a read-only
// snapshot.
func (s *Service) SetTxRunner(run db.TxRunner) { s.tx = run }

// studyData is everything one study export reads.
type studyData struct {
	study          *Study
	participants   map[uuid.UUID]*Participant
	enrollments    []*Enrollment
	questionnaires []*QuestionnaireResponse
	vitals         []*VitalSign
	adverseEvents  []*AdverseEvent
}

func (s *Service) loadStudy(ctx context.Context, studyID uuid.UUID) (*studyData, error) {
	d := &studyData{participants: make(map[uuid.UUID]*Participant)}
	err := s.tx(ctx, func(ctx context.Context) error {
		var err error
		if d.study, err = s.repos.Studies.GetByID(ctx, studyID); err != nil {
			return err
		}
		participants, err := s.repos.Participants.ListByStudy(ctx, studyID)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}
		for _, p := range participants {
			d.participants[p.ID] = p
		}
		if d.enrollments, err = s.repos.Enrollments.ListByStudy(ctx, studyID); err != nil {
			return fmt.Errorf("list enrollments: %w", err)
		}
		if d.questionnaires, err = s.repos.Questionnaires.ListByStudy(ctx, studyID); err != nil {
			return fmt.Errorf("list questionnaire responses: %w", err)
		}
		if d.vitals, err = s.repos.Vitals.ListByStudy(ctx, studyID); err != nil {
			return fmt.Errorf("list vital signs: %w", err)
		}
		if d.adverseEvents, err = s.repos.AdverseEvents.ListByStudy(ctx, studyID); err != nil {
			return fmt.Errorf("list adverse events: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// subjectID returns the display subject code of a participant id.
func (d *studyData) subjectID(id uuid.UUID) string {
	if p, ok := d.participants[id]; ok {
		return p.DisplaySubjectID()
	}
	return id.String()
}

// validate normalizes obj and runs the validator over it.
func (s *Service) validate(obj fhir.Object) (fhir.Object, *fhir.ValidationResult, error) {
	norm, err := fhir.Normalize(obj)
	if err != nil {
		return nil, nil, err
	}
	result := s.validator.Validate(norm)
	s.metrics.ObserveValidation(result.ResourceType, result.Valid)
	return norm, result, nil
}

// PatientResource maps one participant and validates the result.
func (s *Service) PatientResource(ctx context.Context, participantID uuid.UUID) (fhir.Object, *fhir.ValidationResult, error) {
	p, err := s.repos.Participants.GetByID(ctx, participantID)
	if err != nil {
		return nil, nil, err
	}
	return s.validate(s.mapper.Patient(p))
}

// StudyResource maps one study and validates the result.
func (s *Service) StudyResource(ctx context.Context, studyID uuid.UUID) (fhir.Object, *fhir.ValidationResult, []string, error) {
	st, err := s.repos.Studies.GetByID(ctx, studyID)
	if err != nil {
		return nil, nil, nil, err
	}
	obj, warnings := s.mapper.ResearchStudy(st)
	norm, result, err := s.validate(obj)
	if err != nil {
		return nil, nil, nil, err
	}
	return norm, result, warnings, nil
}

// StudyBundle builds a collection Bundle of the study, its patients and
// subjects, questionnaire responses and vital sign observations. Mapping
// warnings and validation failures come back as warnings; invalid resources
// are still included.
func (s *Service) StudyBundle(ctx context.Context, studyID uuid.UUID) (*fhir.Bundle, []string, error) {
	d, err := s.loadStudy(ctx, studyID)
	if err != nil {
		return nil, nil, err
	}
	return s.bundleOf(d)
}

func (s *Service) bundleOf(d *studyData) (*fhir.Bundle, []string, error) {
	var warnings []string
	var resources []fhir.Object

	add := func(obj fhir.Object, mapWarnings []string) error {
		norm, result, err := s.validate(obj)
		if err != nil {
			return err
		}
		ref := fhir.FormatReference(fhir.KindOf(norm), fhir.IDOf(norm))
		for _, w := range mapWarnings {
			warnings = append(warnings, ref+": "+w)
		}
		for _, e := range result.Errors {
			warnings = append(warnings, ref+": "+e)
		}
		resources = append(resources, norm)
		return nil
	}

	studyObj, studyWarnings := s.mapper.ResearchStudy(d.study)
	if err := add(studyObj, studyWarnings); err != nil {
		return nil, nil, err
	}
	for _, e := range d.enrollments {
		if p, ok := d.participants[e.ParticipantID]; ok {
			if err := add(s.mapper.Patient(p), nil); err != nil {
				return nil, nil, err
			}
		}
		subj, subjWarnings := s.mapper.ResearchSubject(e)
		if err := add(subj, subjWarnings); err != nil {
			return nil, nil, err
		}
	}
	for _, q := range d.questionnaires {
		if err := add(s.mapper.QuestionnaireResponse(q), nil); err != nil {
			return nil, nil, err
		}
	}
	for _, v := range d.vitals {
		if err := add(s.mapper.Observation(v), nil); err != nil {
			return nil, nil, err
		}
	}

	return fhir.NewCollectionBundle(s.newID(), resources, s.now()), warnings, nil
}

// Export renders the study in format and archives the file when an archive
// is configured. Archive failures are logged, not returned.
func (s *Service) Export(ctx context.Context, studyID uuid.UUID, format, requestedBy string) (*ExportFile, error) {
	var (
		file *ExportFile
		err  error
	)
	switch format {
	case FormatXLSX:
		file, err = s.ExportWorkbook(ctx, studyID)
	case FormatSDTM:
		file, err = s.ExportSDTM(ctx, studyID)
	case FormatFHIR:
		file, err = s.ExportFHIR(ctx, studyID)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveExport(format)
	s.archiveFile(ctx, studyID, format, requestedBy, file)
	return file, nil
}

func (s *Service) archiveFile(ctx context.Context, studyID uuid.UUID, format, requestedBy string, file *ExportFile) {
	if s.archive == nil {
		return
	}
	meta, err := s.archive.Upload(ctx, blobstore.BlobMetadata{
		FileName:    file.FileName,
		ContentType: file.ContentType,
		Owner:       studyID.String(),
		Category:    archiveCategory[format],
		CreatedBy:   requestedBy,
	}, bytes.NewReader(file.Data))
	logger := zerolog.Ctx(ctx)
	if err != nil {
		logger.Warn().Err(err).Str("study_id", studyID.String()).Str("format", format).Msg("export archive failed")
		return
	}
	logger.Info().Str("key", meta.Key).Int64("size", meta.Size).Msg("export archived")
}

// ExportFHIR renders the study bundle as JSON.
func (s *Service) ExportFHIR(ctx context.Context, studyID uuid.UUID) (*ExportFile, error) {
	d, err := s.loadStudy(ctx, studyID)
	if err != nil {
		return nil, err
	}
	bundle, warnings, err := s.bundleOf(d)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode bundle: %w", err)
	}
	return &ExportFile{
		FileName:    fmt.Sprintf("fhir_%s_%s.json", d.study.Protocol, s.now().Format("2006-01-02")),
		ContentType: contentTypeFHIRJSON,
		Data:        data,
		Warnings:    warnings,
	}, nil
}

// ExportWorkbook renders the study workbook with the sheets Estudio,
// Participantes, Cuestionarios and Signos vitales.
func (s *Service) ExportWorkbook(ctx context.Context, studyID uuid.UUID) (*ExportFile, error) {
	d, err := s.loadStudy(ctx, studyID)
	if err != nil {
		return nil, err
	}
	data, err := export.BuildWorkbook(workbookSheets(d))
	if err != nil {
		return nil, err
	}
	return &ExportFile{
		FileName:    export.FileName("estudio_"+d.study.Protocol, s.now()),
		ContentType: export.ContentTypeXLSX,
		Data:        data,
	}, nil
}

// ExportSDTM renders the CDISC SDTM workbook (DM, DS, QS, VS, AE).
func (s *Service) ExportSDTM(ctx context.Context, studyID uuid.UUID) (*ExportFile, error) {
	d, err := s.loadStudy(ctx, studyID)
	if err != nil {
		return nil, err
	}
	data, err := export.BuildWorkbook(export.SDTMSheets(sdtmInput(d)))
	if err != nil {
		return nil, err
	}
	return &ExportFile{
		FileName:    export.FileName("sdtm_"+d.study.Protocol, s.now()),
		ContentType: export.ContentTypeXLSX,
		Data:        data,
	}, nil
}
