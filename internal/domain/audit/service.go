package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/trialportal/portal/internal/platform/blobstore"
	"github.com/trialportal/portal/internal/platform/export"
	"github.com/trialportal/portal/internal/platform/middleware"
	"github.com/trialportal/portal/internal/platform/telemetry"
	"github.com/trialportal/portal/pkg/pagination"
)

// csvBatch is the page size used while streaming the CSV export.
const csvBatch = 500

// csvTime is the Fecha column layout.
const csvTime = "2006-01-02 15:04:05"

var ErrMissingActivity = errors.New("audit entry needs an activity")

type Service struct {
	repo    Repository
	metrics *telemetry.Collector
	archive blobstore.BlobStore
	now     func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) SetMetrics(m *telemetry.Collector) { s.metrics = m }

// SetArchive stores every CSV download in store.
func (s *Service) SetArchive(store blobstore.BlobStore) { s.archive = store }

// Record stores e, filling in its id and timestamp when unset.
func (s *Service) Record(ctx context.Context, e *Entry) error {
	if e.Activity == "" {
		return ErrMissingActivity
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return err
	}
	s.metrics.ObserveAuditEntry()
	return nil
}

// RecordAccess stores one request seen by the access middleware.
func (s *Service) RecordAccess(ctx context.Context, a middleware.AuditEntry) error {
	e := &Entry{
		UserID:    a.UserID,
		UserName:  a.UserName,
		Activity:  a.Activity(),
		Details:   fmt.Sprintf("%s %s -> %d", a.Method, a.Path, a.StatusCode),
		IPAddress: a.IPAddress,
		CreatedAt: a.Timestamp,
	}
	if id, err := uuid.Parse(a.ParticipantID); err == nil {
		e.ParticipantID = &id
	}
	return s.Record(ctx, e)
}

// Search returns one page of entries matching f, newest first.
func (s *Service) Search(ctx context.Context, f Filter, page pagination.Params) (*pagination.Page[*Entry], error) {
	entries, total, err := s.repo.Search(ctx, f, page)
	if err != nil {
		return nil, err
	}
	return pagination.NewPage(entries, total, page), nil
}

// WriteCSV streams every entry matching f to w as the quoted audit CSV and
// returns the number of data rows.
func (s *Service) WriteCSV(ctx context.Context, f Filter, w io.Writer) (int, error) {
	cw, err := export.NewQuotedCSVWriter(w, export.AuditHeaders)
	if err != nil {
		return 0, err
	}
	written := 0
	page := pagination.Params{Limit: csvBatch}
	for {
		entries, total, err := s.repo.Search(ctx, f, page)
		if err != nil {
			return written, err
		}
		for _, e := range entries {
			if err := cw.Write([]string{
				e.CreatedAt.UTC().Format(csvTime),
				e.Activity,
				e.Actor(),
				e.Details,
				e.IPAddress,
			}); err != nil {
				return written, err
			}
			written++
		}
		if len(entries) == 0 || !page.HasNext(total) {
			break
		}
		page = page.Next()
	}
	return written, cw.Flush()
}

// CSVFile is a rendered audit download.
type CSVFile struct {
	FileName string
	Data     []byte
	Rows     int
}

// ExportCSV renders the audit trail of one participant, narrowed by f, and
// archives it when an archive is configured.
func (s *Service) ExportCSV(ctx context.Context, participantID uuid.UUID, f Filter, requestedBy string) (*CSVFile, error) {
	f.ParticipantID = &participantID
	var buf bytes.Buffer
	rows, err := s.WriteCSV(ctx, f, &buf)
	if err != nil {
		return nil, err
	}
	file := &CSVFile{
		FileName: export.AuditFileName(participantID.String(), s.now()),
		Data:     buf.Bytes(),
		Rows:     rows,
	}
	if s.archive != nil {
		_, err := s.archive.Upload(ctx, blobstore.BlobMetadata{
			FileName:    file.FileName,
			ContentType: export.ContentTypeCSV,
			Owner:       participantID.String(),
			Category:    blobstore.CategoryAuditCSV,
			CreatedBy:   requestedBy,
		}, bytes.NewReader(file.Data))
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("participant_id", participantID.String()).Msg("audit csv archive failed")
		}
	}
	return file, nil
}
