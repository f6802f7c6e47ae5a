package audit

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trialportal/portal/internal/platform/blobstore"
	"github.com/trialportal/portal/internal/platform/middleware"
	"github.com/trialportal/portal/internal/platform/telemetry"
	"github.com/trialportal/portal/pkg/pagination"
)

func TestService_Record(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(repo)
	svc.SetMetrics(telemetry.NewCollector("test", prometheus.NewRegistry()))

	e := &Entry{UserID: "inv-1", Activity: "read Patient"}
	if err := svc.Record(context.Background(), e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID == uuid.Nil {
		t.Error("expected id to be assigned")
	}
	if !e.CreatedAt.Equal(fixedNow) {
		t.Errorf("expected clock timestamp, got %v", e.CreatedAt)
	}
	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 stored entry, got %d", len(repo.entries))
	}

	if err := svc.Record(context.Background(), &Entry{UserID: "x"}); !errors.Is(err, ErrMissingActivity) {
		t.Errorf("expected ErrMissingActivity, got %v", err)
	}
}

func TestService_RecordRepoError(t *testing.T) {
	svc := newTestService(&mockRepo{err: errors.New("db down")})
	if err := svc.Record(context.Background(), &Entry{Activity: "read Patient"}); err == nil {
		t.Fatal("expected repo error")
	}
}

func TestService_RecordAccess(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(repo)

	at := fixedNow.Add(-time.Minute)
	err := svc.RecordAccess(context.Background(), middleware.AuditEntry{
		UserID:        "inv-1",
		UserName:      "Dra. Ruiz",
		ParticipantID: participantID.String(),
		Action:        "read",
		Resource:      "participants",
		Method:        "GET",
		Path:          "/api/v1/participants/" + participantID.String() + "/audit",
		IPAddress:     "10.0.0.1",
		StatusCode:    200,
		Timestamp:     at,
	})
	if err != nil {
		t.Fatal(err)
	}
	e := repo.entries[0]
	if e.Activity != "read participants" {
		t.Errorf("unexpected activity %q", e.Activity)
	}
	if e.ParticipantID == nil || *e.ParticipantID != participantID {
		t.Errorf("unexpected participant %v", e.ParticipantID)
	}
	if !strings.HasPrefix(e.Details, "GET /api/v1/participants/") || !strings.HasSuffix(e.Details, "-> 200") {
		t.Errorf("unexpected details %q", e.Details)
	}
	if !e.CreatedAt.Equal(at) {
		t.Errorf("expected request timestamp, got %v", e.CreatedAt)
	}

	if err := svc.RecordAccess(context.Background(), middleware.AuditEntry{Action: "read", Resource: "studies", ParticipantID: "p-123"}); err != nil {
		t.Fatal(err)
	}
	if repo.entries[1].ParticipantID != nil {
		t.Error("expected non-uuid participant to be dropped")
	}
}

func TestService_Search(t *testing.T) {
	svc := newTestService(seededRepo())

	page, err := svc.Search(context.Background(), Filter{ParticipantID: idPtr(participantID)}, pagination.Params{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 3 || len(page.Data) != 2 || !page.HasMore {
		t.Fatalf("unexpected page total=%d len=%d more=%v", page.Total, len(page.Data), page.HasMore)
	}
	if !page.Data[0].CreatedAt.After(page.Data[1].CreatedAt) {
		t.Error("expected newest first")
	}

	page, _ = svc.Search(context.Background(), Filter{ParticipantID: idPtr(participantID), UserID: "cro-1"}, pagination.Params{Limit: 10})
	if page.Total != 1 || page.Data[0].UserID != "cro-1" {
		t.Errorf("unexpected filtered page %+v", page)
	}
}

func TestFilter_Matches(t *testing.T) {
	since := fixedNow.Add(-2 * time.Hour)
	until := fixedNow.Add(-time.Hour)
	e := &Entry{ParticipantID: idPtr(participantID), UserID: "u", Activity: "read Patient", CreatedAt: since}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"participant", Filter{ParticipantID: idPtr(participantID)}, true},
		{"other participant", Filter{ParticipantID: idPtr(otherID)}, false},
		{"user", Filter{UserID: "v"}, false},
		{"activity", Filter{Activity: "read Patient"}, true},
		{"since inclusive", Filter{Since: &since}, true},
		{"until exclusive", Filter{Until: &since}, false},
		{"window", Filter{Since: &since, Until: &until}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(e); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
	if (Filter{ParticipantID: idPtr(participantID)}).Matches(&Entry{}) {
		t.Error("entry without participant must not match a participant filter")
	}
}

func TestService_WriteCSV(t *testing.T) {
	svc := newTestService(seededRepo())

	var buf bytes.Buffer
	n, err := svc.WriteCSV(context.Background(), Filter{ParticipantID: idPtr(participantID)}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}
	want := "Fecha,Actividad,Usuario,Detalles,IP\n" +
		`"2024-03-10 11:00:00","read participants","Dra. Ruiz","","10.0.0.1"` + "\n" +
		`"2024-03-10 10:00:00","read participants","cro-1","nota ""urgente"", revisar","10.0.0.2"` + "\n" +
		`"2024-03-10 09:00:00","read Patient","Dra. Ruiz","GET /fhir/Patient","10.0.0.1"` + "\n"
	if buf.String() != want {
		t.Errorf("csv mismatch\ngot:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestService_WriteCSVPagesThroughRepo(t *testing.T) {
	repo := &mockRepo{}
	for i := 0; i < csvBatch+5; i++ {
		repo.entries = append(repo.entries, &Entry{ID: uuid.New(), Activity: "read Patient", CreatedAt: fixedNow.Add(time.Duration(-i) * time.Second)})
	}
	svc := newTestService(repo)

	var buf bytes.Buffer
	n, err := svc.WriteCSV(context.Background(), Filter{}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != csvBatch+5 {
		t.Errorf("expected %d rows, got %d", csvBatch+5, n)
	}
	if repo.searches != 2 {
		t.Errorf("expected 2 repository pages, got %d", repo.searches)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != csvBatch+6 {
		t.Errorf("expected %d lines, got %d", csvBatch+6, lines)
	}
}

func TestService_WriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	n, err := newTestService(&mockRepo{}).WriteCSV(context.Background(), Filter{}, &buf)
	if err != nil || n != 0 {
		t.Fatalf("unexpected result %d %v", n, err)
	}
	if buf.String() != "Fecha,Actividad,Usuario,Detalles,IP\n" {
		t.Errorf("expected header only, got %q", buf.String())
	}
}

func TestService_ExportCSVArchives(t *testing.T) {
	svc := newTestService(seededRepo())
	store := blobstore.NewInMemoryBlobStore()
	svc.SetArchive(store)

	file, err := svc.ExportCSV(context.Background(), participantID, Filter{}, "inv-1")
	if err != nil {
		t.Fatal(err)
	}
	wantName := "audit-participante-" + participantID.String() + "-2024-03-10.csv"
	if file.FileName != wantName || file.Rows != 3 {
		t.Errorf("unexpected file %q rows %d", file.FileName, file.Rows)
	}

	items, err := store.List(context.Background(), participantID.String())
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Category != blobstore.CategoryAuditCSV || items[0].FileName != wantName {
		t.Errorf("unexpected archive %+v", items)
	}
}
