package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trialportal/portal/pkg/pagination"
)

// ── Mock Repository ──

type mockRepo struct {
	mu       sync.Mutex
	entries  []*Entry
	err      error
	searches int
}

func (m *mockRepo) Create(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockRepo) Search(_ context.Context, f Filter, page pagination.Params) ([]*Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches++
	if m.err != nil {
		return nil, 0, m.err
	}
	var matched []*Entry
	for _, e := range m.entries {
		if f.Matches(e) {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	if page.Offset >= total {
		return nil, total, nil
	}
	end := page.Offset + page.Limit
	if end > total {
		end = total
	}
	return matched[page.Offset:end], total, nil
}

var (
	fixedNow      = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	participantID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	otherID       = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

func idPtr(id uuid.UUID) *uuid.UUID { return &id }

// seededRepo holds three entries for participantID, one hour apart, and one
// for otherID.
func seededRepo() *mockRepo {
	return &mockRepo{entries: []*Entry{
		{ID: uuid.New(), ParticipantID: idPtr(participantID), UserID: "inv-1", UserName: "Dra. Ruiz", Activity: "read Patient", Details: "GET /fhir/Patient", IPAddress: "10.0.0.1", CreatedAt: fixedNow.Add(-3 * time.Hour)},
		{ID: uuid.New(), ParticipantID: idPtr(participantID), UserID: "cro-1", Activity: "read participants", Details: `nota "urgente", revisar`, IPAddress: "10.0.0.2", CreatedAt: fixedNow.Add(-2 * time.Hour)},
		{ID: uuid.New(), ParticipantID: idPtr(participantID), UserID: "inv-1", UserName: "Dra. Ruiz", Activity: "read participants", IPAddress: "10.0.0.1", CreatedAt: fixedNow.Add(-1 * time.Hour)},
		{ID: uuid.New(), ParticipantID: idPtr(otherID), UserID: "inv-1", Activity: "read Patient", CreatedAt: fixedNow},
	}}
}

func newTestService(repo Repository) *Service {
	svc := NewService(repo)
	svc.now = func() time.Time { return fixedNow }
	return svc
}
