// Package audit is the participant audit trail: who did what to which
// participant record, when and from where. Entries are written by the access
// middleware and read back as a paginated list or a CSV download.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Entry maps to the audit_logs table.
type Entry struct {
	ID            uuid.UUID  `json:"id"`
	ParticipantID *uuid.UUID `json:"participant_id,omitempty"`
	UserID        string     `json:"user_id"`
	UserName      string     `json:"user_name,omitempty"`
	Activity      string     `json:"activity"`
	Details       string     `json:"details,omitempty"`
	IPAddress     string     `json:"ip_address,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Actor is the name shown in the Usuario column.
func (e *Entry) Actor() string {
	if e.UserName != "" {
		return e.UserName
	}
	return e.UserID
}

// Filter narrows a search. Zero fields match everything. Results are always
// newest first.
type Filter struct {
	ParticipantID *uuid.UUID
	UserID        string
	Activity      string
	Since         *time.Time
	Until         *time.Time
}

// Matches reports whether e passes every set criterion. Until is exclusive.
func (f Filter) Matches(e *Entry) bool {
	if f.ParticipantID != nil && (e.ParticipantID == nil || *e.ParticipantID != *f.ParticipantID) {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Activity != "" && e.Activity != f.Activity {
		return false
	}
	if f.Since != nil && e.CreatedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !e.CreatedAt.Before(*f.Until) {
		return false
	}
	return true
}
