package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/trialportal/portal/internal/platform/auth"
)

// AuditEntry is one audited request as the access middleware sees it.
type AuditEntry struct {
	UserID        string
	UserName      string
	UserRoles     []string
	ParticipantID string
	Action        string // read, create, update, delete
	Resource      string
	Method        string
	Path          string
	IPAddress     string
	StatusCode    int
	RequestID     string
	Timestamp     time.Time
}

// Activity is the short label stored on the audit trail, e.g. "read participants".
func (e AuditEntry) Activity() string {
	return e.Action + " " + e.Resource
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(ctx context.Context, entry AuditEntry) error
}

// AuditRecorderFunc adapts a function to AuditRecorder.
type AuditRecorderFunc func(ctx context.Context, entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(ctx context.Context, entry AuditEntry) error {
	return f(ctx, entry)
}

// Audit records every /fhir/ and /api/v1/ request after the handler ran.
// Recorder errors are logged and never fail the request. Without a recorder
// entries are only logged.
func Audit(recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !isAuditablePath(path) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			ctx := req.Context()
			entry := AuditEntry{
				UserID:        auth.UserIDFromContext(ctx),
				UserName:      auth.UserNameFromContext(ctx),
				UserRoles:     auth.RolesFromContext(ctx),
				ParticipantID: extractParticipantID(c),
				Action:        httpMethodToAction(req.Method),
				Resource:      extractResource(path),
				Method:        req.Method,
				Path:          path,
				IPAddress:     c.RealIP(),
				StatusCode:    status,
				RequestID:     c.Response().Header().Get(echo.HeaderXRequestID),
				Timestamp:     time.Now().UTC(),
			}

			logger := zerolog.Ctx(ctx)
			if recorder != nil {
				if recErr := recorder.RecordAccess(ctx, entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("failed to record audit entry")
				}
			}
			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("participant_id", entry.ParticipantID).
				Str("activity", entry.Activity()).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("access")

			return err
		}
	}
}

func isAuditablePath(path string) bool {
	return strings.HasPrefix(path, "/fhir/") || strings.HasPrefix(path, "/api/v1/")
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// extractResource returns the first path segment after the API prefix:
//   - /fhir/Patient/123              -> Patient
//   - /api/v1/studies/123/export     -> studies
func extractResource(path string) string {
	var rest string
	switch {
	case strings.HasPrefix(path, "/fhir/"):
		rest = strings.TrimPrefix(path, "/fhir/")
	case strings.HasPrefix(path, "/api/v1/"):
		rest = strings.TrimPrefix(path, "/api/v1/")
	}
	if seg, _, _ := strings.Cut(rest, "/"); seg != "" {
		return seg
	}
	return "unknown"
}

// extractParticipantID finds the participant a request touches: the id in
// /fhir/Patient/<id> or /api/v1/participants/<id>, else ?participant=.
func extractParticipantID(c echo.Context) string {
	path := c.Request().URL.Path
	for _, prefix := range []string{"/fhir/Patient/", "/api/v1/participants/"} {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		seg, _, _ := strings.Cut(strings.TrimPrefix(path, prefix), "/")
		if _, err := uuid.Parse(seg); err == nil {
			return seg
		}
	}
	if p := c.QueryParam("participant"); p != "" {
		return strings.TrimPrefix(p, "Patient/")
	}
	return ""
}
