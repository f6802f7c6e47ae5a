package audit

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/trialportal/portal/internal/platform/auth"
	"github.com/trialportal/portal/internal/platform/export"
	"github.com/trialportal/portal/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireRole(auth.StaffRoles...))
	staff.GET("/participants/:id/audit", h.List)
	staff.GET("/participants/:id/audit.csv", h.DownloadCSV)
}

// parseFilter reads ?user=&activity=&since=&until= (RFC 3339 times).
func parseFilter(c echo.Context) (Filter, error) {
	f := Filter{
		UserID:   c.QueryParam("user"),
		Activity: c.QueryParam("activity"),
	}
	for name, dst := range map[string]**time.Time{"since": &f.Since, "until": &f.Until} {
		raw := c.QueryParam(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s must be an RFC 3339 timestamp", name))
		}
		*dst = &t
	}
	return f, nil
}

func participantFilter(c echo.Context) (uuid.UUID, Filter, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, Filter{}, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	f, err := parseFilter(c)
	if err != nil {
		return uuid.Nil, Filter{}, err
	}
	f.ParticipantID = &id
	return id, f, nil
}

// List serves the paginated audit trail of one participant.
func (h *Handler) List(c echo.Context) error {
	_, f, err := participantFilter(c)
	if err != nil {
		return err
	}
	page, err := h.svc.Search(c.Request().Context(), f, pagination.FromContext(c))
	if err != nil {
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("audit search failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, page)
}

// DownloadCSV serves the audit trail of one participant as CSV.
func (h *Handler) DownloadCSV(c echo.Context) error {
	id, f, err := participantFilter(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	file, err := h.svc.ExportCSV(ctx, id, f, auth.UserIDFromContext(ctx))
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("audit export failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file.FileName))
	return c.Blob(http.StatusOK, export.ContentTypeCSV, file.Data)
}
