package trial

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/trialportal/portal/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the study endpoints. exportMiddleware is applied to
// the download route only (the aal2 gate outside development).
func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group, exportMiddleware ...echo.MiddlewareFunc) {
	staff := api.Group("", auth.RequireRole(auth.StaffRoles...))
	staff.GET("/studies/:id/export", h.Export, exportMiddleware...)

	fhirRead := fhirGroup.Group("", auth.RequireRole(auth.StaffRoles...))
	fhirRead.GET("/Patient/:id", h.GetPatientFHIR)
	fhirRead.GET("/ResearchStudy/:id", h.GetStudyFHIR)
	fhirRead.GET("/ResearchStudy/:id/$everything", h.StudyEverything)
}

// Export serves GET /studies/:id/export?format=xlsx|sdtm|fhir.
func (h *Handler) Export(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	format := c.QueryParam("format")
	if format == "" {
		format = FormatXLSX
	}

	ctx := c.Request().Context()
	file, err := h.svc.Export(ctx, id, format, auth.UserIDFromContext(ctx))
	if err != nil {
		return h.mapError(c, err)
	}
	if len(file.Warnings) > 0 {
		zerolog.Ctx(ctx).Warn().Strs("warnings", file.Warnings).Str("study_id", id.String()).Msg("export mapping warnings")
		c.Response().Header().Set("X-Mapping-Warnings", strconv.Itoa(len(file.Warnings)))
	}
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file.FileName))
	return c.Blob(http.StatusOK, file.ContentType, file.Data)
}

func (h *Handler) GetPatientFHIR(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	obj, result, err := h.svc.PatientResource(c.Request().Context(), id)
	if err != nil {
		return h.mapError(c, err)
	}
	if !result.Valid {
		return c.JSON(http.StatusUnprocessableEntity, result.ToOperationOutcome())
	}
	return c.JSON(http.StatusOK, obj)
}

func (h *Handler) GetStudyFHIR(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	obj, result, warnings, err := h.svc.StudyResource(c.Request().Context(), id)
	if err != nil {
		return h.mapError(c, err)
	}
	if !result.Valid {
		return c.JSON(http.StatusUnprocessableEntity, result.ToOperationOutcome())
	}
	if len(warnings) > 0 {
		c.Response().Header().Set("X-Mapping-Warnings", strconv.Itoa(len(warnings)))
	}
	return c.JSON(http.StatusOK, obj)
}

// StudyEverything serves ResearchStudy/:id/$everything as a collection Bundle.
func (h *Handler) StudyEverything(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	bundle, warnings, err := h.svc.StudyBundle(c.Request().Context(), id)
	if err != nil {
		return h.mapError(c, err)
	}
	if len(warnings) > 0 {
		c.Response().Header().Set("X-Mapping-Warnings", strconv.Itoa(len(warnings)))
	}
	return c.JSON(http.StatusOK, bundle)
}

func (h *Handler) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, ErrUnsupportedFormat):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	zerolog.Ctx(c.Request().Context()).Error().Err(err).Str("path", c.Path()).Msg("study request failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}
