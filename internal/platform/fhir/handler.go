package fhir

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/trialportal/portal/internal/platform/telemetry"
)

// ValidateRequest is the body of the fhir-validate function.
type ValidateRequest struct {
	Resource json.RawMessage `json:"resource"`
}

// ImportRequest is the body of the fhir-import function.
type ImportRequest struct {
	Bundle json.RawMessage `json:"bundle"`
}

// ErrorBody is the JSON error shape returned by the functions endpoints.
type ErrorBody struct {
	Error string `json:"error"`
}

// Handler serves the validate and import functions plus the FHIR $validate
// operation.
type Handler struct {
	validator *Validator
	importer  *Importer
	metrics   *telemetry.Collector
}

func NewHandler(validator *Validator, importer *Importer, metrics *telemetry.Collector) *Handler {
	return &Handler{validator: validator, importer: importer, metrics: metrics}
}

// RegisterRoutes mounts the functions on fnGroup and the $validate operation
// and capability statement on fhirGroup.
func (h *Handler) RegisterRoutes(fnGroup *echo.Group, fhirGroup *echo.Group) {
	fnGroup.Use(FunctionsCORSMiddleware())
	fnGroup.POST("/fhir-validate", h.Validate)
	fnGroup.POST("/fhir-import", h.Import)
	fnGroup.OPTIONS("/fhir-validate", noContent)
	fnGroup.OPTIONS("/fhir-import", noContent)

	fhirGroup.GET("/metadata", h.Metadata)
	// Static per-kind routes so they win over "/Patient/:id" style reads.
	for _, kind := range h.validator.Registry().Kinds() {
		fhirGroup.POST("/"+kind+"/$validate", h.ValidateOperation(kind))
	}
}

func noContent(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

// Validate handles POST /functions/v1/fhir-validate. An invalid resource is
// still a 200; only a missing resource (400) or an unreadable body (500)
// are failures.
func (h *Handler) Validate(c echo.Context) error {
	var req ValidateRequest
	if err := decodeBody(c, &req); err != nil {
		return h.fail(c, http.StatusInternalServerError, err)
	}
	if isNullJSON(req.Resource) {
		return c.JSON(http.StatusBadRequest, ErrorBody{Error: "resource is required"})
	}

	result, err := h.validator.ValidateJSON(req.Resource)
	if err != nil {
		// A non-object resource (string, number, array) is well-formed input
		// that fails validation, not a transport failure.
		result = newValidationResult()
		result.addError(IssueUnsupportedType, "resourceType", "resourceType is required")
	}
	h.metrics.ObserveValidation(result.ResourceType, result.Valid)
	return c.JSON(http.StatusOK, result)
}

// Import handles POST /functions/v1/fhir-import.
func (h *Handler) Import(c echo.Context) error {
	var req ImportRequest
	if err := decodeBody(c, &req); err != nil {
		return h.fail(c, http.StatusInternalServerError, err)
	}
	if isNullJSON(req.Bundle) {
		h.metrics.ObserveImport("rejected", 0, 0)
		return c.JSON(http.StatusBadRequest, ErrorBody{Error: "bundle is required"})
	}

	report, err := h.importer.ImportJSON(req.Bundle)
	if err != nil {
		if errors.Is(err, ErrInvalidBundle) {
			h.metrics.ObserveImport("rejected", 0, 0)
			return c.JSON(http.StatusBadRequest, ErrorBody{Error: err.Error()})
		}
		h.metrics.ObserveImport("failed", 0, 0)
		return h.fail(c, http.StatusInternalServerError, err)
	}

	h.metrics.ObserveImport("ok", len(report.ProcessedResources), len(report.Errors))
	zerolog.Ctx(c.Request().Context()).Info().
		Str("report_id", report.ID).
		Str("bundle_id", report.BundleID).
		Int("total", report.TotalEntries).
		Int("processed", len(report.ProcessedResources)).
		Int("errors", len(report.Errors)).
		Msg("bundle imported")
	return c.JSON(http.StatusOK, report)
}

// ValidateOperation returns the handler of POST /fhir/{kind}/$validate. The
// body is the resource itself; the result is an OperationOutcome.
func (h *Handler) ValidateOperation(kind string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return h.validateOperation(c, kind)
	}
}

func (h *Handler) validateOperation(c echo.Context, want string) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusInternalServerError,
			NewOperationOutcome(IssueSeverityFatal, IssueTypeException, err.Error()))
	}
	obj, err := DecodeObject(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest,
			NewOperationOutcome(IssueSeverityError, IssueTypeStructure, "request body must be a JSON resource"))
	}

	if KindOf(obj) != want {
		return c.JSON(http.StatusBadRequest,
			NewOperationOutcome(IssueSeverityError, IssueTypeInvalid,
				"resourceType "+KindOf(obj)+" does not match endpoint type "+want))
	}

	result := h.validator.Validate(obj)
	h.metrics.ObserveValidation(result.ResourceType, result.Valid)
	return c.JSON(http.StatusOK, result.ToOperationOutcome())
}

// Metadata handles GET /fhir/metadata.
func (h *Handler) Metadata(c echo.Context) error {
	return c.JSON(http.StatusOK, NewCapabilityStatement(h.validator.Registry()))
}

// fail logs an unexpected failure and returns it as a 500 body.
func (h *Handler) fail(c echo.Context, status int, err error) error {
	zerolog.Ctx(c.Request().Context()).Error().Err(err).
		Str("path", c.Path()).
		Msg("function failed")
	return c.JSON(status, ErrorBody{Error: err.Error()})
}

func decodeBody(c echo.Context, dst interface{}) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func isNullJSON(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
