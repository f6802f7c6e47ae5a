package fhir

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidBundle is returned when the import root is not a Bundle or its
// entry list is malformed. No entries are processed in that case.
var ErrInvalidBundle = errors.New("invalid bundle")

// Import entry statuses.
const (
	EntryStatusProcessed = "processed"
)

// ProcessedResource is one entry the importer accepted.
type ProcessedResource struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ImportError is one entry the importer rejected.
type ImportError struct {
	Resource string `json:"resource"`
	ID       string `json:"id"`
	Error    string `json:"error"`
}

// ImportReport summarises one bundle import. It is built once and never
// mutated afterwards.
type ImportReport struct {
	ID                 string              `json:"id"`
	Timestamp          time.Time           `json:"timestamp"`
	BundleID           string              `json:"bundleId"`
	TotalEntries       int                 `json:"totalEntries"`
	ProcessedResources []ProcessedResource `json:"processedResources"`
	Errors             []ImportError       `json:"errors"`
}

// ImportOptions controls import policy.
type ImportOptions struct {
	// StrictValidation runs the Validator on every recognised entry and moves
	// invalid ones to the error list. Off by default: import only checks kinds.
	StrictValidation bool
}

// Importer processes Bundles into ImportReports.
type Importer struct {
	validator *Validator
	opts      ImportOptions
	now       func() time.Time
	newID     func() string
}

// NewImporter creates an Importer. validator may be nil when strict
// validation is off.
func NewImporter(validator *Validator, opts ImportOptions) *Importer {
	if validator == nil {
		validator = NewValidator()
	}
	return &Importer{
		validator: validator,
		opts:      opts,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// ImportJSON decodes data and imports it. Undecodable JSON is returned as a
// plain error; well-formed JSON that is not an object is ErrInvalidBundle.
func (im *Importer) ImportJSON(data []byte) (*ImportReport, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: root must be a JSON object", ErrInvalidBundle)
	}
	return im.Import(obj)
}

// Import checks the Bundle precondition and then processes every entry in
// order. Per-entry failures are reported, never returned.
func (im *Importer) Import(root Object) (*ImportReport, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: bundle is required", ErrInvalidBundle)
	}
	if kind := KindOf(root); kind != KindBundle {
		return nil, fmt.Errorf("%w: resourceType must be Bundle, got %q", ErrInvalidBundle, kind)
	}

	var entries []interface{}
	if raw, present := root["entry"]; present && raw != nil {
		arr, ok := raw.([]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: entry must be an array", ErrInvalidBundle)
		}
		entries = arr
	}

	report := &ImportReport{
		ID:                 im.newID(),
		Timestamp:          im.now().UTC(),
		BundleID:           IDOf(root),
		TotalEntries:       len(entries),
		ProcessedResources: []ProcessedResource{},
		Errors:             []ImportError{},
	}

	for i, entry := range entries {
		processed, importErr := im.processEntry(i, entry)
		switch {
		case importErr != nil:
			report.Errors = append(report.Errors, *importErr)
		case processed != nil:
			report.ProcessedResources = append(report.ProcessedResources, *processed)
		}
	}
	return report, nil
}

// processEntry handles one entry. Both results are nil for an entry without a
// resource. A panic while handling the entry is turned into an ImportError.
func (im *Importer) processEntry(idx int, entry interface{}) (processed *ProcessedResource, importErr *ImportError) {
	defer func() {
		if r := recover(); r != nil {
			processed = nil
			importErr = &ImportError{
				Resource: "unknown",
				Error:    fmt.Sprintf("entry %d: %v", idx, r),
			}
		}
	}()

	e, ok := entry.(map[string]interface{})
	if !ok {
		return nil, &ImportError{Resource: "unknown", Error: fmt.Sprintf("entry %d is not an object", idx)}
	}
	raw, present := e["resource"]
	if !present || raw == nil {
		return nil, nil
	}
	res, ok := raw.(map[string]interface{})
	if !ok {
		return nil, &ImportError{Resource: "unknown", Error: fmt.Sprintf("entry %d resource is not an object", idx)}
	}

	kind, id := KindOf(res), IDOf(res)
	if !ImportableKinds.Contains(kind) {
		return nil, &ImportError{Resource: kindOrUnknown(kind), ID: id, Error: "Unsupported resource type"}
	}

	if im.opts.StrictValidation {
		if result := im.validator.Validate(res); !result.Valid {
			return nil, &ImportError{Resource: kind, ID: id, Error: strings.Join(result.Errors, "; ")}
		}
	}

	return &ProcessedResource{Type: kind, ID: id, Status: EntryStatusProcessed}, nil
}

func kindOrUnknown(kind string) string {
	if kind == "" {
		return "unknown"
	}
	return kind
}
