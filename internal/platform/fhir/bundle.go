package fhir

import (
	"time"
)

// Bundle represents a FHIR Bundle resource built by the portal.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

// BundleEntry is one resource of a collection Bundle.
type BundleEntry struct {
	FullURL  string      `json:"fullUrl,omitempty"`
	Resource interface{} `json:"resource,omitempty"`
}

// NewCollectionBundle creates a collection Bundle holding resources in order.
// Each entry gets a relative fullUrl when the resource carries a type and id.
func NewCollectionBundle(id string, resources []Object, now time.Time) *Bundle {
	ts := now.UTC()
	total := len(resources)
	entries := make([]BundleEntry, len(resources))
	for i, r := range resources {
		entries[i] = BundleEntry{
			FullURL:  fullURL(r),
			Resource: r,
		}
	}
	return &Bundle{
		ResourceType: KindBundle,
		ID:           id,
		Type:         "collection",
		Total:        &total,
		Timestamp:    &ts,
		Entry:        entries,
	}
}

// fullURL builds "Type/id" from a resource, or "" when either is missing.
func fullURL(r Object) string {
	kind, id := KindOf(r), IDOf(r)
	if kind == "" || id == "" {
		return ""
	}
	return FormatReference(kind, id)
}
