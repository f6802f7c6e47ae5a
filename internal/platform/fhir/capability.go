package fhir

import "time"

// CapabilityStatement represents the FHIR CapabilityStatement (metadata).
type CapabilityStatement struct {
	ResourceType string   `json:"resourceType"`
	Status       string   `json:"status"`
	Date         string   `json:"date"`
	Kind         string   `json:"kind"`
	FHIRVersion  string   `json:"fhirVersion"`
	Format       []string `json:"format"`
	Rest         []CSRest `json:"rest"`
}

type CSRest struct {
	Mode      string        `json:"mode"`
	Resource  []CSResource  `json:"resource"`
	Operation []CSOperation `json:"operation,omitempty"`
}

type CSResource struct {
	Type        string          `json:"type"`
	Interaction []CSInteraction `json:"interaction,omitempty"`
}

type CSInteraction struct {
	Code string `json:"code"`
}

type CSOperation struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
}

// readableKinds are the kinds the portal serves by id.
var readableKinds = map[string]bool{
	KindPatient:       true,
	KindResearchStudy: true,
}

// NewCapabilityStatement lists every kind the registry knows. All kinds
// support $validate; Patient and ResearchStudy are also readable.
func NewCapabilityStatement(reg *Registry) *CapabilityStatement {
	kinds := reg.Kinds()
	resources := make([]CSResource, 0, len(kinds))
	for _, k := range kinds {
		r := CSResource{Type: k}
		if readableKinds[k] {
			r.Interaction = []CSInteraction{{Code: "read"}}
		}
		resources = append(resources, r)
	}
	return &CapabilityStatement{
		ResourceType: "CapabilityStatement",
		Status:       "active",
		Date:         FormatDate(time.Now().UTC()),
		Kind:         "instance",
		FHIRVersion:  "4.0.1",
		Format:       []string{"json"},
		Rest: []CSRest{{
			Mode:     "server",
			Resource: resources,
			Operation: []CSOperation{
				{Name: "validate", Definition: "http://hl7.org/fhir/OperationDefinition/Resource-validate"},
				{Name: "everything", Definition: "urn:trialportal:operation:study-everything"},
			},
		}},
	}
}
