package fhir

import (
	"encoding/json"
	"testing"
	"time"
)

func TestFormatReference(t *testing.T) {
	if got := FormatReference("Patient", "p1"); got != "Patient/p1" {
		t.Errorf("expected Patient/p1, got %s", got)
	}
}

func TestFormatDate(t *testing.T) {
	ts := time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC)
	if got := FormatDate(ts); got != "2024-03-09" {
		t.Errorf("expected 2024-03-09, got %s", got)
	}
	if got := FormatDateTime(ts); got != "2024-03-09T23:30:00Z" {
		t.Errorf("expected RFC3339 UTC, got %s", got)
	}
}

func TestQuantity_JSON(t *testing.T) {
	q := Quantity{Value: 72, Unit: "beats/minute", System: SystemUCUM, Code: "/min"}
	data, err := json.Marshal(q)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["value"] != float64(72) {
		t.Errorf("expected value 72, got %v", m["value"])
	}
	if m["system"] != SystemUCUM {
		t.Errorf("expected UCUM system, got %v", m["system"])
	}
}

func TestHumanName_OmitsEmpty(t *testing.T) {
	data, err := json.Marshal(HumanName{Family: "Garcia"})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"family":"Garcia"}` {
		t.Errorf("unexpected JSON %s", data)
	}
}
