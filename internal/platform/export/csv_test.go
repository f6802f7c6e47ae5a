package export

import (
	"bytes"
	"testing"
	"time"
)

func TestQuotedCSVWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewQuotedCSVWriter(&buf, AuditHeaders)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write([]string{"2024-03-01 10:00:00", "login", "Ana", `dijo "hola", adios`, "10.0.0.1"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Write([]string{"2024-03-02 11:00:00", "export"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	want := "Fecha,Actividad,Usuario,Detalles,IP\n" +
		`"2024-03-01 10:00:00","login","Ana","dijo ""hola"", adios","10.0.0.1"` + "\n" +
		`"2024-03-02 11:00:00","export","","",""` + "\n"
	if buf.String() != want {
		t.Errorf("unexpected CSV:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestQuotedCSVWriter_TooManyFields(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewQuotedCSVWriter(&buf, []string{"A"})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write([]string{"1", "2"}); err == nil {
		t.Error("expected error for a record wider than the header")
	}
}

func TestAuditFileName(t *testing.T) {
	ts := time.Date(2024, 7, 15, 8, 0, 0, 0, time.UTC)
	if got := AuditFileName("p-42", ts); got != "audit-participante-p-42-2024-07-15.csv" {
		t.Errorf("unexpected file name %q", got)
	}
}
