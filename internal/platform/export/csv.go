package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

// ContentTypeCSV is the MIME type of the audit export.
const ContentTypeCSV = "text/csv; charset=utf-8"

// AuditHeaders is the fixed header row of the audit CSV.
var AuditHeaders = []string{"Fecha", "Actividad", "Usuario", "Detalles", "IP"}

// AuditFileName returns "audit-participante-{id}-{YYYY-MM-DD}.csv".
func AuditFileName(participantID string, t time.Time) string {
	return fmt.Sprintf("audit-participante-%s-%s.csv", participantID, t.Format("2006-01-02"))
}

// QuotedCSVWriter writes a bare header line followed by records whose every
// field is wrapped in double quotes, embedded quotes doubled.
type QuotedCSVWriter struct {
	w      *bufio.Writer
	fields int
}

// NewQuotedCSVWriter writes header to w and returns a writer for records of
// the same width.
func NewQuotedCSVWriter(w io.Writer, header []string) (*QuotedCSVWriter, error) {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(header, ",") + "\n"); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return &QuotedCSVWriter{w: bw, fields: len(header)}, nil
}

// Write appends one record. Short records are padded with empty fields.
func (q *QuotedCSVWriter) Write(record []string) error {
	if len(record) > q.fields {
		return fmt.Errorf("csv record has %d fields, header has %d", len(record), q.fields)
	}
	var b strings.Builder
	for i := 0; i < q.fields; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		var v string
		if i < len(record) {
			v = record[i]
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(v, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
	_, err := q.w.WriteString(b.String())
	return err
}

// Flush writes any buffered data to the underlying writer.
func (q *QuotedCSVWriter) Flush() error {
	return q.w.Flush()
}
