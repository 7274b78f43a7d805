// Package export renders conversation documents as JSON, CSV or a plain
// text transcript. All renderings are read-only projections.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rosebeck482/hapa-chat/internal/models"
)

// Format names an export rendering.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatText Format = "text"
)

// ErrUnsupportedFormat is returned for an unknown format name.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// CSVHeader is the column order of the CSV rendering.
var CSVHeader = []string{"timestamp", "section", "sender", "content", "intent", "action", "confidence", "slots_set"}

const transcriptTime = "2006-01-02 15:04:05"

// ParseFormat validates a format name. Empty selects JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatText:
		return f, nil
	case "txt":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// ContentType returns the HTTP media type of a format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatText:
		return "text/plain; charset=utf-8"
	default:
		return "application/json"
	}
}

// Extension returns the file extension used when writing a format to disk.
func (f Format) Extension() string {
	if f == FormatText {
		return ".txt"
	}
	return "." + string(f)
}

// Write renders doc to w in the given format.
func Write(w io.Writer, doc *models.Document, format Format) error {
	var (
		out []byte
		err error
	)
	switch format {
	case FormatJSON:
		out, err = JSON(doc)
	case FormatCSV:
		out, err = CSV(doc)
	case FormatText:
		out = []byte(Text(doc))
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return err
	}
	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("failed to write %s export: %w", format, err)
	}
	return nil
}

// JSON returns the document as indented JSON.
func JSON(doc *models.Document) ([]byte, error) {
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation %s: %w", doc.ConversationID, err)
	}
	return append(out, '\n'), nil
}

// CSV flattens the entries into one row each, preceded by CSVHeader.
func CSV(doc *models.Document) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(CSVHeader); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	for i, e := range doc.Messages {
		slots := ""
		if len(e.Metadata.SlotsSet) > 0 {
			b, err := json.Marshal(e.Metadata.SlotsSet)
			if err != nil {
				return nil, fmt.Errorf("failed to encode slots of entry %d: %w", i, err)
			}
			slots = string(b)
		}
		confidence := ""
		if e.Metadata.Confidence != nil {
			confidence = strconv.FormatFloat(*e.Metadata.Confidence, 'f', -1, 64)
		}
		row := []string{
			formatTimestamp(e.Timestamp, time.RFC3339Nano),
			string(e.Section),
			string(e.Sender),
			e.Content,
			e.Metadata.Intent,
			e.Metadata.Action,
			confidence,
			slots,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write csv row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Text renders a human-readable transcript with a metadata header.
func Text(doc *models.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CONVERSATION ID: %s\n", doc.ConversationID)
	fmt.Fprintf(&b, "CREATED: %s\n", formatTimestamp(doc.CreatedAt, time.RFC3339))
	fmt.Fprintf(&b, "UPDATED: %s\n", formatTimestamp(doc.UpdatedAt, time.RFC3339))

	b.WriteString("\nMETADATA:\n")
	keys := make([]string, 0, len(doc.Metadata))
	for k := range doc.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s: %v\n", k, doc.Metadata[k])
	}

	b.WriteString("\nMESSAGES:\n")
	for _, e := range doc.Messages {
		annotation := ""
		switch {
		case e.Sender == models.SenderUser && e.Metadata.Intent != "":
			annotation = fmt.Sprintf(" [Intent: %s]", e.Metadata.Intent)
		case e.Sender == models.SenderBot && e.Metadata.Action != "":
			annotation = fmt.Sprintf(" [Action: %s]", e.Metadata.Action)
		}
		fmt.Fprintf(&b, "[%s] [%s] %s: %s%s\n",
			formatTimestamp(e.Timestamp, transcriptTime),
			e.Section,
			strings.ToUpper(string(e.Sender)),
			e.Content,
			annotation)
	}
	return b.String()
}

func formatTimestamp(t time.Time, layout string) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(layout)
}
