package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosebeck482/hapa-chat/internal/models"
)

func sampleDocument() *models.Document {
	start := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	conf := 0.87
	doc := models.NewDocument("user-42", start)
	doc.UpdatedAt = start.Add(2 * time.Minute)
	doc.Metadata = map[string]any{"name": "Ana", "age": float64(28)}
	doc.Messages = []models.Entry{
		{
			Timestamp: start,
			Section:   models.SectionPersonalData,
			Sender:    models.SenderUser,
			Content:   "I'm Ana, nice to meet you",
			Metadata:  models.EntryMetadata{Intent: "provide_name", Confidence: &conf},
		},
		{
			Timestamp: start.Add(time.Second),
			Section:   models.SectionPersonalData,
			Sender:    models.SenderBot,
			Content:   "Thank you for providing your name Ana!",
			Metadata:  models.EntryMetadata{Action: "action_collect_name"},
		},
		{
			Timestamp: start.Add(2 * time.Second),
			Section:   models.SectionPersonalData,
			Sender:    models.SenderSystem,
			Content:   "Slots updated: name",
			Metadata:  models.EntryMetadata{SlotsSet: map[string]any{"name": "Ana"}},
		},
	}
	return doc
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"json", FormatJSON, false},
		{"CSV", FormatCSV, false},
		{" text ", FormatText, false},
		{"txt", FormatText, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJSONPreservesDocument(t *testing.T) {
	doc := sampleDocument()
	out, err := JSON(doc)
	require.NoError(t, err)

	var decoded models.Document
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, doc.ConversationID, decoded.ConversationID)
	require.Len(t, decoded.Messages, 3)
	assert.Equal(t, doc.Messages[1].Content, decoded.Messages[1].Content)
	assert.Contains(t, string(out), "\n  \"metadata\"")
}

func TestCSVColumns(t *testing.T) {
	out, err := CSV(sampleDocument())
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, CSVHeader, rows[0])

	assert.Equal(t, []string{
		"2025-03-15T10:00:00Z", "personal_data_collection", "user",
		"I'm Ana, nice to meet you", "provide_name", "", "0.87", "",
	}, rows[1])
	assert.Equal(t, "action_collect_name", rows[2][5])
	assert.Equal(t, `{"name":"Ana"}`, rows[3][7])
}

func TestTextTranscript(t *testing.T) {
	out := Text(sampleDocument())

	assert.True(t, strings.HasPrefix(out, "CONVERSATION ID: user-42\nCREATED: 2025-03-15T10:00:00Z\nUPDATED: 2025-03-15T10:02:00Z\n"))
	assert.Contains(t, out, "\nMETADATA:\n  age: 28\n  name: Ana\n")
	assert.Contains(t, out, "[2025-03-15 10:00:00] [personal_data_collection] USER: I'm Ana, nice to meet you [Intent: provide_name]\n")
	assert.Contains(t, out, "[2025-03-15 10:00:01] [personal_data_collection] BOT: Thank you for providing your name Ana! [Action: action_collect_name]\n")
	assert.Contains(t, out, "] SYSTEM: Slots updated: name\n")
}

func TestWrite(t *testing.T) {
	doc := sampleDocument()
	for _, f := range []Format{FormatJSON, FormatCSV, FormatText} {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, doc, f), f)
		assert.NotEmpty(t, buf.String(), f)
	}

	var buf bytes.Buffer
	err := Write(&buf, doc, Format("yaml"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Empty(t, buf.String())
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "application/json", FormatJSON.ContentType())
	assert.Equal(t, "text/csv; charset=utf-8", FormatCSV.ContentType())
	assert.Equal(t, ".txt", FormatText.Extension())
	assert.Equal(t, ".csv", FormatCSV.Extension())
}
