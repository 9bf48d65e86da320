package codec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ermrest-eu/ermrestd/internal/apierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRowsJSON(t *testing.T) {
	rows := []Row{{"id": int64(1), "name": "alice"}, {"id": int64(2), "name": "bob"}}
	var buf bytes.Buffer
	require.NoError(t, EncodeRows(&buf, JSON, []string{"id", "name"}, rows))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "["))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "]"))
	assert.Contains(t, out, `"name":"alice"`)
}

func TestEncodeRowsCSV(t *testing.T) {
	rows := []Row{{"id": int64(1), "name": "alice"}}
	var buf bytes.Buffer
	require.NoError(t, EncodeRows(&buf, CSV, []string{"id", "name"}, rows))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\r\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,name", lines[0])
	assert.Equal(t, "1,alice", lines[1])
}

func TestEncodeRowsUnsupportedContentType(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeRows(&buf, ContentType("text/xml"), nil, nil)
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.BadSyntax))
}

func TestDecodeRowsJSON(t *testing.T) {
	in := `[{"name":"carol"}]`
	rows, err := DecodeRows(strings.NewReader(in), JSON)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "carol", rows[0]["name"])
}

func TestDecodeRowsJSONMalformed(t *testing.T) {
	_, err := DecodeRows(strings.NewReader("not json"), JSON)
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.BadSyntax))
}

func TestDecodeRowsCSV(t *testing.T) {
	in := "id,name\n1,alice\n2,bob\n"
	rows, err := DecodeRows(strings.NewReader(in), CSV)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0]["name"])
	assert.Equal(t, "2", rows[1]["id"])
}

func TestDecodeRowsCSVFieldCountMismatch(t *testing.T) {
	in := "id,name\n1\n"
	_, err := DecodeRows(strings.NewReader(in), CSV)
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.BadSyntax))
}

func TestDecodeRowsCSVEmpty(t *testing.T) {
	rows, err := DecodeRows(strings.NewReader(""), CSV)
	require.NoError(t, err)
	assert.Nil(t, rows)
}
