package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

type testTable struct {
	Names []string `json:"names"`
}

func (t testTable) Header() []string { return []string{"ID", "NAME"} }

func (t testTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.Names))
	for i, n := range t.Names {
		rows = append(rows, []string{string(rune('a' + i)), n})
	}
	return rows
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"csv", FormatCSV, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	f, _ := NewFormatter(FormatText)

	if err := f.FormatTo(&buf, testTable{Names: []string{"GET /orders", "POST /cart"}}); err != nil {
		t.Fatalf("FormatTo failed: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[0], "ID  NAME") || !strings.HasPrefix(lines[1], "a   GET /orders") {
		t.Errorf("unexpected alignment: %q", buf.String())
	}

	buf.Reset()
	if err := f.FormatTo(&buf, "plain"); err != nil || buf.String() != "plain\n" {
		t.Errorf("expected plain value, got %q (%v)", buf.String(), err)
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	f, _ := NewFormatter(FormatJSON)

	if err := f.FormatTo(&buf, testTable{Names: []string{"x"}}); err != nil {
		t.Fatalf("FormatTo failed: %v", err)
	}
	var got testTable
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil || len(got.Names) != 1 {
		t.Errorf("unexpected JSON %q (%v)", buf.String(), err)
	}
}

func TestCSVFormatter(t *testing.T) {
	var buf bytes.Buffer
	f, _ := NewFormatter(FormatCSV)

	if err := f.FormatTo(&buf, testTable{Names: []string{"GET /a,b"}}); err != nil {
		t.Fatalf("FormatTo failed: %v", err)
	}
	if want := "ID,NAME\na,\"GET /a,b\"\n"; buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}

	if err := f.FormatTo(&buf, 42); err == nil {
		t.Error("expected error for non-tabular data")
	}
}

func TestNewFormatter_Unknown(t *testing.T) {
	if _, err := NewFormatter("yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
