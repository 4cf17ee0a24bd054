package logging

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

const sampleLog = `{"time":"2024-03-01T12:00:02Z","level":"WARN","msg":"affinity bind failed","app":"api","core":1,"pid":11}
not json
{"time":"2024-03-01T12:00:00Z","level":"INFO","msg":"topology resolved","cores":2}

{"time":"2024-03-01T12:00:01Z","level":"DEBUG","msg":"worker online","app":"api","core":0,"pid":10}
{"time":"2024-03-01T12:00:03Z","level":"ERROR","msg":"spawn failed","app":"web","core":0}
`

func intPtr(i int) *int { return &i }

func TestReadLogs(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/state/corefork.log", []byte(sampleLog), 0644); err != nil {
		t.Fatal(err)
	}

	entries, err := ReadLogs(fs, "/state/corefork.log")
	if err != nil {
		t.Fatalf("ReadLogs failed: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries (malformed skipped), got %d", len(entries))
	}
	if entries[0].Message != "topology resolved" {
		t.Errorf("entries should be sorted by time, first = %q", entries[0].Message)
	}
	if entries[0].Core != nil {
		t.Error("entry without core should have nil Core")
	}
	if entries[0].Attrs["cores"] != float64(2) {
		t.Errorf("unknown fields should land in Attrs: %v", entries[0].Attrs)
	}
	if entries[1].PID != 10 || entries[1].Core == nil || *entries[1].Core != 0 {
		t.Errorf("unexpected worker entry: %+v", entries[1])
	}

	if _, err := ReadLogs(fs, "/missing.log"); err == nil {
		t.Error("expected error for missing log file")
	}
}

func TestFilterLogs(t *testing.T) {
	entries, err := ParseLogs(strings.NewReader(sampleLog))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		filter LogFilter
		want   []string
	}{
		{"no filter", LogFilter{}, []string{"topology resolved", "worker online", "affinity bind failed", "spawn failed"}},
		{"level", LogFilter{Level: "warn"}, []string{"affinity bind failed", "spawn failed"}},
		{"app", LogFilter{App: "api"}, []string{"worker online", "affinity bind failed"}},
		{"core", LogFilter{Core: intPtr(0)}, []string{"worker online", "spawn failed"}},
		{"since", LogFilter{Since: time.Date(2024, 3, 1, 12, 0, 2, 0, time.UTC)}, []string{"affinity bind failed", "spawn failed"}},
		{"message", LogFilter{MessageContains: "online"}, []string{"worker online"}},
		{"combined", LogFilter{App: "api", Core: intPtr(1)}, []string{"affinity bind failed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterLogs(entries, tt.filter)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.want))
			}
			for i, msg := range tt.want {
				if got[i].Message != msg {
					t.Errorf("entry %d = %q, want %q", i, got[i].Message, msg)
				}
			}
		})
	}
}

func TestExportLogEntries(t *testing.T) {
	entries, _ := ParseLogs(strings.NewReader(sampleLog))

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := ExportLogEntries(&buf, entries, "text"); err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 4 {
			t.Fatalf("expected 4 lines, got %d", len(lines))
		}
		if !strings.Contains(lines[1], "(app=api, core=0, pid=10)") {
			t.Errorf("line = %q", lines[1])
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := ExportLogEntries(&buf, entries, "json"); err != nil {
			t.Fatal(err)
		}
		var decoded []map[string]any
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON export: %v", err)
		}
		if len(decoded) != 4 {
			t.Errorf("expected 4 exported entries, got %d", len(decoded))
		}
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		if err := ExportLogEntries(&buf, entries, "csv"); err != nil {
			t.Fatal(err)
		}
		records, err := csv.NewReader(&buf).ReadAll()
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 5 {
			t.Fatalf("expected header + 4 records, got %d", len(records))
		}
		if records[2][4] != "0" || records[2][5] != "10" {
			t.Errorf("unexpected core/pid columns: %v", records[2])
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		if err := ExportLogEntries(&bytes.Buffer{}, entries, "xml"); err == nil {
			t.Error("expected error for unsupported format")
		}
	})
}
