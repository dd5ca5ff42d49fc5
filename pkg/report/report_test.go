package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"pstrace/pkg/tracer"
)

func sampleSnapshot() *tracer.Snapshot {
	parent := 100
	return &tracer.Snapshot{
		Processes: []tracer.ProcessInfo{
			{PID: 100, ParentPID: nil, Argv: []string{"sh", "-c", "echo hi"}, Env: map[string]string{"HOME": "/root"}},
			{PID: 101, ParentPID: &parent, Argv: []string{"echo", "hi"}, Env: map[string]string{}},
		},
		Opened:       []string{"/tmp/t1", "/etc/hostname"},
		Read:         []string{"/etc/hostname"},
		Written:      []string{"/tmp/t1"},
		EnvAccessed:  map[string]string{"HOME": "/root"},
		StartTime:    1000.0,
		EndTime:      1000.5,
		RootExitCode: 0,
	}
}

func TestFromSnapshotShapeAndOrdering(t *testing.T) {
	r := FromSnapshot(sampleSnapshot(), uuid.Nil)

	if r.RunID != uuid.Nil.String() {
		t.Errorf("unexpected run id %q", r.RunID)
	}
	if len(r.Processes) != 2 {
		t.Fatalf("expected 2 processes, got %d", len(r.Processes))
	}
	if r.OpenedFiles[0] != "/etc/hostname" || r.OpenedFiles[1] != "/tmp/t1" {
		t.Errorf("expected opened files sorted, got %v", r.OpenedFiles)
	}
	if r.Processes[1].ParentPID == nil || *r.Processes[1].ParentPID != 100 {
		t.Errorf("expected child process parent pid 100")
	}
	if r.Processes[0].ParentPID != nil {
		t.Errorf("expected root process to have a nil parent pid")
	}
}

func TestFromSnapshotEmptySetsAreNotNull(t *testing.T) {
	snap := &tracer.Snapshot{EnvAccessed: map[string]string{}}
	r := FromSnapshot(snap, uuid.Nil)

	raw, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, field := range []string{"opened_files", "read_files", "written_files"} {
		if decoded[field] == nil {
			t.Errorf("expected %q to serialize as [], got null", field)
		}
	}
}

func TestWriteFileRoundTrip(t *testing.T) {
	r := FromSnapshot(sampleSnapshot(), uuid.Nil)

	path := filepath.Join(t.TempDir(), "report.json")
	if err := WriteFile(path, r); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var decoded Report
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.RunID != r.RunID || len(decoded.Processes) != len(r.Processes) {
		t.Errorf("round-tripped report does not match original: %+v", decoded)
	}
}

func TestSummaryMentionsCounts(t *testing.T) {
	r := FromSnapshot(sampleSnapshot(), uuid.Nil)
	line := Summary(r, os.Stderr)
	if line == "" {
		t.Fatalf("expected a non-empty summary line")
	}
	if want := "traced 2 processes, 2 opened, 1 read, 1 written"; !strings.Contains(line, want) {
		t.Errorf("summary %q does not contain %q", line, want)
	}
}
