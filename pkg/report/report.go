// Package report converts a tracer.Snapshot into the JSON document the
// command line writes to its output-file argument, plus the informational
// end-of-run summary line printed to stderr.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"pstrace/pkg/tracer"
)

// process is the on-disk shape of one ProcessInfo entry.
type process struct {
	PID       int               `json:"pid"`
	ParentPID *int              `json:"parent_pid"`
	Command   []string          `json:"command"`
	Env       map[string]string `json:"env"`
}

// Report is the on-disk shape of a full traced run: the standard
// process/file-access fields, plus a supplemental run_id.
type Report struct {
	RunID        string            `json:"run_id"`
	Processes    []process         `json:"processes"`
	OpenedFiles  []string          `json:"opened_files"`
	ReadFiles    []string          `json:"read_files"`
	WrittenFiles []string          `json:"written_files"`
	EnvAccessed  map[string]string `json:"env_accessed"`
	StartTime    float64           `json:"start_time"`
	EndTime      float64           `json:"end_time"`
}

// FromSnapshot converts a tracer.Snapshot into a Report, sorting the three
// path arrays for stable, diffable output. Callers should not rely on the
// order; sorting is a courtesy, not a guarantee.
func FromSnapshot(snap *tracer.Snapshot, runID uuid.UUID) *Report {
	env := snap.EnvAccessed
	if env == nil {
		env = map[string]string{}
	}
	r := &Report{
		RunID:        runID.String(),
		OpenedFiles:  sortedCopy(snap.Opened),
		ReadFiles:    sortedCopy(snap.Read),
		WrittenFiles: sortedCopy(snap.Written),
		EnvAccessed:  env,
		StartTime:    snap.StartTime,
		EndTime:      snap.EndTime,
		Processes:    []process{},
	}
	for _, p := range snap.Processes {
		r.Processes = append(r.Processes, process{
			PID:       p.PID,
			ParentPID: p.ParentPID,
			Command:   p.Argv,
			Env:       p.Env,
		})
	}
	return r
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	if out == nil {
		out = []string{}
	}
	return out
}

// WriteFile pretty-prints r as JSON to path.
func WriteFile(path string, r *Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: failed to create output file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("report: failed to write output file: %w", err)
	}
	return nil
}

// Summary formats the end-of-run informational line printed to stderr; it
// is never part of the JSON document. When out is a terminal the line is
// dimmed to set it apart from the traced command's own output.
func Summary(r *Report, out *os.File) string {
	duration := time.Duration((r.EndTime - r.StartTime) * float64(time.Second))
	line := fmt.Sprintf("traced %s processes, %s opened, %s read, %s written, in %s",
		humanize.Comma(int64(len(r.Processes))),
		humanize.Comma(int64(len(r.OpenedFiles))),
		humanize.Comma(int64(len(r.ReadFiles))),
		humanize.Comma(int64(len(r.WrittenFiles))),
		duration.Round(time.Millisecond),
	)

	if isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd()) {
		return "\x1b[2m" + line + "\x1b[0m"
	}
	return line
}
