package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/devxfer/devxfer/internal/progress"
	"github.com/devxfer/devxfer/internal/transfer"
)

// Report is the YAML document written by --report and read by --retry-report.
type Report struct {
	Device    string           `json:"device,omitempty"`
	Local     string           `json:"local,omitempty"`  // destination for pulls
	Remote    string           `json:"remote,omitempty"` // destination for pushes
	CreatedAt time.Time        `json:"createdAt"`
	Result    *transfer.Result `json:"result"`
}

var errNoFailedTasks = errors.New("report has no failed tasks")

// writeReport saves r as YAML, replacing path atomically.
func writeReport(path string, r *Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// readReport loads a report and checks that it belongs to direction and has
// something to retry.
func readReport(path string, direction transfer.Direction) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	if r.Result == nil {
		return nil, fmt.Errorf("report %s has no result", path)
	}
	if r.Result.Direction != direction {
		return nil, fmt.Errorf("report %s is for a %s, not a %s", path, r.Result.Direction, direction)
	}
	if len(r.Result.FailedTasks) == 0 {
		return nil, errNoFailedTasks
	}
	return &r, nil
}

// printSummary writes the closing lines of a run.
func printSummary(w io.Writer, result *transfer.Result) {
	s := result.Stats
	switch {
	case result.Cancelled:
		fmt.Fprintf(w, "\nCancelled: %d of %d files transferred", s.CompletedFiles, s.TotalFiles)
	case result.Success:
		fmt.Fprintf(w, "\nDone: %d files", s.CompletedFiles)
	default:
		fmt.Fprintf(w, "\nFinished with errors: %d transferred, %d failed of %d files", s.CompletedFiles, s.FailedFiles, s.TotalFiles)
	}
	fmt.Fprintf(w, ", %d directories, %s in %s\n", s.TotalDirectories, progress.FormatBytes(s.TransferredBytes), s.Duration.Round(time.Millisecond))

	for _, f := range result.FailedTasks {
		fmt.Fprintf(w, "  ✗ %s: %s\n", f.Item.RelativePath, f.Error)
	}
}
