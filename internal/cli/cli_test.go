package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/devxfer/devxfer/internal/transfer"
)

// runCLI executes the root command with an isolated config file. A later
// --config in args overrides it.
func runCLI(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	root := NewRootCmd()
	AddCommands(root)

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "devxfer.conf")}, args...))

	err = root.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

// newMountedDevice creates a device tree:
//
//	DCIM/a.jpg       4 bytes
//	DCIM/.nomedia    hidden
//	DCIM/sub/b.jpg   8 bytes
func newMountedDevice(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "DCIM", "a.jpg"), "aaaa")
	writeFile(t, filepath.Join(root, "DCIM", ".nomedia"), "")
	writeFile(t, filepath.Join(root, "DCIM", "sub", "b.jpg"), "bbbbbbbb")
	return root
}

func loadReport(t *testing.T, path string) *Report {
	t.Helper()
	var r Report
	if err := yaml.Unmarshal([]byte(readFile(t, path)), &r); err != nil {
		t.Fatalf("failed to parse report: %v", err)
	}
	if r.Result == nil {
		t.Fatal("report has no result")
	}
	return &r
}

func TestPull_MountedDevice(t *testing.T) {
	mount := newMountedDevice(t)
	dest := t.TempDir()
	reportPath := filepath.Join(t.TempDir(), "pull.yaml")

	_, stderr, err := runCLI(t, "", "pull", "--mount", mount, "/DCIM", "--to", dest, "--report", reportPath)
	if err != nil {
		t.Fatalf("pull failed: %v\n%s", err, stderr)
	}

	if got := readFile(t, filepath.Join(dest, "DCIM", "a.jpg")); got != "aaaa" {
		t.Errorf("a.jpg = %q", got)
	}
	if got := readFile(t, filepath.Join(dest, "DCIM", "sub", "b.jpg")); got != "bbbbbbbb" {
		t.Errorf("b.jpg = %q", got)
	}
	if _, err := os.Stat(filepath.Join(dest, "DCIM", ".nomedia")); err != nil {
		t.Errorf("hidden file should be copied by default: %v", err)
	}
	if !strings.Contains(stderr, "Done: 3 files") {
		t.Errorf("expected summary in output:\n%s", stderr)
	}

	r := loadReport(t, reportPath)
	if !r.Result.Success || r.Result.Direction != transfer.DirectionDownload {
		t.Errorf("unexpected report result: %+v", r.Result)
	}
	if r.Result.Stats.TotalFiles != 3 || r.Result.Stats.TotalBytes != 12 {
		t.Errorf("unexpected stats: %+v", r.Result.Stats)
	}
	if len(r.Result.TaskQueue) != 5 {
		t.Errorf("expected 5 tasks in report, got %d", len(r.Result.TaskQueue))
	}
}

func TestPull_ExcludeHidden(t *testing.T) {
	t.Setenv("DEVXFER_TRANSFER_EXCLUDE_HIDDEN", "true")

	mount := newMountedDevice(t)
	dest := t.TempDir()
	_, stderr, err := runCLI(t, "", "pull", "--mount", mount, "/DCIM", "--to", dest)
	if err != nil {
		t.Fatalf("pull failed: %v\n%s", err, stderr)
	}
	if _, err := os.Stat(filepath.Join(dest, "DCIM", ".nomedia")); !os.IsNotExist(err) {
		t.Error("hidden file should be skipped with exclude_hidden")
	}
	if !strings.Contains(stderr, "Done: 2 files") {
		t.Errorf("expected summary in output:\n%s", stderr)
	}
}

func TestPull_DebugLogsDiskSpace(t *testing.T) {
	mount := newMountedDevice(t)
	_, stderr, err := runCLI(t, "", "pull", "--debug", "--mount", mount, "/DCIM/a.jpg", "--to", t.TempDir())
	if err != nil {
		t.Fatalf("pull failed: %v\n%s", err, stderr)
	}
	for _, want := range []string{"Checking disk space", "available"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("debug output missing %q:\n%s", want, stderr)
		}
	}
}

func TestPull_MissingRemotePath(t *testing.T) {
	mount := newMountedDevice(t)
	_, _, err := runCLI(t, "", "pull", "--mount", mount, "/nope", "--to", t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing remote path")
	}
}

func TestPull_RequiresPath(t *testing.T) {
	_, _, err := runCLI(t, "", "pull", "--mount", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "remote path") {
		t.Errorf("expected missing path error, got %v", err)
	}
}

func TestPull_FailuresThenRetryReport(t *testing.T) {
	t.Setenv("DEVXFER_TRANSFER_RETRIES", "1")

	mount := newMountedDevice(t)
	dest := t.TempDir()
	reportPath := filepath.Join(t.TempDir(), "pull.yaml")

	// a regular file where the DCIM directory should go
	blocker := filepath.Join(dest, "DCIM")
	writeFile(t, blocker, "not a directory")

	_, stderr, err := runCLI(t, "", "pull", "--mount", mount, "/DCIM", "--to", dest, "--report", reportPath)
	if err == nil {
		t.Fatalf("expected failure\n%s", stderr)
	}
	if !strings.Contains(stderr, "--retry-report "+reportPath) {
		t.Errorf("expected retry hint in output:\n%s", stderr)
	}

	r := loadReport(t, reportPath)
	if r.Result.Success || len(r.Result.FailedTasks) == 0 {
		t.Fatalf("expected failed tasks in report: %+v", r.Result)
	}

	if err := os.Remove(blocker); err != nil {
		t.Fatal(err)
	}

	_, stderr, err = runCLI(t, "", "pull", "--mount", mount, "--retry-report", reportPath)
	if err != nil {
		t.Fatalf("retry failed: %v\n%s", err, stderr)
	}
	if got := readFile(t, filepath.Join(dest, "DCIM", "sub", "b.jpg")); got != "bbbbbbbb" {
		t.Errorf("b.jpg = %q", got)
	}
}

func TestPull_RetryReportWithNothingToRetry(t *testing.T) {
	reportPath := filepath.Join(t.TempDir(), "ok.yaml")
	rep := &Report{Local: t.TempDir(), Result: &transfer.Result{Direction: transfer.DirectionDownload, Success: true}}
	if err := writeReport(reportPath, rep); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := runCLI(t, "", "pull", "--mount", t.TempDir(), "--retry-report", reportPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "Nothing to retry") {
		t.Errorf("unexpected output: %s", stdout)
	}
}

func TestReadReport_DirectionMismatch(t *testing.T) {
	reportPath := filepath.Join(t.TempDir(), "push.yaml")
	rep := &Report{
		Remote: "/sdcard/Music",
		Result: &transfer.Result{
			Direction:   transfer.DirectionUpload,
			FailedTasks: []transfer.FailedTask{{Item: transfer.Item{Kind: transfer.KindFile, RelativePath: "a.mp3"}, Error: "boom"}},
		},
	}
	if err := writeReport(reportPath, rep); err != nil {
		t.Fatal(err)
	}

	if _, err := readReport(reportPath, transfer.DirectionDownload); err == nil {
		t.Error("expected direction mismatch error")
	}
	loaded, err := readReport(reportPath, transfer.DirectionUpload)
	if err != nil {
		t.Fatalf("readReport failed: %v", err)
	}
	if loaded.Remote != "/sdcard/Music" || loaded.Result.FailedTasks[0].Error != "boom" {
		t.Errorf("unexpected report: %+v", loaded)
	}
}

func TestPush_MountedDevice(t *testing.T) {
	mount := t.TempDir()
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "album", "01.mp3"), "one")
	writeFile(t, filepath.Join(src, "album", "02.mp3"), "two!")

	_, stderr, err := runCLI(t, "", "push", "--mount", mount, filepath.Join(src, "album"), "--to", "/Music")
	if err != nil {
		t.Fatalf("push failed: %v\n%s", err, stderr)
	}
	if got := readFile(t, filepath.Join(mount, "Music", "album", "02.mp3")); got != "two!" {
		t.Errorf("02.mp3 = %q", got)
	}
}

func TestPush_RequiresDestination(t *testing.T) {
	_, _, err := runCLI(t, "", "push", "--mount", t.TempDir(), t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "--to") {
		t.Errorf("expected --to error, got %v", err)
	}
}

func TestPush_MissingSource(t *testing.T) {
	_, _, err := runCLI(t, "", "push", "--mount", t.TempDir(), filepath.Join(t.TempDir(), "missing"), "--to", "/x")
	if err == nil {
		t.Error("expected error for missing local source")
	}
}

func TestPull_EventsMode(t *testing.T) {
	mount := newMountedDevice(t)
	stdout, _, err := runCLI(t, "", "pull", "--mount", mount, "/DCIM/a.jpg", "--to", t.TempDir(), "--events")
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if !strings.Contains(stdout, `"message":"run finished"`) {
		t.Errorf("expected run finished event on stdout:\n%s", stdout)
	}
}

func TestDevicesAndLs(t *testing.T) {
	mount := newMountedDevice(t)

	stdout, _, err := runCLI(t, "", "devices", "--mount", mount)
	if err != nil {
		t.Fatalf("devices failed: %v", err)
	}
	if !strings.Contains(stdout, "mount:"+mount) || !strings.Contains(stdout, "device") {
		t.Errorf("unexpected devices output:\n%s", stdout)
	}

	stdout, _, err = runCLI(t, "", "ls", "--mount", mount, "/DCIM")
	if err != nil {
		t.Fatalf("ls failed: %v", err)
	}
	for _, want := range []string{"a.jpg", "sub/", "3 entries"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("ls output missing %q:\n%s", want, stdout)
		}
	}
}

func TestPreview(t *testing.T) {
	mount := newMountedDevice(t)

	stdout, _, err := runCLI(t, "", "preview", "--mount", mount, "/DCIM")
	if err != nil {
		t.Fatalf("preview failed: %v", err)
	}
	if !strings.Contains(stdout, "3 files, 2 directories, 12 B") {
		t.Errorf("unexpected preview output:\n%s", stdout)
	}

	stdout, _, err = runCLI(t, "", "preview", "--mount", mount, "--yaml", "/DCIM")
	if err != nil {
		t.Fatalf("preview --yaml failed: %v", err)
	}
	var p transfer.Preview
	if err := yaml.Unmarshal([]byte(stdout), &p); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if p.TotalFiles != 3 || len(p.Tasks) != 5 || p.Tasks[0].RelativePath != "DCIM" {
		t.Errorf("unexpected preview: %+v", p)
	}

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "notes.txt"), "hello")
	stdout, _, err = runCLI(t, "", "preview", "--mount", mount, "--local", filepath.Join(src, "notes.txt"))
	if err != nil {
		t.Fatalf("preview --local failed: %v", err)
	}
	if !strings.Contains(stdout, "1 files, 0 directories, 5 B") {
		t.Errorf("unexpected local preview output:\n%s", stdout)
	}
}

type countingCanceller struct{ n atomic.Int32 }

func (c *countingCanceller) Cancel() { c.n.Add(1) }

func TestHandleSignals(t *testing.T) {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer func() { rootContext, cancelFunc = nil, nil }()

	c := &countingCanceller{}
	defer setActive(c)()

	sigs := make(chan os.Signal)
	var out bytes.Buffer
	done := make(chan struct{})
	go func() {
		handleSignals(sigs, &out)
		close(done)
	}()

	sigs <- os.Interrupt
	sigs <- os.Interrupt // delivered only after the first was handled
	close(sigs)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handleSignals did not return")
	}

	if n := c.n.Load(); n != 1 {
		t.Errorf("expected engine cancelled once, got %d", n)
	}
	if rootContext.Err() == nil {
		t.Error("second signal should cancel the root context")
	}
	if !strings.Contains(out.String(), "Press Ctrl+C again") {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestHandleSignals_NoActiveTransfer(t *testing.T) {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer func() { rootContext, cancelFunc = nil, nil }()

	sigs := make(chan os.Signal, 1)
	sigs <- os.Interrupt
	close(sigs)
	handleSignals(sigs, &bytes.Buffer{})

	if rootContext.Err() == nil {
		t.Error("signal without an active transfer should cancel the root context")
	}
}
