package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/devxfer/devxfer/internal/device"
	"github.com/devxfer/devxfer/internal/localfs"
)

var errInjected = errors.New("injected failure")

var phoneModTime = time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeClock advances instantly on Sleep and records every wait.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// flakyClient is a mount client with injectable failures. A failing pull
// yields a few bytes and then an error, so partial output gets written.
// failOpen makes Pull itself fail before any byte is read.
type flakyClient struct {
	*device.MountClient

	mu          sync.Mutex
	failPull    map[string]int // remaining failures per remote path, -1 for always
	failOpen    map[string]int
	failPush    map[string]int
	failMkdir   map[string]bool
	failReadDir map[string]bool
	pulls       map[string]int
	pushes      map[string]int
}

func newFlakyClient(fs afero.Fs, root string) *flakyClient {
	return &flakyClient{
		MountClient: device.NewMountClient(fs, root, device.MountSerialPrefix+root),
		failPull:    make(map[string]int),
		failOpen:    make(map[string]int),
		failPush:    make(map[string]int),
		failMkdir:   make(map[string]bool),
		failReadDir: make(map[string]bool),
		pulls:       make(map[string]int),
		pushes:      make(map[string]int),
	}
}

func (c *flakyClient) shouldFail(failures map[string]int, p string) bool {
	n := failures[p]
	if n == 0 {
		return false
	}
	if n > 0 {
		failures[p] = n - 1
	}
	return true
}

func (c *flakyClient) Pull(ctx context.Context, p string) (io.ReadCloser, error) {
	c.mu.Lock()
	c.pulls[p]++
	failOpen := c.shouldFail(c.failOpen, p)
	fail := !failOpen && c.shouldFail(c.failPull, p)
	c.mu.Unlock()
	if failOpen {
		return nil, fmt.Errorf("pull %s: %w", p, errInjected)
	}
	if fail {
		return io.NopCloser(io.MultiReader(strings.NewReader("xxxxx"), errorReader{})), nil
	}
	return c.MountClient.Pull(ctx, p)
}

func (c *flakyClient) Push(ctx context.Context, p string, r io.Reader) error {
	c.mu.Lock()
	c.pushes[p]++
	fail := c.shouldFail(c.failPush, p)
	c.mu.Unlock()
	if fail {
		return fmt.Errorf("push %s: %w", p, errInjected)
	}
	return c.MountClient.Push(ctx, p, r)
}

func (c *flakyClient) MkdirAll(ctx context.Context, dir string) error {
	c.mu.Lock()
	fail := c.failMkdir[dir]
	c.mu.Unlock()
	if fail {
		return fmt.Errorf("mkdir %s: %w", dir, errInjected)
	}
	return c.MountClient.MkdirAll(ctx, dir)
}

func (c *flakyClient) ReadDir(ctx context.Context, dir string) ([]device.FileInfo, error) {
	c.mu.Lock()
	fail := c.failReadDir[dir]
	c.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("list %s: %w", dir, errInjected)
	}
	return c.MountClient.ReadDir(ctx, dir)
}

func (c *flakyClient) Pulls(p string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pulls[p]
}

func (c *flakyClient) Pushes(p string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pushes[p]
}

type errorReader struct{}

func (errorReader) Read([]byte) (int, error) { return 0, errInjected }

// fakeProvider hands out one client.
type fakeProvider struct {
	client device.Client
	err    error

	mu    sync.Mutex
	opens int
}

func (p *fakeProvider) Devices(ctx context.Context) ([]device.DeviceInfo, error) {
	return []device.DeviceInfo{{Serial: p.client.Serial(), State: device.StateReady, Transport: "mount"}}, nil
}

func (p *fakeProvider) Open(ctx context.Context, serial string) (device.Client, error) {
	p.mu.Lock()
	p.opens++
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return p.client, nil
}

func (p *fakeProvider) Opens() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens
}

type itemCompletion struct {
	Path string
	OK   bool
}

type retryCall struct {
	Path    string
	Attempt int
	Delay   time.Duration
}

// recordingSink records every notification it receives.
type recordingSink struct {
	mu        sync.Mutex
	progress  []ProgressSnapshot
	started   []string
	completed []itemCompletion
	errors    []string
	cancels   int
	scans     []ScanProgress
	retries   []retryCall
	runStarts []string
	finished  []*Result
}

func (s *recordingSink) OnProgress(p ProgressSnapshot) {
	s.mu.Lock()
	s.progress = append(s.progress, p)
	s.mu.Unlock()
}

func (s *recordingSink) OnItemStart(item Item, stats Stats) {
	s.mu.Lock()
	s.started = append(s.started, item.RelativePath)
	s.mu.Unlock()
}

func (s *recordingSink) OnItemComplete(item Item, ok bool, stats Stats) {
	s.mu.Lock()
	s.completed = append(s.completed, itemCompletion{Path: item.RelativePath, OK: ok})
	s.mu.Unlock()
}

func (s *recordingSink) OnError(err error, path string) {
	s.mu.Lock()
	s.errors = append(s.errors, path)
	s.mu.Unlock()
}

func (s *recordingSink) OnCancel() {
	s.mu.Lock()
	s.cancels++
	s.mu.Unlock()
}

func (s *recordingSink) OnScanProgress(p ScanProgress) {
	s.mu.Lock()
	s.scans = append(s.scans, p)
	s.mu.Unlock()
}

func (s *recordingSink) OnRetry(item Item, attempt int, err error, delay time.Duration) {
	s.mu.Lock()
	s.retries = append(s.retries, retryCall{Path: item.RelativePath, Attempt: attempt, Delay: delay})
	s.mu.Unlock()
}

func (s *recordingSink) OnRunStart(runID string, direction Direction) {
	s.mu.Lock()
	s.runStarts = append(s.runStarts, runID)
	s.mu.Unlock()
}

func (s *recordingSink) OnRunFinished(result *Result) {
	s.mu.Lock()
	s.finished = append(s.finished, result)
	s.mu.Unlock()
}

func (s *recordingSink) lastProgress() ProgressSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.progress) == 0 {
		return ProgressSnapshot{}
	}
	return s.progress[len(s.progress)-1]
}

// newPhone builds a device tree below /phone:
//
//	/sdcard/Docs/a.txt        10 bytes
//	/sdcard/Docs/b.txt        20 bytes
//	/sdcard/DCIM/.thumbs      3 bytes, hidden
//	/sdcard/DCIM/img1.jpg     8 bytes
//	/sdcard/DCIM/sub/img2.jpg 4 bytes
//	/sdcard/Empty/
func newPhone(t *testing.T) (afero.Fs, *flakyClient) {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/phone/sdcard/Docs/a.txt":        "0123456789",
		"/phone/sdcard/Docs/b.txt":        "abcdefghijklmnopqrst",
		"/phone/sdcard/DCIM/.thumbs":      "xyz",
		"/phone/sdcard/DCIM/img1.jpg":     "JPEGDATA",
		"/phone/sdcard/DCIM/sub/img2.jpg": "IMG2",
	}
	for p, content := range files {
		require.NoError(t, afero.WriteFile(fs, p, []byte(content), 0o644))
		require.NoError(t, fs.Chtimes(p, phoneModTime, phoneModTime))
	}
	require.NoError(t, fs.MkdirAll("/phone/sdcard/Empty", 0o755))
	return fs, newFlakyClient(fs, "/phone")
}

func newLocal() *localfs.FS {
	return localfs.New(afero.NewMemMapFs())
}

func readLocal(t *testing.T, local *localfs.FS, p string) string {
	t.Helper()
	data, err := afero.ReadFile(local.Afero(), p)
	require.NoError(t, err)
	return string(data)
}

func relPaths(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.RelativePath
	}
	return out
}
