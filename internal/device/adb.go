package device

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/devxfer/devxfer/internal/constants"
	"github.com/devxfer/devxfer/internal/logging"
)

// statFormat is passed to the device's stat(1). The name comes last so that
// names containing the separator still parse.
const statFormat = "%F|%s|%Y|%n"

// AdbProvider lists and opens devices through the adb binary.
type AdbProvider struct {
	adbPath string
	logger  *logging.Logger
}

// NewAdbProvider creates a provider using the adb binary at adbPath
// ("adb" resolves through PATH).
func NewAdbProvider(adbPath string, logger *logging.Logger) *AdbProvider {
	if adbPath == "" {
		adbPath = "adb"
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &AdbProvider{adbPath: adbPath, logger: logger}
}

// Devices runs `adb devices -l`.
func (p *AdbProvider) Devices(ctx context.Context) ([]DeviceInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ADBCommandTimeout)
	defer cancel()

	out, err := p.run(ctx, nil, "devices", "-l")
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return parseDevices(out), nil
}

// Open resolves serial against the attached devices.
func (p *AdbProvider) Open(ctx context.Context, serial string) (Client, error) {
	devices, err := p.Devices(ctx)
	if err != nil {
		return nil, err
	}
	d, err := pickDevice(devices, serial)
	if err != nil {
		return nil, err
	}
	p.logger.Debug().Str("serial", d.Serial).Str("model", d.Model).Msg("Opened adb device")
	return &AdbClient{provider: p, serial: d.Serial}, nil
}

// run executes adb with args and returns stdout. stderr is folded into the error.
func (p *AdbProvider) run(ctx context.Context, stdin io.Reader, args ...string) ([]byte, error) {
	p.logger.Debug().Strs("args", args).Msg("adb")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.adbPath, args...)
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, commandError(err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// AdbClient talks to one device through adb.
type AdbClient struct {
	provider *AdbProvider
	serial   string
}

func (c *AdbClient) Serial() string { return c.serial }

// shell runs a command line in the device shell. adb joins its arguments
// with spaces, so the command is passed pre-quoted as a single argument.
func (c *AdbClient) shell(ctx context.Context, timeout time.Duration, command string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.provider.run(ctx, nil, "-s", c.serial, "shell", command)
}

// ReadDir lists dir with a single find/stat round trip. The trailing slash
// makes find descend into dir when dir itself is a symlink (/sdcard usually is).
// Symlinked children are reported as links and not followed.
func (c *AdbClient) ReadDir(ctx context.Context, dir string) ([]FileInfo, error) {
	command := fmt.Sprintf("find %s -mindepth 1 -maxdepth 1 -exec stat -c %s {} +",
		shellQuote(strings.TrimSuffix(dir, "/")+"/"), shellQuote(statFormat))
	out, err := c.shell(ctx, constants.ADBListTimeout, command)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var entries []FileInfo
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		info, err := parseStatLine(line)
		if err != nil {
			c.provider.logger.Debug().Str("line", line).Err(err).Msg("Skipping unparsable stat line")
			continue
		}
		entries = append(entries, info)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read listing of %s: %w", dir, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Stat returns metadata for p, following symlinks.
func (c *AdbClient) Stat(ctx context.Context, p string) (FileInfo, error) {
	command := fmt.Sprintf("stat -L -c %s %s", shellQuote(statFormat), shellQuote(p))
	out, err := c.shell(ctx, constants.ADBCommandTimeout, command)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to stat %s: %w", p, err)
	}
	info, err := parseStatLine(strings.TrimSpace(string(out)))
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to stat %s: %w", p, err)
	}
	info.Name = path.Base(p)
	return info, nil
}

// MkdirAll runs `mkdir -p` on the device.
func (c *AdbClient) MkdirAll(ctx context.Context, dir string) error {
	if _, err := c.shell(ctx, constants.ADBCommandTimeout, "mkdir -p "+shellQuote(dir)); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}

// Pull streams the file through `adb exec-out cat`. exec-out carries raw
// bytes, so remote stderr is discarded on the device side and the exit
// status is checked when the reader is closed.
func (c *AdbClient) Pull(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ADBTransferTimeout)

	args := []string{"-s", c.serial, "exec-out", "cat " + shellQuote(remotePath) + " 2>/dev/null"}
	c.provider.logger.Debug().Strs("args", args).Msg("adb")

	cmd := exec.CommandContext(ctx, c.provider.adbPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe for %s: %w", remotePath, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start adb pull of %s: %w", remotePath, err)
	}
	return &pullReader{ReadCloser: stdout, cmd: cmd, cancel: cancel, stderr: &stderr, path: remotePath}, nil
}

// Push feeds r into `adb exec-in "cat > path"`.
func (c *AdbClient) Push(ctx context.Context, remotePath string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, constants.ADBTransferTimeout)
	defer cancel()

	if _, err := c.provider.run(ctx, r, "-s", c.serial, "exec-in", "cat > "+shellQuote(remotePath)); err != nil {
		return fmt.Errorf("failed to push %s: %w", remotePath, err)
	}
	return nil
}

type pullReader struct {
	io.ReadCloser
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stderr *bytes.Buffer
	path   string
	eof    bool
	closed bool
}

func (r *pullReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if err == io.EOF {
		r.eof = true
	}
	return n, err
}

func (r *pullReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	defer r.cancel()

	if !r.eof {
		// Stopped early: kill adb rather than draining the rest of the file.
		r.cancel()
		_ = r.cmd.Wait()
		return nil
	}
	if err := r.cmd.Wait(); err != nil {
		return fmt.Errorf("adb pull of %s failed: %w", r.path, commandError(err, r.stderr.String()))
	}
	return nil
}

func commandError(err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, stderr)
}

// shellQuote wraps s in single quotes for the device shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// parseStatLine parses one line produced with statFormat.
func parseStatLine(line string) (FileInfo, error) {
	parts := strings.SplitN(line, "|", 4)
	if len(parts) != 4 {
		return FileInfo{}, fmt.Errorf("unexpected stat output %q", line)
	}
	size, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return FileInfo{}, fmt.Errorf("invalid size in %q: %w", line, err)
	}
	mtime, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return FileInfo{}, fmt.Errorf("invalid mtime in %q: %w", line, err)
	}

	info := FileInfo{
		Name:    path.Base(parts[3]),
		Size:    size,
		Mode:    fileTypeMode(parts[0]),
		ModTime: time.Unix(mtime, 0),
	}
	if info.IsDir() {
		info.Size = 0
	}
	return info, nil
}

// fileTypeMode maps stat's %F to a mode type.
func fileTypeMode(kind string) os.FileMode {
	switch kind {
	case "directory":
		return os.ModeDir
	case "regular file", "regular empty file":
		return 0
	case "symbolic link":
		return os.ModeSymlink
	default:
		return os.ModeIrregular
	}
}

// parseDevices parses the output of `adb devices -l`.
func parseDevices(out []byte) []DeviceInfo {
	var devices []DeviceInfo
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		d := DeviceInfo{Serial: fields[0], State: fields[1], Transport: "adb"}
		for _, f := range fields[2:] {
			key, value, ok := strings.Cut(f, ":")
			if !ok {
				continue
			}
			switch key {
			case "model":
				d.Model = value
			case "product":
				d.Product = value
			}
		}
		devices = append(devices, d)
	}
	return devices
}
