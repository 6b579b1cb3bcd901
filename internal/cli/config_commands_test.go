package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devxfer/devxfer/internal/config"
)

func TestConfigInit_Interactive(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "devxfer.conf")
	answers := strings.Join([]string{
		"5",    // attempts
		"99",   // out of range, asked again
		"2",    // parallel
		"y",    // skip hidden
		"n",    // disk space check
		"",     // adb path: keep default
		"ABC1", // serial
		"",     // mount root
	}, "\n") + "\n"

	stdout, _, err := runCLI(t, answers, "config", "init", "--config", configPath)
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(stdout, "Enter a number between 1 and 8") {
		t.Errorf("expected range hint:\n%s", stdout)
	}

	cfg, err := config.NewLoader(configPath).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Transfer.Retries != 5 || cfg.Transfer.Concurrency != 2 {
		t.Errorf("unexpected transfer settings: %+v", cfg.Transfer)
	}
	if !cfg.Transfer.ExcludeHidden || cfg.Transfer.CheckDiskSpace {
		t.Errorf("unexpected flags: %+v", cfg.Transfer)
	}
	if cfg.Device.AdbPath != "adb" || cfg.Device.Serial != "ABC1" || cfg.Device.MountRoot != "" {
		t.Errorf("unexpected device settings: %+v", cfg.Device)
	}
}

func TestConfigInit_ExistingFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "devxfer.conf")
	if _, _, err := runCLI(t, "", "config", "init", "--defaults", "--config", configPath); err != nil {
		t.Fatalf("config init failed: %v", err)
	}

	stdout, _, err := runCLI(t, "", "config", "init", "--defaults", "--config", configPath)
	if err != nil {
		t.Fatalf("second config init failed: %v", err)
	}
	if !strings.Contains(stdout, "already exists") {
		t.Errorf("expected existing-config notice:\n%s", stdout)
	}

	if _, _, err := runCLI(t, "", "config", "init", "--defaults", "--force", "--config", configPath); err != nil {
		t.Fatalf("forced config init failed: %v", err)
	}
}

func TestConfigShow(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "devxfer.conf")
	c := config.Default()
	c.Device.Serial = "from-file"
	if err := config.Save(c, configPath); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := runCLI(t, "", "config", "show", "--config", configPath, "--concurrency", "4")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(stdout, "# Loaded from "+configPath) {
		t.Errorf("expected source line:\n%s", stdout)
	}

	for _, want := range []string{"from-file", "= 4"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
}

func TestConfigShow_InvalidFlag(t *testing.T) {
	_, _, err := runCLI(t, "", "config", "show", "--retries", "50")
	if err != config.ErrInvalidRetries {
		t.Errorf("expected ErrInvalidRetries, got %v", err)
	}
}

func TestConfigPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "custom.conf")
	stdout, _, err := runCLI(t, "", "config", "path", "--config", configPath)
	if err != nil {
		t.Fatalf("config path failed: %v", err)
	}
	if strings.TrimSpace(stdout) != configPath {
		t.Errorf("expected %s, got %s", configPath, stdout)
	}
}

func TestPrompter(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader("maybe\nyes\n\n"), &out)

	yes, err := p.YesNo("Continue", false)
	if err != nil || !yes {
		t.Errorf("YesNo = %v, %v; want true", yes, err)
	}
	if !strings.Contains(out.String(), "Please answer y or n") {
		t.Errorf("expected re-prompt, got %q", out.String())
	}

	s, err := p.String("Name", "default")
	if err != nil || s != "default" {
		t.Errorf("String = %q, %v; want default", s, err)
	}

	// EOF keeps the default
	n, err := p.Int("Count", 3, 1, 10)
	if err != nil || n != 3 {
		t.Errorf("Int at EOF = %d, %v; want 3", n, err)
	}
}
