// Package config provides configuration management for devxfer.
//
// Settings come from four layers, lowest first: built-in defaults, the INI
// file, DEVXFER_* environment variables and command-line flags.
//
// INI format:
//
//	[transfer]
//	retries = 3
//	retry_base_delay = 1s
//	concurrency = 1
//	exclude_hidden = false
//	check_disk_space = true
//
//	[device]
//	adb_path = adb
//	serial =
//	mount_root =
//
//	[logging]
//	level = info
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/ini.v1"

	"github.com/devxfer/devxfer/internal/constants"
)

// EnvPrefix prefixes environment overrides, e.g. DEVXFER_TRANSFER_RETRIES.
const EnvPrefix = "DEVXFER"

// Keys, as "section.key".
const (
	KeyRetries        = "transfer.retries"
	KeyRetryBaseDelay = "transfer.retry_base_delay"
	KeyConcurrency    = "transfer.concurrency"
	KeyExcludeHidden  = "transfer.exclude_hidden"
	KeyCheckDiskSpace = "transfer.check_disk_space"
	KeyAdbPath        = "device.adb_path"
	KeySerial         = "device.serial"
	KeyMountRoot      = "device.mount_root"
	KeyLogLevel       = "logging.level"
)

var sections = []string{"transfer", "device", "logging"}

// Validation errors
var (
	ErrInvalidRetries     = fmt.Errorf("retries must be between 1 and %d", constants.MaxRetries)
	ErrInvalidConcurrency = fmt.Errorf("concurrency must be between 1 and %d", constants.MaxConcurrency)
	ErrInvalidRetryDelay  = errors.New("retry_base_delay cannot be negative")
	ErrInvalidLogLevel    = errors.New("level must be one of debug, info, warn, error")
)

// Config is the effective configuration.
type Config struct {
	Transfer TransferConfig
	Device   DeviceConfig
	Logging  LoggingConfig

	// Path is the file the settings were read from, empty if none was found.
	Path string
}

// TransferConfig holds engine settings.
type TransferConfig struct {
	Retries        int
	RetryBaseDelay time.Duration
	Concurrency    int
	ExcludeHidden  bool
	CheckDiskSpace bool
}

// DeviceConfig selects how devices are reached.
type DeviceConfig struct {
	AdbPath string
	Serial  string

	// MountRoot, when set, treats this directory as the device instead of using adb.
	MountRoot string
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Transfer: TransferConfig{
			Retries:        constants.DefaultRetries,
			RetryBaseDelay: constants.RetryBaseDelay,
			Concurrency:    constants.DefaultConcurrency,
			CheckDiskSpace: true,
		},
		Device: DeviceConfig{
			AdbPath: "adb",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Loader layers the config sources with viper.
type Loader struct {
	v    *viper.Viper
	path string
}

// NewLoader creates a loader reading path. An empty path uses DefaultPath.
func NewLoader(path string) *Loader {
	v := viper.New()
	d := Default()
	v.SetDefault(KeyRetries, d.Transfer.Retries)
	v.SetDefault(KeyRetryBaseDelay, d.Transfer.RetryBaseDelay)
	v.SetDefault(KeyConcurrency, d.Transfer.Concurrency)
	v.SetDefault(KeyExcludeHidden, d.Transfer.ExcludeHidden)
	v.SetDefault(KeyCheckDiskSpace, d.Transfer.CheckDiskSpace)
	v.SetDefault(KeyAdbPath, d.Device.AdbPath)
	v.SetDefault(KeySerial, d.Device.Serial)
	v.SetDefault(KeyMountRoot, d.Device.MountRoot)
	v.SetDefault(KeyLogLevel, d.Logging.Level)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, path: path}
}

// BindFlag makes flag override key when it was set on the command line.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag for %s", key)
	}
	return l.v.BindPFlag(key, flag)
}

// Path returns the file Load reads, resolving the default location.
func (l *Loader) Path() string {
	if l.path != "" {
		return l.path
	}
	p, err := DefaultPath()
	if err != nil {
		return ""
	}
	return p
}

// Load reads the INI file, if present, and returns the validated result.
// A missing file is not an error.
func (l *Loader) Load() (*Config, error) {
	path := l.Path()
	found := false
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			iniFile, err := ini.Load(path)
			if err != nil {
				return nil, fmt.Errorf("failed to load config %s: %w", path, err)
			}
			if err := l.v.MergeConfigMap(iniToMap(iniFile)); err != nil {
				return nil, fmt.Errorf("failed to merge config %s: %w", path, err)
			}
			found = true
		}
	}

	cfg := &Config{
		Transfer: TransferConfig{
			Retries:        l.v.GetInt(KeyRetries),
			RetryBaseDelay: l.v.GetDuration(KeyRetryBaseDelay),
			Concurrency:    l.v.GetInt(KeyConcurrency),
			ExcludeHidden:  l.v.GetBool(KeyExcludeHidden),
			CheckDiskSpace: l.v.GetBool(KeyCheckDiskSpace),
		},
		Device: DeviceConfig{
			AdbPath:   l.v.GetString(KeyAdbPath),
			Serial:    l.v.GetString(KeySerial),
			MountRoot: l.v.GetString(KeyMountRoot),
		},
		Logging: LoggingConfig{
			Level: strings.ToLower(l.v.GetString(KeyLogLevel)),
		},
	}
	if found {
		cfg.Path = path
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// iniToMap nests the known sections for viper. Unknown sections are ignored.
func iniToMap(f *ini.File) map[string]any {
	out := make(map[string]any)
	for _, name := range sections {
		if !f.HasSection(name) {
			continue
		}
		values := make(map[string]any)
		for _, k := range f.Section(name).Keys() {
			values[k.Name()] = k.Value()
		}
		out[name] = values
	}
	return out
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Transfer.Retries < 1 || c.Transfer.Retries > constants.MaxRetries {
		return ErrInvalidRetries
	}
	if c.Transfer.Concurrency < 1 || c.Transfer.Concurrency > constants.MaxConcurrency {
		return ErrInvalidConcurrency
	}
	if c.Transfer.RetryBaseDelay < 0 {
		return ErrInvalidRetryDelay
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	return nil
}

func (c *Config) toINI() (*ini.File, error) {
	f := ini.Empty()

	transfer, err := f.NewSection("transfer")
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer section: %w", err)
	}
	transfer.Key("retries").SetValue(fmt.Sprintf("%d", c.Transfer.Retries))
	transfer.Key("retry_base_delay").SetValue(c.Transfer.RetryBaseDelay.String())
	transfer.Key("concurrency").SetValue(fmt.Sprintf("%d", c.Transfer.Concurrency))
	transfer.Key("exclude_hidden").SetValue(fmt.Sprintf("%t", c.Transfer.ExcludeHidden))
	transfer.Key("check_disk_space").SetValue(fmt.Sprintf("%t", c.Transfer.CheckDiskSpace))

	device, err := f.NewSection("device")
	if err != nil {
		return nil, fmt.Errorf("failed to create device section: %w", err)
	}
	device.Key("adb_path").SetValue(c.Device.AdbPath)
	device.Key("serial").SetValue(c.Device.Serial)
	device.Key("mount_root").SetValue(c.Device.MountRoot)

	logging, err := f.NewSection("logging")
	if err != nil {
		return nil, fmt.Errorf("failed to create logging section: %w", err)
	}
	logging.Key("level").SetValue(c.Logging.Level)

	return f, nil
}

// WriteTo writes the configuration in INI form.
func (c *Config) WriteTo(w io.Writer) (int64, error) {
	f, err := c.toINI()
	if err != nil {
		return 0, err
	}
	return f.WriteTo(w)
}

// Save writes the configuration to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := cfg.toINI()
	if err != nil {
		return err
	}

	// Temporary file + rename so a crash never leaves a truncated config
	tmpPath := path + ".tmp"
	if err := f.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}
