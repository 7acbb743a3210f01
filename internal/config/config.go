package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultEndpoint         = "ws://localhost:9090"
	DefaultChunkBytes       = 16384
	DefaultPacingFactor     = 0.8
	DefaultReceiveTimeout   = 2 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultMaxIdleTimeouts  = 15
	DefaultModel            = "small.en"
	DefaultTask             = "transcribe"
)

// Config is the full client configuration. Zero values are replaced by the
// defaults above when loaded through Load.
type Config struct {
	Endpoint  string            `yaml:"endpoint"`
	LogLevel  string            `yaml:"log_level"`
	Session   SessionSettings   `yaml:"session"`
	Stream    StreamSettings    `yaml:"stream"`
	Readiness ReadinessSettings `yaml:"readiness"`
	Output    OutputSettings    `yaml:"output"`

	// Sources lists the files that contributed to this config, in load order.
	Sources []string `yaml:"-"`
}

// SessionSettings is what goes into the configuration message sent to the
// server. An empty or "auto" Language means auto-detect.
type SessionSettings struct {
	Language string `yaml:"language"`
	Task     string `yaml:"task"`
	Model    string `yaml:"model"`
	UseVAD   *bool  `yaml:"use_vad"`
}

type StreamSettings struct {
	ChunkBytes       int           `yaml:"chunk_bytes"`
	PacingFactor     float64       `yaml:"pacing_factor"`
	ReceiveTimeout   time.Duration `yaml:"receive_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	MaxIdleTimeouts  int           `yaml:"max_idle_timeouts"`
	SendEndOfAudio   bool          `yaml:"send_end_of_audio"`
}

type ReadinessSettings struct {
	Wait     bool          `yaml:"wait"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// OutputSettings controls transcript files. Retention and MaxFiles of zero
// keep everything.
type OutputSettings struct {
	Dir           string        `yaml:"dir"`
	SRT           bool          `yaml:"srt"`
	Retention     time.Duration `yaml:"retention"`
	MaxFiles      int           `yaml:"max_files"`
	CleanInterval time.Duration `yaml:"clean_interval"`
}

// UseVADValue reports the VAD flag, defaulting to enabled.
func (s SessionSettings) UseVADValue() bool {
	if s.UseVAD == nil {
		return true
	}
	return *s.UseVAD
}

// Default returns a config populated with defaults only.
func Default() Config {
	var c Config
	applyDefaults(&c)
	return c
}

// Load reads configuration from path when given, otherwise from the
// WHISPERLIVE_CONFIG override or the workspace and user config files when
// present. Environment variables are applied last, then defaults.
func Load(path string) (Config, error) {
	var c Config

	if path == "" {
		path = os.Getenv("WHISPERLIVE_CONFIG")
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return c, err
		}
		if err := readFile(expanded, &c); err != nil {
			return c, err
		}
		c.Sources = append(c.Sources, expanded)
	} else {
		for _, candidate := range []func() (string, error){workspaceConfigPath, userConfigPath} {
			p, err := candidate()
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					continue
				}
				return c, err
			}
			if err := readFile(p, &c); err != nil {
				return c, err
			}
			c.Sources = append(c.Sources, p)
		}
	}

	if err := applyEnv(&c); err != nil {
		return c, err
	}
	applyDefaults(&c)
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate rejects settings the streaming client cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Endpoint) == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	switch c.Session.Task {
	case "transcribe", "translate":
	default:
		errs = append(errs, fmt.Errorf("task must be transcribe or translate, got %q", c.Session.Task))
	}
	if c.Stream.ChunkBytes <= 0 {
		errs = append(errs, fmt.Errorf("chunk_bytes must be positive, got %d", c.Stream.ChunkBytes))
	} else if c.Stream.ChunkBytes%4 != 0 {
		errs = append(errs, fmt.Errorf("chunk_bytes must be a multiple of 4 (float32 samples), got %d", c.Stream.ChunkBytes))
	}
	if c.Stream.PacingFactor <= 0 {
		errs = append(errs, fmt.Errorf("pacing_factor must be positive, got %v", c.Stream.PacingFactor))
	}
	if c.Stream.ReceiveTimeout <= 0 {
		errs = append(errs, fmt.Errorf("receive_timeout must be positive, got %v", c.Stream.ReceiveTimeout))
	}
	if c.Stream.HandshakeTimeout < 0 {
		errs = append(errs, fmt.Errorf("handshake_timeout must not be negative, got %v", c.Stream.HandshakeTimeout))
	}
	if c.Stream.MaxIdleTimeouts <= 0 {
		errs = append(errs, fmt.Errorf("max_idle_timeouts must be positive, got %d", c.Stream.MaxIdleTimeouts))
	}
	if c.Output.Retention < 0 || c.Output.MaxFiles < 0 {
		errs = append(errs, errors.New("output retention and max_files must not be negative"))
	}
	return errors.Join(errs...)
}

func applyDefaults(c *Config) {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Session.Task == "" {
		c.Session.Task = DefaultTask
	}
	if c.Session.Model == "" {
		c.Session.Model = DefaultModel
	}
	if c.Stream.ChunkBytes == 0 {
		c.Stream.ChunkBytes = DefaultChunkBytes
	}
	if c.Stream.PacingFactor == 0 {
		c.Stream.PacingFactor = DefaultPacingFactor
	}
	if c.Stream.ReceiveTimeout == 0 {
		c.Stream.ReceiveTimeout = DefaultReceiveTimeout
	}
	if c.Stream.HandshakeTimeout == 0 {
		c.Stream.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Stream.MaxIdleTimeouts == 0 {
		c.Stream.MaxIdleTimeouts = DefaultMaxIdleTimeouts
	}
	if c.Readiness.Interval == 0 {
		c.Readiness.Interval = 2 * time.Second
	}
	if c.Readiness.Timeout == 0 {
		c.Readiness.Timeout = 5 * time.Minute
	}
	if c.Output.CleanInterval == 0 {
		c.Output.CleanInterval = 10 * time.Minute
	}
}

// applyEnv overlays environment variables on top of file values.
func applyEnv(c *Config) error {
	var errs []error
	if v := strings.TrimSpace(os.Getenv("WHISPERLIVE_URL")); v != "" {
		c.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("WHISPER_LANGUAGE")); v != "" {
		c.Session.Language = v
	}
	if v := strings.TrimSpace(os.Getenv("WHISPER_TASK")); v != "" {
		c.Session.Task = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("WHISPER_MODEL")); v != "" {
		c.Session.Model = v
	}
	if v := os.Getenv("WHISPER_USE_VAD"); v != "" {
		b := parseBool(v)
		c.Session.UseVAD = &b
	}
	if v := os.Getenv("STREAM_CHUNK_BYTES"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.Stream.ChunkBytes = n
		} else {
			errs = append(errs, fmt.Errorf("STREAM_CHUNK_BYTES: %w", err))
		}
	}
	if v := os.Getenv("STREAM_PACING_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			c.Stream.PacingFactor = f
		} else {
			errs = append(errs, fmt.Errorf("STREAM_PACING_FACTOR: %w", err))
		}
	}
	if d, err := envMillis("STREAM_RECV_TIMEOUT_MS"); err != nil {
		errs = append(errs, err)
	} else if d > 0 {
		c.Stream.ReceiveTimeout = d
	}
	if d, err := envMillis("STREAM_HANDSHAKE_TIMEOUT_MS"); err != nil {
		errs = append(errs, err)
	} else if d > 0 {
		c.Stream.HandshakeTimeout = d
	}
	if v := os.Getenv("STREAM_MAX_IDLE_TIMEOUTS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.Stream.MaxIdleTimeouts = n
		} else {
			errs = append(errs, fmt.Errorf("STREAM_MAX_IDLE_TIMEOUTS: %w", err))
		}
	}
	if v := os.Getenv("STREAM_SEND_END_OF_AUDIO"); v != "" {
		c.Stream.SendEndOfAudio = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv("OUTPUT_DIR")); v != "" {
		expanded, err := expandPath(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("OUTPUT_DIR: %w", err))
		} else {
			c.Output.Dir = expanded
		}
	}
	if v := strings.TrimSpace(os.Getenv("OUTPUT_RETENTION")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Output.Retention = d
		} else {
			errs = append(errs, fmt.Errorf("OUTPUT_RETENTION: %w", err))
		}
	}
	if v := strings.TrimSpace(os.Getenv("OUTPUT_MAX_FILES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Output.MaxFiles = n
		} else {
			errs = append(errs, fmt.Errorf("OUTPUT_MAX_FILES: %w", err))
		}
	}
	return errors.Join(errs...)
}

func envMillis(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return time.Duration(n) * time.Millisecond, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func readFile(path string, c *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if c.Output.Dir != "" {
		if expanded, err := expandPath(c.Output.Dir); err == nil {
			c.Output.Dir = expanded
		}
	}
	return nil
}

func workspaceConfigPath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	path := filepath.Join(cwd, ".whisperlive-lab", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return path, err
	}
	return path, nil
}

func userConfigPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	path := filepath.Join(base, "whisperlive-lab", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return path, err
	}
	return path, nil
}

func expandPath(value string) (string, error) {
	if value == "" {
		return value, nil
	}
	value = os.ExpandEnv(value)
	if strings.HasPrefix(value, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return value, err
		}
		if value == "~" {
			return home, nil
		}
		if strings.HasPrefix(value, "~/") {
			return filepath.Join(home, value[2:]), nil
		}
		return filepath.Join(home, value[1:]), nil
	}
	return value, nil
}
