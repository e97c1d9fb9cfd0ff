// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package config loads the configuration file of the vush binary.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/diff"
	diffwrite "github.com/pkg/diff/write"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultData []byte

// EnvPath is the environment variable which overrides [DefaultPath].
const EnvPath = "VUSH_CONFIG"

type Config struct {
	Prompt      string `yaml:"prompt" validate:"required"`
	HistoryFile string `yaml:"history_file"`
	Color       string `yaml:"color" validate:"oneof=auto always never"`
	LogLevel    string `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// Default returns the configuration used when there is no file.
func Default() *Config {
	c, err := decode(bytes.NewReader(defaultData))
	if err != nil {
		panic(err) // the embedded file is always valid
	}
	return c
}

// DefaultPath returns $VUSH_CONFIG if set, and otherwise the vush/config.yaml
// file under the user's configuration directory, such as $XDG_CONFIG_HOME.
func DefaultPath() (string, error) {
	if path := os.Getenv(EnvPath); path != "" {
		return path, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "vush", "config.yaml"), nil
}

// Load reads and validates the configuration file at path. Fields missing
// from the file keep their default values, and a missing file results in the
// default configuration.
func Load(fsys afero.Fs, path string) (*Config, error) {
	f, err := fsys.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := decodeOver(Default(), f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func decode(r io.Reader) (*Config, error) {
	return decodeOver(&Config{}, r)
}

func decodeOver(c *Config, r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return nil, err
	}
	return c, nil
}

// Validate the configuration for basic semantic errors.
func (c *Config) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
	})
	return validate.Struct(c)
}

// Level returns the minimum level of log records.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelWarn
	}
	return level
}

// UseColor reports whether output should be colored, given whether it goes
// to a terminal.
func (c *Config) UseColor(terminal bool) bool {
	switch c.Color {
	case "always":
		return true
	case "never":
		return false
	}
	return terminal
}

// HistoryPath returns the history file with a leading "~/" replaced by home.
// An empty string means that no history should be kept.
func (c *Config) HistoryPath(home string) string {
	if rest, ok := strings.CutPrefix(c.HistoryFile, "~/"); ok && home != "" {
		return filepath.Join(home, rest)
	}
	return c.HistoryFile
}

// ErrExists is returned by [WriteDefault] when the file already exists.
var ErrExists = errors.New("configuration file already exists")

// WriteDefault atomically writes the default configuration to path, creating
// its directory if needed. An existing file is not replaced.
func WriteDefault(path string) error {
	if _, err := os.Lstat(path); err == nil {
		return fmt.Errorf("%s: %w", path, ErrExists)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeFile(path, defaultData, 0o644)
}

// DiffDefault writes to w the differences between the file at path and the
// default configuration, in unified diff format. Nothing is written if they
// are equal.
func DiffDefault(w io.Writer, fsys afero.Fs, path string, color bool) error {
	src, err := afero.ReadFile(fsys, path)
	if err != nil {
		return err
	}
	if bytes.Equal(src, defaultData) {
		return nil
	}
	var opts []diffwrite.Option
	if color {
		opts = append(opts, diffwrite.TerminalColor())
	}
	if err := diff.Text(path, "default", src, defaultData, w, opts...); err != nil {
		return fmt.Errorf("computing diff: %s", err)
	}
	return nil
}
