// ABOUTME: TOML configuration for the annotator daemon and terminal front end
// ABOUTME: Missing files yield defaults; durations are Go duration strings

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/nainya/textanchor/internal/logger"
	"github.com/nainya/textanchor/pkg/annotator"
	"github.com/nainya/textanchor/pkg/document"
	"github.com/nainya/textanchor/pkg/model"
)

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("config: invalid")

// Config is the full file layout
type Config struct {
	Log       LogConfig       `toml:"log"`
	Layout    LayoutConfig    `toml:"layout"`
	Selection SelectionConfig `toml:"selection"`
	Server    ServerConfig    `toml:"server"`
	Document  DocumentConfig  `toml:"document"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

type LayoutConfig struct {
	Columns    int     `toml:"columns"`
	CellWidth  float64 `toml:"cell_width"`
	LineHeight float64 `toml:"line_height"`
}

type SelectionConfig struct {
	ClickThreshold    string `toml:"click_threshold"`
	DebounceWindow    string `toml:"debounce_window"`
	SelectStartGrace  string `toml:"select_start_grace"`
	ContextLength     int    `toml:"context_length"`
	AnnotationEnabled bool   `toml:"annotation_enabled"`
}

type ServerConfig struct {
	Port        int `toml:"port"`
	MetricsPort int `toml:"metrics_port"`
}

type DocumentConfig struct {
	Path        string `toml:"path"`
	Source      string `toml:"source"` // IRI for exported targets, defaults to the path
	Format      string `toml:"format"` // text or html, guessed from the extension when empty
	Annotations string `toml:"annotations"`
	User        string `toml:"user"`
}

// ParseError reports a malformed config file
type ParseError struct {
	Path    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("config: parse %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Layout: LayoutConfig{
			Columns:    80,
			CellWidth:  1,
			LineHeight: 1,
		},
		Selection: SelectionConfig{
			ClickThreshold:    "300ms",
			DebounceWindow:    "20ms",
			SelectStartGrace:  "1s",
			AnnotationEnabled: true,
		},
		Server: ServerConfig{
			Port:        50051,
			MetricsPort: 9090,
		},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return parse(path, data, cfg)
}

// LoadFromReader reads a config from r over the defaults
func LoadFromReader(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Default(), fmt.Errorf("reading config: %w", err)
	}
	return parse("<reader>", data, Default())
}

func parse(source string, data []byte, cfg Config) (Config, error) {
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ParseError{Path: source, Message: err.Error(), Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", source, err)
	}
	return cfg, nil
}

// Validate checks ranges and duration syntax
func (c Config) Validate() error {
	if c.Layout.Columns <= 0 {
		return fmt.Errorf("%w: layout.columns must be positive, got %d", ErrInvalid, c.Layout.Columns)
	}
	if c.Layout.CellWidth <= 0 || c.Layout.LineHeight <= 0 {
		return fmt.Errorf("%w: layout cell size must be positive", ErrInvalid)
	}
	if c.Selection.ContextLength < 0 {
		return fmt.Errorf("%w: selection.context_length must not be negative", ErrInvalid)
	}
	for name, v := range map[string]string{
		"click_threshold":    c.Selection.ClickThreshold,
		"debounce_window":    c.Selection.DebounceWindow,
		"select_start_grace": c.Selection.SelectStartGrace,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: selection.%s: %v", ErrInvalid, name, err)
		}
		if d < 0 {
			return fmt.Errorf("%w: selection.%s must not be negative", ErrInvalid, name)
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 || c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("%w: ports must be in 0-65535", ErrInvalid)
	}
	switch c.Document.Format {
	case "", document.FORMAT_TEXT, document.FORMAT_HTML:
	default:
		return fmt.Errorf("%w: document.format %q", ErrInvalid, c.Document.Format)
	}
	return nil
}

// LoggerConfig maps the [log] section onto the logger
func (c Config) LoggerConfig() logger.Config {
	return logger.Config{Level: c.Log.Level, Pretty: c.Log.Pretty}
}

// AnnotatorOptions maps the layout and selection sections onto annotator
// options. Call Validate first; unparsable durations keep the defaults.
func (c Config) AnnotatorOptions() annotator.Options {
	opts := annotator.DefaultOptions()
	opts.Layout.Columns = c.Layout.Columns
	opts.Layout.CellWidth = c.Layout.CellWidth
	opts.Layout.LineHeight = c.Layout.LineHeight

	if d, err := time.ParseDuration(c.Selection.ClickThreshold); err == nil {
		opts.Gesture.ClickThreshold = d
	}
	if d, err := time.ParseDuration(c.Selection.DebounceWindow); err == nil {
		opts.Gesture.DebounceWindow = d
	}
	if d, err := time.ParseDuration(c.Selection.SelectStartGrace); err == nil {
		opts.Gesture.SelectStartGrace = d
	}
	opts.Gesture.ContextLength = c.Selection.ContextLength
	opts.Gesture.AnnotationEnabled = c.Selection.AnnotationEnabled

	opts.Source = c.Document.Source
	if opts.Source == "" {
		opts.Source = c.Document.Path
	}
	if c.Document.User != "" {
		opts.User = &model.User{ID: c.Document.User}
	}
	return opts
}
