package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"vigil/internal/diagnostics"
	"vigil/internal/parser"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Rule reports every node a tree-sitter query captures as @match.
type Rule struct {
	ID       string `json:"id"       toml:"id"       yaml:"id"`
	Language string `json:"language" toml:"language" yaml:"language"`
	Query    string `json:"query"    toml:"query"    yaml:"query"`
	Message  string `json:"message"  toml:"message"  yaml:"message"`
	Severity string `json:"severity" toml:"severity" yaml:"severity"`
}

type Config struct {
	Languages      []string          `json:"languages"       toml:"languages"       yaml:"languages"`
	Debounce       Duration          `json:"debounce"        toml:"debounce"        yaml:"debounce"`
	Owner          string            `json:"owner"           toml:"owner"           yaml:"owner"`
	MaxDiagnostics int               `json:"max_diagnostics" toml:"max_diagnostics" yaml:"max_diagnostics"`
	CachePath      string            `json:"cache_path"      toml:"cache_path"      yaml:"cache_path"`
	CacheTTL       Duration          `json:"cache_ttl"       toml:"cache_ttl"       yaml:"cache_ttl"`
	Rules          []Rule            `json:"rules"           toml:"rules"           yaml:"rules"`
	Include        []string          `json:"include"         toml:"include"         yaml:"include"`
	Exclude        []string          `json:"exclude"         toml:"exclude"         yaml:"exclude"`
	Extensions     map[string]string `json:"extensions"      toml:"extensions"      yaml:"extensions"`
}

var defaultConfig = Config{
	Languages:      []string{diagnostics.Wildcard},
	Debounce:       Duration(diagnostics.DefaultDebounce),
	Owner:          "vigil",
	MaxDiagnostics: 100,
	CacheTTL:       Duration(24 * time.Hour),
	Include:        []string{"**/*"},
	Exclude:        []string{"**/.git/**", "**/node_modules/**", "**/vendor/**"},
}

// Default returns a copy of the built-in configuration.
func Default() Config {
	return defaultConfig.clone()
}

// clone copies c so that decoding into the copy leaves c untouched.
func (c Config) clone() Config {
	c.Languages = slices.Clone(c.Languages)
	c.Rules = slices.Clone(c.Rules)
	c.Include = slices.Clone(c.Include)
	c.Exclude = slices.Clone(c.Exclude)
	c.Extensions = maps.Clone(c.Extensions)
	return c
}

// Selector returns the language selector the configuration describes.
func (c Config) Selector() diagnostics.Selector {
	return diagnostics.ParseSelector(c.Languages)
}

// Load overlays v, typically LSP initializationOptions, on the defaults.
func Load(v any) (Config, error) {
	return Merge(Default(), v)
}

// Merge overlays v on base. Fields absent from v keep their base value.
func Merge(base Config, v any) (Config, error) {
	cfg := base.clone()
	if v == nil {
		return cfg, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return Config{}, fmt.Errorf("failed to marshal source: %w", err)
	}

	// only fields present in src will overwrite.
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal into Config: %w", err)
	}

	return cfg, nil
}

// LoadFromJSON reads JSON from r into a Config.
func LoadFromJSON(r io.Reader) (Config, error) {
	cfg := Default()

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFile reads a TOML, YAML or JSON file, chosen by extension.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("unknown keys in %s: %v", path, undecoded)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".json":
		cfg, err = LoadFromJSON(bytes.NewReader(data))
		if err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config format %q", ext)
	}
	return cfg, nil
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	if c.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("debounce must be positive, got %s", c.Debounce))
	}
	if c.Owner == "" {
		errs = append(errs, errors.New("owner must not be empty"))
	}
	if c.MaxDiagnostics < 0 {
		errs = append(errs, fmt.Errorf("max_diagnostics must not be negative, got %d", c.MaxDiagnostics))
	}
	for i, r := range c.Rules {
		name := r.ID
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		if _, ok := parser.Lookup(r.Language); !ok {
			errs = append(errs, fmt.Errorf("rule %s: unsupported language %q", name, r.Language))
		}
		if strings.TrimSpace(r.Query) == "" {
			errs = append(errs, fmt.Errorf("rule %s: query is empty", name))
		}
		if r.Message == "" {
			errs = append(errs, fmt.Errorf("rule %s: message is empty", name))
		}
		switch r.Severity {
		case "", "error", "warning", "warn", "info", "information", "hint":
		default:
			errs = append(errs, fmt.Errorf("rule %s: unknown severity %q", name, r.Severity))
		}
	}
	for _, pattern := range append(append([]string(nil), c.Include...), c.Exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Errorf("invalid glob %q", pattern))
		}
	}
	for ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Errorf("extension %q must start with a dot", ext))
		}
	}
	return errors.Join(errs...)
}

// Duration reads "500ms" style strings, or plain numbers as milliseconds.
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText accepts a Go duration string or a bare number of milliseconds.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Duration(time.Duration(ms * float64(time.Millisecond)))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var ms float64
	if err := json.Unmarshal(data, &ms); err == nil {
		*d = Duration(time.Duration(ms * float64(time.Millisecond)))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string or number: %w", err)
	}
	return d.UnmarshalText([]byte(s))
}
