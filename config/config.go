// Package config loads the YAML configuration of the tagpdf host.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/language"

	"github.com/wudi/tagpdf/builder"
	"github.com/wudi/tagpdf/internal/yamlutil"
	"github.com/wudi/tagpdf/ir/semantic"
	"github.com/wudi/tagpdf/layout"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrConfigParse    = errors.New("failed to parse config")
	ErrInvalidConfig  = errors.New("invalid config")
)

type Config struct {
	Assets   AssetsConfig   `yaml:"assets"`
	Document DocumentConfig `yaml:"document"`
	Library  LibraryConfig  `yaml:"library"`
	Spool    SpoolConfig    `yaml:"spool"`
	Log      LogConfig      `yaml:"log"`
}

type AssetsConfig struct {
	Root string `yaml:"root"`
}

type DocumentConfig struct {
	Language string  `yaml:"language"`
	Creator  string  `yaml:"creator"`
	PageSize string  `yaml:"pageSize"`
	Margins  Margins `yaml:"margins"`
	FontSize float64 `yaml:"fontSize"`
}

// Margins are in points.
type Margins struct {
	Top    float64 `yaml:"top"`
	Bottom float64 `yaml:"bottom"`
	Left   float64 `yaml:"left"`
	Right  float64 `yaml:"right"`
}

type LibraryConfig struct {
	Root string `yaml:"root"`
}

type SpoolConfig struct {
	Dir         string `yaml:"dir"`
	Concurrency int    `yaml:"concurrency"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

var pageSizes = map[string]semantic.Rectangle{
	"a4":     builder.A4,
	"letter": builder.Letter,
	"legal":  builder.Legal,
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Assets: AssetsConfig{Root: "assets"},
		Document: DocumentConfig{
			Language: "en-GB",
			Creator:  "tagpdf",
			PageSize: "a4",
			Margins:  Margins{Top: 36, Bottom: 36, Left: 36, Right: 36},
			FontSize: 12,
		},
		Library: LibraryConfig{Root: "library"},
		Spool:   SpoolConfig{Dir: "spool", Concurrency: 1},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path. An empty path yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults, so omitted keys keep their
// default values. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := yamlutil.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Assets.Root) == "" {
		return fmt.Errorf("%w: assets.root: required", ErrInvalidConfig)
	}
	if _, err := language.Parse(c.Document.Language); err != nil {
		return fmt.Errorf("%w: document.language: %q is not a BCP 47 tag", ErrInvalidConfig, c.Document.Language)
	}
	size, ok := pageSizes[strings.ToLower(c.Document.PageSize)]
	if !ok {
		return fmt.Errorf("%w: document.pageSize: invalid value %q (must be a4, letter, or legal)", ErrInvalidConfig, c.Document.PageSize)
	}
	m := c.Document.Margins
	if m.Top < 0 || m.Bottom < 0 || m.Left < 0 || m.Right < 0 {
		return fmt.Errorf("%w: document.margins: must not be negative", ErrInvalidConfig)
	}
	if m.Left+m.Right >= size.URX-size.LLX || m.Top+m.Bottom >= size.URY-size.LLY {
		return fmt.Errorf("%w: document.margins: leave no room on a %s page", ErrInvalidConfig, c.Document.PageSize)
	}
	if c.Document.FontSize <= 0 {
		return fmt.Errorf("%w: document.fontSize: must be positive, got %v", ErrInvalidConfig, c.Document.FontSize)
	}
	if c.Spool.Concurrency < 1 {
		return fmt.Errorf("%w: spool.concurrency: must be at least 1, got %d", ErrInvalidConfig, c.Spool.Concurrency)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log.level: invalid value %q", ErrInvalidConfig, c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format: invalid value %q (must be text or json)", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// PageRect returns the MediaBox of the configured page size.
func (c *Config) PageRect() semantic.Rectangle {
	return pageSizes[strings.ToLower(c.Document.PageSize)]
}

// LayoutMargins converts the margins for the layout engine.
func (c *Config) LayoutMargins() layout.Margins {
	m := c.Document.Margins
	return layout.Margins{Top: m.Top, Bottom: m.Bottom, Left: m.Left, Right: m.Right}
}

// Tag returns the canonical form of the document language.
func (c *Config) Tag() string {
	tag, err := language.Parse(c.Document.Language)
	if err != nil {
		return c.Document.Language
	}
	return tag.String()
}
