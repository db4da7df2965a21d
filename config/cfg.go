package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"

	"tsukiyomi/common"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	TemplateFieldName string

	// ViewportConfig describes simulated rendering surface used when
	// gestures are replayed outside of the browser.
	ViewportConfig struct {
		Width         int `yaml:"width" validate:"min=1"`
		Height        int `yaml:"height" validate:"min=1"`
		ChapterExtent int `yaml:"chapter_extent" validate:"min=1"`
	}

	ReaderConfig struct {
		FontSize      float64            `yaml:"font_size" validate:"gt=0"`
		LineHeight    float64            `yaml:"line_height" validate:"gt=0"`
		LetterSpacing float64            `yaml:"letter_spacing"`
		Theme         common.Theme       `yaml:"theme" validate:"oneof=light dark"`
		DisplayMode   common.DisplayMode `yaml:"display_mode" validate:"oneof=paged scrollX scrollY"`
		PageEffect    common.PageEffect  `yaml:"page_effect" validate:"oneof=none dim fade"`
		TapInScroll   bool               `yaml:"tap_in_scroll"`
		Viewport      ViewportConfig     `yaml:"viewport"`
	}

	ImportConfig struct {
		Encoding       common.EncodingMode `yaml:"encoding" validate:"oneof=auto utf-8 shift_jis"`
		LegacyEncoding string              `yaml:"legacy_encoding" validate:"required"`
		Locale         string              `yaml:"locale" validate:"required"`
	}

	BundleConfig struct {
		NameTemplate  string `yaml:"name_template"`
		Transliterate bool   `yaml:"transliterate"`
		FixZip        bool   `yaml:"fix_zip"`
	}

	StoreConfig struct {
		// empty path means records live in memory for the duration of the run
		Path string `yaml:"path,omitempty" sanitize:"path_clean,assure_dir_exists_for_file" validate:"omitempty,filepath"`
	}

	Config struct {
		Version   int            `yaml:"version" validate:"eq=1"`
		Reader    ReaderConfig   `yaml:"reader"`
		Import    ImportConfig   `yaml:"import"`
		Bundle    BundleConfig   `yaml:"bundle"`
		Store     StoreConfig    `yaml:"store"`
		Logging   LoggingConfig  `yaml:"logging"`
		Reporting ReporterConfig `yaml:"reporting"`
	}
)

const (
	// NOTE: must match yaml field name above
	BundleNameTemplateFieldName TemplateFieldName = "name_template"
)

var requiredOptions = append([]func(*gencfg.ProcessingOptions){},
	gencfg.WithDoNotExpandField(string(BundleNameTemplateFieldName)),
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		// sanitize and validate what has been loaded
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, append(requiredOptions, options...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	// overwrite cfg values with values from the file
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl, requiredOptions...)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}
