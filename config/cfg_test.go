package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rupor-github/gencfg"

	"tsukiyomi/common"
)

func TestLoadConfiguration_NoFile(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() with empty path error = %v", err)
	}
	if cfg == nil {
		t.Fatal("LoadConfiguration() returned nil config")
	}
	if cfg.Version != 1 {
		t.Errorf("Default config version = %d, want 1", cfg.Version)
	}
}

func TestConfig_DefaultValues(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}

	r := cfg.Reader
	if r.FontSize != 100 || r.LineHeight != 1.8 || r.LetterSpacing != 0 {
		t.Errorf("typography defaults = %v/%v/%v, want 100/1.8/0", r.FontSize, r.LineHeight, r.LetterSpacing)
	}
	if r.Theme != common.ThemeLight {
		t.Errorf("Theme = %q, want light", r.Theme)
	}
	if r.DisplayMode != common.DisplayModePaged {
		t.Errorf("DisplayMode = %q, want paged", r.DisplayMode)
	}
	if r.PageEffect != common.PageEffectNone {
		t.Errorf("PageEffect = %q, want none", r.PageEffect)
	}
	if r.TapInScroll {
		t.Error("TapInScroll should be off by default")
	}
	if cfg.Import.Encoding != common.EncodingModeAuto {
		t.Errorf("Import.Encoding = %q, want auto", cfg.Import.Encoding)
	}
	if cfg.Import.LegacyEncoding != "Shift_JIS" {
		t.Errorf("Import.LegacyEncoding = %q", cfg.Import.LegacyEncoding)
	}
	if cfg.Bundle.NameTemplate != "" {
		t.Errorf("Bundle.NameTemplate = %q, want empty", cfg.Bundle.NameTemplate)
	}
	if cfg.Logging.ConsoleLogger.Level != "normal" {
		t.Errorf("console level = %q, want normal", cfg.Logging.ConsoleLogger.Level)
	}
}

func TestLoadConfiguration_WithFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `version: 1
reader:
  font_size: 120
  theme: dark
  display_mode: scrollY
  page_effect: fade
  tap_in_scroll: true
import:
  encoding: shift_jis
  locale: en
bundle:
  name_template: "{{ .Title }}"
  transliterate: true
logging:
  console:
    level: debug
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfiguration(configPath)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}

	if cfg.Reader.FontSize != 120 {
		t.Errorf("FontSize = %v, want 120", cfg.Reader.FontSize)
	}
	// not mentioned in file - must come from template
	if cfg.Reader.LineHeight != 1.8 {
		t.Errorf("LineHeight = %v, want default 1.8", cfg.Reader.LineHeight)
	}
	if cfg.Reader.Theme != common.ThemeDark {
		t.Errorf("Theme = %q, want dark", cfg.Reader.Theme)
	}
	if cfg.Reader.DisplayMode != common.DisplayModeScrollY {
		t.Errorf("DisplayMode = %q, want scrollY", cfg.Reader.DisplayMode)
	}
	if cfg.Reader.PageEffect != common.PageEffectFade {
		t.Errorf("PageEffect = %q, want fade", cfg.Reader.PageEffect)
	}
	if !cfg.Reader.TapInScroll {
		t.Error("Expected TapInScroll to be true")
	}
	if cfg.Import.Encoding != common.EncodingModeShiftJIS {
		t.Errorf("Encoding = %q, want shift_jis", cfg.Import.Encoding)
	}
	if cfg.Bundle.NameTemplate != "{{ .Title }}" {
		t.Errorf("NameTemplate = %q, template must not be expanded", cfg.Bundle.NameTemplate)
	}
	if !cfg.Bundle.Transliterate {
		t.Error("Expected Transliterate to be true")
	}
}

func TestLoadConfiguration_NonExistentFile(t *testing.T) {
	_, err := LoadConfiguration("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Expected error for nonexistent file")
	}
}

func TestLoadConfiguration_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	invalidYAML := `version: 1
reader:
  font_size: 100
  invalid indent
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	if _, err := LoadConfiguration(configPath); err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestLoadConfiguration_UnknownFields(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "unknown.yaml")
	configWithUnknown := `version: 1
unknown_field: value
`
	if err := os.WriteFile(configPath, []byte(configWithUnknown), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	if _, err := LoadConfiguration(configPath); err == nil {
		t.Error("Expected error for unknown fields")
	}
}

func TestLoadConfiguration_ValidationError(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"version", "version: 2\n"},
		{"display mode", "version: 1\nreader:\n  display_mode: columns\n"},
		{"font size", "version: 1\nreader:\n  font_size: 0\n"},
		{"encoding", "version: 1\nimport:\n  encoding: koi8-r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "bad.yaml")
			if err := os.WriteFile(configPath, []byte(tt.content), 0644); err != nil {
				t.Fatalf("Failed to write config file: %v", err)
			}
			if _, err := LoadConfiguration(configPath); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoadConfiguration_WithOptions(t *testing.T) {
	option := func(opts *gencfg.ProcessingOptions) {
		// Options are opaque, just test that we can pass them
	}
	cfg, err := LoadConfiguration("", option)
	if err != nil {
		t.Fatalf("LoadConfiguration() with options error = %v", err)
	}
	if cfg == nil {
		t.Fatal("LoadConfiguration() returned nil config")
	}
}

func TestPrepare(t *testing.T) {
	data, err := Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Prepare() returned empty data")
	}
	if _, err = unmarshalConfig(data, &Config{}, true); err != nil {
		t.Errorf("Prepared config is not valid: %v", err)
	}
}

func TestDump(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	cfg.Reader.DisplayMode = common.DisplayModeScrollX

	data, err := Dump(cfg)
	if err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	if !strings.Contains(string(data), "display_mode: scrollX") {
		t.Errorf("Dump() output does not contain display mode:\n%s", data)
	}

	cfg2, err := unmarshalConfig(data, &Config{}, false)
	if err != nil {
		t.Fatalf("unable to load dumped config: %v", err)
	}
	if cfg2.Reader.DisplayMode != common.DisplayModeScrollX {
		t.Errorf("round trip DisplayMode = %q", cfg2.Reader.DisplayMode)
	}
}

func TestLoadConfiguration_ExpandsProjectPaths(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	paths := map[string]string{
		"store.path":               cfg.Store.Path,
		"logging.file.destination": cfg.Logging.FileLogger.Destination,
		"reporting.destination":    cfg.Reporting.Destination,
	}
	for name, p := range paths {
		if p == "" || strings.Contains(p, "{") || strings.Contains(p, "joinPath") {
			t.Errorf("%s = %q, want expanded path", name, p)
		}
	}
	if filepath.Base(cfg.Store.Path) != "tsukiyomi.db" {
		t.Errorf("store.path = %q", cfg.Store.Path)
	}
}
