// Package config loads the engine configuration from file, environment and
// defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/rogers-f/clash-section-engine/internal/domain"
	"github.com/rogers-f/clash-section-engine/internal/logging"
	"github.com/rogers-f/clash-section-engine/internal/section"
)

// EnvPrefix prefixes every environment override, e.g. CLASHSECTION_LOG_LEVEL.
const EnvPrefix = "CLASHSECTION"

// Config holds the engine's runtime configuration.
type Config struct {
	DocumentPath        string    `mapstructure:"document_path"`
	ClashExport         string    `mapstructure:"clash_export"`
	ViewpointFolder     string    `mapstructure:"viewpoint_folder"`
	SelectionSetFolder  string    `mapstructure:"selection_set_folder"`
	CreateSelectionSets bool      `mapstructure:"create_selection_sets"`
	ClearRedlines       bool      `mapstructure:"clear_redlines"`
	EligibleStatuses    []string  `mapstructure:"eligible_statuses"`
	HighlightColor      []float64 `mapstructure:"highlight_color"`
	CutPlaneBackends    []string  `mapstructure:"cut_plane_backends"`
	MaxFailureDetails   int       `mapstructure:"max_failure_details"`
	ListenAddr          string    `mapstructure:"listen_addr"`
	LogLevel            string    `mapstructure:"log_level"`
	LogFormat           string    `mapstructure:"log_format"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ViewpointFolder:     "Clash Section Views",
		SelectionSetFolder:  "Clash Section Sets",
		CreateSelectionSets: true,
		ClearRedlines:       true,
		EligibleStatuses:    []string{"new", "active", "reviewed"},
		HighlightColor:      []float64{1, 0, 0},
		CutPlaneBackends: []string{
			string(domain.BackendDeclarative),
			string(domain.BackendObjectModel),
			string(domain.BackendReflective),
		},
		MaxFailureDetails: 5,
		ListenAddr:        "127.0.0.1:9810",
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// setDefaults registers default values with v.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("document_path", d.DocumentPath)
	v.SetDefault("clash_export", d.ClashExport)
	v.SetDefault("viewpoint_folder", d.ViewpointFolder)
	v.SetDefault("selection_set_folder", d.SelectionSetFolder)
	v.SetDefault("create_selection_sets", d.CreateSelectionSets)
	v.SetDefault("clear_redlines", d.ClearRedlines)
	v.SetDefault("eligible_statuses", d.EligibleStatuses)
	v.SetDefault("highlight_color", d.HighlightColor)
	v.SetDefault("cut_plane_backends", d.CutPlaneBackends)
	v.SetDefault("max_failure_details", d.MaxFailureDetails)
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
}

// Load reads an optional config file, applies environment overrides and
// defaults, and validates. An empty path skips the file. The file format
// follows its extension (json, yaml or toml).
func Load(path string) (*Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith is Load on a caller-supplied viper instance, so flags bound to v
// take precedence over the file.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "" {
			v.SetConfigType("yaml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	var problems []string

	if c.DocumentPath == "" {
		problems = append(problems, "document_path is required")
	}
	if strings.TrimSpace(c.ViewpointFolder) == "" {
		problems = append(problems, "viewpoint_folder must not be empty")
	}
	if c.CreateSelectionSets && strings.TrimSpace(c.SelectionSetFolder) == "" {
		problems = append(problems, "selection_set_folder must not be empty when create_selection_sets is on")
	}
	if len(c.EligibleStatuses) == 0 {
		problems = append(problems, "eligible_statuses must not be empty")
	}
	for _, s := range c.EligibleStatuses {
		if _, err := domain.ParseClashStatus(s); err != nil {
			problems = append(problems, fmt.Sprintf("eligible_statuses: unknown status %q", s))
		}
	}
	if len(c.HighlightColor) != 3 {
		problems = append(problems, "highlight_color must have 3 components")
	} else {
		for _, v := range c.HighlightColor {
			if v < 0 || v > 1 {
				problems = append(problems, "highlight_color components must be in [0, 1]")
				break
			}
		}
	}
	if len(c.CutPlaneBackends) == 0 {
		problems = append(problems, "cut_plane_backends must not be empty")
	} else if _, err := section.BackendsByName(c.CutPlaneBackends); err != nil {
		problems = append(problems, fmt.Sprintf("cut_plane_backends: %v", err))
	}
	if c.MaxFailureDetails < 0 {
		problems = append(problems, "max_failure_details must not be negative")
	}
	if !logging.ValidLevel(c.LogLevel) {
		problems = append(problems, fmt.Sprintf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		problems = append(problems, fmt.Sprintf("log_format %q must be text or json", c.LogFormat))
	}

	if len(problems) > 0 {
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}

// RequireExport reports an ErrConfigInvalid error when no clash export is set.
func (c *Config) RequireExport() error {
	if c.ClashExport == "" {
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: domain.ErrConfigInvalid.Message + ": clash_export is required",
		}
	}
	return nil
}

// Statuses returns the parsed eligible statuses.
func (c *Config) Statuses() ([]domain.ClashStatus, error) {
	out := make([]domain.ClashStatus, 0, len(c.EligibleStatuses))
	var errs []error
	for _, s := range c.EligibleStatuses {
		st, err := domain.ParseClashStatus(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, st)
	}
	return out, errors.Join(errs...)
}

// Color returns the highlight color. A malformed setting yields red.
func (c *Config) Color() domain.RGB {
	if len(c.HighlightColor) != 3 {
		return domain.Red
	}
	return domain.RGB{R: c.HighlightColor[0], G: c.HighlightColor[1], B: c.HighlightColor[2]}
}

// Backends resolves the configured cut-plane backends in priority order.
func (c *Config) Backends() ([]section.Backend, error) {
	return section.BackendsByName(c.CutPlaneBackends)
}
