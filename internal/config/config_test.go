package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"

	"github.com/rogers-f/clash-section-engine/internal/domain"
)

// validYAML returns a minimal valid configuration.
func validYAML() string {
	return `document_path: /tmp/doc.db
clash_export: /tmp/clashes.yaml
`
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_ValidWithDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", validYAML())

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	want.DocumentPath = "/tmp/doc.db"
	want.ClashExport = "/tmp/clashes.yaml"
	if diff := cmp.Diff(want, *cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_JSONFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.json", `{
		"document_path": "/tmp/doc.db",
		"eligible_statuses": ["new"],
		"highlight_color": [0, 0.5, 1],
		"cut_plane_backends": ["reflective"],
		"create_selection_sets": false
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Color() != (domain.RGB{G: 0.5, B: 1}) {
		t.Errorf("Color = %+v", cfg.Color())
	}
	statuses, err := cfg.Statuses()
	if err != nil || len(statuses) != 1 || statuses[0] != domain.StatusNew {
		t.Errorf("Statuses = %v, %v", statuses, err)
	}
	backends, err := cfg.Backends()
	if err != nil || len(backends) != 1 || backends[0].Name() != domain.BackendReflective {
		t.Errorf("Backends = %v, %v", backends, err)
	}
	if cfg.CreateSelectionSets {
		t.Error("CreateSelectionSets = true, want false")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CLASHSECTION_DOCUMENT_PATH", "/env/doc.db")
	t.Setenv("CLASHSECTION_LOG_LEVEL", "debug")
	t.Setenv("CLASHSECTION_VIEWPOINT_FOLDER", "Sections")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DocumentPath != "/env/doc.db" {
		t.Errorf("DocumentPath = %q, want /env/doc.db", cfg.DocumentPath)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.ViewpointFolder != "Sections" {
		t.Errorf("ViewpointFolder = %q, want Sections", cfg.ViewpointFolder)
	}
}

func TestLoadWith_BoundValueWins(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", validYAML()+"listen_addr: 127.0.0.1:1\n")
	v := viper.New()
	v.Set("listen_addr", "127.0.0.1:2")

	cfg, err := LoadWith(v, path)
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:2" {
		t.Errorf("ListenAddr = %q, want 127.0.0.1:2", cfg.ListenAddr)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		problem string
	}{
		{"missing document", "log_level: info\n", "document_path is required"},
		{"bad status", validYAML() + "eligible_statuses: [new, closed]\n", `unknown status "closed"`},
		{"short color", validYAML() + "highlight_color: [1, 0]\n", "3 components"},
		{"color range", validYAML() + "highlight_color: [2, 0, 0]\n", "[0, 1]"},
		{"unknown backend", validYAML() + "cut_plane_backends: [laser]\n", "cut_plane_backends"},
		{"duplicate backend", validYAML() + "cut_plane_backends: [declarative, declarative]\n", "duplicate"},
		{"empty backends", validYAML() + "cut_plane_backends: []\n", "must not be empty"},
		{"log level", validYAML() + "log_level: loud\n", "log_level"},
		{"log format", validYAML() + "log_format: xml\n", "log_format"},
		{"negative details", validYAML() + "max_failure_details: -1\n", "max_failure_details"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "config.yaml", tt.content)
			_, err := Load(path)
			if !errors.Is(err, domain.ErrConfigInvalid) {
				t.Fatalf("err = %v, want ErrConfigInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.problem) {
				t.Errorf("err = %v, want it to mention %q", err, tt.problem)
			}
		})
	}
}

func TestRequireExport(t *testing.T) {
	cfg := Default()
	if err := cfg.RequireExport(); !errors.Is(err, domain.ErrConfigInvalid) {
		t.Errorf("RequireExport err = %v, want ErrConfigInvalid", err)
	}
	cfg.ClashExport = "x.yaml"
	if err := cfg.RequireExport(); err != nil {
		t.Errorf("RequireExport: %v", err)
	}
}
