package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rogers-f/clash-section-engine/internal/bridge"
	"github.com/rogers-f/clash-section-engine/internal/clash"
	"github.com/rogers-f/clash-section-engine/internal/config"
	"github.com/rogers-f/clash-section-engine/internal/domain"
	"github.com/rogers-f/clash-section-engine/internal/host"
	"github.com/rogers-f/clash-section-engine/internal/logging"
	"github.com/rogers-f/clash-section-engine/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// configEnv names a config file when --config is not given.
const configEnv = "CLASHSECTION_CONFIG"

var rootFlags struct {
	configPath string
}

// cfg is loaded once per invocation before any command runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "clashsection",
	Short: "Create section viewpoints for detected clashes",
	Long: "clashsection walks the results of a clash test and saves one viewpoint per clash,\n" +
		"zoomed to the clashing elements with a horizontal cut-plane at the clash center.",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configPath, "config", "", "Config file (json, yaml or toml)")
	pf.String("document", "", "Document file (overrides document_path)")
	pf.String("export", "", "Clash export file (overrides clash_export)")
	pf.String("log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(testsCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(itemsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = fmt.Sprintf("%s (commit=%s, built=%s)", version, commit, date)
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	v := viper.New()
	pf := cmd.Flags()
	for key, flag := range map[string]string{
		"document_path": "document",
		"clash_export":  "export",
		"log_level":     "log-level",
	} {
		if f := pf.Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind --%s: %w", flag, err)
			}
		}
	}

	path := rootFlags.configPath
	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path == "" {
		path = discoverConfig()
	}

	loaded, err := config.LoadWith(v, path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = loaded
	logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cmd.ErrOrStderr())
	return nil
}

// discoverConfig looks for clashsection.yaml next to the executable, then in
// the working directory.
func discoverConfig() string {
	const name = "clashsection.yaml"
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if _, err := os.Stat(name); err == nil {
		return name
	}
	return ""
}

// session is the document, view and clash data a command works on.
type session struct {
	db     *sql.DB
	doc    *host.Document
	bridge *bridge.Bridge
}

// openSession opens the document and, when needExport is set, loads the
// clash export and registers its elements with the view.
func openSession(needExport bool) (*session, error) {
	var tests []domain.ClashTest
	if needExport {
		if err := cfg.RequireExport(); err != nil {
			return nil, err
		}
		loaded, err := clash.LoadExport(cfg.ClashExport)
		if err != nil {
			return nil, err
		}
		tests = loaded
	}

	db, err := store.NewDB(cfg.DocumentPath)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	opts, err := bridge.OptionsFromConfig(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	doc := host.NewDocument()
	doc.RegisterTests(tests)
	return &session{
		db:     db,
		doc:    doc,
		bridge: bridge.NewBridge(db, doc, tests, opts, nil),
	}, nil
}

func (s *session) Close() error {
	return s.db.Close()
}
