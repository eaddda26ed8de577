// Package main is the entry point for the odata-uri command line tool.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/config"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "odata-uri",
		Short:         "Parse OData request URIs against a metadata model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Version = version + " (commit=" + commit + ", built=" + date + ")"
	root.SetVersionTemplate("odata-uri version {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.String("config", "", "YAML settings file (env ODATA_CONFIG)")
	flags.String("env-file", "", "dotenv file loaded before reading ODATA_* variables")
	flags.String("log-level", "", "debug, info, warn or error (default warn, env ODATA_LOG_LEVEL)")
	flags.Bool("no-color", false, "disable colored output")
	flags.Bool("case-insensitive", false, "match identifiers and keywords ignoring case")
	flags.Bool("key-as-segment", false, "keys are written as path segments (People/1)")

	root.AddCommand(newParseCmd(), newPathCmd(), newFilterCmd(), newServeCmd())
	return root
}

// loadSettings builds the settings from defaults, the settings file, the
// environment and finally the command line flags.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	if path, _ := cmd.Flags().GetString("env-file"); path != "" {
		if err := config.LoadEnvFile(path); err != nil {
			return nil, err
		}
	}

	s := config.Default()
	path := envOrDefault("ODATA_CONFIG", "")
	if v, _ := cmd.Flags().GetString("config"); v != "" {
		path = v
	}
	if path != "" {
		var err error
		if s, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if err := s.ApplyEnv(); err != nil {
		return nil, err
	}

	if v, _ := cmd.Flags().GetBool("case-insensitive"); v {
		s.CaseInsensitive = true
	}
	if v, _ := cmd.Flags().GetBool("key-as-segment"); v {
		s.KeyDelimiter = config.KeySlash
	}
	return s, s.Validate()
}

func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	level := envOrDefault("ODATA_LOG_LEVEL", "warn")
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		level = v
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: l})), nil
}

func loadModel(cmd *cobra.Command) (*edm.Model, error) {
	path, _ := cmd.Flags().GetString("model")
	if path == "" {
		path = envOrDefault("ODATA_MODEL", "")
	}
	if path == "" {
		return nil, fmt.Errorf("a model file is required (--model or ODATA_MODEL)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model: %w", err)
	}
	return edm.LoadYAML(data)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
