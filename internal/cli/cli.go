// Package cli parses command-line arguments into the application
// configuration. Defaults come from an optional "layoutgrid" settings file
// and LAYOUTGRID_* environment variables; explicit flags win over both.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/viper"

	"github.com/vk/layoutgrid/internal/app"
)

// ExitError is an error carrying a specific process exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Result is the outcome of a successful parse: the app configuration plus
// the command to run with its arguments.
type Result struct {
	Config  *app.Config
	Command string
	Args    []string
}

// Parse processes command-line arguments. The boolean result reports that
// the program should exit cleanly (help requested or nothing to do).
func Parse(args []string, output io.Writer) (*Result, bool, error) {
	flagSet := flag.NewFlagSet("layoutgrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
layoutgrid - layout management engine for cluster resources.

Usage:
  layoutgrid [options] <command> [args]

Commands:
  dump                                                      print entities and layout trees
  get <layout> <key> <hosts>                                read a value
  set <layout> <key> <hosts> <set|sum> <value>              write a value
  getfrom <layout> <key> <hosts> <up|down> <sum|mean|set>   consolidate then read
  propagate <layout> <key> <hosts> <op> <dir> <cons> <val>  set and propagate
  update <layout> <hosts> <key[+]=value[#...]>              administrative bulk update
  list <layout> [entity-type] [key]                         list entity names

Options:
`)
		flagSet.PrintDefaults()
	}

	layoutsFlag := flagSet.String("layouts", "", "Comma-separated layouts to activate, e.g. 'power/default,unit'.")
	confDirFlag := flagSet.String("conf-dir", "", "Directory holding one <type>.hcl file per layout.")
	inventoryFlag := flagSet.String("inventory", "", "Path to the HCL node inventory file.")
	logFormatFlag := flagSet.String("log-format", "", "Log output format: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "", "Logging level: 'debug', 'info', 'warn' or 'error'.")
	settingsFlag := flagSet.String("settings", "", "Optional path to a layoutgrid settings file.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if flagSet.NArg() == 0 {
		flagSet.Usage()
		return nil, true, nil
	}

	cfg, err := loadSettings(*settingsFlag)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	// flags override settings-file and environment values
	applyOverride(&cfg.Layouts, *layoutsFlag)
	applyOverride(&cfg.ConfDir, *confDirFlag)
	applyOverride(&cfg.InventoryPath, *inventoryFlag)
	applyOverride(&cfg.LogFormat, *logFormatFlag)
	applyOverride(&cfg.LogLevel, *logLevelFlag)

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn' or 'error'"}
	}

	return &Result{
		Config:  cfg,
		Command: flagSet.Arg(0),
		Args:    flagSet.Args()[1:],
	}, false, nil
}

// loadSettings reads defaults from the optional settings file and the
// environment.
func loadSettings(path string) (*app.Config, error) {
	v := viper.New()
	v.SetDefault("layouts", "")
	v.SetDefault("conf_dir", "layouts.d")
	v.SetDefault("inventory", "nodes.hcl")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_level", "info")
	v.SetEnvPrefix("layoutgrid")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading settings file: %w", err)
		}
	} else {
		v.SetConfigName("layoutgrid")
		v.AddConfigPath(".")
		// a missing default settings file is fine
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading settings file: %w", err)
			}
		}
	}

	return &app.Config{
		Layouts:       v.GetString("layouts"),
		ConfDir:       v.GetString("conf_dir"),
		InventoryPath: v.GetString("inventory"),
		LogFormat:     v.GetString("log_format"),
		LogLevel:      v.GetString("log_level"),
	}, nil
}

func applyOverride(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}
