// Command threads runs one service of the threads social network. Every
// service ships in the same binary and is selected by name:
//
//	threads serve user|post|comment|attach|gateway
//	threads migrate [service]
//	threads version
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-extras/cobraflags"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saidovdiyorbek/threads/internal/config"
	"github.com/saidovdiyorbek/threads/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	envFileFlag  = "env-file"
	logLevelFlag = "log-level"
)

var rootFlags = map[string]cobraflags.Flag{
	envFileFlag: &cobraflags.StringFlag{
		Name:  envFileFlag,
		Value: ".env",
		Usage: "Dotenv file loaded before reading the environment (missing file is ignored)",
	},
	logLevelFlag: &cobraflags.StringFlag{
		Name:  logLevelFlag,
		Value: "",
		Usage: "Overrides LOG_LEVEL (debug, info, warn, error)",
	},
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("threads")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "threads",
		Short:         "Threads social network services",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadEnv(rootFlags[envFileFlag].GetString())
		},
	}
	cobraflags.RegisterMap(root, rootFlags)

	root.AddCommand(newServeCommand(), newMigrateCommand(), newVersionCommand())
	return root
}

// loadEnv fills the process environment from a dotenv file. Variables that are
// already set win over the file.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// loadConfig resolves the configuration of service from the environment; the
// service named on the command line wins over SERVICE.
func loadConfig(service string) (config.Config, error) {
	if err := os.Setenv("SERVICE", service); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	cfg.LogLevel = sysutil.FirstNonEmpty(rootFlags[logLevelFlag].GetString(), cfg.LogLevel)
	log.Logger = sysutil.NewLogger(os.Stderr, cfg.LogLevel, cfg.Service, cfg.LogPretty)
	return cfg, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("threads " + version)
		},
	}
}
