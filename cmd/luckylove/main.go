package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/luckylove/server/internal/config"
	"github.com/luckylove/server/internal/logging"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// rootFlags are shared by every subcommand.
type rootFlags struct {
	envFile string
}

func main() {
	var flags rootFlags

	root := &cobra.Command{
		Use:           "luckylove",
		Short:         "Lucky Love couples backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Optional dotenv file loaded before the environment is decoded")

	root.AddCommand(
		newServeCmd(&flags),
		newMigrateCmd(&flags),
		newSeedDebugCmd(&flags),
		newDevTokenCmd(&flags),
		newVAPIDKeysCmd(),
		newBackupCmd(&flags),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// load reads the configuration and builds the process logger.
func load(flags *rootFlags) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(flags.envFile)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	return cfg, logger, nil
}
