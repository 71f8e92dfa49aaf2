package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m3rciful/stater/core/bootstrap"
	"github.com/m3rciful/stater/core/buildinfo"
	corecmd "github.com/m3rciful/stater/core/cmd"
	coreconfig "github.com/m3rciful/stater/core/config"
	"github.com/m3rciful/stater/core/logger"
)

const configEnvVar = "STATER_CONFIG"

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "stater-demo",
		Short:         "Onboarding bot built on the stater conversation router",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML or TOML config file (default $"+configEnvVar+" or config.yaml)")

	root.AddCommand(newRunCmd(&configPath), newMigrateCmd(&configPath), newVersionCmd())
	return root
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll Telegram and route updates through the onboarding flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			return corecmd.Run(corecmd.Options{
				ConfigPath:        *configPath,
				ConfigEnvVar:      configEnvVar,
				DefaultConfigPath: "config.yaml",
				LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
					return coreconfig.Load(path)
				},
				Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
					return newApp(cfg.CoreConfig(), bootstrap.Options{})
				},
			})
		},
	}
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply state store migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(*configPath)
			cfg, err := coreconfig.Load(path)
			if err != nil {
				return err
			}
			if cfg.Store.Driver == coreconfig.StoreMemory {
				return errors.New("migrate: memory store has no schema")
			}
			cfg.Store.Migrate = true
			res, err := bootstrap.Run(bootstrap.Options{Config: cfg})
			if err != nil {
				return err
			}
			defer func() { _ = logger.Shutdown() }()
			if err := res.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", res.Dialect)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stater-demo %s\n", buildinfo.String())
		},
	}
}

func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(configEnvVar); env != "" {
		return env
	}
	return "config.yaml"
}
