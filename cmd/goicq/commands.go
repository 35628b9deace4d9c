package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/udisondev/goicq/internal/config"
	"github.com/udisondev/goicq/internal/db"
)

func newRootCmd() *cobra.Command {
	var cfgPath string
	var cfg config.Client

	root := &cobra.Command{
		Use:           "goicq",
		Short:         "Mobile QQ protocol client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.LoadClient(config.Path(cfgPath)); err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			setupLogging(cfg.LogLevel)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", configPath, "config file ($"+config.EnvPath+" wins)")

	root.AddCommand(
		runCmd(&cfg),
		deviceCmd(&cfg),
		migrateCmd(&cfg),
	)
	return root
}

func runCmd(cfg *config.Client) *cobra.Command {
	var uin int64
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Log in and stay online until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if uin != 0 {
				cfg.Uin = uin
			}
			return run(cmd.Context(), *cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().Int64VarP(&uin, "uin", "u", 0, "account number (overrides config)")
	return cmd
}

// deviceCmd prints the device of the account, generating it on first use.
func deviceCmd(cfg *config.Client) *cobra.Command {
	var uin int64
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Show the device identity used for login",
		RunE: func(cmd *cobra.Command, args []string) error {
			if uin != 0 {
				cfg.Uin = uin
			}
			st, err := openStorage(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			d, err := st.device(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "protocol: %s\nimei:     %s\nmodel:    %s\nandroid:  %s (sdk %d)\nguid:     %x\n",
				d.Protocol, d.IMEI, d.Model, d.Version.Release, d.Version.SDK, d.Guid())
			return nil
		},
	}
	cmd.Flags().Int64VarP(&uin, "uin", "u", 0, "account number (overrides config)")
	return cmd
}

func migrateCmd(cfg *config.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.RunMigrations(cmd.Context(), cfg.Database.DSN()); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			slog.Info("database migrations applied")
			return nil
		},
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	})))
}
