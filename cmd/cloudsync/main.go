package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stonefire/cloudsync/internal/config"
	"github.com/stonefire/cloudsync/internal/daemon"
	"github.com/stonefire/cloudsync/internal/logging"
	"github.com/stonefire/cloudsync/internal/notify"
	"github.com/stonefire/cloudsync/internal/version"
)

const cloudSyncArt = `
  ___ _             _ ___
 / __| |___ _  _ __| / __|_  _ _ _  __
| (__| / _ \ || / _` + "`" + ` \__ \ || | ' \/ _|
 \___|_\___/\_,_\__,_|___/\_, |_||_\__|
                          |__/`

var (
	red   = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green = color.New(color.FgHiGreen).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:     "cloudsync",
	Short:   "Incremental OneDrive to S3 backup daemon",
	Version: version.Detailed(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		// all good now, show header
		cmd.SilenceUsage = true
		showHeader()

		logs, err := setupLogging(cfg)
		if err != nil {
			return err
		}
		defer logs.Close()
		slog.Info("config", "config", cfg)

		d, err := daemon.New(cmd.Context(), cfg, daemon.WithMailer(logs.Mailer))
		if err != nil {
			return err
		}

		defer slog.Info("Bye!")
		return d.Start(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("time", "t", config.DefaultSyncTime, "Local time of the daily sync pass (HH:MM)")
	rootCmd.Flags().Bool("run-on-start", false, "Run a sync pass immediately on start")
	addPersistentFlags(rootCmd)
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("config", "c", "", "Config file (default $CLOUDSYNC_CONFIG_DIR or ~/.cloudsync/config.yaml)")
	cmd.PersistentFlags().StringP("datadir", "d", "", "Directory holding credentials and the change cursor")
	cmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
}

func main() {
	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig binds the flags the command defines onto a fresh viper instance and loads the config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.NewViper()

	bindings := map[string]string{
		"data_dir":          "datadir",
		"log.level":         "log-level",
		"sync.time":         "time",
		"sync.run_on_start": "run-on-start",
	}
	for key, flag := range bindings {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	configFile, _ := cmd.Flags().GetString("config")
	return config.Load(v, configFile)
}

// setupLogging replaces the default logger with the console, file and mail fan-out.
func setupLogging(cfg *config.Config) (*logging.Logging, error) {
	var sender notify.Sender
	if cfg.Mail.Enabled {
		s, err := notify.NewSendgridSender(&cfg.Mail)
		if err != nil {
			return nil, fmt.Errorf("mail: %w", err)
		}
		sender = s
	}

	logs, err := logging.Setup(&logging.Options{
		Level:   cfg.Log.SlogLevel(),
		File:    cfg.Log.File,
		Sender:  sender,
		Subject: cfg.Mail.Subject,
	})
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logs.Logger)
	return logs, nil
}

func showHeader() {
	color.New(color.FgHiCyan, color.Bold).
		Print(cloudSyncArt + "\n\n")
}
