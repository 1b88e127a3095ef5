package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/stonefire/cloudsync/internal/daemon"
	"github.com/stonefire/cloudsync/internal/engine"
)

func init() {
	rootCmd.AddCommand(newSyncCmd())
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass now and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			logs, err := setupLogging(cfg)
			if err != nil {
				return err
			}
			defer logs.Close()

			d, err := daemon.New(cmd.Context(), cfg, daemon.WithMailer(logs.Mailer))
			if err != nil {
				return err
			}

			report, err := d.SyncOnce(cmd.Context())
			printReport(cmd, report, err)
			if err != nil {
				slog.Error("sync pass failed", "stage", engine.StageOf(err), "error", err)
			}
			return err
		},
	}
}

func printReport(cmd *cobra.Command, report *engine.PassReport, err error) {
	out := cmd.OutOrStdout()
	if report != nil {
		fmt.Fprintf(out, "%s changes=%d planned=%d transferred=%d failed=%d bytes=%s took=%s\n",
			cyan("PASS"), report.Changes, report.Planned, report.Transferred, report.Failed,
			humanize.IBytes(uint64(report.Bytes)), report.Took.Round(time.Millisecond))
	}
	if err != nil {
		fmt.Fprintf(out, "%s %v\n", red("FAILED"), err)
		return
	}
	fmt.Fprintln(out, green("OK"), "cursor saved")
}
