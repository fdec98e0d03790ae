package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/container"
	"github.com/spf13/cobra"
)

// sweepCmd 执行一次 SLA 巡检, 供外部调度器(cron, Kubernetes CronJob)调用
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one SLA sweep and print the report",
	Long: `Run a single SLA sweep over pending approvals: send warnings for
approvals past the warning threshold and escalate those past the escalation
threshold. Notifications are written to the outbox and delivered by the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		ctr, err := container.NewContainer(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		report, err := ctr.Sweeps().Sweep(cmd.Context(), time.Now())
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}

		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
