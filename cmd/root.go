package cmd

import (
	"os"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/config"
	"github.com/spf13/cobra"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "eprabandhan",
	Short: "Document approval workflow service",
	Long: `e-Prabandhan runs document approval workflows: versioned templates,
step-by-step approvals, SLA reminders and escalation, and an audit trail
for every transition.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: search in current directory, ./config, or $HOME/.eprabandhan)")
}

// GetRootCmd 返回根命令（用于测试）
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// loadConfig 加载配置
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}
