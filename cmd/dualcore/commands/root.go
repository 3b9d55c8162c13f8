package commands

import (
	"flag"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	configPath string
	device     string
)

var rootCmd = &cobra.Command{
	Use:   "dualcore",
	Short: "Run the dual-core firmware against simulated hardware",
	Long: `dualcore hosts both cores of the firmware in one process. The P-core
drives a simulated IMU, touch controller and Wi-Fi radio; the A-core runs the
link monitor, Wi-Fi view and clock. NTP queries go to the real network.

Logging uses glog; pass -v=2 to trace mailbox traffic.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command; errors are printed once, in red.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	err := rootCmd.Execute()
	if err != nil {
		color.New(color.FgRed).Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return err
}

func SetVersion(v string) { rootCmd.Version = v }

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file (overrides --device)")
	rootCmd.PersistentFlags().StringVar(&device, "device", "sim", "embedded configuration profile")
	// glog registers -v, -logtostderr and friends on the standard flag set.
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}
