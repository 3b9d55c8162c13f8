package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dualcore-go/ipc"
	"dualcore-go/services/wifiview"
)

var (
	scanAPs     []string
	scanTimeout time.Duration
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for access points through the P-core",
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().StringSliceVar(&scanAPs, "ap", nil, "simulated access point ssid[:password], repeatable")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 15*time.Second, "overall deadline")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), scanTimeout)
	defer cancel()
	s, err := start(ctx, cmd, scanAPs)
	if err != nil {
		return err
	}
	if err := s.command(ctx, "scan", nil); err != nil {
		return err
	}
	p, err := s.await(ctx, wifiview.TopicScan, func(p any) bool { _, ok := p.(wifiview.ScanList); return ok })
	if err != nil {
		return err
	}
	printNetworks(cmd, p.(wifiview.ScanList))
	return nil
}

func printNetworks(cmd *cobra.Command, list wifiview.ScanList) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SSID\tSIGNAL\tCH\tBAND\tSECURITY")
	green := color.New(color.FgGreen)
	for i, n := range list.Networks {
		ssid := n.SSID
		if i == list.Connected {
			ssid = green.Sprint(ssid + " *")
		}
		bars := strings.Repeat("#", ipc.RSSIBars(n.RSSI)) + strings.Repeat(".", 4-ipc.RSSIBars(n.RSSI))
		fmt.Fprintf(w, "%s\t%s %d dBm\t%d\t%s\t%s\n", ssid, bars, n.RSSI, n.Channel, n.Band, n.Security)
	}
	w.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "%d networks\n", len(list.Networks))
}
