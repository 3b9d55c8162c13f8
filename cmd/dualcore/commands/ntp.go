package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dualcore-go/firmware"
	"dualcore-go/ipc"
	"dualcore-go/services/wifiview"
)

var (
	ntpJoin    string
	ntpTimeout time.Duration
)

var ntpCmd = &cobra.Command{
	Use:   "ntp",
	Short: "Join a simulated network and set the clock from NTP",
	Long: `Join a simulated network and set the clock from NTP. The association is
simulated but the NTP query goes to the configured server over UDP.`,
	RunE: runNTP,
}

func init() {
	ntpCmd.Flags().StringVar(&ntpJoin, "join", "workshop:solder123", "ssid[:password] to connect to first")
	ntpCmd.Flags().DurationVar(&ntpTimeout, "timeout", 20*time.Second, "overall deadline")
	rootCmd.AddCommand(ntpCmd)
}

func runNTP(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), ntpTimeout)
	defer cancel()
	s, err := start(ctx, cmd, nil)
	if err != nil {
		return err
	}

	ap, err := parseAP(ntpJoin, 0)
	if err != nil {
		return err
	}
	req := ipc.WifiConnect{SSID: ap.SSID, Password: ap.Password, Security: ipc.SecurityWPA2}
	if ap.Password == "" {
		req.Security = ipc.SecurityOpen
	}
	if err := s.command(ctx, "connect", req); err != nil {
		return err
	}
	st, err := s.await(ctx, wifiview.TopicState, func(p any) bool {
		return p == ipc.WifiConnected || p == ipc.WifiStateError
	})
	if err != nil {
		return err
	}
	if st == ipc.WifiStateError {
		code, _ := s.await(ctx, wifiview.TopicError, func(any) bool { return true })
		return fmt.Errorf("connect to %q failed: %v", ap.SSID, code)
	}

	results := s.conn.Subscribe(wifiview.TopicTime)
	defer s.conn.Unsubscribe(results)
	if err := s.command(ctx, "ntp", nil); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-results.Channel():
			res, ok := m.Payload.(wifiview.NTPResult)
			if !ok {
				continue
			}
			if res.Reason != 0 {
				return fmt.Errorf("ntp: %s", res.Reason)
			}
			p, err := s.await(ctx, firmware.TopicDisplay, func(p any) bool { _, ok := p.(string); return ok })
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "epoch %d\n%s\n", res.Epoch, p)
			return nil
		}
	}
}
