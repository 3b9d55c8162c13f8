package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dualcore-go/firmware"
	"dualcore-go/ipc"
	"dualcore-go/services/heartbeat"
	"dualcore-go/services/wifiview"
)

var (
	runFor  time.Duration
	runAPs  []string
	runJoin string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot both cores and print what the A-core sees",
	Long: `Boot both cores and follow the A-core bus: link state, Wi-Fi state, the
clock display and touch events. Stops on Ctrl-C or after --for.

With --join ssid:password the A-core connects and syncs the clock once the
link is up.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().DurationVar(&runFor, "for", 0, "stop after this long (0 runs until interrupted)")
	runCmd.Flags().StringSliceVar(&runAPs, "ap", nil, "simulated access point ssid[:password], repeatable")
	runCmd.Flags().StringVar(&runJoin, "join", "", "connect to ssid[:password] and sync time")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if runFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runFor)
		defer cancel()
	}

	s, err := start(ctx, cmd, runAPs)
	if err != nil {
		return err
	}
	if runJoin != "" {
		ap, err := parseAP(runJoin, 0)
		if err != nil {
			return err
		}
		go func() {
			req := ipc.WifiConnect{SSID: ap.SSID, Password: ap.Password, Security: ipc.SecurityWPA2}
			if ap.Password == "" {
				req.Security = ipc.SecurityOpen
			}
			if err := s.command(ctx, "connect", req); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "connect: %v\n", err)
				return
			}
			if _, err := s.await(ctx, wifiview.TopicState, func(p any) bool { return p == ipc.WifiConnected }); err == nil {
				_ = s.command(ctx, "ntp", nil)
			}
		}()
	}

	out := cmd.OutOrStdout()
	link := s.conn.Subscribe(heartbeat.TopicLink)
	state := s.conn.Subscribe(wifiview.TopicState)
	display := s.conn.Subscribe(firmware.TopicDisplay)
	buttons := s.conn.Subscribe(firmware.TopicButton)
	var up bool
	for {
		select {
		case err := <-s.done:
			return err
		case m := <-link.Channel():
			if l, ok := m.Payload.(heartbeat.Link); ok && l.Up != up {
				up = l.Up
				if up {
					fmt.Fprintf(out, "link up (rtt %v)\n", l.RTT)
				} else {
					fmt.Fprintf(out, "link down after %d missed\n", l.Missed)
				}
			}
		case m := <-state.Channel():
			fmt.Fprintf(out, "wifi %v\n", m.Payload)
		case m := <-display.Channel():
			fmt.Fprintf(out, "clock %v\n", m.Payload)
		case m := <-buttons.Channel():
			if b, ok := m.Payload.(ipc.ButtonData); ok {
				fmt.Fprintf(out, "button %d pressed=%t\n", b.ID, b.Pressed)
			}
		}
	}
}
