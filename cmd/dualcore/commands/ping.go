package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dualcore-go/services/heartbeat"
)

var (
	pingCount   int
	pingTimeout time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure the inter-core round trip",
	RunE:  runPing,
}

func init() {
	pingCmd.Flags().IntVarP(&pingCount, "count", "n", 3, "number of acknowledged pings to report")
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 10*time.Second, "overall deadline")
	rootCmd.AddCommand(pingCmd)
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
	defer cancel()
	s, err := start(ctx, cmd, nil)
	if err != nil {
		return err
	}

	var last uint32
	for n := 0; n < pingCount; {
		p, err := s.await(ctx, heartbeat.TopicLink, func(p any) bool {
			l, ok := p.(heartbeat.Link)
			return ok && l.Up && l.Acked != last
		})
		if err != nil {
			return err
		}
		l := p.(heartbeat.Link)
		last = l.Acked
		n++
		fmt.Fprintf(cmd.OutOrStdout(), "pong seq=%d rtt=%v\n", l.Seq, l.RTT)
	}
	return nil
}
