// Package heartbeat monitors the inter-core link from the A-core: it sends
// PING(seq) on an interval, matches PONG(seq) and publishes the link state.
package heartbeat

import (
	"context"
	"time"

	"github.com/golang/glog"

	"dualcore-go/bus"
	"dualcore-go/ipc"
	"dualcore-go/services/config"
)

var (
	topicConfigHeartbeat = config.Topic("heartbeat")
	TopicLink            = bus.T("link", "state")
)

// Link is the retained payload on link/state.
type Link struct {
	Up     bool
	Seq    uint32
	RTT    time.Duration
	Missed int
	Sent   uint32
	Acked  uint32
}

type Service struct {
	tx   ipc.Sender
	cfg  config.Heartbeat
	pong chan pongAt
}

type pongAt struct {
	seq uint32
	at  time.Time
}

func New(tx ipc.Sender, cfg config.Heartbeat) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.MissLimit <= 0 {
		cfg.MissLimit = 3
	}
	return &Service{tx: tx, cfg: cfg, pong: make(chan pongAt, 4)}
}

// Handle consumes PONG replies; it is safe to call from the router task.
func (s *Service) Handle(m ipc.Message) bool {
	if m.Cmd != ipc.CmdPong {
		return false
	}
	select {
	case s.pong <- pongAt{seq: m.Value, at: time.Now()}:
	default:
	}
	return true
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(s.cfg.Interval)
	defer tick.Stop()

	var (
		link     Link
		seq      uint32
		sentAt   time.Time
		awaiting bool
	)
	publish := func() {
		conn.Publish(conn.NewMessage(TopicLink, link, true))
	}
	publish()

	for {
		select {
		case <-ctx.Done():
			glog.Infof("heartbeat: stopping")
			return
		case <-tick.C:
			if awaiting {
				link.Missed++
				if link.Up && link.Missed >= s.cfg.MissLimit {
					link.Up = false
					glog.Warningf("heartbeat: link down after %d missed pongs", link.Missed)
					publish()
				}
			}
			seq++
			if err := s.tx.SendMsg(ipc.NewMessage(ipc.CmdPing, seq)); err != nil {
				glog.Warningf("heartbeat: ping %d: %v", seq, err)
				continue
			}
			link.Sent++
			sentAt, awaiting = time.Now(), true
		case p := <-s.pong:
			if !awaiting || p.seq != seq {
				if glog.V(2) {
					glog.Infof("heartbeat: stale pong %d (want %d)", p.seq, seq)
				}
				continue
			}
			awaiting = false
			link.Acked++
			link.Seq = p.seq
			link.RTT = p.at.Sub(sentAt)
			link.Missed = 0
			if !link.Up {
				glog.Infof("heartbeat: link up, rtt %v", link.RTT)
			}
			link.Up = true
			publish()
		case msg := <-cfgSub.Channel():
			// Change tick interval if needed
			if hb, ok := msg.Payload.(config.Heartbeat); ok && hb.Interval > 0 {
				s.cfg = hb
				tick.Reset(hb.Interval)
				glog.Infof("heartbeat: interval set to %v", hb.Interval)
			}
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
