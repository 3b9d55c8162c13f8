// Package firmware assembles the two cores: the P-core owning the radio and
// sensors, and the A-core owning the bus, clock and link monitor. Each core
// runs its tasks in an errgroup; they meet only at the shared arena.
package firmware

import (
	"tinygo.org/x/drivers"

	"dualcore-go/blackboard"
	"dualcore-go/console"
	"dualcore-go/mailbox"
	"dualcore-go/services/ntp"
	"dualcore-go/services/wifi/wcm"
	"dualcore-go/x/shmem"
	"dualcore-go/x/timex"
)

// Hardware is what the P-core drives. A nil Dial uses the host network and
// a nil Ticks counts from boot.
type Hardware struct {
	I2C     drivers.I2C
	Wifi    wcm.Stack
	Dial    ntp.Dialer
	Console console.Sink
	Ticks   timex.Source
}

// Board is the memory both cores share: the blackboards at the bottom of
// the arena and the mailbox slots above them.
type Board struct {
	Arena *shmem.Arena
	P, A  *mailbox.Endpoint
}

func NewBoard() (*Board, error) {
	mcfg := mailbox.DefaultConfig()
	size := mcfg.Offset + mailbox.SlotBytes
	if size < blackboard.ArenaBytes {
		size = blackboard.ArenaBytes
	}
	mcfg.Arena = shmem.NewArena(size)
	p, a, err := mailbox.NewPair(mcfg)
	if err != nil {
		return nil, err
	}
	return &Board{Arena: mcfg.Arena, P: p, A: a}, nil
}
